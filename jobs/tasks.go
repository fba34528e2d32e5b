package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskRetentionRun runs a full retention pass over audit partitions.
	TaskRetentionRun = "retention:run"
	// TaskPartitionEnsure pre-creates upcoming audit partitions.
	TaskPartitionEnsure = "partition:ensure"
	// TaskIntegrityScan verifies the audit hash chain.
	TaskIntegrityScan = "integrity:scan"
	// TaskDeadLetterReplay replays dead-lettered audit events.
	TaskDeadLetterReplay = "deadletter:replay"
)

// NewRetentionRunTask constructs the retention task. It carries no payload;
// the run always covers every partition.
func NewRetentionRunTask() *asynq.Task {
	return asynq.NewTask(TaskRetentionRun, nil)
}

// NewPartitionEnsureTask constructs the partition pre-creation task.
func NewPartitionEnsureTask() *asynq.Task {
	return asynq.NewTask(TaskPartitionEnsure, nil)
}

// NewIntegrityScanTask constructs the chain verification task.
func NewIntegrityScanTask() *asynq.Task {
	return asynq.NewTask(TaskIntegrityScan, nil)
}

// NewDeadLetterReplayTask constructs the dead letter replay task.
func NewDeadLetterReplayTask() *asynq.Task {
	return asynq.NewTask(TaskDeadLetterReplay, nil)
}
