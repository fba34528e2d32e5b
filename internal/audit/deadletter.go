package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DeadLetter is a local JSONL store for events that exhausted their sink
// retries. It is the replay source, never the system of record.
type DeadLetter struct {
	mu   sync.Mutex
	path string
}

// NewDeadLetter constructs a file-backed dead-letter store.
func NewDeadLetter(path string) *DeadLetter {
	return &DeadLetter{path: path}
}

// Write appends a raw event as one JSON line.
func (d *DeadLetter) Write(raw RawSecurityEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("audit: dead letter dir: %w", err)
	}
	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open dead letter: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("audit: encode dead letter: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: write dead letter: %w", err)
	}
	return nil
}

// Drain replays stored events through fn. The batch is claimed and the file
// truncated under the lock, then fn runs unlocked, so fn may itself call
// Write without deadlocking. Events fn rejects are appended back for the
// next drain; unparseable lines are dropped with no way to recover them, so
// Write is the only producer.
func (d *DeadLetter) Drain(ctx context.Context, fn func(context.Context, RawSecurityEvent) error) (int, error) {
	lines, err := d.take()
	if err != nil || len(lines) == 0 {
		return 0, err
	}

	replayed := 0
	var failed [][]byte
	for _, line := range lines {
		var raw RawSecurityEvent
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		if ctx.Err() != nil {
			failed = append(failed, line)
			continue
		}
		if err := fn(ctx, raw); err != nil {
			failed = append(failed, line)
			continue
		}
		replayed++
	}

	if err := d.restore(failed); err != nil {
		return replayed, err
	}
	return replayed, ctx.Err()
}

// take removes and returns every stored line.
func (d *DeadLetter) take() ([][]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open dead letter: %w", err)
	}

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	scanErr := scanner.Err()
	_ = f.Close()
	if scanErr != nil {
		return nil, fmt.Errorf("audit: scan dead letter: %w", scanErr)
	}
	if err := os.Truncate(d.path, 0); err != nil {
		return nil, fmt.Errorf("audit: truncate dead letter: %w", err)
	}
	return lines, nil
}

// restore appends rejected lines back after a drain. Lines written by other
// producers while the drain ran are already in the file and stay ahead of
// the restored ones.
func (d *DeadLetter) restore(lines [][]byte) error {
	if len(lines) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: restore dead letter: %w", err)
	}
	for _, line := range lines {
		if _, err := f.Write(append(line, '\n')); err != nil {
			_ = f.Close()
			return fmt.Errorf("audit: restore dead letter: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audit: restore dead letter: %w", err)
	}
	return nil
}
