package shared

import "errors"

var (
	// ErrValidation indicates malformed input such as an unknown event type.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a principal, role, permission, or group is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate assignment or an introduced hierarchy cycle.
	ErrConflict = errors.New("conflict")
	// ErrPolicyConfiguration indicates corrupt or unparseable condition data.
	ErrPolicyConfiguration = errors.New("policy configuration invalid")
	// ErrPermissionDenied is returned to callers on a denied permission check.
	// The message is deliberately generic and must not leak which condition failed.
	ErrPermissionDenied = errors.New("not authorized")
	// ErrTamperSuspected indicates a hash-chain gap or mismatch in the audit log.
	ErrTamperSuspected = errors.New("audit chain integrity violation")
	// ErrAuditSinkUnavailable indicates a transient audit persistence failure.
	ErrAuditSinkUnavailable = errors.New("audit sink unavailable")
)
