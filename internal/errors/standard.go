// Package errors provides the analyzer's standardized error taxonomy
// (spec.md 7): recoverable-silent conditions are counters, not errors,
// but the remaining categories — invalid input and programmer error —
// still need a consistent, loggable shape when callers do choose to
// surface them. The shape is structured-fields-first, matching the
// logrus.Fields idiom the rest of this tree logs through, rather than a
// single formatted message string.
package errors

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Category classifies an error by how the core's callers should react to
// it, following spec.md 7's taxonomy.
type Category string

const (
	CategoryRecoverableLogged Category = "RECOVERABLE_LOGGED"
	CategoryInvalidInput      Category = "INVALID_INPUT"
	CategoryProgrammerError   Category = "PROGRAMMER_ERROR"
)

// level is the logrus severity a Category's errors are emitted at when
// routed through CoreError.Log.
func (c Category) level() logrus.Level {
	switch c {
	case CategoryProgrammerError:
		return logrus.ErrorLevel
	case CategoryInvalidInput:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// CoreError is the consistent error shape every constructor below
// produces. Unlike a single rendered message, its diagnostic payload is
// a logrus.Fields map a caller can attach to a structured log line
// verbatim via Log, and it chains to an optional cause through Unwrap so
// callers can still use errors.Is/errors.As against it.
type CoreError struct {
	Category Category
	Code     string
	Message  string
	Fields   logrus.Fields

	cause error
}

// Error implements the error interface with a compact, human-readable
// rendering; structured consumers should prefer Log over parsing this
// string.
func (e *CoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *CoreError) Unwrap() error {
	return e.cause
}

// Log emits e through logger at the severity its Category implies, with
// category, code, and every entry of Fields attached as structured
// fields rather than folded into the message text.
func (e *CoreError) Log(logger *logrus.Entry) {
	fields := logrus.Fields{"category": string(e.Category), "code": e.Code}

	for k, v := range e.Fields {
		fields[k] = v
	}

	if e.cause != nil {
		fields["cause"] = e.cause
	}

	logger.WithFields(fields).Log(e.Category.level(), e.Message)
}

func newCoreError(category Category, code, message string, cause error, fields logrus.Fields) *CoreError {
	return &CoreError{Category: category, Code: code, Message: message, Fields: fields, cause: cause}
}

// CleanupFailure wraps an error raised inside the registry's cleanup
// loop: spec.md 7 says this is logged and the loop continues, never
// propagated to a caller.
func CleanupFailure(cause error) *CoreError {
	return newCoreError(CategoryRecoverableLogged, "CLEANUP_FAILURE", "registry cleanup pass failed", cause, nil)
}

// SnapshotConstructionDegraded reports that a snapshot was returned on a
// best-effort basis after a runtime-metrics read failed (spec.md 7:
// "snapshot construction I/O: log; return best-effort snapshot").
func SnapshotConstructionDegraded(cause error) *CoreError {
	return newCoreError(CategoryRecoverableLogged, "SNAPSHOT_DEGRADED", "snapshot construction degraded", cause, nil)
}

// UnknownSnapshotID reports a compare_snapshots lookup miss. Per spec.md
// 7 this is an absent value at the API (CompareSnapshots returns ok=
// false), not a panic or returned error; this constructor exists for
// callers (e.g. the CLI) that want to render the miss as a message.
func UnknownSnapshotID(id uint64) *CoreError {
	return newCoreError(CategoryInvalidInput, "UNKNOWN_SNAPSHOT_ID",
		fmt.Sprintf("snapshot id %d not found", id), nil, logrus.Fields{"snapshot_id": id})
}

// DetectionNotActive reports a detect() call made while detecting=false.
// Per spec.md 7 the facade itself returns nil rather than this error;
// it exists for CLI-layer callers that want a renderable message instead
// of silently printing nothing.
func DetectionNotActive() *CoreError {
	return newCoreError(CategoryProgrammerError, "DETECTION_NOT_ACTIVE",
		"leak detection is not active; call Start() before Detect()", nil, nil)
}
