package models

import (
	"errors"
	"fmt"
)

// Error codes for pipeline failures. The orchestrator is the single
// place that decides whether a failed job is retried; everything else
// just tags the failure with one of these codes.
const (
	// Storage
	CodeStorageNotFound      = "storage_not_found"
	CodeStorageIO            = "storage_io_error"
	CodeStorageQuotaExceeded = "storage_quota_exceeded"

	// Transcoder
	CodeSourceUnreadable      = "source_unreadable"
	CodeUnsupportedCodec      = "unsupported_codec"
	CodeEncodingFailure       = "encoding_failure"
	CodeTranscoderUnavailable = "transcoder_unavailable"

	// Transcriber
	CodeAudioUnreadable        = "audio_unreadable"
	CodeLanguageNotSupported   = "language_not_supported"
	CodeTranscriberUnavailable = "transcriber_unavailable"

	// Pipeline
	CodeTimeout    = "timeout"
	CodeSuperseded = "superseded"
	CodeInternal   = "internal"
)

// PipelineError is a typed failure from a driver, the object store, or
// the orchestrator itself. Retryable errors are re-queued with backoff;
// the rest fail the job immediately.
type PipelineError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *PipelineError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsRetryable reports whether err (or any wrapped error) is a
// retryable PipelineError. Unknown errors are treated as retryable:
// an unclassified failure is far more likely a transient blip than a
// poisoned source.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

// ErrorCode extracts the pipeline error code, or CodeInternal for
// untyped errors.
func ErrorCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

func newPipelineError(code string, retryable bool, err error, format string, args ...any) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Retryable: retryable,
		Err:       err,
	}
}

// Storage errors.
func StorageNotFound(key string) *PipelineError {
	return newPipelineError(CodeStorageNotFound, false, nil, "object not found: %s", key)
}

func StorageIO(err error) *PipelineError {
	return newPipelineError(CodeStorageIO, true, err, "storage io: %v", err)
}

func StorageQuotaExceeded(err error) *PipelineError {
	return newPipelineError(CodeStorageQuotaExceeded, false, err, "storage quota exceeded: %v", err)
}

// Transcoder errors.
func SourceUnreadable(msg string) *PipelineError {
	return newPipelineError(CodeSourceUnreadable, false, nil, "%s", msg)
}

func UnsupportedCodec(msg string) *PipelineError {
	return newPipelineError(CodeUnsupportedCodec, false, nil, "%s", msg)
}

func EncodingFailure(msg string) *PipelineError {
	return newPipelineError(CodeEncodingFailure, false, nil, "%s", msg)
}

func TranscoderUnavailable(err error) *PipelineError {
	return newPipelineError(CodeTranscoderUnavailable, true, err, "transcoder unavailable: %v", err)
}

// Transcriber errors.
func AudioUnreadable(msg string) *PipelineError {
	return newPipelineError(CodeAudioUnreadable, false, nil, "%s", msg)
}

func LanguageNotSupported(lang string) *PipelineError {
	return newPipelineError(CodeLanguageNotSupported, false, nil, "language not supported: %s", lang)
}

func TranscriberUnavailable(err error) *PipelineError {
	return newPipelineError(CodeTranscriberUnavailable, true, err, "transcriber unavailable: %v", err)
}

// DriverTimeout marks a job that hit its per-driver hard timeout.
// Timeouts are retryable: the engine may simply have been overloaded.
func DriverTimeout(task string, err error) *PipelineError {
	return newPipelineError(CodeTimeout, true, err, "%s driver timed out", task)
}

// Superseded marks a job cancelled because a newer source upload or an
// admin reset replaced it.
func Superseded() *PipelineError {
	return newPipelineError(CodeSuperseded, false, nil, "superseded")
}

// Internal marks an invariant violation; logged at error and never retried.
func Internal(err error) *PipelineError {
	return newPipelineError(CodeInternal, false, err, "internal: %v", err)
}

// Sentinel errors surfaced at the HTTP boundary.
var (
	ErrVideoNotFound     = errors.New("video not found")
	ErrNotReady          = errors.New("video not ready")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrSessionNotFound   = errors.New("viewer session not found")
)
