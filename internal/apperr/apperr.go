// Package apperr defines the stable error-kind vocabulary shared across the
// ingestion API, the LLM gateway, and the view engine. The kind strings are
// part of the external contract (spec.md §7) and must never be renamed.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable, externally visible error classification.
type Kind string

const (
	KindUnsupportedFormat        Kind = "unsupported_format"
	KindFileTooLarge             Kind = "file_too_large"
	KindEstimatedTimeExceeded    Kind = "estimated_time_exceeds_budget"
	KindExtractionFailed         Kind = "extraction_failed"
	KindLowQuality               Kind = "low_quality"
	KindParseError                Kind = "parse_error"
	KindAiCallFailed              Kind = "ai_call_failed"
	KindTimeout                   Kind = "timeout"
	KindRateLimited                Kind = "rate_limited"
	KindUnauthorized              Kind = "unauthorized"
	KindBadRequest                 Kind = "bad_request"
	KindServerError                Kind = "server_error"
	KindNetworkError               Kind = "network_error"
	KindFileCorrupted              Kind = "file_corrupted"
)

// Error is the typed error carried through the pipeline. Step/Reason give
// the context needed to populate the user-visible error_details shape.
type Error struct {
	Kind    Kind
	Step    string
	Reason  string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New creates an Error of the given kind.
func New(kind Kind, step, reason string) *Error {
	return &Error{Kind: kind, Step: step, Reason: reason}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, step, reason string, cause error) *Error {
	return &Error{Kind: kind, Step: step, Reason: reason, Wrapped: cause}
}

// KindOf extracts the Kind from err, or "" if err is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// UserAction is one of the recovery actions surfaced to a client.
type UserAction struct {
	Action      string `json:"action"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ActionsFor returns the recommended user_actions for a given error kind.
func ActionsFor(kind Kind) []UserAction {
	switch kind {
	case KindUnsupportedFormat:
		return []UserAction{
			{Action: "convert_to_docx", Label: "Convert to DOCX", Description: "Re-save the document as .docx and upload again."},
			{Action: "re_upload", Label: "Upload a different file", Description: "Choose a file in one of the supported formats."},
		}
	case KindFileTooLarge:
		return []UserAction{
			{Action: "split_document", Label: "Split the document", Description: "Break the file into smaller parts and upload each separately."},
		}
	case KindEstimatedTimeExceeded:
		return []UserAction{
			{Action: "split_document", Label: "Split the document", Description: "Reduce content length or the number of requested views."},
		}
	case KindExtractionFailed, KindFileCorrupted:
		return []UserAction{
			{Action: "re_upload", Label: "Re-upload the file", Description: "The file may be corrupted; try re-exporting and uploading again."},
		}
	case KindLowQuality:
		return []UserAction{
			{Action: "re_upload", Label: "Upload richer content", Description: "The extracted text was too sparse to process."},
		}
	case KindAiCallFailed, KindTimeout, KindRateLimited, KindServerError, KindNetworkError:
		return []UserAction{
			{Action: "retry", Label: "Retry", Description: "The AI provider was temporarily unavailable; try again."},
		}
	case KindUnauthorized, KindBadRequest:
		return []UserAction{
			{Action: "check_config", Label: "Check configuration", Description: "Verify the LLM API key and request configuration."},
		}
	default:
		return []UserAction{{Action: "retry", Label: "Retry", Description: "Try the operation again."}}
	}
}

// Details is the user-visible failure shape from spec.md §7.
type Details struct {
	Status         string       `json:"status"`
	ErrorType      Kind         `json:"error_type"`
	ErrorMessage   string       `json:"error_message"`
	ErrorDetails   ErrorDetails `json:"error_details"`
	UserActions    []UserAction `json:"user_actions"`
}

// ErrorDetails gives the step-level context for a failure.
type ErrorDetails struct {
	Step           string   `json:"step"`
	Reason         string   `json:"reason"`
	CompletedSteps []string `json:"completed_steps,omitempty"`
	FailedStep     string   `json:"failed_step,omitempty"`
}

// ToDetails converts an *Error plus the steps completed so far into the
// user-visible Details shape.
func ToDetails(err error, completedSteps []string) Details {
	var e *Error
	kind := Kind("ai_call_failed")
	step, reason := "", err.Error()
	if errors.As(err, &e) {
		kind = e.Kind
		step = e.Step
		reason = e.Reason
	}
	return Details{
		Status:       "failed",
		ErrorType:    kind,
		ErrorMessage: err.Error(),
		ErrorDetails: ErrorDetails{
			Step:           step,
			Reason:         reason,
			CompletedSteps: completedSteps,
			FailedStep:     step,
		},
		UserActions: ActionsFor(kind),
	}
}
