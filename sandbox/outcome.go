package sandbox

import (
	"errors"
	"fmt"
	"net/http"
)

// OutcomeKind classifies how an orchestration ended
type OutcomeKind string

// Terminal outcomes
const (
	OutcomeSucceeded      OutcomeKind = "succeeded"
	OutcomeFailed         OutcomeKind = "failed"
	OutcomeStartupError   OutcomeKind = "startup_error"
	OutcomeTimedOut       OutcomeKind = "timed_out"
	OutcomeTransportError OutcomeKind = "transport_error"
)

// Placeholders substituted for missing output
const (
	LogsUnavailablePlaceholder = "logs unavailable"
	NoOutputPlaceholder        = "no output"
)

// Caller-facing error messages
const (
	MsgExecutionFailed   = "Execution failed"
	MsgExecutionTimedOut = "Execution timed out"
	MsgFailedToRun       = "Failed to run code"
)

// Outcome is the terminal state of one job, produced exactly once
type Outcome struct {
	Kind  OutcomeKind
	JobID string
	// Logs holds the unit's output, or LogsUnavailablePlaceholder when
	// LogsDegraded is set.
	Logs         string
	LogsDegraded bool
	// Reason is set for OutcomeStartupError.
	Reason string
	// Detail is set for OutcomeTransportError.
	Detail string
}

func transportError(err error) Outcome {
	return Outcome{Kind: OutcomeTransportError, Detail: err.Error()}
}

// Response is the JSON body returned to callers
type Response struct {
	Output  *string `json:"output,omitempty"`
	Error   string  `json:"error,omitempty"`
	Details string  `json:"details,omitempty"`
}

// Result pairs an HTTP status code with its body
type Result struct {
	Status int
	Body   Response
}

// MapOutcome converts a terminal outcome into a caller-facing result
func MapOutcome(o Outcome) Result {
	switch o.Kind {
	case OutcomeSucceeded:
		output := o.Logs
		if output == "" {
			output = NoOutputPlaceholder
		}
		return Result{Status: http.StatusOK, Body: Response{Output: &output}}
	case OutcomeFailed:
		output := o.Logs
		return Result{Status: http.StatusUnprocessableEntity, Body: Response{Error: MsgExecutionFailed, Output: &output}}
	case OutcomeStartupError:
		output := o.Logs
		return Result{Status: http.StatusUnprocessableEntity, Body: Response{Error: o.Reason, Output: &output}}
	case OutcomeTimedOut:
		return Result{Status: http.StatusGatewayTimeout, Body: Response{Error: MsgExecutionTimedOut}}
	case OutcomeTransportError:
		return Result{Status: http.StatusInternalServerError, Body: Response{Error: MsgFailedToRun, Details: o.Detail}}
	default:
		return Result{
			Status: http.StatusInternalServerError,
			Body:   Response{Error: MsgFailedToRun, Details: fmt.Sprintf("unknown outcome %q", o.Kind)},
		}
	}
}

// MapError converts an error raised before orchestration into a result
func MapError(err error) Result {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return Result{Status: http.StatusBadRequest, Body: Response{Error: vErr.Message}}
	case errors.Is(err, ErrUnsupportedLanguage):
		return Result{Status: http.StatusBadRequest, Body: Response{Error: MsgUnsupportedLanguage}}
	default:
		return Result{Status: http.StatusInternalServerError, Body: Response{Error: MsgFailedToRun, Details: err.Error()}}
	}
}
