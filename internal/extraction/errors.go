package extraction

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/zombor/cupom-extractor/internal/scanning"
)

// ErrorKind classifies why the pipeline produced no report
type ErrorKind string

const (
	KindNoInput            ErrorKind = "no_input"
	KindUnsupportedInput   ErrorKind = "unsupported_input"
	KindNoFramesProduced   ErrorKind = "no_frames_produced"
	KindNotRecognized      ErrorKind = "not_recognized"
	KindBackendRejected    ErrorKind = "backend_rejected"
	KindBackendUnreachable ErrorKind = "backend_unreachable"
	KindMalformedReply     ErrorKind = "malformed_reply"
	KindUnexpectedFailure  ErrorKind = "unexpected_failure"
	KindInternalError      ErrorKind = "internal_error"
)

const (
	msgNoInput       = "Erro: Nenhum arquivo ou imagem recebida."
	msgCannotLoad    = "Erro: Não foi possível carregar a imagem."
	msgInternalError = "Erro interno: %v"
)

var failureKinds = map[scanning.FailureKind]ErrorKind{
	scanning.FailureNotRecognized:      KindNotRecognized,
	scanning.FailureBackendRejected:    KindBackendRejected,
	scanning.FailureBackendUnreachable: KindBackendUnreachable,
	scanning.FailureMalformedReply:     KindMalformedReply,
	scanning.FailureUnexpected:         KindUnexpectedFailure,
}

// PipelineError is the single error type returned by Service.Extract.
// Message is safe to show to the end user.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error onto the HTTP boundary. Recognition failures
// are valid outcomes rendered as text, so they answer 200.
func (e *PipelineError) StatusCode() int {
	switch e.Kind {
	case KindNoInput, KindUnsupportedInput, KindNoFramesProduced:
		return http.StatusBadRequest
	case KindInternalError:
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func noInput() *PipelineError {
	return &PipelineError{Kind: KindNoInput, Message: msgNoInput}
}

func unsupportedInput(err error) *PipelineError {
	return &PipelineError{Kind: KindUnsupportedInput, Message: msgCannotLoad, Err: err}
}

func noFramesProduced() *PipelineError {
	return &PipelineError{Kind: KindNoFramesProduced, Message: msgCannotLoad}
}

func internalError(err error) *PipelineError {
	return &PipelineError{Kind: KindInternalError, Message: fmt.Sprintf(msgInternalError, err), Err: err}
}

// recognitionError carries the backend-reported reason verbatim
func recognitionError(f *scanning.RecognitionFailure) *PipelineError {
	kind, ok := failureKinds[f.Kind]
	if !ok {
		kind = KindUnexpectedFailure
	}
	return &PipelineError{Kind: kind, Message: f.Reason, Err: f}
}

// AsPipelineError returns err as a *PipelineError, treating anything else
// as an internal error.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return internalError(err)
}
