package scanning

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrUnsupportedInput is returned by the decoder when an upload cannot be
// turned into at least one frame.
var ErrUnsupportedInput = errors.New("unsupported input")

// ErrEmptyPayload accompanies ErrUnsupportedInput when an upload holds no
// bytes once decoded, e.g. an inline capture of "data:image/png;base64,".
var ErrEmptyPayload = errors.New("empty payload")

// FailureKind classifies why recognition produced no record
type FailureKind string

const (
	// FailureNotRecognized means the backend saw no readable receipt
	FailureNotRecognized FailureKind = "not_recognized"
	// FailureBackendRejected covers quota, credential and backend-side errors
	FailureBackendRejected FailureKind = "backend_rejected"
	// FailureBackendUnreachable covers transport and connection errors
	FailureBackendUnreachable FailureKind = "backend_unreachable"
	// FailureMalformedReply means the reply matched neither valid shape
	FailureMalformedReply FailureKind = "malformed_reply"
	// FailureUnexpected is everything not otherwise classified
	FailureUnexpected FailureKind = "unexpected_failure"
)

// RecognitionFailure is the terminal outcome of a recognition attempt that
// produced no record. Reason is shown to the end user as is.
type RecognitionFailure struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (f *RecognitionFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Reason, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
}

func (f *RecognitionFailure) Unwrap() error {
	return f.Err
}

func notRecognized(reason string) *RecognitionFailure {
	return &RecognitionFailure{Kind: FailureNotRecognized, Reason: reason}
}

func malformedReply(err error) *RecognitionFailure {
	return &RecognitionFailure{
		Kind:   FailureMalformedReply,
		Reason: "Erro interno: resposta inválida da IA",
		Err:    err,
	}
}

func backendRejected(err error) *RecognitionFailure {
	return &RecognitionFailure{
		Kind:   FailureBackendRejected,
		Reason: fmt.Sprintf("Erro da API: %v", err),
		Err:    err,
	}
}

func backendUnreachable(err error) *RecognitionFailure {
	return &RecognitionFailure{
		Kind:   FailureBackendUnreachable,
		Reason: fmt.Sprintf("Erro de conexão com a API: %v", err),
		Err:    err,
	}
}

func unexpectedFailure(err error) *RecognitionFailure {
	return &RecognitionFailure{
		Kind:   FailureUnexpected,
		Reason: fmt.Sprintf("Erro inesperado: %v", err),
		Err:    err,
	}
}

// isTransportError reports whether err came from the network layer rather
// than from a response the backend produced.
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// AsFailure returns err as a *RecognitionFailure, classifying it as
// unexpected when it is not one already.
func AsFailure(err error) *RecognitionFailure {
	var f *RecognitionFailure
	if errors.As(err, &f) {
		return f
	}
	return unexpectedFailure(err)
}
