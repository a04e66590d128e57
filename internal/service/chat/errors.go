package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	// ErrConfiguration means no provider client was initialised, usually a missing credential.
	ErrConfiguration = errors.New("chat provider not configured")
	// ErrInvalidSessionState is returned for calls made outside the ACTIVE state.
	ErrInvalidSessionState = errors.New("invalid session state")
	// ErrEmptyMessage is returned when a turn has no text and no attachment.
	ErrEmptyMessage = errors.New("message has no content")
	// ErrUnsupportedAttachment is returned for attachments outside the image allow-list.
	ErrUnsupportedAttachment = errors.New("unsupported attachment type")
	// ErrAttachmentTooLarge is returned when an attachment exceeds the size limit.
	ErrAttachmentTooLarge = errors.New("attachment too large")
	// ErrInvalidAttachment is returned when attachment data is not valid base64.
	ErrInvalidAttachment = errors.New("attachment data is not valid base64")
	// ErrSessionBusy is returned when a call overlaps an outstanding one on the same session.
	ErrSessionBusy = errors.New("session has a call in progress")
)

// ErrorKind classifies infrastructure failures.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindQuota     ErrorKind = "quota"
	KindTransport ErrorKind = "transport"
	KindUnknown   ErrorKind = "unknown"
)

// Sentinels matched by errors.Is against a *ProviderError of the same kind.
var (
	ErrAuth      = errors.New("provider rejected credentials")
	ErrQuota     = errors.New("provider quota exhausted")
	ErrTransport = errors.New("provider unreachable")
	ErrUnknown   = errors.New("provider failure")
)

// ProviderError is an infrastructure failure raised by open, send or sendStream.
type ProviderError struct {
	Kind      ErrorKind
	Op        string
	SessionID string
	Err       error
}

// NewProviderError wraps err with kind. Adapters use it to report what they know.
func NewProviderError(kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Err: err}
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s error", e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches the kind sentinels.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrQuota:
		return e.Kind == KindQuota
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrUnknown:
		return e.Kind == KindUnknown
	}
	return false
}

// Retryable reports whether retrying later may succeed.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindQuota || e.Kind == KindTransport
}

// UserMessage is the short, non-technical text shown to end users.
func (e *ProviderError) UserMessage() string {
	switch e.Kind {
	case KindAuth:
		return "The assistant is not available right now. Please contact support."
	case KindQuota:
		return "The assistant is busy right now. Please try again later."
	case KindTransport:
		return "We couldn't reach the assistant. Please check your connection and try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// translateError maps any provider-call failure onto a *ProviderError.
func translateError(op, sessionID string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		out := *pe
		if out.Op == "" {
			out.Op = op
		}
		if out.SessionID == "" {
			out.SessionID = sessionID
		}
		return &out
	}
	kind := KindUnknown
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindTransport
	case errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &netErr):
		kind = KindTransport
	}
	return &ProviderError{Kind: kind, Op: op, SessionID: sessionID, Err: err}
}

// UserMessage returns the user-facing text for any error the package returns.
func UserMessage(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return pe.UserMessage()
	case errors.Is(err, ErrConfiguration):
		return "The assistant is not configured. Please contact support."
	case errors.Is(err, ErrEmptyMessage):
		return "Please type a message or attach an image."
	case errors.Is(err, ErrUnsupportedAttachment):
		return "Only PNG, JPEG, WebP, HEIC, HEIF and GIF images can be attached."
	case errors.Is(err, ErrAttachmentTooLarge):
		return "That image is too large to send."
	case errors.Is(err, ErrInvalidAttachment):
		return "That image could not be read. Please attach it again."
	case errors.Is(err, ErrSessionBusy):
		return "Please wait for the current reply to finish."
	case errors.Is(err, ErrInvalidSessionState):
		return "This conversation has ended. Please start a new one."
	default:
		return "Something went wrong. Please try again."
	}
}
