package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestProviderErrorMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &ProviderError{Kind: KindQuota, Op: "send", SessionID: "s1", Err: errors.New("429")})
	if !errors.Is(err, ErrQuota) {
		t.Fatalf("expected quota match")
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrTransport) {
		t.Fatalf("unexpected kind match")
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || !pe.Retryable() {
		t.Fatalf("quota errors are retryable")
	}
	if pe.UserMessage() != "The assistant is busy right now. Please try again later." {
		t.Fatalf("user message = %q", pe.UserMessage())
	}
}

func TestTranslateError(t *testing.T) {
	err := translateError("send", "abc", context.DeadlineExceeded)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("deadline should be a transport error: %v", err)
	}
	err = translateError("send", "abc", errors.New("weird"))
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected unknown kind: %v", err)
	}
	err = translateError("open", "abc", NewProviderError(KindAuth, errors.New("401")))
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "open" || pe.SessionID != "abc" || pe.Kind != KindAuth {
		t.Fatalf("adapter error not annotated: %#v", pe)
	}
}

func TestUserMessageNeverLeaksDetail(t *testing.T) {
	raw := errors.New(`{"error":{"code":500,"message":"internal stack trace"}}`)
	for _, err := range []error{
		&ProviderError{Kind: KindTransport, Err: raw},
		&ProviderError{Kind: KindUnknown, Err: raw},
		raw,
		ErrConfiguration,
	} {
		if msg := UserMessage(err); msg == "" || msg == raw.Error() {
			t.Fatalf("unexpected user message %q for %v", msg, err)
		}
	}
}
