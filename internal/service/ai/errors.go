package ai

import (
	"context"
	"errors"
	"net"
	"strings"

	"mamachat/internal/service/chat"

	"google.golang.org/genai"
)

// geminiError maps a genai failure onto a provider error kind.
func geminiError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return chat.NewProviderError(transportOrUnknown(err), err)
		}
		apiErr = *apiErrPtr
	}
	return chat.NewProviderError(kindForStatus(apiErr.Code, apiErr.Status+" "+apiErr.Message), err)
}

// einoError maps a failure surfaced through an eino model. The components
// wrap vendor errors differently, so the message is inspected.
func einoError(err error) error {
	if err == nil {
		return nil
	}
	if kind := transportOrUnknown(err); kind == chat.KindTransport {
		return chat.NewProviderError(kind, err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return chat.NewProviderError(kindForStatus(apiErr.Code, apiErr.Status+" "+apiErr.Message), err)
	}
	return chat.NewProviderError(kindForMessage(err.Error()), err)
}

func kindForStatus(code int, detail string) chat.ErrorKind {
	switch {
	case code == 401 || code == 403:
		return chat.KindAuth
	case code == 400 && strings.Contains(strings.ToLower(detail), "api key"):
		return chat.KindAuth
	case code == 429:
		return chat.KindQuota
	case code >= 500:
		return chat.KindTransport
	default:
		return chat.KindUnknown
	}
}

func kindForMessage(msg string) chat.ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case containsAny(m, "401", "403", "unauthorized", "invalid api key", "invalid x-api-key", "permission denied", "authentication"):
		return chat.KindAuth
	case containsAny(m, "429", "rate limit", "quota", "resource_exhausted", "overloaded"):
		return chat.KindQuota
	case containsAny(m, "500", "502", "503", "504", "timeout", "connection refused", "connection reset", "eof", "no such host"):
		return chat.KindTransport
	default:
		return chat.KindUnknown
	}
}

func transportOrUnknown(err error) chat.ErrorKind {
	var netErr net.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return chat.KindTransport
	}
	return chat.KindUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
