package chat

import (
	"context"
	"iter"

	"mamachat/internal/models"
)

// FinishReason is the provider-neutral reason generation stopped.
type FinishReason string

const (
	FinishUnspecified FinishReason = ""
	FinishStop        FinishReason = "stop"
	FinishMaxTokens   FinishReason = "max_tokens"
	FinishSafety      FinishReason = "safety"
	FinishRecitation  FinishReason = "recitation"
	FinishOther       FinishReason = "other"
)

// Response is one provider response or stream chunk, normalised by an adapter.
type Response struct {
	Text string
	// BlockReason is set when the prompt was withheld before any generation.
	BlockReason  string
	FinishReason FinishReason
	Candidates   int
}

// StartRequest carries what a provider needs to start a multi-turn session.
type StartRequest struct {
	SessionID         string
	SystemInstruction string
	History           []models.ChatTurn
}

// ChatProvider opens multi-turn sessions against one backing model.
type ChatProvider interface {
	Name() string
	Open(ctx context.Context, req StartRequest) (ProviderSession, error)
}

// ProviderSession is a live provider-side conversation.
type ProviderSession interface {
	Send(ctx context.Context, parts []models.Part) (*Response, error)
	SendStream(ctx context.Context, parts []models.Part) iter.Seq2[*Response, error]
}

// SystemInstructionSupporter is implemented by providers that cannot take an
// out-of-band system instruction; they report false.
type SystemInstructionSupporter interface {
	SupportsSystemInstruction() bool
}

func supportsSystemInstruction(p ChatProvider) bool {
	if s, ok := p.(SystemInstructionSupporter); ok {
		return s.SupportsSystemInstruction()
	}
	return true
}
