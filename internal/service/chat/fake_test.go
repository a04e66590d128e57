package chat

import (
	"context"
	"iter"
	"sync"
	"testing"

	"mamachat/internal/models"
)

// fakeProvider records the start request and replays scripted replies.
type fakeProvider struct {
	mu        sync.Mutex
	noSystem  bool
	openErr   error
	started   []StartRequest
	replies   []*Response
	sendErr   error
	chunks    []*Response
	streamErr error
	sent      [][]models.Part
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) SupportsSystemInstruction() bool { return !p.noSystem }

func (p *fakeProvider) Open(_ context.Context, req StartRequest) (ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, req)
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &fakeConversation{p: p}, nil
}

type fakeConversation struct {
	p *fakeProvider
}

func (c *fakeConversation) Send(_ context.Context, parts []models.Part) (*Response, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.sent = append(c.p.sent, parts)
	if c.p.sendErr != nil {
		return nil, c.p.sendErr
	}
	if len(c.p.replies) == 0 {
		return &Response{FinishReason: FinishStop}, nil
	}
	resp := c.p.replies[0]
	c.p.replies = c.p.replies[1:]
	return resp, nil
}

func (c *fakeConversation) SendStream(_ context.Context, parts []models.Part) iter.Seq2[*Response, error] {
	c.p.mu.Lock()
	c.p.sent = append(c.p.sent, parts)
	chunks, streamErr := c.p.chunks, c.p.streamErr
	c.p.mu.Unlock()
	return func(yield func(*Response, error) bool) {
		for _, ch := range chunks {
			if !yield(ch, nil) {
				return
			}
		}
		if streamErr != nil {
			yield(nil, streamErr)
		}
	}
}

func intPtr(v int) *int { return &v }

func openSession(t testing.TB, p *fakeProvider) *Session {
	t.Helper()
	s, err := NewEngine(p, Options{}).Open(context.Background(), OpenRequest{
		Prefs: models.SessionPrefs{Feeling: "calm", WeeksPregnant: intPtr(12)},
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return s
}
