package ai

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"

	"mamachat/internal/models"
	"mamachat/internal/service/chat"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoProvider adapts any eino chat model. The conversation history is kept
// client side and replayed on every call.
type EinoProvider struct {
	name         string
	model        model.BaseChatModel
	systemPrompt bool
}

func NewEinoProvider(name string, m model.BaseChatModel, systemPrompt bool) *EinoProvider {
	return &EinoProvider{name: name, model: m, systemPrompt: systemPrompt}
}

func (p *EinoProvider) Name() string { return p.name }

func (p *EinoProvider) SupportsSystemInstruction() bool { return p.systemPrompt }

func (p *EinoProvider) Open(_ context.Context, req chat.StartRequest) (chat.ProviderSession, error) {
	history := make([]*schema.Message, 0, len(req.History)+1)
	if req.SystemInstruction != "" {
		history = append(history, schema.SystemMessage(req.SystemInstruction))
	}
	for _, t := range req.History {
		history = append(history, toEinoMessage(t.Role, t.Parts))
	}
	return &einoSession{model: p.model, history: history}, nil
}

type einoSession struct {
	model   model.BaseChatModel
	mu      sync.Mutex
	history []*schema.Message
}

func (s *einoSession) snapshot(user *schema.Message) []*schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]*schema.Message, 0, len(s.history)+1)
	msgs = append(msgs, s.history...)
	return append(msgs, user)
}

func (s *einoSession) record(user *schema.Message, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, user)
	if reply != "" {
		s.history = append(s.history, schema.AssistantMessage(reply, nil))
	}
}

func (s *einoSession) Send(ctx context.Context, parts []models.Part) (*chat.Response, error) {
	user := toEinoMessage(models.RoleUser, parts)
	msg, err := s.model.Generate(ctx, s.snapshot(user))
	if err != nil {
		return nil, einoError(err)
	}
	resp := fromEino(msg)
	s.record(user, resp.Text)
	return resp, nil
}

func (s *einoSession) SendStream(ctx context.Context, parts []models.Part) iter.Seq2[*chat.Response, error] {
	return func(yield func(*chat.Response, error) bool) {
		user := toEinoMessage(models.RoleUser, parts)
		reader, err := s.model.Stream(ctx, s.snapshot(user))
		if err != nil {
			yield(nil, einoError(err))
			return
		}
		defer reader.Close()

		// History only grows once the reply has been read to the end.
		var full strings.Builder
		for {
			chunk, err := reader.Recv()
			if errors.Is(err, io.EOF) {
				s.record(user, full.String())
				return
			}
			if err != nil {
				yield(nil, einoError(err))
				return
			}
			resp := fromEino(chunk)
			full.WriteString(resp.Text)
			if !yield(resp, nil) {
				return
			}
		}
	}
}

func toEinoMessage(role models.Role, parts []models.Part) *schema.Message {
	msg := &schema.Message{Role: schema.User}
	if role == models.RoleAssistant {
		msg.Role = schema.Assistant
	}
	var texts []string
	var multi []schema.ChatMessagePart
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
			multi = append(multi, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: p.Text})
		}
		if a := p.Attachment; a != nil {
			multi = append(multi, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      "data:" + a.MIMEType + ";base64," + a.Data,
					MIMEType: a.MIMEType,
				},
			})
		}
	}
	if len(multi) > len(texts) {
		msg.MultiContent = multi
		return msg
	}
	msg.Content = strings.Join(texts, "\n")
	return msg
}

func fromEino(msg *schema.Message) *chat.Response {
	if msg == nil {
		return &chat.Response{}
	}
	resp := &chat.Response{Text: msg.Content, Candidates: 1}
	if msg.ResponseMeta != nil {
		resp.FinishReason = einoFinish(msg.ResponseMeta.FinishReason)
	}
	return resp
}

// einoFinish normalises finish reasons across the openai, claude and gemini
// eino components.
func einoFinish(reason string) chat.FinishReason {
	switch strings.ToLower(reason) {
	case "":
		return chat.FinishUnspecified
	case "stop", "end_turn", "stop_sequence", "tool_calls", "tool_use":
		return chat.FinishStop
	case "length", "max_tokens":
		return chat.FinishMaxTokens
	case "content_filter", "safety", "refusal", "blocklist", "prohibited_content", "spii", "image_safety":
		return chat.FinishSafety
	case "recitation":
		return chat.FinishRecitation
	default:
		return chat.FinishOther
	}
}
