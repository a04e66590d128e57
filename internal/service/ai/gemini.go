package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strings"
	"sync"

	"mamachat/internal/models"
	"mamachat/internal/service/chat"

	"google.golang.org/genai"
)

// GeminiProvider talks to Gemini through the native multi-turn chat API,
// which carries prompt feedback and per-candidate finish reasons.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int32

	mu       sync.Mutex
	verified bool
}

func NewGeminiProvider(client *genai.Client, modelName string, maxTokens int32) *GeminiProvider {
	return &GeminiProvider{client: client, model: modelName, maxTokens: maxTokens}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) SupportsSystemInstruction() bool { return true }

// Open verifies the credential once, then creates a chat seeded with history.
func (p *GeminiProvider) Open(ctx context.Context, req chat.StartRequest) (chat.ProviderSession, error) {
	if err := p.verify(ctx); err != nil {
		return nil, err
	}
	cfg := &genai.GenerateContentConfig{
		SafetySettings:  safetySettings(),
		MaxOutputTokens: p.maxTokens,
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	history, err := toGenAIHistory(req.History)
	if err != nil {
		return nil, err
	}
	c, err := p.client.Chats.Create(ctx, p.model, cfg, history)
	if err != nil {
		return nil, geminiError(err)
	}
	return &geminiSession{chat: c}, nil
}

func (p *GeminiProvider) verify(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.verified {
		return nil
	}
	if _, err := p.client.Models.Get(ctx, p.model, nil); err != nil {
		return geminiError(err)
	}
	p.verified = true
	return nil
}

type geminiSession struct {
	chat *genai.Chat
}

func (s *geminiSession) Send(ctx context.Context, parts []models.Part) (*chat.Response, error) {
	gparts, err := toGenAIParts(parts)
	if err != nil {
		return nil, err
	}
	resp, err := s.chat.SendMessage(ctx, gparts...)
	if err != nil {
		return nil, geminiError(err)
	}
	return fromGenAI(resp), nil
}

func (s *geminiSession) SendStream(ctx context.Context, parts []models.Part) iter.Seq2[*chat.Response, error] {
	return func(yield func(*chat.Response, error) bool) {
		gparts, err := toGenAIParts(parts)
		if err != nil {
			yield(nil, err)
			return
		}
		for resp, err := range s.chat.SendMessageStream(ctx, gparts...) {
			if err != nil {
				yield(nil, geminiError(err))
				return
			}
			if !yield(fromGenAI(resp), nil) {
				return
			}
		}
	}
}

func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	out := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		out = append(out, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove})
	}
	return out
}

func toGenAIHistory(turns []models.ChatTurn) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		parts, err := toGenAIParts(t.Parts)
		if err != nil {
			return nil, err
		}
		ptrs := make([]*genai.Part, 0, len(parts))
		for i := range parts {
			ptrs = append(ptrs, &parts[i])
		}
		role := genai.Role(genai.RoleUser)
		if t.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromParts(ptrs, role))
	}
	return out, nil
}

func toGenAIParts(parts []models.Part) ([]genai.Part, error) {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			out = append(out, genai.Part{Text: p.Text})
		}
		if a := p.Attachment; a != nil {
			data, err := base64.StdEncoding.DecodeString(a.Data)
			if err != nil {
				return nil, fmt.Errorf("decode attachment %s: %w", a.Name, err)
			}
			out = append(out, genai.Part{InlineData: &genai.Blob{MIMEType: a.MIMEType, Data: data}})
		}
	}
	return out, nil
}

func fromGenAI(resp *genai.GenerateContentResponse) *chat.Response {
	out := &chat.Response{}
	if resp == nil {
		return out
	}
	if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" && pf.BlockReason != genai.BlockedReasonUnspecified {
		out.BlockReason = string(pf.BlockReason)
	}
	out.Candidates = len(resp.Candidates)
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return out
	}
	cand := resp.Candidates[0]
	out.FinishReason = geminiFinish(cand.FinishReason)
	if cand.Content != nil {
		var b strings.Builder
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
		out.Text = b.String()
	}
	return out
}

func geminiFinish(r genai.FinishReason) chat.FinishReason {
	switch r {
	case "", genai.FinishReasonUnspecified:
		return chat.FinishUnspecified
	case genai.FinishReasonStop:
		return chat.FinishStop
	case genai.FinishReasonMaxTokens:
		return chat.FinishMaxTokens
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII, genai.FinishReasonImageSafety:
		return chat.FinishSafety
	case genai.FinishReasonRecitation:
		return chat.FinishRecitation
	default:
		return chat.FinishOther
	}
}
