package ai

import (
	"errors"
	"fmt"
	"testing"

	"mamachat/internal/models"
	"mamachat/internal/service/chat"

	"google.golang.org/genai"
)

func TestFromGenAI(t *testing.T) {
	blocked := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonProhibitedContent},
	}
	if got := fromGenAI(blocked); got.BlockReason != "PROHIBITED_CONTENT" || chat.Classify(got, nil) != chat.OutcomeBlocked {
		t.Fatalf("blocked response = %#v", got)
	}

	unspecified := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonUnspecified},
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Hello "},
				{Text: "there"},
			}},
		}},
	}
	got := fromGenAI(unspecified)
	if got.BlockReason != "" || got.Text != "Hello there" || got.FinishReason != chat.FinishStop || got.Candidates != 1 {
		t.Fatalf("ok response = %#v", got)
	}

	if got := fromGenAI(&genai.GenerateContentResponse{}); chat.Classify(got, nil) != chat.OutcomeEmpty {
		t.Fatalf("empty response = %#v", got)
	}
	if got := fromGenAI(nil); got == nil {
		t.Fatalf("nil response must map to an empty response")
	}
}

func TestGeminiFinish(t *testing.T) {
	cases := map[genai.FinishReason]chat.FinishReason{
		genai.FinishReasonStop:              chat.FinishStop,
		genai.FinishReasonMaxTokens:         chat.FinishMaxTokens,
		genai.FinishReasonSafety:            chat.FinishSafety,
		genai.FinishReasonProhibitedContent: chat.FinishSafety,
		genai.FinishReasonRecitation:        chat.FinishRecitation,
		genai.FinishReasonUnspecified:       chat.FinishUnspecified,
		genai.FinishReasonOther:             chat.FinishOther,
	}
	for in, want := range cases {
		if got := geminiFinish(in); got != want {
			t.Fatalf("geminiFinish(%s) = %s want %s", in, got, want)
		}
	}
}

func TestGeminiErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, chat.ErrAuth},
		{genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key."}, chat.ErrAuth},
		{fmt.Errorf("send: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}), chat.ErrQuota},
		{genai.APIError{Code: 503, Status: "UNAVAILABLE"}, chat.ErrTransport},
		{genai.APIError{Code: 400, Message: "bad request"}, chat.ErrUnknown},
		{errors.New("something odd"), chat.ErrUnknown},
	}
	for _, tc := range cases {
		if got := geminiError(tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("geminiError(%v) = %v want %v", tc.err, got, tc.want)
		}
	}
}

func TestToGenAIParts(t *testing.T) {
	parts, err := toGenAIParts([]models.Part{
		models.TextPart("look"),
		{Attachment: &models.Attachment{Name: "a.png", MIMEType: "image/png", Data: "AAEC"}},
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(parts) != 2 || parts[0].Text != "look" || parts[1].InlineData == nil {
		t.Fatalf("parts = %#v", parts)
	}
	if blob := parts[1].InlineData; blob.MIMEType != "image/png" || string(blob.Data) != "\x00\x01\x02" {
		t.Fatalf("blob = %#v", blob)
	}
	if _, err := toGenAIParts([]models.Part{{Attachment: &models.Attachment{Data: "%%%"}}}); err == nil {
		t.Fatalf("expected decode error")
	}

	history, err := toGenAIHistory([]models.ChatTurn{
		{Role: models.RoleUser, Parts: []models.Part{models.TextPart("hi")}},
		{Role: models.RoleAssistant, Parts: []models.Part{models.TextPart("hello")}},
	})
	if err != nil || len(history) != 2 || history[1].Role != string(genai.RoleModel) {
		t.Fatalf("history = %#v, %v", history, err)
	}
}
