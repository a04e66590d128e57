package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mamachat/internal/models"
)

func pngPart() models.Part {
	return models.Part{Attachment: &models.Attachment{Name: "a.png", MIMEType: "image/png", Data: "iVBORw0KGgo="}}
}

func TestSendPassesOKTextThrough(t *testing.T) {
	reply := "Swelling in the ankles is common later in pregnancy. Resting with your feet up can help."
	p := &fakeProvider{replies: []*Response{{Text: reply, FinishReason: FinishStop, Candidates: 1}}}
	s := openSession(t, p)

	out, err := s.Send(context.Background(), []models.Part{models.TextPart("My ankles are swollen a lot, should I worry?")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.Kind != OutcomeOK || out.Message() != reply || out.Notice != "" {
		t.Fatalf("OK reply altered: %#v", out)
	}
	turns := s.Transcript()
	if len(turns) != 4 || turns[3].Text() != reply {
		t.Fatalf("transcript not appended: %#v", turns)
	}
}

func TestSendShapesContentOutcomes(t *testing.T) {
	cases := []struct {
		name string
		resp *Response
		kind OutcomeKind
		want string
	}{
		{"blocked", &Response{BlockReason: "PROHIBITED_CONTENT"}, OutcomeBlocked, BlockedNotice("PROHIBITED_CONTENT")},
		{"truncated", &Response{Text: "Part one", FinishReason: FinishMaxTokens, Candidates: 1}, OutcomeTruncated, "Part one\n\n" + TruncationNotice},
		{"safety", &Response{Text: "half", FinishReason: FinishSafety, Candidates: 1}, OutcomePartialSafetyStop, SafetyStopNotice},
		{"recitation", &Response{Text: "verse", FinishReason: FinishRecitation, Candidates: 1}, OutcomeCopyrightStop, CopyrightStopNotice},
		{"empty", &Response{FinishReason: FinishStop}, OutcomeEmpty, EmptyResponseMarker},
	}
	for _, tc := range cases {
		p := &fakeProvider{replies: []*Response{tc.resp}}
		s := openSession(t, p)
		out, err := s.Send(context.Background(), []models.Part{models.TextPart("hello")})
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if out.Kind != tc.kind || out.Message() != tc.want {
			t.Fatalf("%s: got %s %q", tc.name, out.Kind, out.Message())
		}
	}
	if !strings.Contains(BlockedNotice("PROHIBITED_CONTENT"), "prohibited content") {
		t.Fatalf("blocked notice should name the category")
	}
}

func TestSendEmptyWithAttachmentAcknowledges(t *testing.T) {
	p := &fakeProvider{replies: []*Response{{FinishReason: FinishStop}}}
	s := openSession(t, p)
	out, err := s.Send(context.Background(), []models.Part{pngPart()})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.Message() != AttachmentAck || out.Kind != OutcomeEmpty {
		t.Fatalf("expected acknowledgement, got %#v", out)
	}
}

func TestSendValidatesCall(t *testing.T) {
	s := openSession(t, &fakeProvider{})
	if _, err := s.Send(context.Background(), nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := s.Send(context.Background(), []models.Part{{}, models.TextPart("")}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage for blank parts, got %v", err)
	}
	bad := models.Part{Attachment: &models.Attachment{MIMEType: "application/pdf", Data: "AAAA"}}
	if _, err := s.Send(context.Background(), []models.Part{bad}); !errors.Is(err, ErrUnsupportedAttachment) {
		t.Fatalf("expected ErrUnsupportedAttachment, got %v", err)
	}
	garbled := models.Part{Attachment: &models.Attachment{MIMEType: "image/png", Data: "!!!"}}
	if _, err := s.Send(context.Background(), []models.Part{garbled}); !errors.Is(err, ErrInvalidAttachment) {
		t.Fatalf("expected ErrInvalidAttachment, got %v", err)
	}
	if len(s.Transcript()) != 2 {
		t.Fatalf("rejected calls must not touch the transcript")
	}

	unopened := NewEngine(&fakeProvider{}, Options{}).NewSession()
	if _, err := unopened.Send(context.Background(), []models.Part{models.TextPart("hi")}); !errors.Is(err, ErrInvalidSessionState) {
		t.Fatalf("expected ErrInvalidSessionState, got %v", err)
	}
}

func TestSendProviderFailures(t *testing.T) {
	p := &fakeProvider{sendErr: NewProviderError(KindQuota, errors.New("429"))}
	s := openSession(t, p)
	if _, err := s.Send(context.Background(), []models.Part{models.TextPart("hi")}); !errors.Is(err, ErrQuota) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if s.State() != StateActive || len(s.Transcript()) != 2 {
		t.Fatalf("quota failure should leave session active and transcript untouched")
	}

	p.sendErr = NewProviderError(KindAuth, errors.New("403"))
	_, err := s.Send(context.Background(), []models.Part{models.TextPart("hi")})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Op != "send" || pe.SessionID != s.ID() {
		t.Fatalf("error not annotated: %v", err)
	}
	if s.State() != StateErrorTerminal {
		t.Fatalf("auth failure should end the session, state=%s", s.State())
	}
	if _, err := s.Send(context.Background(), []models.Part{models.TextPart("hi")}); !errors.Is(err, ErrInvalidSessionState) {
		t.Fatalf("terminal session should reject sends, got %v", err)
	}
}

func TestConsecutiveBlocksEndSession(t *testing.T) {
	blocked := &Response{BlockReason: "SAFETY"}
	p := &fakeProvider{replies: []*Response{blocked, {Text: "ok", FinishReason: FinishStop}, blocked, blocked}}
	s := NewEngine(p, Options{BlockLimit: 2}).NewSession()
	if err := s.Open(context.Background(), OpenRequest{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Send(context.Background(), []models.Part{models.TextPart("x")}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if s.State() != StateActive {
			t.Fatalf("session ended early after send %d", i)
		}
	}
	if _, err := s.Send(context.Background(), []models.Part{models.TextPart("x")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if s.State() != StateBlockedTerminal {
		t.Fatalf("state = %s", s.State())
	}
}

type streamRecorder struct {
	chunks    []string
	completed []Outcome
	errs      []error
}

func (r *streamRecorder) callbacks() StreamCallbacks {
	return StreamCallbacks{
		OnChunk:    func(text string) error { r.chunks = append(r.chunks, text); return nil },
		OnError:    func(err error) { r.errs = append(r.errs, err) },
		OnComplete: func(out Outcome) { r.completed = append(r.completed, out) },
	}
}

func TestSendStreamSingleNoticeOnMidStreamBlock(t *testing.T) {
	p := &fakeProvider{chunks: []*Response{
		{Text: "one "},
		{Text: "two ", BlockReason: "SAFETY"},
		{Text: "three ", BlockReason: "SAFETY"},
		{Text: "four ", FinishReason: FinishSafety},
		{Text: "five", FinishReason: FinishStop},
	}}
	s := openSession(t, p)
	rec := &streamRecorder{}
	s.SendStream(context.Background(), []models.Part{models.TextPart("hi")}, rec.callbacks())

	if len(rec.errs) != 0 || len(rec.completed) != 1 {
		t.Fatalf("expected exactly one completion, got %d completions %d errors", len(rec.completed), len(rec.errs))
	}
	notices := 0
	for _, c := range rec.chunks {
		for _, banned := range []string{"two", "three", "four", "five"} {
			if strings.Contains(c, banned) {
				t.Fatalf("suppressed text %q forwarded", banned)
			}
		}
		if strings.Contains(c, "blocked for safety reasons") {
			notices++
		}
	}
	if notices != 1 || len(rec.chunks) != 2 || rec.chunks[0] != "one " {
		t.Fatalf("chunks = %q", rec.chunks)
	}
	if out := rec.completed[0]; out.Kind != OutcomeBlocked || out.Text != "one " {
		t.Fatalf("outcome = %#v", out)
	}
}

func TestSendStreamFinalInspection(t *testing.T) {
	p := &fakeProvider{chunks: []*Response{{Text: "Here is "}, {Text: "a long answer"}, {FinishReason: FinishMaxTokens}}}
	s := openSession(t, p)
	rec := &streamRecorder{}
	s.SendStream(context.Background(), []models.Part{models.TextPart("hi")}, rec.callbacks())
	if len(rec.completed) != 1 || rec.completed[0].Kind != OutcomeTruncated {
		t.Fatalf("expected truncated completion, got %#v", rec.completed)
	}
	if out := rec.completed[0]; out.Notice != TruncationNotice || out.Message() != "Here is a long answer\n\n"+TruncationNotice {
		t.Fatalf("outcome = %#v", out)
	}
	if last := rec.chunks[len(rec.chunks)-1]; last != "\n\n"+TruncationNotice {
		t.Fatalf("last chunk = %q", last)
	}
	turns := s.Transcript()
	if got := turns[len(turns)-1].Text(); got != "Here is a long answer\n\n"+TruncationNotice {
		t.Fatalf("assistant turn = %q", got)
	}
}

func TestSendStreamEmptyTurnNeverSilent(t *testing.T) {
	for _, tc := range []struct {
		parts []models.Part
		want  string
	}{
		{[]models.Part{pngPart()}, AttachmentAck},
		{[]models.Part{models.TextPart("hi")}, EmptyResponseMarker},
	} {
		p := &fakeProvider{chunks: []*Response{{FinishReason: FinishStop}}}
		s := openSession(t, p)
		rec := &streamRecorder{}
		s.SendStream(context.Background(), tc.parts, rec.callbacks())
		if len(rec.chunks) != 1 || rec.chunks[0] != tc.want || len(rec.completed) != 1 {
			t.Fatalf("chunks = %q completed=%d", rec.chunks, len(rec.completed))
		}
		if got := rec.completed[0].Message(); got != tc.want {
			t.Fatalf("completion message = %q, want %q", got, tc.want)
		}
		turns := s.Transcript()
		if last := turns[len(turns)-1]; last.Role != models.RoleAssistant || last.Text() != tc.want {
			t.Fatalf("assistant turn = %q", last.Text())
		}
	}
}

func TestSendStreamErrorsExactlyOnce(t *testing.T) {
	p := &fakeProvider{chunks: []*Response{{Text: "partial"}}, streamErr: NewProviderError(KindTransport, errors.New("reset"))}
	s := openSession(t, p)
	rec := &streamRecorder{}
	s.SendStream(context.Background(), []models.Part{models.TextPart("hi")}, rec.callbacks())
	if len(rec.errs) != 1 || len(rec.completed) != 0 {
		t.Fatalf("errors=%d completions=%d", len(rec.errs), len(rec.completed))
	}
	if !errors.Is(rec.errs[0], ErrTransport) {
		t.Fatalf("unexpected error %v", rec.errs[0])
	}
	if len(s.Transcript()) != 2 || s.State() != StateActive {
		t.Fatalf("failed stream must not append turns")
	}

	rec = &streamRecorder{}
	s.SendStream(context.Background(), nil, rec.callbacks())
	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], ErrEmptyMessage) || len(rec.completed) != 0 {
		t.Fatalf("empty stream call should fail through OnError")
	}
}

func TestSendStreamChunkConsumerAbort(t *testing.T) {
	p := &fakeProvider{chunks: []*Response{{Text: "a"}, {Text: "b"}}}
	s := openSession(t, p)
	stop := errors.New("client gone")
	var errs []error
	completed := false
	s.SendStream(context.Background(), []models.Part{models.TextPart("hi")}, StreamCallbacks{
		OnChunk:    func(string) error { return stop },
		OnError:    func(err error) { errs = append(errs, err) },
		OnComplete: func(Outcome) { completed = true },
	})
	if completed || len(errs) != 1 || !errors.Is(errs[0], stop) {
		t.Fatalf("consumer error should abort via OnError: %v", errs)
	}
	if s.State() != StateActive {
		t.Fatalf("session should stay usable")
	}
	if _, err := s.Send(context.Background(), []models.Part{models.TextPart("again")}); err != nil {
		t.Fatalf("session left busy: %v", err)
	}
}
