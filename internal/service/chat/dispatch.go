package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"mamachat/internal/models"
)

const (
	// AttachmentAck is returned when the provider answers an image with no text.
	AttachmentAck = "I've received your image. I can describe what I see in general terms, but I can't diagnose anything from a picture, so please have any visual symptom reviewed in person by your healthcare provider."
	// EmptyResponseMarker stands in for a reply with no text.
	EmptyResponseMarker = "[empty response]"
	// TruncationNotice follows text that hit the length limit.
	TruncationNotice = "[My response was cut short because it reached the maximum length. Ask me to continue if you'd like more.]"
	// SafetyStopNotice replaces a reply halted by the provider's safety filter.
	SafetyStopNotice = "I had to stop this response because it touched on content I can't help with. Please try rephrasing your question, and for anything about your own health, talk with your doctor or healthcare provider."
	// CopyrightStopNotice replaces a reply halted for reciting protected material.
	CopyrightStopNotice = "I had to stop this response because it was too close to copyrighted material. Please try asking in a different way."
)

// BlockedNotice is the apology for a prompt the provider refused to answer.
func BlockedNotice(reason string) string {
	return fmt.Sprintf("I'm sorry, but I can't help with that request because it was blocked for %s reasons. Please try rephrasing your message, or contact your healthcare provider if you have a medical concern.", humanBlockReason(reason))
}

// StreamCallbacks receives a streamed reply. Exactly one of OnComplete or
// OnError fires per call.
type StreamCallbacks struct {
	OnChunk    func(text string) error
	OnError    func(err error)
	OnComplete func(out Outcome)
}

// Send forwards one user turn and returns the whole classified reply. Content
// outcomes never error; only provider failures and caller mistakes do.
func (s *Session) Send(ctx context.Context, parts []models.Part) (Outcome, error) {
	parts, err := s.begin(parts)
	if err != nil {
		return Outcome{}, err
	}
	resp, err := s.conv.Send(ctx, parts)
	if err != nil {
		return Outcome{Kind: OutcomeTransportError}, s.fail("send", err)
	}
	out := s.outcome(resp, Classify(resp, nil), hasAttachment(parts))
	s.commit(parts, out)
	return out, nil
}

// SendStream forwards one user turn and delivers the reply chunk by chunk.
// The first interruption signal stops text forwarding and yields a single
// notice; the merged reply is classified again once the stream ends.
func (s *Session) SendStream(ctx context.Context, parts []models.Part, cb StreamCallbacks) {
	parts, err := s.begin(parts)
	if err != nil {
		cb.error(err)
		return
	}

	var (
		latched   bool
		latchKind OutcomeKind
		agg       Response
		forwarded strings.Builder
		notice    string
	)
	emit := func(text string) error {
		if cb.OnChunk == nil {
			return nil
		}
		if err := cb.OnChunk(text); err != nil {
			return fmt.Errorf("deliver chunk: %w", err)
		}
		return nil
	}
	emitNotice := func(n string) error {
		notice = n
		if forwarded.Len() > 0 {
			n = "\n\n" + n
		}
		return emit(n)
	}

	for chunk, err := range s.conv.SendStream(ctx, parts) {
		if err != nil {
			s.release()
			cb.error(s.fail("send stream", err))
			return
		}
		if chunk == nil {
			continue
		}
		mergeResponse(&agg, chunk)
		kind := Classify(chunk, nil)
		if interrupts(kind) {
			latched, latchKind = true, kind
			if err := emitNotice(s.outcome(chunk, kind, false).Notice); err != nil {
				s.release()
				cb.error(err)
				return
			}
			break
		}
		if chunk.Text == "" {
			continue
		}
		forwarded.WriteString(chunk.Text)
		if err := emit(chunk.Text); err != nil {
			s.release()
			cb.error(err)
			return
		}
	}

	out := Outcome{Kind: latchKind, Text: forwarded.String(), Notice: notice}
	if latched {
		out.BlockReason = agg.BlockReason
	} else {
		agg.Text = forwarded.String()
		final := s.outcome(&agg, Classify(&agg, nil), hasAttachment(parts))
		out.Kind, out.BlockReason = final.Kind, final.BlockReason
		if final.Notice != "" {
			if err := emitNotice(final.Notice); err != nil {
				s.release()
				cb.error(err)
				return
			}
			out.Notice = notice
		}
	}
	s.commit(parts, out)
	if cb.OnComplete != nil {
		cb.OnComplete(out)
	}
}

func (cb StreamCallbacks) error(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// outcome shapes a classified response into user-visible text.
func (s *Session) outcome(resp *Response, kind OutcomeKind, withAttachment bool) Outcome {
	out := Outcome{Kind: kind}
	if resp != nil {
		out.Text = resp.Text
	}
	switch kind {
	case OutcomeBlocked:
		out.Text = ""
		out.BlockReason = resp.BlockReason
		out.Notice = BlockedNotice(resp.BlockReason)
	case OutcomePartialSafetyStop:
		out.Text = ""
		out.Notice = SafetyStopNotice
	case OutcomeCopyrightStop:
		out.Text = ""
		out.Notice = CopyrightStopNotice
	case OutcomeTruncated:
		out.Notice = TruncationNotice
	case OutcomeEmpty:
		out.Text = ""
		if withAttachment {
			out.Notice = AttachmentAck
		} else {
			out.Notice = EmptyResponseMarker
		}
	}
	return out
}

// begin validates a call and marks the session busy.
func (s *Session) begin(parts []models.Part) ([]models.Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, fmt.Errorf("%w: send in state %s", ErrInvalidSessionState, s.state)
	}
	if s.busy {
		return nil, ErrSessionBusy
	}
	kept := make([]models.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsEmpty() {
			continue
		}
		if a := p.Attachment; a != nil {
			if !allowedMIMETypes[a.MIMEType] {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedAttachment, a.MIMEType)
			}
			if int64(base64.StdEncoding.DecodedLen(len(a.Data))) > s.engine.opts.MaxAttachmentBytes+2 {
				return nil, ErrAttachmentTooLarge
			}
			if _, err := base64.StdEncoding.DecodeString(a.Data); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidAttachment, err)
			}
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return nil, ErrEmptyMessage
	}
	s.busy = true
	return kept, nil
}

// commit appends the exchange to the transcript and advances the state.
func (s *Session) commit(parts []models.Part, out Outcome) {
	now := s.engine.opts.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.transcript = append(s.transcript,
		models.ChatTurn{Role: models.RoleUser, Parts: parts, CreatedAt: now},
		models.ChatTurn{Role: models.RoleAssistant, Parts: []models.Part{models.TextPart(out.Message())}, CreatedAt: now},
	)
	if out.Kind != OutcomeBlocked {
		s.blocks = 0
		return
	}
	s.blocks++
	if s.blocks >= s.engine.opts.BlockLimit && s.state == StateActive {
		log.Printf("chat: session blocked session=%s consecutive=%d", s.id, s.blocks)
		s.state = StateBlockedTerminal
	}
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// fail translates a provider failure, logs it and applies its state effect.
func (s *Session) fail(op string, err error) error {
	perr := translateError(op, s.id, err)
	log.Printf("chat: %s failed session=%s: %v", op, s.id, perr)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if errors.Is(perr, ErrAuth) {
		s.state = StateErrorTerminal
	}
	return perr
}

func mergeResponse(agg, chunk *Response) {
	agg.Text += chunk.Text
	if chunk.BlockReason != "" {
		agg.BlockReason = chunk.BlockReason
	}
	if chunk.FinishReason != FinishUnspecified {
		agg.FinishReason = chunk.FinishReason
	}
	if chunk.Candidates > agg.Candidates {
		agg.Candidates = chunk.Candidates
	}
}

func hasAttachment(parts []models.Part) bool {
	for _, p := range parts {
		if p.Attachment != nil {
			return true
		}
	}
	return false
}
