package chat

import "strings"

// OutcomeKind is the closed taxonomy of generation results.
type OutcomeKind string

const (
	OutcomeOK                OutcomeKind = "OK"
	OutcomePartialSafetyStop OutcomeKind = "PARTIAL_SAFETY_STOP"
	OutcomeBlocked           OutcomeKind = "BLOCKED"
	OutcomeTruncated         OutcomeKind = "TRUNCATED"
	OutcomeCopyrightStop     OutcomeKind = "COPYRIGHT_STOP"
	OutcomeEmpty             OutcomeKind = "EMPTY"
	OutcomeTransportError    OutcomeKind = "TRANSPORT_ERROR"
)

// Outcome is the tagged result of one generation attempt.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	// Text is the generated text, possibly partial or empty.
	Text string `json:"text"`
	// Notice is the explanatory text appended for the end user.
	Notice string `json:"notice,omitempty"`
	// BlockReason is the provider category for BLOCKED outcomes.
	BlockReason string `json:"block_reason,omitempty"`
}

// Message is what the user sees: the text followed by any notice.
func (o Outcome) Message() string {
	switch {
	case o.Notice == "":
		return o.Text
	case o.Text == "":
		return o.Notice
	}
	return o.Text + "\n\n" + o.Notice
}

// Classify maps a provider response, or the error that replaced it, onto an
// outcome kind. Block signals win over finish signals, which win over emptiness.
func Classify(resp *Response, err error) OutcomeKind {
	if err != nil {
		return OutcomeTransportError
	}
	if resp == nil {
		return OutcomeEmpty
	}
	if resp.BlockReason != "" {
		return OutcomeBlocked
	}
	switch resp.FinishReason {
	case FinishSafety:
		return OutcomePartialSafetyStop
	case FinishMaxTokens:
		return OutcomeTruncated
	case FinishRecitation:
		return OutcomeCopyrightStop
	}
	if resp.Text == "" {
		return OutcomeEmpty
	}
	return OutcomeOK
}

// interrupts reports whether kind stops text forwarding during a stream.
func interrupts(kind OutcomeKind) bool {
	switch kind {
	case OutcomeBlocked, OutcomePartialSafetyStop, OutcomeCopyrightStop:
		return true
	}
	return false
}

// humanBlockReason turns a provider category such as PROHIBITED_CONTENT into
// "prohibited content".
func humanBlockReason(reason string) string {
	r := strings.ToLower(strings.TrimSpace(reason))
	r = strings.TrimPrefix(r, "blocked_reason_")
	r = strings.ReplaceAll(r, "_", " ")
	if r == "" || r == "unspecified" || r == "other" {
		return "policy"
	}
	return r
}
