package models

import "time"

// Role tags who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment is a binary payload already encoded for a provider.
type Attachment struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64, standard encoding
}

// Part is one ordered piece of a turn: text or an inline attachment.
type Part struct {
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// TextPart wraps plain text into a Part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// IsEmpty reports whether the part carries neither text nor data.
func (p Part) IsEmpty() bool {
	return p.Text == "" && (p.Attachment == nil || p.Attachment.Data == "")
}

// ChatTurn is one immutable exchange unit of a live session transcript.
type ChatTurn struct {
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

// Text joins the text parts of the turn.
func (t ChatTurn) Text() string {
	var out string
	for _, p := range t.Parts {
		if p.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += p.Text
	}
	return out
}

// AttachmentCount returns how many inline attachments the turn carries.
func (t ChatTurn) AttachmentCount() int {
	n := 0
	for _, p := range t.Parts {
		if p.Attachment != nil {
			n++
		}
	}
	return n
}

// OutcomeSeed marks persisted greeting turns that were not live exchanges.
const OutcomeSeed = "SEED"

// Message is a transcript row persisted for history views.
type Message struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Attachments int       `json:"attachments"`
	Outcome     string    `json:"outcome,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
