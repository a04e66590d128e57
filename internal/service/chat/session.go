package chat

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mamachat/internal/models"
)

// State is a session lifecycle state.
type State string

const (
	StateUninitialized   State = "UNINITIALIZED"
	StateOpening         State = "OPENING"
	StateActive          State = "ACTIVE"
	StateBlockedTerminal State = "BLOCKED_TERMINAL"
	StateErrorTerminal   State = "ERROR_TERMINAL"
)

// DefaultBlockLimit is how many consecutive blocked replies end a session.
const DefaultBlockLimit = 3

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	BlockLimit         int
	MaxAttachmentBytes int64
	Now                func() time.Time
}

// Engine opens sessions against one provider.
type Engine struct {
	provider ChatProvider
	opts     Options
}

// NewEngine returns an engine for provider. A nil provider is accepted so that
// a missing credential surfaces as ErrConfiguration when a session opens.
func NewEngine(provider ChatProvider, opts Options) *Engine {
	if opts.BlockLimit <= 0 {
		opts.BlockLimit = DefaultBlockLimit
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{provider: provider, opts: opts}
}

// ProviderName returns the backing provider name, or "" when unconfigured.
func (e *Engine) ProviderName() string {
	if e.provider == nil {
		return ""
	}
	return e.provider.Name()
}

// OpenRequest is the snapshot a session is opened with.
type OpenRequest struct {
	Prefs   models.SessionPrefs
	Profile *models.UserProfile
	Context models.ContextSnapshot
}

// Session is one live conversation. Calls must not overlap; an overlapping
// call fails with ErrSessionBusy.
type Session struct {
	id     string
	engine *Engine

	mu         sync.Mutex
	state      State
	busy       bool
	blocks     int
	transcript []models.ChatTurn
	conv       ProviderSession
}

// NewSession returns an UNINITIALIZED session.
func (e *Engine) NewSession() *Session {
	return &Session{id: uuid.NewString(), engine: e, state: StateUninitialized}
}

// Open creates a session and opens it.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	s := e.NewSession()
	if err := s.Open(ctx, req); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the visible turns, seed turns first.
func (s *Session) Transcript() []models.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatTurn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Open composes the system prompt, seeds the greeting exchange and opens the
// provider session. On failure the session stays UNINITIALIZED.
func (s *Session) Open(ctx context.Context, req OpenRequest) error {
	provider := s.engine.provider
	if provider == nil {
		return ErrConfiguration
	}

	s.mu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: open in state %s", ErrInvalidSessionState, state)
	}
	s.state = StateOpening
	s.mu.Unlock()

	prompt := Compose(req.Prefs, req.Profile, req.Context)
	uc := ResolveUserContext(req.Prefs, req.Profile)
	now := s.engine.opts.Now()
	seed := []models.ChatTurn{
		{Role: models.RoleUser, Parts: []models.Part{models.TextPart(SeedUserText(uc))}, CreatedAt: now},
		{Role: models.RoleAssistant, Parts: []models.Part{models.TextPart(WelcomeText(uc))}, CreatedAt: now},
	}

	start := StartRequest{SessionID: s.id, History: seed}
	if supportsSystemInstruction(provider) {
		start.SystemInstruction = prompt
	} else {
		start.History = append([]models.ChatTurn{
			{Role: models.RoleUser, Parts: []models.Part{models.TextPart(prompt)}, CreatedAt: now},
			{Role: models.RoleAssistant, Parts: []models.Part{models.TextPart(instructionAck)}, CreatedAt: now},
		}, seed...)
	}

	conv, err := provider.Open(ctx, start)
	if err != nil {
		perr := translateError("open", s.id, err)
		log.Printf("chat: open session failed session=%s provider=%s: %v", s.id, provider.Name(), perr)
		s.mu.Lock()
		s.state = StateUninitialized
		s.mu.Unlock()
		return perr
	}

	s.mu.Lock()
	s.conv = conv
	s.transcript = seed
	s.state = StateActive
	s.mu.Unlock()
	return nil
}

const instructionAck = "Understood. I will follow these instructions for the whole conversation."

// SeedUserText is the first-person opener derived from the session input.
func SeedUserText(uc UserContext) string {
	var sentences []string
	if uc.Feeling != "" {
		sentences = append(sentences, fmt.Sprintf("Hi, I'm feeling %s today.", strings.ToLower(uc.Feeling)))
	} else {
		sentences = append(sentences, "Hi there.")
	}
	if uc.WeeksPregnant != nil {
		sentences = append(sentences, fmt.Sprintf("I'm %s pregnant.", weeksPhrase(*uc.WeeksPregnant)))
	}
	if uc.SpecificConcerns != "" {
		sentences = append(sentences, fmt.Sprintf("I'd like to talk about %s.", uc.SpecificConcerns))
	} else {
		sentences = append(sentences, "I'd like to talk about my pregnancy.")
	}
	return strings.Join(sentences, " ")
}

// WelcomeText is the seeded assistant greeting. It names the user, echoes
// their feeling and restates the disclaimer.
func WelcomeText(uc UserContext) string {
	name := uc.Name
	if name == "" {
		name = "there"
	}
	sentences := []string{fmt.Sprintf("Hello %s, it's lovely to meet you!", name)}
	if uc.Feeling != "" {
		sentences = append(sentences, fmt.Sprintf("Thank you for telling me you're feeling %s today.", strings.ToLower(uc.Feeling)))
	}
	if uc.WeeksPregnant != nil {
		sentences = append(sentences, fmt.Sprintf("At %s there is a lot happening, and I'm happy to walk through it with you.", weeksPhrase(*uc.WeeksPregnant)))
	}
	sentences = append(sentences,
		"I can share general information and support, but I can't give medical advice.",
		"Please always check with your doctor or healthcare provider about anything specific to your health.",
		"What would you like to talk about?")
	return strings.Join(sentences, " ")
}

func weeksPhrase(weeks int) string {
	if weeks == 1 {
		return "1 week"
	}
	return strconv.Itoa(weeks) + " weeks"
}
