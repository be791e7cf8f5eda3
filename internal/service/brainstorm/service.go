package brainstorm

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Markizx/neural-chat-sub000/internal/analysis/transcript"
	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/ai"
	"github.com/Markizx/neural-chat-sub000/internal/service/stream"
	"github.com/Markizx/neural-chat-sub000/internal/service/summary"
)

const (
	defaultMaxTurns     = 10
	defaultTurnsLimit   = 50
	defaultTurnDuration = 30
)

// errTurnDiscarded aborts an append whose session moved on while the turn was generated.
var errTurnDiscarded = errors.New("turn discarded")

// Config is passed in at construction; the scheduler reads no global state.
type Config struct {
	DefaultMaxTurns     int
	MaxTurnsLimit       int
	DefaultTurnDuration int
	// ContinuationDelay separates consecutive turns of one session.
	ContinuationDelay time.Duration
	// TurnTimeout bounds a single backend call. Zero disables the bound.
	TurnTimeout  time.Duration
	ChunkWords   int
	ChunkDelay   time.Duration
	MaxTokens    int
	DefaultKindA string
	DefaultKindB string
}

// Publisher fans events out to a session topic.
type Publisher interface {
	Publish(sessionID string, evt brainstorm.Event) int
}

// Summarizer derives summary and insights from a finished transcript.
type Summarizer interface {
	Summarize(ctx context.Context, session *brainstorm.Session) summary.Result
}

// ParticipantConfig overrides preset fields for either slot. Empty fields keep the preset.
type ParticipantConfig struct {
	A *brainstorm.Participant `json:"A,omitempty"`
	B *brainstorm.Participant `json:"B,omitempty"`
}

// StartInput describes a new session.
type StartInput struct {
	UserID       string
	ChatID       string
	Topic        string
	Description  string
	Participants ParticipantConfig
	Settings     brainstorm.Settings
	Profile      ai.UserProfile
}

// SummaryView is the derived data of a finished session.
type SummaryView struct {
	Summary  string           `json:"summary"`
	Insights []string         `json:"insights"`
	Stats    transcript.Stats `json:"stats"`
}

type chain struct {
	rerun bool
}

// Service owns the session state machine and the continuation chains.
type Service struct {
	store      brainstorm.Store
	registry   *ai.Registry
	normalizer *stream.Normalizer
	publisher  Publisher
	summarizer Summarizer
	prompts    *ai.PromptManager
	cfg        Config

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	chains map[string]*chain
	closed bool
	wg     sync.WaitGroup
}

// NewService wires the scheduler to its collaborators.
func NewService(store brainstorm.Store, registry *ai.Registry, publisher Publisher, summarizer Summarizer, cfg Config) *Service {
	if cfg.DefaultMaxTurns <= 0 {
		cfg.DefaultMaxTurns = defaultMaxTurns
	}
	if cfg.MaxTurnsLimit <= 0 {
		cfg.MaxTurnsLimit = defaultTurnsLimit
	}
	if cfg.DefaultMaxTurns > cfg.MaxTurnsLimit {
		cfg.DefaultMaxTurns = cfg.MaxTurnsLimit
	}
	if cfg.DefaultTurnDuration <= 0 {
		cfg.DefaultTurnDuration = defaultTurnDuration
	}
	if cfg.DefaultKindA == "" {
		cfg.DefaultKindA = ai.KindArk
	}
	if cfg.DefaultKindB == "" {
		cfg.DefaultKindB = cfg.DefaultKindA
	}
	if summarizer == nil {
		summarizer = summary.NewService(nil, summary.Config{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:      store,
		registry:   registry,
		normalizer: stream.NewNormalizer(cfg.ChunkWords, cfg.ChunkDelay),
		publisher:  publisher,
		summarizer: summarizer,
		prompts:    ai.NewPromptManager(),
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		chains:     make(map[string]*chain),
	}
}

// Start creates an active session, appends the opening user message and
// triggers the first turn. The turn itself is generated in the background.
func (s *Service) Start(ctx context.Context, in StartInput) (*brainstorm.Session, error) {
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return nil, brainstorm.ErrTopicRequired
	}

	settings, err := s.resolveSettings(in.Settings)
	if err != nil {
		return nil, err
	}
	participants, err := s.resolveParticipants(in.Participants, settings.Format)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(in.Description)
	promptA := s.prompts.BuildSystemPrompt(participants.A, participants.B, topic, description, settings, in.Profile)
	promptB := s.prompts.BuildSystemPrompt(participants.B, participants.A, topic, description, settings, in.Profile)
	participants.A.SystemPrompt = promptA
	participants.B.SystemPrompt = promptB

	opening := topic
	if description != "" {
		opening += "\n\n" + description
	}

	now := time.Now().UTC()
	session := &brainstorm.Session{
		ID:           uuid.NewString(),
		ChatID:       in.ChatID,
		UserID:       in.UserID,
		Topic:        topic,
		Description:  description,
		Participants: participants,
		Messages: []brainstorm.Message{{
			ID:          uuid.NewString(),
			Speaker:     brainstorm.SpeakerUser,
			Content:     opening,
			Attachments: []brainstorm.Attachment{},
			Timestamp:   now,
		}},
		Status:    brainstorm.StatusActive,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	log.Printf("[brainstorm] session started id=%s format=%s maxTurns=%d A=%s B=%s",
		session.ID, settings.Format, settings.MaxTurns, participants.A.Kind, participants.B.Kind)

	s.publish(brainstorm.StatusEvent(session.ID, session.Status))
	s.trigger(session.ID)
	return session, nil
}

// SubmitUserMessage appends a user turn to an active session. It does not
// count toward maxTurns.
func (s *Service) SubmitUserMessage(ctx context.Context, sessionID, content string, attachments []brainstorm.Attachment) (*brainstorm.Message, *brainstorm.Session, error) {
	if strings.TrimSpace(content) == "" && len(attachments) == 0 {
		return nil, nil, brainstorm.ErrEmptyMessage
	}
	if attachments == nil {
		attachments = []brainstorm.Attachment{}
	}

	msg := brainstorm.Message{
		ID:          uuid.NewString(),
		Speaker:     brainstorm.SpeakerUser,
		Content:     content,
		Attachments: attachments,
		Timestamp:   time.Now().UTC(),
	}

	session, err := s.store.Update(ctx, sessionID, func(cur *brainstorm.Session) error {
		if cur.Status != brainstorm.StatusActive {
			return brainstorm.ErrSessionNotActive
		}
		cur.Messages = append(cur.Messages, msg)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.trigger(sessionID)
	return &msg, session, nil
}

// Pause stops automatic continuation after the turn in flight, if any.
func (s *Service) Pause(ctx context.Context, sessionID string) (*brainstorm.Session, error) {
	session, err := s.store.Update(ctx, sessionID, func(cur *brainstorm.Session) error {
		if cur.Status != brainstorm.StatusActive {
			return brainstorm.ErrSessionNotActive
		}
		cur.Status = brainstorm.StatusPaused
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[brainstorm] session paused id=%s turn=%d", sessionID, session.CurrentTurn)
	s.publish(brainstorm.StatusEvent(sessionID, session.Status))
	return session, nil
}

// Resume reactivates a paused session and restarts its chain.
func (s *Service) Resume(ctx context.Context, sessionID string) (*brainstorm.Session, error) {
	session, err := s.store.Update(ctx, sessionID, func(cur *brainstorm.Session) error {
		if cur.Status != brainstorm.StatusPaused {
			return brainstorm.ErrSessionNotPaused
		}
		cur.Status = brainstorm.StatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[brainstorm] session resumed id=%s turn=%d", sessionID, session.CurrentTurn)
	s.publish(brainstorm.StatusEvent(sessionID, session.Status))
	s.trigger(sessionID)
	return session, nil
}

// Stop completes the session and summarizes it before returning. A turn
// still in flight is discarded when it finishes.
func (s *Service) Stop(ctx context.Context, sessionID string) (*brainstorm.Session, error) {
	session, err := s.store.Update(ctx, sessionID, func(cur *brainstorm.Session) error {
		if cur.Status.Terminal() {
			return brainstorm.ErrSessionAlreadyCompleted
		}
		cur.MarkCompleted(time.Now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[brainstorm] session stopped id=%s turn=%d", sessionID, session.CurrentTurn)
	s.publish(brainstorm.StatusEvent(sessionID, session.Status))

	result := s.summarizer.Summarize(ctx, session)
	summarized, err := s.storeSummary(ctx, sessionID, result, true)
	if err != nil {
		log.Printf("[brainstorm] persist summary failed id=%s: %v", sessionID, err)
		return session, nil
	}
	return summarized, nil
}

// Get returns the current session document.
func (s *Service) Get(ctx context.Context, sessionID string) (*brainstorm.Session, error) {
	return s.store.Get(ctx, sessionID)
}

// Summary returns summary, insights and stats of a finished session,
// deriving and persisting the summary when it is still missing.
func (s *Service) Summary(ctx context.Context, sessionID string) (*SummaryView, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.Terminal() {
		return nil, brainstorm.ErrSessionNotCompleted
	}

	if strings.TrimSpace(session.Summary) == "" {
		result := s.summarizer.Summarize(ctx, session)
		updated, err := s.storeSummary(ctx, sessionID, result, false)
		if err != nil {
			log.Printf("[brainstorm] persist summary failed id=%s: %v", sessionID, err)
			session.Summary, session.Insights = result.Summary, result.Insights
		} else {
			session = updated
		}
	}

	insights := session.Insights
	if insights == nil {
		insights = []string{}
	}
	return &SummaryView{
		Summary:  session.Summary,
		Insights: insights,
		Stats:    transcript.Compute(session),
	}, nil
}

// Export renders the session in the requested format.
func (s *Service) Export(ctx context.Context, sessionID, format string) (*summary.Document, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return summary.Export(session, format)
}

// Close cancels running chains and waits for them to exit.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) storeSummary(ctx context.Context, sessionID string, result summary.Result, overwrite bool) (*brainstorm.Session, error) {
	return s.store.Update(ctx, sessionID, func(cur *brainstorm.Session) error {
		if !overwrite && strings.TrimSpace(cur.Summary) != "" {
			return nil
		}
		cur.Summary = result.Summary
		cur.Insights = append([]string(nil), result.Insights...)
		return nil
	})
}

func (s *Service) resolveSettings(in brainstorm.Settings) (brainstorm.Settings, error) {
	out := in
	switch {
	case out.MaxTurns < 0:
		return out, brainstorm.Errorf(brainstorm.ErrInvalidSettings, "maxTurns must be at least 1")
	case out.MaxTurns == 0:
		out.MaxTurns = s.cfg.DefaultMaxTurns
	case out.MaxTurns > s.cfg.MaxTurnsLimit:
		out.MaxTurns = s.cfg.MaxTurnsLimit
	}

	if out.TurnDuration < 0 {
		return out, brainstorm.Errorf(brainstorm.ErrInvalidSettings, "turnDuration must not be negative")
	}
	if out.TurnDuration == 0 {
		out.TurnDuration = s.cfg.DefaultTurnDuration
	}

	if out.ModerationLevel == "" {
		out.ModerationLevel = brainstorm.ModerationMedium
	}
	if !out.ModerationLevel.Valid() {
		return out, brainstorm.Errorf(brainstorm.ErrInvalidSettings, "unknown moderationLevel: %s", out.ModerationLevel)
	}

	if out.Format == "" {
		out.Format = brainstorm.FormatBrainstorm
	}
	if !out.Format.Valid() {
		return out, brainstorm.Errorf(brainstorm.ErrInvalidSettings, "unknown format: %s", out.Format)
	}
	return out, nil
}

func (s *Service) resolveParticipants(cfg ParticipantConfig, format brainstorm.Format) (brainstorm.Participants, error) {
	preset := brainstorm.PresetFor(format)
	out := brainstorm.Participants{
		A: mergeParticipant(preset.A, cfg.A, s.cfg.DefaultKindA),
		B: mergeParticipant(preset.B, cfg.B, s.cfg.DefaultKindB),
	}

	for _, slot := range []brainstorm.Speaker{brainstorm.SpeakerA, brainstorm.SpeakerB} {
		kind := out.Get(slot).Kind
		if !s.registry.Has(kind) {
			return out, brainstorm.Errorf(brainstorm.ErrBackendUnavailable,
				"no ai backend for participant %s (kind %q); available: %s",
				slot, kind, strings.Join(s.registry.Kinds(), ", "))
		}
	}
	return out, nil
}

func mergeParticipant(base brainstorm.Participant, override *brainstorm.Participant, defaultKind string) brainstorm.Participant {
	out := base
	out.Kind = defaultKind
	if override == nil {
		return out
	}
	if v := strings.TrimSpace(override.Kind); v != "" {
		out.Kind = v
	}
	if v := strings.TrimSpace(override.Name); v != "" {
		out.Name = v
	}
	if v := strings.TrimSpace(override.ModelID); v != "" {
		out.ModelID = v
	}
	if v := strings.TrimSpace(override.SystemPrompt); v != "" {
		out.SystemPrompt = v
	}
	return out
}

func (s *Service) publish(evt brainstorm.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(evt.SessionID, evt)
}
