package brainstorm

import "time"

// Status governs whether a session may keep producing turns.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Speaker identifies the author of a message.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerA    Speaker = "A"
	SpeakerB    Speaker = "B"
)

// IsAI reports whether the speaker is one of the two participants.
func (s Speaker) IsAI() bool {
	return s == SpeakerA || s == SpeakerB
}

// Opponent returns the other participant slot.
func (s Speaker) Opponent() Speaker {
	if s == SpeakerA {
		return SpeakerB
	}
	return SpeakerA
}

// Format selects the conversational style both participants follow.
type Format string

const (
	FormatBrainstorm Format = "brainstorm"
	FormatDebate     Format = "debate"
	FormatAnalysis   Format = "analysis"
	FormatCreative   Format = "creative"
)

// Valid reports whether the format is one of the known styles.
func (f Format) Valid() bool {
	switch f {
	case FormatBrainstorm, FormatDebate, FormatAnalysis, FormatCreative:
		return true
	}
	return false
}

// ModerationLevel controls how tightly participants are asked to stay on topic.
type ModerationLevel string

const (
	ModerationLow    ModerationLevel = "low"
	ModerationMedium ModerationLevel = "medium"
	ModerationHigh   ModerationLevel = "high"
)

// Valid reports whether the level is known.
func (m ModerationLevel) Valid() bool {
	switch m {
	case ModerationLow, ModerationMedium, ModerationHigh:
		return true
	}
	return false
}

// Participant configures one AI slot. Kind selects the backend adapter.
type Participant struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	ModelID      string `json:"modelId,omitempty"`
	SystemPrompt string `json:"systemPrompt"`
}

// Participants holds exactly the two named slots.
type Participants struct {
	A Participant `json:"A"`
	B Participant `json:"B"`
}

// Get returns the participant for an AI speaker.
func (p Participants) Get(speaker Speaker) Participant {
	if speaker == SpeakerB {
		return p.B
	}
	return p.A
}

// Settings are fixed at creation.
type Settings struct {
	MaxTurns        int             `json:"maxTurns"`
	TurnDuration    int             `json:"turnDuration"`
	ModerationLevel ModerationLevel `json:"moderationLevel"`
	Format          Format          `json:"format"`
}

// Attachment carries metadata for a file stored elsewhere.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is one entry of the append-only transcript.
type Message struct {
	ID          string       `json:"id"`
	Speaker     Speaker      `json:"speaker"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	TokenCount  int          `json:"tokenCount"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Session is the root aggregate of a two-participant conversation.
type Session struct {
	ID           string       `json:"id"`
	ChatID       string       `json:"chatId,omitempty"`
	UserID       string       `json:"userId"`
	Topic        string       `json:"topic"`
	Description  string       `json:"description,omitempty"`
	Participants Participants `json:"participants"`
	Messages     []Message    `json:"messages"`
	Status       Status       `json:"status"`
	Settings     Settings     `json:"settings"`
	CurrentTurn  int          `json:"currentTurn"`
	TotalTokens  int          `json:"totalTokens"`
	Summary      string       `json:"summary,omitempty"`
	Insights     []string     `json:"insights,omitempty"`
	LastError    string       `json:"lastError,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
}

// LastAISpeaker returns the author of the most recent AI turn, if any.
func (s *Session) LastAISpeaker() (Speaker, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Speaker.IsAI() {
			return s.Messages[i].Speaker, true
		}
	}
	return "", false
}

// NextSpeaker alternates between the participants, starting with A.
func (s *Session) NextSpeaker() Speaker {
	last, ok := s.LastAISpeaker()
	if !ok {
		return SpeakerA
	}
	return last.Opponent()
}

// TurnsRemaining reports whether another AI turn fits under maxTurns.
func (s *Session) TurnsRemaining() bool {
	return s.CurrentTurn < s.Settings.MaxTurns
}

// MarkCompleted moves the session to the completed state.
func (s *Session) MarkCompleted(now time.Time) {
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
}

// Clone returns a deep copy safe to hand out of a store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, msg := range s.Messages {
		msg.Attachments = append([]Attachment(nil), msg.Attachments...)
		out.Messages[i] = msg
	}
	out.Insights = append([]string(nil), s.Insights...)
	if s.CompletedAt != nil {
		completed := *s.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}
