package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/Markizx/neural-chat-sub000/internal/analysis/transcript"
	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/ai"
)

const maxInsights = 5

// Config 控制总结服务的行为。
type Config struct {
	Enabled bool
	// HistoryLimit caps how many transcript messages are sent to the model.
	HistoryLimit int
	Options      ai.GenerateOptions
}

// Result is a derived summary. Fallback marks heuristic output.
type Result struct {
	Summary  string
	Insights []string
	Fallback bool
}

// Service condenses transcripts with a model and falls back to heuristics.
type Service struct {
	enabled      bool
	backend      ai.Backend
	template     prompt.ChatTemplate
	historyLimit int
	opts         ai.GenerateOptions
}

// NewService creates the summarizer. backend may be nil, in which case every
// summary is heuristic.
func NewService(backend ai.Backend, cfg Config) *Service {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 60
	}

	return &Service{
		enabled:      cfg.Enabled && backend != nil,
		backend:      backend,
		historyLimit: historyLimit,
		opts:         cfg.Options,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage(summarySystemPrompt),
			schema.UserMessage(summaryUserPrompt),
		),
	}
}

// Enabled reports whether model summaries are attempted.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// Summarize never fails: any problem with the model call degrades to the
// heuristic summary.
func (s *Service) Summarize(ctx context.Context, session *brainstorm.Session) Result {
	if !s.Enabled() {
		return fallbackResult(session)
	}

	summary, insights, err := s.generate(ctx, session)
	if err != nil {
		log.Printf("[summary] model summary failed session=%s, use fallback: %v", session.ID, err)
		return fallbackResult(session)
	}
	return Result{Summary: summary, Insights: insights}
}

func (s *Service) generate(ctx context.Context, session *brainstorm.Session) (string, []string, error) {
	messages, err := s.template.Format(ctx, map[string]any{
		"topic":        session.Topic,
		"format":       string(session.Settings.Format),
		"participants": describeParticipants(session),
		"transcript":   formatTranscript(session, s.historyLimit),
	})
	if err != nil {
		return "", nil, fmt.Errorf("format summary prompt: %w", err)
	}

	reply, err := s.backend.GenerateTurn(ctx, messages, s.opts)
	if err != nil {
		return "", nil, err
	}
	content, err := drain(reply)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(content) == "" {
		return "", nil, errors.New("empty summary output")
	}

	return parseSummaryOutput(content)
}

func drain(reply *ai.Reply) (string, error) {
	if reply == nil {
		return "", errors.New("no reply")
	}
	if !reply.Streaming() {
		return reply.Text, nil
	}

	defer reply.Stream.Close()
	var chunks []*schema.Message
	for {
		chunk, err := reply.Stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("summary stream recv failed: %w", err)
		}
		if chunk != nil {
			chunks = append(chunks, chunk)
		}
	}
	if len(chunks) == 0 {
		return "", nil
	}
	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("concat summary chunks failed: %w", err)
	}
	return merged.Content, nil
}

func fallbackResult(session *brainstorm.Session) Result {
	summary, insights := transcript.Heuristic(session)
	return Result{Summary: summary, Insights: insights, Fallback: true}
}

var bulletPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)

// parseSummaryOutput splits model output into prose and insight bullets.
// Section headers are optional; bullets anywhere count as insights.
func parseSummaryOutput(content string) (string, []string, error) {
	var prose []string
	var insights []string
	inInsights := false

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		header := strings.ToLower(strings.Trim(line, "*#_ "))
		switch {
		case header == "summary" || header == "summary:":
			inInsights = false
			continue
		case strings.HasPrefix(header, "summary:"):
			inInsights = false
			line = strings.TrimSpace(line[strings.Index(line, ":")+1:])
		case isInsightsHeader(header):
			inInsights = true
			continue
		}

		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			if len(insights) < maxInsights {
				insights = append(insights, strings.TrimSpace(strings.Trim(m[1], "*")))
			}
			continue
		}
		if inInsights {
			continue
		}
		if line = strings.Trim(line, "*"); line != "" {
			prose = append(prose, strings.TrimSpace(line))
		}
	}

	summary := strings.Join(prose, " ")
	if summary == "" {
		return "", nil, errors.New("summary output has no prose")
	}
	if len(insights) == 0 {
		return "", nil, errors.New("summary output has no insights")
	}
	return summary, insights, nil
}

func isInsightsHeader(header string) bool {
	header = strings.TrimSuffix(header, ":")
	return header == "insights" || header == "key insights"
}

func describeParticipants(session *brainstorm.Session) string {
	return fmt.Sprintf("A = %s, B = %s",
		orDefault(session.Participants.A.Name, "Participant A"),
		orDefault(session.Participants.B.Name, "Participant B"))
}

func formatTranscript(session *brainstorm.Session, limit int) string {
	messages := session.Messages
	if len(messages) == 0 {
		return "No messages"
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	var b strings.Builder
	for i, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		b.WriteString(speakerLabel(session, msg.Speaker))
		b.WriteString(": ")
		b.WriteString(content)
		if i < len(messages)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func speakerLabel(session *brainstorm.Session, speaker brainstorm.Speaker) string {
	if !speaker.IsAI() {
		return "User"
	}
	return orDefault(session.Participants.Get(speaker).Name, "Participant "+string(speaker))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

const summarySystemPrompt = "You condense conversations between two AI participants and a user. Reply in exactly this layout and nothing else:\nSUMMARY:\n<one short paragraph>\nINSIGHTS:\n- <insight>\nGive 3 to 5 insights, each a single sentence."

const summaryUserPrompt = "Format: {format}\nTopic: {topic}\nParticipants: {participants}\n\nTranscript:\n{transcript}"
