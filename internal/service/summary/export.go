package summary

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Document is a rendered export.
type Document struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Export renders the session without modifying it.
func Export(session *brainstorm.Session, format string) (*Document, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		body, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal session: %w", err)
		}
		return &Document{
			ContentType: "application/json",
			Filename:    fmt.Sprintf("brainstorm-%s.json", session.ID),
			Body:        body,
		}, nil
	case FormatMarkdown, "md":
		return &Document{
			ContentType: "text/markdown; charset=utf-8",
			Filename:    fmt.Sprintf("brainstorm-%s.md", session.ID),
			Body:        []byte(RenderMarkdown(session)),
		}, nil
	default:
		return nil, brainstorm.Errorf(brainstorm.ErrInvalidFormat, "unsupported export format: %s", format)
	}
}

// RenderMarkdown renders topic, metadata, transcript, summary and insights.
func RenderMarkdown(session *brainstorm.Session) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", session.Topic)
	if desc := strings.TrimSpace(session.Description); desc != "" {
		fmt.Fprintf(&b, "%s\n\n", desc)
	}

	fmt.Fprintf(&b, "- **Format:** %s\n", session.Settings.Format)
	fmt.Fprintf(&b, "- **Status:** %s\n", session.Status)
	fmt.Fprintf(&b, "- **Participant A:** %s\n", describeParticipant(session.Participants.A))
	fmt.Fprintf(&b, "- **Participant B:** %s\n", describeParticipant(session.Participants.B))
	fmt.Fprintf(&b, "- **Turns:** %d / %d\n", session.CurrentTurn, session.Settings.MaxTurns)
	fmt.Fprintf(&b, "- **Total tokens:** %d\n", session.TotalTokens)
	fmt.Fprintf(&b, "- **Created:** %s\n", session.CreatedAt.UTC().Format(time.RFC3339))
	if session.CompletedAt != nil {
		fmt.Fprintf(&b, "- **Completed:** %s\n", session.CompletedAt.UTC().Format(time.RFC3339))
	}

	b.WriteString("\n## Transcript\n")
	for _, msg := range session.Messages {
		fmt.Fprintf(&b, "\n### %s · %s\n\n", markdownSpeaker(session, msg.Speaker), msg.Timestamp.UTC().Format("15:04:05"))
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteString("\n")
		if len(msg.Attachments) > 0 {
			names := make([]string, 0, len(msg.Attachments))
			for _, att := range msg.Attachments {
				names = append(names, att.Name)
			}
			fmt.Fprintf(&b, "\n_Attachments: %s_\n", strings.Join(names, ", "))
		}
	}

	if summary := strings.TrimSpace(session.Summary); summary != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n%s\n", summary)
	}
	if len(session.Insights) > 0 {
		b.WriteString("\n## Insights\n\n")
		for i, insight := range session.Insights {
			fmt.Fprintf(&b, "%d. %s\n", i+1, insight)
		}
	}

	return b.String()
}

func describeParticipant(p brainstorm.Participant) string {
	name := orDefault(p.Name, "unnamed")
	details := []string{}
	if p.Kind != "" {
		details = append(details, p.Kind)
	}
	if p.ModelID != "" {
		details = append(details, p.ModelID)
	}
	if len(details) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(details, ", "))
}

func markdownSpeaker(session *brainstorm.Session, speaker brainstorm.Speaker) string {
	if !speaker.IsAI() {
		return "User"
	}
	return fmt.Sprintf("%s (%s)", speakerLabel(session, speaker), speaker)
}
