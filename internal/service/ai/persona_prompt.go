package ai

import (
	"fmt"
	"strings"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
)

// FormatTemplate holds the shared rules of one conversational format.
type FormatTemplate struct {
	Goal  string
	Rules []string
}

// UserProfile personalizes prompts before a session starts.
type UserProfile struct {
	Name     string
	Language string
}

// PromptManager builds participant system prompts.
type PromptManager struct {
	templates map[brainstorm.Format]*FormatTemplate
}

// NewPromptManager creates a prompt manager with the default format templates.
func NewPromptManager() *PromptManager {
	pm := &PromptManager{
		templates: make(map[brainstorm.Format]*FormatTemplate),
	}
	pm.loadDefaultTemplates()
	return pm
}

// Template returns the template for a format.
func (pm *PromptManager) Template(format brainstorm.Format) (*FormatTemplate, error) {
	template, exists := pm.templates[format]
	if !exists {
		return nil, fmt.Errorf("prompt template not found for format: %s", format)
	}
	return template, nil
}

// BuildSystemPrompt combines the participant's own prompt with the session
// context. The result is frozen into the session at start.
func (pm *PromptManager) BuildSystemPrompt(self, partner brainstorm.Participant, topic, description string, settings brainstorm.Settings, profile UserProfile) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(self.SystemPrompt))

	b.WriteString("\n\nConversation setup:")
	fmt.Fprintf(&b, "\n- Your name: %s", self.Name)
	fmt.Fprintf(&b, "\n- Your partner: %s", partner.Name)
	fmt.Fprintf(&b, "\n- Topic: %s", topic)
	if desc := strings.TrimSpace(description); desc != "" {
		fmt.Fprintf(&b, "\n- Context: %s", desc)
	}

	if template, err := pm.Template(settings.Format); err == nil {
		fmt.Fprintf(&b, "\n\nGoal: %s", template.Goal)
		b.WriteString("\nRules:\n- ")
		b.WriteString(strings.Join(template.Rules, "\n- "))
	}

	if rule := moderationRule(settings.ModerationLevel); rule != "" {
		b.WriteString("\n- ")
		b.WriteString(rule)
	}
	if settings.TurnDuration > 0 {
		fmt.Fprintf(&b, "\n- Keep each reply short enough to read in about %d seconds.", settings.TurnDuration)
	}

	if name := strings.TrimSpace(profile.Name); name != "" {
		fmt.Fprintf(&b, "\n\nThe person following this conversation is %s; they may interject at any time. Address their messages directly.", name)
	}
	if lang := strings.TrimSpace(profile.Language); lang != "" {
		fmt.Fprintf(&b, "\nAlways reply in %s.", lang)
	}

	return b.String()
}

func moderationRule(level brainstorm.ModerationLevel) string {
	switch level {
	case brainstorm.ModerationLow:
		return "Tangents are welcome if they lead somewhere interesting."
	case brainstorm.ModerationHigh:
		return "Stay strictly on topic, keep the tone professional and avoid speculation presented as fact."
	default:
		return "Stay on topic and keep the tone constructive."
	}
}

func (pm *PromptManager) loadDefaultTemplates() {
	pm.templates[brainstorm.FormatBrainstorm] = &FormatTemplate{
		Goal: "generate as many useful, diverse ideas on the topic as possible together.",
		Rules: []string{
			"Build on your partner's last message before adding something new",
			"Offer at most two new ideas per turn",
			"Do not summarize the whole conversation",
		},
	}
	pm.templates[brainstorm.FormatDebate] = &FormatTemplate{
		Goal: "test the topic from opposing positions so the user can weigh both sides.",
		Rules: []string{
			"Respond to your opponent's strongest point first",
			"Support claims with reasoning or examples",
			"Never switch sides",
		},
	}
	pm.templates[brainstorm.FormatAnalysis] = &FormatTemplate{
		Goal: "produce a rigorous, structured analysis of the topic.",
		Rules: []string{
			"Label assumptions and open questions",
			"Prefer numbered steps and short paragraphs",
			"Point out where more data would change the conclusion",
		},
	}
	pm.templates[brainstorm.FormatCreative] = &FormatTemplate{
		Goal: "co-create an original piece inspired by the topic.",
		Rules: []string{
			"Continue from exactly where your partner stopped",
			"Keep characters, tone and tense consistent",
			"Do not explain the piece, just write it",
		},
	}
}
