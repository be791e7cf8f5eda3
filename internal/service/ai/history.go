package ai

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
)

// BuildHistory renders the transcript from one participant's point of view:
// its own turns become assistant messages, everything else arrives as named
// user messages.
func BuildHistory(session *brainstorm.Session, speaker brainstorm.Speaker) []*schema.Message {
	self := session.Participants.Get(speaker)
	history := make([]*schema.Message, 0, len(session.Messages)+1)
	if prompt := strings.TrimSpace(self.SystemPrompt); prompt != "" {
		history = append(history, schema.SystemMessage(prompt))
	}

	for _, msg := range session.Messages {
		switch {
		case msg.Speaker == speaker:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		case msg.Speaker.IsAI():
			name := session.Participants.Get(msg.Speaker).Name
			history = append(history, schema.UserMessage(fmt.Sprintf("[%s]: %s", name, msg.Content)))
		default:
			history = append(history, schema.UserMessage(userContent(msg)))
		}
	}
	return history
}

func userContent(msg brainstorm.Message) string {
	var b strings.Builder
	b.WriteString("[User]: ")
	b.WriteString(msg.Content)
	if len(msg.Attachments) > 0 {
		names := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			names = append(names, att.Name)
		}
		fmt.Fprintf(&b, "\n(attached: %s)", strings.Join(names, ", "))
	}
	return b.String()
}
