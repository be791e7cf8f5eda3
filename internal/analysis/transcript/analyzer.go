package transcript

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
)

// Stats counts what happened in a session.
type Stats struct {
	TotalMessages   int     `json:"totalMessages"`
	UserMessages    int     `json:"userMessages"`
	TurnsA          int     `json:"turnsA"`
	TurnsB          int     `json:"turnsB"`
	CurrentTurn     int     `json:"currentTurn"`
	MaxTurns        int     `json:"maxTurns"`
	TotalTokens     int     `json:"totalTokens"`
	TotalWords      int     `json:"totalWords"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// Compute derives statistics from a session.
func Compute(session *brainstorm.Session) Stats {
	stats := Stats{
		TotalMessages: len(session.Messages),
		CurrentTurn:   session.CurrentTurn,
		MaxTurns:      session.Settings.MaxTurns,
		TotalTokens:   session.TotalTokens,
	}
	for _, msg := range session.Messages {
		stats.TotalWords += len(strings.Fields(msg.Content))
		switch msg.Speaker {
		case brainstorm.SpeakerA:
			stats.TurnsA++
		case brainstorm.SpeakerB:
			stats.TurnsB++
		default:
			stats.UserMessages++
		}
	}

	if n := len(session.Messages); n > 0 {
		end := session.Messages[n-1].Timestamp
		if session.CompletedAt != nil {
			end = *session.CompletedAt
		}
		if d := end.Sub(session.CreatedAt).Seconds(); d > 0 {
			stats.DurationSeconds = d
		}
	}
	return stats
}

// Term is a recurring word and how often it appeared.
type Term struct {
	Word  string
	Count int
}

// TopTerms returns the most frequent meaningful words of the AI turns.
func TopTerms(session *brainstorm.Session, limit int) []Term {
	counts := make(map[string]int)
	for _, msg := range session.Messages {
		if !msg.Speaker.IsAI() {
			continue
		}
		for _, word := range tokenize(msg.Content) {
			counts[word]++
		}
	}

	terms := make([]Term, 0, len(counts))
	for word, count := range counts {
		if count < 2 {
			continue
		}
		terms = append(terms, Term{Word: word, Count: count})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Word < terms[j].Word
	})
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}

// Heuristic builds a summary and insight list without calling a model.
func Heuristic(session *brainstorm.Session) (string, []string) {
	stats := Compute(session)
	nameA := participantName(session, brainstorm.SpeakerA)
	nameB := participantName(session, brainstorm.SpeakerB)

	summary := fmt.Sprintf(
		"%s session on %q with %d messages: %d turns by %s, %d by %s and %d from the user, about %d tokens in total.",
		formatTitle(session.Settings.Format), session.Topic, stats.TotalMessages,
		stats.TurnsA, nameA, stats.TurnsB, nameB, stats.UserMessages, stats.TotalTokens,
	)

	insights := make([]string, 0, 5)
	if terms := TopTerms(session, 5); len(terms) > 0 {
		words := make([]string, len(terms))
		for i, term := range terms {
			words[i] = term.Word
		}
		insights = append(insights, "Recurring themes: "+strings.Join(words, ", ")+".")
	}
	if longest, ok := longestTurn(session); ok {
		insights = append(insights, fmt.Sprintf("%s gave the most detailed contribution (%d words).",
			participantName(session, longest.Speaker), len(strings.Fields(longest.Content))))
	}
	insights = append(insights, fmt.Sprintf("%d of %d planned turns were completed.", stats.CurrentTurn, stats.MaxTurns))
	if aiTurns := stats.TurnsA + stats.TurnsB; aiTurns > 0 {
		insights = append(insights, fmt.Sprintf("Turns averaged %d words.", aiWords(session)/aiTurns))
	}
	if stats.UserMessages > 1 && len(insights) < 5 {
		insights = append(insights, fmt.Sprintf("The user steered the conversation %d times after the opening prompt.", stats.UserMessages-1))
	}
	return summary, insights
}

func aiWords(session *brainstorm.Session) int {
	total := 0
	for _, msg := range session.Messages {
		if msg.Speaker.IsAI() {
			total += len(strings.Fields(msg.Content))
		}
	}
	return total
}

func longestTurn(session *brainstorm.Session) (brainstorm.Message, bool) {
	var best brainstorm.Message
	bestWords := 0
	for _, msg := range session.Messages {
		if !msg.Speaker.IsAI() {
			continue
		}
		if words := len(strings.Fields(msg.Content)); words > bestWords {
			best, bestWords = msg, words
		}
	}
	return best, bestWords > 0
}

func participantName(session *brainstorm.Session, speaker brainstorm.Speaker) string {
	if name := strings.TrimSpace(session.Participants.Get(speaker).Name); name != "" {
		return name
	}
	return "Participant " + string(speaker)
}

func formatTitle(format brainstorm.Format) string {
	if format == "" {
		format = brainstorm.FormatBrainstorm
	}
	s := string(format)
	return strings.ToUpper(s[:1]) + s[1:]
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) < 4 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

var stopwords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "also": true, "because": true,
	"been": true, "before": true, "being": true, "both": true, "could": true, "does": true,
	"doing": true, "each": true, "from": true, "further": true, "have": true, "having": true,
	"here": true, "into": true, "just": true, "like": true, "make": true, "more": true,
	"most": true, "much": true, "only": true, "other": true, "over": true, "really": true,
	"same": true, "should": true, "some": true, "such": true, "than": true, "that": true,
	"their": true, "them": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "those": true, "through": true, "very": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "will": true, "with": true, "would": true,
	"your": true, "yours": true, "we're": true, "think": true, "idea": true, "ideas": true,
}
