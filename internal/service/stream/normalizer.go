package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/ai"
)

const (
	defaultChunkWords = 5
	defaultChunkDelay = 50 * time.Millisecond
)

// Emitter receives normalized lifecycle events in order.
type Emitter func(brainstorm.Event)

// TurnRequest identifies the turn being generated.
type TurnRequest struct {
	SessionID string
	TurnID    string
	Speaker   brainstorm.Speaker
	History   []*schema.Message
	Options   ai.GenerateOptions
}

// Normalizer turns either delivery mode of a backend into
// streamStart, streamChunk*, streamComplete (or streamError).
type Normalizer struct {
	chunkWords int
	chunkDelay time.Duration
}

// NewNormalizer creates a normalizer. Full-text replies are split into groups
// of chunkWords words emitted chunkDelay apart.
func NewNormalizer(chunkWords int, chunkDelay time.Duration) *Normalizer {
	if chunkWords < 1 {
		chunkWords = defaultChunkWords
	}
	if chunkDelay < 0 {
		chunkDelay = defaultChunkDelay
	}
	return &Normalizer{chunkWords: chunkWords, chunkDelay: chunkDelay}
}

// Run generates one turn and returns the completed message. On failure a
// streamError is emitted instead of streamComplete.
func (n *Normalizer) Run(ctx context.Context, backend ai.Backend, req TurnRequest, emit Emitter) (*brainstorm.Message, error) {
	if emit == nil {
		emit = func(brainstorm.Event) {}
	}

	start := brainstorm.NewEvent(brainstorm.EventStreamStart, req.SessionID)
	start.Speaker = req.Speaker
	start.TurnID = req.TurnID
	emit(start)

	msg, err := n.generate(ctx, backend, req, emit)
	if err != nil {
		failed := brainstorm.NewEvent(brainstorm.EventStreamError, req.SessionID)
		failed.Speaker = req.Speaker
		failed.TurnID = req.TurnID
		failed.Error = err.Error()
		emit(failed)
		return nil, err
	}

	done := brainstorm.NewEvent(brainstorm.EventStreamComplete, req.SessionID)
	done.Speaker = req.Speaker
	done.TurnID = req.TurnID
	done.Message = msg
	emit(done)
	return msg, nil
}

func (n *Normalizer) generate(ctx context.Context, backend ai.Backend, req TurnRequest, emit Emitter) (*brainstorm.Message, error) {
	if backend == nil {
		return nil, errors.New("no ai backend for speaker")
	}

	reply, err := backend.GenerateTurn(ctx, req.History, req.Options)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, errors.New("ai backend returned no reply")
	}

	var content string
	var usage *schema.TokenUsage
	if reply.Streaming() {
		content, usage, err = n.forward(reply.Stream, req, emit)
	} else {
		content, err = n.pace(ctx, reply.Text, req, emit)
		usage = reply.Usage
	}
	if err != nil {
		return nil, err
	}

	tokens := EstimateTokens(content)
	if usage != nil && usage.TotalTokens > 0 {
		tokens = usage.TotalTokens
	}

	return &brainstorm.Message{
		ID:          req.TurnID,
		Speaker:     req.Speaker,
		Content:     content,
		Attachments: []brainstorm.Attachment{},
		TokenCount:  tokens,
		Timestamp:   time.Now().UTC(),
	}, nil
}

// forward relays deltas as they arrive.
func (n *Normalizer) forward(reader *schema.StreamReader[*schema.Message], req TurnRequest, emit Emitter) (string, *schema.TokenUsage, error) {
	defer reader.Close()

	var buf strings.Builder
	var usage *schema.TokenUsage
	for {
		chunk, recvErr := reader.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", nil, fmt.Errorf("ai stream recv failed: %w", recvErr)
		}
		if chunk == nil {
			continue
		}
		if u := ai.UsageOf(chunk); u != nil {
			usage = u
		}
		if chunk.Content == "" {
			continue
		}

		buf.WriteString(chunk.Content)
		evt := brainstorm.NewEvent(brainstorm.EventStreamChunk, req.SessionID)
		evt.Speaker = req.Speaker
		evt.TurnID = req.TurnID
		evt.Text = chunk.Content
		emit(evt)
	}

	return buf.String(), usage, nil
}

// pace emulates streaming cadence for a full-text reply.
func (n *Normalizer) pace(ctx context.Context, text string, req TurnRequest, emit Emitter) (string, error) {
	chunks := SplitWords(text, n.chunkWords)
	for i, chunk := range chunks {
		evt := brainstorm.NewEvent(brainstorm.EventStreamChunk, req.SessionID)
		evt.Speaker = req.Speaker
		evt.TurnID = req.TurnID
		evt.Text = chunk
		emit(evt)

		if i == len(chunks)-1 || n.chunkDelay == 0 {
			continue
		}
		timer := time.NewTimer(n.chunkDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("[stream] pacing interrupted session=%s turn=%s: %v", req.SessionID, req.TurnID, ctx.Err())
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return text, nil
}

// SplitWords cuts text into groups of size words without dropping any byte:
// whitespace stays attached to the group it follows, so joining the groups
// yields text again.
func SplitWords(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size < 1 {
		size = 1
	}

	var chunks []string
	start, words := 0, 0
	inWord := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && !inWord {
			if words == size {
				chunks = append(chunks, text[start:i])
				start, words = i, 0
			}
			words++
		}
		inWord = !space
	}
	return append(chunks, text[start:])
}

// EstimateTokens approximates a token count when the backend reports none.
func EstimateTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return (runes + 3) / 4
}
