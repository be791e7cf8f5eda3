package brainstorm

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
	"github.com/Markizx/neural-chat-sub000/internal/service/ai"
	"github.com/Markizx/neural-chat-sub000/internal/service/stream"
)

// trigger makes sure a driver is advancing the session. At most one driver
// exists per session; triggers arriving while it runs are coalesced into a
// single re-check once it is about to exit.
func (s *Service) trigger(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if c, ok := s.chains[sessionID]; ok {
		c.rerun = true
		return
	}

	s.chains[sessionID] = &chain{}
	s.wg.Add(1)
	go s.drive(sessionID)
}

func (s *Service) drive(sessionID string) {
	defer s.wg.Done()

	for {
		s.run(sessionID)

		s.mu.Lock()
		c := s.chains[sessionID]
		if c != nil && c.rerun && !s.closed {
			c.rerun = false
			s.mu.Unlock()
			continue
		}
		delete(s.chains, sessionID)
		s.mu.Unlock()
		return
	}
}

// run advances the session one turn at a time until it stops being active,
// reaches its limit or the service shuts down.
func (s *Service) run(sessionID string) {
	for {
		if s.ctx.Err() != nil {
			return
		}
		if !s.step(s.ctx, sessionID) {
			return
		}
		if !s.wait(s.ctx, s.cfg.ContinuationDelay) {
			return
		}
	}
}

// running reports whether a driver currently owns the session.
func (s *Service) running(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chains[sessionID]
	return ok
}

func (s *Service) clearRerun(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chains[sessionID]; ok {
		c.rerun = false
	}
}

func (s *Service) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// step generates and persists one turn. It returns true when another turn
// should follow.
func (s *Service) step(ctx context.Context, sessionID string) bool {
	s.clearRerun(sessionID)

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		log.Printf("[brainstorm] load session failed id=%s: %v", sessionID, err)
		return false
	}
	if session.Status != brainstorm.StatusActive {
		return false
	}
	if !session.TurnsRemaining() {
		s.completeAtLimit(ctx, sessionID)
		return false
	}

	speaker := session.NextSpeaker()
	participant := session.Participants.Get(speaker)
	turnID := uuid.NewString()

	backend, err := s.registry.Get(participant.Kind)
	if err != nil {
		evt := brainstorm.NewEvent(brainstorm.EventStreamError, sessionID)
		evt.Speaker = speaker
		evt.TurnID = turnID
		evt.Error = err.Error()
		s.publish(evt)
		s.fail(ctx, sessionID, err)
		return false
	}

	turnCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.TurnTimeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, s.cfg.TurnTimeout)
	}
	msg, err := s.normalizer.Run(turnCtx, backend, stream.TurnRequest{
		SessionID: sessionID,
		TurnID:    turnID,
		Speaker:   speaker,
		History:   ai.BuildHistory(session, speaker),
		Options: ai.GenerateOptions{
			Model:     participant.ModelID,
			MaxTokens: s.cfg.MaxTokens,
		},
	}, s.publish)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			log.Printf("[brainstorm] turn interrupted by shutdown id=%s turn=%s", sessionID, turnID)
			return false
		}
		log.Printf("[brainstorm] turn failed id=%s speaker=%s: %v", sessionID, speaker, err)
		s.fail(ctx, sessionID, err)
		return false
	}

	observed := session.CurrentTurn
	completed := false
	updated, err := s.store.Update(ctx, sessionID, func(cur *brainstorm.Session) error {
		if cur.Status.Terminal() || cur.CurrentTurn != observed {
			return errTurnDiscarded
		}
		cur.Messages = append(cur.Messages, *msg)
		cur.CurrentTurn++
		cur.TotalTokens += msg.TokenCount
		if !cur.TurnsRemaining() {
			cur.MarkCompleted(time.Now().UTC())
			completed = true
		}
		return nil
	})
	if errors.Is(err, errTurnDiscarded) {
		log.Printf("[brainstorm] turn discarded id=%s turn=%s", sessionID, turnID)
		return false
	}
	if err != nil {
		log.Printf("[brainstorm] persist turn failed id=%s turn=%s: %v", sessionID, turnID, err)
		s.fail(ctx, sessionID, err)
		return false
	}

	if completed {
		log.Printf("[brainstorm] session completed id=%s turns=%d tokens=%d", sessionID, updated.CurrentTurn, updated.TotalTokens)
		s.publish(brainstorm.StatusEvent(sessionID, updated.Status))
		s.summarizeCompleted(ctx, updated)
		return false
	}
	return updated.Status == brainstorm.StatusActive && updated.TurnsRemaining()
}

func (s *Service) completeAtLimit(ctx context.Context, sessionID string) {
	updated, err := s.store.Update(ctx, sessionID, func(cur *brainstorm.Session) error {
		if cur.Status != brainstorm.StatusActive {
			return errTurnDiscarded
		}
		cur.MarkCompleted(time.Now().UTC())
		return nil
	})
	if err != nil {
		return
	}
	s.publish(brainstorm.StatusEvent(sessionID, updated.Status))
	s.summarizeCompleted(ctx, updated)
}

// summarizeCompleted runs on the driver goroutine, which is already
// detached from any command.
func (s *Service) summarizeCompleted(ctx context.Context, session *brainstorm.Session) {
	result := s.summarizer.Summarize(ctx, session)
	if _, err := s.storeSummary(ctx, session.ID, result, false); err != nil {
		log.Printf("[brainstorm] persist summary failed id=%s: %v", session.ID, err)
	}
}

func (s *Service) fail(ctx context.Context, sessionID string, cause error) {
	updated, err := s.store.Update(ctx, sessionID, func(cur *brainstorm.Session) error {
		if cur.Status.Terminal() {
			return errTurnDiscarded
		}
		cur.Status = brainstorm.StatusError
		cur.LastError = cause.Error()
		return nil
	})
	if err != nil {
		return
	}
	s.publish(brainstorm.StatusEvent(sessionID, updated.Status))
}
