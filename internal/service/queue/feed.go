package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jwalitptl/clinic-desk/internal/model"
)

var ErrFeedUnavailable = errors.New("live queue feed is not configured")

// Subscribe streams queue events published by the outbox relay until ctx
// is done.
func (s *Service) Subscribe(ctx context.Context) (<-chan model.Envelope, error) {
	if s.broker == nil {
		return nil, ErrFeedUnavailable
	}
	raw, err := s.broker.Subscribe(ctx, s.cfg.Channel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to queue events: %w", err)
	}

	out := make(chan model.Envelope, 16)
	go func() {
		defer close(out)
		for msg := range raw {
			var env model.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				s.log.Error(err, "dropping malformed queue event")
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Watch drops cached snapshots whenever any instance reports a queue
// change, so lists stay fresh across API replicas. It blocks until ctx is
// done.
func (s *Service) Watch(ctx context.Context) error {
	events, err := s.Subscribe(ctx)
	if err != nil {
		return err
	}
	for env := range events {
		if env.Type != model.EventQueueStatusChanged && env.Type != model.EventPatientRegistered {
			continue
		}
		s.Invalidate(s.clock.Today())
	}
	return nil
}
