package redisstore

import (
	"context"
	"encoding/json"

	"github.com/suPer8Hu/coursegen/internal/pipeline"
)

func JobsChannel(courseID string) string { return keyPrefix + "jobs:" + courseID }

// Notifier publishes terminal job events on a per-course pub/sub channel.
type Notifier struct {
	store *Store
}

func (s *Store) Notifier() *Notifier { return &Notifier{store: s} }

func (n *Notifier) Notify(ctx context.Context, ev pipeline.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.store.rdb.Publish(ctx, JobsChannel(ev.CourseID), raw).Err()
}

// Subscribe streams job events for one course until ctx is done.
func (s *Store) Subscribe(ctx context.Context, courseID string) (<-chan pipeline.Event, error) {
	sub := s.rdb.Subscribe(ctx, JobsChannel(courseID))
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan pipeline.Event, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev pipeline.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
