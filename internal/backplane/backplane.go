package backplane

import "context"

// Backplane is the group-messaging primitive behind the fanout layer.
// Subscribers of a named group receive every payload published to it,
// regardless of which process published. Publish is fire-and-forget:
// it never blocks on subscriber delivery, and the backplane is not
// durable storage — every state change is persisted before it is
// published here.
type Backplane interface {
	Publish(ctx context.Context, group string, payload []byte) error
	Subscribe(group string) (*Subscription, error)
	Close() error
}

// Subscription is one group membership. Payloads arrive on C until
// Cancel is called, after which C is closed.
type Subscription struct {
	C      <-chan []byte
	cancel func()
}

// Cancel leaves the group and closes C. Safe to call twice.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
