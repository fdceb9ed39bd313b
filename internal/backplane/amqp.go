package backplane

import (
	"context"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"messenger-service/internal/observability"
)

// AMQP is the shared-broker Backplane: groups map to routing keys on a
// topic exchange, each subscription consumes from its own exclusive
// auto-delete queue, so every process sharing the broker sees every
// publish for the groups it joined.
type AMQP struct {
	conn     *amqp.Connection
	exchange string

	mu    sync.Mutex
	pubCh *amqp.Channel
}

// NewAMQP connects to the broker and declares the topic exchange.
func NewAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Printf("backplane: amqp connected exchange=%s", exchange)
	return &AMQP{conn: conn, exchange: exchange, pubCh: ch}, nil
}

// Publish sends payload to the group's routing key. Fire-and-forget:
// broker acks are not awaited.
func (a *AMQP) Publish(ctx context.Context, group string, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.pubCh.PublishWithContext(ctx, a.exchange, group, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
	if err != nil {
		observability.IncBackplanePublishError()
	}
	return err
}

// Subscribe binds a fresh exclusive queue to the group's routing key and
// forwards deliveries until cancelled.
func (a *AMQP) Subscribe(group string) (*Subscription, error) {
	ch, err := a.conn.Channel()
	if err != nil {
		return nil, err
	}

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.QueueBind(queue.Name, group, a.exchange, false, nil); err != nil {
		ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		for d := range deliveries {
			select {
			case out <- d.Body:
			default:
				log.Printf("backplane: dropping event for slow subscriber group=%s", group)
				observability.IncBackplaneDrop(group)
			}
		}
	}()

	return &Subscription{C: out, cancel: func() { _ = ch.Close() }}, nil
}

// Close tears down the broker connection and every subscription with it.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pubCh != nil {
		_ = a.pubCh.Close()
	}
	return a.conn.Close()
}
