package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/coursegen/internal/logger"
)

// Handler processes one decoded job message.
type Handler func(ctx context.Context, msg JobMessage) error

// Settled reports whether a handler error still counts as done (acked)
// rather than dead-lettered.
type Settled func(err error) bool

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	log         *logger.Logger
}

func NewConsumer(url, queue string, concurrency int, log *logger.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	// strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, concurrency: concurrency, log: log}, nil
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run feeds deliveries to a pool of c.concurrency workers until ctx is done
// or the broker closes the delivery channel. In-flight jobs finish first.
func (c *Consumer) Run(ctx context.Context, handle Handler, settled Settled) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.log.Info("worker started", "queue", c.queue, "concurrency", c.concurrency)

	jobs := make(chan amqp.Delivery, c.concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			log := c.log.With("worker", workerID)
			for d := range jobs {
				Deliver(ctx, d, handle, settled, log)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			c.log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return errors.New("rabbitmq: delivery channel closed")
			}
			jobs <- d
		}
	}
}

// Deliver decodes and handles one delivery, then acks it or nacks it without
// requeue so the broker moves it to the dead-letter queue.
func Deliver(ctx context.Context, d amqp.Delivery, handle Handler, settled Settled, log *logger.Logger) {
	m, err := DecodeJob(d.Body)
	if err != nil {
		log.Warn("bad message", "error", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err = handle(ctx, m)
	cost := time.Since(start)

	if err != nil && (settled == nil || !settled(err)) {
		log.Error("job failed", "kind", m.Kind, "job_id", m.JobID, "cost", cost.String(), "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err != nil {
		log.Info("job skipped", "kind", m.Kind, "job_id", m.JobID, "reason", err)
	} else if cost > 2*time.Second {
		log.Info("job_timing", "kind", m.Kind, "job_id", m.JobID, "total", cost.String())
	}
	if err := d.Ack(false); err != nil {
		log.Warn("ack failed", "job_id", m.JobID, "error", err)
	}
}
