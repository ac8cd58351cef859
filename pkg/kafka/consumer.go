package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/stockledger/pkg/logger"
)

// Handler processes one message. Returning nil commits its offset.
type Handler func(ctx context.Context, m kafkago.Message) error

// ErrSkip tells the consumer to commit without retrying.
var ErrSkip = errors.New("skip message")

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// ConsumerConfig configures a group consumer.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topic       string
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
}

// Consumer fans messages out to a fixed worker pool. Each partition is
// pinned to one worker so offsets are committed in order.
type Consumer struct {
	r           messageReader
	workers     int
	maxAttempts int
	backoff     time.Duration
	logg        *logger.Logger
}

func NewConsumer(cfg ConsumerConfig, logg *logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.GroupID == "" || cfg.Topic == "" {
		return nil, errors.New("kafka group and topic are required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return newConsumer(r, cfg, logg), nil
}

func newConsumer(r messageReader, cfg ConsumerConfig, logg *logger.Logger) *Consumer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Consumer{r: r, workers: workers, maxAttempts: attempts, backoff: backoff, logg: logg}
}

// Run reads until ctx is canceled or the reader fails. It returns nil on
// cancellation after in-flight messages finish.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafkago.Message, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafkago.Message, 64)
		wg.Add(1)
		go func(q <-chan kafkago.Message) {
			defer wg.Done()
			for m := range q {
				c.process(ctx, h, m)
			}
		}(queues[i])
	}
	stop := func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		select {
		case queues[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, h Handler, m kafkago.Message) {
	msgCtx := c.logg.WithFields(ctx, map[string]any{
		"topic":     m.Topic,
		"partition": m.Partition,
		"offset":    m.Offset,
	})
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = h(msgCtx, m)
		if err == nil || errors.Is(err, ErrSkip) {
			break
		}
		if ctx.Err() != nil {
			// Not committed; the group redelivers after restart.
			return
		}
		c.logg.Warn(c.logg.WithField(msgCtx, "attempt", attempt), "kafka handler failed")
		select {
		case <-time.After(c.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return
		}
	}
	if err != nil && !errors.Is(err, ErrSkip) {
		c.logg.Error(msgCtx, "kafka message dropped after retries", err)
	}
	if commitErr := c.r.CommitMessages(ctx, m); commitErr != nil {
		c.logg.Error(msgCtx, "kafka commit failed", commitErr)
	}
}
