package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	goredis "github.com/redis/go-redis/v9"

	"github.com/desertthunder/melodyflow/internal/requests"
	"github.com/desertthunder/melodyflow/internal/shared"
)

// DefaultChannel is the pub/sub channel request events are published on.
const DefaultChannel = "melodyflow:requests:changes"

// Redis is a [Broker] backed by Redis pub/sub. Events are JSON encoded
// [requests.ChangeEvent] values.
type Redis struct {
	rdb     *goredis.Client
	channel string
	logger  *log.Logger
}

// NewRedis connects to the server at url (redis://host:port/db) and pings it.
func NewRedis(ctx context.Context, url string, logger *log.Logger) (*Redis, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", shared.ErrInvalidConfig, err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Redis{rdb: rdb, channel: DefaultChannel, logger: shared.WithLogger(logger, "component", "feed")}, nil
}

func (r *Redis) Publish(ctx context.Context, ev requests.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	return r.rdb.Publish(ctx, r.channel, data).Err()
}

// Subscribe waits for the subscription to be confirmed before returning, so
// events published afterwards are not missed.
func (r *Redis) Subscribe(ctx context.Context) (requests.Channel, error) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ch := &redisChannel{sub: sub, events: make(chan requests.ChangeEvent, Buffer), done: make(chan struct{})}
	go ch.pump(r.logger)
	return ch, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

type redisChannel struct {
	sub    *goredis.PubSub
	events chan requests.ChangeEvent
	done   chan struct{}
}

func (c *redisChannel) Events() <-chan requests.ChangeEvent { return c.events }

// Close unsubscribes and waits for the pump to stop.
func (c *redisChannel) Close() error {
	err := c.sub.Close()
	<-c.done
	return err
}

func (c *redisChannel) pump(logger *log.Logger) {
	defer close(c.done)
	defer close(c.events)

	for msg := range c.sub.Channel() {
		var ev requests.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logger.Warn("failed to decode change event", "error", err)
			continue
		}
		select {
		case c.events <- ev:
		default:
			logger.Warn("dropping change event for slow subscriber", "type", ev.Type, "id", ev.ID())
		}
	}
}
