package postgres

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lib/pq"

	"github.com/desertthunder/melodyflow/internal/requests"
)

// pingInterval keeps idle LISTEN connections from being dropped silently.
const pingInterval = 90 * time.Second

type listenChannel struct {
	listener *pq.Listener
	events   chan requests.ChangeEvent
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func (c *listenChannel) Events() <-chan requests.ChangeEvent { return c.events }

func (c *listenChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		err = c.listener.Close()
	})
	return err
}

func (c *listenChannel) pump(logger *log.Logger) {
	defer close(c.done)
	defer close(c.events)

	for {
		select {
		case <-c.stop:
			return
		case n, ok := <-c.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect
			if n == nil {
				logger.Info("listener reconnected")
				continue
			}
			ev, err := decode(n.Extra)
			if err != nil {
				logger.Warn("failed to decode notification", "error", err)
				continue
			}
			select {
			case c.events <- ev:
			case <-c.stop:
				return
			}
		case <-time.After(pingInterval):
			go func() {
				if err := c.listener.Ping(); err != nil {
					logger.Warn("listener ping failed", "error", err)
				}
			}()
		}
	}
}

func decode(payload string) (requests.ChangeEvent, error) {
	var ev requests.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, err
	}
	typ, err := requests.ParseEventType(string(ev.Type))
	if err != nil {
		return ev, err
	}
	ev.Type = typ
	return ev, nil
}
