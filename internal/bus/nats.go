package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/railyard/railyard-api/internal/engine"
)

// SubjectPrefix is the root of all execution event subjects; the event type
// is appended, e.g. railyard.execution.completed.
const SubjectPrefix = "railyard.execution."

// Client wraps a NATS connection and publishes execution lifecycle events.
type Client struct {
	nc *nats.Conn
}

func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Client{nc: nc}, nil
}

func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

func (c *Client) Conn() *nats.Conn { return c.nc }

// PublishExecutionEvent implements engine.EventPublisher.
func (c *Client) PublishExecutionEvent(_ context.Context, event engine.ExecutionEvent) error {
	return c.publishJSON(SubjectPrefix+event.Type, event)
}

func (c *Client) publishJSON(subject string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// SubscribeExecutionEvents delivers every execution event to the handler.
// Decode failures are skipped; the subscription stays up.
func (c *Client) SubscribeExecutionEvents(handler func(ctx context.Context, event engine.ExecutionEvent)) (*nats.Subscription, error) {
	return c.nc.Subscribe(SubjectPrefix+">", func(msg *nats.Msg) {
		var event engine.ExecutionEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		handler(ctx, event)
	})
}
