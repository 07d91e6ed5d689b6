package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes notifications on <prefix>.<type>, e.g.
// tenet.notifications.health_degraded.
type NATSSink struct {
	conn   Publisher
	prefix string
	close  func()
}

// ConnectNATS dials url and returns a sink publishing under prefix.
func ConnectNATS(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("tenet"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	s := NewNATSSink(nc, prefix)
	s.close = func() {
		_ = nc.Drain()
	}
	return s, nil
}

// NewNATSSink wraps an existing connection.
func NewNATSSink(conn Publisher, prefix string) *NATSSink {
	return &NATSSink{conn: conn, prefix: prefix}
}

// Subject returns the subject a notification type is published on.
func (s *NATSSink) Subject(t Type) string {
	return s.prefix + "." + string(t)
}

// Name implements Sink.
func (s *NATSSink) Name() string { return "nats:" + s.prefix }

// Notify implements Sink. NATS Publish is synchronous and doesn't support
// context cancellation directly, so the context is checked first.
func (s *NATSSink) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := encode(n)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.Subject(n.Type), data)
}

// Close drains the connection opened by ConnectNATS.
func (s *NATSSink) Close() {
	if s.close != nil {
		s.close()
	}
}
