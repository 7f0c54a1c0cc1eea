package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"deepstore-hq/deepstore/pkg/telemetry/tracing"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject run events are published on.
const DefaultSubject = "deepstore.runs"

// NATS publishes events to a subject. The connection is opened on first
// use.
type NATS struct {
	URL     string
	Subject string

	mu   sync.Mutex
	conn *nats.Conn
}

// NewNATS creates a NATS notifier.
func NewNATS(url, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{URL: url, Subject: subject}
}

func (n *NATS) connect() (*nats.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil && !n.conn.IsClosed() {
		return n.conn, nil
	}

	conn, err := nats.Connect(n.URL,
		nats.Name("deepstore"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	n.conn = conn
	return conn, nil
}

// Notify publishes e and waits for the server to acknowledge the flush.
func (n *NATS) Notify(ctx context.Context, e Event) error {
	conn, err := n.connect()
	if err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("nats: encode event: %w", err)
	}

	msg := nats.NewMsg(n.Subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	tracing.Inject(ctx, http.Header(msg.Header))

	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats: flush: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn = nil
	return err
}
