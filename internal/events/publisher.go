// Package events publishes request lifecycle transitions to NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/provisioner/pkg/models"
	"github.com/nats-io/nats.go"
)

// Publisher sends one message per status write on <prefix>.<status>.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials the NATS server at url.
func Connect(url, prefix string, opts ...nats.Option) (*Publisher, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: nc, prefix: prefix}, nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// Subject returns the subject a status is published on.
func Subject(prefix, status string) string {
	if prefix == "" {
		return status
	}
	return prefix + "." + status
}

// Notify publishes ev. It does not wait for delivery.
func (p *Publisher) Notify(ctx context.Context, ev models.StatusEvent) error {
	if p == nil {
		return errors.New("nil publisher")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(Subject(p.prefix, ev.Status), data)
}
