// Package natsbus publishes run summaries on a NATS subject for downstream consumers.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

// DefaultSubject carries one JSON message per finished run.
const DefaultSubject = "contentsync.runs"

type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Publisher implements ports.Notifier over a NATS connection.
type Publisher struct {
	conn    *nats.Conn
	pub     msgPublisher
	subject string
}

var _ ports.Notifier = (*Publisher)(nil)

// Connect dials the server and returns a publisher bound to subject.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("contentsync"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	p := newPublisher(nc, subject)
	p.conn = nc
	return p, nil
}

func newPublisher(pub msgPublisher, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{pub: pub, subject: subject}
}

// PublishSummary serializes the summary as JSON; the run id and state travel as headers.
func (p *Publisher) PublishSummary(_ context.Context, summary domain.RunSummary) error {
	msg, err := summaryMsg(p.subject, summary)
	if err != nil {
		return err
	}
	if err := p.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	defer p.conn.Close()
	return p.conn.Flush()
}

func summaryMsg(subject string, summary domain.RunSummary) (*nats.Msg, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Run-Id", summary.RunID)
	msg.Header.Set("Run-State", string(summary.State))
	return msg, nil
}
