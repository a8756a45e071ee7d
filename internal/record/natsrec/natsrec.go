// Package natsrec publishes cycle results on a NATS subject per symbol.
package natsrec

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/nats-io/nats.go"

	"crypto-trading-assistant/internal/record"
	"crypto-trading-assistant/internal/types"
)

type Recorder struct {
	nc      *nats.Conn
	subject string
}

var _ record.Sink = (*Recorder)(nil)

func New(url, subject string) (*Recorder, error) {
	nc, err := nats.Connect(url,
		nats.Name("crypto-trading-assistant"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats %s", url)
	}
	return NewWithConn(nc, subject), nil
}

func NewWithConn(nc *nats.Conn, subject string) *Recorder {
	if strings.TrimSpace(subject) == "" {
		subject = "assistant.cycles"
	}
	return &Recorder{nc: nc, subject: subject}
}

// Subject is where results for symbol are published: <subject>.<SYMBOL>.
func (r *Recorder) Subject(symbol string) string {
	return r.subject + "." + strings.ToUpper(symbol)
}

func (r *Recorder) Name() string { return "nats" }

func (r *Recorder) Record(_ context.Context, res types.CycleResult) error {
	payload, err := record.Payload(res)
	if err != nil {
		return err
	}
	if err := r.nc.Publish(r.Subject(res.Symbol), payload); err != nil {
		return errors.Wrap(err, "nats publish")
	}
	return nil
}

func (r *Recorder) Close() error {
	if err := r.nc.Drain(); err != nil {
		r.nc.Close()
		return errors.Wrap(err, "nats drain")
	}
	return nil
}
