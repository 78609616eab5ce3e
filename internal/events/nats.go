package events

import (
	"context"
	"encoding/json"
	"errors"
)

const NotifySubjectPrefix = "wallet.notify."

type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink fans an event out to the notification subject of every recipient.
type NATSSink struct {
	conn Publisher
}

func NewNATSSink(conn Publisher) *NATSSink {
	return &NATSSink{conn: conn}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Deliver(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	var errs []error
	for _, user := range ev.Recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.conn.Publish(NotifySubjectPrefix+user, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
