package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/studysprint/go/internal/studysession/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamPublisher publishes committed events. Publish waits for the
// stream ack, so calls from one session actor land in commit order.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

func NewJetStreamPublisher(cfg Config) (*JetStreamPublisher, error) {
	nc, js, err := Connect(cfg)
	if err != nil {
		return nil, err
	}

	if err := EnsureStream(context.Background(), js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event *events.Event) error {
	msg, err := NewMsg(p.config, event)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", event.ID).
		Uint64("sequence", ack.Sequence).
		Str("stream", ack.Stream).
		Msg("published to JetStream")

	return nil
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// NewMsg encodes event as a JetStream message on its session subject.
func NewMsg(cfg Config, event *events.Event) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &nats.Msg{
		Subject: cfg.Subject(event.SessionID, string(event.Type)),
		Data:    data,
		Header: nats.Header{
			HeaderEventType:    []string{string(event.Type)},
			HeaderSessionID:    []string{event.SessionID},
			HeaderEventID:      []string{event.ID},
			HeaderEventVersion: []string{versionHeader(event.Version)},
		},
	}, nil
}

// DecodeMsg parses a message produced by NewMsg.
func DecodeMsg(data []byte) (*events.Event, error) {
	var event events.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.SessionID == "" || event.Type == "" {
		return nil, fmt.Errorf("event %q is missing session or type", event.ID)
	}
	return &event, nil
}
