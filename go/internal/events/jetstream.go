package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/spotmix/go/internal/party"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

type JetStreamConfig struct {
	URL             string        `yaml:"url"`
	StreamName      string        `yaml:"stream_name"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxAge          time.Duration `yaml:"max_age"`
	MaxMsgs         int64         `yaml:"max_msgs"`
	Replicas        int           `yaml:"replicas"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "SPOTMIX_PARTY",
		SubjectPrefix:   "spotmix.party",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// msgPublisher is the slice of jetstream.JetStream used for publishing.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher publishes party events to a JetStream stream, one
// subject per party and event type.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     msgPublisher
	config JetStreamConfig
}

func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.Name("spotmix"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

func streamConfig(cfg JetStreamConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "SpotMix party events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := streamConfig(cfg)

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

// Subject is <prefix>.<party key>.<event type>.
func (p *JetStreamPublisher) Subject(event party.Event) string {
	return fmt.Sprintf("%s.%s.%s", p.config.SubjectPrefix, event.PartyKey, event.Type)
}

func (p *JetStreamPublisher) message(event party.Event) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &nats.Msg{
		Subject: p.Subject(event),
		Data:    data,
		Header: nats.Header{
			"Event-Type":  []string{string(event.Type)},
			"Party-Key":   []string{event.PartyKey},
			nats.MsgIdHdr: []string{event.ID},
		},
	}, nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event party.Event) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg, jetstream.WithExpectStream(p.config.StreamName))
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

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
