package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Watch listens on the notify channel with a lib/pq listener. A lost
// connection or the fallback ticker triggers a refresh of every root, since
// notifications sent while disconnected are gone.
func (b *Backend) Watch(ctx context.Context, notify func(root string)) (<-chan error, error) {
	if b.cfg.DatabaseURL == "" {
		return nil, errors.New("database url is required to listen for changes")
	}

	l := pq.NewListener(
		b.cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(b.cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", b.cfg.NotifyChannel).
		Dur("ping_interval", b.cfg.PingInterval).
		Dur("fallback_interval", b.cfg.FallbackInterval).
		Msg("listening for document changes")

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- b.listen(ctx, l, notify)
	}()
	return done, nil
}

func (b *Backend) listen(ctx context.Context, l *pq.Listener, notify func(root string)) error {
	pingTicker := time.NewTicker(b.cfg.PingInterval)
	fallbackTicker := time.NewTicker(b.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("document listener shutting down")
			if err := l.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close listener")
			}
			return nil
		case note, ok := <-l.Notify:
			if !ok {
				return errors.New("listener closed")
			}
			if note == nil {
				// nil notification means the connection was re-established
				notify("")
				continue
			}
			notify(note.Extra)
		case <-fallbackTicker.C:
			notify("")
		case <-pingTicker.C:
			if err := l.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}
