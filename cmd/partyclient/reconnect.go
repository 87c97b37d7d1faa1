package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"

	"phone-party/session"
)

const handshakeWait = 10 * time.Second

// connector is the part of *session.Session the supervisor drives.
type connector interface {
	Connect(room string) error
	AwaitConnect(ctx context.Context) error
	WaitState(ctx context.Context, want session.State) error
}

// keepConnected joins room and rejoins it, with backoff, every time the
// session drops. The session itself never reconnects; this is the client
// app's policy. It returns when ctx is done.
func keepConnected(ctx context.Context, s connector, room string, newBackOff func() backoff.BackOff) {
	for {
		connect := func() error {
			if err := s.Connect(room); err != nil {
				return err
			}
			wctx, cancel := context.WithTimeout(ctx, handshakeWait)
			defer cancel()
			if err := s.AwaitConnect(wctx); err != nil {
				return fmt.Errorf("join %s: %w", room, err)
			}
			return nil
		}
		notify := func(err error, wait time.Duration) {
			slog.Warn("connect failed, retrying", "room", room, "in", wait, "error", err)
		}

		if err := backoff.RetryNotify(connect, backoff.WithContext(newBackOff(), ctx), notify); err != nil {
			if ctx.Err() == nil {
				slog.Error("giving up on relay", "room", room, "error", err)
			}
			return
		}

		if err := s.WaitState(ctx, session.Disconnected); err != nil {
			return
		}
		slog.Info("connection lost, reconnecting", "room", room)
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}
