// Package bot assembles the Gateway, Finder, shared config.Manager and
// supporting ambient services into one process lifecycle, grounded on the
// teacher's internal/agent/app/subagent.go errgroup-supervised goroutine
// tree.
package bot

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/milkydeferwm/pagelist-bot/internal/config"
	"github.com/milkydeferwm/pagelist-bot/internal/finder"
	"github.com/milkydeferwm/pagelist-bot/internal/gateway"
	"github.com/milkydeferwm/pagelist-bot/internal/logging"
)

// Bot owns one site's Gateway session plus the Finder that keeps the
// Runner pool in sync with that site's task pages.
type Bot struct {
	Gateway *gateway.Client
	Finder  *finder.Finder
	Config  *config.Manager
	Log     logging.Logger

	KeepAliveInterval time.Duration
}

// Run logs in, then runs the Finder loop and the keep-alive loop until ctx
// is canceled or either returns a fatal error, at which point both are
// torn down together.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Gateway.Login(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b.Finder.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return b.keepAliveLoop(gctx)
	})

	return g.Wait()
}

func (b *Bot) keepAliveLoop(ctx context.Context) error {
	interval := b.KeepAliveInterval
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := b.Gateway.KeepAlive(ctx); err != nil {
				b.Log.Warn("bot: keep-alive failed, re-authenticating: %v", err)
				if loginErr := b.Gateway.Login(ctx); loginErr != nil {
					b.Log.Error("bot: re-authentication failed: %v", loginErr)
				}
			}
		}
	}
}
