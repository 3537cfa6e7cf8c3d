package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tabletalk/tabletalk/internal/observability"
)

// Provider serves the current schema snapshot to all requests and refreshes
// it by swapping the whole Context at once. A failed refresh keeps the
// last-known-good snapshot; readers never see a partial schema.
type Provider struct {
	introspector Introspector
	logger       *slog.Logger
	current      atomic.Pointer[Context]
}

func NewProvider(introspector Introspector, logger *slog.Logger) *Provider {
	return &Provider{introspector: introspector, logger: logger}
}

// Current returns the latest snapshot, or an empty Context before the first
// successful refresh.
func (p *Provider) Current() Context {
	snapshot := p.current.Load()
	if snapshot == nil {
		return Context{}
	}
	return *snapshot
}

func (p *Provider) Refresh(ctx context.Context) error {
	snapshot, err := p.introspector.Introspect(ctx)
	if err != nil {
		observability.IncrementSchemaRefreshFailure()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "schema refresh failed, keeping last snapshot", slog.Any("error", err))
		}
		return fmt.Errorf("refresh schema: %w", err)
	}
	p.current.Store(&snapshot)
	if p.logger != nil {
		p.logger.InfoContext(ctx, "schema refreshed", slog.Int("tables", len(snapshot.Tables)))
	}
	return nil
}

// Run refreshes on the given interval until the context is cancelled.
// Refresh failures are logged and swallowed so requests keep serving from
// the last-known-good snapshot.
func (p *Provider) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Refresh(ctx)
		}
	}
}
