// Package tracker polls the live server list on a fixed schedule and records
// rosters and skin changes.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rankindex/internal/adapters/roster"
	"github.com/okian/rankindex/pkg/logger"
	"github.com/okian/rankindex/pkg/metrics"
)

const defaultInterval = time.Minute

// Lister returns the current server list.
type Lister interface {
	List(ctx context.Context) (roster.ServerList, error)
}

// Store persists one flattened poll.
type Store interface {
	Apply(ctx context.Context, snap roster.Snapshot, now int64) (roster.Result, error)
}

// Poller runs Poll at every interval boundary until stopped.
type Poller struct {
	lister   Lister
	store    Store
	name     string
	interval time.Duration
	now      func() time.Time

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// New creates a Poller with a one minute interval.
func New(lister Lister, store Store, opts ...Option) *Poller {
	p := &Poller{
		lister:   lister,
		store:    store,
		name:     "tracker",
		interval: defaultInterval,
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("tracker"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.name != "tracker" {
		p.logger = p.logger.Named(p.name)
	}
	return p
}

// Run sleeps until the next interval boundary, polls, and repeats until ctx
// is canceled or Shutdown is called. Poll errors are logged and do not stop
// the loop.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.done)

	p.logger.Info(ctx, "tracker started", logger.Duration("interval", p.interval))
	for {
		wait := p.untilNext()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.shutdown:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := p.Poll(ctx); err != nil {
			p.logger.Error(ctx, "poll failed", logger.Error(err))
		}
	}
}

// Shutdown stops the loop and waits for an in-flight poll to finish.
func (p *Poller) Shutdown(ctx context.Context) error {
	close(p.shutdown)

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Poll fetches the server list once and applies it in one transaction.
func (p *Poller) Poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.RecordPollDuration(time.Since(start).Seconds())
	}()

	minute := p.now().Unix() / 60

	list, err := p.lister.List(ctx)
	if err != nil {
		metrics.RecordPoll(metrics.ResultFailed)
		return fmt.Errorf("list servers: %w", err)
	}
	snap, err := roster.Flatten(list)
	if err != nil {
		metrics.RecordPoll(metrics.ResultFailed)
		return err
	}
	res, err := p.store.Apply(ctx, snap, minute)
	if err != nil {
		metrics.RecordPoll(metrics.ResultFailed)
		return err
	}

	metrics.RecordPoll(metrics.ResultOK)
	metrics.UpdateRoster(res.Servers, res.Sightings)
	metrics.RecordSkinChanges(res.SkinChanges)
	p.logger.Debug(ctx, "poll applied",
		logger.Int("servers", res.Servers),
		logger.Int("sightings", res.Sightings),
		logger.Int("new_clients", res.NewClients),
		logger.Int("skin_changes", res.SkinChanges),
		logger.Duration("took", time.Since(start)),
	)
	return nil
}

// untilNext is the time left to the next multiple of interval.
func (p *Poller) untilNext() time.Duration {
	now := p.now()
	next := now.Truncate(p.interval).Add(p.interval)
	return next.Sub(now)
}
