package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"paycal/internal/amqp"
	"paycal/internal/core"
)

// ExpansionProcessorConfig holds configuration for the expansion processor
type ExpansionProcessorConfig struct {
	// Interval is how often every user's templates are re-expanded (default: 1h)
	Interval time.Duration

	// Concurrency bounds how many users are expanded at once (default: 4)
	Concurrency int
}

// DefaultExpansionProcessorConfig returns sensible defaults
func DefaultExpansionProcessorConfig() ExpansionProcessorConfig {
	return ExpansionProcessorConfig{
		Interval:    time.Hour,
		Concurrency: 4,
	}
}

// Expansion is the part of the ledger the processor drives.
type Expansion interface {
	SyncTemplate(ctx context.Context, userID, templateID string, year int) (int, error)
	SyncAll(ctx context.Context, userID string, year int) (int, error)
	RemoveTemplateEntries(ctx context.Context, userID, templateID string) (int, error)
	Users(ctx context.Context) ([]string, error)
}

// ExpansionProcessor materializes template entries outside the request
// path: on template-change messages and on a periodic pass that also rolls
// templates into a new year.
type ExpansionProcessor struct {
	ledger Expansion
	config ExpansionProcessorConfig
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExpansionProcessor(ledger Expansion, config ExpansionProcessorConfig) *ExpansionProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultExpansionProcessorConfig().Interval
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &ExpansionProcessor{
		ledger: ledger,
		config: config,
		now:    time.Now,
	}
}

// HandleTemplateChanged applies one template change. A template deleted
// before its upsert message arrived is not an error.
func (p *ExpansionProcessor) HandleTemplateChanged(ctx context.Context, msg *amqp.TemplateChangedMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	switch msg.Action {
	case amqp.ActionDelete:
		n, err := p.ledger.RemoveTemplateEntries(ctx, msg.UserID, msg.TemplateID)
		if err != nil {
			return fmt.Errorf("remove entries of %s: %w", msg.TemplateID, err)
		}
		slog.InfoContext(ctx, "Template removal processed",
			"user_id", msg.UserID, "template_id", msg.TemplateID, "removed", n)
	default:
		year := msg.Year
		if year == 0 {
			year = p.now().Year()
		}
		n, err := p.ledger.SyncTemplate(ctx, msg.UserID, msg.TemplateID, year)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Template vanished before expansion",
				"user_id", msg.UserID, "template_id", msg.TemplateID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("sync template %s: %w", msg.TemplateID, err)
		}
		slog.InfoContext(ctx, "Template change processed",
			"user_id", msg.UserID, "template_id", msg.TemplateID, "year", year, "generated", n)
	}
	return nil
}

// RunYearPass expands every template of every user for year. Failures of
// single users are logged and do not stop the pass; the first one is
// returned.
func (p *ExpansionProcessor) RunYearPass(ctx context.Context, year int) (int, error) {
	users, err := p.ledger.Users(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var (
		total    atomic.Int64
		firstErr error
		errOnce  sync.Once
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for _, userID := range users {
		g.Go(func() error {
			n, err := p.ledger.SyncAll(gctx, userID, year)
			if err != nil {
				slog.ErrorContext(gctx, "Expansion pass failed for user",
					"user_id", userID, "year", year, "error", err)
				errOnce.Do(func() { firstErr = fmt.Errorf("user %s: %w", userID, err) })
				return nil
			}
			total.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()

	slog.InfoContext(ctx, "Expansion pass complete",
		"users", len(users), "year", year, "generated", total.Load())
	return int(total.Load()), firstErr
}

// Start runs a year pass immediately and then every Interval. Returns an
// error if already running.
func (p *ExpansionProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("expansion processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Expansion processor started",
		"interval", p.config.Interval,
		"concurrency", p.config.Concurrency)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (p *ExpansionProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Expansion processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Expansion processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *ExpansionProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExpansionProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.pass(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pass(ctx)
		}
	}
}

func (p *ExpansionProcessor) pass(ctx context.Context) {
	if _, err := p.RunYearPass(ctx, p.now().Year()); err != nil {
		slog.WarnContext(ctx, "Expansion pass finished with errors", "error", err)
	}
}
