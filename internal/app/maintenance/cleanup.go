package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/quayside/tradeledger/internal/auth"
	"github.com/quayside/tradeledger/internal/cache"
	"github.com/quayside/tradeledger/internal/services"
	"github.com/quayside/tradeledger/pkg/logger"
)

const (
	defaultAuditRetentionDays = 180
	defaultAuditSpec          = "@daily"
	defaultDenylistSpec       = "@daily"
	defaultCounterSpec        = "@hourly"
)

// Cleaner coordinates background maintenance: pruning the audit trail
// past its retention window, purging expired denylist entries, and
// dropping stale rate-limit counters.
type Cleaner struct {
	tokens    *iauth.TokenService
	audit     *services.AuditService
	counters  *cache.DatabaseStore
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	auditSchedule    string
	denylistSchedule string
	counterSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithAuditSchedule overrides the cron expression for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithDenylistSchedule overrides the cron expression for denylist purges.
func WithDenylistSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.denylistSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil
// dependency results in the corresponding job being skipped.
func NewCleaner(tokens *iauth.TokenService, audit *services.AuditService, counters *cache.DatabaseStore, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		tokens:           tokens,
		audit:            audit,
		counters:         counters,
		now:              time.Now,
		retention:        defaultAuditRetentionDays,
		auditSchedule:    defaultAuditSpec,
		denylistSchedule: defaultDenylistSpec,
		counterSchedule:  defaultCounterSpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audit.CleanupOlderThan(context.Background(), c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.tokens != nil {
		if _, err := c.cron.AddFunc(c.denylistSchedule, func() {
			if _, err := c.tokens.PurgeExpired(context.Background(), c.now()); err != nil {
				c.log.Warn("denylist cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.counters != nil {
		if _, err := c.cron.AddFunc(c.counterSchedule, func() {
			if _, err := c.counters.PurgeExpired(context.Background(), c.now()); err != nil {
				c.log.Warn("counter cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.tokens != nil {
		if _, err := c.tokens.PurgeExpired(ctx, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.counters != nil {
		if _, err := c.counters.PurgeExpired(ctx, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
