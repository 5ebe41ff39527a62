package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/domain/repository"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/graph"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/persistence/redis"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/search"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/secrets"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
	"github.com/turtacn/compliance-advisor/pkg/utils"
)

// Per-tenant sync outcomes.
const (
	SyncSucceeded = "succeeded"
	SyncSkipped   = "skipped"
	SyncFailed    = "failed"
)

// PostureCollector fetches one tenant's posture from the external source.
type PostureCollector interface {
	Collect(ctx context.Context, creds graph.Credentials) (*models.PostureBatch, error)
}

// SyncAppService runs the daily posture sync.
type SyncAppService interface {
	// SyncAll fans out one task per active tenant. Only invariant violations are
	// returned as errors; every other failure is recorded in the report.
	SyncAll(ctx context.Context) (*dto.SyncReport, error)

	// SyncTenant syncs one tenant and reports its outcome.
	SyncTenant(ctx context.Context, tenant models.Tenant) (dto.SyncResult, error)

	// SyncTenantByID looks the tenant up and syncs it. A failed outcome is
	// returned as a transient error so the caller's queue retries it.
	SyncTenantByID(ctx context.Context, tenantID string) error
}

type syncAppServiceImpl struct {
	tenants   repository.TenantRepository
	posture   repository.PostureRepository
	secrets   secrets.Store
	collector PostureCollector
	index     search.Index
	cache     redis.ReportCache
	cfg       config.SyncConfig
	metrics   *monitoring.Metrics
	logger    logger.Logger
	now       func() time.Time
}

func NewSyncAppService(
	tenants repository.TenantRepository,
	posture repository.PostureRepository,
	store secrets.Store,
	collector PostureCollector,
	index search.Index,
	cache redis.ReportCache,
	cfg config.SyncConfig,
	metrics *monitoring.Metrics,
	log logger.Logger,
) SyncAppService {
	if index == nil {
		index = search.NoopIndex{}
	}
	if cache == nil {
		cache = redis.NoopReportCache{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &syncAppServiceImpl{
		tenants:   tenants,
		posture:   posture,
		secrets:   store,
		collector: collector,
		index:     index,
		cache:     cache,
		cfg:       cfg,
		metrics:   metrics,
		logger:    log.WithComponent("sync"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *syncAppServiceImpl) SyncAll(ctx context.Context) (*dto.SyncReport, error) {
	admin := models.AdminSession()
	report := &dto.SyncReport{StartedAt: s.now()}

	tenants, err := s.tenants.List(ctx, admin, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Sync started", logger.Int("tenants", len(tenants)), logger.Int("concurrency", s.cfg.Concurrency))

	results := make([]dto.SyncResult, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i := range tenants {
		i, tenant := i, tenants[i]
		g.Go(func() error {
			res, err := s.SyncTenant(gctx, tenant)
			results[i] = res
			// Only invariant violations reach here, and they stop the run.
			return err
		})
	}
	if err := g.Wait(); err != nil {
		report.Results = results
		report.FinishedAt = s.now()
		s.logger.Error(ctx, "Sync aborted by invariant violation", err)
		return report, err
	}
	report.Results = results

	indexed, err := s.reindex(ctx, admin)
	if err != nil {
		s.logger.Warn(ctx, "Search reindex failed", logger.String("error", err.Error()))
	}
	report.Indexed = indexed

	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn(ctx, "Report cache invalidation failed", logger.String("error", err.Error()))
	}

	report.FinishedAt = s.now()
	s.logger.Info(ctx, "Sync finished",
		logger.Int(SyncSucceeded, report.Count(SyncSucceeded)),
		logger.Int(SyncSkipped, report.Count(SyncSkipped)),
		logger.Int(SyncFailed, report.Count(SyncFailed)),
		logger.Int("indexed", indexed),
		logger.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *syncAppServiceImpl) SyncTenant(ctx context.Context, tenant models.Tenant) (dto.SyncResult, error) {
	start := time.Now()
	res := dto.SyncResult{TenantID: tenant.TenantID}
	log := s.logger.WithFields(logger.String("tenant_id", tenant.TenantID))

	timeout := s.cfg.TenantTimeoutDuration()
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.syncOne(tctx, tenant, &res)
	res.Duration = time.Since(start)
	switch {
	case err == nil:
		res.Outcome = SyncSucceeded
		log.Info(ctx, "Tenant synced", logger.Int("attempts", res.Attempts), logger.Duration("duration", res.Duration))
	case errors.IsInvariant(err):
		res.Outcome = SyncFailed
		res.Error = err.Error()
		s.metrics.RecordSyncTask(res.Outcome, res.Duration)
		return res, err
	case errors.IsKind(err, errors.KindReferential), errors.IsKind(err, errors.KindNotFound):
		// Offboarded mid-run or credential gone: the next cycle excludes it.
		res.Outcome = SyncSkipped
		res.Error = err.Error()
		log.Warn(ctx, "Tenant sync skipped", logger.String("reason", err.Error()))
	default:
		res.Outcome = SyncFailed
		res.Error = err.Error()
		log.Error(ctx, "Tenant sync failed for today", err, logger.Int("attempts", res.Attempts))
	}
	s.metrics.RecordSyncTask(res.Outcome, res.Duration)
	return res, nil
}

func (s *syncAppServiceImpl) syncOne(ctx context.Context, tenant models.Tenant, res *dto.SyncResult) error {
	secret, err := s.secrets.Get(ctx, tenant.KVSecretName)
	if err != nil {
		return err
	}
	creds := graph.Credentials{TenantID: tenant.TenantID, AppID: tenant.AppID, Secret: secret}

	var batch *models.PostureBatch
	err = s.retry(ctx, res, func() error {
		b, err := s.collector.Collect(ctx, creds)
		if err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return err
	}

	sess := models.TenantSession(tenant.TenantID)
	if !batch.IsEmpty() {
		if err := s.retry(ctx, res, func() error { return s.posture.WriteBatch(ctx, sess, batch) }); err != nil {
			return err
		}
	}
	return s.tenants.MarkSynced(ctx, sess, tenant.TenantID, s.now())
}

// retry runs op with exponential backoff, retrying only transient upstream errors.
func (s *syncAppServiceImpl) retry(ctx context.Context, res *dto.SyncResult, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	if s.cfg.InitialBackoff > 0 {
		eb.InitialInterval = time.Duration(s.cfg.InitialBackoff) * time.Millisecond
	}
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.MaxAttempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		res.Attempts++
		err := op()
		if err != nil && !errors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		s.logger.Warn(ctx, "Transient sync error, retrying",
			logger.String("tenant_id", res.TenantID),
			logger.String("error", err.Error()),
			logger.Duration("wait", wait),
		)
	})
}

func (s *syncAppServiceImpl) reindex(ctx context.Context, admin models.Session) (int, error) {
	tenants, err := s.tenants.List(ctx, admin, true)
	if err != nil {
		return 0, err
	}
	controls, err := s.posture.ListLatestControls(ctx, admin)
	if err != nil {
		return 0, err
	}
	return s.index.Upload(ctx, search.DocumentsFrom(tenants, controls))
}

func (s *syncAppServiceImpl) SyncTenantByID(ctx context.Context, tenantID string) error {
	tenantID = utils.NormalizeIdentifier(tenantID)
	tenant, err := s.tenants.FindByID(ctx, models.AdminSession(), tenantID)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return errors.Referential("tenant %s is not registered", tenantID)
		}
		return err
	}
	if !tenant.IsActive {
		return errors.Referential("tenant %s is not active", tenantID)
	}

	res, err := s.SyncTenant(ctx, *tenant)
	if err != nil {
		return err
	}
	if res.Outcome == SyncFailed {
		return errors.TransientUpstream("sync of tenant %s failed: %s", tenantID, res.Error)
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn(ctx, "Report cache invalidation failed", logger.String("error", err.Error()))
	}
	return nil
}
