package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/domain/repository"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/search"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/secrets"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

const (
	tenantA = "6f1c2a9e-0c1b-4c55-9a53-2f1d6e7b8c90"
	tenantB = "0d7f3c1a-5e2b-4a8d-b1c3-9e8f7a6b5c4d"
	tenantC = "9b2e4d6f-1a3c-4e5b-8d7f-0a1b2c3d4e5f"
	appID   = "3c4d5e6f-7a8b-4c9d-8e0f-1a2b3c4d5e6f"
)

type fixture struct {
	db      *gorm.DB
	tenants repository.TenantRepository
	posture repository.PostureRepository
	audits  repository.AuditRepository
	secrets *secrets.MemoryStore
	log     logger.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, postgres.Migrate(context.Background(), db))

	log := logger.NewNoopLogger()
	return &fixture{
		db:      db,
		tenants: postgres.NewTenantRepository(db, log),
		posture: postgres.NewPostureRepository(db, log),
		audits:  postgres.NewAuditRepository(db, log),
		secrets: secrets.NewMemoryStore(),
		log:     log,
	}
}

// seedTenant registers an active tenant with a stored credential.
func (f *fixture) seedTenant(t *testing.T, id, department string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.tenants.Upsert(ctx, models.AdminSession(), &models.Tenant{
		TenantID:     id,
		DisplayName:  "Tenant " + id[:4],
		Department:   department,
		RiskTier:     "High",
		AppID:        appID,
		KVSecretName: models.SecretNameFor(id),
		Status:       constants.TenantStatusActive,
		IsActive:     true,
		OnboardedAt:  time.Now().UTC(),
	}))
	require.NoError(t, f.secrets.Put(ctx, models.SecretNameFor(id), "secret-"+id[:4]))
}

func (f *fixture) countTenants(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Tenant{}).Count(&n).Error)
	return n
}

func (f *fixture) auditActions(t *testing.T, tenantID string) []constants.AuditAction {
	t.Helper()
	entries, err := f.audits.ListByTenant(context.Background(), models.AdminSession(), tenantID)
	require.NoError(t, err)
	out := make([]constants.AuditAction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

func batchFor(tenantID string, day time.Time, pct float64) *models.PostureBatch {
	return &models.PostureBatch{
		TenantID:     tenantID,
		SnapshotDate: day,
		Scores: []models.ScoreSnapshot{
			{TenantID: tenantID, SnapshotDate: day, Category: constants.CategoryOverall, CurrentScore: pct, MaxScore: 100},
			{TenantID: tenantID, SnapshotDate: day, Category: constants.CategorySecureScore, CurrentScore: pct / 2, MaxScore: 50},
		},
		Controls: []models.ControlRecord{
			{TenantID: tenantID, SnapshotDate: day, ControlName: "MFARegistrationV2", ControlCategory: "Identity", Score: 5, MaxScore: 10},
		},
	}
}

type fakeTrigger struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeTrigger) TriggerTenantSync(_ context.Context, tenantID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tenantID)
	return f.err
}

type fakePublisher struct {
	mu      sync.Mutex
	entries []*models.AuditLogEntry
}

func (f *fakePublisher) Publish(_ context.Context, e *models.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeIndex struct {
	mu       sync.Mutex
	uploaded []search.Document
	results  []search.Document
	scopes   []string
	err      error
}

func (f *fakeIndex) Upload(_ context.Context, docs []search.Document) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, docs...)
	return len(docs), f.err
}

func (f *fakeIndex) Search(_ context.Context, _ string, tenantID string, _ int) ([]search.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scopes = append(f.scopes, tenantID)
	return f.results, f.err
}

type countingCache struct {
	mu          sync.Mutex
	invalidated int
}

func (c *countingCache) Get(context.Context, string, interface{}) (bool, error) { return false, nil }
func (c *countingCache) Set(context.Context, string, interface{}) error        { return nil }

func (c *countingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	return nil
}
