package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/application/service"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/pkg/errors"
)

const testTenant = "1f0e2d3c-4b5a-4697-8877-66554433aa11"

type mockLifecycle struct{ mock.Mock }

func (m *mockLifecycle) Onboard(ctx context.Context, req *dto.OnboardRequest) (*dto.OnboardResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*dto.OnboardResult)
	return res, args.Error(1)
}

func (m *mockLifecycle) Offboard(ctx context.Context, tenantID, operator string) (*dto.OffboardResult, error) {
	args := m.Called(ctx, tenantID, operator)
	res, _ := args.Get(0).(*dto.OffboardResult)
	return res, args.Error(1)
}

func (m *mockLifecycle) RotateSecret(ctx context.Context, tenantID, secret, operator string) error {
	return m.Called(ctx, tenantID, secret, operator).Error(0)
}

func (m *mockLifecycle) Reconcile(ctx context.Context, operator string) (*dto.ReconcileResult, error) {
	args := m.Called(ctx, operator)
	res, _ := args.Get(0).(*dto.ReconcileResult)
	return res, args.Error(1)
}

type mockSync struct{ mock.Mock }

func (m *mockSync) SyncAll(ctx context.Context) (*dto.SyncReport, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*dto.SyncReport)
	return res, args.Error(1)
}

func (m *mockSync) SyncTenant(ctx context.Context, tenant models.Tenant) (dto.SyncResult, error) {
	args := m.Called(ctx, tenant)
	return args.Get(0).(dto.SyncResult), args.Error(1)
}

func (m *mockSync) SyncTenantByID(ctx context.Context, tenantID string) error {
	return m.Called(ctx, tenantID).Error(0)
}

type harness struct {
	lifecycle *mockLifecycle
	sync      *mockSync
	opened    int
	closed    int
	migrated  int
}

func newHarness() *harness {
	return &harness{lifecycle: &mockLifecycle{}, sync: &mockSync{}}
}

func (h *harness) env() *env {
	return &env{
		loadConfig: func(string) (*config.Config, error) {
			return &config.Config{Auth: config.AuthConfig{JWTSecret: "cli-secret", Issuer: "compliance-advisor"}}, nil
		},
		open: func(context.Context, *config.Config) (*services, func(), error) {
			h.opened++
			return &services{Lifecycle: h.lifecycle, Sync: h.sync}, func() { h.closed++ }, nil
		},
		migrate: func(context.Context, *config.Config) error {
			h.migrated++
			return nil
		},
	}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(h.env())
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--operator", "ops@example.com"))
	err := cmd.Execute()
	return out.String(), err
}

func TestOnboardReadsSecretFromStdin(t *testing.T) {
	h := newHarness()
	h.lifecycle.On("Onboard", mock.Anything, mock.MatchedBy(func(req *dto.OnboardRequest) bool {
		return req.TenantID == testTenant && req.Secret == "s3cr3t" && req.Operator == "ops@example.com" && req.Department == "Finance"
	})).Return(&dto.OnboardResult{TenantID: testTenant, SecretName: "tenant-" + testTenant}, nil)

	out, err := h.run(t, "s3cr3t\n", "onboard",
		"--tenant-id", testTenant, "--app-id", testTenant, "--display-name", "Contoso", "--department", "Finance")
	require.NoError(t, err)
	assert.Contains(t, out, `"secret_name": "tenant-`+testTenant+`"`)
	assert.NotContains(t, out, "s3cr3t")
	assert.Equal(t, 1, h.closed)
	h.lifecycle.AssertExpectations(t)
}

func TestOnboardRequiresSecret(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "\n", "onboard", "--tenant-id", testTenant, "--app-id", testTenant, "--display-name", "Contoso")
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	assert.Zero(t, h.opened, "no backend is touched without a secret")
}

func TestOnboardRequiresFlags(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "s3cr3t", "onboard", "--tenant-id", testTenant)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app-id")
}

func TestFailureNamesStep(t *testing.T) {
	h := newHarness()
	stepErr := &service.StepError{Step: service.StepRegistry, Err: errors.TransientUpstream("database unavailable")}
	h.lifecycle.On("Offboard", mock.Anything, testTenant, "ops@example.com").Return(nil, stepErr)

	_, err := h.run(t, "", "offboard", "--tenant-id", testTenant)
	require.Error(t, err)
	msg := describeFailure(err)
	assert.Contains(t, msg, "registry step failed")
	assert.Contains(t, msg, string(errors.KindTransientUpstream))
}

func TestOffboardNoOp(t *testing.T) {
	h := newHarness()
	h.lifecycle.On("Offboard", mock.Anything, testTenant, "ops@example.com").
		Return(&dto.OffboardResult{TenantID: testTenant, NoOp: true}, nil)

	out, err := h.run(t, "", "offboard", "--tenant-id", testTenant)
	require.NoError(t, err)
	assert.Contains(t, out, "already inactive")
}

func TestRotateSecret(t *testing.T) {
	h := newHarness()
	h.lifecycle.On("RotateSecret", mock.Anything, testTenant, "n3w", "ops@example.com").Return(nil)

	out, err := h.run(t, "n3w\r\n", "rotate-secret", "--tenant-id", testTenant)
	require.NoError(t, err)
	assert.Contains(t, out, "secret rotated")
	h.lifecycle.AssertExpectations(t)
}

func TestReconcile(t *testing.T) {
	h := newHarness()
	h.lifecycle.On("Reconcile", mock.Anything, "ops@example.com").
		Return(&dto.ReconcileResult{Checked: 2, DisabledOrphans: []string{"tenant-x"}}, nil)

	out, err := h.run(t, "", "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, `"checked": 2`)
	assert.Contains(t, out, "tenant-x")
}

func TestSync(t *testing.T) {
	t.Run("single tenant", func(t *testing.T) {
		h := newHarness()
		h.sync.On("SyncTenantByID", mock.Anything, testTenant).Return(nil)
		_, err := h.run(t, "", "sync", "--tenant-id", testTenant)
		require.NoError(t, err)
		h.sync.AssertExpectations(t)
	})

	t.Run("failed tenants exit non-zero", func(t *testing.T) {
		h := newHarness()
		h.sync.On("SyncAll", mock.Anything).Return(&dto.SyncReport{Results: []dto.SyncResult{
			{TenantID: "a", Outcome: service.SyncSucceeded},
			{TenantID: "b", Outcome: service.SyncFailed, Error: "boom"},
		}}, nil)
		out, err := h.run(t, "", "sync")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 tenants failed")
		assert.Contains(t, out, `"outcome": "failed"`)
	})

	t.Run("invariant violation", func(t *testing.T) {
		h := newHarness()
		h.sync.On("SyncAll", mock.Anything).Return(nil, errors.Invariant("cross-tenant row"))
		_, err := h.run(t, "", "sync")
		assert.True(t, errors.IsInvariant(err))
	})
}

func TestMigrate(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "", "migrate")
	require.NoError(t, err)
	assert.Equal(t, 1, h.migrated)
	assert.Zero(t, h.opened)
	assert.Contains(t, out, "schema up to date")
}

func TestToken(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "", "token", "--tenant-id", testTenant)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, testTenant, claims["tenant_id"])

	_, err = h.run(t, "", "token")
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	_, err = h.run(t, "", "token", "--admin", "--tenant-id", testTenant)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}
