package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/domain/repository"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/audit"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/secrets"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
	"github.com/turtacn/compliance-advisor/pkg/utils"
)

// Lifecycle step names reported in StepError.
const (
	StepValidate          = "validate"
	StepLookup            = "lookup"
	StepCredential        = "credential"
	StepRegistry          = "registry"
	StepAudit             = "audit"
	StepSyncTrigger       = "sync_trigger"
	StepDeactivate        = "deactivate"
	StepDisableCredential = "disable_credential"
	StepListCredentials   = "list_credentials"
)

// StepError reports which lifecycle step failed. Every step is idempotent, so
// the whole operation can be re-run after fixing the cause.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step string, err error) error {
	return &StepError{Step: step, Err: err}
}

// SyncTrigger schedules an out-of-band sync for a single tenant.
type SyncTrigger interface {
	TriggerTenantSync(ctx context.Context, tenantID, reason string) error
}

// LifecycleAppService onboards and offboards tenants and keeps the credential
// store consistent with the registry.
type LifecycleAppService interface {
	Onboard(ctx context.Context, req *dto.OnboardRequest) (*dto.OnboardResult, error)
	Offboard(ctx context.Context, tenantID, operator string) (*dto.OffboardResult, error)
	RotateSecret(ctx context.Context, tenantID, secret, operator string) error
	Reconcile(ctx context.Context, operator string) (*dto.ReconcileResult, error)
}

type lifecycleAppServiceImpl struct {
	tenants   repository.TenantRepository
	audits    repository.AuditRepository
	secrets   secrets.Store
	trigger   SyncTrigger
	publisher audit.Publisher
	metrics   *monitoring.Metrics
	logger    logger.Logger
	now       func() time.Time
}

// NewLifecycleAppService creates the lifecycle service. All registry calls run
// under the administrative session.
func NewLifecycleAppService(
	tenants repository.TenantRepository,
	audits repository.AuditRepository,
	store secrets.Store,
	trigger SyncTrigger,
	publisher audit.Publisher,
	metrics *monitoring.Metrics,
	log logger.Logger,
) LifecycleAppService {
	if publisher == nil {
		publisher = audit.NoopPublisher{}
	}
	return &lifecycleAppServiceImpl{
		tenants:   tenants,
		audits:    audits,
		secrets:   store,
		trigger:   trigger,
		publisher: publisher,
		metrics:   metrics,
		logger:    log.WithComponent("lifecycle"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Onboard stores the credential, upserts the tenant as active, records the
// operation and triggers a first sync. An existing tenant is updated and reactivated.
func (s *lifecycleAppServiceImpl) Onboard(ctx context.Context, req *dto.OnboardRequest) (result *dto.OnboardResult, err error) {
	defer func() { s.record(constants.AuditActionOnboard, err) }()
	admin := models.AdminSession()

	req.Normalize()
	if err := utils.ValidateStruct(req); err != nil {
		return nil, stepErr(StepValidate, err)
	}
	secretName := models.SecretNameFor(req.TenantID)
	log := s.logger.WithFields(logger.String("tenant_id", req.TenantID), logger.String("operator", req.Operator))

	existing, err := s.tenants.FindByID(ctx, admin, req.TenantID)
	if err != nil && !errors.IsKind(err, errors.KindNotFound) {
		return nil, stepErr(StepLookup, err)
	}

	// Credential first: a registry failure after this leaves an orphan that
	// Reconcile disables.
	if err := s.secrets.Put(ctx, secretName, req.Secret); err != nil {
		return nil, stepErr(StepCredential, err)
	}
	log.Info(ctx, "Tenant credential stored", logger.String("secret_name", secretName))

	now := s.now()
	tenant := &models.Tenant{
		TenantID:       req.TenantID,
		DisplayName:    req.DisplayName,
		Region:         req.Region,
		Department:     req.Department,
		DepartmentHead: req.DepartmentHead,
		RiskTier:       req.RiskTier,
		AppID:          req.AppID,
		KVSecretName:   secretName,
		Status:         constants.TenantStatusActive,
		IsActive:       true,
		OnboardedAt:    now,
		UpdatedAt:      now,
	}
	reactivated := existing != nil && !existing.IsActive
	if existing != nil {
		tenant.CreatedAt = existing.CreatedAt
		if existing.IsActive {
			tenant.OnboardedAt = existing.OnboardedAt
		}
	} else {
		tenant.CreatedAt = now
	}
	if err := s.tenants.Upsert(ctx, admin, tenant); err != nil {
		return nil, stepErr(StepRegistry, err)
	}

	entry := models.NewAuditLogEntry(constants.AuditActionOnboard, req.TenantID, req.Operator, "", map[string]interface{}{
		"display_name": req.DisplayName,
		"region":       req.Region,
		"department":   req.Department,
		"risk_tier":    req.RiskTier,
		"reactivated":  reactivated,
	})
	if err := s.appendAudit(ctx, entry); err != nil {
		return nil, stepErr(StepAudit, err)
	}

	if err := s.trigger.TriggerTenantSync(ctx, req.TenantID, "onboard"); err != nil {
		return nil, stepErr(StepSyncTrigger, err)
	}

	log.Info(ctx, "Tenant onboarded", logger.Bool("reactivated", reactivated))
	return &dto.OnboardResult{
		TenantID:    req.TenantID,
		SecretName:  secretName,
		Reactivated: reactivated,
		OnboardedAt: tenant.OnboardedAt,
	}, nil
}

// Offboard deactivates the tenant, records one audit entry and disables the
// credential. Running it against an inactive tenant changes nothing except
// finishing the steps an interrupted earlier run left undone.
func (s *lifecycleAppServiceImpl) Offboard(ctx context.Context, tenantID, operator string) (result *dto.OffboardResult, err error) {
	defer func() { s.record(constants.AuditActionOffboard, err) }()
	admin := models.AdminSession()
	tenantID = utils.NormalizeIdentifier(tenantID)

	if err := utils.ValidateIdentifier("tenant_id", tenantID); err != nil {
		return nil, stepErr(StepValidate, err)
	}
	if operator == "" {
		return nil, stepErr(StepValidate, errors.Validation("operator is required"))
	}

	tenant, err := s.tenants.FindByID(ctx, admin, tenantID)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return nil, stepErr(StepLookup, errors.Referential("tenant %s is not registered", tenantID))
		}
		return nil, stepErr(StepLookup, err)
	}

	deactivated, err := s.tenants.Deactivate(ctx, admin, tenantID)
	if err != nil {
		return nil, stepErr(StepDeactivate, err)
	}
	result = &dto.OffboardResult{TenantID: tenantID, NoOp: !deactivated}

	// The key is fixed per lifecycle epoch so re-runs never duplicate the entry.
	key := "offboard:" + tenantID + ":" + strconv.FormatInt(tenant.OnboardedAt.Unix(), 10)
	entry := models.NewAuditLogEntry(constants.AuditActionOffboard, tenantID, operator, key, map[string]interface{}{
		"display_name": tenant.DisplayName,
		"department":   tenant.Department,
	})
	inserted, err := s.audits.Append(ctx, entry)
	if err != nil {
		return nil, stepErr(StepAudit, err)
	}
	result.AuditWritten = inserted
	if inserted {
		s.publish(ctx, entry)
	}

	if err := s.secrets.Disable(ctx, tenant.KVSecretName); err != nil && !errors.IsKind(err, errors.KindNotFound) {
		return nil, stepErr(StepDisableCredential, err)
	}

	switch {
	case result.NoOp && inserted:
		s.logger.Warn(ctx, "Completed an interrupted offboard", logger.String("tenant_id", tenantID))
	case result.NoOp:
		s.logger.Info(ctx, "Tenant already inactive, nothing to do", logger.String("tenant_id", tenantID))
	default:
		s.logger.Info(ctx, "Tenant offboarded", logger.String("tenant_id", tenantID), logger.String("operator", operator))
	}
	return result, nil
}

// RotateSecret writes a new credential version for an active tenant.
func (s *lifecycleAppServiceImpl) RotateSecret(ctx context.Context, tenantID, secret, operator string) (err error) {
	defer func() { s.record(constants.AuditActionRotateSecret, err) }()
	tenantID = utils.NormalizeIdentifier(tenantID)

	if err := utils.ValidateIdentifier("tenant_id", tenantID); err != nil {
		return stepErr(StepValidate, err)
	}
	if secret == "" || operator == "" {
		return stepErr(StepValidate, errors.Validation("secret and operator are required"))
	}

	tenant, err := s.tenants.FindByID(ctx, models.AdminSession(), tenantID)
	switch {
	case errors.IsKind(err, errors.KindNotFound):
		return stepErr(StepLookup, errors.Referential("tenant %s is not registered", tenantID))
	case err != nil:
		return stepErr(StepLookup, err)
	case !tenant.IsActive:
		return stepErr(StepLookup, errors.Referential("tenant %s is not active", tenantID))
	}

	if err := s.secrets.Put(ctx, tenant.KVSecretName, secret); err != nil {
		return stepErr(StepCredential, err)
	}
	entry := models.NewAuditLogEntry(constants.AuditActionRotateSecret, tenantID, operator, "", nil)
	if err := s.appendAudit(ctx, entry); err != nil {
		return stepErr(StepAudit, err)
	}

	s.logger.Info(ctx, "Tenant credential rotated", logger.String("tenant_id", tenantID))
	return nil
}

// Reconcile disables credentials that have no active tenant behind them:
// orphans left by a failed onboarding and leftovers of an interrupted offboard.
// Active tenants without a usable credential are reported, not repaired.
func (s *lifecycleAppServiceImpl) Reconcile(ctx context.Context, operator string) (result *dto.ReconcileResult, err error) {
	defer func() { s.record(constants.AuditActionReconcile, err) }()
	admin := models.AdminSession()

	infos, err := s.secrets.List(ctx)
	if err != nil {
		return nil, stepErr(StepListCredentials, err)
	}
	tenants, err := s.tenants.List(ctx, admin, false)
	if err != nil {
		return nil, stepErr(StepLookup, err)
	}
	byID := make(map[string]models.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.TenantID] = t
	}

	result = &dto.ReconcileResult{
		DisabledOrphans:   []string{},
		DisabledInactive:  []string{},
		MissingCredential: []string{},
	}
	enabled := make(map[string]bool)
	for _, info := range infos {
		tenantID, ok := models.TenantIDFromSecretName(info.Name)
		if !ok {
			continue
		}
		result.Checked++
		enabled[tenantID] = info.Enabled

		tenant, registered := byID[tenantID]
		if !info.Enabled || (registered && tenant.IsActive) {
			continue
		}
		if err := s.secrets.Disable(ctx, info.Name); err != nil {
			return result, stepErr(StepDisableCredential, err)
		}
		enabled[tenantID] = false

		if !registered {
			result.DisabledOrphans = append(result.DisabledOrphans, tenantID)
			s.logger.Warn(ctx, "Disabled orphaned credential", logger.String("secret_name", info.Name))
			continue
		}
		result.DisabledInactive = append(result.DisabledInactive, tenantID)
		entry := models.NewAuditLogEntry(constants.AuditActionReconcile, tenantID, operator, "", map[string]interface{}{
			"disabled_credential": info.Name,
		})
		if err := s.appendAudit(ctx, entry); err != nil {
			return result, stepErr(StepAudit, err)
		}
	}

	for _, t := range tenants {
		if t.IsActive && !enabled[t.TenantID] {
			result.MissingCredential = append(result.MissingCredential, t.TenantID)
		}
	}

	s.logger.Info(ctx, "Reconciliation finished",
		logger.Int("checked", result.Checked),
		logger.Int("disabled_orphans", len(result.DisabledOrphans)),
		logger.Int("disabled_inactive", len(result.DisabledInactive)),
		logger.Int("missing_credential", len(result.MissingCredential)),
	)
	return result, nil
}

func (s *lifecycleAppServiceImpl) appendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	inserted, err := s.audits.Append(ctx, entry)
	if err != nil {
		return err
	}
	if inserted {
		s.publish(ctx, entry)
	}
	return nil
}

// publish is best-effort; the database row is the record of truth.
func (s *lifecycleAppServiceImpl) publish(ctx context.Context, entry *models.AuditLogEntry) {
	if err := s.publisher.Publish(ctx, entry); err != nil {
		s.logger.Warn(ctx, "Audit publish failed",
			logger.String("operation_key", entry.OperationKey),
			logger.String("error", err.Error()),
		)
	}
}

func (s *lifecycleAppServiceImpl) record(action constants.AuditAction, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.RecordLifecycle(string(action), result)
}
