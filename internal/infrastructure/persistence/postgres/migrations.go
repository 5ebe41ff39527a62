package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/pkg/errors"
)

const auditImmutableMessage = "audit_log is append-only"

// tenantForeignKeys lists the tables whose tenant_id must reference tenants.
var tenantForeignKeys = []string{
	"score_snapshots",
	"control_records",
	"assessments",
	"assessment_controls",
	"audit_log",
}

var postgresAuditTrigger = []string{
	`CREATE OR REPLACE FUNCTION audit_log_immutable() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION '` + auditImmutableMessage + `' USING ERRCODE = 'P0001';
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_audit_log_immutable ON audit_log`,
	`CREATE TRIGGER trg_audit_log_immutable BEFORE UPDATE OR DELETE ON audit_log
	FOR EACH ROW EXECUTE FUNCTION audit_log_immutable()`,
}

var sqliteAuditTriggers = []string{
	`CREATE TRIGGER IF NOT EXISTS trg_audit_log_no_update BEFORE UPDATE ON audit_log
	BEGIN SELECT RAISE(ABORT, '` + auditImmutableMessage + `'); END`,
	`CREATE TRIGGER IF NOT EXISTS trg_audit_log_no_delete BEFORE DELETE ON audit_log
	BEGIN SELECT RAISE(ABORT, '` + auditImmutableMessage + `'); END`,
}

// Migrate creates or updates the schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx)
	if err := tx.AutoMigrate(
		&models.Tenant{},
		&models.ScoreSnapshot{},
		&models.ControlRecord{},
		&models.Assessment{},
		&models.AssessmentControl{},
		&models.AuditLogEntry{},
	); err != nil {
		return fmt.Errorf("%w: automigrate: %v", errors.ErrDatabaseOperation, err)
	}

	var stmts []string
	switch db.Dialector.Name() {
	case "postgres":
		for _, table := range tenantForeignKeys {
			stmts = append(stmts, foreignKeyStatement(table))
		}
		stmts = append(stmts, postgresAuditTrigger...)
	case "sqlite":
		// SQLite cannot add constraints to existing tables; repositories check
		// tenant existence inside the write transaction instead.
		stmts = sqliteAuditTriggers
	}

	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w: migrate: %v", errors.ErrDatabaseOperation, err)
		}
	}
	return nil
}

func foreignKeyStatement(table string) string {
	name := "fk_" + table + "_tenant"
	return fmt.Sprintf(`DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%[1]s') THEN
		ALTER TABLE %[2]s ADD CONSTRAINT %[1]s FOREIGN KEY (tenant_id) REFERENCES tenants (tenant_id);
	END IF;
END $$`, name, table)
}
