package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/compliance-advisor/internal/application/service"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/interfaces/http/middleware"
	"github.com/turtacn/compliance-advisor/pkg/errors"
)

func newSyncCmd(e *env, opts *rootOptions) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the posture sync now, for every active tenant or a single one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, e, opts, func(ctx context.Context, s *services) error {
				if tenantID != "" {
					if err := s.Sync.SyncTenantByID(ctx, tenantID); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "tenant %s synced\n", tenantID)
					return nil
				}
				report, err := s.Sync.SyncAll(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if failed := report.Count(service.SyncFailed); failed > 0 {
					return errors.Upstream("%d of %d tenants failed to sync", failed, len(report.Results))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "sync only this tenant")
	return cmd
}

func newDigestCmd(e *env, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Generate the weekly digest and post it to the configured channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd, e, opts, func(ctx context.Context, s *services) error {
				res, err := s.Advisor.WeeklyDigest(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Briefing)
				return nil
			})
		},
	}
}

func newMigrateCmd(e *env, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := e.migrate(ctx, opts.cfg); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		tenantID string
		admin    bool
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token for the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if admin == (tenantID != "") {
				return errors.Validation("exactly one of --tenant-id or --admin is required")
			}
			sess := models.TenantSession(tenantID)
			if admin {
				sess = models.AdminSession()
			}
			token, err := middleware.SignSessionToken(opts.cfg.Auth, sess, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "scope the token to this tenant")
	cmd.Flags().BoolVar(&admin, "admin", false, "issue a cross-tenant admin token")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	return cmd
}
