package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
)

func newOnboardCmd(e *env, opts *rootOptions) *cobra.Command {
	req := &dto.OnboardRequest{}
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Register a tenant and store its client secret",
		Long: `Stores the tenant's client secret, registers or reactivates the tenant and
queues an initial sync. The secret is read from standard input:

  advisor-admin onboard --tenant-id ... --app-id ... --display-name ... < secret.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOperator(opts); err != nil {
				return err
			}
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			req.Secret = secret
			req.Operator = opts.operator
			return withServices(cmd, e, opts, func(ctx context.Context, s *services) error {
				res, err := s.Lifecycle.Onboard(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.TenantID, "tenant-id", "", "directory tenant id (uuid)")
	f.StringVar(&req.AppID, "app-id", "", "application (client) id (uuid)")
	f.StringVar(&req.DisplayName, "display-name", "", "tenant display name")
	f.StringVar(&req.Region, "region", "", "region")
	f.StringVar(&req.Department, "department", "", "owning department")
	f.StringVar(&req.DepartmentHead, "department-head", "", "department head")
	f.StringVar(&req.RiskTier, "risk-tier", "", "Critical, High, Medium or Low")
	for _, name := range []string{"tenant-id", "app-id", "display-name"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newOffboardCmd(e *env, opts *rootOptions) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "offboard",
		Short: "Deactivate a tenant and disable its stored secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOperator(opts); err != nil {
				return err
			}
			return withServices(cmd, e, opts, func(ctx context.Context, s *services) error {
				res, err := s.Lifecycle.Offboard(ctx, tenantID, opts.operator)
				if err != nil {
					return err
				}
				if res.NoOp {
					fmt.Fprintf(cmd.ErrOrStderr(), "tenant %s was already inactive\n", tenantID)
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "directory tenant id (uuid)")
	_ = cmd.MarkFlagRequired("tenant-id")
	return cmd
}

func newRotateSecretCmd(e *env, opts *rootOptions) *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "rotate-secret",
		Short: "Replace a tenant's client secret with one read from standard input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOperator(opts); err != nil {
				return err
			}
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withServices(cmd, e, opts, func(ctx context.Context, s *services) error {
				if err := s.Lifecycle.RotateSecret(ctx, tenantID, secret, opts.operator); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "secret rotated for tenant %s\n", tenantID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "directory tenant id (uuid)")
	_ = cmd.MarkFlagRequired("tenant-id")
	return cmd
}

func newReconcileCmd(e *env, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Disable orphaned or inactive credentials and report tenants missing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireOperator(opts); err != nil {
				return err
			}
			return withServices(cmd, e, opts, func(ctx context.Context, s *services) error {
				res, err := s.Lifecycle.Reconcile(ctx, opts.operator)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}
