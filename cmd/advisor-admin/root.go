package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/compliance-advisor/internal/app"
	"github.com/turtacn/compliance-advisor/internal/application/service"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// services is the subset of the application the commands drive.
type services struct {
	Lifecycle service.LifecycleAppService
	Sync      service.SyncAppService
	Advisor   service.AdvisorAppService
}

// env resolves configuration and dependencies. Tests replace its functions.
type env struct {
	loadConfig func(file string) (*config.Config, error)
	open       func(ctx context.Context, cfg *config.Config) (*services, func(), error)
	migrate    func(ctx context.Context, cfg *config.Config) error
}

func defaultEnv() *env {
	return &env{
		loadConfig: config.LoadConfig,
		open: func(ctx context.Context, cfg *config.Config) (*services, func(), error) {
			log, err := newLogger(cfg)
			if err != nil {
				return nil, nil, err
			}
			c, err := app.New(ctx, cfg, log)
			if err != nil {
				return nil, nil, err
			}
			return &services{Lifecycle: c.Lifecycle, Sync: c.Sync, Advisor: c.Advisor}, c.Close, nil
		},
		migrate: func(ctx context.Context, cfg *config.Config) error {
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			conn, err := postgres.NewDBConnection(ctx, &cfg.Database, log)
			if err != nil {
				return err
			}
			defer conn.Close()
			return postgres.Migrate(ctx, conn.DB())
		},
	}
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	// Keep stdout for command output.
	logCfg := cfg.Log
	logCfg.Output = "stderr"
	if logCfg.Level == "" || logCfg.Level == string(constants.LogLevelInfo) {
		logCfg.Level = string(constants.LogLevelWarn)
	}
	return monitoring.NewZapLogger(&logCfg)
}

type rootOptions struct {
	configFile string
	operator   string
	cfg        *config.Config
}

func newRootCmd(e *env) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "advisor-admin",
		Short:         "Administer the compliance advisor",
		Long:          `advisor-admin onboards and offboards tenants, rotates their credentials and runs maintenance tasks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&opts.operator, "operator", os.Getenv("USER"), "operator identity recorded in the audit log")

	root.AddCommand(
		newOnboardCmd(e, opts),
		newOffboardCmd(e, opts),
		newRotateSecretCmd(e, opts),
		newReconcileCmd(e, opts),
		newSyncCmd(e, opts),
		newDigestCmd(e, opts),
		newMigrateCmd(e, opts),
		newTokenCmd(opts),
	)
	return root
}

// withServices opens the application for the duration of fn.
func withServices(cmd *cobra.Command, e *env, opts *rootOptions, fn func(ctx context.Context, s *services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, closeFn, err := e.open(ctx, opts.cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer closeFn()
	return fn(ctx, s)
}

func requireOperator(opts *rootOptions) error {
	if strings.TrimSpace(opts.operator) == "" {
		return errors.Validation("--operator is required when $USER is unset")
	}
	return nil
}

// readSecret reads a credential from r. Secrets are never accepted as flags.
func readSecret(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read secret from stdin: %w", err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if strings.TrimSpace(secret) == "" {
		return "", errors.Validation("a secret must be supplied on standard input")
	}
	return secret, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describeFailure renders err with the failing lifecycle step when known.
func describeFailure(err error) string {
	var stepErr *service.StepError
	if stderrors.As(err, &stepErr) {
		return fmt.Sprintf("error: %s step failed (%s): %v", stepErr.Step, errors.KindOf(stepErr.Err), stepErr.Err)
	}
	return fmt.Sprintf("error: %v", err)
}
