package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/adapter-registry/pkg/auth"
	"github.com/nimburion/adapter-registry/pkg/config"
	"github.com/nimburion/adapter-registry/pkg/health"
	"github.com/nimburion/adapter-registry/pkg/middleware/ratelimit"
	"github.com/nimburion/adapter-registry/pkg/observability/logger"
	"github.com/nimburion/adapter-registry/pkg/observability/metrics"
	"github.com/nimburion/adapter-registry/pkg/observability/tracing"
	"github.com/nimburion/adapter-registry/pkg/server"
	"github.com/nimburion/adapter-registry/pkg/version"
	"github.com/nimburion/adapter-registry/pkg/worker"
)

type loadFunc func(*cobra.Command) (*loadedConfig, error)

const readinessCacheTTL = 2 * time.Second

func newServeCommand(opts Options, load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the public API and management servers, plus the queue worker when sqs.enabled is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			lc, err := load(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts, lc, true, lc.cfg.SQS.Enabled)
		},
	}
	cmd.Flags().Int("port", 0, "public API port")
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyRun})
	return cmd
}

func newWorkerCommand(opts Options, load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Ingest uploaded adapter types announced on the notification queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			lc, err := load(cmd)
			if err != nil {
				return err
			}
			if lc.cfg.SQS.QueueURL == "" {
				return errors.New("sqs.queue_url is required to run the worker")
			}
			return run(cmd.Context(), opts, lc, false, true)
		},
	}
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyRun})
	return cmd
}

// run starts the long-running components until SIGINT or SIGTERM. The
// management server runs whenever it is enabled.
func run(ctx context.Context, opts Options, lc *loadedConfig, withAPI, withWorker bool) error {
	cfg, log := lc.cfg, lc.log
	info := version.Current(cfg.Service.Name)
	log.Info("starting", "version", info.String(), "api", withAPI, "worker", withWorker)

	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: info.Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		Insecure:       cfg.Observability.TracingInsecure,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	// Hooks run last registered first.
	var hooks []server.LifecycleHook
	if syncer, ok := log.(interface{ Sync() error }); ok {
		hooks = append(hooks, server.LifecycleHook{Name: "logger", Fn: func(context.Context) error {
			// stdout cannot be fsynced on most platforms
			_ = syncer.Sync()
			return nil
		}})
	}
	hooks = append(hooks, server.LifecycleHook{Name: "tracer", Fn: tp.Shutdown})

	backend, err := opts.NewBackend(ctx, cfg, log, withWorker)
	if err != nil {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	hooks = append(hooks, server.LifecycleHook{Name: "backend", Fn: func(context.Context) error {
		return backend.Close()
	}})

	components, err := buildComponents(cfg, log, backend, withAPI, withWorker)
	if err != nil {
		_ = backend.Close()
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	return server.RunWithSignals(server.RunOptions{
		Components:    components,
		Logger:        log,
		ShutdownHooks: hooks,
	})
}

func buildComponents(cfg *config.Config, log logger.Logger, backend *Backend, withAPI, withWorker bool) ([]server.Component, error) {
	var components []server.Component

	if withAPI {
		authorizer, err := newAuthorizer(cfg.Auth, log)
		if err != nil {
			return nil, err
		}
		var limiter ratelimit.RateLimiter
		if cfg.RateLimit.Enabled {
			limiter = ratelimit.NewTokenBucketLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		}
		public := server.NewPublicServer(cfg.HTTP, server.PublicOptions{
			API:        server.NewAPI(backend.Registry, cfg.DynamoDB.Table, cfg.S3.Bucket, log),
			Authorizer: authorizer,
			Limiter:    limiter,
			Logger:     log,
		})
		components = append(components, server.ServerComponent(public))
	}

	if withWorker {
		if backend.Consumer == nil {
			return nil, errors.New("queue consumer is not configured")
		}
		w := worker.New(backend.Consumer, backend.Registry, cfg.DynamoDB.Table, log).WithQueue(cfg.SQS.QueueURL)
		components = append(components, server.Component{Name: "worker", Run: w.Run})
	}

	if cfg.Management.Enabled {
		checks := health.NewRegistry(health.WithCacheTTL(readinessCacheTTL))
		for _, c := range backend.Checks {
			checks.Register(c)
		}
		mgmt, err := server.NewManagementServer(cfg.Management, server.ManagementOptions{
			Health:  checks,
			Metrics: metrics.NewRegistry(),
			Version: version.Current(cfg.Service.Name),
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("create management server: %w", err)
		}
		components = append(components, server.ServerComponent(mgmt))
	}

	return components, nil
}

func newAuthorizer(cfg config.AuthConfig, log logger.Logger) (*auth.Authorizer, error) {
	var validator auth.JWTValidator
	if cfg.JWTEnabled {
		v, err := auth.NewHMACValidator([]byte(cfg.JWTSecret), cfg.Issuer, cfg.Audience, log)
		if err != nil {
			return nil, fmt.Errorf("create jwt validator: %w", err)
		}
		validator = v
	}
	return auth.NewAuthorizer(validator, log), nil
}

// withBackend loads the configuration, connects the registry backend and
// runs fn against it.
func withBackend(cmd *cobra.Command, opts Options, load loadFunc, fn func(ctx context.Context, cfg *config.Config, b *Backend) error) error {
	lc, err := load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := opts.NewBackend(ctx, lc.cfg, lc.log, false)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			lc.log.Warn("failed to close backend", "error", closeErr)
		}
	}()
	return fn(ctx, lc.cfg, b)
}

func newListCommand(opts Options, load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the indexed adapter types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, load, func(ctx context.Context, cfg *config.Config, b *Backend) error {
				items, err := b.Registry.ListAll(ctx, cfg.DynamoDB.Table)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), server.ListResponse{AdapterTypes: items})
			})
		},
	}
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})
	return cmd
}

func newIngestCommand(opts Options, load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <key>...",
		Short: "Synchronize the index with stored adapter type files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, load, func(ctx context.Context, cfg *config.Config, b *Backend) error {
				for _, key := range args {
					res, err := b.Registry.Ingest(ctx, cfg.DynamoDB.Table, cfg.S3.Bucket, key)
					if err != nil {
						return fmt.Errorf("ingest %s: %w", key, err)
					}
					if err := printJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyManual})
	return cmd
}

func newReindexCommand(opts Options, load loadFunc) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Ingest every stored adapter type file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, load, func(ctx context.Context, cfg *config.Config, b *Backend) error {
				report, err := b.Registry.Reindex(ctx, cfg.DynamoDB.Table, cfg.S3.Bucket, prefix)
				if report != nil {
					if printErr := printJSON(cmd.OutOrStdout(), report); printErr != nil {
						return printErr
					}
				}
				if err != nil {
					return err
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d of %d adapter type files failed to ingest", len(report.Failed), report.Scanned)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix to scan (defaults to adapterTypes/)")
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnce})
	return cmd
}

func newDeleteCommand(opts Options, load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove one adapter type from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, load, func(ctx context.Context, cfg *config.Config, b *Backend) error {
				if err := b.Registry.Delete(ctx, cfg.DynamoDB.Table, args[0]); err != nil {
					return err
				}
				writeLine(cmd.OutOrStdout(), "deleted %s", args[0])
				return nil
			})
		},
	}
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyManual})
	return cmd
}

func newPurgeCommand(opts Options, load loadFunc) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove every adapter type from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("purge removes every index entry; pass --yes to confirm")
			}
			return withBackend(cmd, opts, load, func(ctx context.Context, cfg *config.Config, b *Backend) error {
				deleted, err := b.Registry.Purge(ctx, cfg.DynamoDB.Table)
				if deleted != nil {
					if printErr := printJSON(cmd.OutOrStdout(), server.PurgeResponse{Deleted: deleted}); printErr != nil {
						return printErr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the purge")
	SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyManual})
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
