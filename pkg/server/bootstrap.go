package server

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nimburion/adapter-registry/pkg/observability/logger"
)

// Component is a long-running part of the process (an HTTP server or the
// queue worker). Run blocks until ctx is cancelled or the component fails.
type Component struct {
	Name string
	Run  func(ctx context.Context) error
}

const defaultHookTimeout = 10 * time.Second

// LifecycleHook is a named shutdown action.
type LifecycleHook struct {
	Name string
	Fn   func(context.Context) error
}

// RunOptions defines what Run starts and how it shuts down.
type RunOptions struct {
	Components          []Component
	Logger              logger.Logger
	ShutdownHooks       []LifecycleHook
	ShutdownHookTimeout time.Duration
}

// ServerComponent adapts a Server to a Component.
func ServerComponent(s *Server) Component {
	return Component{Name: s.name, Run: s.Start}
}

// Run starts every component and waits for all of them. The first failure
// cancels the others. Shutdown hooks run once every component has stopped,
// last registered first.
func Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Components) == 0 {
		return errors.New("at least one component is required")
	}
	if opts.Logger == nil {
		return errors.New("logger is required")
	}
	defer func() {
		if err := runShutdownHooks(opts); err != nil {
			opts.Logger.Error("shutdown hooks completed with errors", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range opts.Components {
		g.Go(func() error {
			if err := c.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			opts.Logger.Debug("component stopped", "component", c.Name)
			return nil
		})
	}
	return g.Wait()
}

func runShutdownHooks(opts RunOptions) error {
	timeout := opts.ShutdownHookTimeout
	if timeout <= 0 {
		timeout = defaultHookTimeout
	}

	var errs []error
	for i := len(opts.ShutdownHooks) - 1; i >= 0; i-- {
		hook := opts.ShutdownHooks[i]
		if hook.Fn == nil {
			continue
		}
		name := cmp.Or(strings.TrimSpace(hook.Name), "unnamed")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := hook.Fn(ctx)
		cancel()
		if err != nil {
			opts.Logger.Error("shutdown hook failed", "hook", name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %q: %w", name, err))
			continue
		}
		opts.Logger.Info("shutdown hook complete", "hook", name)
	}
	return errors.Join(errs...)
}

// RunWithSignals runs the components until one of signals is received.
func RunWithSignals(opts RunOptions, signals ...os.Signal) error {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()
	return Run(ctx, opts)
}
