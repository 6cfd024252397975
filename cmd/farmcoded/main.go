// Command farmcoded runs the farmcode coordinator daemon: a reconcile loop
// over every tracked workflow plus a small HTTP API for creating workflows,
// inspecting their pointers, and delivering external wake notifications.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/artifact"
	artifactgit "github.com/farmer1st/farmcode/artifact/git"
	artifactmemory "github.com/farmer1st/farmcode/artifact/memory"
	"github.com/farmer1st/farmcode/gateway"
	gatewayk8s "github.com/farmer1st/farmcode/gateway/k8s"
	gatewaymemory "github.com/farmer1st/farmcode/gateway/memory"
	"github.com/farmer1st/farmcode/journal"
	"github.com/farmer1st/farmcode/middleware"
	"github.com/farmer1st/farmcode/observability"
	"github.com/farmer1st/farmcode/phase"
	"github.com/farmer1st/farmcode/pointer"
	"github.com/farmer1st/farmcode/reconcile"
	storememory "github.com/farmer1st/farmcode/store/memory"
	storepostgres "github.com/farmer1st/farmcode/store/postgres"
	storeredis "github.com/farmer1st/farmcode/store/redis"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "farmcoded",
	Short:         "Workflow coordinator daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the coordinator and its HTTP API",
	RunE:  runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "farmcoded:", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pointers, cleanup, err := buildPointerStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	artifacts, err := buildArtifactStore(cfg, logger)
	if err != nil {
		return err
	}
	journals := journal.NewReader(artifacts)

	gw, err := buildGateway(cfg, logger)
	if err != nil {
		return err
	}

	metrics, err := observability.New(nil)
	if err != nil {
		return err
	}

	loop := reconcile.NewLoop(pointers, journals, gw,
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(metrics),
		reconcile.WithPhaseTimeout(cfg.Loop.PhaseTimeout),
		reconcile.WithMaxRewinds(cfg.Loop.MaxRewinds),
		reconcile.WithRefs(cfg.Loop.Refs),
	)

	coordCfg := farmcode.DefaultConfig()
	coordCfg.PollInterval = cfg.Loop.PollInterval
	coordCfg.TickTimeout = cfg.Loop.TickTimeout
	coordCfg.SignalPollInterval = cfg.Loop.SignalPollInterval
	coordCfg.PhaseTimeout = cfg.Loop.PhaseTimeout
	coordCfg.MaxRewinds = cfg.Loop.MaxRewinds

	ticker := middleware.Wrap(loop,
		middleware.Recover(logger),
		middleware.Tracing(),
		middleware.Logging(logger),
	)

	coord, err := farmcode.New(
		farmcode.WithConfig(coordCfg),
		farmcode.WithLogger(logger),
		farmcode.WithLoop(ticker),
	)
	if err != nil {
		return err
	}

	if err := resumeTracked(ctx, coord, pointers, logger); err != nil {
		return err
	}

	srv := newAPI(coord, pointers, loop, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http api listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), coordCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", slog.String("error", err.Error()))
		}
		return coord.Stop(shutdownCtx)
	})
	return g.Wait()
}

// resumeTracked re-tracks every non-terminal workflow after a restart so
// in-flight work picks up where the previous process left off.
func resumeTracked(ctx context.Context, coord *farmcode.Coordinator, pointers pointer.Store, logger *slog.Logger) error {
	all, err := pointers.ListPointers(ctx, pointer.ListOpts{})
	if err != nil {
		return fmt.Errorf("resume workflows: %w", err)
	}
	resumed := 0
	for _, p := range all {
		if p.Terminal() {
			continue
		}
		coord.Track(ctx, p.ID)
		resumed++
	}
	logger.Info("resumed workflows", slog.Int("count", resumed))
	return nil
}

func buildPointerStore(ctx context.Context, cfg *Config, logger *slog.Logger) (pointer.Store, func(), error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return storememory.New(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		s := storeredis.New(client, storeredis.WithLogger(logger))
		if err := s.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return s, func() { _ = client.Close() }, nil
	case "postgres":
		s, err := storepostgres.New(ctx, cfg.Store.Postgres.URL, storepostgres.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func buildArtifactStore(cfg *Config, logger *slog.Logger) (artifact.Store, error) {
	switch cfg.Artifacts.Driver {
	case "", "memory":
		return artifactmemory.New(), nil
	case "git":
		opts := []artifactgit.Option{artifactgit.WithLogger(logger)}
		if cfg.Artifacts.Git.Remote != "" {
			opts = append(opts, artifactgit.WithRemote(cfg.Artifacts.Git.Remote, "main"))
		}
		return artifactgit.New(cfg.Artifacts.Git.Workdir, opts...)
	default:
		return nil, fmt.Errorf("unknown artifacts driver %q", cfg.Artifacts.Driver)
	}
}

func buildGateway(cfg *Config, logger *slog.Logger) (gateway.Gateway, error) {
	switch cfg.Gateway.Driver {
	case "", "memory":
		return gatewaymemory.New(), nil
	case "k8s":
		restCfg, err := kubeRESTConfig(cfg.Gateway.Kubeconfig)
		if err != nil {
			return nil, err
		}
		client, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("kubernetes client: %w", err)
		}
		scaler := gatewayk8s.New(client, cfg.Gateway.Namespace,
			gatewayk8s.WithLogger(logger),
			gatewayk8s.WithDeployments(roleMap(cfg.Gateway.Deployments)),
		)
		jobs, err := gateway.NewHTTPJobClient(roleMap(cfg.Gateway.Endpoints))
		if err != nil {
			return nil, err
		}
		return gateway.NewBroker(scaler, jobs, gateway.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown gateway driver %q", cfg.Gateway.Driver)
	}
}

func kubeRESTConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig: %w", err)
		}
		return cfg, nil
	}
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("in-cluster config: %w", err)
	}
	return cfg, nil
}

func roleMap(in map[string]string) map[phase.Role]string {
	out := make(map[phase.Role]string, len(in))
	for role, v := range in {
		out[phase.Role(role)] = v
	}
	return out
}
