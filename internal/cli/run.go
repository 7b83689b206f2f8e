package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/journey"
	"github.com/aretw0/journey/internal/presentation/tui"
	journeyredis "github.com/aretw0/journey/pkg/adapters/redis"
	"github.com/aretw0/journey/pkg/config"
	"github.com/redis/go-redis/v9"
)

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	ConfigPath string
	LogLevel   string // Overrides log_level of the file when set
	Debug      bool
	HTTPAddr   string // Overrides http.addr
	RedisAddr  string // Overrides redis.addr
	NoBanner   bool
	// DrainTimeout bounds how long in-flight activities may run after shutdown.
	DrainTimeout time.Duration
}

// Execute handles the 'run' command: it builds the engine from the
// declaration file and runs it with its services until interrupted.
func Execute(ctx context.Context, opts RunOptions, out io.Writer) error {
	f, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(f, opts)

	logger, err := createLogger(f.LogLevel, opts.Debug)
	if err != nil {
		return err
	}

	st, err := createEngine(f, logger, out, opts.Debug)
	if err != nil {
		return err
	}

	if !opts.NoBanner {
		tui.PrintBanner(out, journey.Version)
		tui.PrintSources(out, st.engine.Sources())
	}

	runner := journey.NewRunner()
	runner.Logger = logger
	if opts.DrainTimeout > 0 {
		runner.DrainTimeout = opts.DrainTimeout
	}
	if f.HTTP.Addr != "" {
		runner.Services = append(runner.Services, httpService(f.HTTP.Addr, st.server.Handler(), logger))
	}
	if f.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: f.Redis.Addr})
		defer client.Close()
		bridge := journeyredis.NewBridge(client, st.engine,
			journeyredis.WithChannel(f.Redis.Channel),
			journeyredis.WithLogger(logger),
		)
		runner.Services = append(runner.Services, bridge.Run)
	}

	sc := NewSignalContext(ctx)
	defer sc.Cancel()

	err = runner.Run(sc, st.engine)
	logCompletion(out, sc.Signal())
	return handleExecutionError(err)
}

func applyOverrides(f *config.File, opts RunOptions) {
	if opts.LogLevel != "" {
		f.LogLevel = opts.LogLevel
	}
	if opts.HTTPAddr != "" {
		f.HTTP.Addr = opts.HTTPAddr
	}
	if opts.RedisAddr != "" {
		f.Redis.Addr = opts.RedisAddr
	}
}

// httpService serves h on addr and shuts down gracefully when ctx ends.
func httpService(addr string, h http.Handler, logger *slog.Logger) journey.Service {
	return func(ctx context.Context) error {
		srv := &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("http listening", "addr", addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
