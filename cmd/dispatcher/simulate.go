package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/simulate"
)

var (
	simRiders int
	simLimit  int
	simSeed   uint64
	simHold   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the demo city scenario and a crowd of concurrent riders",
	RunE:  runSimulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simRiders, "riders", 50, "number of concurrent simulated riders")
	simulateCmd.Flags().IntVar(&simLimit, "parallel", 16, "maximum riders in flight at once")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 1, "seed for simulated pickup points")
	simulateCmd.Flags().BoolVar(&simHold, "hold", false, "keep the ops server running after the simulation until interrupted")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	simDone := make(chan struct{})
	g.Go(func() error {
		logger.Info("ops server listening", zap.String("addr", a.ops.Addr))
		if err := a.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
		defer cancel()
		return a.ops.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		defer close(simDone)
		out := cmd.OutOrStdout()
		if err := simulate.Scenario(gctx, a.svc, out); err != nil {
			return err
		}
		start := time.Now()
		st, err := simulate.Crowd(gctx, a.svc, simRiders, simLimit, simSeed)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\ncrowd: requested=%d matched=%d unmatched=%d completed=%d in %s\n",
			st.Requested, st.Matched, st.Unmatched, st.Completed, time.Since(start).Round(time.Millisecond))
		simulate.PrintAvailable(out, a.svc)
		return nil
	})
	if !simHold {
		g.Go(func() error {
			select {
			case <-simDone:
				stop()
			case <-gctx.Done():
			}
			return nil
		})
	}
	return g.Wait()
}
