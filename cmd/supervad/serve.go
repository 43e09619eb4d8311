package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/realtime-ai/supervad/pkg/metrics"
	"github.com/realtime-ai/supervad/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebSocket ingest server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.shutdown(shutdownCtx); err != nil {
			log.Printf("[SuperVAD] shutdown: %v", err)
		}
	}()

	scorer, err := st.newScorer()
	if err != nil {
		return err
	}
	defer scorer.Destroy()

	sink, err := st.newSink()
	if err != nil {
		return err
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = st.cfg.Server.Addr
	srvCfg.VAD = st.cfg.VAD
	srvCfg.MaxSessions = st.cfg.Server.MaxSessions
	srvCfg.ReadLimit = st.cfg.Server.ReadLimit
	srvCfg.Verbose = st.cfg.Verbose

	srv, err := server.New(srvCfg, metrics.WrapScorer(scorer, st.metrics),
		server.WithSink(sink),
		server.WithMetrics(st.metrics),
		server.WithMetricsHandler(st.provider.Handler()),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("[VADServer] shutting down...")
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(stopCtx)
	})
	return g.Wait()
}
