// Command tokend is the join-credential issuing service. It serves
// GET /token?identity=<id>&room=<name> and returns a short-lived signed JWT
// scoping join rights to one room.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rdxlabs/duplytalk/internal/config"
	"github.com/rdxlabs/duplytalk/internal/token"
)

const (
	defaultListenAddr  = ":8780"
	defaultDefaultRoom = "duplytalk"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokend: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	issuerCfg := cfg.Token.Issuer
	if issuerCfg.APIKey == "" || issuerCfg.APISecret == "" {
		slog.Error("token.issuer.api_key and token.issuer.api_secret are required")
		return 1
	}
	addr := issuerCfg.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	defaultRoom := issuerCfg.DefaultRoom
	if defaultRoom == "" {
		defaultRoom = defaultDefaultRoom
	}

	var opts []token.IssuerOption
	if issuerCfg.TTLSeconds > 0 {
		opts = append(opts, token.WithTTL(time.Duration(issuerCfg.TTLSeconds)*time.Second))
	}
	issuer, err := token.NewIssuer(issuerCfg.APIKey, []byte(issuerCfg.APISecret), opts...)
	if err != nil {
		slog.Error("failed to create issuer", "err", err)
		return 1
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           token.Handler(issuer, defaultRoom),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("tokend listening", "addr", addr, "default_room", defaultRoom)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
