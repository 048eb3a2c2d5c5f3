package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"killboard-gateway/esi/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
)

const usageText = `usage: resolver [flags] <command> <id>...

commands:
  character <id>...     resolve character snapshots
  corporation <id>...   resolve corporation snapshots
  alliance <id>...      resolve alliance snapshots
  affiliation <id>...   bulk-check stored characters and queue follow-up jobs

flags:
`

type runOptions struct {
	maxAge  time.Duration
	refresh bool
}

func main() {
	fs := pflag.NewFlagSet("resolver", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "YAML config file (env vars override it)")
	maxAge := fs.Duration("max-age", 0, "freshness window override (0 = default of the kind)")
	refresh := fs.Bool("refresh", false, "ignore stored snapshots and fetch again")
	serve := fs.Bool("serve", false, "keep serving /metrics after the command finishes")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usageText)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() < 2 {
		fs.Usage()
		os.Exit(2)
	}
	cmd := fs.Arg(0)
	ids, err := parseIDs(fs.Args()[1:])
	if err != nil {
		log.Fatalf("invalid id: %v", err)
	}

	cfg, err := readConfig(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	b, err := openBackends(ctx, cfg, logger, reg)
	if err != nil {
		log.Fatalf("backend error: %v", err)
	}
	defer b.Close()

	log.Printf("resolver -> %s (ua=%q localRPS=%.1f burst=%d)", cfg.ESIBaseURL, cfg.UserAgent, cfg.LocalRPS, cfg.LocalBurst)
	log.Printf("gateway: rateCap=%d pause=%s offlineWait=%s offlineTTL=%s maxRejections=%d", cfg.RateCap, cfg.PauseDuration, cfg.OfflineWait, cfg.OfflineTTL, cfg.MaxRejectionRetries)
	log.Printf("backends: redis=%q postgres=%v nats=%q stream=%q", cfg.RedisAddr, cfg.PostgresDSN != "", cfg.NatsURL, cfg.NatsStream)

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		srv = startMetricsServer(ctx, cfg.MetricsAddr, reg)
		log.Printf("metrics listening on %s/metrics", cfg.MetricsAddr)
	}

	a := newApp(cfg, logger, b, newUpstream(cfg))

	runCtx, runCancel := context.WithTimeout(ctx, cfg.Timeout)
	out, err := a.run(runCtx, cmd, ids, runOptions{maxAge: *maxAge, refresh: *refresh})
	runCancel()
	if err != nil {
		log.Printf("command %s failed: %v", cmd, err)
	}
	if out != nil {
		if werr := writeJSON(os.Stdout, out); werr != nil {
			log.Printf("write output: %v", werr)
		}
	}

	if *serve && srv != nil {
		<-ctx.Done()
	}
	if err != nil {
		b.Close()
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, ids []int64, opts runOptions) (any, error) {
	switch cmd {
	case "character":
		if opts.refresh {
			return refreshAll(ctx, ids, a.chars.Refresh)
		}
		return a.chars.GetMany(ctx, ids, opts.maxAge), nil
	case "corporation":
		if opts.refresh {
			return refreshAll(ctx, ids, a.corps.Refresh)
		}
		return a.corps.GetMany(ctx, ids, opts.maxAge), nil
	case "alliance":
		if opts.refresh {
			return refreshAll(ctx, ids, a.alliances.Refresh)
		}
		return a.alliances.GetMany(ctx, ids, opts.maxAge), nil
	case "affiliation":
		targets, err := a.affiliationTargets(ctx, ids)
		if err != nil {
			return nil, err
		}
		rep, err := a.affiliation.Resolve(ctx, targets)
		a.log.Info("affiliation check done", "report", rep.String())
		return rep, err
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

// refreshAll para no primeiro erro e devolve o que já resolveu.
func refreshAll[T any](ctx context.Context, ids []int64, refresh func(context.Context, int64) (T, error)) ([]T, error) {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, err := refresh(ctx, id)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// affiliationTargets monta os alvos a partir dos snapshots guardados.
// Personagem sem snapshot entra com afiliação zerada e será tratado como mudança.
func (a *app) affiliationTargets(ctx context.Context, ids []int64) ([]domain.AffiliationTarget, error) {
	targets := make([]domain.AffiliationTarget, 0, len(ids))
	for _, id := range ids {
		t := domain.AffiliationTarget{CharacterID: id}
		rec, ok, err := a.entities.FindOne(ctx, domain.KindCharacter, id)
		if err != nil {
			return nil, fmt.Errorf("load character %d: %w", id, err)
		}
		if ok {
			var c domain.Character
			if err := json.Unmarshal(rec.Data, &c); err != nil {
				return nil, fmt.Errorf("decode character %d: %w", id, err)
			}
			t.CorporationID, t.AllianceID = c.CorporationID, c.AllianceID
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, s := range args {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q is not a positive integer", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func startMetricsServer(ctx context.Context, addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server error: %v", err)
		}
	}()
	return srv
}
