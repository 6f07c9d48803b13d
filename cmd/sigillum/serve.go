package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sigillum/core/pkg/anchor"
	"github.com/sigillum/core/pkg/api"
	"github.com/sigillum/core/pkg/auditlog"
	"github.com/sigillum/core/pkg/cache"
	"github.com/sigillum/core/pkg/classifier"
	"github.com/sigillum/core/pkg/config"
	"github.com/sigillum/core/pkg/engine"
	"github.com/sigillum/core/pkg/keyring"
	"github.com/sigillum/core/pkg/observability"
	"github.com/sigillum/core/pkg/proof"
	"github.com/sigillum/core/pkg/ruleset"
	"github.com/sigillum/core/pkg/store"
	"github.com/sigillum/core/pkg/verify"
)

func runServe(stderr io.Writer) int {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	logger := slog.Default().With("component", "serve")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTelEndpoint
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to init observability: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	registry := ruleset.NewRegistry()
	if err := registry.LoadDir(cfg.RulesDir); err != nil {
		fmt.Fprintf(stderr, "Failed to load rulesets from %s: %v\n", cfg.RulesDir, err)
		return 1
	}
	logger.Info("rulesets loaded", "dir", cfg.RulesDir, "versions", registry.Versions())

	var profile *config.JurisdictionProfile
	if cfg.Jurisdiction != "" {
		var err error
		profile, err = config.LoadProfile(cfg.ProfilesDir, cfg.Jurisdiction)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load jurisdiction profile: %v\n", err)
			return 1
		}
		if err := checkProfile(profile, registry, cfg); err != nil {
			fmt.Fprintf(stderr, "Jurisdiction profile %q: %v\n", profile.Code, err)
			return 1
		}
		logger.Info("jurisdiction pinned",
			"code", profile.Code,
			"ruleset", profile.RulesetVersion,
			"locales", profile.Locales)
	}

	ring, err := keyring.OpenFileKeyRing(cfg.KeystoreFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open keystore: %v\n", err)
		return 1
	}
	logger.Info("keystore ready", "active", keyring.FormatVersion(ring.ActiveVersion()))

	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer st.Close()

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to configure anchoring: %v\n", err)
		return 1
	}

	log, err := auditlog.New(auditlog.Config{
		MaxBatchSize: cfg.MaxBatchSize,
		MaxBatchAge:  cfg.MaxBatchAge,
		WALPath:      cfg.WALPath,
	}, st, publisher)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open audit log: %v\n", err)
		return 1
	}
	defer log.Close()
	go log.Run(ctx)

	var proofCache cache.ProofCache
	if cfg.RedisAddr != "" {
		proofCache = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		logger.Info("inclusion proof cache: redis", "addr", cfg.RedisAddr)
	} else {
		proofCache = cache.NewMemoryCache(cfg.CacheTTL)
	}

	eng := engine.New(engine.Config{
		Classifier: classifier.New(registry),
		Generator:  proof.NewGenerator(ring.KeyRing),
		Log:        log,
		Store:      st,
		Cache:      proofCache,
		RoleKey:    []byte(cfg.RoleHashKey),
	})

	srv := api.NewServer(api.ServerConfig{
		Engine:   eng,
		Verifier: verify.New(ring.KeyRing),
		Log:      log,
		Registry: registry,
		Ring:     ring,
		Obs:      obs,
		RulesDir: cfg.RulesDir,
		Profile:  profile,
	})

	limiter := api.NewGlobalRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Stop()
	idem := api.NewIdempotencyStore(time.Hour)
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set, admin endpoints disabled")
	}
	handler := srv.Handler(limiter, idem, api.NewJWTValidator(cfg.AdminJWTSecret))

	logger.Info("sigillum ready", "port", cfg.Port)
	if err := srv.ListenAndServe(ctx, ":"+cfg.Port, handler); err != nil {
		fmt.Fprintf(stderr, "Server failed: %v\n", err)
		return 1
	}
	logger.Info("shut down cleanly")
	return 0
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// checkProfile refuses to start when the deployment cannot honor what the
// jurisdiction profile pins.
func checkProfile(p *config.JurisdictionProfile, registry *ruleset.Registry, cfg *config.Config) error {
	if p.RulesetVersion != "" {
		rs, err := registry.Get(p.RulesetVersion)
		if err != nil {
			return fmt.Errorf("pinned ruleset version %q is not loaded: %w", p.RulesetVersion, err)
		}
		for _, locale := range p.Locales {
			if !rs.SupportsLocale(locale) {
				return fmt.Errorf("pinned ruleset %q has no rules for locale %q", p.RulesetVersion, locale)
			}
		}
	}
	if p.Anchoring.Required && cfg.AnchorFile == "" && cfg.S3Bucket == "" {
		return fmt.Errorf("anchoring is required but no anchor target is configured")
	}
	if p.Anchoring.ExternalS3 && cfg.S3Bucket == "" {
		return fmt.Errorf("external S3 anchoring is required but ANCHOR_S3_BUCKET is not set")
	}
	if p.Anchoring.LocalExport && cfg.AnchorFile == "" {
		return fmt.Errorf("local anchor export is required but ANCHOR_FILE is not set")
	}
	return nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return store.OpenPostgres(cfg.DatabaseURL)
	case "sqlite", "":
		return store.OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// buildPublisher assembles the anchoring fan-out from configuration. The
// local file publisher is always on so a trusted root history survives even
// when no external target is configured.
func buildPublisher(ctx context.Context, cfg *config.Config) (auditlog.Publisher, error) {
	var publishers []anchor.Publisher

	if cfg.AnchorFile != "" {
		fp, err := anchor.NewFilePublisher(cfg.AnchorFile)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, fp)
	}
	if cfg.S3Bucket != "" {
		sp, err := anchor.NewS3Publisher(ctx, anchor.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, sp)
	}

	switch len(publishers) {
	case 0:
		return anchor.Noop{}, nil
	case 1:
		return publishers[0], nil
	default:
		return anchor.NewMulti(publishers...), nil
	}
}
