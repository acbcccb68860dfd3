package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hellno/maschine-sub000/internal/app/migrate"
	"github.com/hellno/maschine-sub000/internal/config"
	"github.com/hellno/maschine-sub000/internal/github"
	httpx "github.com/hellno/maschine-sub000/internal/http"
	"github.com/hellno/maschine-sub000/internal/identity"
	"github.com/hellno/maschine-sub000/internal/namegen"
	"github.com/hellno/maschine-sub000/internal/repository"
	"github.com/hellno/maschine-sub000/internal/repository/postgres"
	"github.com/hellno/maschine-sub000/internal/repository/redisstore"
	"github.com/hellno/maschine-sub000/internal/service/gitops"
	jobsvc "github.com/hellno/maschine-sub000/internal/service/job"
	"github.com/hellno/maschine-sub000/internal/service/provision"
	"github.com/hellno/maschine-sub000/internal/service/status"
	"github.com/hellno/maschine-sub000/internal/service/watch"
	"github.com/hellno/maschine-sub000/internal/vercel"
	"github.com/hellno/maschine-sub000/internal/ws"
	"github.com/hellno/maschine-sub000/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StorageDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	githubAuth, err := githubTokenSource(cfg)
	if err != nil {
		log.Error("failed to configure github auth", "error", err)
		os.Exit(1)
	}

	githubClient := github.New(cfg.GitHubBaseURL, githubAuth, log)
	vercelClient := vercel.New(cfg.VercelBaseURL, cfg.VercelToken, cfg.VercelTeamID, log)
	nameClient := namegen.New(cfg.NameGenBaseURL, cfg.NameGenAPIKey, cfg.NameGenModel, log)

	var scorer provision.Scorer
	if cfg.IdentityAPIKey != "" {
		scorer = identity.New(cfg.IdentityBaseURL, cfg.IdentityAPIKey, log)
	}

	replicator := gitops.NewReplicator(githubClient, cfg.FetchConcurrency, log)
	committer := gitops.NewCommitBuilder(githubClient, cfg.FetchConcurrency, log)

	jobSvc := jobsvc.New(store, log)
	provisionSvc := provision.New(nameClient, githubClient, replicator, committer, vercelClient, scorer, jobSvc, store, provision.Options{
		Org:            cfg.GitHubOrg,
		TemplateOwner:  cfg.TemplateOwner,
		TemplateRepo:   cfg.TemplateRepo,
		DefaultBranch:  cfg.DefaultBranch,
		KVRestAPIURL:   cfg.KVRestAPIURL,
		KVRestAPIToken: cfg.KVRestAPIToken,
		MinUserScore:   cfg.MinUserScore,
	}, log)
	statusSvc := status.New(store, jobSvc, vercelClient, log)

	hub := ws.NewHub()
	watcher := watch.New(jobSvc, vercelClient, hub, cfg.PollInterval, cfg.PollTimeout, log)
	startWatch := func(projectID string) {
		watchCtx := context.Background()
		project, err := store.GetProject(watchCtx, projectID)
		if err != nil {
			log.Warn("watch skipped, project lookup failed", "project_id", projectID, "error", err)
			return
		}
		job, err := jobSvc.SetupJob(watchCtx, projectID)
		if err != nil || job == nil {
			log.Warn("watch skipped, setup job lookup failed", "project_id", projectID, "error", err)
			return
		}
		watcher.Watch(watchCtx, projectID, job.ID, project.VercelProjectID)
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" && cfg.StorageDriver == "redis" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, provisionSvc, jobSvc, statusSvc, hub, limiter, startWatch, store.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "storage", cfg.StorageDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

// openStore selects the storage backend. Postgres runs pending migrations
// before the store is handed out.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (repository.Store, error) {
	switch cfg.StorageDriver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := runner.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		if err := runner.Up(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return postgres.New(pool), nil
	case "redis":
		return redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, errors.New("unsupported storage driver: " + cfg.StorageDriver)
	}
}

// githubTokenSource prefers GitHub App installation tokens and falls back
// to a static personal access token.
func githubTokenSource(cfg config.Config) (github.TokenSource, error) {
	if cfg.GitHubAppID != "" && cfg.GitHubInstallID != "" && cfg.GitHubAppKeyPEM != "" {
		return github.NewAppAuth(cfg.GitHubBaseURL, cfg.GitHubAppID, cfg.GitHubInstallID, cfg.GitHubAppKeyPEM)
	}
	if cfg.GitHubToken == "" {
		return nil, errors.New("no github credentials configured")
	}
	return github.StaticToken(cfg.GitHubToken), nil
}
