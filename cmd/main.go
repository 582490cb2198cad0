package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconfig "github.com/spikelab/videoworker/internal/config"
	"github.com/spikelab/videoworker/internal/database"
	"github.com/spikelab/videoworker/internal/job"
	"github.com/spikelab/videoworker/internal/media"
	"github.com/spikelab/videoworker/internal/montage"
	"github.com/spikelab/videoworker/internal/notify"
	"github.com/spikelab/videoworker/internal/queue"
	redisservice "github.com/spikelab/videoworker/internal/redis"
	"github.com/spikelab/videoworker/internal/repository"
	"github.com/spikelab/videoworker/internal/server"
	"github.com/spikelab/videoworker/internal/storage"
	httpapi "github.com/spikelab/videoworker/internal/transport/http"
	"github.com/spikelab/videoworker/internal/validation"
	"github.com/spikelab/videoworker/internal/workers"
	"github.com/spikelab/videoworker/internal/youtube"
)

func main() {
	if err := run(); err != nil {
		slog.Error("videoworker exited with error", "err", err)
		os.Exit(1)
	}
}

// run owns every resource lifecycle so deferred closes execute on all exit
// paths, including pool-fatal ones.
func run() error {
	cfg := appconfig.Load()
	slog.Info("starting videoworker",
		"addr", cfg.HTTPAddr,
		"montage_queue", cfg.MontageQueue,
		"upload_queue", cfg.UploadQueue,
		"concurrency", cfg.QueueConcurrency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	redisService, err := redisservice.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect to Redis: %w", err)
	}
	defer redisService.Close()

	queueCfg := queue.DefaultConfig()
	queueCfg.PollWait = cfg.LeasePollInterval
	q, err := queue.NewRedisQueue(redisService.Client(), queueCfg)
	if err != nil {
		return fmt.Errorf("initialize job queue: %w", err)
	}
	defer q.Close()

	montageStore, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize montage storage: %w", err)
	}
	slog.Info("montage storage initialized", "type", storage.GetStorageType(cfg))

	repo := repository.New(db)
	notifier := notify.New(cfg.APIBaseURL)
	runner := media.NewFFmpeg()

	montageService := montage.NewService(
		runner,
		notifier,
		montageStore,
		cfg.UploadedVideosDir,
		cfg.MontageClipsDir,
		cfg.WatermarkFile,
	)

	uploader := youtube.NewUploader(youtube.Credentials{
		ClientID:     cfg.YouTubeClientID,
		ClientSecret: cfg.YouTubeClientSecret,
		RedirectURI:  cfg.YouTubeRedirectURI,
		RefreshToken: cfg.YouTubeRefreshToken,
	})

	montageHandler := workers.NewMontageHandler(montageService, q)
	uploadHandler := workers.NewUploadHandler(repo, uploader, q, cfg.UploadedVideosDir)

	montagePool := workers.NewPool(q, cfg.MontageQueue, cfg.QueueConcurrency, cfg.JobMaxDuration)
	montagePool.Register(job.KindMontage, montageHandler.Handle)
	montagePool.Start(ctx)

	uploadPool := workers.NewPool(q, cfg.UploadQueue, cfg.QueueConcurrency, cfg.JobMaxDuration)
	uploadPool.Register(job.KindUpload, uploadHandler.Handle)
	uploadPool.Start(ctx)

	handlers := &httpapi.Handlers{
		Q:         q,
		Repo:      repo,
		Redis:     redisService,
		Store:     montageStore,
		Validator: validation.New(cfg.AllowedUploadQueues),
		Config:    cfg,
	}
	r := server.NewRouter(handlers)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-ch:
		slog.Info("shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-montagePool.Done():
		runErr = fmt.Errorf("montage worker pool: %w", err)
	case err := <-uploadPool.Done():
		runErr = fmt.Errorf("upload worker pool: %w", err)
	}

	shutdown(srv, cancel, montagePool, uploadPool)
	return runErr
}

func shutdown(srv *http.Server, cancel context.CancelFunc, pools ...*workers.Pool) {
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()
	for _, p := range pools {
		p.Wait()
	}
}
