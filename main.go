package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"

	"github.com/hnfeed/hnfeed/api"
	"github.com/hnfeed/hnfeed/feed"
	"github.com/hnfeed/hnfeed/fetch"
	"github.com/hnfeed/hnfeed/hn"
	"github.com/hnfeed/hnfeed/kv"
	"github.com/hnfeed/hnfeed/preview"
	"github.com/hnfeed/hnfeed/snapshot"
	"github.com/hnfeed/hnfeed/sse"
	"github.com/hnfeed/hnfeed/thread"
	"github.com/hnfeed/hnfeed/traverse"
	"github.com/hnfeed/hnfeed/worker"
)

func main() {
	flagSet := flag.NewFlagSet("hnfeed", flag.ExitOnError)

	var (
		addr            string
		port            int
		dbPath          string
		storyLimit      int
		snapshotTTL     time.Duration
		refreshInterval time.Duration
		feedBatch       int
		feedConcurrency int
		pageBatch       int
		pageConcurrency int
		maxHops         int
		threadCap       int
		rateLimit       string
		previewMaxAge   time.Duration
	)
	flagSet.StringVar(&addr, "addr", "localhost", "Address to listen on")
	flagSet.IntVar(&port, "port", 8080, "Port to listen on")
	flagSet.StringVar(&dbPath, "db-path", "hnfeed.db", "Path to SQLite cache file")
	flagSet.IntVar(&storyLimit, "story-limit", 10, "Stories per snapshot")
	flagSet.DurationVar(&snapshotTTL, "snapshot-ttl", 2*time.Minute, "Max snapshot age before a read refreshes it")
	flagSet.DurationVar(&refreshInterval, "refresh-interval", 5*time.Minute, "Background refresh period")
	flagSet.IntVar(&feedBatch, "feed-batch", 20, "Comments sampled per feed page")
	flagSet.IntVar(&feedConcurrency, "feed-concurrency", 8, "Parallel item fetches per feed chunk")
	flagSet.IntVar(&pageBatch, "page-batch", 10, "Comments added per story page")
	flagSet.IntVar(&pageConcurrency, "page-concurrency", 4, "Parallel item fetches per story-page chunk")
	flagSet.IntVar(&maxHops, "ancestor-max-hops", thread.DefaultMaxHops, "Ancestor-walk hop guard")
	flagSet.IntVar(&threadCap, "thread-cap", thread.DefaultThreadCap, "Max comments loaded for comment context")
	flagSet.StringVar(&rateLimit, "rate-limit", "30-M", "Per-IP rate limit for refresh and preview endpoints")
	flagSet.DurationVar(&previewMaxAge, "preview-max-age", 7*24*time.Hour, "Preview cache retention")

	if err := ff.Parse(flagSet, os.Args[1:], ff.WithEnvVars()); err != nil {
		slog.Error("failed to parse flags", "error", err)
		os.Exit(1)
	}

	store, err := kv.Open(dbPath)
	if err != nil {
		slog.Error("failed to open cache store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client := hn.NewClient()
	fetcher := fetch.NewFetcher(client)

	cache := snapshot.NewCache(client, fetcher, store, feedConcurrency)
	feedSession := traverse.NewFeedSession(fetcher)
	storySessions := traverse.NewSessions(fetcher)
	resolver := thread.NewResolver(fetcher, storySessions).WithLimits(maxHops, threadCap)
	previews := preview.NewService(store)
	broker := sse.NewBroker(1000)

	workerCtx, workerCancel := context.WithCancel(context.Background())

	refresher := worker.NewRefresher(cache, feedSession, broker, refreshInterval, storyLimit, feedBatch, feedConcurrency)
	refresher.Start(workerCtx)

	cleaner := worker.NewCleaner(store, previewMaxAge)
	cleaner.Start(workerCtx)

	feedHandler := api.NewFeedHandler(cache, feedSession, broker, api.FeedConfig{
		StoryLimit:  storyLimit,
		MaxAge:      snapshotTTL,
		BatchSize:   feedBatch,
		Concurrency: feedConcurrency,
		StoryRatio:  feed.DefaultStoryRatio,
	})
	commentsHandler := api.NewCommentsHandler(storySessions, pageBatch, pageConcurrency)
	contextHandler := api.NewContextHandler(resolver)
	previewHandler := api.NewPreviewHandler(previews)
	healthHandler := api.NewHealthHandler(cache, broker)

	limited, err := api.NewRateLimiter(rateLimit)
	if err != nil {
		slog.Error("failed to build rate limiter", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/feed", limited(http.HandlerFunc(feedHandler.Feed)))
	mux.Handle("GET /api/feed/rss", limited(http.HandlerFunc(feedHandler.RSS)))
	mux.HandleFunc("GET /api/stories/{id}/comments", commentsHandler.GetComments)
	mux.HandleFunc("GET /api/comments/{id}/context", contextHandler.GetContext)
	mux.Handle("GET /api/preview", limited(http.HandlerFunc(previewHandler.GetPreview)))
	mux.Handle("GET /api/events", broker)
	mux.Handle("GET /api/health", healthHandler)

	listenAddr := fmt.Sprintf("%s:%d", addr, port)
	srv := &http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	go func() {
		slog.Info("server starting", "addr", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("received signal, shutting down", "signal", sig)

	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
