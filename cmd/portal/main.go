package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sassh/portal/internal/config"
	"github.com/sassh/portal/internal/logging"
	"github.com/sassh/portal/internal/scheduler"
	"github.com/sassh/portal/internal/search"
	"github.com/sassh/portal/internal/storage"
	"github.com/sassh/portal/internal/sync"
	"github.com/sassh/portal/internal/web"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

func main() {
	// Parse global flags
	globalFlags := flag.NewFlagSet("global", flag.ExitOnError)
	dataDirFlag := globalFlags.String("data-dir", "", "Directory for database, index and blob files")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Find where the command starts (skip global flags)
	commandIdx := 1
	for i := 1; i < len(os.Args); i++ {
		if !strings.HasPrefix(os.Args[i], "-") {
			commandIdx = i
			break
		}
	}
	if commandIdx > 1 {
		globalFlags.Parse(os.Args[1:commandIdx])
	}

	cfg = config.Load()
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}
	logger = logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	command := os.Args[commandIdx]
	args := os.Args[commandIdx+1:]

	switch command {
	case "sync":
		runSync()
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		host := serveFlags.String("host", cfg.Server.Host, "Host to bind to")
		port := serveFlags.String("port", cfg.Server.Port, "Port to listen on")
		interval := serveFlags.Duration("interval", cfg.Sync.Interval, "Run the sync on this interval (0 disables)")
		serveFlags.Parse(args)

		cfg.Server.Host, cfg.Server.Port, cfg.Sync.Interval = *host, *port, *interval
		runServe()
	case "seed":
		runSeed()
	case "search":
		searchFlags := flag.NewFlagSet("search", flag.ExitOnError)
		category := searchFlags.String("category", "", "Restrict results to a category ID")
		limit := searchFlags.Int("limit", 10, "Maximum number of results")
		searchFlags.Parse(args)

		if searchFlags.NArg() < 1 {
			fmt.Println("Error: search query required")
			fmt.Println("Usage: portal [--data-dir=<dir>] search [flags] <query>")
			os.Exit(1)
		}
		runSearch(strings.Join(searchFlags.Args(), " "), *category, *limit)
	case "reindex":
		runReindex()
	case "stats":
		runStats()
	case "get-article":
		if len(args) < 1 {
			fmt.Println("Error: article ID required")
			fmt.Println("Usage: portal [--data-dir=<dir>] get-article <article-id>")
			os.Exit(1)
		}
		runGetArticle(args[0])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Portal - Dropbox article sync for the society portal")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  portal [global-flags] <command> [flags]")
	fmt.Println()
	fmt.Println("Global Flags:")
	fmt.Println("  --data-dir=<dir>  Directory for database, index and blob files (default: ./data)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  sync                     Mirror Dropbox category folders into the catalog")
	fmt.Println("  serve [flags]            Start the HTTP server (sync trigger + catalog API)")
	fmt.Println("  seed                     Create the sync bot user and default categories")
	fmt.Println("  search [flags] <query>   Search published articles")
	fmt.Println("  reindex                  Rebuild the keyword index from the catalog")
	fmt.Println("  stats                    Show catalog and index statistics")
	fmt.Println("  get-article <id>         Print an article as JSON")
	fmt.Println()
	fmt.Println("Serve Flags:")
	fmt.Println("  -host=<host>          Host to bind to (default: localhost)")
	fmt.Println("  -port=<port>          Port to listen on (default: 8080)")
	fmt.Println("  -interval=<duration>  Sync on a fixed interval, e.g. 1h (default: off)")
	fmt.Println()
	fmt.Println("Search Flags:")
	fmt.Println("  -category=<id>    Restrict results to one category")
	fmt.Println("  -limit=<n>        Maximum results (default: 10)")
	fmt.Println()
	fmt.Println("Configuration is read from $PORTAL_CONFIG (YAML), .env and the environment.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  portal seed")
	fmt.Println("  portal sync")
	fmt.Println("  portal search \"flexor tendon\"")
	fmt.Println("  portal serve -port=3000 -interval=1h")
}

// fatal logs err and exits, like log.Fatalf in a structured logger
func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func ensureDataDir() {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fatal("create data directory", err)
	}
}

func openStores() (*storage.DB, *search.Index) {
	ensureDataDir()

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		fatal("open database", err)
	}

	idx, err := search.Open(cfg.IndexPath())
	if err != nil {
		db.Close()
		fatal("open search index", err)
	}

	return db, idx
}

func runSync() {
	if err := cfg.ValidateSync(); err != nil {
		fatal("invalid configuration", err)
	}

	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	blobs, _, err := newBlobStore(cfg)
	if err != nil {
		fatal("create blob store", err)
	}
	worker := sync.NewWorker(newDropboxClient(cfg), db, blobs, idx, cfg.Sync.BotEmail, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Sync.MaxDuration)
	defer cancel()

	stats, err := worker.Sync(ctx)
	if err != nil {
		if errors.Is(err, sync.ErrSyncBotMissing) {
			fmt.Println("Run `portal seed` to create the sync bot user.")
		}
		db.Close()
		idx.Close()
		fatal("sync failed", err)
	}

	fmt.Println()
	fmt.Println("=== Sync Complete ===")
	fmt.Printf("Created:   %d\n", stats.Created)
	fmt.Printf("Skipped:   %d\n", stats.Skipped)
	fmt.Printf("Errors:    %d\n", len(stats.Errors))
	fmt.Printf("Duration:  %v\n", stats.Duration.Round(time.Millisecond))
	for _, e := range stats.Errors {
		fmt.Printf("  %s / %s: %s\n", e.Folder, e.File, e.Error)
	}
}

func runServe() {
	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	opts := web.Options{
		CronSecret:    cfg.Server.CronSecret,
		SyncAPISecret: cfg.Server.SyncAPISecret,
		SyncTimeout:   cfg.Sync.MaxDuration,
		Logger:        logger,
	}

	blobs, fsStore, blobErr := newBlobStore(cfg)
	if fsStore != nil {
		opts.FilesDir = fsStore.Dir()
	}

	var syncer web.Syncer
	var worker *sync.Worker
	if err := cfg.ValidateSync(); err != nil {
		logger.Warn("sync disabled", "error", err)
		syncer = unconfiguredSyncer{err: err}
	} else if blobErr != nil {
		logger.Warn("sync disabled", "error", blobErr)
		syncer = unconfiguredSyncer{err: blobErr}
	} else {
		worker = sync.NewWorker(newDropboxClient(cfg), db, blobs, idx, cfg.Sync.BotEmail, logger)
		syncer = worker
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ticker *scheduler.Ticker
	if worker != nil && cfg.Sync.Interval > 0 {
		ticker = scheduler.NewTicker(cfg.Sync.Interval, false)
		err := ticker.Start(ctx, func(ctx context.Context, _ time.Time) {
			runCtx, cancel := context.WithTimeout(ctx, cfg.Sync.MaxDuration)
			defer cancel()

			if _, err := worker.Sync(runCtx); err != nil {
				logger.Error("scheduled sync failed", "error", err)
			}
		})
		if err != nil {
			fatal("start scheduler", err)
		}
		logger.Info("scheduled sync enabled", "interval", cfg.Sync.Interval)
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           web.NewServer(syncer, db, idx, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Println()
	fmt.Println("=== Portal Server ===")
	fmt.Printf("Server running at: http://%s\n", addr)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if ticker != nil {
		if err := ticker.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler did not stop cleanly", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server did not stop cleanly", "error", err)
	}
}

func runSeed() {
	ensureDataDir()

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		fatal("open database", err)
	}
	defer db.Close()

	result, err := db.Seed(context.Background(), cfg.Sync.BotEmail)
	if err != nil {
		db.Close()
		fatal("seed catalog", err)
	}

	fmt.Println("=== Seed Complete ===")
	if result.BotCreated {
		fmt.Printf("Sync bot:    created %s\n", result.Bot.Email)
	} else {
		fmt.Printf("Sync bot:    exists %s\n", result.Bot.Email)
	}
	fmt.Printf("Categories:  %d created, %d total\n", result.CategoriesCreated, len(storage.DefaultCategories))
}

func runSearch(query, category string, limit int) {
	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	results, err := idx.Search(query, category, limit)
	if err != nil {
		db.Close()
		idx.Close()
		fatal("search", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("\nFound %d results:\n\n", len(results))
	for i, result := range results {
		fmt.Printf("%d. %s\n", i+1, result.Title)
		if result.Category != "" {
			fmt.Printf("   Category: %s\n", result.Category)
		}
		fmt.Printf("   URL: %s\n", result.PDFURL)
		fmt.Printf("   Score: %.3f\n", result.Score)
		if snippets, ok := result.Fragments["Description"]; ok && len(snippets) > 0 {
			fmt.Printf("   Preview: %s\n", snippets[0])
		}
		fmt.Println()
	}
}

func runStats() {
	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	ctx := context.Background()
	dbCount, err := db.CountArticles(ctx)
	if err != nil {
		fatal("count articles", err)
	}
	indexCount, err := idx.Count()
	if err != nil {
		fatal("count index", err)
	}
	categories, err := db.ListCategories(ctx, false)
	if err != nil {
		fatal("list categories", err)
	}

	fmt.Println("=== Catalog Statistics ===")
	fmt.Printf("Articles in database: %d\n", dbCount)
	fmt.Printf("Articles in index:    %d\n", indexCount)
	fmt.Println()
	for _, c := range categories {
		fmt.Printf("%3d. %-24s %d\n", c.Order, c.Name, c.ArticleCount)
	}
}

func runReindex() {
	fmt.Println("Rebuilding keyword search index...")

	db, idx := openStores()
	defer db.Close()
	defer idx.Close()

	startTime := time.Now()
	n, err := idx.IndexFromStorage(context.Background(), db)
	if err != nil {
		fatal("rebuild index", err)
	}

	fmt.Println()
	fmt.Println("=== Reindex Complete ===")
	fmt.Printf("Articles indexed: %d\n", n)
	fmt.Printf("Duration:         %v\n", time.Since(startTime).Round(time.Millisecond))
}

func runGetArticle(id string) {
	ensureDataDir()

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		fatal("open database", err)
	}
	defer db.Close()

	article, err := db.GetArticle(context.Background(), id)
	if err != nil {
		fatal("get article", err)
	}
	if article == nil {
		fmt.Printf("Article not found: %s\n", id)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(article, "", "  ")
	if err != nil {
		fatal("encode article", err)
	}
	fmt.Println(string(out))
}
