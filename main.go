package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync/atomic"
	"time"

	// Image decoding is a binary-level concern: the engine only ever sees
	// decoded image.Image values, so the decoders are registered here.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go.uber.org/zap"

	"imagesim/config"
	"imagesim/engine"
	"imagesim/logging"
	"imagesim/signalhandler"
	"imagesim/store"
	"imagesim/types"
	"imagesim/utils"
)

func main() {
	args := utils.ParseArguments()

	command, hasCommand := args["command"]

	// Check if required arguments are missing
	showUsage := !hasCommand
	if hasCommand && (command == "index" || command == "rebuild") && args["folder"] == "" {
		showUsage = true
	}
	if hasCommand && command == "search" && args["image"] == "" {
		showUsage = true
	}
	if showUsage {
		utils.PrintUsage()
		os.Exit(1)
	}

	logCfg := logging.Config{Format: "console", Level: "info"}
	if _, ok := args["debug"]; ok {
		logCfg.Level = "debug"
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.RebuildWorkers == 0 {
		cfg.RebuildWorkers = signalhandler.OptimalWorkers()
	}

	ctx, cancel := signalhandler.WithSignals(context.Background())
	defer cancel()

	st, err := openStore(ctx, args, cfg, logger)
	if err != nil {
		logger.Fatal("opening record store", zap.Error(err))
	}
	defer st.Close()

	eng, err := engine.New(cfg, st, logger)
	if err != nil {
		logger.Fatal("building engine", zap.Error(err))
	}

	switch command {
	case "index":
		handleIndexCommand(ctx, eng, st, args, logger)
	case "search":
		handleSearchCommand(ctx, eng, args)
	case "rebuild":
		handleRebuildCommand(ctx, eng, args, logger)
	case "stats":
		handleStatsCommand(ctx, eng)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

// openStore builds the record store selected by --store, defaulting to the
// SQLite backend next to the executable.
func openStore(ctx context.Context, args map[string]string, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	dbPath := utils.GetDefaultDatabasePath()
	if customDB, ok := args["database"]; ok && customDB != "" {
		dbPath = customDB
	} else if customDB, ok := args["db"]; ok && customDB != "" {
		// Allow --db as an alias for --database
		dbPath = customDB
	}

	backend := args["store"]
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		return store.NewSQLiteStore(dbPath, cfg.Bins, cfg.GridSize, logger)
	case "badger":
		return store.NewBadgerStore(dbPath, cfg.Bins, cfg.GridSize, logger)
	case "redis":
		addr := args["redis-addr"]
		if addr == "" {
			addr = "localhost:6379"
		}
		return store.NewRedisStore(ctx, store.RedisOptions{Address: addr}, cfg.Bins, cfg.GridSize, logger)
	case "memory":
		fmt.Println("Note: the memory store does not persist between runs.")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (want sqlite, badger, redis or memory)", backend)
	}
}

func handleIndexCommand(ctx context.Context, eng *engine.Engine, st store.Store, args map[string]string, logger *zap.Logger) {
	folderPath := mustFolder(args, logger)

	files, err := utils.CollectImageFiles(folderPath)
	if err != nil {
		logger.Fatal("collecting image files", zap.Error(err))
	}

	_, force := args["force"]

	// Files that already have a record are skipped unless --force asks for
	// a rewrite. A record stored under an older configuration counts as
	// missing: re-indexing is what brings it back into the corpus.
	var refs []string
	skipped := 0
	for _, path := range files {
		if !force {
			if _, err := st.Get(ctx, path); err == nil {
				skipped++
				continue
			} else if !types.IsNotFound(err) && !types.IsConfiguration(err) {
				logger.Warn("could not check existing record", zap.String("mediaRef", path), zap.Error(err))
			}
		}
		refs = append(refs, path)
	}

	fmt.Printf("Starting image indexing...\n")
	fmt.Printf("Total image files found: %d\n", len(files))
	fmt.Printf("Already indexed (skipped): %d\n", skipped)
	fmt.Printf("Force rewrite mode: %v\n", force)

	if len(refs) == 0 {
		fmt.Println("Nothing to do.")
		return
	}

	report := runBatch(ctx, eng, refs)
	printReport(report)
}

func handleRebuildCommand(ctx context.Context, eng *engine.Engine, args map[string]string, logger *zap.Logger) {
	folderPath := mustFolder(args, logger)

	files, err := utils.CollectImageFiles(folderPath)
	if err != nil {
		logger.Fatal("collecting image files", zap.Error(err))
	}

	fmt.Printf("Rebuilding index for %d image files...\n", len(files))
	report := runBatch(ctx, eng, files)
	printReport(report)
}

// runBatch feeds refs through the engine's worker pool with a live
// progress line.
func runBatch(ctx context.Context, eng *engine.Engine, refs []string) *engine.RebuildReport {
	tracker := newProgressTracker(len(refs))
	report, err := eng.RebuildIndex(ctx, refs, tracker.wrap(engine.LoaderFunc(loadImage)))
	tracker.Stop()
	if err != nil {
		fmt.Printf("Indexing interrupted: %v\n", err)
	}
	return report
}

func printReport(report *engine.RebuildReport) {
	fmt.Printf("\nIndexing complete.\n")
	fmt.Printf("Processed %d/%d images in %v.\n",
		report.Succeeded, report.Total, report.Duration.Round(time.Millisecond))

	if len(report.Failed) == 0 {
		return
	}
	fmt.Printf("Encountered %d errors:\n", len(report.Failed))
	const maxShown = 10
	for i, f := range report.Failed {
		if i == maxShown {
			fmt.Printf("  ... and %d more\n", len(report.Failed)-maxShown)
			break
		}
		fmt.Printf("  %s: %v\n", f.MediaRef, f.Err)
	}
}

func handleSearchCommand(ctx context.Context, eng *engine.Engine, args map[string]string) {
	queryPath := args["image"]
	if _, err := os.Stat(queryPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: query image does not exist: %s\n", queryPath)
		os.Exit(1)
	}

	img, err := loadImage(ctx, queryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	query := types.SearchQuery{Image: img, Threshold: eng.Config().Threshold}
	if thresholdStr, ok := args["threshold"]; ok {
		parsed, err := utils.ParseThreshold(thresholdStr)
		if err != nil {
			fmt.Printf("Warning: %v, using default (%g)\n", err, query.Threshold)
		} else {
			query.Threshold = parsed
		}
	}
	if limitStr, ok := args["limit"]; ok {
		if query.Limit, err = utils.ParseNonNegativeInt("limit", limitStr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if offsetStr, ok := args["offset"]; ok {
		if query.Offset, err = utils.ParseNonNegativeInt("offset", offsetStr); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("Searching for similar images...")
	startTime := time.Now()

	results, err := eng.Search(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: search failed: %v\n", err)
		os.Exit(1)
	}

	if len(results) == 0 {
		fmt.Println("No matches found.")
	} else {
		fmt.Println("\nTop Matches:")
		for i, match := range results {
			fmt.Printf("%d. Image: %s\n", i+1, match.Record.MediaRef)
			fmt.Printf("   Score: %.4f (phash: %.4f, color: %.4f, edge: %.4f)\n",
				match.Score,
				match.FeatureScores[types.FeaturePHash],
				match.FeatureScores[types.FeatureColor],
				match.FeatureScores[types.FeatureEdge])
		}
	}

	fmt.Printf("\nTotal search time: %v\n", time.Since(startTime).Round(time.Millisecond))
}

func handleStatsCommand(ctx context.Context, eng *engine.Engine) {
	stats, err := eng.GetStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Indexed records: %d\n", stats.TotalIndexed)
	if stats.LastUpdated.IsZero() {
		fmt.Println("Last updated: never")
	} else {
		fmt.Printf("Last updated: %s\n", stats.LastUpdated.Format(time.RFC3339))
	}
}

func mustFolder(args map[string]string, logger *zap.Logger) string {
	folderPath := args["folder"]
	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Fatal("folder path does not exist", zap.String("folder", folderPath))
		}
		logger.Fatal("cannot access folder path", zap.String("folder", folderPath), zap.Error(err))
	}
	if !folderInfo.IsDir() {
		logger.Fatal("path is not a directory", zap.String("folder", folderPath))
	}
	return folderPath
}

// loadImage decodes one image file using the decoders registered above.
func loadImage(_ context.Context, path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// progressTracker prints a live progress line while a batch runs.
type progressTracker struct {
	total     int
	processed atomic.Int64
	ticker    *time.Ticker
	done      chan struct{}
}

func newProgressTracker(total int) *progressTracker {
	t := &progressTracker{
		total:  total,
		ticker: time.NewTicker(500 * time.Millisecond),
		done:   make(chan struct{}),
	}
	go t.displayProgress()
	return t
}

func (t *progressTracker) displayProgress() {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			fmt.Printf("\rProgress: %d/%d", t.processed.Load(), t.total)
		}
	}
}

// wrap counts each attempted load so the progress line moves with the pool.
func (t *progressTracker) wrap(loader engine.ImageLoader) engine.ImageLoader {
	return engine.LoaderFunc(func(ctx context.Context, mediaRef string) (image.Image, error) {
		img, err := loader.Load(ctx, mediaRef)
		t.processed.Add(1)
		return img, err
	})
}

func (t *progressTracker) Stop() {
	t.ticker.Stop()
	close(t.done)
	fmt.Printf("\rProgress: %d/%d\n", t.processed.Load(), t.total)
}
