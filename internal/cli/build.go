package cli

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txtvec/config"
	"txtvec/internal/adapter/fs"
	"txtvec/internal/adapter/store"
	"txtvec/internal/adapter/vectorindex"
	"txtvec/internal/domain"
	"txtvec/internal/port"
	"txtvec/internal/usecase"
)

var (
	buildAppend     bool
	buildBestEffort bool
)

var buildCmd = &cobra.Command{
	Use:   "build <corpus>",
	Short: "Build the vector index of a corpus",
	Long: `Split every text file of data/<corpus>, embed the passages and write
the index to data/<corpus>/index.vec.

By default the index is rebuilt from scratch. With --append the documents are
added to the existing index, which must have been built with the same split
and embedding settings.

Examples:
  txtvec build novels
  txtvec build novels --best-effort
  txtvec build novels --append`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVar(&buildAppend, "append", false, "add documents to the existing index")
	buildCmd.Flags().BoolVar(&buildBestEffort, "best-effort", false, "skip documents that fail instead of stopping")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := GetLogger()
	corpus := args[0]

	corpusDir := config.CorpusDir(cfg.DataDir, corpus)
	info, err := os.Stat(corpusDir)
	if err != nil {
		return fmt.Errorf("corpus does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("corpus is not a directory: %s", corpusDir)
	}

	splitter, err := newSplitter(cfg)
	if err != nil {
		return err
	}
	normalizer, err := newNormalizer(cfg)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	var source port.DocumentSource = fs.NewWalker(cfg.Corpus.Includes, cfg.Corpus.Excludes)
	fmt.Printf("Scanning %s...\n", corpusDir)
	docs, err := source.Documents(corpusDir)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents matching %v in %s", cfg.Corpus.Includes, corpusDir)
	}

	catalog, err := store.NewBoltStore(config.CatalogPath(cfg.DataDir, corpus))
	if err != nil {
		return fmt.Errorf("failed to open passage catalog: %w", err)
	}
	defer catalog.Close()

	indexPath := config.IndexPath(cfg.DataDir, corpus)
	idx, err := openBuildIndex(catalog, indexPath)
	if err != nil {
		return err
	}

	// Ctrl-C stops at the next document boundary.
	ctx := cmd.Context()

	var (
		bar   *progressbar.ProgressBar
		barMu sync.Mutex
		start = time.Now()
	)
	progress := func(done, total int, source string) {
		barMu.Lock()
		defer barMu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		_ = bar.Set(done)

		if done > 0 && done < total {
			rate := float64(done) / time.Since(start).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	pipeline := usecase.NewIngestionPipeline(splitter, embedder, idx,
		usecase.WithLogger(log),
		usecase.WithNormalizer(normalizer),
		usecase.WithPassageStore(catalog),
		usecase.WithBatchSize(cfg.Embedding.BatchSize),
		usecase.WithWorkers(cfg.Embedding.Workers),
		usecase.WithTimeout(time.Duration(cfg.Embedding.TimeoutSecs)*time.Second),
		usecase.WithBestEffort(buildBestEffort || cfg.Ingest.BestEffort),
		usecase.WithProgress(progress),
	)

	log.Info("building index",
		zap.String("corpus", corpus),
		zap.Int("documents", len(docs)),
		zap.String("model", embedder.ModelName()),
		zap.Bool("append", buildAppend))

	result, ingestErr := pipeline.Ingest(ctx, docs)

	// Whatever was inserted is saved so the catalog and index agree.
	if err := store.SaveFile(indexPath, idx); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	if err := catalog.SetIndexID(idx.ID()); err != nil {
		return fmt.Errorf("failed to record index id: %w", err)
	}
	if ingestErr != nil {
		return fmt.Errorf("build stopped, partial index saved: %w", ingestErr)
	}

	fmt.Printf("\nBuild complete:\n")
	fmt.Printf("  Documents:  %d\n", result.Documents)
	if result.Empty > 0 {
		fmt.Printf("  Empty:      %d\n", result.Empty)
	}
	fmt.Printf("  Passages:   %d\n", result.Passages)
	fmt.Printf("  Index size: %d\n", idx.Len())
	fmt.Printf("  Elapsed:    %s\n", formatDuration(time.Since(start)))
	if len(result.Failed) > 0 {
		fmt.Printf("\nFailed documents:\n")
		for _, e := range result.Failed {
			fmt.Printf("  - %s\n", e)
		}
	}
	fmt.Printf("\nIndex stored at: %s\n", indexPath)
	return nil
}

// openBuildIndex returns the index a build inserts into. A fresh build clears
// the catalog. An append loads the saved index and requires the catalog to
// describe it and the configuration to match the one it was built with.
func openBuildIndex(catalog *store.BoltStore, indexPath string) (*vectorindex.Flat, error) {
	cfg := GetConfig()

	check, err := catalog.CheckMigration(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to check catalog: %w", err)
	}

	if !buildAppend {
		if check.NeedsRebuild {
			fmt.Printf("Rebuilding: %s\n", check.Reason)
		}
		if err := catalog.Clear(); err != nil {
			return nil, fmt.Errorf("failed to clear catalog: %w", err)
		}
		if err := catalog.Migrate(cfg); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		return vectorindex.NewFlat(cfg.Embedding.Dimension), nil
	}

	if check.NeedsRebuild {
		return nil, &domain.ConfigError{Field: "append", Reason: check.Reason + "; run build without --append"}
	}
	if check.NeedsMigration {
		if err := catalog.Migrate(cfg); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	idx, err := store.LoadFile(indexPath)
	if errors.Is(err, os.ErrNotExist) {
		if n, cerr := catalog.Count(); cerr == nil && n > 0 {
			return nil, fmt.Errorf("catalog holds %d passages but %s is missing; run build without --append", n, indexPath)
		}
		return vectorindex.NewFlat(cfg.Embedding.Dimension), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	id, err := catalog.IndexID()
	if err != nil {
		return nil, err
	}
	if id != idx.ID() {
		return nil, fmt.Errorf("catalog does not belong to %s; run build without --append", indexPath)
	}
	if cfg.Embedding.Dimension != 0 && idx.Dimension() != cfg.Embedding.Dimension {
		return nil, &domain.DimensionMismatchError{Want: cfg.Embedding.Dimension, Got: idx.Dimension()}
	}
	return idx, nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
