package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txtvec/config"
	"txtvec/internal/adapter/chunker"
	"txtvec/internal/adapter/embedding"
	"txtvec/internal/adapter/textnorm"
	"txtvec/internal/logging"
	"txtvec/internal/port"
)

var (
	cfgFile string
	cfg     *config.Config
	dataDir string
	debug   bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "txtvec",
	Short: "Build and search vector indexes over plain-text corpora",
	Long: `txtvec splits a directory of UTF-8 text files into overlapping passages,
embeds them with an OpenAI-compatible embedding server and stores the vectors
in a local index that can be searched interactively.

Each corpus lives in its own directory under the data directory:
  data/<corpus>/*.txt          source documents
  data/<corpus>/index.vec      vector index
  data/<corpus>/passages.db    passage text catalog

Example usage:
  txtvec build novels            # Index data/novels/*.txt
  txtvec search novels           # Interactive search
  txtvec search novels -q "猫"   # One-shot search`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal.
		_ = godotenv.Load()

		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(wd)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if debug {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./txtvec.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "directory holding the corpora (default from config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func GetConfig() *config.Config {
	return cfg
}

// GetLogger returns the logger built from the loaded configuration.
func GetLogger() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	ec := cfg.Embedding
	switch ec.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKeyEnv:     ec.APIKeyEnv,
			Model:         ec.Model,
			BaseURL:       ec.BaseURL,
			Dimension:     ec.Dimension,
			QueryPrefix:   ec.QueryPrefix,
			PassagePrefix: ec.PassagePrefix,
			Normalize:     ec.Normalize,
			Timeout:       time.Duration(ec.TimeoutSecs) * time.Second,
		})
	case "mock":
		return embedding.NewMockEmbedder(ec.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}
}

func newSplitter(cfg *config.Config) (*chunker.RecursiveChunker, error) {
	seps := cfg.Split.Separators
	if len(seps) == 0 {
		var err error
		seps, err = chunker.SeparatorsFor(cfg.Split.Language)
		if err != nil {
			return nil, err
		}
	}
	return chunker.NewRecursiveChunker(cfg.Split.ChunkSize, cfg.Split.ChunkOverlap, seps)
}

// newNormalizer returns nil when the configuration asks for no rewriting.
func newNormalizer(cfg *config.Config) (port.Normalizer, error) {
	sc := cfg.Split
	var classes []textnorm.ScriptClass
	if sc.Unwrap {
		for _, c := range sc.ScriptClasses {
			classes = append(classes, textnorm.ScriptClass{
				Name:    c.Name,
				Scripts: c.Scripts,
				Chars:   c.Chars,
				Joiner:  c.Joiner,
			})
		}
		if len(classes) == 0 && sc.Language == "ja" {
			classes = textnorm.JapaneseClasses()
		}
	}

	if len(classes) == 0 && (sc.Normalize == "" || strings.EqualFold(sc.Normalize, "none")) {
		return nil, nil
	}

	n, err := textnorm.New(sc.Normalize, classes)
	if err != nil {
		return nil, fmt.Errorf("text normalizer: %w", err)
	}
	return n, nil
}
