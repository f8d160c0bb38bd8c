package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txtvec/config"
	"txtvec/internal/adapter/cache"
	"txtvec/internal/adapter/retriever"
	"txtvec/internal/adapter/store"
	"txtvec/internal/adapter/vectorindex"
	"txtvec/internal/domain"
	"txtvec/internal/port"
	"txtvec/internal/usecase"
)

const (
	prompt       = " > "
	displayChars = 500
)

var (
	searchQuery string
	searchTopK  int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <corpus>",
	Short: "Search the vector index of a corpus",
	Long: `Search the passages of data/<corpus> by semantic similarity.

Without -q an interactive prompt is started. Type a query and press enter;
type "exit", press ESC or send EOF to quit.

Examples:
  txtvec search novels
  txtvec search novels -q "雨の夜" -k 10
  txtvec search novels -q "雨の夜" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "run a single query and exit")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := GetLogger()
	corpus := args[0]
	out := cmd.OutOrStdout()

	k := cfg.Search.TopK
	if searchTopK > 0 {
		k = searchTopK
	}

	indexPath := config.IndexPath(cfg.DataDir, corpus)
	idx, err := store.LoadFile(indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no index found at %s. Run 'txtvec build %s' first", indexPath, corpus)
	}
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	catalog, err := store.NewBoltStore(config.CatalogPath(cfg.DataDir, corpus))
	if err != nil {
		return fmt.Errorf("failed to open passage catalog: %w", err)
	}
	defer catalog.Close()

	id, err := catalog.IndexID()
	if err != nil {
		return err
	}
	if id != idx.ID() {
		return fmt.Errorf("passage catalog does not belong to %s; rebuild the corpus", indexPath)
	}

	var searcher port.Searcher = idx
	if cfg.Search.Approximate && idx.Len() > 0 {
		ivf, err := vectorindex.BuildIVF(idx, cfg.Search.NList, cfg.Search.NProbe)
		if err != nil {
			return fmt.Errorf("failed to build approximate index: %w", err)
		}
		log.Info("approximate search enabled",
			zap.Int("lists", ivf.Lists()),
			zap.Int("nprobe", cfg.Search.NProbe))
		searcher = ivf
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	if embedder.Dimension() != 0 && embedder.Dimension() != idx.Dimension() && idx.Len() > 0 {
		return &domain.DimensionMismatchError{Want: idx.Dimension(), Got: embedder.Dimension()}
	}
	if cfg.Embedding.CacheSize > 0 {
		qc := cache.NewQueryCache(cfg.Embedding.CacheSize, time.Duration(cfg.Embedding.CacheTTLSecs)*time.Second)
		embedder = cache.NewCachedEmbedder(embedder, qc)
	}

	opts := []usecase.Option{
		usecase.WithLogger(log),
		usecase.WithPassageLookup(catalog),
		usecase.WithTimeout(time.Duration(cfg.Embedding.TimeoutSecs) * time.Second),
		usecase.WithRequireResults(cfg.Search.RequireResults),
	}
	if cfg.Search.MMRLambda > 0 {
		mmr := retriever.NewMMRReranker(idx, cfg.Search.MMRLambda, cfg.Search.DedupThreshold)
		opts = append(opts, usecase.WithReranker(mmr, cfg.Search.MMRCandidates))
	}
	pipeline := usecase.NewQueryPipeline(embedder, searcher, opts...)
	search := func(ctx context.Context, q string) ([]domain.PassageRef, error) {
		return pipeline.Query(ctx, q, k)
	}

	if searchQuery != "" {
		refs, err := search(cmd.Context(), searchQuery)
		if err != nil {
			return err
		}
		return writeResults(out, refs, searchJSON)
	}

	fmt.Fprintf(out, "Loaded %d passages from %s\n", idx.Len(), indexPath)
	fmt.Fprintln(out, "Ready to search. Type 'exit' to quit.")
	fmt.Fprintln(out)
	return runREPL(cmd.Context(), cmd.InOrStdin(), out, search, searchJSON)
}

// runREPL reads one query per line until EOF, "exit", a line starting with
// ESC, or cancellation of ctx. A failed query is reported and the loop goes
// on.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, search func(context.Context, string) ([]domain.PassageRef, error), asJSON bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	// The reader stops at EOF or after a line once ctx is done. A Scan
	// blocked on input that never arrives is only released when in closes.
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
		close(lines)
	}()

	for {
		fmt.Fprint(out, prompt)

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(out)
			return <-readErr
		}

		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == 0x1b || strings.EqualFold(line, "exit") {
			return nil
		}

		refs, err := search(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "Error during search: %v\n\n", err)
			continue
		}
		if err := writeResults(out, refs, asJSON); err != nil {
			return err
		}
	}
}

func writeResults(out io.Writer, refs []domain.PassageRef, asJSON bool) error {
	if asJSON {
		if refs == nil {
			refs = []domain.PassageRef{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(refs)
	}

	if len(refs) == 0 {
		fmt.Fprint(out, "No results found.\n\n")
		return nil
	}

	rule := strings.Repeat("=", 80)
	fmt.Fprintf(out, "\n%s\n", rule)
	for _, r := range refs {
		fmt.Fprintf(out, "\n[Result %d]\n", r.Rank)
		fmt.Fprintf(out, "Source: %s\n", r.Source)
		fmt.Fprintf(out, "Chunk Index: %d\n", r.ChunkIndex)
		fmt.Fprintf(out, "Score: %.4f\n", r.Score)
		fmt.Fprintln(out, strings.Repeat("-", 40))
		fmt.Fprintln(out, truncate(r.Text, displayChars))
	}
	fmt.Fprintf(out, "\n%s\n\n", rule)
	return nil
}

// truncate cuts s to n characters and marks the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
