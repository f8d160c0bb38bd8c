package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"txtvec/config"
	"txtvec/internal/adapter/store"
	"txtvec/internal/domain"
	"txtvec/internal/port"
)

var sourcesJSON bool

var sourcesCmd = &cobra.Command{
	Use:   "sources <corpus>",
	Short: "List the documents ingested into a corpus",
	Long: `List every document of data/<corpus> that has passages in the index,
with its passage count and ingestion time.

Examples:
  txtvec sources novels
  txtvec sources novels --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.Flags().BoolVar(&sourcesJSON, "json", false, "output sources as JSON")
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	corpus := args[0]

	path := config.CatalogPath(cfg.DataDir, corpus)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no passage catalog at %s. Run 'txtvec build %s' first", path, corpus)
	}
	catalog, err := store.NewBoltStore(path)
	if err != nil {
		return fmt.Errorf("failed to open passage catalog: %w", err)
	}
	defer catalog.Close()

	return writeSources(cmd.OutOrStdout(), catalog, sourcesJSON)
}

func writeSources(out io.Writer, passages port.PassageStore, asJSON bool) error {
	sources, err := passages.ListSources()
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	if asJSON {
		if sources == nil {
			sources = []domain.SourceInfo{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(sources)
	}

	if len(sources) == 0 {
		fmt.Fprintln(out, "No documents ingested.")
		return nil
	}

	total := 0
	for _, s := range sources {
		fmt.Fprintf(out, "%8d  %s  %s\n", s.Passages, s.IngestedAt.Local().Format("2006-01-02 15:04"), s.Source)
		total += s.Passages
	}
	fmt.Fprintf(out, "\n%d documents, %d passages\n", len(sources), total)
	return nil
}
