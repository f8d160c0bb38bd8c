package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"txtvec/config"
	"txtvec/internal/adapter/memstore"
	"txtvec/internal/domain"
)

func TestRunREPL(t *testing.T) {
	var queries []string
	search := func(ctx context.Context, q string) ([]domain.PassageRef, error) {
		queries = append(queries, q)
		if q == "broken" {
			return nil, errors.New("embedding server down")
		}
		return []domain.PassageRef{{Rank: 1, Source: "a.txt", ChunkIndex: 2, Text: "hit for " + q}}, nil
	}

	in := strings.NewReader("\n   \nfirst\r\nbroken\nEXIT\nnever\n")
	var out bytes.Buffer
	if err := runREPL(context.Background(), in, &out, search, false); err != nil {
		t.Fatal(err)
	}

	if len(queries) != 2 || queries[0] != "first" || queries[1] != "broken" {
		t.Errorf("unexpected queries %q", queries)
	}
	got := out.String()
	for _, want := range []string{" > ", "[Result 1]", "Source: a.txt", "Chunk Index: 2", "hit for first", "Error during search: embedding server down"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunREPL_Escape(t *testing.T) {
	called := false
	search := func(ctx context.Context, q string) ([]domain.PassageRef, error) {
		called = true
		return nil, nil
	}

	var out bytes.Buffer
	if err := runREPL(context.Background(), strings.NewReader("\x1b[A\nquery\n"), &out, search, false); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("ESC line should end the loop before any search")
	}
}

func TestRunREPL_EOF(t *testing.T) {
	var out bytes.Buffer
	search := func(ctx context.Context, q string) ([]domain.PassageRef, error) {
		return nil, nil
	}
	if err := runREPL(context.Background(), strings.NewReader("query"), &out, search, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No results found.") {
		t.Errorf("expected empty result message, got %q", out.String())
	}
}

func TestRunREPL_Cancel(t *testing.T) {
	in, w := io.Pipe()
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	search := func(ctx context.Context, q string) ([]domain.PassageRef, error) {
		return nil, nil
	}

	done := make(chan error, 1)
	var out bytes.Buffer
	go func() { done <- runREPL(ctx, in, &out, search, false) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not return after cancel while input was idle")
	}
}

func TestWriteSources(t *testing.T) {
	s := memstore.NewMemoryStore()
	var out bytes.Buffer
	if err := writeSources(&out, s, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No documents ingested.") {
		t.Errorf("unexpected output for empty store %q", out.String())
	}

	err := s.PutPassages([]domain.StoredPassage{
		{ID: 0, Source: "b.txt", ChunkIndex: 0, Text: "one"},
		{ID: 1, Source: "b.txt", ChunkIndex: 1, Text: "two"},
		{ID: 2, Source: "a.txt", ChunkIndex: 0, Text: "three"},
	})
	if err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if err := writeSources(&out, s, false); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if strings.Index(got, "a.txt") > strings.Index(got, "b.txt") {
		t.Errorf("sources not ordered by name:\n%s", got)
	}
	if !strings.Contains(got, "2 documents, 3 passages") {
		t.Errorf("missing totals:\n%s", got)
	}

	out.Reset()
	if err := writeSources(&out, s, true); err != nil {
		t.Fatal(err)
	}
	var sources []domain.SourceInfo
	if err := json.Unmarshal(out.Bytes(), &sources); err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 || sources[1].Source != "b.txt" || sources[1].Passages != 2 {
		t.Errorf("unexpected sources %+v", sources)
	}
}

func TestWriteResults_Truncates(t *testing.T) {
	long := strings.Repeat("あ", displayChars+10)
	var out bytes.Buffer
	if err := writeResults(&out, []domain.PassageRef{{Rank: 1, Text: long}}, false); err != nil {
		t.Fatal(err)
	}
	want := strings.Repeat("あ", displayChars) + "..."
	if !strings.Contains(out.String(), want+"\n") {
		t.Error("expected text cut to 500 characters followed by ...")
	}
	if strings.Contains(out.String(), strings.Repeat("あ", displayChars+1)) {
		t.Error("text not truncated")
	}

	if got := truncate("short", displayChars); got != "short" {
		t.Errorf("short text changed: %q", got)
	}
}

func TestWriteResults_JSON(t *testing.T) {
	var out bytes.Buffer
	if err := writeResults(&out, nil, true); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %q", out.String())
	}
}

func TestNewNormalizer(t *testing.T) {
	cfg := config.DefaultConfig()
	n, err := newNormalizer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if n == nil {
		t.Fatal("expected a normalizer for the ja defaults")
	}
	if got := n.Normalize("吾輩は\n猫である"); got != "吾輩は猫である" {
		t.Errorf("got %q", got)
	}

	cfg.Split.Normalize = "none"
	cfg.Split.Unwrap = false
	n, err = newNormalizer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if n != nil {
		t.Error("expected no normalizer")
	}

	cfg.Split.Unwrap = true
	cfg.Split.ScriptClasses = []config.ScriptClass{{Name: "bad", Scripts: []string{"Klingon"}}}
	if _, err := newNormalizer(cfg); err == nil {
		t.Error("expected error for unknown script")
	}
}

func TestBuildAndSearch(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "data", "novels")
	if err := os.MkdirAll(corpus, 0755); err != nil {
		t.Fatal(err)
	}
	docs := map[string]string{
		"fox.txt":   "the quick brown fox jumps",
		"rain.txt":  "rain fell on the old town all night",
		"empty.txt": "",
	}
	for name, text := range docs {
		if err := os.WriteFile(filepath.Join(corpus, name), []byte(text), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfgPath := filepath.Join(dir, "txtvec.yaml")
	yaml := `data_dir: ` + filepath.Join(dir, "data") + `
split:
  chunk_size: 40
  chunk_overlap: 5
  language: en
  normalize: none
  unwrap: false
embedding:
  provider: mock
  model: mock
  dimension: 32
search:
  top_k: 2
logging:
  level: error
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		cfgFile, dataDir, debug = "", "", false
		buildAppend, buildBestEffort = false, false
		searchQuery, searchTopK, searchJSON = "", 0, false
		sourcesJSON = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	rootCmd.SetArgs([]string{"--config", cfgPath, "build", "novels"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := os.Stat(config.IndexPath(filepath.Join(dir, "data"), "novels")); err != nil {
		t.Fatalf("index file not written: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", cfgPath, "search", "novels", "-q", "the quick brown fox jumps", "--json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("search: %v", err)
	}

	var refs []domain.PassageRef
	if err := json.Unmarshal(out.Bytes(), &refs); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 results, got %d", len(refs))
	}
	if filepath.Base(refs[0].Source) != "fox.txt" || refs[0].Text != docs["fox.txt"] {
		t.Errorf("unexpected top result %+v", refs[0])
	}
	if refs[0].Rank != 1 || refs[1].Rank != 2 {
		t.Errorf("unexpected ranks %d, %d", refs[0].Rank, refs[1].Rank)
	}

	out.Reset()
	rootCmd.SetArgs([]string{"--config", cfgPath, "sources", "novels", "--json"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("sources: %v", err)
	}
	var sources []domain.SourceInfo
	if err := json.Unmarshal(out.Bytes(), &sources); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	if len(sources) != 2 {
		t.Errorf("expected fox.txt and rain.txt, got %+v", sources)
	}
	for _, s := range sources {
		if s.Passages != 1 || s.IngestedAt.IsZero() {
			t.Errorf("unexpected source %+v", s)
		}
	}

	// Appending with a different chunk size must be refused.
	changed := strings.Replace(yaml, "chunk_size: 40", "chunk_size: 30", 1)
	if err := os.WriteFile(cfgPath, []byte(changed), 0644); err != nil {
		t.Fatal(err)
	}
	rootCmd.SetArgs([]string{"--config", cfgPath, "build", "novels", "--append"})
	err := rootCmd.Execute()
	if !errors.Is(err, domain.ErrConfig) {
		t.Errorf("expected configuration error on append, got %v", err)
	}
}
