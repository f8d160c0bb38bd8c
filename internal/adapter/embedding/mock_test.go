package embedding

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"txtvec/internal/domain"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(32)
	ctx := context.Background()

	q, err := e.EmbedQuery(ctx, "吾輩は猫である")
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 32 {
		t.Fatalf("expected dimension 32, got %d", len(q))
	}

	batch, err := e.EmbedBatch(ctx, []string{"吾輩は猫である", "名前はまだ無い", ""})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(batch[0], q) {
		t.Error("same text should embed identically")
	}
	if math.Abs(dot(q, batch[0])-1) > 1e-6 {
		t.Errorf("self similarity %f", dot(q, batch[0]))
	}
	for i, v := range batch {
		if math.Abs(norm(v)-1) > 1e-6 {
			t.Errorf("vector %d not normalized", i)
		}
	}

	near, _ := e.EmbedQuery(ctx, "吾輩は猫")
	far, _ := e.EmbedQuery(ctx, "xyzzy plugh")
	if dot(q, near) <= dot(q, far) {
		t.Errorf("overlapping text should score higher: near %f, far %f", dot(q, near), dot(q, far))
	}
}

func TestMockEmbedder_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockEmbedder(8).EmbedBatch(ctx, []string{"x"})
	if !errors.Is(err, domain.ErrEmbeddingFailure) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected canceled embedding failure, got %v", err)
	}
}
