package vectorindex

import (
	"math"
	"reflect"
	"testing"
)

func clusteredIndex(t *testing.T) *Flat {
	t.Helper()
	idx := NewFlat(3)
	centers := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for i := 0; i < 60; i++ {
		c := centers[i%3]
		jitter := float32(i%7) * 0.02
		v := normalized(c[0]+jitter, c[1]+jitter/2, c[2]+jitter/3)
		if _, err := idx.Insert(v, meta("c", i)); err != nil {
			t.Fatal(err)
		}
	}
	return idx
}

func TestIVF_FullProbeMatchesExact(t *testing.T) {
	flat := clusteredIndex(t)
	ivf, err := BuildIVF(flat, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	queries := [][]float32{
		normalized(1, 0.1, 0),
		normalized(0.3, 0.3, 0.9),
		normalized(-1, 0.2, 0.2),
	}
	for _, q := range queries {
		want, err := flat.Search(q, 10)
		if err != nil {
			t.Fatal(err)
		}
		got, err := ivf.Search(q, 10)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("query %v: ivf result differs from exact", q)
		}
	}
}

func TestIVF_PartialProbeFindsNearCluster(t *testing.T) {
	flat := clusteredIndex(t)
	ivf, err := BuildIVF(flat, 3, 1)
	if err != nil {
		t.Fatal(err)
	}

	q := normalized(0, 1, 0)
	hits, err := ivf.Search(q, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 5 {
		t.Fatalf("expected 5 hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Metadata.ChunkIndex%3 != 1 {
			t.Errorf("hit %d is outside the probed cluster", h.ID)
		}
		if math.Abs(h.Score) > 1.0+1e-6 {
			t.Errorf("score out of range: %f", h.Score)
		}
	}
}

func TestIVF_ListsCappedByEntries(t *testing.T) {
	idx := NewFlat(2)
	for i := 0; i < 3; i++ {
		if _, err := idx.Insert([]float32{float32(i), 1}, meta("a", i)); err != nil {
			t.Fatal(err)
		}
	}
	ivf, err := BuildIVF(idx, 16, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ivf.Lists() != 3 {
		t.Errorf("expected 3 lists, got %d", ivf.Lists())
	}
	if ivf.Len() != 3 || ivf.Dimension() != 2 {
		t.Errorf("snapshot mismatch: len=%d dim=%d", ivf.Len(), ivf.Dimension())
	}
}

func TestIVF_EmptyAndInvalid(t *testing.T) {
	ivf, err := BuildIVF(NewFlat(0), 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	hits, err := ivf.Search([]float32{1}, 3)
	if err != nil || len(hits) != 0 {
		t.Errorf("expected empty result, got %v, %v", hits, err)
	}

	if _, err := BuildIVF(NewFlat(0), 0, 1); err == nil {
		t.Error("expected error for nlist=0")
	}
	if _, err := BuildIVF(NewFlat(0), 4, 0); err == nil {
		t.Error("expected error for nprobe=0")
	}
}

func TestIVF_WithNProbe(t *testing.T) {
	flat := clusteredIndex(t)
	narrow, err := BuildIVF(flat, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	wide := narrow.WithNProbe(3)

	q := normalized(0.3, 0.3, 0.9)
	want, err := flat.Search(q, 60)
	if err != nil {
		t.Fatal(err)
	}
	got, err := wide.Search(q, 60)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("probing every list should match exact search")
	}

	partial, err := narrow.Search(q, 60)
	if err != nil {
		t.Fatal(err)
	}
	if len(partial) >= len(want) {
		t.Errorf("single probe returned %d of %d entries", len(partial), len(want))
	}

	v, ok := narrow.Vector(5)
	fv, _ := flat.Vector(5)
	if !ok || !reflect.DeepEqual(v, fv) {
		t.Error("snapshot vector differs from the flat index")
	}
	if _, ok := narrow.Vector(60); ok {
		t.Error("expected no vector past the end")
	}
}
