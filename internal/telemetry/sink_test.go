package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFileSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "results"))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	payload := []byte(`{"name":"high-load"}`)
	if err := sink.Store(ctx, "run-1", payload); err != nil {
		t.Fatal(err)
	}

	got, err := sink.Load(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("loaded %q", got)
	}

	if err := sink.Store(ctx, "run-2", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	ids, err := sink.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"run-1", "run-2"}) {
		t.Errorf("ids = %v", ids)
	}

	// No leftover temp files from the write-then-rename dance.
	entries, _ := os.ReadDir(filepath.Join(dir, "results"))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("stray temp file %s", e.Name())
		}
	}
}

func TestFileSinkLoadMissing(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sink.Load(context.Background(), "nope"); err == nil {
		t.Error("expected error for missing result")
	}
}

func TestMemorySinkIsolation(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	payload := []byte("original")
	if err := sink.Store(ctx, "a", payload); err != nil {
		t.Fatal(err)
	}
	payload[0] = 'X'

	got, err := sink.Load(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Errorf("stored data aliased caller buffer: %q", got)
	}

	got[0] = 'Y'
	again, _ := sink.Load(ctx, "a")
	if string(again) != "original" {
		t.Errorf("loaded data aliased internal buffer: %q", again)
	}
}
