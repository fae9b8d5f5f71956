package local

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dms-backend/internal/shared/storage/object"
)

func TestPutOpenDelete(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	obj, err := store.Put(ctx, "user-1", "notes.pdf", "application/pdf", strings.NewReader("%PDF-data"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if obj.Provider != "local" || obj.Locator != obj.Key || obj.Size != int64(len("%PDF-data")) {
		t.Fatalf("unexpected object: %+v", obj)
	}
	if !strings.HasSuffix(obj.Locator, "_notes.pdf") {
		t.Fatalf("unexpected locator: %s", obj.Locator)
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(obj.Locator))); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	rc, err := store.Open(ctx, obj.Locator)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-data" {
		t.Fatalf("unexpected content: %q", data)
	}

	if err := store.Delete(ctx, obj.Locator); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, obj.Locator); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := store.Open(ctx, obj.Locator); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on open, got %v", err)
	}
}

func TestSameNameDoesNotCollide(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	a, err := store.Put(ctx, "user-1", "cv.pdf", "", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("Put a: %v", err)
	}
	b, err := store.Put(ctx, "user-1", "cv.pdf", "", strings.NewReader("b"))
	if err != nil {
		t.Fatalf("Put b: %v", err)
	}
	if a.Locator == b.Locator {
		t.Fatal("expected distinct locators")
	}
}

func TestRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()
	for _, loc := range []string{"../secret", "/etc/passwd", "", "."} {
		if _, err := store.Open(ctx, loc); err == nil {
			t.Fatalf("Open(%q) expected error", loc)
		}
		if err := store.Delete(ctx, loc); err == nil {
			t.Fatalf("Delete(%q) expected error", loc)
		}
	}
}

func TestPutHonorsCanceledContext(t *testing.T) {
	store := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "user-1", "a.pdf", "", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
