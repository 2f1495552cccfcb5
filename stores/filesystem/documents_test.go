package filesystem

import (
	"collabnotes-server/core"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*documentStore, string) {
	t.Helper()
	tempDir := t.TempDir()
	store, err := NewDocumentStore(tempDir)
	if err != nil {
		t.Fatalf("NewDocumentStore() failed: %v", err)
	}
	return store.(*documentStore), tempDir
}

func TestNewDocumentStore_CreatesDirectory(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "path", "test")
	store, err := NewDocumentStore(tempDir)
	if err != nil {
		t.Fatalf("NewDocumentStore() failed: %v", err)
	}
	if store == nil {
		t.Fatal("NewDocumentStore() returned nil")
	}

	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Error("NewDocumentStore() did not create nested directory structure")
	}
}

func TestCreate_WritesFile(t *testing.T) {
	store, tempDir := newTestStore(t)

	doc, err := store.Create(context.Background(), "Notes", "room-1")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if doc.ID != "room-1" || doc.Title != "Notes" {
		t.Errorf("Create() returned %+v", doc)
	}

	if _, err := os.Stat(filepath.Join(tempDir, "room-1.json")); os.IsNotExist(err) {
		t.Error("Create() did not create file on disk")
	}
}

func TestCreate_Duplicate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "one", "room-1"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := store.Create(ctx, "two", "room-1"); !errors.Is(err, core.ErrDocumentExists) {
		t.Fatalf("Create() duplicate error mismatch: got %v", err)
	}
}

func TestInvalidIDs(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"", ".", "..", "../escape", "a/b", `a\b`} {
		if _, err := store.Create(ctx, "title", id); err == nil {
			t.Errorf("Create(%q) should fail", id)
		}
		if _, err := store.Get(ctx, id); !errors.Is(err, core.ErrInvalidDocumentID) {
			t.Errorf("Get(%q) error mismatch: got %v", id, err)
		}
		if _, err := store.Patch(ctx, id, core.DocumentPatch{Content: core.StringPtr("x")}); !errors.Is(err, core.ErrInvalidDocumentID) {
			t.Errorf("Patch(%q) error mismatch: got %v", id, err)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, core.ErrDocumentNotFound) {
		t.Fatalf("Get() error mismatch: got %v", err)
	}
}

func TestPatch_PersistsAcrossInstances(t *testing.T) {
	store, tempDir := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "title", "room-1"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := store.Patch(ctx, "room-1", core.DocumentPatch{Content: core.StringPtr("hello 世界")}); err != nil {
		t.Fatalf("Patch() failed: %v", err)
	}

	reopened, err := NewDocumentStore(tempDir)
	if err != nil {
		t.Fatalf("NewDocumentStore() failed: %v", err)
	}
	doc, err := reopened.Get(ctx, "room-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if doc.Content != "hello 世界" || doc.Title != "title" {
		t.Errorf("reopened document mismatch: %+v", doc)
	}
}

func TestPatch_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Patch(context.Background(), "missing", core.DocumentPatch{Title: core.StringPtr("x")})
	if !errors.Is(err, core.ErrDocumentNotFound) {
		t.Fatalf("Patch() error mismatch: got %v", err)
	}
}

func TestList_SkipsForeignFiles(t *testing.T) {
	store, tempDir := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base }
	if _, err := store.Create(ctx, "old", "old"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	store.now = func() time.Time { return base.Add(time.Hour) }
	if _, err := store.Create(ctx, "new", "new"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(tempDir, "README.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	docs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("List() returned %d documents, want 2", len(docs))
	}
	if docs[0].ID != "new" || docs[1].ID != "old" {
		t.Errorf("List() order mismatch: %s, %s", docs[0].ID, docs[1].ID)
	}
}

func TestConcurrentPatch_NoPartialFiles(t *testing.T) {
	store, tempDir := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "title", "room-1"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := strings.Repeat("y", i*100)
			if _, err := store.Patch(ctx, "room-1", core.DocumentPatch{Content: &content}); err != nil {
				t.Errorf("Patch() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if _, err := store.Get(ctx, "room-1"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			t.Errorf("temporary file left behind: %s", entry.Name())
		}
	}
}
