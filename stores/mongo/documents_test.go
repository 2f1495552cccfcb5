package mongo

import (
	"collabnotes-server/core"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestSetFields(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	set := setFields(core.DocumentPatch{Content: core.StringPtr("")}, now)
	if _, ok := set["title"]; ok {
		t.Error("setFields() should not touch title when nil")
	}
	if v, ok := set["content"]; !ok || v != "" {
		t.Errorf("setFields() should set empty content, got %v", set["content"])
	}
	if set["updatedAt"] != now {
		t.Errorf("setFields() updatedAt mismatch: %v", set["updatedAt"])
	}

	set = setFields(core.DocumentPatch{Title: core.StringPtr("t")}, now)
	if set["title"] != "t" {
		t.Errorf("setFields() title mismatch: %v", set["title"])
	}
	if _, ok := set["content"]; ok {
		t.Error("setFields() should not touch content when nil")
	}
}

func TestRecordToDocument(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	record := noteRecord{RoomID: "room-1", Title: "t", Content: "c", CreatedAt: now, UpdatedAt: now.Add(time.Hour)}

	doc := record.toDocument()
	if doc.ID != "room-1" || doc.Title != "t" || doc.Content != "c" {
		t.Errorf("toDocument() mismatch: %+v", doc)
	}
	if !doc.UpdatedAt.Equal(now.Add(time.Hour)) {
		t.Errorf("toDocument() UpdatedAt mismatch: %v", doc.UpdatedAt)
	}
}

// TestLiveStore runs against a real server when MONGO_URI is set.
func TestLiveStore(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping live mongo test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewDocumentStore(ctx, uri, "notes_test_"+ulid.Make().String())
	if err != nil {
		t.Fatalf("NewDocumentStore() failed: %v", err)
	}
	s := store.(*documentStore)
	defer func() {
		_ = s.notes.Database().Drop(context.Background())
		_ = s.Close()
	}()

	if _, err := store.Create(ctx, "title", "room-1"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := store.Create(ctx, "again", "room-1"); !errors.Is(err, core.ErrDocumentExists) {
		t.Fatalf("Create() duplicate error mismatch: %v", err)
	}

	doc, err := store.Patch(ctx, "room-1", core.DocumentPatch{Content: core.StringPtr("hello")})
	if err != nil {
		t.Fatalf("Patch() failed: %v", err)
	}
	if doc.Content != "hello" || doc.Title != "title" {
		t.Errorf("Patch() mismatch: %+v", doc)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrDocumentNotFound) {
		t.Errorf("Get() error mismatch: %v", err)
	}
	if _, err := store.Patch(ctx, "missing", core.DocumentPatch{Title: core.StringPtr("x")}); !errors.Is(err, core.ErrDocumentNotFound) {
		t.Errorf("Patch() error mismatch: %v", err)
	}

	docs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "room-1" {
		t.Errorf("List() mismatch: %+v", docs)
	}
}
