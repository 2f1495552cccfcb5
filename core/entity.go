package core

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDocumentExists    = errors.New("document already exists")
	// ErrInvalidDocumentID means the store can never hold a document under that id.
	ErrInvalidDocumentID = errors.New("invalid document id")
)

type (
	// Document is the shared note behind a room. ID is the room identifier.
	Document struct {
		ID        string    `json:"roomId"`
		Title     string    `json:"title"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// DocumentPatch carries the fields to overwrite. Nil fields are left untouched.
	DocumentPatch struct {
		Title   *string `json:"title,omitempty"`
		Content *string `json:"content,omitempty"`
	}

	DocumentStore interface {
		// List returns every document, most recently updated first.
		List(ctx context.Context) ([]*Document, error)
		Get(ctx context.Context, id string) (*Document, error)
		// Create stores an empty document. It fails with ErrDocumentExists if id is taken.
		Create(ctx context.Context, title, id string) (*Document, error)
		Patch(ctx context.Context, id string, patch DocumentPatch) (*Document, error)
	}
)

func (p DocumentPatch) Empty() bool {
	return p.Title == nil && p.Content == nil
}

// Apply writes the patch onto doc and bumps UpdatedAt.
func (p DocumentPatch) Apply(doc *Document, now time.Time) {
	if p.Title != nil {
		doc.Title = *p.Title
	}
	if p.Content != nil {
		doc.Content = *p.Content
	}
	doc.UpdatedAt = now
}

// NewDocument returns an empty document stamped with now.
func NewDocument(id, title string, now time.Time) *Document {
	return &Document{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func StringPtr(s string) *string {
	return &s
}
