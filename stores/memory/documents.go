package memory

import (
	"collabnotes-server/core"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type documentStore struct {
	mu        sync.RWMutex
	documents map[string]core.Document
	now       func() time.Time
}

func NewDocumentStore() core.DocumentStore {
	return &documentStore{
		documents: make(map[string]core.Document),
		now:       time.Now,
	}
}

func (s *documentStore) List(ctx context.Context) ([]*core.Document, error) {
	s.mu.RLock()
	docs := make([]*core.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		doc := doc
		docs = append(docs, &doc)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs, nil
}

func (s *documentStore) Get(ctx context.Context, id string) (*core.Document, error) {
	log := logrus.WithField("document_id", id)

	s.mu.RLock()
	doc, ok := s.documents[id]
	s.mu.RUnlock()

	if !ok {
		log.Debug("Document with specified ID not found")
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentNotFound)
	}
	return &doc, nil
}

func (s *documentStore) Create(ctx context.Context, title, id string) (*core.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("document id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[id]; exists {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentExists)
	}
	doc := core.NewDocument(id, title, s.now())
	s.documents[id] = *doc

	logrus.WithField("document_id", id).Info("Document created successfully")
	return doc, nil
}

func (s *documentStore) Patch(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentNotFound)
	}
	patch.Apply(&doc, s.now())
	s.documents[id] = doc

	logrus.WithFields(logrus.Fields{
		"document_id":    id,
		"content_length": len(doc.Content),
	}).Debug("Document patched")
	return &doc, nil
}
