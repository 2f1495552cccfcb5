package filesystem

import (
	"collabnotes-server/core"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const fileExt = ".json"

type documentStore struct {
	basePath string
	// mu serializes read-modify-write cycles on document files.
	mu  sync.Mutex
	now func() time.Time
}

// NewDocumentStore stores every document as one JSON file under basePath.
func NewDocumentStore(basePath string) (core.DocumentStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &documentStore{basePath: basePath, now: time.Now}, nil
}

func (s *documentStore) pathFor(id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w %q", core.ErrInvalidDocumentID, id)
	}
	return filepath.Join(s.basePath, id+fileExt), nil
}

func (s *documentStore) List(ctx context.Context) ([]*core.Document, error) {
	log := logrus.WithField("path", s.basePath)

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		log.WithError(err).Error("Failed to read storage directory")
		return nil, err
	}

	docs := make([]*core.Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		doc, err := readDocument(filepath.Join(s.basePath, entry.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read document file %s, skipping", entry.Name())
			continue
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs, nil
}

func (s *documentStore) Get(ctx context.Context, id string) (*core.Document, error) {
	filePath, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}

	doc, err := readDocument(filePath)
	if errors.Is(err, os.ErrNotExist) {
		logrus.WithField("document_id", id).Debug("Document with specified ID not found")
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentNotFound)
	}
	return doc, err
}

func (s *documentStore) Create(ctx context.Context, title, id string) (*core.Document, error) {
	filePath, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"document_id": id, "file_path": filePath})

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(filePath); err == nil {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentExists)
	}

	doc := core.NewDocument(id, title, s.now())
	if err := writeDocument(filePath, doc); err != nil {
		log.WithError(err).Error("Failed to create document")
		return nil, err
	}

	log.Info("Document created successfully")
	return doc, nil
}

func (s *documentStore) Patch(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	filePath, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := readDocument(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, err
	}

	patch.Apply(doc, s.now())
	if err := writeDocument(filePath, doc); err != nil {
		logrus.WithField("document_id", id).WithError(err).Error("Failed to write document file")
		return nil, err
	}
	return doc, nil
}

func readDocument(filePath string) (*core.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(filePath), err)
	}
	return &doc, nil
}

// writeDocument replaces the file atomically so readers never see a partial document.
func writeDocument(filePath string, doc *core.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}
