package aws

import (
	"bytes"
	"collabnotes-server/core"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "notes/"

// s3API is the subset of *s3.Client the store needs.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type s3Store struct {
	client s3API
	bucket string
	// mu serializes read-modify-write cycles issued by this process.
	// Writers in other processes still race under last-write-wins.
	mu  sync.Mutex
	now func() time.Time
}

// NewDocumentStore creates an S3 backed store using the default AWS config chain.
func NewDocumentStore(ctx context.Context, bucketName string) (core.DocumentStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS SDK config: %w", err)
	}
	return newS3Store(s3.NewFromConfig(cfg), bucketName), nil
}

func newS3Store(client s3API, bucket string) *s3Store {
	return &s3Store{client: client, bucket: bucket, now: time.Now}
}

func documentKey(id string) (string, error) {
	if id == "" || id == "." || id == ".." || path.Base(id) != id || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w %q", core.ErrInvalidDocumentID, id)
	}
	return keyPrefix + id + ".json", nil
}

func (s *s3Store) List(ctx context.Context) ([]*core.Document, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(keyPrefix),
	})

	docs := make([]*core.Document, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			doc, err := s.read(ctx, key)
			if err != nil {
				logrus.WithError(err).WithField("key", key).Warn("Failed to read document object, skipping")
				continue
			}
			docs = append(docs, doc)
		}
	}

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs, nil
}

func (s *s3Store) Get(ctx context.Context, id string) (*core.Document, error) {
	key, err := documentKey(id)
	if err != nil {
		return nil, err
	}
	doc, err := s.read(ctx, key)
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *s3Store) Create(ctx context.Context, title, id string) (*core.Document, error) {
	key, err := documentKey(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Get(ctx, id); err == nil {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentExists)
	} else if !errors.Is(err, core.ErrDocumentNotFound) {
		return nil, err
	}

	doc := core.NewDocument(id, title, s.now())
	if err := s.write(ctx, key, doc); err != nil {
		return nil, fmt.Errorf("create document %s: %w", id, err)
	}
	logrus.WithField("document_id", id).Info("Document created successfully")
	return doc, nil
}

func (s *s3Store) Patch(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	key, err := documentKey(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(doc, s.now())
	if err := s.write(ctx, key, doc); err != nil {
		return nil, fmt.Errorf("patch document %s: %w", id, err)
	}
	return doc, nil
}

func (s *s3Store) read(ctx context.Context, key string) (*core.Document, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read document object: %w", err)
	}
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document object: %w", err)
	}
	return &doc, nil
}

func (s *s3Store) write(ctx context.Context, key string, doc *core.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}
