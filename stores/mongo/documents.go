package mongo

import (
	"collabnotes-server/core"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "notes"

// noteRecord is the stored shape of a document, keyed by roomId.
type noteRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	RoomID    string             `bson:"roomId"`
	Title     string             `bson:"title"`
	Content   string             `bson:"content"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (r *noteRecord) toDocument() *core.Document {
	return &core.Document{
		ID:        r.RoomID,
		Title:     r.Title,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type documentStore struct {
	client *mongo.Client
	notes  *mongo.Collection
	now    func() time.Time
}

// NewDocumentStore connects to uri and makes sure roomId is uniquely indexed.
func NewDocumentStore(ctx context.Context, uri, database string) (core.DocumentStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	notes := client.Database(database).Collection(collectionName)
	_, err = notes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "roomId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create roomId index: %w", err)
	}

	logrus.WithField("database", database).Info("MongoDB connected")
	return &documentStore{client: client, notes: notes, now: time.Now}, nil
}

func (s *documentStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *documentStore) List(ctx context.Context) ([]*core.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "roomId", Value: 1}})
	cursor, err := s.notes.Find(ctx, bson.D{}, opts)
	if err != nil {
		logrus.WithError(err).Error("Failed to list documents")
		return nil, err
	}

	var records []noteRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	docs := make([]*core.Document, 0, len(records))
	for i := range records {
		docs = append(docs, records[i].toDocument())
	}
	return docs, nil
}

func (s *documentStore) Get(ctx context.Context, id string) (*core.Document, error) {
	var record noteRecord
	err := s.notes.FindOne(ctx, bson.M{"roomId": id}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		logrus.WithField("document_id", id).Debug("Document with specified ID not found")
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return record.toDocument(), nil
}

func (s *documentStore) Create(ctx context.Context, title, id string) (*core.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("document id is required")
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	record := noteRecord{RoomID: id, Title: title, CreatedAt: now, UpdatedAt: now}

	if _, err := s.notes.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentExists)
		}
		logrus.WithField("document_id", id).WithError(err).Error("Failed to create document")
		return nil, err
	}

	logrus.WithField("document_id", id).Info("Document created successfully")
	return record.toDocument(), nil
}

func (s *documentStore) Patch(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error) {
	update := bson.M{"$set": setFields(patch, s.now().UTC().Truncate(time.Millisecond))}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record noteRecord
	err := s.notes.FindOneAndUpdate(ctx, bson.M{"roomId": id}, update, opts).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("document %s: %w", id, core.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("patch document %s: %w", id, err)
	}
	return record.toDocument(), nil
}

func setFields(patch core.DocumentPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	return set
}
