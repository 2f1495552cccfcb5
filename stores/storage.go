package stores

import (
	"collabnotes-server/core"
	"collabnotes-server/stores/aws"
	"collabnotes-server/stores/filesystem"
	"collabnotes-server/stores/memory"
	"collabnotes-server/stores/mongo"
	"collabnotes-server/stores/sqlite"
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// GetStore builds the document store selected by STORAGE_TYPE.
func GetStore(ctx context.Context) (core.DocumentStore, error) {
	storageType := os.Getenv("STORAGE_TYPE")
	var (
		store core.DocumentStore
		err   error
	)

	storageField := logrus.Fields{
		"storageType": storageType,
	}

	switch storageType {
	case "filesystem":
		basePath := envOr("LOCAL_STORAGE_PATH", "./data")
		storageField["basePath"] = basePath
		store, err = filesystem.NewDocumentStore(basePath)
	case "sqlite":
		dataSourceName := envOr("DATA_SOURCE_NAME", "notes.db")
		storageField["dataSourceName"] = dataSourceName
		store, err = sqlite.NewDocumentStore(dataSourceName)
	case "s3":
		bucketName := os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = bucketName
		store, err = aws.NewDocumentStore(ctx, bucketName)
	case "mongo":
		uri := os.Getenv("MONGO_URI")
		if uri == "" {
			return nil, fmt.Errorf("MONGO_URI environment variable must be set for mongo storage type")
		}
		database := envOr("MONGO_DATABASE", "notes")
		storageField["database"] = database
		store, err = mongo.NewDocumentStore(ctx, uri, database)
	case "", "memory":
		store = memory.NewDocumentStore()
		storageField["storageType"] = "in-memory"
	default:
		return nil, fmt.Errorf("unknown STORAGE_TYPE %q", storageType)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(storageField).Info("Use storage")
	return store, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
