package task

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PhotoStorage uploads task photos and returns a publicly fetchable URL.
type PhotoStorage interface {
	Put(ctx context.Context, objectKey string, p Photo) (string, error)
}

type minioStorage struct {
	client     *minio.Client
	bucketName string
	publicBase string
}

// NewMinioStorage connects to the blob store and makes sure the bucket
// exists. publicBase is the externally reachable base URL; when empty the
// endpoint itself is used.
func NewMinioStorage(endpoint, accessKey, secretKey string, useSSL bool, bucket, publicBase string) (PhotoStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, errBucket := client.BucketExists(ctx, bucket)
	if errBucket != nil {
		return nil, errBucket
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	if publicBase == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicBase = scheme + "://" + endpoint
	}

	return &minioStorage{
		client:     client,
		bucketName: bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

func (s *minioStorage) Put(ctx context.Context, objectKey string, p Photo) (string, error) {
	reader := bytes.NewReader(p.Data)
	_, err := s.client.PutObject(ctx, s.bucketName, objectKey, reader, int64(len(p.Data)), minio.PutObjectOptions{
		ContentType:  p.ContentType,
		UserMetadata: map[string]string{"filename": p.Filename},
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", s.publicBase, s.bucketName, objectKey), nil
}

func photoBeforeKey(taskID string, p Photo) string {
	return fmt.Sprintf("tareas/%s/antes%s", taskID, strings.ToLower(filepath.Ext(p.Filename)))
}

func photoAfterKey(taskID string, p Photo) string {
	return fmt.Sprintf("tareas/%s/despues%s", taskID, strings.ToLower(filepath.Ext(p.Filename)))
}
