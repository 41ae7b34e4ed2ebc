package storage

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailwarden/interfaces"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/services/storage/aws_client"
)

// ObjectStorageService stores suppression exports in a single bucket.
type ObjectStorageService struct {
	client     aws_client.S3Client
	bucketName string
}

func NewStorageService(client aws_client.S3Client, bucketName string) interfaces.StorageService {
	return &ObjectStorageService{
		client:     client,
		bucketName: bucketName,
	}
}

func (s *ObjectStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key, "bytes", len(data))

	return s.client.Upload(ctx, s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
}

func (s *ObjectStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key)

	return s.client.Download(ctx, s.bucketName, key)
}

func (s *ObjectStorageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("key", key)

	return s.client.Delete(ctx, s.bucketName, key)
}

func (s *ObjectStorageService) List(ctx context.Context, prefix string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ObjectStorageService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.client.ListFiles(ctx, s.bucketName, prefix)
}
