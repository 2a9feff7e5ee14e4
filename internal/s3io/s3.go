// Package s3io stores claim attachments in S3: streamed uploads, presigned
// PUT/GET URLs, existence checks and deletes.
package s3io

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kylejryan/claims-portal/internal/models"
)

// Presigner defines the interface for presigning S3 requests.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// API is the subset of *s3.Client the store uses.
type API interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// PresignedUpload describes a direct-to-S3 upload the client performs itself.
type PresignedUpload struct {
	URL       string
	ExpiresIn time.Duration
	Headers   map[string]string
}

// Store is an attachment store backed by one bucket.
type Store struct {
	api      API
	uploader *manager.Uploader
	presign  Presigner
	bucket   string
	ttl      time.Duration
}

// New creates a Store. Uploads are streamed in parts, so a body is never held
// in memory beyond one part.
func New(api API, presign Presigner, bucket string, ttl time.Duration) *Store {
	return &Store{
		api:      api,
		uploader: manager.NewUploader(api),
		presign:  presign,
		bucket:   bucket,
		ttl:      ttl,
	}
}

// Put streams body to key.
func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 body,
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// ObjectInfo describes a stored attachment.
type ObjectInfo struct {
	Size        int64
	ETag        string
	ContentType string
	Meta        map[string]string // lowercased user metadata
}

// Stat fetches the metadata of key. A missing key is models.ErrNotFound.
func (s *Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	ho, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		var nsk *types.NoSuchKey
		if errors.As(err, &nf) || errors.As(err, &nsk) {
			return ObjectInfo{}, fmt.Errorf("attachment %s: %w", key, models.ErrNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("head %s: %w", key, err)
	}

	info := ObjectInfo{Meta: make(map[string]string, len(ho.Metadata))}
	if ho.ContentLength != nil {
		info.Size = *ho.ContentLength
	}
	if ho.ETag != nil {
		info.ETag = strings.Trim(*ho.ETag, `"`)
	}
	if ho.ContentType != nil {
		info.ContentType = strings.ToLower(*ho.ContentType)
	}
	for k, v := range ho.Metadata {
		info.Meta[strings.ToLower(k)] = v
	}
	return info, nil
}

// Exists returns models.ErrNotFound when key is absent.
func (s *Store) Exists(ctx context.Context, key string) error {
	_, err := s.Stat(ctx, key)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// PresignPut generates a presigned URL for uploading key with the headers the
// client must send on PUT.
func (s *Store) PresignPut(ctx context.Context, key, contentType string, meta map[string]string) (PresignedUpload, error) {
	input := &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		ContentType:          aws.String(contentType),
		Metadata:             meta,
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	}

	req, err := s.presign.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = s.ttl })
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("presign put %s: %w", key, err)
	}
	return PresignedUpload{URL: req.URL, ExpiresIn: s.ttl, Headers: UploadHeaders(contentType, meta)}, nil
}

// PresignGet generates a short-lived download URL for key.
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = s.ttl })
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, nil
}

// UploadHeaders builds the headers a client must send with a presigned PUT.
func UploadHeaders(contentType string, meta map[string]string) map[string]string {
	h := map[string]string{
		"Content-Type":                 contentType,
		"x-amz-server-side-encryption": "aws:kms",
	}
	for k, v := range meta {
		h["x-amz-meta-"+k] = v
	}
	return h
}
