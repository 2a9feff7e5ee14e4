package s3io

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/claims-portal/internal/models"
)

type fakeS3 struct {
	objects map[string]string
	types   map[string]string
	meta    map[string]map[string]string
	headErr error
	deleted []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]string{}, types: map[string]string{}, meta: map[string]map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = string(b)
	if in.ContentType != nil {
		f.types[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	size := int64(len(body))
	return &s3.HeadObjectOutput{
		ContentLength: &size,
		ContentType:   aws.String(f.types[*in.Key]),
		ETag:          aws.String(`"etag-1"`),
		Metadata:      f.meta[*in.Key],
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	f.deleted = append(f.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/put/" + *in.Key, Method: "PUT"}, nil
}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://bucket.example/get/" + *in.Key, Method: "GET"}, nil
}

func TestPutExistsDelete(t *testing.T) {
	api := newFakeS3()
	s := New(api, fakePresigner{}, "claims-bucket", 5*time.Minute)
	ctx := context.Background()
	key := BuildKey("u_alice", "scan.pdf")

	require.ErrorIs(t, s.Exists(ctx, key), models.ErrNotFound)

	require.NoError(t, s.Put(ctx, key, "application/pdf", strings.NewReader("%PDF-1.7")))
	assert.Equal(t, "%PDF-1.7", api.objects[key])
	require.NoError(t, s.Exists(ctx, key))

	require.NoError(t, s.Delete(ctx, key))
	assert.Equal(t, []string{key}, api.deleted)
	assert.ErrorIs(t, s.Exists(ctx, key), models.ErrNotFound)
}

func TestStat(t *testing.T) {
	api := newFakeS3()
	s := New(api, fakePresigner{}, "claims-bucket", time.Minute)
	ctx := context.Background()
	key := BuildKey("u_alice", "scan.pdf")

	require.NoError(t, s.Put(ctx, key, "Application/PDF", strings.NewReader("12345")))
	api.meta[key] = map[string]string{"Principal_ID": "u_alice"}

	info, err := s.Stat(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ObjectInfo{
		Size:        5,
		ETag:        "etag-1",
		ContentType: "application/pdf",
		Meta:        map[string]string{"principal_id": "u_alice"},
	}, info)

	_, err = s.Stat(ctx, "attachments/u_alice/missing/x.pdf")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestExistsPropagatesOtherErrors(t *testing.T) {
	api := newFakeS3()
	api.headErr = errors.New("throttled")
	s := New(api, fakePresigner{}, "claims-bucket", time.Minute)

	err := s.Exists(context.Background(), "attachments/u/x/y.pdf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestPresign(t *testing.T) {
	s := New(newFakeS3(), fakePresigner{}, "claims-bucket", 5*time.Minute)
	ctx := context.Background()

	up, err := s.PresignPut(ctx, "attachments/u_alice/01J/scan.pdf", "application/pdf", map[string]string{"principal_id": "u_alice"})
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/put/attachments/u_alice/01J/scan.pdf", up.URL)
	assert.Equal(t, 5*time.Minute, up.ExpiresIn)
	assert.Equal(t, "application/pdf", up.Headers["Content-Type"])
	assert.Equal(t, "u_alice", up.Headers["x-amz-meta-principal_id"])
	assert.Equal(t, "aws:kms", up.Headers["x-amz-server-side-encryption"])

	url, err := s.PresignGet(ctx, "attachments/u_alice/01J/scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/get/attachments/u_alice/01J/scan.pdf", url)
}
