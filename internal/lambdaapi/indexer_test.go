package lambdaapi

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/claims-portal/internal/models"
	"github.com/kylejryan/claims-portal/internal/s3io"
)

type statStore struct {
	objects map[string]s3io.ObjectInfo
	statErr error
	deleted []string
}

func (s *statStore) Stat(_ context.Context, key string) (s3io.ObjectInfo, error) {
	if s.statErr != nil {
		return s3io.ObjectInfo{}, s.statErr
	}
	info, ok := s.objects[key]
	if !ok {
		return s3io.ObjectInfo{}, models.ErrNotFound
	}
	return info, nil
}

func (s *statStore) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}

func s3Event(keys ...string) events.S3Event {
	var ev events.S3Event
	for _, k := range keys {
		var rec events.S3EventRecord
		rec.S3.Bucket.Name = "claims-bucket"
		rec.S3.Object.Key = url.QueryEscape(k)
		ev.Records = append(ev.Records, rec)
	}
	return ev
}

func TestIndexer(t *testing.T) {
	good := s3io.BuildKey("u_alice", "scan.pdf")
	wrongType := s3io.BuildKey("u_alice", "photo.png")
	noType := s3io.BuildKey("u_alice", "notes.txt")
	foreignUploader := s3io.BuildKey("u_alice", "x.pdf")
	badExt := s3io.BuildKey("u_alice", "run.exe")
	stray := "uploads/1700000000-scan.pdf"
	gone := s3io.BuildKey("u_alice", "gone.pdf")

	store := &statStore{objects: map[string]s3io.ObjectInfo{
		good:            {Size: 10, ContentType: "application/pdf", Meta: map[string]string{"principal_id": "u_alice"}},
		wrongType:       {Size: 10, ContentType: "text/html"},
		noType:          {Size: 10},
		foreignUploader: {Size: 10, ContentType: "application/pdf", Meta: map[string]string{"principal_id": "u_bob"}},
		badExt:          {Size: 10, ContentType: ""},
		stray:           {Size: 10, ContentType: "application/pdf"},
	}}
	ix := NewIndexer(store, zerolog.Nop())

	err := ix.Handle(context.Background(), s3Event(good, wrongType, noType, foreignUploader, badExt, stray, gone))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{wrongType, noType, foreignUploader, badExt, stray}, store.deleted)
	assert.Contains(t, store.objects, good)
}

func TestIndexerKeepsObjectsOnLookupFailure(t *testing.T) {
	key := s3io.BuildKey("u_alice", "scan.pdf")
	store := &statStore{objects: map[string]s3io.ObjectInfo{}, statErr: errors.New("throttled")}
	ix := NewIndexer(store, zerolog.Nop())

	require.NoError(t, ix.Handle(context.Background(), s3Event(key)))
	assert.Empty(t, store.deleted)
}
