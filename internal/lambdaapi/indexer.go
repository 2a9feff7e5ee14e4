package lambdaapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/kylejryan/claims-portal/internal/models"
	"github.com/kylejryan/claims-portal/internal/s3io"
	"github.com/kylejryan/claims-portal/internal/validate"
)

// ObjectStore is the part of the attachment store the indexer needs.
type ObjectStore interface {
	Stat(ctx context.Context, key string) (s3io.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Indexer checks attachments uploaded through presigned URLs, which never pass
// through the claims service. Objects that do not belong where they landed are
// removed.
type Indexer struct {
	blobs  ObjectStore
	logger zerolog.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(blobs ObjectStore, logger zerolog.Logger) *Indexer {
	return &Indexer{blobs: blobs, logger: logger}
}

// errRejected marks an object that failed verification.
var errRejected = errors.New("attachment rejected")

// Handle processes an S3 ObjectCreated event. A failing record is logged and
// does not stop the others.
func (ix *Indexer) Handle(ctx context.Context, ev events.S3Event) error {
	for _, rec := range ev.Records {
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			key = rec.S3.Object.Key
		}
		err = ix.verify(ctx, key)
		switch {
		case err == nil:
		case errors.Is(err, errRejected):
			ix.logger.Warn().Err(err).Str("key", key).Msg("removing attachment")
			if derr := ix.blobs.Delete(ctx, key); derr != nil {
				ix.logger.Error().Err(derr).Str("key", key).Msg("remove attachment failed")
			}
		case errors.Is(err, models.ErrNotFound):
			ix.logger.Debug().Str("key", key).Msg("attachment already gone")
		default:
			ix.logger.Error().Err(err).Str("key", key).Msg("verify attachment failed")
		}
	}
	return nil
}

// verify checks key's layout, content type and uploader.
func (ix *Indexer) verify(ctx context.Context, key string) error {
	owner, ok := s3io.ParseKey(key)
	if !ok {
		return fmt.Errorf("%w: unexpected key shape", errRejected)
	}
	info, err := ix.blobs.Stat(ctx, key)
	if err != nil {
		return err
	}

	filename := path.Base(key)
	if err := validate.AttachmentFilename(filename); err != nil {
		return fmt.Errorf("%w: %v", errRejected, err)
	}
	if info.ContentType == "" {
		return fmt.Errorf("%w: missing content type", errRejected)
	}
	if err := validate.AttachmentContentType(filename, info.ContentType); err != nil {
		return fmt.Errorf("%w: %v", errRejected, err)
	}
	if uploader := strings.TrimSpace(info.Meta["principal_id"]); uploader != "" && uploader != owner {
		return fmt.Errorf("%w: uploaded by %s under %s", errRejected, uploader, owner)
	}

	ix.logger.Info().
		Str("key", key).
		Str("owner", owner).
		Int64("size", info.Size).
		Str("etag", info.ETag).
		Msg("attachment verified")
	return nil
}
