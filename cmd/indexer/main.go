// Package main verifies attachments after S3 PUT and removes uploads that do
// not match what was presigned.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/kylejryan/claims-portal/internal/bootstrap"
	"github.com/kylejryan/claims-portal/internal/lambdaapi"
)

func main() {
	c, logger := bootstrap.MustBuild(context.Background(), "claims-indexer")
	defer c.Close()

	if c.Blobs == nil {
		logger.Fatal().Msg("S3_BUCKET is required for the indexer")
	}
	ix := lambdaapi.NewIndexer(c.Blobs, logger)
	lambda.Start(ix.Handle)
}
