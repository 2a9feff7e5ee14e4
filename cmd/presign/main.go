// Package main is the Lambda that issues a presigned attachment upload URL (POST /attachments/presign).
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/kylejryan/claims-portal/internal/bootstrap"
	"github.com/kylejryan/claims-portal/internal/lambdaapi"
)

func main() {
	c, logger := bootstrap.MustBuild(context.Background(), "claims-presign")
	defer c.Close()

	app := lambdaapi.New(c.Service, logger)
	lambda.Start(app.Presign)
}
