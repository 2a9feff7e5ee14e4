// Package main is the Lambda that redirects to a short-lived attachment download URL
// (GET /attachments/{ref}).
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/kylejryan/claims-portal/internal/bootstrap"
	"github.com/kylejryan/claims-portal/internal/lambdaapi"
)

func main() {
	c, logger := bootstrap.MustBuild(context.Background(), "claims-attachment")
	defer c.Close()

	app := lambdaapi.New(c.Service, logger)
	lambda.Start(app.Attachment)
}
