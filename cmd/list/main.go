// Package main is the Lambda that lists the claims visible to the caller (GET /claims).
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/kylejryan/claims-portal/internal/bootstrap"
	"github.com/kylejryan/claims-portal/internal/lambdaapi"
)

func main() {
	c, logger := bootstrap.MustBuild(context.Background(), "claims-list")
	defer c.Close()

	app := lambdaapi.New(c.Service, logger)
	lambda.Start(app.List)
}
