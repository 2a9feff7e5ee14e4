// Package main is the Lambda that applies an insurer's decision to a claim (PUT /claims/{id}).
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/kylejryan/claims-portal/internal/bootstrap"
	"github.com/kylejryan/claims-portal/internal/lambdaapi"
)

func main() {
	c, logger := bootstrap.MustBuild(context.Background(), "claims-update")
	defer c.Close()

	app := lambdaapi.New(c.Service, logger)
	lambda.Start(app.Update)
}
