// Package awsutil provides utilities for loading AWS configuration and clients.
package awsutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Load loads the AWS configuration, pointing every client at endpoint when it is set.
func Load(ctx context.Context, region, endpoint string) (aws.Config, error) {
	cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}
	return cfg, nil
}

// Clients bundles the service clients built from one configuration.
type Clients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	Presign  *s3.PresignClient
}

// NewClients builds the DynamoDB and S3 clients. A custom endpoint switches S3
// to path-style addressing for localstack/dev friendliness.
func NewClients(cfg aws.Config) Clients {
	s3c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != nil {
			o.UsePathStyle = true
		}
	})
	return Clients{
		DynamoDB: dynamodb.NewFromConfig(cfg),
		S3:       s3c,
		Presign:  s3.NewPresignClient(s3c),
	}
}
