package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"sillar-cv-backend/internal/alerts"
	"sillar-cv-backend/internal/analyze"
	"sillar-cv-backend/internal/config"
)

func main() {
	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	cfg := config.Load()
	if err := cfg.ResolveModelID(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
		log.Fatalf("resolve model id: %v", err)
	}

	h := analyze.NewHandler(
		cfg,
		s3.NewFromConfig(awsCfg),
		dynamodb.NewFromConfig(awsCfg),
		bedrockruntime.NewFromConfig(awsCfg),
		alerts.NewPublisher(sns.NewFromConfig(awsCfg), cfg.AlertsTopicArn),
	)

	lambda.Start(h.Handle)
}
