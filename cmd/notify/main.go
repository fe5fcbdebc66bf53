package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"sillar-cv-backend/internal/alerts"
	"sillar-cv-backend/internal/config"
	"sillar-cv-backend/internal/notify"
)

func main() {
	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	cfg := config.Load()

	h := notify.NewHandler(
		cfg,
		ses.NewFromConfig(awsCfg),
		dynamodb.NewFromConfig(awsCfg),
		alerts.NewPublisher(sns.NewFromConfig(awsCfg), cfg.AlertsTopicArn),
	)

	lambda.Start(h.Handle)
}
