package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Config enumerates every key the pipeline reads. Handlers receive it at
// construction time instead of pulling env vars mid-request.
type Config struct {
	UploadBucket    string // S3 bucket CVs are uploaded to
	CandidatesTable string // DynamoDB table for analysis results
	DedupeTable     string // optional; empty disables notification dedupe
	ModelID         string // Bedrock model id for CV analysis
	ModelIDParam    string // optional SSM parameter holding ModelID
	SenderEmail     string
	RecipientEmail  string
	AlertsTopicArn  string // optional SNS topic for pipeline failure alerts
}

func Load() Config {
	return Config{
		UploadBucket:    getenv("UPLOAD_BUCKET"),
		CandidatesTable: getenv("CANDIDATES_TABLE"),
		DedupeTable:     getenv("NOTIFY_DEDUPE_TABLE"),
		ModelID:         getenv("BEDROCK_MODEL_ID"),
		ModelIDParam:    getenv("BEDROCK_MODEL_ID_PARAM"),
		SenderEmail:     getenv("SENDER_EMAIL"),
		RecipientEmail:  getenv("RECIPIENT_EMAIL"),
		AlertsTopicArn:  getenv("ALERTS_TOPIC_ARN"),
	}
}

type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveModelID fills ModelID from Parameter Store when it is not set
// directly. Called once at cold start.
func (c *Config) ResolveModelID(ctx context.Context, client ParameterGetter) error {
	if c.ModelID != "" || c.ModelIDParam == "" {
		return nil
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(c.ModelIDParam),
	})
	if err != nil {
		return fmt.Errorf("ssm get %s: %w", c.ModelIDParam, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return fmt.Errorf("ssm parameter %s has no value", c.ModelIDParam)
	}
	c.ModelID = strings.TrimSpace(*out.Parameter.Value)
	return nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
