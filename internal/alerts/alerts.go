package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"sillar-cv-backend/internal/pipeline"
)

type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends pipeline failure alerts to an ops SNS topic. The async
// stages have no user-facing failure channel, so this is the only place a
// human hears about a broken analysis or notification.
type Publisher struct {
	client   SNSPublisher
	topicArn string
}

func NewPublisher(client SNSPublisher, topicArn string) *Publisher {
	return &Publisher{client: client, topicArn: strings.TrimSpace(topicArn)}
}

// Failure publishes a best-effort alert for a failed stage invocation.
// No-op when no topic is configured. Publish errors are logged, never
// propagated, so alerting cannot fail the pipeline.
func (p *Publisher) Failure(ctx context.Context, stage, documentKey string, err error) {
	if p == nil || p.client == nil || p.topicArn == "" {
		return
	}

	subject := fmt.Sprintf("sillar-cv: %s stage failed", stage)
	lines := []string{
		"Sillar CV Pipeline Failure",
		"",
		fmt.Sprintf("Stage: %s", stage),
		fmt.Sprintf("Kind: %s", pipeline.KindOf(err)),
		fmt.Sprintf("Error: %v", err),
	}
	if documentKey != "" {
		lines = append(lines, fmt.Sprintf("Document: %s", documentKey))
	}
	lines = append(lines, "", fmt.Sprintf("At: %s", time.Now().UTC().Format(time.RFC3339)))

	if _, perr := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(strings.Join(lines, "\n")),
	}); perr != nil {
		fmt.Printf("alerts: publish failed: %v\n", perr)
	}
}
