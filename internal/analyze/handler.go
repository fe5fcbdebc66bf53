package analyze

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"sillar-cv-backend/internal/alerts"
	"sillar-cv-backend/internal/config"
	"sillar-cv-backend/internal/pipeline"
)

type S3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type DynamoPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Result is what the invocation reports back to the trigger infrastructure.
// Failures are carried in the body, never as a returned Go error, so the
// handler boundary stays a hard one.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Type       string `json:"type,omitempty"`
}

type Handler struct {
	cfg     config.Config
	s3      S3Getter
	ddb     DynamoPutter
	bedrock BedrockClient
	alerts  *alerts.Publisher

	// extractText is swappable in tests; production uses ExtractText.
	extractText func(data []byte) (string, error)
}

func NewHandler(cfg config.Config, s3c S3Getter, ddb DynamoPutter, bedrock BedrockClient, al *alerts.Publisher) *Handler {
	return &Handler{
		cfg:         cfg,
		s3:          s3c,
		ddb:         ddb,
		bedrock:     bedrock,
		alerts:      al,
		extractText: ExtractText,
	}
}

// Handle runs once per .pdf object-created event. Suffix filtering happens
// in the trigger configuration and is not re-validated here. Either a full
// CandidateRecord lands in the table or nothing does.
func (h *Handler) Handle(ctx context.Context, ev events.S3Event) (Result, error) {
	if len(ev.Records) == 0 {
		return Result{StatusCode: 200, Message: "no records"}, nil
	}

	bucket := ev.Records[0].S3.Bucket.Name
	key := ev.Records[0].S3.Object.Key

	rec, err := h.process(ctx, bucket, key)
	if err != nil {
		fmt.Printf("analyze: bucket=%s key=%s failed: %v\n", bucket, key, err)
		h.alerts.Failure(ctx, "analyze", key, err)
		return Result{
			StatusCode: 500,
			Error:      err.Error(),
			Type:       string(pipeline.KindOf(err)),
		}, nil
	}

	fmt.Printf("analyze: stored record for %s (analyzed_at=%s)\n", rec.DocumentKey, rec.AnalyzedAt)
	return Result{StatusCode: 200, Message: "CV analyzed successfully"}, nil
}

func (h *Handler) process(ctx context.Context, bucket, key string) (CandidateRecord, error) {
	var none CandidateRecord

	out, err := h.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return none, pipeline.Wrap(pipeline.KindObjectFetch, fmt.Errorf("s3 get %s/%s: %w", bucket, key, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return none, pipeline.Wrap(pipeline.KindObjectFetch, fmt.Errorf("read %s/%s: %w", bucket, key, err))
	}

	text, err := h.extractText(data)
	if err != nil {
		return none, pipeline.Wrap(pipeline.KindExtraction, err)
	}
	if text == "" {
		// Scanned or image-only PDF: the model still gets a chance.
		fmt.Printf("analyze: no extractable text in %s, sending empty text\n", key)
	}

	info, err := AnalyzeCV(ctx, h.bedrock, h.cfg.ModelID, text)
	if err != nil {
		return none, pipeline.Wrap(pipeline.KindAnalysisService, err)
	}

	rec, err := NewCandidateRecord(key, info)
	if err != nil {
		return none, pipeline.Wrap(pipeline.KindAnalysisService, err)
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return none, pipeline.Wrap(pipeline.KindStoreWrite, fmt.Errorf("marshal record: %w", err))
	}

	if _, err := h.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(h.cfg.CandidatesTable),
		Item:      item,
	}); err != nil {
		return none, pipeline.Wrap(pipeline.KindStoreWrite, fmt.Errorf("ddb put %s: %w", h.cfg.CandidatesTable, err))
	}

	return rec, nil
}
