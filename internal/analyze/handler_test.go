package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"sillar-cv-backend/internal/config"
)

type fakeS3Getter struct {
	body []byte
	err  error
}

func (f *fakeS3Getter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(f.body)))}, nil
}

type fakeDynamo struct {
	calls int
	last  *dynamodb.PutItemInput
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.calls++
	f.last = params
	return &dynamodb.PutItemOutput{}, nil
}

type fakeBedrock struct {
	text string
	err  error
}

func (f *fakeBedrock) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := json.Marshal(map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": f.text},
		},
	})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func s3Event(bucket, key string) events.S3Event {
	var ev events.S3Event
	var rec events.S3EventRecord
	rec.S3.Bucket.Name = bucket
	rec.S3.Object.Key = key
	ev.Records = append(ev.Records, rec)
	return ev
}

func newTestHandler(s3c S3Getter, ddb DynamoPutter, br BedrockClient) *Handler {
	h := NewHandler(config.Config{
		CandidatesTable: "candidates",
		ModelID:         "anthropic.claude-3-haiku",
	}, s3c, ddb, br, nil)
	h.extractText = func(data []byte) (string, error) {
		return "John Doe\njohn@example.com\nexperienced analyst", nil
	}
	return h
}

func TestAnalyzeWritesCandidateRecord(t *testing.T) {
	ddb := &fakeDynamo{}
	br := &fakeBedrock{text: `{"name":"Ana Ruiz","recommendations":["Data Analyst"],"email":"ana@x.com","phone":"123","country":"PE"}`}
	h := newTestHandler(&fakeS3Getter{body: []byte("pdf-bytes")}, ddb, br)

	res, err := h.Handle(context.Background(), s3Event("cv-bucket", "ana.pdf"))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("status = %d, want 200 (error %s)", res.StatusCode, res.Error)
	}
	if ddb.calls != 1 {
		t.Fatalf("PutItem called %d times, want 1", ddb.calls)
	}
	if got := aws.ToString(ddb.last.TableName); got != "candidates" {
		t.Errorf("table = %q, want candidates", got)
	}

	var rec CandidateRecord
	if err := attributevalue.UnmarshalMap(ddb.last.Item, &rec); err != nil {
		t.Fatalf("unmarshal stored item: %v", err)
	}
	if rec.DocumentKey != "ana.pdf" {
		t.Errorf("documentKey = %q, want ana.pdf", rec.DocumentKey)
	}
	if rec.Name != "Ana Ruiz" || rec.Email != "ana@x.com" {
		t.Errorf("name/email = %q/%q, want Ana Ruiz/ana@x.com", rec.Name, rec.Email)
	}
	if rec.AnalyzedAt == "" {
		t.Errorf("analyzedAt is empty")
	}

	var extra AdditionalInfo
	if err := json.Unmarshal([]byte(rec.AdditionalInfo), &extra); err != nil {
		t.Fatalf("additional_info parse: %v", err)
	}
	if len(extra.Recommendations) != 1 || extra.Recommendations[0] != "Data Analyst" {
		t.Errorf("recommendations = %v, want [Data Analyst]", extra.Recommendations)
	}
	if extra.Phone != "123" || extra.Country != "PE" {
		t.Errorf("phone/country = %q/%q, want 123/PE", extra.Phone, extra.Country)
	}
}

func TestAnalyzeUnstructuredModelOutput(t *testing.T) {
	ddb := &fakeDynamo{}
	br := &fakeBedrock{text: "I'm sorry, I cannot analyze this document."}
	h := newTestHandler(&fakeS3Getter{body: []byte("pdf-bytes")}, ddb, br)

	res, err := h.Handle(context.Background(), s3Event("cv-bucket", "ana.pdf"))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.StatusCode != 500 {
		t.Fatalf("status = %d, want 500", res.StatusCode)
	}
	if res.Type != "AnalysisServiceError" {
		t.Errorf("error type = %q, want AnalysisServiceError", res.Type)
	}
	if ddb.calls != 0 {
		t.Errorf("PutItem called %d times after analysis failure, want 0", ddb.calls)
	}
}

func TestAnalyzeObjectFetchFailure(t *testing.T) {
	ddb := &fakeDynamo{}
	h := newTestHandler(&fakeS3Getter{err: errors.New("no such key")}, ddb, &fakeBedrock{})

	res, err := h.Handle(context.Background(), s3Event("cv-bucket", "gone.pdf"))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.StatusCode != 500 {
		t.Fatalf("status = %d, want 500", res.StatusCode)
	}
	if res.Type != "ObjectFetchError" {
		t.Errorf("error type = %q, want ObjectFetchError", res.Type)
	}
	if ddb.calls != 0 {
		t.Errorf("PutItem called after fetch failure")
	}
}

func TestAnalyzeExtractionFailure(t *testing.T) {
	ddb := &fakeDynamo{}
	h := newTestHandler(&fakeS3Getter{body: []byte("junk")}, ddb, &fakeBedrock{})
	h.extractText = func(data []byte) (string, error) {
		return "", errors.New("open pdf: bad header")
	}

	res, err := h.Handle(context.Background(), s3Event("cv-bucket", "bad.pdf"))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.Type != "ExtractionError" {
		t.Errorf("error type = %q, want ExtractionError", res.Type)
	}
	if ddb.calls != 0 {
		t.Errorf("PutItem called after extraction failure")
	}
}

func TestAnalyzeEmptyEvent(t *testing.T) {
	h := newTestHandler(&fakeS3Getter{}, &fakeDynamo{}, &fakeBedrock{})
	res, err := h.Handle(context.Background(), events.S3Event{})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Errorf("status = %d, want 200 for empty event", res.StatusCode)
	}
}
