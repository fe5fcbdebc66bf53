package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/ses"

	"sillar-cv-backend/internal/config"
)

type fakeSES struct {
	calls  int
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.calls++
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

// fakeClaimStore mimics the dedupe table: first claim for a key succeeds,
// repeats fail the condition.
type fakeClaimStore struct {
	seen map[string]bool
}

func (f *fakeClaimStore) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	pk := params.Item["PK"].(*ddbtypes.AttributeValueMemberS).Value
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[pk] {
		return nil, &ddbtypes.ConditionalCheckFailedException{}
	}
	f.seen[pk] = true
	return &dynamodb.PutItemOutput{}, nil
}

func testConfig() config.Config {
	return config.Config{
		SenderEmail:    "noreply@sillar.dev",
		RecipientEmail: "recruiting@sillar.dev",
	}
}

func insertRecord(docKey, name, email, extra string) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventName: "INSERT",
		Change: events.DynamoDBStreamRecord{
			NewImage: map[string]events.DynamoDBAttributeValue{
				"cv_file":         events.NewStringAttribute(docKey),
				"analyzed_at":     events.NewStringAttribute("2026-08-30T12:00:00Z#abcd"),
				"name":            events.NewStringAttribute(name),
				"email":           events.NewStringAttribute(email),
				"additional_info": events.NewStringAttribute(extra),
			},
		},
	}
}

const anaExtra = `{"phone":"123","country":"PE","recommendations":["Data Analyst","BI Engineer"]}`

func TestNotifyIgnoresNonInsert(t *testing.T) {
	sender := &fakeSES{}
	h := NewHandler(testConfig(), sender, nil, nil)

	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		{EventName: "MODIFY"},
		{EventName: "REMOVE"},
	}}

	res, err := h.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if sender.calls != 0 {
		t.Errorf("SendEmail called %d times for non-INSERT records, want 0", sender.calls)
	}
	if res.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", res.Skipped)
	}
}

func TestNotifySendsOneEmailPerInsert(t *testing.T) {
	sender := &fakeSES{}
	h := NewHandler(testConfig(), sender, nil, nil)

	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		insertRecord("ana.pdf", "Ana Ruiz", "ana@x.com", anaExtra),
	}}

	res, err := h.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.StatusCode != 200 || res.Sent != 1 {
		t.Fatalf("result = %+v, want one send", res)
	}
	if sender.calls != 1 {
		t.Fatalf("SendEmail called %d times, want 1", sender.calls)
	}

	in := sender.inputs[0]
	if got := aws.ToString(in.Source); got != "noreply@sillar.dev" {
		t.Errorf("sender = %q", got)
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "recruiting@sillar.dev" {
		t.Errorf("recipients = %v", in.Destination.ToAddresses)
	}
	subject := aws.ToString(in.Message.Subject.Data)
	if !strings.Contains(subject, "Ana Ruiz") {
		t.Errorf("subject %q does not contain candidate name", subject)
	}
	body := aws.ToString(in.Message.Body.Html.Data)
	for _, want := range []string{"ana@x.com", "123", "PE", "ana.pdf", "Data Analyst", "BI Engineer"} {
		if !strings.Contains(body, want) {
			t.Errorf("email body missing %q", want)
		}
	}
}

// Redelivery without a dedupe table produces duplicate emails. This pins the
// current at-least-once behavior; flip the expectation if dedupe becomes
// mandatory.
func TestNotifyDuplicateDeliveryWithoutDedupe(t *testing.T) {
	sender := &fakeSES{}
	h := NewHandler(testConfig(), sender, nil, nil)

	rec := insertRecord("ana.pdf", "Ana Ruiz", "ana@x.com", anaExtra)
	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{rec}}

	for i := 0; i < 2; i++ {
		if _, err := h.Handle(context.Background(), ev); err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
	}
	if sender.calls != 2 {
		t.Errorf("SendEmail called %d times on duplicate delivery, want 2", sender.calls)
	}
}

func TestNotifyDuplicateDeliveryWithDedupe(t *testing.T) {
	sender := &fakeSES{}
	cfg := testConfig()
	cfg.DedupeTable = "notify-dedupe"
	h := NewHandler(cfg, sender, &fakeClaimStore{}, nil)

	rec := insertRecord("ana.pdf", "Ana Ruiz", "ana@x.com", anaExtra)
	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{rec}}

	for i := 0; i < 2; i++ {
		if _, err := h.Handle(context.Background(), ev); err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
	}
	if sender.calls != 1 {
		t.Errorf("SendEmail called %d times with dedupe on, want 1", sender.calls)
	}
}

func TestNotifyMalformedImage(t *testing.T) {
	sender := &fakeSES{}
	h := NewHandler(testConfig(), sender, nil, nil)

	rec := events.DynamoDBEventRecord{
		EventName: "INSERT",
		Change: events.DynamoDBStreamRecord{
			NewImage: map[string]events.DynamoDBAttributeValue{
				"cv_file": events.NewStringAttribute("ana.pdf"),
				// name, email, additional_info missing
			},
		},
	}

	res, err := h.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{rec}})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.StatusCode != 500 {
		t.Fatalf("status = %d, want 500", res.StatusCode)
	}
	if res.Type != "MalformedChangeFeedEntryError" {
		t.Errorf("error type = %q, want MalformedChangeFeedEntryError", res.Type)
	}
	if sender.calls != 0 {
		t.Errorf("SendEmail called for malformed entry")
	}
}

func TestNotifyEmailDispatchFailure(t *testing.T) {
	sender := &fakeSES{err: errors.New("ses unavailable")}
	h := NewHandler(testConfig(), sender, nil, nil)

	ev := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		insertRecord("ana.pdf", "Ana Ruiz", "ana@x.com", anaExtra),
	}}

	res, err := h.Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if res.Type != "EmailDispatchError" {
		t.Errorf("error type = %q, want EmailDispatchError", res.Type)
	}
}
