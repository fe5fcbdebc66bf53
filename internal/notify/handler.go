package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"

	"sillar-cv-backend/internal/alerts"
	"sillar-cv-backend/internal/analyze"
	"sillar-cv-backend/internal/config"
	"sillar-cv-backend/internal/dedupe"
	"sillar-cv-backend/internal/pipeline"
)

type EmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type Result struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Type       string `json:"type,omitempty"`
	Sent       int    `json:"sent"`
	Skipped    int    `json:"skipped"`
}

type Handler struct {
	cfg    config.Config
	ses    EmailSender
	ddb    dedupe.Client // nil-able only via empty DedupeTable
	alerts *alerts.Publisher
}

func NewHandler(cfg config.Config, sender EmailSender, ddb dedupe.Client, al *alerts.Publisher) *Handler {
	return &Handler{cfg: cfg, ses: sender, ddb: ddb, alerts: al}
}

// Handle consumes candidate-table stream entries and emails the recruiter
// about each new record. The trigger is configured with batch size 1, so a
// failure here affects exactly one record; redelivery of the whole batch is
// the infrastructure's call.
func (h *Handler) Handle(ctx context.Context, ev events.DynamoDBEvent) (Result, error) {
	sent := 0
	skipped := 0

	for _, rec := range ev.Records {
		// Only fresh inserts produce mail. The table has no update or
		// delete path today, but the stream contract doesn't promise that.
		if rec.EventName != "INSERT" {
			skipped++
			continue
		}

		view, err := viewFromImage(rec.Change.NewImage)
		if err != nil {
			return h.fail(ctx, sent, skipped, err), nil
		}

		dup, err := dedupe.ClaimNotification(ctx, h.ddb, h.cfg.DedupeTable, view.DocumentKey, analyzedAtFromImage(rec.Change.NewImage))
		if err != nil {
			fmt.Printf("notify: dedupe claim failed, dispatching anyway: %v\n", err)
		}
		if dup {
			fmt.Printf("notify: duplicate delivery for %s, skipping\n", view.DocumentKey)
			skipped++
			continue
		}

		if err := h.dispatch(ctx, view); err != nil {
			return h.fail(ctx, sent, skipped, err), nil
		}
		sent++
	}

	return Result{
		StatusCode: 200,
		Message:    "Notifications processed successfully",
		Sent:       sent,
		Skipped:    skipped,
	}, nil
}

func (h *Handler) fail(ctx context.Context, sent, skipped int, err error) Result {
	fmt.Printf("notify: %v\n", err)
	h.alerts.Failure(ctx, "notify", "", err)
	return Result{
		StatusCode: 500,
		Error:      err.Error(),
		Type:       string(pipeline.KindOf(err)),
		Sent:       sent,
		Skipped:    skipped,
	}
}

func (h *Handler) dispatch(ctx context.Context, view CandidateView) error {
	body, err := renderEmailBody(view, time.Now().UTC())
	if err != nil {
		return pipeline.Wrap(pipeline.KindEmailDispatch, err)
	}

	out, err := h.ses.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(h.cfg.SenderEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{h.cfg.RecipientEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(emailSubject(view))},
			Body: &sestypes.Body{
				Html: &sestypes.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return pipeline.Wrap(pipeline.KindEmailDispatch, fmt.Errorf("ses send: %w", err))
	}

	fmt.Printf("notify: email sent for %s (message id %s)\n", view.DocumentKey, aws.ToString(out.MessageId))
	return nil
}

// viewFromImage unwraps the string-typed stream attributes into a
// CandidateView. Any missing or mistyped attribute makes the whole entry
// malformed.
func viewFromImage(image map[string]events.DynamoDBAttributeValue) (CandidateView, error) {
	var v CandidateView

	docKey, err := stringAttr(image, "cv_file")
	if err != nil {
		return v, err
	}
	name, err := stringAttr(image, "name")
	if err != nil {
		return v, err
	}
	email, err := stringAttr(image, "email")
	if err != nil {
		return v, err
	}
	extraRaw, err := stringAttr(image, "additional_info")
	if err != nil {
		return v, err
	}

	var extra analyze.AdditionalInfo
	if err := json.Unmarshal([]byte(extraRaw), &extra); err != nil {
		return v, pipeline.Wrap(pipeline.KindMalformedChangeFeed, fmt.Errorf("additional_info parse: %w", err))
	}

	return CandidateView{
		DocumentKey:     docKey,
		Name:            name,
		Email:           email,
		Phone:           extra.Phone,
		Country:         extra.Country,
		Recommendations: extra.Recommendations,
	}, nil
}

func analyzedAtFromImage(image map[string]events.DynamoDBAttributeValue) string {
	av, ok := image["analyzed_at"]
	if !ok || av.DataType() != events.DataTypeString {
		return ""
	}
	return av.String()
}

func stringAttr(image map[string]events.DynamoDBAttributeValue, name string) (string, error) {
	av, ok := image[name]
	if !ok {
		return "", pipeline.Errorf(pipeline.KindMalformedChangeFeed, "missing attribute %q in stream image", name)
	}
	if av.DataType() != events.DataTypeString {
		return "", pipeline.Errorf(pipeline.KindMalformedChangeFeed, "attribute %q is not a string", name)
	}
	return av.String(), nil
}
