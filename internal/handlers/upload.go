package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"sillar-cv-backend/internal/config"
	"sillar-cv-backend/internal/pipeline"
)

type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type UploadHandler struct {
	cfg config.Config
	s3  S3Putter
}

func NewUploadHandler(cfg config.Config, client S3Putter) *UploadHandler {
	return &UploadHandler{cfg: cfg, s3: client}
}

// Handle accepts a base64 CV payload from API Gateway and writes it to S3.
// All failures come back as a structured {error, type} body; the handler
// never returns a Go error past this boundary.
func (h *UploadHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if req.RequestContext.HTTP.Method == "OPTIONS" {
		return preflightResp(), nil
	}

	filename, err := h.store(ctx, req)
	if err != nil {
		fmt.Printf("upload: %v\n", err)
		return jsonResp(500, map[string]any{
			"error": err.Error(),
			"type":  string(pipeline.KindOf(err)),
		}), nil
	}

	return jsonResp(200, map[string]any{
		"message":  "File uploaded successfully",
		"filename": filename,
		"bucket":   h.cfg.UploadBucket,
	}), nil
}

func (h *UploadHandler) store(ctx context.Context, req events.APIGatewayV2HTTPRequest) (string, error) {
	if req.Body == "" {
		return "", pipeline.Errorf(pipeline.KindMissingBody, "no body found in the request")
	}

	// The front door always delivers binary bodies base64-encoded.
	body, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return "", pipeline.Wrap(pipeline.KindInvalidEncoding, fmt.Errorf("invalid base64 content: %w", err))
	}

	filename := filenameFromDisposition(headerValue(req.Headers, "Content-Disposition"))
	if filename == "" {
		filename = fmt.Sprintf("upload_%s.pdf", requestID(ctx))
	}

	contentType := headerValue(req.Headers, "Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	// Last write wins on key collision.
	_, err = h.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(h.cfg.UploadBucket),
		Key:         aws.String(filename),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s/%s: %w", h.cfg.UploadBucket, filename, err)
	}

	fmt.Printf("upload: stored %s in %s (%d bytes)\n", filename, h.cfg.UploadBucket, len(body))
	return filename, nil
}

// filenameFromDisposition pulls the filename= token out of a
// Content-Disposition header. Empty when absent.
func filenameFromDisposition(cd string) string {
	_, after, found := strings.Cut(cd, "filename=")
	if !found {
		return ""
	}
	name := after
	if i := strings.Index(name, ";"); i >= 0 {
		name = name[:i]
	}
	return strings.Trim(strings.TrimSpace(name), `"`)
}

// headerValue does a case-insensitive lookup; HTTP API payloads lowercase
// header names but test events often don't.
func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func requestID(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}
	return "unknown"
}

func jsonResp(status int, v any) events.APIGatewayV2HTTPResponse {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type":                "application/json",
			"access-control-allow-origin": "*",
		},
		Body: string(b),
	}
}

func preflightResp() events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: 200,
		Headers: map[string]string{
			"access-control-allow-origin":  "*",
			"access-control-allow-methods": "POST,OPTIONS",
			"access-control-allow-headers": "Content-Type,Content-Disposition",
		},
	}
}
