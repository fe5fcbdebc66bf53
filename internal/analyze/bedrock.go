package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrockruntime "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type BedrockClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// CVInfo is the structured result the model must return for a CV.
type CVInfo struct {
	Name            string   `json:"name"`
	Recommendations []string `json:"recommendations"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Country         string   `json:"country"`
}

const maxRecommendations = 5

func BuildPrompt(cvText string) string {
	return fmt.Sprintf(`You are a CV analysis expert. Extract information from CVs accurately and format it as JSON.

Analyze this CV and extract the following information:
1. The full name of the candidate
2. A list of recommended positions based on their experience and skills, ordered by relevance (maximum %d positions)
3. Their email address
4. Their phone number
5. Their country of residence

CV Text:
%s

Respond ONLY with a JSON object in this exact format:
{
  "name": "full name",
  "recommendations": ["position1", "position2"],
  "email": "email address",
  "phone": "phone number",
  "country": "country name"
}
`, maxRecommendations, cvText)
}

// AnalyzeCV sends the extracted CV text to Claude on Bedrock and parses the
// strict-JSON answer. A response that does not contain a parseable JSON
// object is an error; there is no partial result.
func AnalyzeCV(ctx context.Context, c BedrockClient, modelID, cvText string) (*CVInfo, error) {
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("missing bedrock model id")
	}

	payload := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        700,
		"temperature":       0.0,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": BuildPrompt(cvText)},
				},
			},
		},
	}

	body, _ := json.Marshal(payload)

	out, err := c.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock InvokeModel: %w", err)
	}

	var raw struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(out.Body, &raw); err != nil {
		return nil, fmt.Errorf("bedrock response unmarshal: %w", err)
	}

	var text string
	for _, c := range raw.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	jsonStr := extractFirstJSONObject(strings.TrimSpace(text))
	if jsonStr == "" {
		return nil, fmt.Errorf("model did not return a JSON object")
	}

	var info CVInfo
	if err := json.Unmarshal([]byte(jsonStr), &info); err != nil {
		return nil, fmt.Errorf("cv info JSON parse failed: %w; raw=%s", err, truncate(jsonStr, 800))
	}
	if len(info.Recommendations) > maxRecommendations {
		info.Recommendations = info.Recommendations[:maxRecommendations]
	}
	return &info, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// extractFirstJSONObject finds the first {...} block. MVP-safe; not a full JSON parser.
func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
