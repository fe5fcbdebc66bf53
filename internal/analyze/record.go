package analyze

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// CandidateRecord is the single persisted artifact of the pipeline.
// cv_file is the partition key, analyzed_at the sort key. Records are
// immutable once written; there is no update or delete path.
type CandidateRecord struct {
	DocumentKey    string `dynamodbav:"cv_file" json:"cv_file"`
	AnalyzedAt     string `dynamodbav:"analyzed_at" json:"analyzed_at"`
	Name           string `dynamodbav:"name" json:"name"`
	Email          string `dynamodbav:"email" json:"email"`
	AdditionalInfo string `dynamodbav:"additional_info" json:"additional_info"`
}

// AdditionalInfo is the opaque blob stored as a JSON string alongside the
// indexed name/email fields.
type AdditionalInfo struct {
	Phone           string   `json:"phone"`
	Country         string   `json:"country"`
	Recommendations []string `json:"recommendations"`
}

// NewCandidateRecord composes a record for one analysis pass.
func NewCandidateRecord(documentKey string, info *CVInfo) (CandidateRecord, error) {
	extra, err := json.Marshal(AdditionalInfo{
		Phone:           info.Phone,
		Country:         info.Country,
		Recommendations: info.Recommendations,
	})
	if err != nil {
		return CandidateRecord{}, fmt.Errorf("marshal additional info: %w", err)
	}

	return CandidateRecord{
		DocumentKey:    documentKey,
		AnalyzedAt:     sortKey(time.Now().UTC()),
		Name:           info.Name,
		Email:          info.Email,
		AdditionalInfo: string(extra),
	}, nil
}

// sortKey builds the analyzed_at sort key: a UTC timestamp plus a random
// tiebreaker, so repeated analyses of the same CV never collide even when
// two invocations land on the same clock tick.
func sortKey(now time.Time) string {
	return now.Format(time.RFC3339Nano) + "#" + randHex(4)
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
