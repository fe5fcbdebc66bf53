package etl

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"sillar-cv-backend/internal/analyze"
)

// CandidateMetricsRow matches the analytics table columns.
type CandidateMetricsRow struct {
	MetricDate string `parquet:"name=metric_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"` // YYYY-MM-DD
	Country    string `parquet:"name=country, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Candidates int64  `parquet:"name=candidates, type=INT64"`
	TopRole    string `parquet:"name=top_role, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

type Scanner interface {
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type MetricsExporter struct {
	ddb    Scanner
	s3     ObjectPutter
	athena AthenaClient
}

func NewMetricsExporter(cfg aws.Config) *MetricsExporter {
	return &MetricsExporter{
		ddb:    dynamodb.NewFromConfig(cfg),
		s3:     s3.NewFromConfig(cfg),
		athena: newAthenaClient(cfg),
	}
}

// Handle is triggered by an EventBridge schedule.
//
// For each day in the backfill window it aggregates candidate records into
// per-country rows and writes one Parquet file under:
//
//	candidate_metrics/dt=YYYY-MM-DD/part-<rand>.parquet
//
// Env:
// - CANDIDATES_TABLE (required)
// - ANALYTICS_BUCKET (required)
// - CANDIDATE_METRICS_PREFIX (default "candidate_metrics/")
// - ETL_DAYS_BACK (default "1") // number of days including today
func (h *MetricsExporter) Handle(ctx context.Context, _ events.CloudWatchEvent) (map[string]any, error) {
	table := strings.TrimSpace(os.Getenv("CANDIDATES_TABLE"))
	bucket := strings.TrimSpace(os.Getenv("ANALYTICS_BUCKET"))
	prefix := strings.TrimSpace(os.Getenv("CANDIDATE_METRICS_PREFIX"))
	if prefix == "" {
		prefix = "candidate_metrics/"
	}

	daysBack := 1
	if v := strings.TrimSpace(os.Getenv("ETL_DAYS_BACK")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 90 {
			daysBack = n
		}
	}

	if table == "" {
		return nil, fmt.Errorf("missing env CANDIDATES_TABLE")
	}
	if bucket == "" {
		return nil, fmt.Errorf("missing env ANALYTICS_BUCKET")
	}

	now := time.Now().UTC()
	written := 0
	candidates := 0

	for i := 0; i < daysBack; i++ {
		dtStr := now.AddDate(0, 0, -i).Format("2006-01-02")

		items, err := h.candidatesForDay(ctx, table, dtStr)
		if err != nil {
			return nil, fmt.Errorf("scan candidates dt=%s: %w", dtStr, err)
		}
		if len(items) == 0 {
			continue
		}

		rows := aggregateCandidates(dtStr, items)

		key := fmt.Sprintf("%sdt=%s/part-%s.parquet",
			ensureTrailingSlash(prefix), dtStr, randHex(8))

		if err := h.writeParquetToS3(ctx, bucket, key, rows); err != nil {
			return nil, fmt.Errorf("write parquet dt=%s: %w", dtStr, err)
		}

		written++
		candidates += len(items)
	}

	// Best effort: newly written dt= partitions should be queryable.
	if written > 0 {
		if err := RepairPartitions(ctx, h.athena); err != nil {
			fmt.Printf("export-metrics: partition repair failed: %v\n", err)
		}
	}

	return map[string]any{
		"ok":         true,
		"days_back":  daysBack,
		"written":    written,
		"candidates": candidates,
		"bucket":     bucket,
		"prefix":     prefix,
	}, nil
}

// candidateItem is the subset of a CandidateRecord the export reads.
type candidateItem struct {
	Country         string
	Recommendations []string
}

// candidatesForDay scans the candidates table for records whose analyzed_at
// sort key begins with the given day.
func (h *MetricsExporter) candidatesForDay(ctx context.Context, table, dayYYYYMMDD string) ([]candidateItem, error) {
	items := make([]candidateItem, 0, 32)

	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := h.ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(table),
			ExclusiveStartKey: startKey,

			FilterExpression: aws.String("begins_with(#at, :day)"),
			ExpressionAttributeNames: map[string]string{
				"#at":    "analyzed_at",
				"#extra": "additional_info",
			},
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":day": &ddbtypes.AttributeValueMemberS{Value: dayYYYYMMDD},
			},
			ProjectionExpression: aws.String("#at, #extra"),
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan %s: %w", table, err)
		}

		for _, it := range out.Items {
			av, ok := it["additional_info"]
			if !ok {
				continue
			}
			sv, ok := av.(*ddbtypes.AttributeValueMemberS)
			if !ok {
				continue
			}
			var extra analyze.AdditionalInfo
			if err := json.Unmarshal([]byte(sv.Value), &extra); err != nil {
				continue
			}
			items = append(items, candidateItem{
				Country:         strings.TrimSpace(extra.Country),
				Recommendations: extra.Recommendations,
			})
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return items, nil
}

// aggregateCandidates folds one day of candidate items into per-country
// rows. TopRole is the most frequent first-ranked recommendation.
func aggregateCandidates(dtStr string, items []candidateItem) []CandidateMetricsRow {
	type agg struct {
		count int64
		roles map[string]int
	}

	byCountry := map[string]*agg{}
	for _, it := range items {
		country := it.Country
		if country == "" {
			country = "unknown"
		}
		a := byCountry[country]
		if a == nil {
			a = &agg{roles: map[string]int{}}
			byCountry[country] = a
		}
		a.count++
		if len(it.Recommendations) > 0 {
			a.roles[it.Recommendations[0]]++
		}
	}

	countries := make([]string, 0, len(byCountry))
	for c := range byCountry {
		countries = append(countries, c)
	}
	sort.Strings(countries)

	rows := make([]CandidateMetricsRow, 0, len(countries))
	for _, c := range countries {
		a := byCountry[c]
		rows = append(rows, CandidateMetricsRow{
			MetricDate: dtStr,
			Country:    c,
			Candidates: a.count,
			TopRole:    topRole(a.roles),
		})
	}
	return rows
}

func topRole(counts map[string]int) string {
	best := ""
	bestN := 0
	for role, n := range counts {
		if n > bestN || (n == bestN && role < best) {
			best = role
			bestN = n
		}
	}
	return best
}

func (h *MetricsExporter) writeParquetToS3(ctx context.Context, bucket, key string, rows []CandidateMetricsRow) error {
	tmpDir := os.TempDir()
	localPath := filepath.Join(tmpDir, "candidate_metrics_"+randHex(8)+".parquet")

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(CandidateMetricsRow), 1)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = 0 // no snappy

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("parquet write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read parquet tmp: %w", err)
	}
	defer func() { _ = os.Remove(localPath) }()

	_, err = h.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("s3 putobject failed: %w", err)
	}
	return nil
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
