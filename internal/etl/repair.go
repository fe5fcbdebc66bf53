package etl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

type AthenaClient interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

func newAthenaClient(cfg aws.Config) AthenaClient {
	return athena.NewFromConfig(cfg)
}

// RepairPartitions runs MSCK REPAIR TABLE against the candidate-metrics
// table so fresh dt= partitions become visible to queries. Skipped silently
// when the Athena env is not configured.
//
// Env:
// - ATHENA_DATABASE, ATHENA_TABLE, ATHENA_OUTPUT (s3://bucket/prefix/)
// - ATHENA_WORKGROUP (default "primary")
func RepairPartitions(ctx context.Context, ath AthenaClient) error {
	db := strings.TrimSpace(os.Getenv("ATHENA_DATABASE"))
	table := strings.TrimSpace(os.Getenv("ATHENA_TABLE"))
	workgroup := strings.TrimSpace(os.Getenv("ATHENA_WORKGROUP"))
	output := strings.TrimSpace(os.Getenv("ATHENA_OUTPUT"))

	if db == "" || table == "" || output == "" {
		return nil
	}
	if !strings.HasPrefix(output, "s3://") {
		return fmt.Errorf("ATHENA_OUTPUT must start with s3://")
	}
	if workgroup == "" {
		workgroup = "primary"
	}

	q := fmt.Sprintf("MSCK REPAIR TABLE %s;", table)

	startOut, err := ath.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(q),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(db),
		},
		WorkGroup: aws.String(workgroup),
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(output),
		},
	})
	if err != nil {
		return fmt.Errorf("StartQueryExecution: %w", err)
	}

	qid := aws.ToString(startOut.QueryExecutionId)
	fmt.Printf("repair started: qid=%s db=%s table=%s wg=%s\n", qid, db, table, workgroup)

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		st, err := ath.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(qid),
		})
		if err != nil {
			return fmt.Errorf("GetQueryExecution: %w", err)
		}
		state := string(st.QueryExecution.Status.State)
		switch state {
		case "SUCCEEDED":
			fmt.Printf("repair succeeded: qid=%s\n", qid)
			return nil
		case "FAILED", "CANCELLED":
			reason := ""
			if st.QueryExecution.Status.StateChangeReason != nil {
				reason = *st.QueryExecution.Status.StateChangeReason
			}
			return fmt.Errorf("repair %s: %s", state, reason)
		}
		time.Sleep(2 * time.Second)
	}

	return fmt.Errorf("repair timed out waiting for qid=%s", qid)
}
