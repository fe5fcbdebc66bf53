package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// claims are kept for 7 days; stream redelivery happens within minutes.
const claimTTL = 7 * 24 * time.Hour

// ClaimNotification records that a change-feed entry is being handled.
// Returns (isDuplicate, error): a duplicate means another delivery of the
// same record already claimed it and the caller should skip dispatch.
// An empty table name disables dedupe entirely; processing is never blocked
// by a missing config.
func ClaimNotification(ctx context.Context, ddb Client, table, documentKey, analyzedAt string) (bool, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return false, nil
	}
	if documentKey == "" || analyzedAt == "" {
		return false, nil
	}

	exp := time.Now().UTC().Add(claimTTL).Unix()

	_, err := ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: fmt.Sprintf("CV#%s#%s", documentKey, analyzedAt)},
			"CreatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			"ExpiresAt": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", exp)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return true, nil
		}
		return false, err
	}

	return false, nil
}
