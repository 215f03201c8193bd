package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rifas-api/internal/domain"
)

const batchWriteLimit = 25

// ParticipantRepo stores reservations keyed by (raffle_id, number); the key
// itself is the uniqueness constraint every concurrent writer races against.
type ParticipantRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewParticipantRepo(client *dynamodb.Client, tableName string) *ParticipantRepo {
	return &ParticipantRepo{client: client, tableName: tableName}
}

// Insert writes one reservation. A second writer for the same number gets domain.ErrNumberTaken.
func (r *ParticipantRepo) Insert(ctx context.Context, p *domain.Participant) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal participant: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": fieldNumber},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("number %d: %w", p.Number, domain.ErrNumberTaken)
	}
	return storeErr(ctx, "insert", r.tableName, err)
}

// ListByRaffle returns the raffle's reservations ordered by number, read consistently.
func (r *ParticipantRepo) ListByRaffle(ctx context.Context, raffleID string) ([]domain.Participant, error) {
	var participants []domain.Participant
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		KeyConditionExpression:   aws.String("#pk = :rid"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldRaffleID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: raffleID},
		},
		ConsistentRead: aws.Bool(true),
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, storeErr(ctx, "query", r.tableName, err)
		}
		var page []domain.Participant
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		participants = append(participants, page...)
	}
	return participants, nil
}

// DeleteByRaffle removes every reservation of a raffle in batches of 25.
func (r *ParticipantRepo) DeleteByRaffle(ctx context.Context, raffleID string) error {
	participants, err := r.ListByRaffle(ctx, raffleID)
	if err != nil {
		return err
	}
	keys := make([]map[string]types.AttributeValue, len(participants))
	for i, p := range participants {
		keys[i] = participantKey(raffleID, p.Number)
	}
	return batchDelete(ctx, r.client, r.tableName, keys)
}

func batchDelete(ctx context.Context, client *dynamodb.Client, table string, keys []map[string]types.AttributeValue) error {
	for start := 0; start < len(keys); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(keys))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
		}
		pending := map[string][]types.WriteRequest{table: reqs}
		for attempt := 0; len(pending[table]) > 0; attempt++ {
			if attempt == 3 {
				return storeErr(ctx, "batch_delete", table, fmt.Errorf("%d unprocessed items", len(pending[table])))
			}
			if attempt > 0 {
				time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
			}
			out, err := client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return storeErr(ctx, "batch_delete", table, err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}
