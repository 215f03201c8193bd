package dynamo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rifas-api/internal/domain"
)

// RaffleRepo provides typed DynamoDB operations for the raffles table.
type RaffleRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewRaffleRepo(client *dynamodb.Client, tableName string) *RaffleRepo {
	return &RaffleRepo{client: client, tableName: tableName}
}

// Put creates a raffle; it never overwrites an existing id.
func (r *RaffleRepo) Put(ctx context.Context, raffle *domain.Raffle) error {
	item, err := attributevalue.MarshalMap(raffle)
	if err != nil {
		return fmt.Errorf("marshal raffle: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldRaffleID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("raffle %s exists: %w", raffle.RaffleID, domain.ErrConflict)
	}
	return storeErr(ctx, "put", r.tableName, err)
}

func (r *RaffleRepo) Get(ctx context.Context, raffleID string) (*domain.Raffle, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldRaffleID, raffleID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr(ctx, "get", r.tableName, err)
	}
	if out.Item == nil {
		return nil, notFound("raffle")
	}
	var raffle domain.Raffle
	if err := attributevalue.UnmarshalMap(out.Item, &raffle); err != nil {
		return nil, err
	}
	return &raffle, nil
}

// List returns every raffle, newest first.
func (r *RaffleRepo) List(ctx context.Context) ([]domain.Raffle, error) {
	var raffles []domain.Raffle
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{TableName: aws.String(r.tableName)})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, storeErr(ctx, "scan", r.tableName, err)
		}
		var page []domain.Raffle
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		raffles = append(raffles, page...)
	}
	sort.SliceStable(raffles, func(i, j int) bool {
		return raffles[i].CreatedAt.After(raffles[j].CreatedAt)
	})
	return raffles, nil
}

// Update applies patch only while the raffle's status is one of allowed
// (any status when allowed is empty) and returns the updated raffle.
func (r *RaffleRepo) Update(ctx context.Context, raffleID string, patch domain.RafflePatch, allowed ...domain.RaffleStatus) (*domain.Raffle, error) {
	fields := patchFields(patch)
	fields[fieldUpdatedAt] = time.Now().UTC()
	ue, err := buildUpdateExpr(fields)
	if err != nil {
		return nil, err
	}
	ue.addName("#pk", fieldRaffleID)
	cond := "attribute_exists(#pk)"
	if len(allowed) > 0 {
		ue.addName("#st", fieldStatus)
		cond += " AND #st IN ("
		for i, s := range allowed {
			ph := fmt.Sprintf(":st%d", i)
			if err := ue.addValue(ph, s); err != nil {
				return nil, err
			}
			if i > 0 {
				cond += ", "
			}
			cond += ph
		}
		cond += ")"
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldRaffleID, raffleID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, r.conditionFailure(ctx, raffleID)
	}
	if err != nil {
		return nil, storeErr(ctx, "update", r.tableName, err)
	}
	var raffle domain.Raffle
	if err := attributevalue.UnmarshalMap(out.Attributes, &raffle); err != nil {
		return nil, err
	}
	return &raffle, nil
}

// conditionFailure tells a missing raffle apart from a disallowed transition.
func (r *RaffleRepo) conditionFailure(ctx context.Context, raffleID string) error {
	current, err := r.Get(ctx, raffleID)
	if err != nil {
		return err
	}
	if current.Status == domain.RaffleFinished {
		return domain.ErrAlreadyFinished
	}
	return fmt.Errorf("raffle is %s: %w", current.Status, domain.ErrInvalidTransition)
}

func (r *RaffleRepo) Delete(ctx context.Context, raffleID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldRaffleID, raffleID),
	})
	return storeErr(ctx, "delete", r.tableName, err)
}

func patchFields(p domain.RafflePatch) map[string]interface{} {
	fields := map[string]interface{}{}
	if p.Status != nil {
		fields[fieldStatus] = *p.Status
	}
	if p.Archived != nil {
		fields[fieldArchived] = *p.Archived
	}
	if p.Winner != nil {
		fields[fieldWinner] = *p.Winner
	}
	if p.PausedAt != nil {
		fields[fieldPausedAt] = *p.PausedAt
	}
	if p.ArchivedAt != nil {
		fields[fieldArchivedAt] = *p.ArchivedAt
	}
	if p.FinishedAt != nil {
		fields[fieldFinishedAt] = *p.FinishedAt
	}
	return fields
}
