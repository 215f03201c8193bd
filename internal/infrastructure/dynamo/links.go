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

// LinkRepo stores single-use custom links. Redemption is a two-step
// conditional write: Claim takes a short lease, Complete flips used.
type LinkRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewLinkRepo(client *dynamodb.Client, tableName string) *LinkRepo {
	return &LinkRepo{client: client, tableName: tableName}
}

func (r *LinkRepo) Put(ctx context.Context, link *domain.CustomLink) error {
	item, err := attributevalue.MarshalMap(link)
	if err != nil {
		return fmt.Errorf("marshal link: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldLinkID},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("link %s exists: %w", link.LinkID, domain.ErrConflict)
	}
	return storeErr(ctx, "put", r.tableName, err)
}

func (r *LinkRepo) Get(ctx context.Context, linkID string) (*domain.CustomLink, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldLinkID, linkID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr(ctx, "get", r.tableName, err)
	}
	if out.Item == nil {
		return nil, notFound("link")
	}
	return decodeLink(out.Item)
}

// ListByRaffle queries the raffle index, newest first.
func (r *LinkRepo) ListByRaffle(ctx context.Context, raffleID string) ([]domain.CustomLink, error) {
	var links []domain.CustomLink
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(linksByRaffleIndex),
		KeyConditionExpression:   aws.String("#rid = :rid"),
		ExpressionAttributeNames: map[string]string{"#rid": fieldRaffleID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rid": &types.AttributeValueMemberS{Value: raffleID},
		},
		ScanIndexForward: aws.Bool(false),
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, storeErr(ctx, "query", r.tableName, err)
		}
		for _, item := range out.Items {
			link, err := decodeLink(item)
			if err != nil {
				return nil, err
			}
			links = append(links, *link)
		}
	}
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

func (r *LinkRepo) Delete(ctx context.Context, linkID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldLinkID, linkID),
	})
	return storeErr(ctx, "delete", r.tableName, err)
}

func (r *LinkRepo) DeleteByRaffle(ctx context.Context, raffleID string) error {
	links, err := r.ListByRaffle(ctx, raffleID)
	if err != nil {
		return err
	}
	keys := make([]map[string]types.AttributeValue, len(links))
	for i, l := range links {
		keys[i] = strKey(fieldLinkID, l.LinkID)
	}
	return batchDelete(ctx, r.client, r.tableName, keys)
}

// Claim leases an unused link to token. A lease older than staleBefore is
// considered abandoned and may be taken over.
func (r *LinkRepo) Claim(ctx context.Context, linkID, token string, now, staleBefore time.Time) (*domain.CustomLink, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldClaimToken: token,
		fieldClaimedAt:  now.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	ue.addName("#pk", fieldLinkID)
	ue.addName("#used", fieldUsed)
	ue.addName("#ct", fieldClaimToken)
	ue.addName("#ca", fieldClaimedAt)
	if err := ue.addValue(":false", false); err != nil {
		return nil, err
	}
	if err := ue.addValue(":stale", staleBefore.UnixMilli()); err != nil {
		return nil, err
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldLinkID, linkID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk) AND #used = :false AND (attribute_not_exists(#ct) OR #ca < :stale)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		current, gerr := r.Get(ctx, linkID)
		if gerr != nil {
			return nil, gerr
		}
		if current.Used {
			return nil, &domain.LinkUsedError{Link: current}
		}
		return nil, domain.ErrRedemptionInProgress
	}
	if err != nil {
		return nil, storeErr(ctx, "claim", r.tableName, err)
	}
	return decodeLink(out.Attributes)
}

// Complete marks the link used by the lease holder and drops the lease.
func (r *LinkRepo) Complete(ctx context.Context, linkID, token string, redeemer domain.Redeemer, at time.Time) (*domain.CustomLink, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldUsed:   true,
		fieldUsedAt: at,
		fieldUsedBy: redeemer,
	}, fieldClaimToken, fieldClaimedAt)
	if err != nil {
		return nil, err
	}
	ue.addName("#used", fieldUsed)
	ue.addName("#ct", fieldClaimToken)
	if err := ue.addValue(":false", false); err != nil {
		return nil, err
	}
	if err := ue.addValue(":token", token); err != nil {
		return nil, err
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldLinkID, linkID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#ct = :token AND #used = :false"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, fmt.Errorf("lease on link %s lost: %w", linkID, domain.ErrRedemptionInProgress)
	}
	if err != nil {
		return nil, storeErr(ctx, "complete", r.tableName, err)
	}
	return decodeLink(out.Attributes)
}

// Release drops the lease held by token without marking the link used.
func (r *LinkRepo) Release(ctx context.Context, linkID, token string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldLinkID, linkID),
		UpdateExpression:         aws.String("REMOVE #ct, #ca"),
		ConditionExpression:      aws.String("#ct = :token"),
		ExpressionAttributeNames: map[string]string{"#ct": fieldClaimToken, "#ca": fieldClaimedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":token": &types.AttributeValueMemberS{Value: token},
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	return storeErr(ctx, "release", r.tableName, err)
}

// decodeLink unmarshals a link item. claimed_at is kept as epoch millis so
// the lease staleness condition compares numbers.
func decodeLink(item map[string]types.AttributeValue) (*domain.CustomLink, error) {
	var link domain.CustomLink
	if err := attributevalue.UnmarshalMap(item, &link); err != nil {
		return nil, fmt.Errorf("unmarshal link: %w", err)
	}
	if av, ok := item[fieldClaimedAt]; ok {
		var ms int64
		if err := attributevalue.Unmarshal(av, &ms); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", fieldClaimedAt, err)
		}
		at := time.UnixMilli(ms).UTC()
		link.ClaimedAt = &at
	}
	return &link, nil
}
