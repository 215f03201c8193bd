package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rifas-api/internal/domain"
)

// NotificationRepo provides typed DynamoDB operations for the admin notifications table.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return storeErr(ctx, "put", r.tableName, err)
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldNotificationID, notificationID),
	})
	if err != nil {
		return nil, storeErr(ctx, "get", r.tableName, err)
	}
	if out.Item == nil {
		return nil, notFound("notification")
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// List scans with the filter pushed down, then sorts newest first and caps at f.Limit.
func (r *NotificationRepo) List(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(r.tableName)}
	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if f.UnreadOnly {
		conds = append(conds, "#rd = :false")
		names["#rd"] = fieldRead
		values[":false"] = &types.AttributeValueMemberBOOL{Value: false}
	}
	if f.Type != "" {
		conds = append(conds, "#tp = :tp")
		names["#tp"] = fieldType
		values[":tp"] = &types.AttributeValueMemberS{Value: string(f.Type)}
	}
	if f.Priority != "" {
		conds = append(conds, "#pr = :pr")
		names["#pr"] = fieldPriority
		values[":pr"] = &types.AttributeValueMemberS{Value: string(f.Priority)}
	}
	if f.RaffleID != "" {
		conds = append(conds, "#rid = :rid")
		names["#rid"] = fieldRaffleID
		values[":rid"] = &types.AttributeValueMemberS{Value: f.RaffleID}
	}
	if len(conds) > 0 {
		input.FilterExpression = aws.String(strings.Join(conds, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var notifications []domain.Notification
	p := dynamodb.NewScanPaginator(r.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, storeErr(ctx, "scan", r.tableName, err)
		}
		var page []domain.Notification
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		notifications = append(notifications, page...)
	}
	sort.SliceStable(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	if f.Limit > 0 && len(notifications) > f.Limit {
		notifications = notifications[:f.Limit]
	}
	return notifications, nil
}

// MarkRead sets read and keeps the first read_at on repeated calls.
func (r *NotificationRepo) MarkRead(ctx context.Context, notificationID string, at time.Time) error {
	now, err := attributevalue.Marshal(at)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldNotificationID, notificationID),
		UpdateExpression:    aws.String("SET #rd = :true, #ra = if_not_exists(#ra, :now)"),
		ConditionExpression: aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": fieldNotificationID,
			"#rd": fieldRead,
			"#ra": fieldReadAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":now":  now,
		},
	})
	if isConditionFailed(err) {
		return notFound("notification")
	}
	return storeErr(ctx, "mark_read", r.tableName, err)
}

// MarkAllRead marks every unread notification and returns how many changed.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, at time.Time) (int, error) {
	unread, err := r.List(ctx, domain.NotificationFilter{UnreadOnly: true})
	if err != nil {
		return 0, err
	}
	for i, n := range unread {
		if err := r.MarkRead(ctx, n.NotificationID, at); err != nil {
			return i, err
		}
	}
	return len(unread), nil
}

func (r *NotificationRepo) Delete(ctx context.Context, notificationID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldNotificationID, notificationID),
		ConditionExpression:      aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldNotificationID},
	})
	if isConditionFailed(err) {
		return notFound("notification")
	}
	return storeErr(ctx, "delete", r.tableName, err)
}
