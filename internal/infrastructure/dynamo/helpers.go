package dynamo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rifas-api/internal/domain"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// participantKey builds the (raffle_id, number) composite key of the participants table.
func participantKey(raffleID string, number int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		fieldRaffleID: &types.AttributeValueMemberS{Value: raffleID},
		fieldNumber:   &types.AttributeValueMemberN{Value: fmt.Sprint(number)},
	}
}

// updateExpr is a SET/REMOVE update expression plus its placeholder maps.
// Condition placeholders can be merged into Names/Values with addName/addValue.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr converts a map of field->value into a DynamoDB SET expression,
// optionally followed by a REMOVE clause. Keys are sorted so output is deterministic.
func buildUpdateExpr(updates map[string]interface{}, removes ...string) (updateExpr, error) {
	ue := updateExpr{
		Names:  make(map[string]string),
		Values: make(map[string]types.AttributeValue),
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	for i, k := range keys {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		av, err := attributevalue.Marshal(updates[k])
		if err != nil {
			return updateExpr{}, fmt.Errorf("marshal field %s: %w", k, err)
		}
		ue.Names[nameKey] = k
		ue.Values[valueKey] = av
		sets = append(sets, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}

	rems := make([]string, 0, len(removes))
	for i, k := range removes {
		nameKey := fmt.Sprintf("#r%d", i)
		ue.Names[nameKey] = k
		rems = append(rems, nameKey)
	}

	if len(sets) == 0 && len(rems) == 0 {
		return updateExpr{}, fmt.Errorf("no fields to update")
	}
	var clauses []string
	if len(sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(rems) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(rems, ", "))
	}
	ue.Expr = strings.Join(clauses, " ")
	return ue, nil
}

func (ue updateExpr) addName(placeholder, attr string) {
	ue.Names[placeholder] = attr
}

func (ue updateExpr) addValue(placeholder string, v interface{}) error {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal condition value %s: %w", placeholder, err)
	}
	ue.Values[placeholder] = av
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// isUnavailable reports failures where the store could not be reached or the
// table does not exist, as opposed to a request the store answered.
func isUnavailable(err error) bool {
	var rse *smithyhttp.RequestSendError
	if errors.As(err, &rse) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// storeErr wraps an SDK error as a *domain.StoreError; nil stays nil.
// A request the caller abandoned says nothing about the store's health.
func storeErr(ctx context.Context, op, table string, err error) error {
	if err == nil {
		return nil
	}
	unavailable := ctx.Err() == nil && !errors.Is(err, context.Canceled) && isUnavailable(err)
	return &domain.StoreError{Op: op, Table: table, Unavailable: unavailable, Err: err}
}

func notFound(what string) error {
	return fmt.Errorf("%s not found: %w", what, domain.ErrNotFound)
}
