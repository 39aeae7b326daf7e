package dynamo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dishdash-auth/internal/domain"
)

// Attribute names shared by update and condition expressions.
const (
	fieldUserID            = "user_id"
	fieldAccessToken       = "access_token"
	fieldRefreshToken      = "refresh_token"
	fieldAccessTokenExpiry = "access_token_expiry"
	fieldIsDeleted         = "is_deleted"
	fieldIsExpired         = "is_expired"
	fieldUpdatedAt         = "updated_at"
)

var (
	nullValue  = &types.AttributeValueMemberNULL{Value: true}
	trueValue  = &types.AttributeValueMemberBOOL{Value: true}
	falseValue = &types.AttributeValueMemberBOOL{Value: false}
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// compositeKey builds a DynamoDB primary key with two string attributes (PK + SK).
func compositeKey(pkName, pkValue, skName, skValue string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkName: &types.AttributeValueMemberS{Value: pkValue},
		skName: &types.AttributeValueMemberS{Value: skValue},
	}
}

type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr converts a map of field->value into a DynamoDB SET
// expression. Fields are emitted in sorted order so the expression is stable.
// A nil value sets the attribute to NULL.
func buildUpdateExpr(updates map[string]interface{}) (*updateExpr, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ue := &updateExpr{
		Expr:   "SET ",
		Names:  make(map[string]string, len(keys)),
		Values: make(map[string]types.AttributeValue, len(keys)),
	}
	for i, k := range keys {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		ue.Names[nameKey] = k
		var av types.AttributeValue = nullValue
		if v := updates[k]; v != nil {
			var err error
			if av, err = attributevalue.Marshal(v); err != nil {
				return nil, fmt.Errorf("marshal field %s: %w", k, err)
			}
		}
		ue.Values[valueKey] = av
		if i > 0 {
			ue.Expr += ", "
		}
		ue.Expr += nameKey + " = " + valueKey
	}
	return ue, nil
}

// nameOf returns the placeholder bound to attribute in ue.
func (ue *updateExpr) nameOf(attribute string) string {
	for k, v := range ue.Names {
		if v == attribute {
			return k
		}
	}
	return ""
}

// isConditionFailure reports whether err is a failed condition, either on a
// single-item write or as the cancellation reason of a transaction.
func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			switch aws.ToString(r.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				return true
			}
		}
	}
	var tc *types.TransactionConflictException
	return errors.As(err, &tc)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
