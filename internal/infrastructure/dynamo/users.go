package dynamo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dishdash-auth/internal/domain"
)

// Prefixes of the uniqueness guard items in the user_keys table.
const (
	keyPrefixUsername = "username#"
	keyPrefixEmail    = "email#"
)

// userKey reserves a username or email for one user. The guard table gives
// strongly consistent lookups where a GSI would be eventually consistent.
type userKey struct {
	Key    string `dynamodbav:"key"`
	UserID string `dynamodbav:"user_id"`
}

// UserRepo provides typed DynamoDB operations for the users table.
type UserRepo struct {
	client    API
	tableName string
	keysTable string
	now       func() time.Time
}

func NewUserRepo(client API, tableName, keysTable string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName, keysTable: keysTable, now: time.Now}
}

// Create writes the user and both guard items in one transaction. A taken
// username or email cancels the whole write.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	puts := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(user_id)"),
		},
	}}
	for _, k := range []string{keyPrefixUsername + u.Username, keyPrefixEmail + strings.ToLower(u.Email)} {
		kItem, err := attributevalue.MarshalMap(userKey{Key: k, UserID: u.UserID})
		if err != nil {
			return fmt.Errorf("marshal user key: %w", err)
		}
		puts = append(puts, types.TransactWriteItem{
			Put: &types.Put{
				TableName:                aws.String(r.keysTable),
				Item:                     kItem,
				ConditionExpression:      aws.String("attribute_not_exists(#k)"),
				ExpressionAttributeNames: map[string]string{"#k": "key"},
			},
		})
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: puts})
	if isConditionFailure(err) {
		return fmt.Errorf("username or email already registered: %w", domain.ErrConflict)
	}
	return err
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getByKey(ctx, keyPrefixUsername+username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getByKey(ctx, keyPrefixEmail+strings.ToLower(email))
}

// SwapTokens replaces the token triple only if the stored access token is
// still prev. A nil prev expects the user to be logged out.
func (r *UserRepo) SwapTokens(ctx context.Context, userID string, prev *string, next *domain.TokenPair) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldAccessToken:       next.Access,
		fieldRefreshToken:      next.Refresh,
		fieldAccessTokenExpiry: next.AccessTokenExpiry,
		fieldUpdatedAt:         r.now().UTC(),
	})
	if err != nil {
		return err
	}
	access := ue.nameOf(fieldAccessToken)
	cond := "attribute_exists(user_id) AND "
	if prev == nil {
		cond += fmt.Sprintf("(attribute_not_exists(%s) OR attribute_type(%s, :null_type))", access, access)
		ue.Values[":null_type"] = &types.AttributeValueMemberS{Value: "NULL"}
	} else {
		cond += access + " = :prev"
		ue.Values[":prev"] = &types.AttributeValueMemberS{Value: *prev}
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailure(err) {
		return fmt.Errorf("token pair changed concurrently: %w", domain.ErrConflict)
	}
	return err
}

// ClearTokens nulls the token triple in one write.
func (r *UserRepo) ClearTokens(ctx context.Context, userID string) error {
	return r.update(ctx, userID, map[string]interface{}{
		fieldAccessToken:       nil,
		fieldRefreshToken:      nil,
		fieldAccessTokenExpiry: nil,
		fieldUpdatedAt:         r.now().UTC(),
	})
}

// SoftDelete flags the user deleted and clears its tokens. Users are never
// removed from the table.
func (r *UserRepo) SoftDelete(ctx context.Context, userID string) error {
	return r.update(ctx, userID, map[string]interface{}{
		fieldIsDeleted:         true,
		fieldAccessToken:       nil,
		fieldRefreshToken:      nil,
		fieldAccessTokenExpiry: nil,
		fieldUpdatedAt:         r.now().UTC(),
	})
}

func (r *UserRepo) update(ctx context.Context, userID string, updates map[string]interface{}) error {
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(user_id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailure(err) {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return err
}

func (r *UserRepo) getByKey(ctx context.Context, key string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.keysTable),
		Key:            strKey("key", key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var k userKey
	if err := attributevalue.UnmarshalMap(out.Item, &k); err != nil {
		return nil, fmt.Errorf("unmarshal user key: %w", err)
	}
	return r.Get(ctx, k.UserID)
}
