package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dishdash-auth/internal/domain"
)

// headSK is the sort key of the per-(user, channel) pointer to the latest
// challenge. Its version attribute serialises concurrent supersessions.
const headSK = "HEAD"

// challengeRetention keeps consumed challenges around for audit before the
// table TTL removes them.
const challengeRetention = 7 * 24 * time.Hour

type challengeItem struct {
	PK  string `dynamodbav:"pk"`
	SK  string `dynamodbav:"sk"`
	TTL int64  `dynamodbav:"ttl"`
	domain.Challenge
}

type headItem struct {
	PK       string `dynamodbav:"pk"`
	SK       string `dynamodbav:"sk"`
	LatestID string `dynamodbav:"latest_id"`
	Version  int64  `dynamodbav:"version"`
}

// ChallengeRepo stores OTP challenges.
// PK: "<user_id>#<channel>", SK: challenge id (ULID) or "HEAD".
type ChallengeRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewChallengeRepo(client API, tableName string) *ChallengeRepo {
	return &ChallengeRepo{client: client, tableName: tableName, now: time.Now}
}

func challengePK(userID string, ch domain.Channel) string {
	return userID + "#" + string(ch)
}

func (r *ChallengeRepo) Latest(ctx context.Context, userID string, ch domain.Channel) (*domain.Challenge, error) {
	pk := challengePK(userID, ch)
	head, err := r.head(ctx, pk)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("no challenge: %w", domain.ErrNotFound)
	}
	return r.get(ctx, pk, head.LatestID)
}

// Supersede expires the current head challenge, stores c and moves the head
// to c in a single transaction. The head's version guards against a
// concurrent request; losing that race returns domain.ErrConflict.
func (r *ChallengeRepo) Supersede(ctx context.Context, c *domain.Challenge) error {
	pk := challengePK(c.UserID, c.Channel)
	head, err := r.head(ctx, pk)
	if err != nil {
		return err
	}

	next := headItem{PK: pk, SK: headSK, LatestID: c.ChallengeID, Version: 1}
	headPut := &types.Put{
		TableName:                aws.String(r.tableName),
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": "pk"},
	}
	var expirePrev *types.Update
	if head != nil {
		next.Version = head.Version + 1
		headPut.ConditionExpression = aws.String("#ver = :ver")
		headPut.ExpressionAttributeNames = map[string]string{"#ver": "version"}
		headPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":ver": &types.AttributeValueMemberN{Value: strconv.FormatInt(head.Version, 10)},
		}

		prev, err := r.get(ctx, pk, head.LatestID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if prev != nil && !prev.IsExpired {
			expirePrev = r.expireUpdate(pk, prev.ChallengeID, c.CreatedAt)
		}
	}
	if headPut.Item, err = attributevalue.MarshalMap(next); err != nil {
		return fmt.Errorf("marshal challenge head: %w", err)
	}

	item, err := attributevalue.MarshalMap(challengeItem{
		PK:        pk,
		SK:        c.ChallengeID,
		TTL:       c.ExpiresAt.Add(challengeRetention).Unix(),
		Challenge: *c,
	})
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	items := []types.TransactWriteItem{{Put: headPut}}
	if expirePrev != nil {
		items = append(items, types.TransactWriteItem{Update: expirePrev})
	}
	items = append(items, types.TransactWriteItem{Put: &types.Put{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": "pk"},
	}})

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if isConditionFailure(err) {
		return fmt.Errorf("challenge superseded concurrently: %w", domain.ErrConflict)
	}
	return err
}

// MarkExpired flips is_expired from false to true. It returns
// domain.ErrConflict when the challenge was already expired.
func (r *ChallengeRepo) MarkExpired(ctx context.Context, c *domain.Challenge) error {
	u := r.expireUpdate(challengePK(c.UserID, c.Channel), c.ChallengeID, r.now().UTC())
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
	})
	if isConditionFailure(err) {
		return fmt.Errorf("challenge already expired: %w", domain.ErrConflict)
	}
	if err != nil {
		return err
	}
	c.IsExpired = true
	return nil
}

func (r *ChallengeRepo) expireUpdate(pk, challengeID string, at time.Time) *types.Update {
	ts, _ := attributevalue.Marshal(at.UTC())
	return &types.Update{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey("pk", pk, "sk", challengeID),
		UpdateExpression:    aws.String("SET #e = :t, #u = :now"),
		ConditionExpression: aws.String("#e = :f"),
		ExpressionAttributeNames: map[string]string{
			"#e": fieldIsExpired,
			"#u": fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   trueValue,
			":f":   falseValue,
			":now": ts,
		},
	}
}

func (r *ChallengeRepo) head(ctx context.Context, pk string) (*headItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey("pk", pk, "sk", headSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var h headItem
	if err := attributevalue.UnmarshalMap(out.Item, &h); err != nil {
		return nil, fmt.Errorf("unmarshal challenge head: %w", err)
	}
	return &h, nil
}

func (r *ChallengeRepo) get(ctx context.Context, pk, challengeID string) (*domain.Challenge, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey("pk", pk, "sk", challengeID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("challenge not found: %w", domain.ErrNotFound)
	}
	var item challengeItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}
	return &item.Challenge, nil
}
