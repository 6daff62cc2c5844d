package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"citizen-assistant/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"

	batchWriteLimit   = 25
	batchWriteRetries = 3
	// One slot of a transaction is taken by the META# item.
	maxMessagesPerAppend = 99
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore keeps each conversation in one partition: a META# item with
// the header, merged context and message count, plus one MSG# item per
// message. Only the META# item carries a ttl, refreshed on every append, so
// a conversation expires as a whole once it has been idle for the TTL.
// Messages of an expired conversation stay until the next Create overwrites
// them or Clear removes them; Get never reads past the META# count.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

type DynamoOption func(*DynamoStore)

func WithDynamoTTL(ttl time.Duration) DynamoOption {
	return func(s *DynamoStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithDynamoClock(now func() time.Time) DynamoOption {
	return func(s *DynamoStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDynamoStore creates a DynamoDB-backed ConversationStore.
func NewDynamoStore(api dynamodbAPI, tableName string, opts ...DynamoOption) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	s := &DynamoStore{api: api, tableName: tableName, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// userPK returns the DynamoDB partition key for a user's conversation.
func userPK(userID string) string {
	return "USER#" + userID
}

// msgSK returns the sort key of the seq-th message. Zero padding keeps
// lexical and append order the same.
func msgSK(seq int) string {
	return fmt.Sprintf("%s%08d", skPrefixMsg, seq)
}

func (s *DynamoStore) ttlValue() int64 {
	return s.now().Add(s.ttl).Unix()
}

type meta struct {
	conv  domain.Conversation
	count int
	ttl   int64
}

// getMeta reads the META# item. It returns ErrNotFound when the item is
// missing or past its ttl but not yet reaped.
func (s *DynamoStore) getMeta(ctx context.Context, userID string) (meta, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return meta{}, fmt.Errorf("get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return meta{}, ErrNotFound
	}
	m, err := itemToMeta(out.Item)
	if err != nil {
		return meta{}, fmt.Errorf("decode meta: %w", err)
	}
	if m.ttl > 0 && m.ttl < s.now().Unix() {
		return meta{}, ErrNotFound
	}
	return m, nil
}

// queryAll pages through the partition, limited to SKs starting with prefix
// when one is given.
func (s *DynamoStore) queryAll(ctx context.Context, userID, prefix string, keysOnly bool) ([]map[string]types.AttributeValue, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: userPK(userID)},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}
	if prefix != "" {
		in.KeyConditionExpression = aws.String("PK = :pk AND begins_with(SK, :prefix)")
		in.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: prefix}
	}
	if keysOnly {
		in.ProjectionExpression = aws.String("PK, SK")
	}
	var items []map[string]types.AttributeValue
	for {
		out, err := s.api.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Get loads the header and all messages in append order.
func (s *DynamoStore) Get(ctx context.Context, userID string) (*domain.Conversation, error) {
	m, err := s.getMeta(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: Get: %w", err)
	}
	items, err := s.queryAll(ctx, userID, skPrefixMsg, false)
	if err != nil {
		return nil, fmt.Errorf("repository: Get query: %w", err)
	}
	if len(items) > m.count {
		items = items[:m.count]
	}
	conv := m.conv
	conv.Messages = make([]domain.Message, 0, len(items))
	for _, item := range items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: Get unmarshal: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	return &conv, nil
}

// Create writes the META# item and every MSG# item in one transaction, so a
// failed create leaves nothing behind. The META# put only succeeds when no
// live conversation exists; an expired but unreaped one is overwritten, and
// any of its messages beyond the new count are ignored by Get.
func (s *DynamoStore) Create(ctx context.Context, conv domain.Conversation) error {
	if conv.UserID == "" {
		return errors.New("repository: Create: user id is required")
	}
	if len(conv.Messages) > maxMessagesPerAppend {
		return fmt.Errorf("repository: Create: %d messages exceeds %d", len(conv.Messages), maxMessagesPerAppend)
	}

	txItems := make([]types.TransactWriteItem, 0, len(conv.Messages)+1)
	metaItem, err := s.metaItem(conv, len(conv.Messages))
	if err != nil {
		return fmt.Errorf("repository: Create: %w", err)
	}
	txItems = append(txItems, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                aws.String(s.tableName),
			Item:                     metaItem,
			ConditionExpression:      aws.String("attribute_not_exists(PK) OR #ttl < :now"),
			ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
			},
		},
	})
	for i, msg := range conv.Messages {
		item, err := s.messageItem(conv.UserID, i, msg)
		if err != nil {
			return fmt.Errorf("repository: Create: %w", err)
		}
		txItems = append(txItems, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.tableName), Item: item},
		})
	}

	if _, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: txItems}); err != nil {
		if conditionFailed(err) {
			return fmt.Errorf("repository: Create: %w", ErrConflict)
		}
		return fmt.Errorf("repository: Create: %w", err)
	}
	return nil
}

// conditionFailed reports whether a transaction was cancelled by a failed
// condition check rather than throttling or a conflict with another transaction.
func conditionFailed(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, r := range tce.CancellationReasons {
		if aws.ToString(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// Append writes the new MSG# items and the updated META# item in one
// transaction. The META# put is conditioned on the message count read
// beforehand, so concurrent appends from other processes fail instead of
// interleaving. MSG# puts are unconditional: the count condition already
// owns their sort keys, and they may overwrite leftovers of an expired
// conversation.
func (s *DynamoStore) Append(ctx context.Context, userID string, update domain.ConversationContext, msgs ...domain.Message) (*domain.Conversation, error) {
	if len(msgs) > maxMessagesPerAppend {
		return nil, fmt.Errorf("repository: Append: %d messages exceeds %d", len(msgs), maxMessagesPerAppend)
	}
	m, err := s.getMeta(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: Append: %w", err)
	}

	conv := m.conv
	apply(&conv, update, msgs)

	txItems := make([]types.TransactWriteItem, 0, len(msgs)+1)
	for i, msg := range msgs {
		item, err := s.messageItem(userID, m.count+i, msg)
		if err != nil {
			return nil, fmt.Errorf("repository: Append: %w", err)
		}
		txItems = append(txItems, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.tableName), Item: item},
		})
	}
	metaItem, err := s.metaItem(conv, m.count+len(msgs))
	if err != nil {
		return nil, fmt.Errorf("repository: Append: %w", err)
	}
	txItems = append(txItems, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(s.tableName),
			Item:                metaItem,
			ConditionExpression: aws.String("messageCount = :expected"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(m.count)},
			},
		},
	})

	if _, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: txItems}); err != nil {
		return nil, fmt.Errorf("repository: Append: %w", err)
	}
	return s.Get(ctx, userID)
}

// Clear deletes every item in the user's partition.
func (s *DynamoStore) Clear(ctx context.Context, userID string) error {
	items, err := s.queryAll(ctx, userID, "", true)
	if err != nil {
		return fmt.Errorf("repository: Clear query: %w", err)
	}
	for start := 0; start < len(items); start += batchWriteLimit {
		end := min(start+batchWriteLimit, len(items))
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
					"PK": item["PK"],
					"SK": item["SK"],
				}},
			})
		}
		if err := s.batchDelete(ctx, reqs); err != nil {
			return fmt.Errorf("repository: Clear: %w", err)
		}
	}
	return nil
}

func (s *DynamoStore) batchDelete(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.tableName: reqs}
	for attempt := 0; attempt < batchWriteRetries; attempt++ {
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if out == nil || len(out.UnprocessedItems[s.tableName]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return fmt.Errorf("%d deletes left unprocessed", len(pending[s.tableName]))
}

func (s *DynamoStore) metaItem(conv domain.Conversation, count int) (map[string]types.AttributeValue, error) {
	ctxJSON, err := json.Marshal(conv.Context)
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: userPK(conv.UserID)},
		"SK":             &types.AttributeValueMemberS{Value: skMeta},
		"conversationId": &types.AttributeValueMemberS{Value: conv.ID},
		"userId":         &types.AttributeValueMemberS{Value: conv.UserID},
		"context":        &types.AttributeValueMemberS{Value: string(ctxJSON)},
		"createdAt":      &types.AttributeValueMemberS{Value: conv.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"lastUpdated":    &types.AttributeValueMemberS{Value: conv.LastUpdated.UTC().Format(time.RFC3339Nano)},
		"messageCount":   &types.AttributeValueMemberN{Value: strconv.Itoa(count)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(s.ttlValue(), 10)},
	}, nil
}

func (s *DynamoStore) messageItem(userID string, seq int, msg domain.Message) (map[string]types.AttributeValue, error) {
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(userID)},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(seq)},
		"id":        &types.AttributeValueMemberS{Value: msg.ID},
		"content":   &types.AttributeValueMemberS{Value: msg.Content},
		"sender":    &types.AttributeValueMemberS{Value: string(msg.Sender)},
		"timestamp": &types.AttributeValueMemberS{Value: msg.Timestamp.UTC().Format(time.RFC3339Nano)},
	}
	if msg.Type != "" {
		item["type"] = &types.AttributeValueMemberS{Value: msg.Type}
	}
	if len(msg.Actions) > 0 {
		b, err := json.Marshal(msg.Actions)
		if err != nil {
			return nil, fmt.Errorf("encode actions: %w", err)
		}
		item["actions"] = &types.AttributeValueMemberS{Value: string(b)}
	}
	if len(msg.ProactiveActions) > 0 {
		b, err := json.Marshal(msg.ProactiveActions)
		if err != nil {
			return nil, fmt.Errorf("encode proactive actions: %w", err)
		}
		item["proactiveActions"] = &types.AttributeValueMemberS{Value: string(b)}
	}
	return item, nil
}

func itemToMeta(item map[string]types.AttributeValue) (meta, error) {
	var m meta
	var err error
	if m.conv.ID, err = strAttr(item, "conversationId"); err != nil {
		return meta{}, err
	}
	if m.conv.UserID, err = strAttr(item, "userId"); err != nil {
		return meta{}, err
	}
	if raw, _ := strAttr(item, "context"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.conv.Context); err != nil {
			return meta{}, fmt.Errorf("repository: attribute %q: %w", "context", err)
		}
	}
	if m.conv.CreatedAt, err = timeAttr(item, "createdAt"); err != nil {
		return meta{}, err
	}
	if m.conv.LastUpdated, err = timeAttr(item, "lastUpdated"); err != nil {
		return meta{}, err
	}
	if m.count, err = intAttr(item, "messageCount"); err != nil {
		return meta{}, err
	}
	if ttl, err := intAttr(item, "ttl"); err == nil {
		m.ttl = int64(ttl)
	}
	return m, nil
}

// itemToMessage converts a DynamoDB attribute map to a Message.
func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Message{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.Message{}, err
	}
	sender, err := strAttr(item, "sender")
	if err != nil {
		return domain.Message{}, err
	}
	ts, err := timeAttr(item, "timestamp")
	if err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{ID: id, Content: content, Sender: domain.Sender(sender), Timestamp: ts}
	msg.Type, _ = strAttr(item, "type") // allow empty
	if raw, _ := strAttr(item, "actions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.Actions); err != nil {
			return domain.Message{}, fmt.Errorf("repository: attribute %q: %w", "actions", err)
		}
	}
	if raw, _ := strAttr(item, "proactiveActions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.ProactiveActions); err != nil {
			return domain.Message{}, fmt.Errorf("repository: attribute %q: %w", "proactiveActions", err)
		}
	}
	return msg, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}

var _ ConversationStore = (*DynamoStore)(nil)
