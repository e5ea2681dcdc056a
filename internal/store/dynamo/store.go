// Package dynamo implements the key-value store on a single DynamoDB table
// with string attributes pk (partition) and sk (sort).
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"example.com/parkactivity/internal/store"
)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Store adapts a DynamoDB table to store.Store.
type Store struct {
	client API
	table  string
}

var _ store.Store = (*Store)(nil)

// NewStore constructs a Store for table.
func NewStore(client API, table string) *Store {
	return &Store{client: client, table: table}
}

// NewClient loads the default AWS configuration for region. When endpoint is
// set (dynamodb-local), static dummy credentials are used.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// GetOne implements store.Store.
func (s *Store) GetOne(ctx context.Context, key store.Key) (store.Item, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttributes(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("error getting item from dynamo: %w", err)
	}
	if resp.Item == nil {
		return nil, nil
	}
	return unmarshalItem(resp.Item)
}

// Query implements store.Store, following pagination until exhausted.
func (s *Store) Query(ctx context.Context, q store.Query) ([]store.Item, error) {
	names := map[string]string{"#pk": store.AttrPK}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: q.PK},
	}
	expr := "#pk = :pk"

	switch {
	case q.SKFrom != "" && q.SKTo != "":
		expr += " AND #sk BETWEEN :from AND :to"
		values[":from"] = &types.AttributeValueMemberS{Value: q.SKFrom}
		values[":to"] = &types.AttributeValueMemberS{Value: q.SKTo}
	case q.SKFrom != "":
		expr += " AND #sk >= :from"
		values[":from"] = &types.AttributeValueMemberS{Value: q.SKFrom}
	case q.SKTo != "":
		expr += " AND #sk <= :to"
		values[":to"] = &types.AttributeValueMemberS{Value: q.SKTo}
	case q.SKPrefix != "":
		expr += " AND begins_with(#sk, :prefix)"
		values[":prefix"] = &types.AttributeValueMemberS{Value: q.SKPrefix}
	}
	if strings.Contains(expr, "#sk") {
		names["#sk"] = store.AttrSK
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}

	results := make([]store.Item, 0)
	for {
		resp, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("error querying dynamo: %w", err)
		}
		for _, raw := range resp.Items {
			item, err := unmarshalItem(raw)
			if err != nil {
				return nil, err
			}
			// DynamoDB takes one sort key condition; the rest is applied here.
			if q.MatchesSK(item.Key().SK) {
				results = append(results, item)
			}
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
	return results, nil
}

// ConditionalUpdate implements store.Store with UpdateItem and a
// ConditionExpression; a ConditionalCheckFailedException means not applied.
func (s *Store) ConditionalUpdate(ctx context.Context, key store.Key, set map[string]any, cond store.Condition) (store.UpdateResult, error) {
	if err := key.Validate(); err != nil {
		return store.UpdateResult{}, err
	}

	attrs := make([]string, 0, len(set))
	for k := range set {
		if k == store.AttrPK || k == store.AttrSK {
			continue
		}
		attrs = append(attrs, k)
	}
	if len(attrs) == 0 {
		return store.UpdateResult{}, errors.New("dynamo: conditional update without attributes")
	}
	sort.Strings(attrs)

	names := map[string]string{"#pk": store.AttrPK, "#cond": cond.Attribute}
	values := make(map[string]types.AttributeValue, len(attrs)+1)
	assignments := make([]string, 0, len(attrs))
	for i, attr := range attrs {
		n := "#a" + strconv.Itoa(i)
		v := ":v" + strconv.Itoa(i)
		av, err := attributevalue.Marshal(set[attr])
		if err != nil {
			return store.UpdateResult{}, fmt.Errorf("error marshalling %s: %w", attr, err)
		}
		names[n] = attr
		values[v] = av
		assignments = append(assignments, n+" = "+v)
	}
	condValue, err := attributevalue.Marshal(cond.NotEqual)
	if err != nil {
		return store.UpdateResult{}, fmt.Errorf("error marshalling condition: %w", err)
	}
	values[":cond"] = condValue

	resp, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyAttributes(key),
		UpdateExpression:          aws.String("SET " + strings.Join(assignments, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#pk) AND (attribute_not_exists(#cond) OR #cond <> :cond)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return store.UpdateResult{}, nil
		}
		return store.UpdateResult{}, fmt.Errorf("error updating dynamo item: %w", err)
	}

	item, err := unmarshalItem(resp.Attributes)
	if err != nil {
		return store.UpdateResult{}, err
	}
	return store.UpdateResult{Applied: true, Item: item}, nil
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, item store.Item) error {
	if err := item.Key().Validate(); err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return fmt.Errorf("error marshalling item for dynamo: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("error putting dynamo item: %w", err)
	}
	return nil
}

func keyAttributes(key store.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		store.AttrPK: &types.AttributeValueMemberS{Value: key.PK},
		store.AttrSK: &types.AttributeValueMemberS{Value: key.SK},
	}
}

func unmarshalItem(raw map[string]types.AttributeValue) (store.Item, error) {
	item := store.Item{}
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("error unmarshalling dynamo item: %w", err)
	}
	return item, nil
}
