package metastore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"wpsnapshots/internal/errs"
	"wpsnapshots/internal/snapshots"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// TableReadyTimeout bounds the wait for a new table to become active.
const TableReadyTimeout = 5 * time.Minute

// DynamoStore is the index of an AWS repository.
type DynamoStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoStore returns the index of repository. A nil now uses time.Now.
func NewDynamoStore(client DynamoAPI, repository string, now func() time.Time) *DynamoStore {
	if now == nil {
		now = time.Now
	}
	return &DynamoStore{client: client, table: TableName(repository), now: now}
}

func (d *DynamoStore) Search(ctx context.Context, query string) ([]*snapshots.Meta, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(d.table)}
	if query != "*" {
		// id_search is absent on older records, which still match the exact id.
		in.FilterExpression = aws.String("contains(#project, :q) OR #idsearch = :q OR #id = :id")
		in.ExpressionAttributeNames = map[string]string{"#project": "project", "#idsearch": "id_search", "#id": "id"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":q":  &types.AttributeValueMemberS{Value: strings.ToLower(query)},
			":id": &types.AttributeValueMemberS{Value: query},
		}
	}

	var out []*snapshots.Meta
	pages := dynamodb.NewScanPaginator(d.client, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, errs.FromAWS("search", err)
		}
		for _, item := range page.Items {
			meta, err := d.decode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, meta)
		}
	}
	return out, nil
}

func (d *DynamoStore) Insert(ctx context.Context, meta *snapshots.Meta) (*snapshots.Meta, error) {
	raw := record(meta, d.now())
	item, err := attributevalue.MarshalMap(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot %s: %w", meta.ID, err)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	}); err != nil {
		return nil, errs.FromAWS("insert", err)
	}
	return d.decode(item)
}

// Get reads with strong consistency. A record flagged with an error
// attribute is treated as missing.
func (d *DynamoStore) Get(ctx context.Context, id string) (*snapshots.Meta, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errs.FromAWS("get", err)
	}
	if len(out.Item) == 0 {
		return nil, errs.NotFoundf("snapshot %s not found", id)
	}
	if _, flagged := out.Item["error"]; flagged {
		return nil, errs.NotFoundf("snapshot %s not found", id)
	}
	return d.decode(out.Item)
}

func (d *DynamoStore) Delete(ctx context.Context, id string) error {
	if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       key(id),
	}); err != nil {
		return errs.FromAWS("delete", err)
	}
	return nil
}

// CreateTables creates the table and waits for it to become active. When
// the table already exists it still waits, then reports the conflict.
func (d *DynamoStore) CreateTables(ctx context.Context) error {
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(10),
			WriteCapacityUnits: aws.Int64(10),
		},
	})
	if err != nil {
		err = errs.FromAWS("create table", err)
		if !errs.Is(err, errs.Conflict) {
			return err
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(d.client)
	if werr := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)}, TableReadyTimeout); werr != nil {
		return errs.Wrap(errs.Connectivity, errs.CodeTransport, werr, "waiting for table %s", d.table)
	}
	return err
}

func (d *DynamoStore) decode(item map[string]types.AttributeValue) (*snapshots.Meta, error) {
	var raw map[string]any
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return nil, fmt.Errorf("decoding snapshot record: %w", err)
	}
	return fromRecord(raw)
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}
