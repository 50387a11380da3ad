package cloud

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Provisioned capacity for tables created by CreateCollection.
const (
	tableReadCapacity  = 5
	tableWriteCapacity = 5
)

// Tables is the DynamoDB table store.
type Tables struct {
	db *dynamodb.Client
}

// Tables returns the table store view.
func (c *Client) Tables() *Tables {
	return &Tables{db: c.dynamo}
}

// ListCollections returns every table name, following pagination.
func (t *Tables) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	p := dynamodb.NewListTablesPaginator(t.db, &dynamodb.ListTablesInput{})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, classify("list tables", err)
		}
		names = append(names, out.TableNames...)
	}
	return names, nil
}

// CreateCollection creates a table with a single string hash key.
func (t *Tables) CreateCollection(ctx context.Context, name, keyField string) error {
	_, err := t.db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(keyField), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(keyField), KeyType: types.KeyTypeHash},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(tableReadCapacity),
			WriteCapacityUnits: aws.Int64(tableWriteCapacity),
		},
	})
	return classify("create table "+name, err)
}

// WaitUntilReady blocks until the table is ACTIVE or timeout elapses.
func (t *Tables) WaitUntilReady(ctx context.Context, name string, timeout time.Duration) error {
	w := dynamodb.NewTableExistsWaiter(t.db)
	err := w.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, timeout)
	return classify("wait for table "+name, err)
}

// Put marshals item with its dynamodbav tags and writes it.
func (t *Tables) Put(ctx context.Context, collection string, item any) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	_, err = t.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(collection),
		Item:      av,
	})
	return classify("put item", err)
}
