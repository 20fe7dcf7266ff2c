package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoAPI is the subset of the DynamoDB client used by the repository
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

const (
	metaSortKey   = "META"
	versionPrefix = "VERSION#"
)

// documentItem is the single-table layout: PK DOC#<id>, SK META
type documentItem struct {
	PK             string   `dynamodbav:"PK"`
	SK             string   `dynamodbav:"SK"`
	Type           string   `dynamodbav:"type"`
	ID             string   `dynamodbav:"id"`
	Name           string   `dynamodbav:"name"`
	Description    string   `dynamodbav:"description"`
	OwnerID        string   `dynamodbav:"ownerId"`
	Status         string   `dynamodbav:"status"`
	CurrentVersion int      `dynamodbav:"currentVersion"`
	ReviewVersion  int      `dynamodbav:"reviewVersion"`
	Remark         *string  `dynamodbav:"remark,omitempty"`
	Chain          Chain    `dynamodbav:"chain"`
	Tracking       Tracking `dynamodbav:"tracking"`
	History        History  `dynamodbav:"history"`
	DueAt          string   `dynamodbav:"dueAt,omitempty"`
	Revision       int64    `dynamodbav:"revision"`
	UploadedAt     string   `dynamodbav:"uploadedAt"`
	UpdatedAt      string   `dynamodbav:"updatedAt"`
}

// versionItem lives next to its document: PK DOC#<id>, SK VERSION#<zero padded number>
type versionItem struct {
	PK            string   `dynamodbav:"PK"`
	SK            string   `dynamodbav:"SK"`
	Type          string   `dynamodbav:"type"`
	ID            string   `dynamodbav:"id"`
	DocumentID    string   `dynamodbav:"documentId"`
	VersionNumber int      `dynamodbav:"versionNumber"`
	FileName      string   `dynamodbav:"fileName"`
	FileSizeBytes int64    `dynamodbav:"fileSizeBytes"`
	FileReference string   `dynamodbav:"fileReference"`
	Summary       *Summary `dynamodbav:"summary,omitempty"`
	UploadedBy    string   `dynamodbav:"uploadedBy"`
	UploadedAt    string   `dynamodbav:"uploadedAt"`
}

type dynamoRepository struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoRepository(client DynamoAPI, tableName string) Repository {
	return &dynamoRepository{client: client, tableName: tableName}
}

func documentPK(id uuid.UUID) string { return "DOC#" + id.String() }

func versionSK(n int) string { return fmt.Sprintf("%s%08d", versionPrefix, n) }

func toDocumentItem(doc *Document) documentItem {
	item := documentItem{
		PK:             documentPK(doc.ID),
		SK:             metaSortKey,
		Type:           "document",
		ID:             doc.ID.String(),
		Name:           doc.Name,
		Description:    doc.Description,
		OwnerID:        doc.OwnerID,
		Status:         string(doc.Status),
		CurrentVersion: doc.CurrentVersion,
		ReviewVersion:  doc.ReviewVersion,
		Remark:         doc.Remark,
		Chain:          doc.Chain,
		Tracking:       doc.Tracking,
		History:        doc.History,
		Revision:       doc.Revision,
		UploadedAt:     formatTime(doc.UploadedAt),
		UpdatedAt:      formatTime(doc.UpdatedAt),
	}
	if doc.DueAt != nil {
		item.DueAt = formatTime(*doc.DueAt)
	}
	return item
}

func toDomainDocument(item *documentItem) (*Document, error) {
	id, err := uuid.Parse(item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document id: %w", err)
	}
	uploadedAt, err := parseTime(item.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse uploadedAt: %w", err)
	}
	updatedAt, err := parseTime(item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updatedAt: %w", err)
	}
	doc := &Document{
		ID:             id,
		Name:           item.Name,
		Description:    item.Description,
		OwnerID:        item.OwnerID,
		Status:         DocumentStatus(item.Status),
		CurrentVersion: item.CurrentVersion,
		ReviewVersion:  item.ReviewVersion,
		Remark:         item.Remark,
		Chain:          item.Chain,
		Tracking:       item.Tracking,
		History:        item.History,
		Revision:       item.Revision,
		UploadedAt:     uploadedAt,
		UpdatedAt:      updatedAt,
	}
	if item.DueAt != "" {
		due, err := parseTime(item.DueAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse dueAt: %w", err)
		}
		doc.DueAt = &due
	}
	return doc, nil
}

func toVersionItem(v *DocumentVersion) versionItem {
	return versionItem{
		PK:            documentPK(v.DocumentID),
		SK:            versionSK(v.VersionNumber),
		Type:          "version",
		ID:            v.ID.String(),
		DocumentID:    v.DocumentID.String(),
		VersionNumber: v.VersionNumber,
		FileName:      v.FileName,
		FileSizeBytes: v.FileSizeBytes,
		FileReference: v.FileReference,
		Summary:       v.Summary,
		UploadedBy:    v.UploadedBy,
		UploadedAt:    formatTime(v.UploadedAt),
	}
}

func toDomainVersion(item *versionItem) (*DocumentVersion, error) {
	id, err := uuid.Parse(item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version id: %w", err)
	}
	docID, err := uuid.Parse(item.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document id: %w", err)
	}
	uploadedAt, err := parseTime(item.UploadedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse uploadedAt: %w", err)
	}
	return &DocumentVersion{
		ID:            id,
		DocumentID:    docID,
		VersionNumber: item.VersionNumber,
		FileName:      item.FileName,
		FileSizeBytes: item.FileSizeBytes,
		FileReference: item.FileReference,
		Summary:       item.Summary,
		UploadedBy:    item.UploadedBy,
		UploadedAt:    uploadedAt,
	}, nil
}

func (r *dynamoRepository) putVersion(version *DocumentVersion) (types.TransactWriteItem, error) {
	av, err := attributevalue.MarshalMap(toVersionItem(version))
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("failed to marshal version item: %w", err)
	}
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: &types.Put{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      cond.Condition(),
		ExpressionAttributeNames: cond.Names(),
	}}, nil
}

func (r *dynamoRepository) CreateDocument(ctx context.Context, doc *Document, version *DocumentVersion) error {
	av, err := attributevalue.MarshalMap(toDocumentItem(doc))
	if err != nil {
		return fmt.Errorf("failed to marshal document item: %w", err)
	}
	cond, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return err
	}
	putVersion, err := r.putVersion(version)
	if err != nil {
		return err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(r.tableName),
				Item:                     av,
				ConditionExpression:      cond.Condition(),
				ExpressionAttributeNames: cond.Names(),
			}},
			putVersion,
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return newWorkflowError(KindStaleState, doc.ID, "document already exists")
		}
		return fmt.Errorf("failed to write document to DynamoDB: %w", err)
	}
	return nil
}

func (r *dynamoRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"PK": documentPK(id), "SK": metaSortKey})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item documentItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document item: %w", err)
	}
	return toDomainDocument(&item)
}

func (r *dynamoRepository) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	cond := expression.Name("type").Equal(expression.Value("document"))
	if filter.OwnerID != "" {
		cond = cond.And(expression.Name("ownerId").Equal(expression.Value(filter.OwnerID)))
	}
	if len(filter.Statuses) > 0 {
		operands := make([]expression.OperandBuilder, len(filter.Statuses))
		for i, s := range filter.Statuses {
			operands[i] = expression.Value(string(s))
		}
		var statusCond expression.ConditionBuilder
		if len(operands) == 1 {
			statusCond = expression.Name("status").Equal(operands[0])
		} else {
			statusCond = expression.Name("status").In(operands[0], operands[1:]...)
		}
		cond = cond.And(statusCond)
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build filter: %w", err)
	}

	var docs []Document
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan DynamoDB table: %w", err)
		}
		var items []documentItem
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document items: %w", err)
		}
		for i := range items {
			doc, err := toDomainDocument(&items[i])
			if err != nil {
				return nil, err
			}
			docs = append(docs, *doc)
		}
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	return docs, nil
}

func (r *dynamoRepository) SaveTransition(ctx context.Context, doc *Document, expectedRevision int64, version *DocumentVersion) error {
	av, err := attributevalue.MarshalMap(toDocumentItem(doc))
	if err != nil {
		return fmt.Errorf("failed to marshal document item: %w", err)
	}
	cond, err := expression.NewBuilder().
		WithCondition(expression.Name("revision").Equal(expression.Value(expectedRevision))).
		Build()
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{{Put: &types.Put{
		TableName:                 aws.String(r.tableName),
		Item:                      av,
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	}}}
	if version != nil {
		putVersion, err := r.putVersion(version)
		if err != nil {
			return err
		}
		items = append(items, putVersion)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if isConditionFailure(err) {
			return newWorkflowError(KindStaleState, doc.ID, "revision %d is no longer current", expectedRevision)
		}
		return fmt.Errorf("failed to write transition to DynamoDB: %w", err)
	}
	return nil
}

func (r *dynamoRepository) ListVersions(ctx context.Context, documentID uuid.UUID) ([]DocumentVersion, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(documentPK(documentID))).
		And(expression.Key("SK").BeginsWith(versionPrefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key condition: %w", err)
	}

	var versions []DocumentVersion
	var startKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(true),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query versions: %w", err)
		}

		var items []versionItem
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal version items: %w", err)
		}
		for i := range items {
			v, err := toDomainVersion(&items[i])
			if err != nil {
				return nil, err
			}
			versions = append(versions, *v)
		}
		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}
	if versions == nil {
		versions = []DocumentVersion{}
	}
	return versions, nil
}

func (r *dynamoRepository) GetVersion(ctx context.Context, documentID uuid.UUID, versionNumber int) (*DocumentVersion, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"PK": documentPK(documentID), "SK": versionSK(versionNumber)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get version from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}
	var item versionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal version item: %w", err)
	}
	return toDomainVersion(&item)
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }
