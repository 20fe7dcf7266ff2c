package documents

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeTable is a single-table DynamoDB stand-in. Conditions are not
// evaluated; tests that need a failed condition use MockDynamoAPI.
type fakeTable struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	queries  int
}

func newFakeTable(pageSize int) *fakeTable {
	return &fakeTable{items: make(map[string]map[string]types.AttributeValue), pageSize: pageSize}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func tableKey(item map[string]types.AttributeValue) string {
	return stringAttr(item, "PK") + "|" + stringAttr(item, "SK")
}

func (f *fakeTable) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[tableKey(params.Key)]}, nil
}

func (f *fakeTable) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range params.TransactItems {
		if item.Put != nil {
			f.items[tableKey(item.Put.Item)] = item.Put.Item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// Query serves the PK + begins_with(SK) shape, one page of pageSize items at a time
func (f *fakeTable) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	var pk, prefix string
	for _, v := range params.ExpressionAttributeValues {
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		if strings.HasPrefix(s.Value, "DOC#") {
			pk = s.Value
		} else {
			prefix = s.Value
		}
	}

	var keys []string
	for key, item := range f.items {
		if stringAttr(item, "PK") == pk && strings.HasPrefix(stringAttr(item, "SK"), prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if params.ExclusiveStartKey != nil {
		after := tableKey(params.ExclusiveStartKey)
		for start < len(keys) && keys[start] <= after {
			start++
		}
	}
	end := len(keys)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}

	out := &dynamodb.QueryOutput{}
	for _, key := range keys[start:end] {
		out.Items = append(out.Items, f.items[key])
	}
	if end < len(keys) {
		last := f.items[keys[end-1]]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
	}
	return out, nil
}

func (f *fakeTable) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		if stringAttr(item, "type") == "document" {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

type MockDynamoAPI struct {
	mock.Mock
}

func (m *MockDynamoAPI) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.GetItemOutput), args.Error(1)
}

func (m *MockDynamoAPI) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.QueryOutput), args.Error(1)
}

func (m *MockDynamoAPI) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.ScanOutput), args.Error(1)
}

func (m *MockDynamoAPI) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.TransactWriteItemsOutput), args.Error(1)
}

func reviewedDocument(t *testing.T) (*Document, *DocumentVersion) {
	t.Helper()
	w := NewWorkflowService()
	doc := inReview(t, w)
	_, err := w.Reject(doc, "r1", "wrong totals", testNow)
	require.NoError(t, err)
	v2 := &DocumentVersion{
		ID:            uuid.New(),
		DocumentID:    doc.ID,
		VersionNumber: 2,
		FileName:      "report-v2.pdf",
		FileSizeBytes: 42,
		FileReference: "s3://bucket/documents/" + doc.ID.String() + "/v2/x/report-v2.pdf",
		Summary:       &Summary{Text: "fixed totals", Tags: []string{"finance"}},
		UploadedBy:    "owner",
		UploadedAt:    testNow,
	}
	_, err = w.Reupload(doc, "owner", v2, testNow)
	require.NoError(t, err)
	due := testNow.Add(72 * time.Hour)
	_, err = w.Submit(doc, "owner", twoReviewerChain(), testNow)
	require.NoError(t, err)
	doc.DueAt = &due
	return doc, v2
}

func TestDynamoRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	table := newFakeTable(0)
	repo := NewDynamoRepository(table, "documents")

	doc := draftDocument()
	doc.UploadedAt = testNow
	doc.UpdatedAt = testNow
	v1 := &DocumentVersion{
		ID:            uuid.New(),
		DocumentID:    doc.ID,
		VersionNumber: 1,
		FileName:      "report.pdf",
		FileReference: "s3://bucket/documents/" + doc.ID.String() + "/v1/x/report.pdf",
		UploadedBy:    "owner",
		UploadedAt:    testNow,
	}
	require.NoError(t, repo.CreateDocument(ctx, doc, v1))

	reviewed, v2 := reviewedDocument(t)
	reviewed.ID = doc.ID
	v2.DocumentID = doc.ID
	reviewed.UploadedAt = testNow
	reviewed.Revision = doc.Revision + 1
	require.NoError(t, repo.SaveTransition(ctx, reviewed, doc.Revision, v2))

	got, err := repo.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusSubmitted, got.Status)
	assert.Equal(t, 2, got.CurrentVersion)
	assert.Equal(t, reviewed.Revision, got.Revision)
	require.NotNil(t, got.DueAt)
	assert.True(t, got.DueAt.Equal(*reviewed.DueAt))
	assert.Equal(t, reviewed.Chain, got.Chain)

	require.Len(t, got.Tracking, 3)
	assert.Equal(t, "r1", got.Tracking[1].ReviewerID)
	assert.Equal(t, StepPending, got.Tracking[1].Status)
	assert.True(t, got.Tracking[0].IsSelf)

	require.Len(t, got.History, 1)
	cycle := got.History[0]
	assert.Equal(t, StatusRejected, cycle.Outcome)
	require.NotNil(t, cycle.Remark)
	assert.Equal(t, "wrong totals", *cycle.Remark)
	require.NotNil(t, cycle.Tracking[1].Timestamp)
	assert.True(t, cycle.Tracking[1].Timestamp.Equal(testNow))

	version, err := repo.GetVersion(ctx, doc.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, v2.ID, version.ID)
	assert.Equal(t, v2.Summary, version.Summary)

	missing, err := repo.GetDocumentByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
	missingVersion, err := repo.GetVersion(ctx, doc.ID, 9)
	require.NoError(t, err)
	assert.Nil(t, missingVersion)

	docs, err := repo.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
}

func TestDynamoRepositoryListVersionsFollowsPages(t *testing.T) {
	ctx := context.Background()
	table := newFakeTable(2)
	repo := NewDynamoRepository(table, "documents")

	doc := draftDocument()
	doc.UploadedAt = testNow
	doc.UpdatedAt = testNow
	for n := 1; n <= 5; n++ {
		v := &DocumentVersion{
			ID:            uuid.New(),
			DocumentID:    doc.ID,
			VersionNumber: n,
			FileName:      "report.pdf",
			UploadedBy:    "owner",
			UploadedAt:    testNow,
		}
		if n == 1 {
			require.NoError(t, repo.CreateDocument(ctx, doc, v))
			continue
		}
		require.NoError(t, repo.SaveTransition(ctx, doc, doc.Revision, v))
	}

	versions, err := repo.ListVersions(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 5)
	for i, v := range versions {
		assert.Equal(t, i+1, v.VersionNumber)
	}
	assert.Equal(t, 3, table.queries)
}

func TestDynamoRepositoryConditionFailures(t *testing.T) {
	ctx := context.Background()
	doc := draftDocument()
	doc.UploadedAt = testNow
	doc.UpdatedAt = testNow

	canceled := &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")},
			{Code: aws.String("None")},
		},
	}

	client := new(MockDynamoAPI)
	client.On("TransactWriteItems", ctx, mock.MatchedBy(func(in *dynamodb.TransactWriteItemsInput) bool {
		put := in.TransactItems[0].Put
		return aws.ToString(put.TableName) == "documents" &&
			strings.Contains(aws.ToString(put.ConditionExpression), "=")
	})).Return(nil, canceled).Once()
	client.On("TransactWriteItems", ctx, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{}).Once()
	client.On("TransactWriteItems", ctx, mock.Anything).Return(nil, errors.New("throttled")).Once()

	repo := NewDynamoRepository(client, "documents")

	err := repo.SaveTransition(ctx, doc, 3, nil)
	assert.ErrorIs(t, err, ErrStaleState)
	assert.Contains(t, err.Error(), "revision 3")

	err = repo.CreateDocument(ctx, doc, &DocumentVersion{ID: uuid.New(), DocumentID: doc.ID, VersionNumber: 1, UploadedAt: testNow})
	assert.ErrorIs(t, err, ErrStaleState)

	err = repo.SaveTransition(ctx, doc, 3, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStaleState))

	client.AssertExpectations(t)
}

func TestIsConditionFailure(t *testing.T) {
	assert.True(t, isConditionFailure(&types.ConditionalCheckFailedException{}))
	assert.True(t, isConditionFailure(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
	}))
	assert.False(t, isConditionFailure(&types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("TransactionConflict")}},
	}))
	assert.False(t, isConditionFailure(errors.New("boom")))
}
