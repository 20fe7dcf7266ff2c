package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"review-portal/review-portal-backend/internal/documents"
	"review-portal/review-portal-backend/internal/notifications/websocket"
)

type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.SendEmailOutput), args.Error(1)
}

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

func rejectedEvent() documents.Event {
	return documents.Event{
		Kind:         documents.EventDocRejected,
		RecipientID:  "owner",
		DocumentID:   uuid.New(),
		DocumentName: "Budget 2026",
		Version:      2,
		ActorID:      "r1",
		Remark:       "missing signature",
		OccurredAt:   time.Now(),
	}
}

func TestNotifyStoresAndDelivers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ses := new(MockSES)
	ses.On("SendEmail", ctx, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return aws.ToString(in.FromEmailAddress) == "portal@example.com" &&
			len(in.Destination.ToAddresses) == 1 &&
			in.Destination.ToAddresses[0] == "owner@example.com" &&
			aws.ToString(in.Content.Simple.Subject.Data) == "Rejected: Budget 2026"
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil)

	topic := new(MockSNS)
	topic.On("Publish", ctx, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:aws:sns:us-east-1:123:reviews" &&
			aws.ToString(in.MessageAttributes["kind"].StringValue) == string(documents.EventDocRejected)
	})).Return(&sns.PublishOutput{MessageId: aws.String("sns-1")}, nil)

	svc := NewService(store, zap.NewNop(),
		NewEmailChannel(ses, "portal@example.com", DomainResolver("example.com")),
		NewSNSPublisher(topic, "arn:aws:sns:us-east-1:123:reviews"),
	)

	require.NoError(t, svc.Notify(ctx, rejectedEvent()))

	inbox, err := svc.Inbox(ctx, "owner", false, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	n := inbox[0]
	assert.Equal(t, StatusSent, n.Status)
	assert.Equal(t, string(documents.EventDocRejected), n.Kind)
	assert.Contains(t, n.Content, "missing signature")

	deliveries := store.(*memoryStore).deliveries
	require.Len(t, deliveries, 2)
	assert.Equal(t, ChannelEmail, deliveries[0].Channel)
	assert.Equal(t, "ses-1", deliveries[0].ProviderMessageID)
	assert.Equal(t, ChannelSNS, deliveries[1].Channel)
	assert.Equal(t, StatusSent, deliveries[1].Status)

	ses.AssertExpectations(t)
	topic.AssertExpectations(t)
}

func TestNotifyPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ses := new(MockSES)
	ses.On("SendEmail", ctx, mock.Anything).Return(nil, errors.New("throttled"))
	topic := new(MockSNS)
	topic.On("Publish", ctx, mock.Anything).Return(&sns.PublishOutput{MessageId: aws.String("sns-2")}, nil)

	svc := NewService(store, zap.NewNop(),
		NewEmailChannel(ses, "portal@example.com", DomainResolver("example.com")),
		NewSNSPublisher(topic, "arn:aws:sns:us-east-1:123:reviews"),
	)
	require.NoError(t, svc.Notify(ctx, rejectedEvent()))

	deliveries := store.(*memoryStore).deliveries
	require.Len(t, deliveries, 2)
	assert.Equal(t, StatusFailed, deliveries[0].Status)
	assert.Contains(t, deliveries[0].Error, "throttled")

	inbox, err := svc.Inbox(ctx, "owner", false, 10)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, inbox[0].Status)
}

func TestNotifyAllChannelsFail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, zap.NewNop(),
		NewEmailChannel(new(MockSES), "portal@example.com", DomainResolver("")),
	)

	err := svc.Notify(ctx, rejectedEvent())
	require.Error(t, err)

	inbox, err := svc.Inbox(ctx, "owner", false, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, StatusFailed, inbox[0].Status)
}

func TestWebSocketChannelSkipsOfflineRecipients(t *testing.T) {
	ctx := context.Background()
	manager := websocket.NewManager(nil, zap.NewNop())
	defer manager.Close()
	store := NewMemoryStore()
	svc := NewService(store, zap.NewNop(), NewWebSocketChannel(manager))

	require.NoError(t, svc.Notify(ctx, rejectedEvent()))

	deliveries := store.(*memoryStore).deliveries
	require.Len(t, deliveries, 1)
	assert.Equal(t, ChannelWebSocket, deliveries[0].Channel)
	assert.Equal(t, StatusSkipped, deliveries[0].Status)

	inbox, err := svc.Inbox(ctx, "owner", false, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, StatusSent, inbox[0].Status)
}

func TestDeliveryStatus(t *testing.T) {
	assert.Equal(t, StatusSent, deliveryStatus(0, 0))
	assert.Equal(t, StatusSent, deliveryStatus(2, 0))
	assert.Equal(t, StatusPartial, deliveryStatus(2, 1))
	assert.Equal(t, StatusFailed, deliveryStatus(2, 2))
}

func TestInboxAndMarkRead(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), zap.NewNop())

	require.NoError(t, svc.Notify(ctx, rejectedEvent()))
	approved := rejectedEvent()
	approved.Kind = documents.EventDocApproved
	require.NoError(t, svc.Notify(ctx, approved))

	inbox, err := svc.Inbox(ctx, "owner", true, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 2)

	require.NoError(t, svc.MarkRead(ctx, inbox[0].ID, "owner"))
	assert.ErrorIs(t, svc.MarkRead(ctx, inbox[1].ID, "someone-else"), ErrNotFound)
	assert.ErrorIs(t, svc.MarkRead(ctx, uuid.New(), "owner"), ErrNotFound)

	unread, err := svc.Inbox(ctx, "owner", true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, inbox[1].ID, unread[0].ID)
}

func TestRender(t *testing.T) {
	tests := []struct {
		kind    documents.EventKind
		subject string
	}{
		{documents.EventReviewRequested, "Review requested: Budget 2026"},
		{documents.EventTurnReached, "Your review is needed: Budget 2026"},
		{documents.EventReminder, "Overdue review: Budget 2026"},
		{documents.EventDocApproved, "Approved: Budget 2026"},
		{documents.EventDocRejected, "Rejected: Budget 2026"},
	}
	for _, tt := range tests {
		e := rejectedEvent()
		e.Kind = tt.kind
		subject, content := render(e)
		assert.Equal(t, tt.subject, subject)
		assert.NotEmpty(t, content)
	}
}
