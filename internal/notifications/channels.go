package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"review-portal/review-portal-backend/internal/notifications/websocket"
)

// Channel delivers a stored notification. The returned id is the provider's
// message id when there is one.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *Notification) (string, error)
}

type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// AddressResolver turns an employee id into an email address
type AddressResolver func(employeeID string) (string, bool)

// DomainResolver addresses employees as <id>@domain
func DomainResolver(domain string) AddressResolver {
	return func(employeeID string) (string, bool) {
		if domain == "" || employeeID == "" {
			return "", false
		}
		return employeeID + "@" + domain, true
	}
}

// EmailChannel sends notifications through SES
type EmailChannel struct {
	client  SESAPI
	from    string
	resolve AddressResolver
}

func NewEmailChannel(client SESAPI, from string, resolve AddressResolver) *EmailChannel {
	return &EmailChannel{client: client, from: from, resolve: resolve}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Send(ctx context.Context, n *Notification) (string, error) {
	to, ok := c.resolve(n.RecipientID)
	if !ok {
		return "", fmt.Errorf("no email address for %s", n.RecipientID)
	}
	out, err := c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(n.Subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(n.Content)},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// SNSPublisher fans each notification out to an SNS topic for downstream consumers
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

func NewSNSPublisher(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) Name() string { return ChannelSNS }

func (p *SNSPublisher) Send(ctx context.Context, n *Notification) (string, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(n.Subject),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.Kind),
			},
			"recipient_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(n.RecipientID),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sns publish: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// WebSocketChannel pushes to the recipient's open browser sessions
type WebSocketChannel struct {
	manager *websocket.Manager
}

func NewWebSocketChannel(manager *websocket.Manager) *WebSocketChannel {
	return &WebSocketChannel{manager: manager}
}

func (c *WebSocketChannel) Name() string { return ChannelWebSocket }

func (c *WebSocketChannel) Send(ctx context.Context, n *Notification) (string, error) {
	if !c.manager.IsConnected(n.RecipientID) {
		return "", errNotConnected
	}
	data := map[string]interface{}{}
	if len(n.Data) > 0 {
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return "", err
		}
	}
	data["notification_id"] = n.ID.String()
	data["subject"] = n.Subject
	data["content"] = n.Content

	return "", c.manager.SendToUser(n.RecipientID, websocket.Message{
		Type:      websocket.MessageTypeNotification,
		Data:      data,
		Timestamp: n.CreatedAt,
	})
}
