// Package notify tells operators about stores that lost their auditor.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"audit-planner/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Disruption kinds.
const (
	KindUnassigned = "UNASSIGNED"
	KindDisrupted  = "DISRUPTED"
	KindClosed     = "STORE_CLOSED"
)

// Disruption describes a store whose plan was removed or could not be
// re-planned.
type Disruption struct {
	Kind      string `json:"kind"`
	PlanID    int64  `json:"planId"`
	StoreID   int64  `json:"storeId"`
	AuditorID int64  `json:"auditorId"`
	Reason    string `json:"reason,omitempty"`
}

func (d Disruption) Subject() string {
	return fmt.Sprintf("Audit plan %d for store %d: %s", d.PlanID, d.StoreID, d.Kind)
}

func (d Disruption) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Store %d lost auditor %d (plan %d).\n", d.StoreID, d.AuditorID, d.PlanID)
	fmt.Fprintf(&b, "Outcome: %s\n", d.Kind)
	if d.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", d.Reason)
	}
	return b.String()
}

type Notifier interface {
	NotifyDisruption(ctx context.Context, d Disruption) error
}

// Nop drops notifications.
type Nop struct{}

func (Nop) NotifyDisruption(context.Context, Disruption) error { return nil }

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes a JSON message per disruption to one topic.
type SNSNotifier struct {
	client   SNSService
	topicARN string
	logger   logger.Logger
}

func NewSNSNotifier(client SNSService, topicARN string, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{client: client, topicARN: topicARN, logger: logger.Component(log, "notify")}
}

func (n *SNSNotifier) NotifyDisruption(ctx context.Context, d Disruption) error {
	msg, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal disruption: %w", err)
	}
	out, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(d.Subject()),
		Message:  aws.String(string(msg)),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	n.logger.Debug("disruption published", map[string]interface{}{
		"storeId":   d.StoreID,
		"messageId": aws.ToString(out.MessageId),
	})
	return nil
}

// SESNotifier emails a disruption to a fixed recipient list.
type SESNotifier struct {
	client     SESService
	from       string
	recipients []string
	logger     logger.Logger
}

func NewSESNotifier(client SESService, from string, recipients []string, log logger.Logger) *SESNotifier {
	return &SESNotifier{client: client, from: from, recipients: recipients, logger: logger.Component(log, "notify")}
}

func (n *SESNotifier) NotifyDisruption(ctx context.Context, d Disruption) error {
	if len(n.recipients) == 0 {
		return nil
	}
	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.from),
		Destination: &types.Destination{ToAddresses: n.recipients},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(d.Subject())},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(d.Body())},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	n.logger.Debug("disruption emailed", map[string]interface{}{
		"storeId":    d.StoreID,
		"recipients": len(n.recipients),
	})
	return nil
}
