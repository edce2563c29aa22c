// internal/workers/communication/dispatch-notification/dispatcher.go
package dispatchnotification

import (
	"context"
	"fmt"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Dispatcher fans a notification out to its channels and recipients.
type Dispatcher struct {
	config    *Config
	ses       SESService
	sns       SNSService
	inbox     InAppStore
	directory RecipientDirectory
	logger    logger.Logger
	now       func() time.Time
}

func NewDispatcher(config *Config, sesClient SESService, snsClient SNSService, inbox InAppStore, directory RecipientDirectory, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		config:    config,
		ses:       sesClient,
		sns:       snsClient,
		inbox:     inbox,
		directory: directory,
		logger:    log,
		now:       time.Now,
	}
}

// Dispatch sends n on every requested channel. A channel failing is reported in the
// result, not as an error; errors are returned only for bad input or a directory failure.
func (d *Dispatcher) Dispatch(ctx context.Context, n models.Notification) (*models.DispatchResult, error) {
	if n.EntityID == "" {
		return nil, errors.NewValidationError("entityId", "is required")
	}
	if len(n.Channels) == 0 {
		return nil, errors.NewValidationError("channels", "at least one channel is required")
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	contacts, err := d.directory.Resolve(ctx, n.EntityID, n.Recipients)
	if err != nil {
		return nil, errors.NewUnavailableError("recipient-directory", err)
	}

	data := map[string]interface{}{
		"entityId": n.EntityID,
		"domain":   string(n.Domain),
		"priority": n.Priority,
	}
	for k, v := range n.Data {
		data[k] = v
	}
	tmpl := templateFor(n.Type)
	subject := n.Subject
	if subject == "" {
		subject = renderTemplate(tmpl.Subject, data)
	}
	body := renderTemplate(tmpl.Body, data)

	result := &models.DispatchResult{NotificationID: n.ID, SentAt: d.now().UTC()}
	for _, ch := range n.Channels {
		res := d.sendChannel(ctx, ch, n, contacts, subject, body)
		if res.Status == models.ChannelFailed {
			d.logger.Error("notification channel failed", map[string]interface{}{
				"notificationId": n.ID,
				"channel":        ch,
				"entityId":       n.EntityID,
				"error":          res.Error,
			})
		}
		result.Channels = append(result.Channels, res)
	}
	return result, nil
}

func (d *Dispatcher) sendChannel(ctx context.Context, ch models.Channel, n models.Notification, contacts []models.Contact, subject, body string) models.ChannelResult {
	res := models.ChannelResult{Channel: ch}

	var (
		enabled bool
		send    func(models.Contact) error
		address func(models.Contact) string
	)
	switch ch {
	case models.ChannelEmail:
		enabled = d.config.EmailEnabled && d.ses != nil
		address = func(c models.Contact) string { return c.Email }
		send = func(c models.Contact) error { return d.sendEmail(ctx, c.Email, subject, body) }
	case models.ChannelSMS:
		enabled = d.config.SMSEnabled && d.sns != nil
		address = func(c models.Contact) string { return c.Phone }
		send = func(c models.Contact) error { return d.sendSMS(ctx, c.Phone, body) }
	case models.ChannelInApp:
		enabled = d.config.InAppEnabled && d.inbox != nil
		address = func(c models.Contact) string { return c.ID }
		send = func(c models.Contact) error { return d.inbox.Insert(ctx, uuid.New().String(), c, n, subject, body) }
	default:
		res.Status = models.ChannelFailed
		res.Error = fmt.Sprintf("unknown channel %q", ch)
		return res
	}
	if !enabled {
		res.Status = models.ChannelDisabled
		return res
	}

	attempted := 0
	var lastErr error
	for _, c := range contacts {
		if address(c) == "" {
			continue
		}
		attempted++
		if err := send(c); err != nil {
			lastErr = err
			continue
		}
		res.Recipients++
	}

	switch {
	case attempted == 0:
		res.Status = models.ChannelSkipped
	case res.Recipients == 0:
		res.Status = models.ChannelFailed
		res.Error = lastErr.Error()
	default:
		res.Status = models.ChannelSent
		if lastErr != nil {
			res.Error = lastErr.Error()
		}
	}
	return res
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := d.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(d.config.FromEmail),
	})
	return err
}

func (d *Dispatcher) sendSMS(ctx context.Context, to, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if d.config.SMSSenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(d.config.SMSSenderID)},
		}
	}
	_, err := d.sns.Publish(ctx, input)
	return err
}

// Status summarises a dispatch result the way job outputs report it.
func Status(r *models.DispatchResult) string {
	sent, failed := 0, 0
	for _, c := range r.Channels {
		switch c.Status {
		case models.ChannelSent:
			sent++
		case models.ChannelFailed:
			failed++
		}
	}
	switch {
	case sent > 0 && failed > 0:
		return StatusPartial
	case sent > 0:
		return StatusSent
	case failed > 0:
		return StatusFailed
	default:
		return StatusDisabled
	}
}
