// internal/workers/communication/dispatch-notification/dispatcher_test.go
package dispatchnotification

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"fleet-compliance/internal/common/errors"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

type sent struct {
	mu     sync.Mutex
	emails []*ses.SendEmailInput
	sms    []*sns.PublishInput
}

func okSES(s *sent) *MockSESService {
	return &MockSESService{SendEmailFunc: func(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.emails = append(s.emails, in)
		return &ses.SendEmailOutput{}, nil
	}}
}

func okSNS(s *sent) *MockSNSService {
	return &MockSNSService{PublishFunc: func(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sms = append(s.sms, in)
		return &sns.PublishOutput{}, nil
	}}
}

func failingSES() *MockSESService {
	return &MockSESService{SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		return nil, stderrors.New("ses throttled")
	}}
}

func failingSNS() *MockSNSService {
	return &MockSNSService{PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
		return nil, stderrors.New("sns unavailable")
	}}
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		EmailEnabled: true,
		SMSEnabled:   true,
		InAppEnabled: true,
		FromEmail:    "compliance@fleet.ph",
		Timeout:      5 * time.Second,
	}
}

func testDirectory() *MemoryDirectory {
	dir := NewMemoryDirectory()
	dir.Add("veh-1", models.Contact{ID: "owner-1", Role: models.RoleVehicleOwner, Email: "owner@fleet.ph", Phone: "+639170000001"})
	dir.Add("veh-1", models.Contact{ID: "ops-1", Role: models.RoleOperationsManager, Email: "ops@fleet.ph"})
	dir.Add("veh-1", models.Contact{ID: "legal-1", Role: models.RoleLegalTeam, Email: "legal@fleet.ph"})
	return dir
}

func createTestNotification(channels ...models.Channel) models.Notification {
	return models.Notification{
		EntityID:   "veh-1",
		Domain:     models.DomainFranchise,
		Type:       TypeComplianceExpiring,
		Channels:   channels,
		Recipients: []models.RecipientRole{models.RoleVehicleOwner, models.RoleOperationsManager},
		Data: map[string]interface{}{
			"daysUntilExpiry": 30,
			"referenceNumber": "TNVS-2021-0042",
			"expiryDate":      "2024-04-01",
			"level":           2,
		},
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestDispatcher_Dispatch(t *testing.T) {
	tests := []struct {
		name     string
		config   func() *Config
		ses      func(*sent) SESService
		sns      func(*sent) SNSService
		channels []models.Channel
		want     map[models.Channel]models.ChannelStatus
		status   string
		emails   int
		sms      int
	}{
		{
			name:     "all channels sent",
			config:   createTestConfig,
			ses:      func(s *sent) SESService { return okSES(s) },
			sns:      func(s *sent) SNSService { return okSNS(s) },
			channels: []models.Channel{models.ChannelEmail, models.ChannelSMS, models.ChannelInApp},
			want: map[models.Channel]models.ChannelStatus{
				models.ChannelEmail: models.ChannelSent,
				models.ChannelSMS:   models.ChannelSent,
				models.ChannelInApp: models.ChannelSent,
			},
			status: StatusSent,
			emails: 2,
			sms:    1,
		},
		{
			name: "sms disabled",
			config: func() *Config {
				c := createTestConfig()
				c.SMSEnabled = false
				return c
			},
			ses:      func(s *sent) SESService { return okSES(s) },
			sns:      func(s *sent) SNSService { return okSNS(s) },
			channels: []models.Channel{models.ChannelEmail, models.ChannelSMS},
			want: map[models.Channel]models.ChannelStatus{
				models.ChannelEmail: models.ChannelSent,
				models.ChannelSMS:   models.ChannelDisabled,
			},
			status: StatusSent,
			emails: 2,
		},
		{
			name:     "email fails sms sent",
			config:   createTestConfig,
			ses:      func(*sent) SESService { return failingSES() },
			sns:      func(s *sent) SNSService { return okSNS(s) },
			channels: []models.Channel{models.ChannelEmail, models.ChannelSMS},
			want: map[models.Channel]models.ChannelStatus{
				models.ChannelEmail: models.ChannelFailed,
				models.ChannelSMS:   models.ChannelSent,
			},
			status: StatusPartial,
			sms:    1,
		},
		{
			name:     "every channel fails",
			config:   createTestConfig,
			ses:      func(*sent) SESService { return failingSES() },
			sns:      func(*sent) SNSService { return failingSNS() },
			channels: []models.Channel{models.ChannelEmail, models.ChannelSMS},
			want: map[models.Channel]models.ChannelStatus{
				models.ChannelEmail: models.ChannelFailed,
				models.ChannelSMS:   models.ChannelFailed,
			},
			status: StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &sent{}
			dir := testDirectory()
			d := NewDispatcher(tt.config(), tt.ses(s), tt.sns(s), dir, dir, logger.NewTestLogger(t))

			result, err := d.Dispatch(context.Background(), createTestNotification(tt.channels...))
			require.NoError(t, err)
			assert.NotEmpty(t, result.NotificationID)

			got := map[models.Channel]models.ChannelStatus{}
			for _, c := range result.Channels {
				got[c.Channel] = c.Status
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.status, Status(result))
			assert.Len(t, s.emails, tt.emails)
			assert.Len(t, s.sms, tt.sms)
		})
	}
}

func TestDispatcher_RendersTemplate(t *testing.T) {
	s := &sent{}
	dir := testDirectory()
	d := NewDispatcher(createTestConfig(), okSES(s), okSNS(s), dir, dir, logger.NewTestLogger(t))

	_, err := d.Dispatch(context.Background(), createTestNotification(models.ChannelEmail, models.ChannelInApp))
	require.NoError(t, err)

	require.NotEmpty(t, s.emails)
	assert.Equal(t, "franchise compliance expiring in 30 days", *s.emails[0].Message.Subject.Data)
	assert.Equal(t, "compliance@fleet.ph", *s.emails[0].Source)

	inbox := dir.Inbox("owner-1")
	require.Len(t, inbox, 1)
	assert.Contains(t, inbox[0], "TNVS-2021-0042")
	assert.Contains(t, inbox[0], "Escalation level 2")
	assert.Empty(t, dir.Inbox("legal-1"), "legal team was not a recipient")
}

func TestDispatcher_NoContactsIsSkipped(t *testing.T) {
	s := &sent{}
	dir := NewMemoryDirectory()
	d := NewDispatcher(createTestConfig(), okSES(s), okSNS(s), dir, dir, logger.NewTestLogger(t))

	result, err := d.Dispatch(context.Background(), createTestNotification(models.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, models.ChannelSkipped, result.Channels[0].Status)
	assert.False(t, result.Delivered())
}

func TestDispatcher_Validation(t *testing.T) {
	dir := testDirectory()
	d := NewDispatcher(createTestConfig(), nil, nil, dir, dir, logger.NewTestLogger(t))

	_, err := d.Dispatch(context.Background(), models.Notification{Channels: []models.Channel{models.ChannelEmail}})
	assert.True(t, errors.IsValidation(err))

	_, err = d.Dispatch(context.Background(), models.Notification{EntityID: "veh-1"})
	assert.True(t, errors.IsValidation(err))
}

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		data map[string]interface{}
		want string
	}{
		{name: "string and int", tmpl: "{{a}} in {{b}} days", data: map[string]interface{}{"a": "CTPL", "b": 7}, want: "CTPL in 7 days"},
		{name: "float trimmed", tmpl: "PHP {{fine}}", data: map[string]interface{}{"fine": 300.0}, want: "PHP 300"},
		{name: "float with cents", tmpl: "PHP {{fine}}", data: map[string]interface{}{"fine": 312.5}, want: "PHP 312.5"},
		{name: "missing placeholder removed", tmpl: "Hello {{name}}!", data: nil, want: "Hello !"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderTemplate(tt.tmpl, tt.data))
		})
	}
}

func TestPostgresRecipientDirectory_Resolve(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT contact_id, role, name, email, phone FROM recipients`).
		WithArgs("veh-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"contact_id", "role", "name", "email", "phone"}).
			AddRow("owner-1", "vehicle_owner", "Juan dela Cruz", "juan@fleet.ph", "+639170000001"))

	contacts, err := NewPostgresRecipientDirectory(db).Resolve(context.Background(), "veh-1",
		[]models.RecipientRole{models.RoleVehicleOwner})
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, models.RoleVehicleOwner, contacts[0].Role)
	assert.Equal(t, "juan@fleet.ph", contacts[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInAppStore_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO in_app_notifications`).
		WithArgs("n-1", "owner-1", "veh-1", TypeComplianceExpired, "subject", "body").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPostgresInAppStore(db).Insert(context.Background(), "n-1",
		models.Contact{ID: "owner-1"},
		models.Notification{EntityID: "veh-1", Type: TypeComplianceExpired}, "subject", "body")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute(t *testing.T) {
	dir := testDirectory()

	d := NewDispatcher(createTestConfig(), failingSES(), failingSNS(), nil, dir, logger.NewTestLogger(t))
	h := NewHandler(createTestConfig(), d, logger.NewTestLogger(t))
	_, err := h.Execute(context.Background(), &Input{Notification: createTestNotification(models.ChannelEmail)})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotificationSendFailed, errors.CodeOf(err))

	s := &sent{}
	d = NewDispatcher(createTestConfig(), okSES(s), okSNS(s), dir, dir, logger.NewTestLogger(t))
	h = NewHandler(createTestConfig(), d, logger.NewTestLogger(t))
	out, err := h.Execute(context.Background(), &Input{Notification: createTestNotification(models.ChannelEmail)})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, out.Status)
	assert.NotEmpty(t, out.SentAt)
}

func TestTemplateFor_Aliases(t *testing.T) {
	assert.Equal(t, templates[TypeComplianceExpired], templateFor("franchise_expired"))
	assert.Equal(t, templates[TypeComplianceExpiring], templateFor("insurance_expiry_critical"))
	assert.Equal(t, templates[TypeComplianceAlert], templateFor("unknown"))
}
