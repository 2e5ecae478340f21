// Package testing provides test utilities and database setup for testing the delivery engine
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestPage creates an active page in the given workspace
func (tf *TestFixtures) CreateTestPage(workspaceID uint) (*models.Page, error) {
	page := &models.Page{
		WorkspaceID: workspaceID,
		ExternalID:  fmt.Sprintf("page-%d", rand.Int63()),
		Name:        "Test Page",
		AccessToken: "test-access-token",
		IsActive:    utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(page).Error; err != nil {
		return nil, fmt.Errorf("failed to create test page: %w", err)
	}
	return page, nil
}

// CreateTestContact creates a subscribed contact on the given page. The
// lastInbound argument sets the contact's last inbound message time; nil
// means the contact has never messaged the page.
func (tf *TestFixtures) CreateTestContact(page *models.Page, lastInbound *time.Time) (*models.Contact, error) {
	contact := &models.Contact{
		PageID:               page.ID,
		WorkspaceID:          page.WorkspaceID,
		PSID:                 fmt.Sprintf("psid-%d", rand.Int63()),
		Subscribed:           utils.ToPtr(true),
		LastContactMessageAt: lastInbound,
	}
	if err := tf.DB.DB.Create(contact).Error; err != nil {
		return nil, fmt.Errorf("failed to create test contact: %w", err)
	}
	return contact, nil
}

// CreateTestCampaign creates a draft one-time campaign targeting the given
// contacts directly
func (tf *TestFixtures) CreateTestCampaign(workspaceID uint, contactIDs []int64) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UUID:        uuid.New(),
		WorkspaceID: workspaceID,
		Name:        "Test Campaign",
		Content:     "Hello from the test campaign",
		Status:      models.CampaignStatusDraft,
		Audience: models.AudienceSpec{
			Type:       models.AudienceTypeManual,
			ContactIDs: contactIDs,
		},
		Schedule: models.ScheduleSpec{
			Type: models.ScheduleTypeOneTime,
		},
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// CreateTestSegment creates a dynamic segment with the given filter
func (tf *TestFixtures) CreateTestSegment(workspaceID uint, filter models.FilterTree) (*models.Segment, error) {
	segment := &models.Segment{
		WorkspaceID: workspaceID,
		Name:        fmt.Sprintf("Test Segment %d", rand.Intn(10000)),
		Type:        models.SegmentTypeDynamic,
		Filter:      filter,
	}
	if err := tf.DB.DB.Create(segment).Error; err != nil {
		return nil, fmt.Errorf("failed to create test segment: %w", err)
	}
	return segment, nil
}

// CreateTestOTNToken creates an unused OTN token for the contact
func (tf *TestFixtures) CreateTestOTNToken(contact *models.Contact, topic *string) (*models.OTNToken, error) {
	token := &models.OTNToken{
		ContactID: contact.ID,
		PageID:    contact.PageID,
		Token:     fmt.Sprintf("otn-%d", rand.Int63()),
		Topic:     topic,
		IsUsed:    utils.ToPtr(false),
	}
	if err := tf.DB.DB.Create(token).Error; err != nil {
		return nil, fmt.Errorf("failed to create test OTN token: %w", err)
	}
	return token, nil
}

// CreateTestSubscription creates an active recurring subscription for the
// contact on the given topic
func (tf *TestFixtures) CreateTestSubscription(contact *models.Contact, topic string, freq models.NotificationFrequency) (*models.RecurringSubscription, error) {
	sub := &models.RecurringSubscription{
		ContactID: contact.ID,
		PageID:    contact.PageID,
		Topic:     topic,
		Token:     fmt.Sprintf("sub-%d", rand.Int63()),
		Frequency: freq,
		IsActive:  utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create test subscription: %w", err)
	}
	return sub, nil
}
