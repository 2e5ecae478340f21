package businessflow

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/repository"
	"github.com/pagepulse/pagepulse/utils"
)

// In-memory repository fakes for flow tests. Only the behavior the flows
// exercise is implemented; unused base methods return zero values.

type mockOTNTokenRepo struct {
	mu     sync.Mutex
	tokens []*models.OTNToken
}

func (m *mockOTNTokenRepo) ByID(ctx context.Context, id uint) (*models.OTNToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (m *mockOTNTokenRepo) ByFilter(ctx context.Context, filter models.OTNTokenFilter, orderBy string, limit, offset int) ([]*models.OTNToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.OTNToken
	for _, t := range m.tokens {
		if filter.ContactID != nil && t.ContactID != *filter.ContactID {
			continue
		}
		if filter.PageID != nil && t.PageID != *filter.PageID {
			continue
		}
		if filter.IsUsed != nil && utils.IsTrue(t.IsUsed) != *filter.IsUsed {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *mockOTNTokenRepo) Save(ctx context.Context, entity *models.OTNToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entity.ID = uint(len(m.tokens) + 1)
	m.tokens = append(m.tokens, entity)
	return nil
}

func (m *mockOTNTokenRepo) SaveBatch(ctx context.Context, entities []*models.OTNToken) error {
	for _, e := range entities {
		if err := m.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockOTNTokenRepo) Update(ctx context.Context, entity *models.OTNToken) error { return nil }

func (m *mockOTNTokenRepo) Count(ctx context.Context, filter models.OTNTokenFilter) (int64, error) {
	list, _ := m.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (m *mockOTNTokenRepo) UsableByContact(ctx context.Context, contactID int64, pageID uint, now time.Time) (*models.OTNToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ContactID == contactID && t.PageID == pageID && t.IsUsable(now) {
			return t, nil
		}
	}
	return nil, nil
}

func (m *mockOTNTokenRepo) Consume(ctx context.Context, id uint, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID != id {
			continue
		}
		if utils.IsTrue(t.IsUsed) {
			return false, nil
		}
		t.IsUsed = utils.ToPtr(true)
		t.UsedAt = &at
		return true, nil
	}
	return false, nil
}

type mockSubscriptionRepo struct {
	mu   sync.Mutex
	subs []*models.RecurringSubscription
}

func (m *mockSubscriptionRepo) ByID(ctx context.Context, id uint) (*models.RecurringSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (m *mockSubscriptionRepo) ByFilter(ctx context.Context, filter models.RecurringSubscriptionFilter, orderBy string, limit, offset int) ([]*models.RecurringSubscription, error) {
	return nil, nil
}

func (m *mockSubscriptionRepo) Save(ctx context.Context, entity *models.RecurringSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entity.ID = uint(len(m.subs) + 1)
	m.subs = append(m.subs, entity)
	return nil
}

func (m *mockSubscriptionRepo) SaveBatch(ctx context.Context, entities []*models.RecurringSubscription) error {
	for _, e := range entities {
		if err := m.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockSubscriptionRepo) Update(ctx context.Context, entity *models.RecurringSubscription) error {
	return nil
}

func (m *mockSubscriptionRepo) Count(ctx context.Context, filter models.RecurringSubscriptionFilter) (int64, error) {
	return int64(len(m.subs)), nil
}

func (m *mockSubscriptionRepo) ActiveByContact(ctx context.Context, contactID int64, pageID uint, topic *string) (*models.RecurringSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ContactID != contactID || s.PageID != pageID || !utils.IsTrue(s.IsActive) {
			continue
		}
		if topic != nil && s.Topic != *topic {
			continue
		}
		return s, nil
	}
	return nil, nil
}

func (m *mockSubscriptionRepo) AdvanceLastSent(ctx context.Context, id uint, prev *time.Time, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID != id {
			continue
		}
		if (s.LastSentAt == nil) != (prev == nil) {
			return false, nil
		}
		if s.LastSentAt != nil && !s.LastSentAt.Equal(*prev) {
			return false, nil
		}
		s.LastSentAt = &at
		s.SendCount++
		return true, nil
	}
	return false, nil
}

func (m *mockSubscriptionRepo) Deactivate(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.Token == token {
			s.IsActive = utils.ToPtr(false)
		}
	}
	return nil
}

type mockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{campaigns: make(map[uint]*models.Campaign)}
}

func (m *mockCampaignRepo) add(c *models.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = uint(len(m.campaigns) + 1)
	}
	m.campaigns[c.ID] = c
}

func (m *mockCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaigns[id], nil
}

func (m *mockCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return nil, nil
}

func (m *mockCampaignRepo) Save(ctx context.Context, entity *models.Campaign) error {
	m.add(entity)
	return nil
}

func (m *mockCampaignRepo) SaveBatch(ctx context.Context, entities []*models.Campaign) error {
	return nil
}

func (m *mockCampaignRepo) Update(ctx context.Context, entity *models.Campaign) error {
	m.add(entity)
	return nil
}

func (m *mockCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	return int64(len(m.campaigns)), nil
}

func (m *mockCampaignRepo) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.campaigns {
		if c.UUID.String() == uuid {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockCampaignRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	return nil, nil
}

func (m *mockCampaignRepo) ListByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error) {
	return nil, nil
}

func (m *mockCampaignRepo) TransitionStatus(ctx context.Context, id uint, from, to models.CampaignStatus, extra map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	for column, value := range extra {
		switch column {
		case "started_at":
			if at, ok := value.(time.Time); ok {
				c.StartedAt = &at
			}
		case "completed_at":
			if at, ok := value.(time.Time); ok {
				c.CompletedAt = &at
			}
		case "scheduled_at":
			if at, ok := value.(time.Time); ok {
				c.ScheduledAt = &at
			}
		case "total_recipients":
			if n, ok := value.(int64); ok {
				c.TotalRecipients = n
			}
		}
	}
	return true, nil
}

func (m *mockCampaignRepo) IncrementCounters(ctx context.Context, id uint, deltas repository.CounterDeltas) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil
	}
	c.TotalRecipients += deltas.TotalRecipients
	c.SentCount += deltas.Sent
	c.DeliveredCount += deltas.Delivered
	c.FailedCount += deltas.Failed
	c.BlockedCount += deltas.Blocked
	c.OpenedCount += deltas.Opened
	c.ClickedCount += deltas.Clicked
	c.RepliedCount += deltas.Replied
	c.UnsubscribedCount += deltas.Unsubscribed
	return nil
}

func (m *mockCampaignRepo) UpdateVariants(ctx context.Context, id uint, variants models.ABVariants) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[id]; ok {
		c.Variants = variants
	}
	return nil
}

type mockRunRepo struct {
	mu   sync.Mutex
	runs map[uint]*models.CampaignRun
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[uint]*models.CampaignRun)}
}

func (m *mockRunRepo) add(r *models.CampaignRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = uint(len(m.runs) + 1)
	}
	m.runs[r.ID] = r
}

func (m *mockRunRepo) ByID(ctx context.Context, id uint) (*models.CampaignRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id], nil
}

func (m *mockRunRepo) ByFilter(ctx context.Context, filter models.CampaignRunFilter, orderBy string, limit, offset int) ([]*models.CampaignRun, error) {
	return nil, nil
}

func (m *mockRunRepo) Save(ctx context.Context, entity *models.CampaignRun) error {
	m.add(entity)
	return nil
}

func (m *mockRunRepo) SaveBatch(ctx context.Context, entities []*models.CampaignRun) error {
	return nil
}

func (m *mockRunRepo) Update(ctx context.Context, entity *models.CampaignRun) error { return nil }

func (m *mockRunRepo) Count(ctx context.Context, filter models.CampaignRunFilter) (int64, error) {
	return int64(len(m.runs)), nil
}

func (m *mockRunRepo) LatestByCampaign(ctx context.Context, campaignID uint) (*models.CampaignRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.CampaignRun
	for _, r := range m.runs {
		if r.CampaignID != campaignID {
			continue
		}
		if latest == nil || r.Seq > latest.Seq {
			latest = r
		}
	}
	return latest, nil
}

func (m *mockRunRepo) CountByCampaign(ctx context.Context, campaignID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.runs {
		if r.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (m *mockRunRepo) UpdateCursor(ctx context.Context, id uint, lastContactID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.LastContactID = &lastContactID
	}
	return nil
}

func (m *mockRunRepo) UpdateStatistics(ctx context.Context, id uint, stats json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.Statistics = stats
	}
	return nil
}

func (m *mockRunRepo) MarkFinished(ctx context.Context, id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.FinishedAt = &at
	}
	return nil
}

type mockSentMessageRepo struct {
	mu       sync.Mutex
	messages []*models.SentMessage
}

func (m *mockSentMessageRepo) ByID(ctx context.Context, id uint) (*models.SentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, nil
}

func (m *mockSentMessageRepo) ByFilter(ctx context.Context, filter models.SentMessageFilter, orderBy string, limit, offset int) ([]*models.SentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SentMessage
	for _, msg := range m.messages {
		if filter.CampaignRunID != nil && msg.CampaignRunID != *filter.CampaignRunID {
			continue
		}
		if filter.CampaignID != nil && msg.CampaignID != *filter.CampaignID {
			continue
		}
		if filter.Status != nil && msg.Status != *filter.Status {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (m *mockSentMessageRepo) Save(ctx context.Context, entity *models.SentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.CampaignRunID == entity.CampaignRunID && msg.ContactID == entity.ContactID {
			return ErrOutcomeAlreadySet
		}
	}
	entity.ID = uint(len(m.messages) + 1)
	m.messages = append(m.messages, entity)
	return nil
}

func (m *mockSentMessageRepo) SaveBatch(ctx context.Context, entities []*models.SentMessage) error {
	for _, e := range entities {
		if err := m.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockSentMessageRepo) Update(ctx context.Context, entity *models.SentMessage) error {
	return nil
}

func (m *mockSentMessageRepo) Count(ctx context.Context, filter models.SentMessageFilter) (int64, error) {
	list, _ := m.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (m *mockSentMessageRepo) ByRunAndContact(ctx context.Context, runID uint, contactID int64) (*models.SentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.CampaignRunID == runID && msg.ContactID == contactID {
			return msg, nil
		}
	}
	return nil, nil
}

func (m *mockSentMessageRepo) ByTrackingID(ctx context.Context, trackingID string) (*models.SentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.TrackingID == trackingID {
			return msg, nil
		}
	}
	return nil, nil
}

func (m *mockSentMessageRepo) MarkOutcome(ctx context.Context, runID uint, contactID int64, status models.DeliveryStatus, platformMessageID, sendErr *string, attempts int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.CampaignRunID != runID || msg.ContactID != contactID {
			continue
		}
		if msg.Status.IsTerminal() {
			return false, nil
		}
		msg.Status = status
		msg.PlatformMessageID = platformMessageID
		msg.Error = sendErr
		msg.Attempts = attempts
		return true, nil
	}
	return false, nil
}

func (m *mockSentMessageRepo) SetEngagement(ctx context.Context, trackingID string, column string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.TrackingID != trackingID {
			continue
		}
		switch column {
		case "delivered_at":
			msg.DeliveredAt = &at
		case "opened_at":
			msg.OpenedAt = &at
		case "clicked_at":
			msg.ClickedAt = &at
		case "replied_at":
			msg.RepliedAt = &at
		}
	}
	return nil
}

func (m *mockSentMessageRepo) ListEngagedContacts(ctx context.Context, runID uint, condition models.DripCondition) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for _, msg := range m.messages {
		if msg.CampaignRunID != runID || msg.Status != models.DeliveryStatusSent {
			continue
		}
		switch condition {
		case models.DripConditionOpened:
			if msg.OpenedAt == nil {
				continue
			}
		case models.DripConditionClicked:
			if msg.ClickedAt == nil {
				continue
			}
		case models.DripConditionReplied:
			if msg.RepliedAt == nil {
				continue
			}
		}
		out = append(out, msg.ContactID)
	}
	return out, nil
}

func (m *mockSentMessageRepo) CountTerminalByRun(ctx context.Context, runID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages {
		if msg.CampaignRunID == runID && msg.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

type mockContactRepo struct {
	mu       sync.Mutex
	contacts map[int64]*models.Contact
}

func newMockContactRepo() *mockContactRepo {
	return &mockContactRepo{contacts: make(map[int64]*models.Contact)}
}

func (m *mockContactRepo) add(c *models.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.ID] = c
}

func (m *mockContactRepo) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	return m.ByContactID(ctx, int64(id))
}

func (m *mockContactRepo) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	return nil, nil
}

func (m *mockContactRepo) Save(ctx context.Context, entity *models.Contact) error {
	m.add(entity)
	return nil
}

func (m *mockContactRepo) SaveBatch(ctx context.Context, entities []*models.Contact) error {
	return nil
}

func (m *mockContactRepo) Update(ctx context.Context, entity *models.Contact) error {
	m.add(entity)
	return nil
}

func (m *mockContactRepo) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	return int64(len(m.contacts)), nil
}

func (m *mockContactRepo) ByContactID(ctx context.Context, id int64) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contacts[id], nil
}

func (m *mockContactRepo) ListByIDs(ctx context.Context, ids []int64) ([]*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Contact
	for _, id := range ids {
		if c, ok := m.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockContactRepo) ListSubscribedByWorkspace(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.Contact, error) {
	return m.listSubscribed(func(c *models.Contact) bool {
		return c.WorkspaceID == workspaceID
	}, limit, offset), nil
}

func (m *mockContactRepo) ListSubscribedByPages(ctx context.Context, pageIDs []uint, limit, offset int) ([]*models.Contact, error) {
	return m.listSubscribed(func(c *models.Contact) bool {
		for _, id := range pageIDs {
			if c.PageID == id {
				return true
			}
		}
		return false
	}, limit, offset), nil
}

func (m *mockContactRepo) listSubscribed(match func(*models.Contact) bool, limit, offset int) []*models.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Contact
	for _, c := range m.contacts {
		if c.IsSubscribed() && match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type mockSegmentRepo struct {
	mu       sync.Mutex
	segments map[uint]*models.Segment
}

func newMockSegmentRepo() *mockSegmentRepo {
	return &mockSegmentRepo{segments: make(map[uint]*models.Segment)}
}

func (m *mockSegmentRepo) add(s *models.Segment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = uint(len(m.segments) + 1)
	}
	m.segments[s.ID] = s
}

func (m *mockSegmentRepo) ByID(ctx context.Context, id uint) (*models.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.segments[id], nil
}

func (m *mockSegmentRepo) ByFilter(ctx context.Context, filter models.SegmentFilter, orderBy string, limit, offset int) ([]*models.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Segment
	for _, s := range m.segments {
		if filter.WorkspaceID != nil && s.WorkspaceID != *filter.WorkspaceID {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSegmentRepo) Save(ctx context.Context, entity *models.Segment) error {
	m.add(entity)
	return nil
}

func (m *mockSegmentRepo) SaveBatch(ctx context.Context, entities []*models.Segment) error {
	for _, e := range entities {
		m.add(e)
	}
	return nil
}

func (m *mockSegmentRepo) Update(ctx context.Context, entity *models.Segment) error {
	m.add(entity)
	return nil
}

func (m *mockSegmentRepo) Count(ctx context.Context, filter models.SegmentFilter) (int64, error) {
	list, _ := m.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (m *mockSegmentRepo) UpdateMembership(ctx context.Context, id uint, memberIDs []int64, count int64, calculatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.segments[id]; ok {
		s.MemberIDs = memberIDs
		s.ContactCount = count
		s.LastCalculatedAt = &calculatedAt
	}
	return nil
}

type mockPageRepo struct {
	mu    sync.Mutex
	pages map[uint]*models.Page
}

func newMockPageRepo() *mockPageRepo {
	return &mockPageRepo{pages: make(map[uint]*models.Page)}
}

func (m *mockPageRepo) add(p *models.Page) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[p.ID] = p
}

func (m *mockPageRepo) ByID(ctx context.Context, id uint) (*models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[id], nil
}

func (m *mockPageRepo) ByFilter(ctx context.Context, filter models.PageFilter, orderBy string, limit, offset int) ([]*models.Page, error) {
	return nil, nil
}

func (m *mockPageRepo) Save(ctx context.Context, entity *models.Page) error {
	m.add(entity)
	return nil
}

func (m *mockPageRepo) SaveBatch(ctx context.Context, entities []*models.Page) error { return nil }

func (m *mockPageRepo) Update(ctx context.Context, entity *models.Page) error {
	m.add(entity)
	return nil
}

func (m *mockPageRepo) Count(ctx context.Context, filter models.PageFilter) (int64, error) {
	return int64(len(m.pages)), nil
}

func (m *mockPageRepo) ByExternalID(ctx context.Context, externalID string) (*models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pages {
		if p.ExternalID == externalID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPageRepo) ListActiveByWorkspace(ctx context.Context, workspaceID uint) ([]*models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Page
	for _, p := range m.pages {
		if p.WorkspaceID == workspaceID && p.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}
