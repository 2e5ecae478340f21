package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	businessflow "github.com/pagepulse/pagepulse/business_flow"
	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/repository"
)

// In-memory repository fakes for dispatcher and scheduler tests. Only the
// behavior the code under test exercises is implemented.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: make(map[uint]*models.Campaign)}
}

func (f *fakeCampaignRepo) add(c *models.Campaign) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		c.ID = uint(len(f.campaigns) + 1)
	}
	f.campaigns[c.ID] = c
}

func (f *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[id], nil
}

func (f *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaignRepo) Save(ctx context.Context, entity *models.Campaign) error {
	f.add(entity)
	return nil
}

func (f *fakeCampaignRepo) SaveBatch(ctx context.Context, entities []*models.Campaign) error {
	return nil
}

func (f *fakeCampaignRepo) Update(ctx context.Context, entity *models.Campaign) error {
	f.add(entity)
	return nil
}

func (f *fakeCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	return int64(len(f.campaigns)), nil
}

func (f *fakeCampaignRepo) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.campaigns {
		if c.UUID.String() == uuid {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeCampaignRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Campaign
	for _, c := range f.campaigns {
		if c.Status == models.CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, c)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeCampaignRepo) ListByStatus(ctx context.Context, status models.CampaignStatus, limit, offset int) ([]*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Campaign
	for _, c := range f.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaignRepo) TransitionStatus(ctx context.Context, id uint, from, to models.CampaignStatus, extra map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
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
		}
	}
	return true, nil
}

func (f *fakeCampaignRepo) IncrementCounters(ctx context.Context, id uint, deltas repository.CounterDeltas) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
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

func (f *fakeCampaignRepo) UpdateVariants(ctx context.Context, id uint, variants models.ABVariants) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.campaigns[id]; ok {
		c.Variants = variants
	}
	return nil
}

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[uint]*models.CampaignRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[uint]*models.CampaignRun)}
}

func (f *fakeRunRepo) add(r *models.CampaignRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		r.ID = uint(len(f.runs) + 1)
	}
	f.runs[r.ID] = r
}

func (f *fakeRunRepo) ByID(ctx context.Context, id uint) (*models.CampaignRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id], nil
}

func (f *fakeRunRepo) ByFilter(ctx context.Context, filter models.CampaignRunFilter, orderBy string, limit, offset int) ([]*models.CampaignRun, error) {
	return nil, nil
}

func (f *fakeRunRepo) Save(ctx context.Context, entity *models.CampaignRun) error {
	f.add(entity)
	return nil
}

func (f *fakeRunRepo) SaveBatch(ctx context.Context, entities []*models.CampaignRun) error {
	return nil
}

func (f *fakeRunRepo) Update(ctx context.Context, entity *models.CampaignRun) error { return nil }

func (f *fakeRunRepo) Count(ctx context.Context, filter models.CampaignRunFilter) (int64, error) {
	return int64(len(f.runs)), nil
}

func (f *fakeRunRepo) LatestByCampaign(ctx context.Context, campaignID uint) (*models.CampaignRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.CampaignRun
	for _, r := range f.runs {
		if r.CampaignID != campaignID {
			continue
		}
		if latest == nil || r.Seq > latest.Seq {
			latest = r
		}
	}
	return latest, nil
}

func (f *fakeRunRepo) CountByCampaign(ctx context.Context, campaignID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.runs {
		if r.CampaignID == campaignID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRunRepo) UpdateCursor(ctx context.Context, id uint, lastContactID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[id]; ok {
		r.LastContactID = &lastContactID
	}
	return nil
}

func (f *fakeRunRepo) UpdateStatistics(ctx context.Context, id uint, stats json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[id]; ok {
		r.Statistics = stats
	}
	return nil
}

func (f *fakeRunRepo) MarkFinished(ctx context.Context, id uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[id]; ok {
		r.FinishedAt = &at
	}
	return nil
}

type fakeSentRepo struct {
	mu       sync.Mutex
	messages []*models.SentMessage
}

func (f *fakeSentRepo) ByID(ctx context.Context, id uint) (*models.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, nil
}

func (f *fakeSentRepo) ByFilter(ctx context.Context, filter models.SentMessageFilter, orderBy string, limit, offset int) ([]*models.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*models.SentMessage
	for _, msg := range f.messages {
		if filter.CampaignRunID != nil && msg.CampaignRunID != *filter.CampaignRunID {
			continue
		}
		if filter.CampaignID != nil && msg.CampaignID != *filter.CampaignID {
			continue
		}
		if filter.Status != nil && msg.Status != *filter.Status {
			continue
		}
		matched = append(matched, msg)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeSentRepo) Save(ctx context.Context, entity *models.SentMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
		if msg.CampaignRunID == entity.CampaignRunID && msg.ContactID == entity.ContactID {
			return errors.New("delivery record already exists")
		}
	}
	entity.ID = uint(len(f.messages) + 1)
	f.messages = append(f.messages, entity)
	return nil
}

func (f *fakeSentRepo) SaveBatch(ctx context.Context, entities []*models.SentMessage) error {
	for _, e := range entities {
		if err := f.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSentRepo) Update(ctx context.Context, entity *models.SentMessage) error { return nil }

func (f *fakeSentRepo) Count(ctx context.Context, filter models.SentMessageFilter) (int64, error) {
	list, _ := f.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(list)), nil
}

func (f *fakeSentRepo) ByRunAndContact(ctx context.Context, runID uint, contactID int64) (*models.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
		if msg.CampaignRunID == runID && msg.ContactID == contactID {
			return msg, nil
		}
	}
	return nil, nil
}

func (f *fakeSentRepo) ByTrackingID(ctx context.Context, trackingID string) (*models.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
		if msg.TrackingID == trackingID {
			return msg, nil
		}
	}
	return nil, nil
}

func (f *fakeSentRepo) MarkOutcome(ctx context.Context, runID uint, contactID int64, status models.DeliveryStatus, platformMessageID, sendErr *string, attempts int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
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

func (f *fakeSentRepo) SetEngagement(ctx context.Context, trackingID string, column string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
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

func (f *fakeSentRepo) ListEngagedContacts(ctx context.Context, runID uint, condition models.DripCondition) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, msg := range f.messages {
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

func (f *fakeSentRepo) CountTerminalByRun(ctx context.Context, runID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, msg := range f.messages {
		if msg.CampaignRunID == runID && msg.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[int64]*models.Contact
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[int64]*models.Contact)}
}

func (f *fakeContactRepo) add(c *models.Contact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts[c.ID] = c
}

func (f *fakeContactRepo) ByID(ctx context.Context, id uint) (*models.Contact, error) {
	return f.ByContactID(ctx, int64(id))
}

func (f *fakeContactRepo) ByFilter(ctx context.Context, filter models.ContactFilter, orderBy string, limit, offset int) ([]*models.Contact, error) {
	return nil, nil
}

func (f *fakeContactRepo) Save(ctx context.Context, entity *models.Contact) error {
	f.add(entity)
	return nil
}

func (f *fakeContactRepo) SaveBatch(ctx context.Context, entities []*models.Contact) error {
	return nil
}

func (f *fakeContactRepo) Update(ctx context.Context, entity *models.Contact) error {
	f.add(entity)
	return nil
}

func (f *fakeContactRepo) Count(ctx context.Context, filter models.ContactFilter) (int64, error) {
	return int64(len(f.contacts)), nil
}

func (f *fakeContactRepo) ByContactID(ctx context.Context, id int64) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contacts[id], nil
}

func (f *fakeContactRepo) ListByIDs(ctx context.Context, ids []int64) ([]*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Contact
	for _, id := range ids {
		if c, ok := f.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContactRepo) ListSubscribedByWorkspace(ctx context.Context, workspaceID uint, limit, offset int) ([]*models.Contact, error) {
	return nil, nil
}

func (f *fakeContactRepo) ListSubscribedByPages(ctx context.Context, pageIDs []uint, limit, offset int) ([]*models.Contact, error) {
	return nil, nil
}

type fakePageRepo struct {
	mu    sync.Mutex
	pages map[uint]*models.Page
}

func newFakePageRepo() *fakePageRepo {
	return &fakePageRepo{pages: make(map[uint]*models.Page)}
}

func (f *fakePageRepo) add(p *models.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[p.ID] = p
}

func (f *fakePageRepo) ByID(ctx context.Context, id uint) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[id], nil
}

func (f *fakePageRepo) ByFilter(ctx context.Context, filter models.PageFilter, orderBy string, limit, offset int) ([]*models.Page, error) {
	return nil, nil
}

func (f *fakePageRepo) Save(ctx context.Context, entity *models.Page) error {
	f.add(entity)
	return nil
}

func (f *fakePageRepo) SaveBatch(ctx context.Context, entities []*models.Page) error { return nil }

func (f *fakePageRepo) Update(ctx context.Context, entity *models.Page) error {
	f.add(entity)
	return nil
}

func (f *fakePageRepo) Count(ctx context.Context, filter models.PageFilter) (int64, error) {
	return int64(len(f.pages)), nil
}

func (f *fakePageRepo) ByExternalID(ctx context.Context, externalID string) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pages {
		if p.ExternalID == externalID {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePageRepo) ListActiveByWorkspace(ctx context.Context, workspaceID uint) ([]*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Page
	for _, p := range f.pages {
		if p.WorkspaceID == workspaceID && p.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}

// stubBypassFlow resolves a scripted send method per contact, defaulting to
// within_window, and counts consume and release calls.
type stubBypassFlow struct {
	mu       sync.Mutex
	methods  map[int64]models.SendMethod
	consumed int
	released int
}

func newStubBypassFlow() *stubBypassFlow {
	return &stubBypassFlow{methods: make(map[int64]models.SendMethod)}
}

func (s *stubBypassFlow) Resolve(ctx context.Context, campaign *models.Campaign, contact *models.Contact, now time.Time) (*businessflow.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	method, ok := s.methods[contact.ID]
	if !ok {
		method = models.SendMethodWithinWindow
	}
	return &businessflow.Resolution{Method: method}, nil
}

func (s *stubBypassFlow) ConsumeArtifact(ctx context.Context, res *businessflow.Resolution, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumed++
	return nil
}

func (s *stubBypassFlow) Release(res *businessflow.Resolution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
}

func (s *stubBypassFlow) consumedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumed
}

func (s *stubBypassFlow) releasedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
