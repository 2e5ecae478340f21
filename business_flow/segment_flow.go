// Package businessflow contains the core business logic and use cases for campaign delivery workflows
package businessflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pagepulse/pagepulse/app/dto"
	"github.com/pagepulse/pagepulse/models"
	"github.com/pagepulse/pagepulse/repository"
	"github.com/pagepulse/pagepulse/utils"
	"github.com/redis/go-redis/v9"
)

const (
	// audienceScanBatch bounds memory while paging through contacts.
	audienceScanBatch = 500

	previewCacheTTL = time.Minute
)

// SegmentFlow handles segment management and audience resolution
type SegmentFlow interface {
	CreateSegment(ctx context.Context, req *dto.CreateSegmentRequest, metadata *ClientMetadata) (*dto.CreateSegmentResponse, error)
	UpdateSegment(ctx context.Context, req *dto.UpdateSegmentRequest, metadata *ClientMetadata) (*dto.UpdateSegmentResponse, error)
	ListSegments(ctx context.Context, req *dto.ListSegmentsRequest, metadata *ClientMetadata) (*dto.ListSegmentsResponse, error)
	PreviewAudience(ctx context.Context, req *dto.PreviewAudienceRequest, metadata *ClientMetadata) (*dto.PreviewAudienceResponse, error)
	// RecalculateSegment re-evaluates a dynamic segment's filter tree and
	// refreshes its cached membership.
	RecalculateSegment(ctx context.Context, segmentID uint) (int64, error)
	// ResolveAudience materializes the campaign's audience into a sorted,
	// deduplicated list of subscribed contact IDs. The result is a launch
	// time snapshot; later membership drift does not affect it.
	ResolveAudience(ctx context.Context, campaign *models.Campaign) ([]int64, error)
}

// SegmentFlowImpl implements the segment business flow
type SegmentFlowImpl struct {
	segmentRepo repository.SegmentRepository
	contactRepo repository.ContactRepository
	pageRepo    repository.PageRepository
	rc          *redis.Client
	cachePrefix string
}

// NewSegmentFlow creates a new segment flow instance
func NewSegmentFlow(
	segmentRepo repository.SegmentRepository,
	contactRepo repository.ContactRepository,
	pageRepo repository.PageRepository,
	rc *redis.Client,
	cachePrefix string,
) SegmentFlow {
	return &SegmentFlowImpl{
		segmentRepo: segmentRepo,
		contactRepo: contactRepo,
		pageRepo:    pageRepo,
		rc:          rc,
		cachePrefix: cachePrefix,
	}
}

// CreateSegment handles segment creation
func (s *SegmentFlowImpl) CreateSegment(ctx context.Context, req *dto.CreateSegmentRequest, metadata *ClientMetadata) (*dto.CreateSegmentResponse, error) {
	if req.Name == "" {
		return nil, NewBusinessError("SEGMENT_VALIDATION_FAILED", "Segment validation failed", ErrSegmentNameRequired)
	}

	segmentType := models.SegmentType(req.Type)
	if !segmentType.Valid() {
		segmentType = models.SegmentTypeDynamic
	}
	if segmentType == models.SegmentTypeDynamic {
		if err := validateFilterNode(req.Filter.Node()); err != nil {
			return nil, NewBusinessError("SEGMENT_FILTER_INVALID", "Segment filter tree is invalid", err)
		}
	}

	segment := &models.Segment{
		WorkspaceID: req.WorkspaceID,
		Name:        req.Name,
		Type:        segmentType,
		Filter:      req.Filter,
		MemberIDs:   req.MemberIDs,
	}
	if segmentType == models.SegmentTypeStatic {
		segment.ContactCount = int64(len(req.MemberIDs))
	}

	if err := s.segmentRepo.Save(ctx, segment); err != nil {
		return nil, NewBusinessError("SEGMENT_CREATION_FAILED", "Segment creation failed", err)
	}

	return &dto.CreateSegmentResponse{
		Message: "Segment created successfully",
		Segment: ToSegmentDTO(segment),
	}, nil
}

// UpdateSegment handles segment updates
func (s *SegmentFlowImpl) UpdateSegment(ctx context.Context, req *dto.UpdateSegmentRequest, metadata *ClientMetadata) (*dto.UpdateSegmentResponse, error) {
	segment, err := s.segmentRepo.ByID(ctx, req.ID)
	if err != nil {
		return nil, NewBusinessError("SEGMENT_LOOKUP_FAILED", "Failed to lookup segment", err)
	}
	if segment == nil {
		return nil, NewBusinessError("SEGMENT_NOT_FOUND", "Segment not found", ErrSegmentNotFound)
	}
	if segment.WorkspaceID != req.WorkspaceID {
		return nil, NewBusinessError("SEGMENT_ACCESS_DENIED", "Segment belongs to another workspace", ErrSegmentNotFound)
	}

	if req.Name != nil {
		segment.Name = *req.Name
	}
	if req.Filter != nil {
		if err := validateFilterNode(req.Filter.Node()); err != nil {
			return nil, NewBusinessError("SEGMENT_FILTER_INVALID", "Segment filter tree is invalid", err)
		}
		segment.Filter = *req.Filter
		// Cached membership is stale once the filter changes.
		segment.MemberIDs = nil
		segment.LastCalculatedAt = nil
	}
	if req.MemberIDs != nil && segment.Type == models.SegmentTypeStatic {
		segment.MemberIDs = req.MemberIDs
		segment.ContactCount = int64(len(req.MemberIDs))
	}

	if err := s.segmentRepo.Update(ctx, segment); err != nil {
		return nil, NewBusinessError("SEGMENT_UPDATE_FAILED", "Segment update failed", err)
	}

	return &dto.UpdateSegmentResponse{
		Message: "Segment updated successfully",
		Segment: ToSegmentDTO(segment),
	}, nil
}

// ListSegments returns the workspace's segments
func (s *SegmentFlowImpl) ListSegments(ctx context.Context, req *dto.ListSegmentsRequest, metadata *ClientMetadata) (*dto.ListSegmentsResponse, error) {
	if req.Page < 1 {
		return nil, NewBusinessError("INVALID_PAGE", "Invalid page", ErrInvalidPage)
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		return nil, NewBusinessError("INVALID_PAGE_SIZE", "Invalid page size", ErrInvalidPageSize)
	}

	filter := models.SegmentFilter{WorkspaceID: &req.WorkspaceID}

	total, err := s.segmentRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("SEGMENT_LIST_FAILED", "Failed to count segments", err)
	}

	segments, err := s.segmentRepo.ByFilter(ctx, filter, "id ASC", req.PageSize, (req.Page-1)*req.PageSize)
	if err != nil {
		return nil, NewBusinessError("SEGMENT_LIST_FAILED", "Failed to list segments", err)
	}

	items := make([]dto.SegmentDTO, 0, len(segments))
	for _, segment := range segments {
		items = append(items, ToSegmentDTO(segment))
	}

	return &dto.ListSegmentsResponse{
		Message:  "Segments retrieved successfully",
		Segments: items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}

// PreviewAudience evaluates a filter tree against the workspace's contacts
// and returns the match count plus a small sample. Counts are cached briefly
// since previews are issued repeatedly while an operator tweaks a filter.
func (s *SegmentFlowImpl) PreviewAudience(ctx context.Context, req *dto.PreviewAudienceRequest, metadata *ClientMetadata) (*dto.PreviewAudienceResponse, error) {
	if err := validateFilterNode(req.Filter.Node()); err != nil {
		return nil, NewBusinessError("SEGMENT_FILTER_INVALID", "Segment filter tree is invalid", err)
	}

	cacheKey, err := s.previewCacheKey(req.WorkspaceID, req.Filter)
	if err == nil && s.rc != nil {
		if cached, cerr := s.rc.Get(ctx, cacheKey).Result(); cerr == nil {
			if count, perr := strconv.ParseInt(cached, 10, 64); perr == nil {
				return &dto.PreviewAudienceResponse{
					Message: "Audience preview retrieved from cache",
					Count:   count,
				}, nil
			}
		}
	}

	node := req.Filter.Node()
	var count int64
	var sample []int64
	err = s.scanWorkspace(ctx, req.WorkspaceID, func(c *models.Contact) {
		if node.Matches(c) {
			count++
			if len(sample) < 10 {
				sample = append(sample, c.ID)
			}
		}
	})
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_PREVIEW_FAILED", "Failed to preview audience", err)
	}

	if cacheKey != "" && s.rc != nil {
		_ = s.rc.Set(ctx, cacheKey, strconv.FormatInt(count, 10), previewCacheTTL).Err()
	}

	return &dto.PreviewAudienceResponse{
		Message:          "Audience preview computed",
		Count:            count,
		SampleContactIDs: sample,
	}, nil
}

// RecalculateSegment re-evaluates a dynamic segment's filter tree
func (s *SegmentFlowImpl) RecalculateSegment(ctx context.Context, segmentID uint) (int64, error) {
	segment, err := s.segmentRepo.ByID(ctx, segmentID)
	if err != nil {
		return 0, NewBusinessError("SEGMENT_LOOKUP_FAILED", "Failed to lookup segment", err)
	}
	if segment == nil {
		return 0, NewBusinessError("SEGMENT_NOT_FOUND", "Segment not found", ErrSegmentNotFound)
	}
	if segment.Type != models.SegmentTypeDynamic {
		return segment.ContactCount, nil
	}

	node := segment.Filter.Node()
	var members []int64
	err = s.scanWorkspace(ctx, segment.WorkspaceID, func(c *models.Contact) {
		if node.Matches(c) {
			members = append(members, c.ID)
		}
	})
	if err != nil {
		return 0, NewBusinessError("SEGMENT_RECALCULATION_FAILED", "Failed to recalculate segment", err)
	}

	if err := s.segmentRepo.UpdateMembership(ctx, segment.ID, members, int64(len(members)), utils.UTCNow()); err != nil {
		return 0, NewBusinessError("SEGMENT_RECALCULATION_FAILED", "Failed to persist segment membership", err)
	}

	return int64(len(members)), nil
}

// ResolveAudience materializes the campaign's audience into a sorted,
// deduplicated list of subscribed contact IDs
func (s *SegmentFlowImpl) ResolveAudience(ctx context.Context, campaign *models.Campaign) ([]int64, error) {
	var ids []int64

	switch campaign.Audience.Type {
	case models.AudienceTypeAll:
		err := s.scanWorkspace(ctx, campaign.WorkspaceID, func(c *models.Contact) {
			ids = append(ids, c.ID)
		})
		if err != nil {
			return nil, NewBusinessError("AUDIENCE_RESOLUTION_FAILED", "Failed to resolve audience", err)
		}

	case models.AudienceTypePages:
		if len(campaign.Audience.PageIDs) == 0 {
			return nil, NewBusinessError("CAMPAIGN_AUDIENCE_REQUIRED", "Campaign audience is required", ErrCampaignAudienceRequired)
		}
		err := s.scanPages(ctx, campaign.Audience.PageIDs, func(c *models.Contact) {
			ids = append(ids, c.ID)
		})
		if err != nil {
			return nil, NewBusinessError("AUDIENCE_RESOLUTION_FAILED", "Failed to resolve audience", err)
		}

	case models.AudienceTypeManual, models.AudienceTypeCSV:
		if len(campaign.Audience.ContactIDs) == 0 {
			return nil, NewBusinessError("CAMPAIGN_AUDIENCE_REQUIRED", "Campaign audience is required", ErrCampaignAudienceRequired)
		}
		contacts, err := s.contactRepo.ListByIDs(ctx, campaign.Audience.ContactIDs)
		if err != nil {
			return nil, NewBusinessError("AUDIENCE_RESOLUTION_FAILED", "Failed to resolve audience", err)
		}
		for _, c := range contacts {
			if c.IsSubscribed() {
				ids = append(ids, c.ID)
			}
		}

	case models.AudienceTypeSegment:
		if campaign.Audience.SegmentID == nil {
			return nil, NewBusinessError("CAMPAIGN_AUDIENCE_REQUIRED", "Campaign audience is required", ErrCampaignAudienceRequired)
		}
		segmentIDs, err := s.resolveSegment(ctx, campaign.WorkspaceID, *campaign.Audience.SegmentID)
		if err != nil {
			return nil, err
		}
		ids = segmentIDs

	default:
		return nil, NewBusinessError("CAMPAIGN_AUDIENCE_REQUIRED", "Campaign audience is required", ErrCampaignAudienceRequired)
	}

	ids = dedupeSorted(ids)
	if len(ids) == 0 {
		return nil, NewBusinessError("EMPTY_AUDIENCE", "Resolved audience is empty", ErrEmptyAudience)
	}

	return ids, nil
}

func (s *SegmentFlowImpl) resolveSegment(ctx context.Context, workspaceID uint, segmentID uint) ([]int64, error) {
	segment, err := s.segmentRepo.ByID(ctx, segmentID)
	if err != nil {
		return nil, NewBusinessError("SEGMENT_LOOKUP_FAILED", "Failed to lookup segment", err)
	}
	if segment == nil || segment.WorkspaceID != workspaceID {
		return nil, NewBusinessError("SEGMENT_NOT_FOUND", "Segment not found", ErrSegmentNotFound)
	}

	if segment.Type == models.SegmentTypeStatic {
		contacts, err := s.contactRepo.ListByIDs(ctx, segment.MemberIDs)
		if err != nil {
			return nil, NewBusinessError("AUDIENCE_RESOLUTION_FAILED", "Failed to resolve audience", err)
		}
		var ids []int64
		for _, c := range contacts {
			if c.IsSubscribed() {
				ids = append(ids, c.ID)
			}
		}
		return ids, nil
	}

	// Dynamic segments are always re-evaluated at launch so the snapshot
	// reflects current membership, not the cached calculation.
	node := segment.Filter.Node()
	var ids []int64
	err = s.scanWorkspace(ctx, segment.WorkspaceID, func(c *models.Contact) {
		if node.Matches(c) {
			ids = append(ids, c.ID)
		}
	})
	if err != nil {
		return nil, NewBusinessError("AUDIENCE_RESOLUTION_FAILED", "Failed to resolve audience", err)
	}

	return ids, nil
}

// scanWorkspace pages through the workspace's subscribed contacts
func (s *SegmentFlowImpl) scanWorkspace(ctx context.Context, workspaceID uint, visit func(*models.Contact)) error {
	offset := 0
	for {
		contacts, err := s.contactRepo.ListSubscribedByWorkspace(ctx, workspaceID, audienceScanBatch, offset)
		if err != nil {
			return err
		}
		for _, c := range contacts {
			visit(c)
		}
		if len(contacts) < audienceScanBatch {
			return nil
		}
		offset += audienceScanBatch
	}
}

// scanPages pages through subscribed contacts of the given pages
func (s *SegmentFlowImpl) scanPages(ctx context.Context, pageIDs []uint, visit func(*models.Contact)) error {
	offset := 0
	for {
		contacts, err := s.contactRepo.ListSubscribedByPages(ctx, pageIDs, audienceScanBatch, offset)
		if err != nil {
			return err
		}
		for _, c := range contacts {
			visit(c)
		}
		if len(contacts) < audienceScanBatch {
			return nil
		}
		offset += audienceScanBatch
	}
}

func (s *SegmentFlowImpl) previewCacheKey(workspaceID uint, filter models.FilterTree) (string, error) {
	bs, err := json.Marshal(filter)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(bs)
	return fmt.Sprintf("%s:audience_preview:%d:%s", s.cachePrefix, workspaceID, hex.EncodeToString(sum[:8])), nil
}

// validateFilterNode rejects structurally broken filter trees before they are
// persisted or evaluated
func validateFilterNode(node *models.FilterNode) error {
	if node == nil {
		return ErrSegmentFilterInvalid
	}
	if node.IsGroup() {
		if node.Logic != models.FilterLogicAnd && node.Logic != models.FilterLogicOr {
			return ErrSegmentFilterInvalid
		}
		for i := range node.Children {
			if err := validateFilterNode(&node.Children[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if node.Field == "" || node.Operator == "" {
		return ErrSegmentFilterInvalid
	}
	return nil
}

func dedupeSorted(ids []int64) []int64 {
	if len(ids) == 0 {
		return ids
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
