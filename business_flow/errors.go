// Package businessflow contains the core business logic and use cases for campaign delivery workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound         = errors.New("campaign not found")
	ErrCampaignAccessDenied     = errors.New("campaign access denied")
	ErrCampaignNotEditable      = errors.New("campaign is not editable in its current status")
	ErrInvalidStatusTransition  = errors.New("invalid campaign status transition")
	ErrCampaignNameRequired     = errors.New("campaign name is required")
	ErrCampaignContentRequired  = errors.New("campaign content is required")
	ErrCampaignAudienceRequired = errors.New("campaign audience is required")
	ErrCampaignUUIDRequired     = errors.New("campaign UUID is required")
	ErrScheduleTimeNotPresent   = errors.New("schedule time is not present")
	ErrScheduleTimeInPast       = errors.New("schedule time is in the past")
	ErrCronExpressionRequired   = errors.New("cron expression is required for recurring campaigns")
	ErrCronExpressionInvalid    = errors.New("cron expression is invalid")
	ErrDripStepsRequired        = errors.New("at least one drip step is required")
	ErrMessageTagInvalid        = errors.New("message tag is not one of the allowed categories")
	ErrVariantSplitInvalid      = errors.New("variant percentages must be positive and sum to 100")
	ErrWinnerCriterionRequired  = errors.New("winner criterion is required when variants are set")
	ErrEmptyAudience            = errors.New("resolved audience is empty")
	ErrLaunchInProgress         = errors.New("campaign launch already in progress")

	// Segment-related errors
	ErrSegmentNotFound      = errors.New("segment not found")
	ErrSegmentNameRequired  = errors.New("segment name is required")
	ErrSegmentFilterInvalid = errors.New("segment filter tree is invalid")

	// Page and contact errors
	ErrPageNotFound        = errors.New("page not found")
	ErrPageInactive        = errors.New("page is inactive")
	ErrContactNotFound     = errors.New("contact not found")
	ErrContactUnsubscribed = errors.New("contact is unsubscribed")

	// Compliance errors
	ErrNoEligibleSendMethod    = errors.New("no eligible send method for contact")
	ErrOTNTokenUnavailable     = errors.New("no usable one-time-notification token")
	ErrOTNTokenConsumed        = errors.New("one-time-notification token already consumed")
	ErrSubscriptionNotEligible = errors.New("recurring subscription not eligible")
	ErrArtifactReserved        = errors.New("compliance artifact already reserved")

	// Delivery record errors
	ErrSentMessageNotFound = errors.New("sent message not found")
	ErrOutcomeAlreadySet   = errors.New("delivery outcome already recorded")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsCampaignNotEditable(err error) bool {
	return errors.Is(err, ErrCampaignNotEditable)
}

func IsInvalidStatusTransition(err error) bool {
	return errors.Is(err, ErrInvalidStatusTransition)
}

func IsCampaignNameRequired(err error) bool {
	return errors.Is(err, ErrCampaignNameRequired)
}

func IsCampaignContentRequired(err error) bool {
	return errors.Is(err, ErrCampaignContentRequired)
}

func IsCampaignAudienceRequired(err error) bool {
	return errors.Is(err, ErrCampaignAudienceRequired)
}

func IsCampaignUUIDRequired(err error) bool {
	return errors.Is(err, ErrCampaignUUIDRequired)
}

func IsScheduleTimeNotPresent(err error) bool {
	return errors.Is(err, ErrScheduleTimeNotPresent)
}

func IsScheduleTimeInPast(err error) bool {
	return errors.Is(err, ErrScheduleTimeInPast)
}

func IsCronExpressionRequired(err error) bool {
	return errors.Is(err, ErrCronExpressionRequired)
}

func IsCronExpressionInvalid(err error) bool {
	return errors.Is(err, ErrCronExpressionInvalid)
}

func IsDripStepsRequired(err error) bool {
	return errors.Is(err, ErrDripStepsRequired)
}

func IsMessageTagInvalid(err error) bool {
	return errors.Is(err, ErrMessageTagInvalid)
}

func IsVariantSplitInvalid(err error) bool {
	return errors.Is(err, ErrVariantSplitInvalid)
}

func IsWinnerCriterionRequired(err error) bool {
	return errors.Is(err, ErrWinnerCriterionRequired)
}

func IsEmptyAudience(err error) bool {
	return errors.Is(err, ErrEmptyAudience)
}

func IsLaunchInProgress(err error) bool {
	return errors.Is(err, ErrLaunchInProgress)
}

func IsSegmentNotFound(err error) bool {
	return errors.Is(err, ErrSegmentNotFound)
}

func IsSegmentNameRequired(err error) bool {
	return errors.Is(err, ErrSegmentNameRequired)
}

func IsSegmentFilterInvalid(err error) bool {
	return errors.Is(err, ErrSegmentFilterInvalid)
}

func IsPageNotFound(err error) bool {
	return errors.Is(err, ErrPageNotFound)
}

func IsPageInactive(err error) bool {
	return errors.Is(err, ErrPageInactive)
}

func IsContactNotFound(err error) bool {
	return errors.Is(err, ErrContactNotFound)
}

func IsContactUnsubscribed(err error) bool {
	return errors.Is(err, ErrContactUnsubscribed)
}

func IsNoEligibleSendMethod(err error) bool {
	return errors.Is(err, ErrNoEligibleSendMethod)
}

func IsOTNTokenUnavailable(err error) bool {
	return errors.Is(err, ErrOTNTokenUnavailable)
}

func IsOTNTokenConsumed(err error) bool {
	return errors.Is(err, ErrOTNTokenConsumed)
}

func IsSubscriptionNotEligible(err error) bool {
	return errors.Is(err, ErrSubscriptionNotEligible)
}

func IsArtifactReserved(err error) bool {
	return errors.Is(err, ErrArtifactReserved)
}

func IsSentMessageNotFound(err error) bool {
	return errors.Is(err, ErrSentMessageNotFound)
}

func IsOutcomeAlreadySet(err error) bool {
	return errors.Is(err, ErrOutcomeAlreadySet)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
