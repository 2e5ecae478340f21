package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pagepulse/pagepulse/utils"
)

func TestContactInMessagingWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("InsideWindow", func(t *testing.T) {
		at := now.Add(-23 * time.Hour)
		c := &Contact{LastContactMessageAt: &at}
		assert.True(t, c.InMessagingWindow(now))
	})

	t.Run("ExactlyAtBoundary", func(t *testing.T) {
		at := now.Add(-24 * time.Hour)
		c := &Contact{LastContactMessageAt: &at}
		assert.True(t, c.InMessagingWindow(now))
	})

	t.Run("OutsideWindow", func(t *testing.T) {
		at := now.Add(-24*time.Hour - time.Second)
		c := &Contact{LastContactMessageAt: &at}
		assert.False(t, c.InMessagingWindow(now))
	})

	t.Run("NeverMessaged", func(t *testing.T) {
		c := &Contact{}
		assert.False(t, c.InMessagingWindow(now))
	})
}

func TestOTNTokenIsUsable(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("FreshToken", func(t *testing.T) {
		token := &OTNToken{IsUsed: utils.ToPtr(false)}
		assert.True(t, token.IsUsable(now))
	})

	t.Run("ConsumedToken", func(t *testing.T) {
		token := &OTNToken{IsUsed: utils.ToPtr(true)}
		assert.False(t, token.IsUsable(now))
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		expired := now.Add(-time.Minute)
		token := &OTNToken{IsUsed: utils.ToPtr(false), ExpiresAt: &expired}
		assert.False(t, token.IsUsable(now))
	})

	t.Run("ExpiryExactlyNow", func(t *testing.T) {
		token := &OTNToken{IsUsed: utils.ToPtr(false), ExpiresAt: &now}
		assert.False(t, token.IsUsable(now))
	})

	t.Run("FutureExpiry", func(t *testing.T) {
		future := now.Add(time.Hour)
		token := &OTNToken{IsUsed: utils.ToPtr(false), ExpiresAt: &future}
		assert.True(t, token.IsUsable(now))
	})
}

func TestNotificationFrequencyInterval(t *testing.T) {
	assert.Equal(t, 24*time.Hour, FrequencyDaily.Interval())
	assert.Equal(t, 7*24*time.Hour, FrequencyWeekly.Interval())
	assert.Equal(t, 30*24*time.Hour, FrequencyMonthly.Interval())

	assert.True(t, FrequencyDaily.Valid())
	assert.False(t, NotificationFrequency("HOURLY").Valid())
}

func TestRecurringSubscriptionIsEligible(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("NeverSent", func(t *testing.T) {
		sub := &RecurringSubscription{IsActive: utils.ToPtr(true), Frequency: FrequencyDaily}
		assert.True(t, sub.IsEligible(now))
	})

	t.Run("IntervalElapsed", func(t *testing.T) {
		last := now.Add(-25 * time.Hour)
		sub := &RecurringSubscription{IsActive: utils.ToPtr(true), Frequency: FrequencyDaily, LastSentAt: &last}
		assert.True(t, sub.IsEligible(now))
	})

	t.Run("IntervalNotElapsed", func(t *testing.T) {
		last := now.Add(-23 * time.Hour)
		sub := &RecurringSubscription{IsActive: utils.ToPtr(true), Frequency: FrequencyDaily, LastSentAt: &last}
		assert.False(t, sub.IsEligible(now))
	})

	t.Run("IntervalExactlyElapsed", func(t *testing.T) {
		last := now.Add(-24 * time.Hour)
		sub := &RecurringSubscription{IsActive: utils.ToPtr(true), Frequency: FrequencyDaily, LastSentAt: &last}
		assert.True(t, sub.IsEligible(now))
	})

	t.Run("Inactive", func(t *testing.T) {
		sub := &RecurringSubscription{IsActive: utils.ToPtr(false), Frequency: FrequencyDaily}
		assert.False(t, sub.IsEligible(now))
	})

	t.Run("WeeklySpacing", func(t *testing.T) {
		last := now.Add(-3 * 24 * time.Hour)
		sub := &RecurringSubscription{IsActive: utils.ToPtr(true), Frequency: FrequencyWeekly, LastSentAt: &last}
		assert.False(t, sub.IsEligible(now))
	})
}

func TestDeliveryStatusHelpers(t *testing.T) {
	assert.False(t, DeliveryStatusPending.IsTerminal())
	assert.True(t, DeliveryStatusSent.IsTerminal())
	assert.True(t, DeliveryStatusFailedPermanent.IsTerminal())
	assert.True(t, DeliveryStatusFailedExhausted.IsTerminal())
	assert.True(t, DeliveryStatusBlocked.IsTerminal())

	assert.True(t, DeliveryStatusFailedPermanent.IsFailure())
	assert.True(t, DeliveryStatusFailedExhausted.IsFailure())
	assert.False(t, DeliveryStatusBlocked.IsFailure())
	assert.False(t, DeliveryStatusSent.IsFailure())
}

func TestSendMethodAndTagValidity(t *testing.T) {
	assert.True(t, SendMethodWithinWindow.Valid())
	assert.True(t, SendMethodOTNToken.Valid())
	assert.False(t, SendMethod("carrier_pigeon").Valid())

	assert.True(t, MessageTagAccountUpdate.Valid())
	assert.True(t, MessageTagHumanAgent.Valid())
	assert.False(t, MessageTag("PROMOTIONAL").Valid())
}
