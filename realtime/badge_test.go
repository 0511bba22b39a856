package realtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundabout/realtime"
)

func event(t *testing.T, ch realtime.Channel, kind realtime.Kind, payload any) realtime.Event {
	t.Helper()
	e, err := realtime.NewEvent(ch, kind, "user-1", payload)
	require.NoError(t, err)
	return e
}

func TestBadgeApply(t *testing.T) {
	t.Parallel()

	badge := realtime.Badge{UnreadNotifications: 1, PointsBalance: 275}

	badge = badge.Apply(event(t, realtime.ChannelNotifications, realtime.KindInsert, map[string]string{"title": "Verified"}))
	assert.Equal(t, 2, badge.UnreadNotifications)

	badge = badge.Apply(event(t, realtime.ChannelMessages, realtime.KindInsert, map[string]string{"body": "hi"}))
	badge = badge.Apply(event(t, realtime.ChannelMessages, realtime.KindInsert, map[string]string{"body": "again"}))
	assert.Equal(t, 2, badge.UnreadMessages)

	badge = badge.Apply(event(t, realtime.ChannelMessages, realtime.KindUpdate, map[string]int{"unread_count": 0}))
	assert.Equal(t, 0, badge.UnreadMessages)

	badge = badge.Apply(event(t, realtime.ChannelPoints, realtime.KindInsert, map[string]int{"amount": 200, "balance": 475}))
	assert.Equal(t, 475, badge.PointsBalance)

	badge = badge.Apply(event(t, realtime.ChannelNotifications, realtime.KindUpdate, map[string]int{"unread_count": 0}))
	assert.Equal(t, realtime.Badge{PointsBalance: 475}, badge)
}

func TestBadgeIgnoresStaleBalance(t *testing.T) {
	t.Parallel()

	badge := realtime.Badge{PointsBalance: 100, PointsVersion: 4}

	badge = badge.Apply(event(t, realtime.ChannelPoints, realtime.KindInsert, map[string]int64{"balance": 145, "version": 6}))
	assert.Equal(t, realtime.Badge{PointsBalance: 145, PointsVersion: 6}, badge)

	// version 5 committed first but was published last
	badge = badge.Apply(event(t, realtime.ChannelPoints, realtime.KindInsert, map[string]int64{"balance": 120, "version": 5}))
	assert.Equal(t, realtime.Badge{PointsBalance: 145, PointsVersion: 6}, badge)

	badge = badge.Apply(event(t, realtime.ChannelPoints, realtime.KindInsert, map[string]int64{"balance": 145, "version": 6}))
	assert.Equal(t, 6, int(badge.PointsVersion))

	badge = badge.Apply(event(t, realtime.ChannelPoints, realtime.KindInsert, map[string]int64{"balance": 0, "version": 7}))
	assert.Equal(t, realtime.Badge{PointsVersion: 7}, badge)
}
