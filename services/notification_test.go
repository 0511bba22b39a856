package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundabout/models"
	"roundabout/realtime"
	"roundabout/services"
)

func TestNotificationReadState(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	sub, err := env.hub.Subscribe(ctx, realtime.Filter{UserID: "oz", Channels: []realtime.Channel{realtime.ChannelNotifications}})
	require.NoError(t, err)
	defer sub.Close()

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		n := &models.Notification{UserID: "oz", Kind: models.NotificationMessage, Title: title}
		require.NoError(t, env.notifications.Notify(ctx, n))
		ids = append(ids, n.ID)
		assert.Equal(t, realtime.KindInsert, nextEvent(t, sub).Kind)
	}

	require.NoError(t, env.notifications.MarkRead(ctx, "oz", ids[0]))
	badge := realtime.Badge{UnreadNotifications: 3}.Apply(nextEvent(t, sub))
	assert.Equal(t, 2, badge.UnreadNotifications)

	assert.ErrorIs(t, env.notifications.MarkRead(ctx, "someone-else", ids[1]), services.ErrNotFound)

	unread, err := env.notifications.List(ctx, "oz", true, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	changed, err := env.notifications.MarkAllRead(ctx, "oz")
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	count, err := env.notifications.UnreadCount(ctx, "oz")
	require.NoError(t, err)
	assert.Zero(t, count)

	all, err := env.notifications.List(ctx, "oz", false, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
