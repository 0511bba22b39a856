package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundabout/realtime"
	"roundabout/services"
)

func TestStartDirectIsIdempotent(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()
	env.profile(t, "ann")
	env.profile(t, "bo")

	first, err := env.messaging.StartDirect(ctx, "ann", "bo")
	require.NoError(t, err)
	second, err := env.messaging.StartDirect(ctx, "bo", "ann")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Members, 2)

	_, err = env.messaging.StartDirect(ctx, "ann", "ann")
	assert.ErrorIs(t, err, services.ErrInvalidInput)
	_, err = env.messaging.StartDirect(ctx, "ann", "ghost")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestSendAndReadMarkers(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()
	env.profile(t, "ann")
	env.profile(t, "bo")

	conv, err := env.messaging.StartDirect(ctx, "ann", "bo")
	require.NoError(t, err)

	sub, err := env.hub.Subscribe(ctx, realtime.Filter{UserID: "bo", Channels: []realtime.Channel{realtime.ChannelMessages}})
	require.NoError(t, err)
	defer sub.Close()

	for _, body := range []string{"hey", "are you there?"} {
		env.clock.Advance(time.Second)
		_, err := env.messaging.Send(ctx, conv.ID, "ann", body)
		require.NoError(t, err)
	}
	assert.Equal(t, realtime.KindInsert, nextEvent(t, sub).Kind)
	assert.Equal(t, realtime.KindInsert, nextEvent(t, sub).Kind)

	unread, err := env.messaging.Unread(ctx, "bo")
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)
	mine, err := env.messaging.Unread(ctx, "ann")
	require.NoError(t, err)
	assert.Zero(t, mine)

	msgs, err := env.messaging.Messages(ctx, conv.ID, "bo", nil, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hey", msgs[0].Body)
	assert.Equal(t, "are you there?", msgs[1].Body)

	summaries, err := env.messaging.ListConversations(ctx, "bo")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(2), summaries[0].Unread)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, "are you there?", summaries[0].LastMessage.Body)

	env.clock.Advance(time.Second)
	require.NoError(t, env.messaging.MarkRead(ctx, conv.ID, "bo"))
	unread, err = env.messaging.Unread(ctx, "bo")
	require.NoError(t, err)
	assert.Zero(t, unread)

	readEvent := nextEvent(t, sub)
	assert.Equal(t, realtime.KindUpdate, readEvent.Kind)
	var payload struct {
		UnreadCount int64 `json:"unread_count"`
	}
	require.NoError(t, readEvent.Decode(&payload))
	assert.Zero(t, payload.UnreadCount)
}

func TestMessagesPageBackwards(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()
	env.profile(t, "ann")
	env.profile(t, "bo")

	conv, err := env.messaging.StartDirect(ctx, "ann", "bo")
	require.NoError(t, err)
	for _, body := range []string{"one", "two", "three"} {
		env.clock.Advance(time.Second)
		_, err := env.messaging.Send(ctx, conv.ID, "bo", body)
		require.NoError(t, err)
	}

	latest, err := env.messaging.Messages(ctx, conv.ID, "ann", nil, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "two", latest[0].Body)
	assert.Equal(t, "three", latest[1].Body)

	older, err := env.messaging.Messages(ctx, conv.ID, "ann", &latest[0].SentAt, 2)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "one", older[0].Body)
}

func TestSendGuards(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()
	env.profile(t, "ann")
	env.profile(t, "bo")

	conv, err := env.messaging.StartDirect(ctx, "ann", "bo")
	require.NoError(t, err)

	_, err = env.messaging.Send(ctx, conv.ID, "mallory", "hi")
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, err = env.messaging.Send(ctx, "00000000-0000-0000-0000-000000000000", "ann", "hi")
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = env.messaging.Send(ctx, conv.ID, "ann", "   ")
	assert.ErrorIs(t, err, services.ErrInvalidInput)
	_, err = env.messaging.Send(ctx, conv.ID, "ann", strings.Repeat("é", 4001))
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	_, err = env.messaging.Messages(ctx, conv.ID, "mallory", nil, 10)
	assert.ErrorIs(t, err, services.ErrForbidden)
}
