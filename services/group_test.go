package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundabout/models"
	"roundabout/services"
)

func TestGroupMembership(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	platform := models.PlatformTikTok
	group, err := env.groups.Create(ctx, "owner", services.GroupInput{
		Name:        "TikTok Creators",
		Description: "Short video people",
		Platform:    &platform,
	})
	require.NoError(t, err)
	assert.Equal(t, "tiktok-creators", group.Slug)
	assert.Equal(t, int64(1), group.MemberCount)

	env.clock.Advance(time.Second)
	_, err = env.groups.Join(ctx, group.Slug, "member")
	require.NoError(t, err)
	_, err = env.groups.Join(ctx, group.ID, "member")
	require.NoError(t, err)

	got, err := env.groups.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.MemberCount)

	members, err := env.groups.Members(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.GroupRoleOwner, members[0].Role)

	// Members talk in the group's conversation.
	env.clock.Advance(time.Second)
	_, err = env.messaging.Send(ctx, group.ConversationID, "member", "hello all")
	require.NoError(t, err)
	unread, err := env.messaging.Unread(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	mine, err := env.groups.List(ctx, services.GroupFilter{MemberID: "member"})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	assert.ErrorIs(t, env.groups.Leave(ctx, group.ID, "owner"), services.ErrForbidden)
	require.NoError(t, env.groups.Leave(ctx, group.ID, "member"))
	assert.ErrorIs(t, env.groups.Leave(ctx, group.ID, "member"), services.ErrNotFound)

	_, err = env.messaging.Send(ctx, group.ConversationID, "member", "still here?")
	assert.ErrorIs(t, err, services.ErrForbidden)

	got, err = env.groups.Get(ctx, group.Slug)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.MemberCount)
}

func TestGroupSearch(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	for _, name := range []string{"Photo Walks", "Podcast Hosts"} {
		_, err := env.groups.Create(ctx, "owner", services.GroupInput{Name: name})
		require.NoError(t, err)
	}
	_, err := env.groups.Create(ctx, "owner", services.GroupInput{Name: "  "})
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	found, err := env.groups.List(ctx, services.GroupFilter{Query: "podcast"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Podcast Hosts", found[0].Name)

	_, err = env.groups.Get(ctx, "no-such-group")
	assert.ErrorIs(t, err, services.ErrNotFound)
}
