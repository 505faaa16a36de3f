package repository

import (
	"context"
	"testing"
	"time"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createMessage(t *testing.T, repos *Repositories, convId, senderId int64) *entity.Message {
	t.Helper()
	msg := &entity.Message{ConversationId: convId, SenderId: senderId, ContentEncrypted: strPtr("x")}
	require.NoError(t, repos.Message.Create(context.Background(), msg))
	return msg
}

func TestDeliveryRepo_UpsertSeenTwice(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	msg := createMessage(t, repos, 1, 1)

	first, err := repos.Delivery.UpsertSeen(ctx, msg.Id, 2, entity.NowUnixMilli())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	second, err := repos.Delivery.UpsertSeen(ctx, msg.Id, 2, entity.NowUnixMilli())
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
	assert.Greater(t, second.SeenAt, first.SeenAt)

	records, err := repos.Delivery.SeenBy(ctx, msg.Id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, second.SeenAt, records[0].SeenAt)
}

func TestDeliveryRepo_UpsertReactionReplaces(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()
	msg := createMessage(t, repos, 1, 1)

	_, err := repos.Delivery.UpsertReaction(ctx, msg.Id, 2, "like")
	require.NoError(t, err)
	got, err := repos.Delivery.UpsertReaction(ctx, msg.Id, 2, "angry")
	require.NoError(t, err)
	assert.Equal(t, "angry", got.Reaction)

	reactions, err := repos.Delivery.ReactionsByMessages(ctx, []int64{msg.Id})
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, "angry", reactions[0].Reaction)
}

func TestDeliveryRepo_UnseenCount(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	own := createMessage(t, repos, 1, 2)
	m1 := createMessage(t, repos, 1, 1)
	createMessage(t, repos, 1, 1)
	createMessage(t, repos, 9, 1)

	count, err := repos.Delivery.UnseenCount(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	_, err = repos.Delivery.UpsertSeen(ctx, m1.Id, 2, entity.NowUnixMilli())
	require.NoError(t, err)
	// seeing your own message changes nothing
	_, err = repos.Delivery.UpsertSeen(ctx, own.Id, 2, entity.NowUnixMilli())
	require.NoError(t, err)

	count, err = repos.Delivery.UnseenCount(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	counts, err := repos.Delivery.UnseenCounts(ctx, []int64{1, 9, 77}, 2)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 1, 9: 1}, counts)

	seen, err := repos.Delivery.IsSeenBy(ctx, m1.Id, 2)
	require.NoError(t, err)
	assert.True(t, seen)
}
