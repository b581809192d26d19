package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/models"
)

func strPtr(s string) *string { return &s }

func seedUsers(t *testing.T, s Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.UpsertUser(context.Background(), models.User{ID: id, DisplayName: strPtr(id)}))
	}
}

func TestMemoryEnsureDirectThreadConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedUsers(t, m, "alice", "bob")
	key := models.DirectKey("alice", "bob")

	const workers = 32
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.EnsureDirectThread(ctx, key, "alice", "bob")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, m.threads, 1)
	assert.Len(t, m.members[ids[0]], 2)

	owner, err := m.GetParticipant(ctx, ids[0], "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, owner.Role)
}

func TestMemoryEnsureDirectThreadUnknownUser(t *testing.T) {
	m := NewMemory()
	seedUsers(t, m, "alice")

	_, err := m.EnsureDirectThread(context.Background(), models.DirectKey("alice", "ghost"), "alice", "ghost")
	assert.True(t, apperror.Is(err, apperror.NotFound))
	assert.Empty(t, m.threads)
}

func TestMemoryInsertMessageRules(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedUsers(t, m, "alice", "bob", "mallory")
	id, err := m.EnsureDirectThread(ctx, models.DirectKey("alice", "bob"), "alice", "bob")
	require.NoError(t, err)

	_, err = m.InsertMessage(ctx, models.Message{ThreadID: id, SenderID: "mallory", Kind: models.KindText, Content: strPtr("x")})
	assert.True(t, apperror.Is(err, apperror.Forbidden))

	_, err = m.InsertMessage(ctx, models.Message{ThreadID: "nope", SenderID: "alice", Kind: models.KindText, Content: strPtr("x")})
	assert.True(t, apperror.Is(err, apperror.NotFound))

	_, err = m.InsertMessage(ctx, models.Message{ThreadID: id, SenderID: "alice", Kind: models.KindImage})
	assert.True(t, apperror.Is(err, apperror.InvalidArgument))

	recent, err := m.RecentMessages(ctx, id, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMemoryMessagesMonotonicAndBumpThread(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	frozen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time { return frozen }
	seedUsers(t, m, "alice", "bob")
	id, err := m.EnsureDirectThread(ctx, models.DirectKey("alice", "bob"), "alice", "bob")
	require.NoError(t, err)

	a, err := m.InsertMessage(ctx, models.Message{ThreadID: id, SenderID: "alice", Kind: models.KindText, Content: strPtr("a")})
	require.NoError(t, err)
	b, err := m.InsertMessage(ctx, models.Message{ThreadID: id, SenderID: "alice", Kind: models.KindText, Content: strPtr("b")})
	require.NoError(t, err)
	assert.True(t, b.CreatedAt.After(a.CreatedAt))

	recent, err := m.RecentMessages(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].Text())

	th, err := m.GetThread(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, b.CreatedAt, th.UpdatedAt)
}

func TestMemoryArchivedThreadRejectsAppend(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedUsers(t, m, "alice", "bob")
	id, err := m.EnsureDirectThread(ctx, models.DirectKey("alice", "bob"), "alice", "bob")
	require.NoError(t, err)
	require.NoError(t, m.ArchiveThread(ctx, id))

	_, err = m.InsertMessage(ctx, models.Message{ThreadID: id, SenderID: "alice", Kind: models.KindText, Content: strPtr("late")})
	assert.True(t, apperror.Is(err, apperror.Forbidden))
}

func TestMemoryUserEmailUnique(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertUser(ctx, models.User{ID: "a", Email: strPtr("same@x.io")}))
	err := m.UpsertUser(ctx, models.User{ID: "b", Email: strPtr("SAME@x.io")})
	assert.True(t, apperror.Is(err, apperror.Conflict))

	// re-sync of the same user keeps working
	require.NoError(t, m.UpsertUser(ctx, models.User{ID: "a", Email: strPtr("same@x.io"), DisplayName: strPtr("A")}))
}

func TestMemorySearchUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.UpsertUser(ctx, models.User{ID: "1", Email: strPtr("alice@example.com"), DisplayName: strPtr("Alice")}))
	require.NoError(t, m.UpsertUser(ctx, models.User{ID: "2", Email: strPtr("bob@example.com"), DisplayName: strPtr("Bob")}))
	require.NoError(t, m.UpsertUser(ctx, models.User{ID: "3", DisplayName: strPtr("Malice")}))

	got, err := m.SearchUsers(ctx, "ALIC", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	got, err = m.SearchUsers(ctx, "example", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryListThreadsMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedUsers(t, m, "alice", "bob", "carol")

	older, err := m.EnsureDirectThread(ctx, models.DirectKey("alice", "bob"), "alice", "bob")
	require.NoError(t, err)
	newer, err := m.EnsureDirectThread(ctx, models.DirectKey("alice", "carol"), "alice", "carol")
	require.NoError(t, err)

	_, err = m.InsertMessage(ctx, models.Message{ThreadID: newer, SenderID: "carol", Kind: models.KindText, Content: strPtr("x")})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = m.InsertMessage(ctx, models.Message{ThreadID: older, SenderID: "bob", Kind: models.KindText, Content: strPtr("y")})
	require.NoError(t, err)

	list, err := m.ListThreadsForUser(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older, list[0].ID)
	assert.Equal(t, newer, list[1].ID)

	list, err = m.ListThreadsForUser(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
