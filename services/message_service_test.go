package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/config"
	"github.com/praptisiva25/WorkBud/db"
	"github.com/praptisiva25/WorkBud/metrics"
	"github.com/praptisiva25/WorkBud/models"
)

// recordingBroadcaster checks that every broadcast message is already
// readable from the store.
type recordingBroadcaster struct {
	t     *testing.T
	store db.Store

	mu   sync.Mutex
	seen []models.Message
}

func (b *recordingBroadcaster) Broadcast(threadID string, msg models.Message) int {
	recent, err := b.store.RecentMessages(context.Background(), threadID, 1)
	assert.NoError(b.t, err)
	if assert.Len(b.t, recent, 1) {
		assert.Equal(b.t, msg.ID, recent[0].ID)
	}
	b.mu.Lock()
	b.seen = append(b.seen, msg)
	b.mu.Unlock()
	return 1
}

func TestDirectThreadEndToEnd(t *testing.T) {
	h := newHarness(t, "alice", "bob")
	ctx := context.Background()

	threadID, err := h.threads.ResolveDirectThread(ctx, "alice", "bob")
	require.NoError(t, err)

	history, err := h.messages.History(ctx, threadID, "alice", 50)
	require.NoError(t, err)
	assert.Empty(t, history)

	bob := newFakeSession("bob-1", "bob")
	h.dispatcher.Join(bob, threadID)

	sent, err := h.messages.Append(ctx, threadID, "alice", "  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "hi", sent.Text())
	assert.Equal(t, models.SourceManual, sent.Source)
	assert.Equal(t, models.KindText, sent.Kind)

	history, err = h.messages.History(ctx, threadID, "bob", 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)
	assert.Equal(t, "alice", history[0].SenderID)

	live := bob.messages(t)
	require.Len(t, live, 1)
	assert.Equal(t, sent.ID, live[0].ID)
}

func TestHistoryIsOldestFirstAndClamped(t *testing.T) {
	store := db.NewMemory()
	limits := config.Limits{HistoryDefault: 3, HistoryMax: 5, ThreadListMax: 10, UserSearch: 10}
	log := NewMessageLog(store, nil, limits, nil, nil)
	threads := NewThreadDirectory(store, limits.ThreadListMax, nil)
	users := NewUserDirectory(store, limits.UserSearch)
	ctx := context.Background()
	require.NoError(t, users.Sync(ctx, models.User{ID: "alice"}))
	require.NoError(t, users.Sync(ctx, models.User{ID: "bob"}))

	threadID, err := threads.ResolveDirectThread(ctx, "alice", "bob")
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		_, err := log.Append(ctx, threadID, "alice", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	got, err := log.History(ctx, threadID, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"m5", "m6", "m7"}, texts(got))

	got, err = log.History(ctx, threadID, "bob", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3", "m4", "m5", "m6", "m7"}, texts(got))

	last, err := log.Append(ctx, threadID, "bob", "newest")
	require.NoError(t, err)
	got, err = log.History(ctx, threadID, "alice", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, last.ID, got[len(got)-1].ID)
}

func TestAppendRejectionsLeaveNoTrace(t *testing.T) {
	h := newHarness(t, "alice", "bob", "mallory")
	ctx := context.Background()
	threadID, err := h.threads.ResolveDirectThread(ctx, "alice", "bob")
	require.NoError(t, err)

	watcher := newFakeSession("w", "alice")
	h.dispatcher.Join(watcher, threadID)

	cases := []struct {
		name     string
		thread   string
		sender   string
		content  string
		wantKind apperror.Kind
	}{
		{"outsider", threadID, "mallory", "let me in", apperror.Forbidden},
		{"blank content", threadID, "alice", " \n\t ", apperror.InvalidArgument},
		{"too long", threadID, "alice", strings.Repeat("x", maxContentLength+1), apperror.InvalidArgument},
		{"missing thread", "", "alice", "hello", apperror.InvalidArgument},
		{"unknown thread", "00000000-0000-0000-0000-000000000000", "alice", "hello", apperror.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.messages.Append(ctx, tc.thread, tc.sender, tc.content)
			assert.Equal(t, tc.wantKind, apperror.KindOf(err))
		})
	}

	history, err := h.messages.History(ctx, threadID, "alice", 50)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, watcher.messages(t))
}

func TestHistoryRequiresMembership(t *testing.T) {
	h := newHarness(t, "alice", "bob", "mallory")
	ctx := context.Background()
	threadID, err := h.threads.ResolveDirectThread(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = h.messages.History(ctx, threadID, "mallory", 10)
	assert.True(t, apperror.Is(err, apperror.Forbidden))

	_, err = h.messages.History(ctx, "missing", "alice", 10)
	assert.True(t, apperror.Is(err, apperror.Forbidden))
}

func TestSequentialAppendsKeepOrder(t *testing.T) {
	h := newHarness(t, "alice", "bob")
	ctx := context.Background()
	threadID, err := h.threads.ResolveDirectThread(ctx, "alice", "bob")
	require.NoError(t, err)

	viewer := newFakeSession("v", "bob")
	h.dispatcher.Join(viewer, threadID)

	_, err = h.messages.Append(ctx, threadID, "alice", "a")
	require.NoError(t, err)
	_, err = h.messages.Append(ctx, threadID, "alice", "b")
	require.NoError(t, err)

	history, err := h.messages.History(ctx, threadID, "bob", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, texts(history))
	assert.Equal(t, []string{"a", "b"}, texts(viewer.messages(t)))
}

func TestConcurrentAppendsBroadcastInCommitOrder(t *testing.T) {
	h := newHarness(t, "alice", "bob")
	ctx := context.Background()
	threadID, err := h.threads.ResolveDirectThread(ctx, "alice", "bob")
	require.NoError(t, err)

	viewers := []*fakeSession{newFakeSession("v1", "alice"), newFakeSession("v2", "bob")}
	for _, v := range viewers {
		h.dispatcher.Join(v, threadID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := "alice"
			if i%2 == 1 {
				sender = "bob"
			}
			_, err := h.messages.Append(ctx, threadID, sender, fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := h.messages.History(ctx, threadID, "alice", 100)
	require.NoError(t, err)
	require.Len(t, history, 40)
	want := make([]string, len(history))
	for i, m := range history {
		want[i] = m.ID
	}
	for _, v := range viewers {
		live := v.messages(t)
		got := make([]string, len(live))
		for i, m := range live {
			got[i] = m.ID
		}
		assert.Equal(t, want, got)
	}
}

func TestBroadcastFollowsPersist(t *testing.T) {
	store := db.NewMemory()
	ctx := context.Background()
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, store.UpsertUser(ctx, models.User{ID: id}))
	}
	b := &recordingBroadcaster{t: t, store: store}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := NewMessageLog(store, b, config.Default().Limits, nil, m)
	threads := NewThreadDirectory(store, 10, nil)

	threadID, err := threads.ResolveDirectThread(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = log.Append(ctx, threadID, "alice", "one")
	require.NoError(t, err)
	_, err = log.Append(ctx, threadID, "alice", "")
	require.Error(t, err)

	assert.Len(t, b.seen, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Appended.WithLabelValues("text")))
}

func TestAppendAttachment(t *testing.T) {
	h := newHarness(t, "alice", "bob")
	ctx := context.Background()
	threadID, err := h.threads.ResolveDirectThread(ctx, "alice", "bob")
	require.NoError(t, err)

	name := "diagram.png"
	size := int64(2048)
	msg, err := h.messages.AppendAttachment(ctx, threadID, "bob", models.KindImage, models.Attachment{
		URL:  " https://cdn.example.com/a.png ",
		Name: &name,
		Size: &size,
	})
	require.NoError(t, err)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "https://cdn.example.com/a.png", msg.Attachment.URL)
	assert.Nil(t, msg.Content)

	_, err = h.messages.AppendAttachment(ctx, threadID, "bob", models.KindText, models.Attachment{URL: "x"})
	assert.True(t, apperror.Is(err, apperror.InvalidArgument))
	_, err = h.messages.AppendAttachment(ctx, threadID, "bob", models.KindFile, models.Attachment{URL: " "})
	assert.True(t, apperror.Is(err, apperror.InvalidArgument))
	negative := int64(-1)
	_, err = h.messages.AppendAttachment(ctx, threadID, "bob", models.KindFile, models.Attachment{URL: "x", Size: &negative})
	assert.True(t, apperror.Is(err, apperror.InvalidArgument))

	history, err := h.messages.History(ctx, threadID, "alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.KindImage, history[0].Kind)
}
