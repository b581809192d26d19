package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praptisiva25/WorkBud/config"
	"github.com/praptisiva25/WorkBud/db"
	"github.com/praptisiva25/WorkBud/models"
)

// fakeSession records every payload it is sent.
type fakeSession struct {
	id, user string
	fail     bool

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeSession(id, user string) *fakeSession {
	return &fakeSession{id: id, user: user}
}

func (s *fakeSession) ID() string     { return s.id }
func (s *fakeSession) UserID() string { return s.user }

func (s *fakeSession) Send(p []byte) error {
	if s.fail {
		return errors.New("gone")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, p)
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) messages(t *testing.T) []models.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, f := range s.frames {
		var ev models.Outbound
		require.NoError(t, json.Unmarshal(f, &ev))
		if ev.Type == models.EventMessageNew {
			out = append(out, *ev.Message)
		}
	}
	return out
}

type harness struct {
	store      *db.Memory
	dispatcher *Dispatcher
	threads    *ThreadDirectory
	messages   *MessageLog
	users      *UserDirectory
}

func newHarness(t *testing.T, users ...string) *harness {
	t.Helper()
	limits := config.Default().Limits
	store := db.NewMemory()
	d := NewDispatcher(nil, nil)
	h := &harness{
		store:      store,
		dispatcher: d,
		threads:    NewThreadDirectory(store, limits.ThreadListMax, nil),
		messages:   NewMessageLog(store, d, limits, nil, nil),
		users:      NewUserDirectory(store, limits.UserSearch),
	}
	for _, u := range users {
		name := u
		require.NoError(t, h.users.Sync(context.Background(), models.User{ID: u, DisplayName: &name}))
	}
	return h
}

func texts(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text()
	}
	return out
}
