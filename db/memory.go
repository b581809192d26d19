package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/models"
)

// Memory is a process-local Store with the same constraints as the Postgres
// schema: unique dm keys, unique (thread, user) participants and user
// references. It backs tests and single-process dev runs.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[string]models.User
	emails   map[string]string // lower(email) -> user id
	threads  map[string]*models.Thread
	dmKeys   map[string]string // dm key -> thread id
	members  map[string]map[string]models.Participant
	messages map[string][]models.Message // insertion order
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		users:    map[string]models.User{},
		emails:   map[string]string{},
		threads:  map[string]*models.Thread{},
		dmKeys:   map[string]string{},
		members:  map[string]map[string]models.Participant{},
		messages: map[string][]models.Message{},
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

func (m *Memory) UpsertUser(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if u.Email != nil {
		key := strings.ToLower(*u.Email)
		if owner, ok := m.emails[key]; ok && owner != u.ID {
			return apperror.New(apperror.Conflict, "already exists")
		}
	}
	prev, exists := m.users[u.ID]
	if exists && prev.Email != nil {
		delete(m.emails, strings.ToLower(*prev.Email))
	}
	if u.Email != nil {
		m.emails[strings.ToLower(*u.Email)] = u.ID
	}
	u.CreatedAt, u.UpdatedAt = now, now
	if exists {
		u.CreatedAt = prev.CreatedAt
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) SearchUsers(_ context.Context, query string, limit int) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := strings.ToLower(query)
	matches := func(v *string) bool {
		return v != nil && strings.Contains(strings.ToLower(*v), q)
	}
	out := []models.User{}
	for _, u := range m.users {
		if matches(u.Email) || matches(u.DisplayName) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].DisplayName, out[j].DisplayName
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a == nil && b != nil:
			return false
		case a != nil && b == nil:
			return true
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) EnsureDirectThread(_ context.Context, key, ownerID, memberID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireUsersLocked(ownerID, memberID); err != nil {
		return "", err
	}
	id, ok := m.dmKeys[key]
	if !ok {
		now := m.now().UTC()
		k := key
		id = uuid.NewString()
		m.threads[id] = &models.Thread{ID: id, Type: models.ThreadDirect, DMKey: &k, CreatedAt: now, UpdatedAt: now}
		m.dmKeys[key] = id
		m.members[id] = map[string]models.Participant{}
	}
	m.addMemberLocked(id, ownerID, models.RoleOwner)
	m.addMemberLocked(id, memberID, models.RoleMember)
	return id, nil
}

func (m *Memory) CreateGroupThread(_ context.Context, title, ownerID string, memberIDs []string) (models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireUsersLocked(append([]string{ownerID}, memberIDs...)...); err != nil {
		return models.Thread{}, err
	}
	now := m.now().UTC()
	t := &models.Thread{ID: uuid.NewString(), Type: models.ThreadGroup, Title: &title, CreatedAt: now, UpdatedAt: now}
	m.threads[t.ID] = t
	m.members[t.ID] = map[string]models.Participant{}
	m.addMemberLocked(t.ID, ownerID, models.RoleOwner)
	for _, id := range memberIDs {
		m.addMemberLocked(t.ID, id, models.RoleMember)
	}
	return *t, nil
}

func (m *Memory) GetThread(_ context.Context, threadID string) (models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[threadID]
	if !ok {
		return models.Thread{}, apperror.New(apperror.NotFound, "thread not found")
	}
	return *t, nil
}

func (m *Memory) GetParticipant(_ context.Context, threadID, userID string) (models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.members[threadID][userID]
	if !ok {
		return models.Participant{}, apperror.New(apperror.NotFound, "participant not found")
	}
	return p, nil
}

func (m *Memory) ListThreadsForUser(_ context.Context, userID string, limit int) ([]models.ThreadSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.ThreadSummary{}
	for id, members := range m.members {
		p, ok := members[userID]
		if !ok {
			continue
		}
		t := m.threads[id]
		out = append(out, models.ThreadSummary{
			ID: t.ID, Type: t.Type, Title: t.Title, Role: p.Role, Archived: t.Archived, UpdatedAt: t.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ArchiveThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[threadID]
	if !ok {
		return apperror.New(apperror.NotFound, "thread not found")
	}
	t.Archived = true
	return nil
}

func (m *Memory) InsertMessage(_ context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.threads[msg.ThreadID]
	if !ok {
		return models.Message{}, apperror.New(apperror.NotFound, "thread not found")
	}
	if _, ok := m.members[msg.ThreadID][msg.SenderID]; !ok {
		return models.Message{}, apperror.New(apperror.Forbidden, "not a participant of this thread")
	}
	if t.Archived {
		return models.Message{}, apperror.New(apperror.Forbidden, "thread is archived")
	}
	if (msg.Kind == models.KindText) != (msg.Content != nil) || (msg.Kind == models.KindText) != (msg.Attachment == nil) {
		return models.Message{}, apperror.New(apperror.InvalidArgument, "value violates a constraint")
	}

	created := m.now().UTC()
	if existing := m.messages[msg.ThreadID]; len(existing) > 0 {
		if last := existing[len(existing)-1].CreatedAt; !created.After(last) {
			created = last.Add(time.Microsecond)
		}
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = created
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], msg)
	t.UpdatedAt = created
	return msg, nil
}

func (m *Memory) RecentMessages(_ context.Context, threadID string, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.messages[threadID]
	out := make([]models.Message, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) requireUsersLocked(ids ...string) error {
	for _, id := range ids {
		if _, ok := m.users[id]; !ok {
			return apperror.New(apperror.NotFound, "referenced user or thread does not exist")
		}
	}
	return nil
}

func (m *Memory) addMemberLocked(threadID, userID string, role models.ParticipantRole) {
	if _, ok := m.members[threadID][userID]; ok {
		return
	}
	m.members[threadID][userID] = models.Participant{
		ThreadID: threadID, UserID: userID, Role: role, JoinedAt: m.now().UTC(),
	}
}
