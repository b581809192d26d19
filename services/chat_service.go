package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/db"
	"github.com/praptisiva25/WorkBud/models"
)

// ThreadDirectory resolves direct threads, creates group threads and lists
// a user's memberships.
type ThreadDirectory struct {
	store   db.Store
	listMax int
	log     *zap.Logger
}

func NewThreadDirectory(store db.Store, listMax int, log *zap.Logger) *ThreadDirectory {
	if log == nil {
		log = zap.NewNop()
	}
	return &ThreadDirectory{store: store, listMax: listMax, log: log}
}

// ResolveDirectThread returns the single direct thread between userA and
// userB, creating it on first contact. Concurrent calls from either side
// converge on the same row through the dm key uniqueness constraint.
func (d *ThreadDirectory) ResolveDirectThread(ctx context.Context, userA, userB string) (string, error) {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return "", apperror.New(apperror.InvalidArgument, "both user ids are required")
	}
	if userA == userB {
		return "", apperror.New(apperror.InvalidArgument, "cannot DM yourself")
	}

	lo, hi := models.OrderPair(userA, userB)
	threadID, err := d.store.EnsureDirectThread(ctx, models.DirectKey(lo, hi), lo, hi)
	if err != nil {
		d.log.Warn("resolve direct thread failed", zap.String("user", userA), zap.String("other", userB), zap.Error(err))
		return "", err
	}
	return threadID, nil
}

// ListMemberships returns the user's threads, most recently active first.
func (d *ThreadDirectory) ListMemberships(ctx context.Context, userID string, limit int) ([]models.ThreadSummary, error) {
	if limit <= 0 || limit > d.listMax {
		limit = d.listMax
	}
	return d.store.ListThreadsForUser(ctx, userID, limit)
}

// CreateGroupThread creates a titled thread owned by ownerID. Duplicate
// member ids and the owner's own id are ignored in memberIDs.
func (d *ThreadDirectory) CreateGroupThread(ctx context.Context, ownerID, title string, memberIDs []string) (models.Thread, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Thread{}, apperror.New(apperror.InvalidArgument, "title is required")
	}

	seen := map[string]struct{}{ownerID: {}}
	members := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}

	thread, err := d.store.CreateGroupThread(ctx, title, ownerID, members)
	if err != nil {
		return models.Thread{}, err
	}
	d.log.Info("group thread created", zap.String("thread_id", thread.ID), zap.Int("members", len(members)+1))
	return thread, nil
}

// IsParticipant reports whether userID belongs to threadID.
func (d *ThreadDirectory) IsParticipant(ctx context.Context, threadID, userID string) (bool, error) {
	_, err := d.store.GetParticipant(ctx, threadID, userID)
	switch {
	case err == nil:
		return true, nil
	case apperror.Is(err, apperror.NotFound):
		return false, nil
	default:
		return false, err
	}
}

func (d *ThreadDirectory) GetThread(ctx context.Context, threadID, requesterID string) (models.Thread, error) {
	thread, err := d.store.GetThread(ctx, threadID)
	if err != nil {
		return models.Thread{}, err
	}
	ok, err := d.IsParticipant(ctx, threadID, requesterID)
	if err != nil {
		return models.Thread{}, err
	}
	if !ok {
		return models.Thread{}, apperror.New(apperror.Forbidden, "not a participant of this thread")
	}
	return thread, nil
}

// ArchiveThread marks the thread archived. Only an owner may archive.
func (d *ThreadDirectory) ArchiveThread(ctx context.Context, threadID, requesterID string) error {
	p, err := d.store.GetParticipant(ctx, threadID, requesterID)
	if apperror.Is(err, apperror.NotFound) {
		return apperror.New(apperror.Forbidden, "not a participant of this thread")
	}
	if err != nil {
		return err
	}
	if p.Role != models.RoleOwner {
		return apperror.New(apperror.Forbidden, "only the thread owner can archive it")
	}
	return d.store.ArchiveThread(ctx, threadID)
}
