package services

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/config"
	"github.com/praptisiva25/WorkBud/db"
	"github.com/praptisiva25/WorkBud/metrics"
	"github.com/praptisiva25/WorkBud/models"
)

const maxContentLength = 8000

// Broadcaster receives every message right after it is durably stored.
type Broadcaster interface {
	Broadcast(threadID string, msg models.Message) int
}

// MessageLog appends to and reads from a thread's history. All appends go
// through here so fan-out always follows a committed write.
type MessageLog struct {
	store       db.Store
	broadcaster Broadcaster
	limits      config.Limits
	log         *zap.Logger
	metrics     *metrics.Metrics

	// striped per-thread locks; an append and its broadcast happen under one
	stripes [64]sync.Mutex
}

func NewMessageLog(store db.Store, b Broadcaster, limits config.Limits, log *zap.Logger, m *metrics.Metrics) *MessageLog {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageLog{store: store, broadcaster: b, limits: limits, log: log, metrics: m}
}

// Append stores a text message from senderID and broadcasts it to the room.
func (l *MessageLog) Append(ctx context.Context, threadID, senderID, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, apperror.New(apperror.InvalidArgument, "content is empty")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return models.Message{}, apperror.Newf(apperror.InvalidArgument, "content exceeds %d characters", maxContentLength)
	}
	return l.append(ctx, models.Message{
		ThreadID: threadID,
		SenderID: senderID,
		Source:   models.SourceManual,
		Kind:     models.KindText,
		Content:  &content,
	})
}

// AppendAttachment stores an image or file reference. Only the URL and its
// descriptive fields are kept.
func (l *MessageLog) AppendAttachment(ctx context.Context, threadID, senderID string, kind models.MessageKind, a models.Attachment) (models.Message, error) {
	if !kind.IsAttachment() {
		return models.Message{}, apperror.Newf(apperror.InvalidArgument, "kind %q is not an attachment kind", kind)
	}
	a.URL = strings.TrimSpace(a.URL)
	if a.URL == "" {
		return models.Message{}, apperror.New(apperror.InvalidArgument, "attachment url is required")
	}
	if a.Size != nil && *a.Size < 0 {
		return models.Message{}, apperror.New(apperror.InvalidArgument, "attachment size is negative")
	}
	return l.append(ctx, models.Message{
		ThreadID:   threadID,
		SenderID:   senderID,
		Source:     models.SourceManual,
		Kind:       kind,
		Attachment: &a,
	})
}

func (l *MessageLog) append(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.ThreadID == "" {
		return models.Message{}, apperror.New(apperror.InvalidArgument, "thread id is required")
	}

	mu := l.stripe(msg.ThreadID)
	mu.Lock()
	defer mu.Unlock()

	stored, err := l.store.InsertMessage(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}
	l.metrics.MessageAppended(string(stored.Kind))

	if l.broadcaster != nil {
		n := l.broadcaster.Broadcast(stored.ThreadID, stored)
		l.log.Debug("message fanned out",
			zap.String("thread_id", stored.ThreadID),
			zap.String("message_id", stored.ID),
			zap.Int("sessions", n))
	}
	return stored, nil
}

// History returns up to limit of the thread's most recent messages, oldest
// first, so later realtime events can be appended to the end.
func (l *MessageLog) History(ctx context.Context, threadID, requesterID string, limit int) ([]models.Message, error) {
	if _, err := l.store.GetParticipant(ctx, threadID, requesterID); err != nil {
		if apperror.Is(err, apperror.NotFound) {
			return nil, apperror.New(apperror.Forbidden, "not a participant of this thread")
		}
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = l.limits.HistoryDefault
	case limit > l.limits.HistoryMax:
		limit = l.limits.HistoryMax
	}

	messages, err := l.store.RecentMessages(ctx, threadID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (l *MessageLog) stripe(threadID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(threadID))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}
