package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/models"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Ping(ctx context.Context) error {
	return translate(s.pool.Ping(ctx), "database unreachable")
}

func (s *Postgres) Close() { s.pool.Close() }

func (s *Postgres) UpsertUser(ctx context.Context, u models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, display_name, image_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			image_url = EXCLUDED.image_url,
			updated_at = NOW()`,
		u.ID, u.Email, u.DisplayName, u.ImageURL)
	return translate(err, "failed to upsert user")
}

func (s *Postgres) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, display_name, image_url, created_at, updated_at
		FROM users
		WHERE email ILIKE $1 OR display_name ILIKE $1
		ORDER BY display_name NULLS LAST, id
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, translate(err, "failed to search users")
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.ImageURL, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, translate(err, "failed to scan user")
		}
		users = append(users, u)
	}
	return users, translate(rows.Err(), "failed to iterate users")
}

func (s *Postgres) EnsureDirectThread(ctx context.Context, key, ownerID, memberID string) (string, error) {
	var threadID string
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO threads (type, dm_key) VALUES ('direct', $1)
			ON CONFLICT (dm_key) DO NOTHING
			RETURNING id::text`, key).Scan(&threadID)
		if errors.Is(err, pgx.ErrNoRows) {
			// another transaction owns the key; its row is visible once it committed
			err = tx.QueryRow(ctx, `SELECT id::text FROM threads WHERE dm_key = $1`, key).Scan(&threadID)
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO thread_participants (thread_id, user_id, role)
			VALUES ($1, $2, 'owner'), ($1, $3, 'member')
			ON CONFLICT (thread_id, user_id) DO NOTHING`,
			threadID, ownerID, memberID)
		return err
	})
	if err != nil {
		return "", translate(err, "failed to ensure direct thread")
	}
	return threadID, nil
}

func (s *Postgres) CreateGroupThread(ctx context.Context, title, ownerID string, memberIDs []string) (models.Thread, error) {
	thread := models.Thread{Type: models.ThreadGroup, Title: &title}
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO threads (type, title) VALUES ('group', $1)
			RETURNING id::text, created_at, updated_at`, title).
			Scan(&thread.ID, &thread.CreatedAt, &thread.UpdatedAt)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO thread_participants (thread_id, user_id, role) VALUES ($1, $2, 'owner')`,
			thread.ID, ownerID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO thread_participants (thread_id, user_id, role)
			SELECT $1, m, 'member' FROM unnest($2::text[]) AS m
			ON CONFLICT (thread_id, user_id) DO NOTHING`,
			thread.ID, memberIDs)
		return err
	})
	if err != nil {
		return models.Thread{}, translate(err, "failed to create group thread")
	}
	return thread, nil
}

func (s *Postgres) GetThread(ctx context.Context, threadID string) (models.Thread, error) {
	var t models.Thread
	var typ string
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, type, title, dm_key, is_archived, created_at, updated_at
		FROM threads WHERE id = $1`, threadID).
		Scan(&t.ID, &typ, &t.Title, &t.DMKey, &t.Archived, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Thread{}, translate(err, "thread not found")
	}
	t.Type = models.ThreadType(typ)
	return t, nil
}

func (s *Postgres) GetParticipant(ctx context.Context, threadID, userID string) (models.Participant, error) {
	p := models.Participant{ThreadID: threadID, UserID: userID}
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT role, joined_at FROM thread_participants
		WHERE thread_id = $1 AND user_id = $2`, threadID, userID).Scan(&role, &p.JoinedAt)
	if err != nil {
		return models.Participant{}, translate(err, "participant not found")
	}
	p.Role = models.ParticipantRole(role)
	return p, nil
}

func (s *Postgres) ListThreadsForUser(ctx context.Context, userID string, limit int) ([]models.ThreadSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id::text, t.type, t.title, p.role, t.is_archived, t.updated_at
		FROM thread_participants AS p
		JOIN threads AS t ON t.id = p.thread_id
		WHERE p.user_id = $1
		ORDER BY t.updated_at DESC, t.id
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, translate(err, "failed to list threads")
	}
	defer rows.Close()

	threads := []models.ThreadSummary{}
	for rows.Next() {
		var t models.ThreadSummary
		var typ, role string
		if err := rows.Scan(&t.ID, &typ, &t.Title, &role, &t.Archived, &t.UpdatedAt); err != nil {
			return nil, translate(err, "failed to scan thread")
		}
		t.Type = models.ThreadType(typ)
		t.Role = models.ParticipantRole(role)
		threads = append(threads, t)
	}
	return threads, translate(rows.Err(), "failed to iterate threads")
}

func (s *Postgres) ArchiveThread(ctx context.Context, threadID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE threads SET is_archived = TRUE WHERE id = $1`, threadID)
	if err != nil {
		return translate(err, "failed to archive thread")
	}
	if tag.RowsAffected() == 0 {
		return apperror.New(apperror.NotFound, "thread not found")
	}
	return nil
}

func (s *Postgres) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var fileURL, fileName *string
	var fileSize *int64
	var fileMeta interface{}
	if a := msg.Attachment; a != nil {
		fileURL, fileName, fileSize = &a.URL, a.Name, a.Size
		if len(a.Meta) > 0 {
			fileMeta = string(a.Meta)
		}
	}

	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		// the row lock orders concurrent appends to one thread by commit
		var archived bool
		err := tx.QueryRow(ctx, `SELECT is_archived FROM threads WHERE id = $1 FOR UPDATE`, msg.ThreadID).Scan(&archived)
		if err != nil {
			return translate(err, "thread not found")
		}

		var member bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM thread_participants WHERE thread_id = $1 AND user_id = $2)`,
			msg.ThreadID, msg.SenderID).Scan(&member)
		if err != nil {
			return err
		}
		if !member {
			return apperror.New(apperror.Forbidden, "not a participant of this thread")
		}
		if archived {
			return apperror.New(apperror.Forbidden, "thread is archived")
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO chat_messages (thread_id, sender_id, source, kind, content, file_url, file_name, file_size, file_meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id::text, created_at`,
			msg.ThreadID, msg.SenderID, string(msg.Source), string(msg.Kind), msg.Content,
			fileURL, fileName, fileSize, fileMeta).Scan(&msg.ID, &msg.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE threads SET updated_at = $2 WHERE id = $1`, msg.ThreadID, msg.CreatedAt)
		return err
	})
	if err != nil {
		return models.Message{}, translate(err, "failed to store message")
	}
	return msg, nil
}

func (s *Postgres) RecentMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, thread_id::text, sender_id, source, kind, content,
		       file_url, file_name, file_size, file_meta, created_at
		FROM chat_messages
		WHERE thread_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`, threadID, limit)
	if err != nil {
		return nil, translate(err, "failed to retrieve messages")
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			m                 models.Message
			source, kind      string
			fileURL, fileName *string
			fileSize          *int64
			fileMeta          []byte
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderID, &source, &kind, &m.Content,
			&fileURL, &fileName, &fileSize, &fileMeta, &m.CreatedAt); err != nil {
			return nil, translate(err, "failed to scan message")
		}
		m.Source = models.MessageSource(source)
		m.Kind = models.MessageKind(kind)
		if fileURL != nil {
			m.Attachment = &models.Attachment{URL: *fileURL, Name: fileName, Size: fileSize, Meta: fileMeta}
		}
		messages = append(messages, m)
	}
	return messages, translate(rows.Err(), "failed to iterate messages")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// translate maps driver errors onto the apperror taxonomy. Errors that are
// already classified pass through unchanged.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.Wrap(apperror.NotFound, err, msg)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperror.Wrap(apperror.Conflict, err, "already exists")
		case "23503":
			return apperror.Wrap(apperror.NotFound, err, "referenced user or thread does not exist")
		case "22P02":
			return apperror.Wrap(apperror.NotFound, err, msg)
		case "23514":
			return apperror.Wrap(apperror.InvalidArgument, err, "value violates a constraint")
		}
	}
	return apperror.Wrap(apperror.Unavailable, err, msg)
}
