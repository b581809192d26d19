package db

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praptisiva25/WorkBud/apperror"
	"github.com/praptisiva25/WorkBud/config"
	"github.com/praptisiva25/WorkBud/models"
)

func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := InitDatabase(ctx, config.Database{URL: url, MaxConns: 16})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewPostgres(pool)
}

func TestTranslateErrors(t *testing.T) {
	assert.Nil(t, translate(nil, "x"))
	assert.True(t, apperror.Is(translate(&pgconn.PgError{Code: "23505"}, "x"), apperror.Conflict))
	assert.True(t, apperror.Is(translate(&pgconn.PgError{Code: "23503"}, "x"), apperror.NotFound))
	assert.True(t, apperror.Is(translate(&pgconn.PgError{Code: "40001"}, "x"), apperror.Unavailable))
	assert.True(t, apperror.Is(translate(context.DeadlineExceeded, "x"), apperror.Unavailable))

	classified := apperror.New(apperror.Forbidden, "no")
	assert.Equal(t, classified, translate(classified, "x"))
}

func TestPostgresDirectThreadAndMessages(t *testing.T) {
	s := openTestPostgres(t)
	ctx := context.Background()

	a, b := "u-"+uuid.NewString(), "u-"+uuid.NewString()
	seedUsers(t, s, a, b)
	lo, hi := models.OrderPair(a, b)
	key := models.DirectKey(a, b)

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.EnsureDirectThread(ctx, key, lo, hi)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}

	list, err := s.ListThreadsForUser(ctx, a, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ThreadDirect, list[0].Type)

	for _, text := range []string{"a", "b"} {
		c := text
		_, err := s.InsertMessage(ctx, models.Message{ThreadID: ids[0], SenderID: a, Source: models.SourceManual, Kind: models.KindText, Content: &c})
		require.NoError(t, err)
	}
	recent, err := s.RecentMessages(ctx, ids[0], 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Text())
	assert.Equal(t, "a", recent[1].Text())

	stranger := "u-" + uuid.NewString()
	seedUsers(t, s, stranger)
	c := "nope"
	_, err = s.InsertMessage(ctx, models.Message{ThreadID: ids[0], SenderID: stranger, Source: models.SourceManual, Kind: models.KindText, Content: &c})
	assert.True(t, apperror.Is(err, apperror.Forbidden))

	_, err = s.GetThread(ctx, "not-a-uuid")
	assert.True(t, apperror.Is(err, apperror.NotFound))
}
