package bunsession_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/karloscodes/scopedb/bunsession"
	"github.com/karloscodes/scopedb/pool"
)

type Task struct {
	bun.BaseModel `bun:"table:tasks"`

	ID    int64  `bun:",pk,autoincrement"`
	Title string `bun:",unique,notnull"`
	Done  bool
}

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := bunsession.Open(bunsession.OpenConfig{
		Type: bunsession.SQLite,
		DSN:  "file:" + filepath.Join(t.TempDir(), "tasks.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewCreateTable().Model((*Task)(nil)).Exec(context.Background())
	require.NoError(t, err)
	return db
}

func newSession(db *bun.DB) *bunsession.Session {
	return bunsession.New(db, bunsession.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func countTasks(t *testing.T, db *bun.DB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*Task)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := bunsession.Open(bunsession.OpenConfig{Type: "oracle"})
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestSession_BuffersUntilSave(t *testing.T) {
	db := setupDB(t)
	s := newSession(db)

	s.Add(&Task{Title: "write docs"})
	assert.True(t, s.HasChanges())
	assert.Equal(t, 0, countTasks(t, db))

	require.NoError(t, s.SaveChanges(context.Background()))
	assert.False(t, s.HasChanges())
	assert.Equal(t, 1, countTasks(t, db))
}

func TestSession_UpdateAndRemove(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	task := &Task{Title: "ship"}
	_, err := db.NewInsert().Model(task).Exec(ctx)
	require.NoError(t, err)

	s := newSession(db)
	task.Done = true
	s.Update(task)
	require.NoError(t, s.SaveChanges(ctx))

	var got Task
	require.NoError(t, db.NewSelect().Model(&got).Where("id = ?", task.ID).Scan(ctx))
	assert.True(t, got.Done)

	s.Remove(task)
	s.Exec("INSERT INTO tasks (title, done) VALUES (?, ?)", "raw", false)
	require.NoError(t, s.SaveChanges(ctx))
	assert.Equal(t, 1, countTasks(t, db))
}

func TestSession_FailureKeepsPending(t *testing.T) {
	db := setupDB(t)
	s := newSession(db)

	s.Add(&Task{Title: "same"})
	s.Add(&Task{Title: "same"})

	err := s.SaveChanges(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, countTasks(t, db))
	assert.Equal(t, 2, s.Pending())

	s.Discard()
	assert.False(t, s.HasChanges())
}

func TestSession_DiscardDuringSaveKeepsLaterWork(t *testing.T) {
	db := setupDB(t)
	s := newSession(db)

	s.Do(func(ctx context.Context, tx bun.Tx) error {
		s.Discard()
		s.Add(&Task{Title: "queued after discard"})
		_, err := tx.NewInsert().Model(&Task{Title: "in flight"}).Exec(ctx)
		return err
	})

	require.NoError(t, s.SaveChanges(context.Background()))
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.SaveChanges(context.Background()))
	assert.Equal(t, 2, countTasks(t, db))
}

func TestSession_DiscardLogs(t *testing.T) {
	db := setupDB(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := bunsession.New(db, bunsession.WithLogger(logger))

	s.Discard()
	assert.Empty(t, buf.String())

	s.Add(&Task{Title: "dropped"})
	s.Add(&Task{Title: "dropped too"})
	s.Discard()

	assert.Contains(t, buf.String(), "session changes discarded")
	assert.Contains(t, buf.String(), "operations=2")
	assert.Equal(t, 0, countTasks(t, db))
}

func TestPool_MixesWithOtherSessions(t *testing.T) {
	db := setupDB(t)
	a, b := newSession(db), newSession(db)

	p := pool.New()
	require.NoError(t, p.Register(a))
	require.NoError(t, p.Register(b))
	require.NoError(t, p.Register(a))

	b.Add(&Task{Title: "only b"})

	n, err := p.CommitAllContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, countTasks(t, db))
}
