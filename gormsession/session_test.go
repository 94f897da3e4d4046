package gormsession_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/karloscodes/scopedb/database"
	"github.com/karloscodes/scopedb/gormsession"
	"github.com/karloscodes/scopedb/pool"
	"github.com/karloscodes/scopedb/sqlite"
	"github.com/karloscodes/scopedb/testsupport"
)

type Note struct {
	ID    uint   `gorm:"primarykey"`
	Title string `gorm:"uniqueIndex"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetries() database.TransactionConfig {
	return database.TransactionConfig{
		UseNativeSQLiteQueuing: true,
		MaxRetries:             2,
		BaseDelay:              time.Millisecond,
		MaxDelay:               time.Millisecond,
	}
}

func newSession(db *gorm.DB) *gormsession.Session {
	return gormsession.New(db,
		gormsession.WithLogger(quietLogger()),
		gormsession.WithTransactionConfig(fastRetries()),
	)
}

func countNotes(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&Note{}).Count(&n).Error)
	return n
}

func TestSession_BuffersUntilSave(t *testing.T) {
	db := testsupport.SetupTestDB(t, testsupport.TestDBOptions{Models: []any{&Note{}}})
	s := newSession(db)

	assert.False(t, s.HasChanges())
	s.Add(&Note{Title: "first"})
	s.Add(&Note{Title: "second"})

	assert.True(t, s.HasChanges())
	assert.Equal(t, 2, s.Pending())
	assert.Equal(t, int64(0), countNotes(t, db))

	require.NoError(t, s.SaveChanges(context.Background()))
	assert.False(t, s.HasChanges())
	assert.Equal(t, int64(2), countNotes(t, db))
}

func TestSession_UpdateRemoveExec(t *testing.T) {
	db := testsupport.SetupTestDB(t, testsupport.TestDBOptions{Models: []any{&Note{}}})
	note := &Note{Title: "draft"}
	require.NoError(t, db.Create(note).Error)

	s := newSession(db)
	note.Title = "published"
	s.Update(note)
	s.Exec("INSERT INTO notes (title) VALUES (?)", "raw")
	require.NoError(t, s.SaveChanges(context.Background()))

	var got Note
	require.NoError(t, s.DB(context.Background()).First(&got, note.ID).Error)
	assert.Equal(t, "published", got.Title)
	assert.Equal(t, int64(2), countNotes(t, db))

	s.Remove(note)
	require.NoError(t, s.SaveChanges(context.Background()))
	assert.Equal(t, int64(1), countNotes(t, db))
}

func TestSession_FailureRollsBackAndKeepsPending(t *testing.T) {
	db := testsupport.SetupTestDB(t, testsupport.TestDBOptions{Models: []any{&Note{}}})
	require.NoError(t, db.Create(&Note{Title: "taken"}).Error)

	s := newSession(db)
	s.Add(&Note{Title: "fresh"})
	s.Add(&Note{Title: "taken"})

	err := s.SaveChanges(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation 1")

	assert.Equal(t, int64(1), countNotes(t, db), "first insert must be rolled back")
	assert.Equal(t, 2, s.Pending())
}

func TestSession_CustomOperationError(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	s := newSession(db)
	boom := errors.New("custom failure")

	s.Do(func(tx *gorm.DB) error { return boom })

	err := s.SaveChanges(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSession_Discard(t *testing.T) {
	db := testsupport.SetupTestDB(t, testsupport.TestDBOptions{Models: []any{&Note{}}})
	s := newSession(db)
	s.Add(&Note{Title: "never"})

	s.Discard()

	assert.False(t, s.HasChanges())
	require.NoError(t, s.SaveChanges(context.Background()))
	assert.Equal(t, int64(0), countNotes(t, db))
}

func TestSession_DiscardDuringSaveKeepsLaterWork(t *testing.T) {
	db := testsupport.SetupTestDB(t, testsupport.TestDBOptions{Models: []any{&Note{}}})
	s := newSession(db)

	s.Do(func(tx *gorm.DB) error {
		s.Discard()
		s.Add(&Note{Title: "queued after discard"})
		return tx.Create(&Note{Title: "in flight"}).Error
	})

	require.NoError(t, s.SaveChanges(context.Background()))
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.SaveChanges(context.Background()))
	assert.Equal(t, int64(2), countNotes(t, db))
	assert.False(t, s.HasChanges())
}

func TestSession_IDsAreUnique(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	a, b := newSession(db), newSession(db)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestPool_CommitsGormSessions(t *testing.T) {
	db := testsupport.SetupTestDB(t, testsupport.TestDBOptions{Models: []any{&Note{}}})
	primary, extra, idle := newSession(db), newSession(db), newSession(db)

	p := pool.New(pool.WithLogger(quietLogger()))
	for _, s := range []*gormsession.Session{primary, extra, idle, extra} {
		require.NoError(t, p.Register(s))
	}

	primary.Add(&Note{Title: "from primary"})
	extra.Add(&Note{Title: "from extra"})

	n, err := p.CommitAllContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, int64(2), countNotes(t, db))
}

func TestPool_PartialCommitOnFailure(t *testing.T) {
	db := testsupport.SetupTestDB(t, testsupport.TestDBOptions{Models: []any{&Note{}}})
	first, failing, last := newSession(db), newSession(db), newSession(db)

	p := pool.New(pool.WithLogger(quietLogger()))
	require.NoError(t, p.Register(first))
	require.NoError(t, p.Register(failing))
	require.NoError(t, p.Register(last))

	first.Add(&Note{Title: "dup"})
	failing.Add(&Note{Title: "dup"})
	last.Add(&Note{Title: "never saved"})

	n, err := p.CommitAll()
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), countNotes(t, db))
	assert.True(t, last.HasChanges())
}

func TestFromManager(t *testing.T) {
	cfg := database.DefaultConfig(":memory:")
	cfg.Write = fastRetries()
	m := sqlite.NewManagerWithConfig(cfg, quietLogger())
	t.Cleanup(func() { _ = m.Close() })

	s, err := gormsession.FromManager(m)
	require.NoError(t, err)

	require.NoError(t, s.DB(context.Background()).AutoMigrate(&Note{}))
	s.Add(&Note{Title: "managed"})
	require.NoError(t, s.SaveChanges(context.Background()))

	var n int64
	require.NoError(t, s.DB(context.Background()).Model(&Note{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
