package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	name string
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.name
	return nil
}

type fakeQuerier struct {
	row      fakeRow
	lastSQL  string
	lastArgs []any
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.lastSQL = sql
	q.lastArgs = args
	return q.row
}

func TestPostgresStoreDisplayName(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{name: "Grace"}}
	store := NewPostgresStore(q)

	name, err := store.DisplayName(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "Grace", name)
	assert.Equal(t, displayNameQuery, q.lastSQL)
	assert.Equal(t, []any{"user_1"}, q.lastArgs)
}

func TestPostgresStoreNotFound(t *testing.T) {
	store := NewPostgresStore(&fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}})

	_, err := store.DisplayName(context.Background(), "user_404")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresStoreQueryError(t *testing.T) {
	boom := errors.New("boom")
	store := NewPostgresStore(&fakeQuerier{row: fakeRow{err: boom}})

	_, err := store.DisplayName(context.Background(), "user_1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}
