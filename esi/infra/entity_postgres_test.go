package infra

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"killboard-gateway/esi/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakePgDB struct {
	execs   []execCall
	tag     string
	execErr error

	queries []execCall
	row     fakeRow
}

func (db *fakePgDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, execCall{sql: sql, args: args})
	if db.execErr != nil {
		return pgconn.CommandTag{}, db.execErr
	}
	return pgconn.NewCommandTag(db.tag), nil
}

func (db *fakePgDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.queries = append(db.queries, execCall{sql: sql, args: args})
	return db.row
}

type fakeRow struct {
	data      []byte
	updatedAt time.Time
	err       error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.data
	*dest[1].(*time.Time) = r.updatedAt
	return nil
}

func TestPostgresEntityStore_EnsureSchemaCreatesOneTablePerKind(t *testing.T) {
	db := &fakePgDB{tag: "CREATE TABLE"}
	require.NoError(t, NewPostgresEntityStore(db).EnsureSchema(context.Background()))

	require.Len(t, db.execs, 3)
	for i, table := range []string{"esi_characters", "esi_corporations", "esi_alliances"} {
		require.Contains(t, db.execs[i].sql, "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestPostgresEntityStore_FindOne(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db := &fakePgDB{row: fakeRow{data: []byte(`{"name":"a"}`), updatedAt: at}}
	s := NewPostgresEntityStore(db)

	rec, ok, err := s.FindOne(context.Background(), domain.KindCorporation, 98000001)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, at, rec.UpdatedAt)
	require.Contains(t, db.queries[0].sql, "FROM esi_corporations")
	require.Equal(t, []any{int64(98000001)}, db.queries[0].args)
}

func TestPostgresEntityStore_FindOneNoRows(t *testing.T) {
	s := NewPostgresEntityStore(&fakePgDB{row: fakeRow{err: pgx.ErrNoRows}})

	_, ok, err := s.FindOne(context.Background(), domain.KindCharacter, 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPostgresEntityStore_FindOneError(t *testing.T) {
	boom := errors.New("conn reset")
	s := NewPostgresEntityStore(&fakePgDB{row: fakeRow{err: boom}})

	_, _, err := s.FindOne(context.Background(), domain.KindCharacter, 1)
	require.ErrorIs(t, err, boom)
}

func TestPostgresEntityStore_UpsertUsesOnConflict(t *testing.T) {
	db := &fakePgDB{tag: "INSERT 0 1"}
	s := NewPostgresEntityStore(db)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))

	require.NoError(t, s.Upsert(context.Background(), domain.KindAlliance, 99000001, domain.Record{Data: []byte(`{}`), UpdatedAt: at}))

	call := db.execs[0]
	require.True(t, strings.HasPrefix(call.sql, "INSERT INTO esi_alliances"))
	require.Contains(t, call.sql, "ON CONFLICT (id) DO UPDATE")
	require.Equal(t, int64(99000001), call.args[0])
	require.Equal(t, at.UTC(), call.args[2])
}

func TestPostgresEntityStore_Touch(t *testing.T) {
	db := &fakePgDB{tag: "UPDATE 1"}
	s := NewPostgresEntityStore(db)

	ok, err := s.Touch(context.Background(), domain.KindCharacter, 1, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, db.execs[0].sql, "UPDATE esi_characters SET updated_at")

	db.tag = "UPDATE 0"
	ok, err = s.Touch(context.Background(), domain.KindCharacter, 2, time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPostgresEntityStore_UnknownKind(t *testing.T) {
	s := NewPostgresEntityStore(&fakePgDB{})

	err := s.Upsert(context.Background(), domain.Kind("ship"), 1, domain.Record{})
	require.Error(t, err)
}
