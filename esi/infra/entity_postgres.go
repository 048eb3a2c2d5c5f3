package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"killboard-gateway/esi/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgDB é o subconjunto de *pgxpool.Pool usado aqui.
type PgDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresEntityStore guarda um snapshot JSONB por (tipo, id), uma tabela por tipo.
// updated_at fica numa coluna própria para Touch não reescrever o snapshot.
type PostgresEntityStore struct {
	db     PgDB
	tables map[domain.Kind]string
}

func NewPostgresEntityStore(db PgDB) *PostgresEntityStore {
	return &PostgresEntityStore{
		db: db,
		tables: map[domain.Kind]string{
			domain.KindCharacter:   "esi_characters",
			domain.KindCorporation: "esi_corporations",
			domain.KindAlliance:    "esi_alliances",
		},
	}
}

func (s *PostgresEntityStore) table(kind domain.Kind) (string, error) {
	t, ok := s.tables[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	return t, nil
}

// EnsureSchema cria as tabelas se ainda não existirem.
func (s *PostgresEntityStore) EnsureSchema(ctx context.Context) error {
	for _, kind := range domain.Kinds {
		t, _ := s.table(kind)
		sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id         BIGINT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`, t)
		if _, err := s.db.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create table %s: %w", t, err)
		}
	}
	return nil
}

func (s *PostgresEntityStore) FindOne(ctx context.Context, kind domain.Kind, id int64) (domain.Record, bool, error) {
	t, err := s.table(kind)
	if err != nil {
		return domain.Record{}, false, err
	}

	var rec domain.Record
	err = s.db.QueryRow(ctx, "SELECT data, updated_at FROM "+t+" WHERE id = $1", id).Scan(&rec.Data, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("select %s %d: %w", kind, id, err)
	}
	return rec, true, nil
}

func (s *PostgresEntityStore) Upsert(ctx context.Context, kind domain.Kind, id int64, rec domain.Record) error {
	t, err := s.table(kind)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `INSERT INTO `+t+` (id, data, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		id, rec.Data, rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert %s %d: %w", kind, id, err)
	}
	return nil
}

func (s *PostgresEntityStore) Touch(ctx context.Context, kind domain.Kind, id int64, at time.Time) (bool, error) {
	t, err := s.table(kind)
	if err != nil {
		return false, err
	}

	tag, err := s.db.Exec(ctx, "UPDATE "+t+" SET updated_at = $2 WHERE id = $1", id, at.UTC())
	if err != nil {
		return false, fmt.Errorf("touch %s %d: %w", kind, id, err)
	}
	return tag.RowsAffected() > 0, nil
}
