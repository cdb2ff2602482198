package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore 基于 Postgres 的产出存储（多进程部署）。
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveResult(ctx context.Context, r Result) error {
	if r.Fingerprint == "" {
		return errors.New("fingerprint 不能为空")
	}
	_, err := s.pool.Exec(ctx, `
insert into result(fingerprint, task_id, result_ref, created_at)
values ($1,$2,$3,$4)
on conflict (fingerprint) do nothing
`, r.Fingerprint, r.TaskID, r.ResultRef, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasResult(ctx context.Context, fingerprint string) (string, bool, error) {
	var ref string
	err := s.pool.QueryRow(ctx, `
select result_ref from result where fingerprint=$1
`, fingerprint).Scan(&ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query result: %w", err)
	}
	return ref, true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
