// Package mysql は persistence.Store の MySQL 実装。クエリは全てプレースホルダ経由。
package mysql

import (
	"context"
	"database/sql"
	"errors"

	"ROLLCALL-backend/internal/persistence"
	"ROLLCALL-backend/internal/platform/db"
)

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	return db.ReadWrite(ctx, s.db, func(ctx context.Context, q db.DBTX) error {
		return fn(ctx, &repo{q: q})
	})
}

func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	return db.ReadOnly(ctx, s.db, func(ctx context.Context, q db.DBTX) error {
		return fn(ctx, &repo{q: q})
	})
}

// repo は1トランザクション分のリポジトリ群
type repo struct {
	q db.DBTX
}

var _ persistence.Tx = (*repo)(nil)

// mapErr はドライバのエラーを persistence のエラーに寄せる
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return persistence.ErrNotFound
	case db.IsDuplicateKey(err):
		return errors.Join(persistence.ErrDuplicate, err)
	case db.IsForeignKey(err):
		return errors.Join(persistence.ErrForeignKey, err)
	default:
		return err
	}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
