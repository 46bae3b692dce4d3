package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/bill-extractor/internal/common"
	"github.com/joseph-ayodele/bill-extractor/internal/entity"
)

type SecretRepository interface {
	Get(ctx context.Context, secretID string) (*entity.Secret, error)
	Put(ctx context.Context, secretID, value string) error
}

type secretRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewSecretRepository(db *DB, logger *slog.Logger) SecretRepository {
	return &secretRepo{db: db, logger: logger}
}

func (r *secretRepo) Get(ctx context.Context, secretID string) (*entity.Secret, error) {
	b := r.db.builder()
	q := b.Select("secret_id", "value", "updated_at").
		From(b.Table(tableAppSecret)).
		Where(entsql.EQ("secret_id", secretID))
	rows, err := r.db.query(ctx, q)
	if err != nil {
		r.logger.Error("failed to read secret", "secret_id", secretID, "error", err)
		return nil, fmt.Errorf("%w: query app_secret: %v", common.ErrDatabase, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: query app_secret: %v", common.ErrDatabase, err)
		}
		return nil, fmt.Errorf("secret %s: %w", secretID, common.ErrNotFound)
	}
	var s entity.Secret
	if err := rows.Scan(&s.SecretID, &s.Value, &s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%w: scan app_secret: %v", common.ErrDatabase, err)
	}
	return &s, nil
}

// Put inserts or replaces the value stored under secretID.
func (r *secretRepo) Put(ctx context.Context, secretID, value string) error {
	ins := r.db.builder().Insert(tableAppSecret).
		Columns("secret_id", "value", "updated_at").
		Values(secretID, value, time.Now().UTC()).
		OnConflict(
			entsql.ConflictColumns("secret_id"),
			entsql.ResolveWithNewValues(),
		)
	if _, err := r.db.exec(ctx, ins); err != nil {
		r.logger.Error("failed to store secret", "secret_id", secretID, "error", err)
		return fmt.Errorf("%w: upsert app_secret: %v", common.ErrDatabase, err)
	}
	r.logger.Info("secret stored", "secret_id", secretID)
	return nil
}
