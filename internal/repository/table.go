package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"table-allocator/internal/domain"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/rs/zerolog"
)

type TableRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTableRepository(sqlDB *sql.DB, logger zerolog.Logger) *TableRepository {
	return &TableRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// CreateBatch inserts the full table set of a tournament in one transaction.
// The UNIQUE(tournament_id, number) index rejects duplicate numbers.
func (r *TableRepository) CreateBatch(ctx context.Context, tables []domain.Table) error {
	if len(tables) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	sb := sqlbuilder.SQLite.NewInsertBuilder()
	sb.InsertInto("tables")
	sb.Cols("id", "tournament_id", "number", "terrain", "created_at", "updated_at")
	for i := range tables {
		if tables[i].ID == "" {
			tables[i].ID = uuid.New().String()
		}
		tables[i].CreatedAt = now
		tables[i].UpdatedAt = now
		sb.Values(tables[i].ID, tables[i].TournamentID, tables[i].Number, tables[i].Terrain, tables[i].CreatedAt, tables[i].UpdatedAt)
	}

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error().Err(err).Int("count", len(tables)).Msg("failed to create tables")
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return tx.Commit()
}

func (r *TableRepository) ListByTournament(ctx context.Context, tournamentID string) ([]domain.Table, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "tournament_id", "number", "terrain", "created_at", "updated_at")
	sb.From("tables")
	sb.Where(sb.Equal("tournament_id", tournamentID))
	sb.OrderBy("number")

	query, args := sb.Build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []domain.Table
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.ID, &t.TournamentID, &t.Number, &t.Terrain, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (r *TableRepository) GetByNumber(ctx context.Context, tournamentID string, number int) (*domain.Table, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "tournament_id", "number", "terrain", "created_at", "updated_at")
	sb.From("tables")
	sb.Where(
		sb.Equal("tournament_id", tournamentID),
		sb.Equal("number", number),
	)

	query, args := sb.Build()
	var t domain.Table
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&t.ID, &t.TournamentID, &t.Number, &t.Terrain, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table %d: %w", number, err)
	}
	return &t, nil
}
