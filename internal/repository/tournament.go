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

type TournamentRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTournamentRepository(sqlDB *sql.DB, logger zerolog.Logger) *TournamentRepository {
	return &TournamentRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *TournamentRepository) Create(ctx context.Context, tournament *domain.Tournament) error {
	if tournament.ID == "" {
		tournament.ID = uuid.New().String()
	}
	tournament.CreatedAt = time.Now().UTC()
	tournament.UpdatedAt = tournament.CreatedAt

	sb := sqlbuilder.SQLite.NewInsertBuilder()
	sb.InsertInto("tournaments")
	sb.Cols("id", "name", "bcp_event_id", "current_round", "created_at", "updated_at")
	sb.Values(tournament.ID, tournament.Name, tournament.BCPEventID, tournament.CurrentRound, tournament.CreatedAt, tournament.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error().Err(err).Str("tournament_id", tournament.ID).Msg("failed to create tournament")
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *TournamentRepository) Get(ctx context.Context, id string) (*domain.Tournament, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "name", "bcp_event_id", "current_round", "created_at", "updated_at")
	sb.From("tournaments")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var t domain.Tournament
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.Name, &t.BCPEventID, &t.CurrentRound, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tournament %s: %w", id, err)
	}
	return &t, nil
}

func (r *TournamentRepository) UpdateCurrentRound(ctx context.Context, id string, round int) error {
	sb := sqlbuilder.SQLite.NewUpdateBuilder()
	sb.Update("tournaments")
	sb.Set(
		sb.Assign("current_round", round),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update current round: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrTournamentNotFound
	}
	return nil
}
