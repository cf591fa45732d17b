package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"table-allocator/internal/domain"

	"github.com/huandu/go-sqlbuilder"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var allocationColumns = []string{
	"id", "tournament_id", "round", "table_number", "terrain",
	"player_a_id", "player_a_name", "player_a_score",
	"player_b_id", "player_b_name", "player_b_score",
	"bcp_table", "audit", "version", "created_at", "updated_at",
}

type AllocationRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAllocationRepository(sqlDB *sql.DB, logger zerolog.Logger) *AllocationRepository {
	return &AllocationRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// ReplaceRound persists a fresh generation run: the round's previous
// decisions are dropped and the new set is written, each with its audit
// record appended to the audit history, all in one transaction.
func (r *AllocationRepository) ReplaceRound(ctx context.Context, tournamentID string, round int, allocations []domain.Allocation) ([]domain.Allocation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom("allocations")
	del.Where(
		del.Equal("tournament_id", tournamentID),
		del.Equal("round", round),
	)
	query, args := del.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to clear round %d: %w", round, err)
	}

	now := time.Now().UTC()
	for i := range allocations {
		a := &allocations[i]
		if a.ID == "" {
			a.ID, err = gonanoid.New()
			if err != nil {
				return nil, fmt.Errorf("failed to generate allocation id: %w", err)
			}
		}
		if a.Audit.ID == "" {
			a.Audit.ID, err = gonanoid.New()
			if err != nil {
				return nil, fmt.Errorf("failed to generate audit id: %w", err)
			}
		}
		a.TournamentID = tournamentID
		a.Round = round
		a.Version = 1
		a.CreatedAt = now
		a.UpdatedAt = now

		auditJSON, err := json.Marshal(a.Audit)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit record: %w", err)
		}

		ins := sqlbuilder.SQLite.NewInsertBuilder()
		ins.InsertInto("allocations")
		ins.Cols(allocationColumns...)
		ins.Values(
			a.ID, a.TournamentID, a.Round, nullableTable(a.TableNumber), a.Terrain,
			a.PlayerA.ID, a.PlayerA.Name, a.PlayerA.Score,
			nullableSnapshotID(a.PlayerB), nullableSnapshotName(a.PlayerB), nullableSnapshotScore(a.PlayerB),
			nullableIntPtr(a.BCPTable), string(auditJSON), a.Version, a.CreatedAt, a.UpdatedAt,
		)
		query, args := ins.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to insert allocation for %s: %w", a.PlayerA.Name, err)
		}

		if err := insertAudit(ctx, tx, a.ID, auditJSON, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit round %d: %w", round, err)
	}

	r.logger.Info().
		Str("tournament_id", tournamentID).
		Int("round", round).
		Int("allocations", len(allocations)).
		Msg("round persisted")

	return allocations, nil
}

func (r *AllocationRepository) Get(ctx context.Context, id string) (*domain.Allocation, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(allocationColumns...)
	sb.From("allocations")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	alloc, err := scanAllocation(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAllocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get allocation %s: %w", id, err)
	}
	return alloc, nil
}

func (r *AllocationRepository) ListByRound(ctx context.Context, tournamentID string, round int) ([]domain.Allocation, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(allocationColumns...)
	sb.From("allocations")
	sb.Where(
		sb.Equal("tournament_id", tournamentID),
		sb.Equal("round", round),
	)
	sb.OrderBy("table_number IS NULL", "table_number")

	query, args := sb.Build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list round %d: %w", round, err)
	}
	defer rows.Close()

	return collectAllocations(rows)
}

// ListForCompetitorBeforeRound feeds the history lookup: every allocation of
// one competitor in rounds strictly before the given one.
func (r *AllocationRepository) ListForCompetitorBeforeRound(ctx context.Context, tournamentID, competitorID string, round int) ([]domain.Allocation, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(allocationColumns...)
	sb.From("allocations")
	sb.Where(
		sb.Equal("tournament_id", tournamentID),
		sb.LessThan("round", round),
		sb.Or(
			sb.Equal("player_a_id", competitorID),
			sb.Equal("player_b_id", competitorID),
		),
	)
	sb.OrderBy("round")

	query, args := sb.Build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for competitor %s: %w", competitorID, err)
	}
	defer rows.Close()

	return collectAllocations(rows)
}

// ReassignTable moves one allocation to a new table. The occupancy check and
// the write happen in the same transaction, and the update is fenced on the
// version the caller read, so two concurrent edits cannot both land.
func (r *AllocationRepository) ReassignTable(ctx context.Context, allocationID string, expectedVersion int, newTable int, terrain string, audit domain.AuditRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	occupied, err := tableOccupied(ctx, tx, allocationID, newTable)
	if err != nil {
		return err
	}
	if occupied {
		return ErrTableOccupied
	}

	auditJSON, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	now := time.Now().UTC()
	if err := updateAllocationTable(ctx, tx, allocationID, expectedVersion, newTable, terrain, auditJSON, now); err != nil {
		return err
	}
	if err := insertAudit(ctx, tx, allocationID, auditJSON, now); err != nil {
		return err
	}

	return tx.Commit()
}

// SwapSide is one half of a table exchange: the allocation, the version the
// caller read, and the table/terrain/audit it receives from the other side.
type SwapSide struct {
	AllocationID    string
	ExpectedVersion int
	TableNumber     int
	Terrain         string
	Audit           domain.AuditRecord
}

// SwapTables exchanges the tables of two allocations atomically. The first
// side is parked on NULL before the second takes its table, so the
// UNIQUE(tournament_id, round, table_number) index never fires mid-swap.
func (r *AllocationRepository) SwapTables(ctx context.Context, first, second SwapSide) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	park := sqlbuilder.SQLite.NewUpdateBuilder()
	park.Update("allocations")
	park.Set(park.Assign("table_number", nil))
	park.Where(
		park.Equal("id", first.AllocationID),
		park.Equal("version", first.ExpectedVersion),
	)
	query, args := park.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to park allocation %s: %w", first.AllocationID, err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check swap result: %w", err)
	} else if affected == 0 {
		return ErrVersionConflict
	}

	now := time.Now().UTC()
	for _, side := range []SwapSide{second, first} {
		auditJSON, err := json.Marshal(side.Audit)
		if err != nil {
			return fmt.Errorf("failed to marshal audit record: %w", err)
		}
		if err := updateAllocationTable(ctx, tx, side.AllocationID, side.ExpectedVersion, side.TableNumber, side.Terrain, auditJSON, now); err != nil {
			return err
		}
		if err := insertAudit(ctx, tx, side.AllocationID, auditJSON, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// tableOccupied reports whether another allocation in the same round already
// holds the table.
func tableOccupied(ctx context.Context, tx *sql.Tx, allocationID string, table int) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM allocations other
		WHERE other.tournament_id = (SELECT tournament_id FROM allocations WHERE id = ?)
		  AND other.round = (SELECT round FROM allocations WHERE id = ?)
		  AND other.table_number = ?
		  AND other.id != ?`,
		allocationID, allocationID, table, allocationID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table occupancy: %w", err)
	}
	return count > 0, nil
}

func updateAllocationTable(ctx context.Context, tx *sql.Tx, allocationID string, expectedVersion, table int, terrain string, auditJSON []byte, now time.Time) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("allocations")
	ub.Set(
		ub.Assign("table_number", nullableTable(table)),
		ub.Assign("terrain", terrain),
		ub.Assign("audit", string(auditJSON)),
		ub.Incr("version"),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", allocationID),
		ub.Equal("version", expectedVersion),
	)

	query, args := ub.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update allocation %s: %w", allocationID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, allocationID string, auditJSON []byte, now time.Time) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate audit id: %w", err)
	}

	ins := sqlbuilder.SQLite.NewInsertBuilder()
	ins.InsertInto("allocation_audits")
	ins.Cols("id", "allocation_id", "audit", "created_at")
	ins.Values(id, allocationID, string(auditJSON), now)

	query, args := ins.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAllocation(row rowScanner) (*domain.Allocation, error) {
	var a domain.Allocation
	var tableNumber, playerBScore, bcpTable sql.NullInt64
	var playerBID, playerBName sql.NullString
	var auditJSON string

	err := row.Scan(
		&a.ID, &a.TournamentID, &a.Round, &tableNumber, &a.Terrain,
		&a.PlayerA.ID, &a.PlayerA.Name, &a.PlayerA.Score,
		&playerBID, &playerBName, &playerBScore,
		&bcpTable, &auditJSON, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tableNumber.Valid {
		a.TableNumber = int(tableNumber.Int64)
	}
	if playerBID.Valid {
		a.PlayerB = &domain.CompetitorSnapshot{
			ID:    playerBID.String,
			Name:  playerBName.String,
			Score: int(playerBScore.Int64),
		}
	}
	if bcpTable.Valid {
		n := int(bcpTable.Int64)
		a.BCPTable = &n
	}
	if err := json.Unmarshal([]byte(auditJSON), &a.Audit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit record: %w", err)
	}
	return &a, nil
}

func collectAllocations(rows *sql.Rows) ([]domain.Allocation, error) {
	var allocations []domain.Allocation
	for rows.Next() {
		alloc, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, *alloc)
	}
	return allocations, rows.Err()
}

func nullableTable(number int) any {
	if number == domain.NoTable {
		return nil
	}
	return number
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableSnapshotID(s *domain.CompetitorSnapshot) any {
	if s == nil {
		return nil
	}
	return s.ID
}

func nullableSnapshotName(s *domain.CompetitorSnapshot) any {
	if s == nil {
		return nil
	}
	return s.Name
}

func nullableSnapshotScore(s *domain.CompetitorSnapshot) any {
	if s == nil {
		return nil
	}
	return s.Score
}
