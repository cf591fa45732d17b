package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"table-allocator/internal/allocator"
	"table-allocator/internal/domain"
	"table-allocator/internal/repository"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

var (
	ErrSelfSwap        = errors.New("cannot swap an allocation with itself")
	ErrDifferentRounds = errors.New("allocations are not in the same round")
	ErrByeAllocation   = errors.New("byes do not receive a table")
	ErrNoTableAssigned = errors.New("allocation has no table to swap")
)

type adjustmentAllocationStore interface {
	allocator.AllocationReader
	Get(ctx context.Context, id string) (*domain.Allocation, error)
	ReassignTable(ctx context.Context, allocationID string, expectedVersion int, newTable int, terrain string, audit domain.AuditRecord) error
	SwapTables(ctx context.Context, first, second repository.SwapSide) error
}

type adjustmentTableStore interface {
	GetByNumber(ctx context.Context, tournamentID string, number int) (*domain.Table, error)
}

// AdjustmentService applies human corrections to an already-generated round.
// It shares the history-based conflict check with the engine, and relies on
// the repository's transactional read-check-write so that two concurrent
// edits can never seat two pairings on the same table.
type AdjustmentService struct {
	allocations adjustmentAllocationStore
	tables      adjustmentTableStore
	logger      zerolog.Logger
}

func NewAdjustmentService(allocationRepo adjustmentAllocationStore, tableRepo adjustmentTableStore, logger zerolog.Logger) *AdjustmentService {
	return &AdjustmentService{
		allocations: allocationRepo,
		tables:      tableRepo,
		logger:      logger,
	}
}

// AdjustmentResult reports one updated allocation and its recomputed
// conflicts.
type AdjustmentResult struct {
	AllocationID string            `json:"allocation_id"`
	TableNumber  int               `json:"table_number"`
	Conflicts    []domain.Conflict `json:"conflicts"`
}

// Reassign moves one allocation to a new table in its tournament. Reuse
// conflicts against the competitors' history are recomputed and reported,
// not enforced; occupancy of the target table is the hard invariant.
func (s *AdjustmentService) Reassign(ctx context.Context, allocationID string, newTable int) (*AdjustmentResult, error) {
	alloc, err := s.allocations.Get(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if alloc.IsBye() {
		return nil, ErrByeAllocation
	}

	table, err := s.tables.GetByNumber(ctx, alloc.TournamentID, newTable)
	if err != nil {
		return nil, err
	}

	conflicts, audit, err := s.buildEditAudit(ctx, alloc, table)
	if err != nil {
		return nil, err
	}

	if err := s.allocations.ReassignTable(ctx, alloc.ID, alloc.Version, table.Number, table.Terrain, audit); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("allocation_id", alloc.ID).
		Int("from_table", alloc.TableNumber).
		Int("to_table", table.Number).
		Int("conflicts", len(conflicts)).
		Msg("allocation reassigned")

	return &AdjustmentResult{
		AllocationID: alloc.ID,
		TableNumber:  table.Number,
		Conflicts:    conflicts,
	}, nil
}

// Swap exchanges the tables of two allocations in the same round, both or
// neither. Conflicts are recomputed for each side independently.
func (s *AdjustmentService) Swap(ctx context.Context, firstID, secondID string) ([]AdjustmentResult, error) {
	if firstID == secondID {
		return nil, ErrSelfSwap
	}

	first, err := s.allocations.Get(ctx, firstID)
	if err != nil {
		return nil, err
	}
	second, err := s.allocations.Get(ctx, secondID)
	if err != nil {
		return nil, err
	}

	if first.TournamentID != second.TournamentID || first.Round != second.Round {
		return nil, ErrDifferentRounds
	}
	if first.IsBye() || second.IsBye() {
		return nil, ErrByeAllocation
	}
	if first.TableNumber == domain.NoTable || second.TableNumber == domain.NoTable {
		return nil, ErrNoTableAssigned
	}

	firstTable, err := s.tables.GetByNumber(ctx, first.TournamentID, second.TableNumber)
	if err != nil {
		return nil, err
	}
	secondTable, err := s.tables.GetByNumber(ctx, second.TournamentID, first.TableNumber)
	if err != nil {
		return nil, err
	}

	firstConflicts, firstAudit, err := s.buildEditAudit(ctx, first, firstTable)
	if err != nil {
		return nil, err
	}
	secondConflicts, secondAudit, err := s.buildEditAudit(ctx, second, secondTable)
	if err != nil {
		return nil, err
	}

	err = s.allocations.SwapTables(ctx,
		repository.SwapSide{
			AllocationID:    first.ID,
			ExpectedVersion: first.Version,
			TableNumber:     firstTable.Number,
			Terrain:         firstTable.Terrain,
			Audit:           firstAudit,
		},
		repository.SwapSide{
			AllocationID:    second.ID,
			ExpectedVersion: second.Version,
			TableNumber:     secondTable.Number,
			Terrain:         secondTable.Terrain,
			Audit:           secondAudit,
		},
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("first_id", first.ID).
		Str("second_id", second.ID).
		Int("first_table", firstTable.Number).
		Int("second_table", secondTable.Number).
		Msg("allocations swapped")

	return []AdjustmentResult{
		{AllocationID: first.ID, TableNumber: firstTable.Number, Conflicts: firstConflicts},
		{AllocationID: second.ID, TableNumber: secondTable.Number, Conflicts: secondConflicts},
	}, nil
}

// buildEditAudit recomputes the reuse conflicts for one allocation against a
// target table and packages them into a fresh audit record. Only the reuse
// tiers matter here: there are no competing alternatives to score, so the
// table-number tier is replaced by the BCP-mismatch note.
func (s *AdjustmentService) buildEditAudit(ctx context.Context, alloc *domain.Allocation, table *domain.Table) ([]domain.Conflict, domain.AuditRecord, error) {
	history := allocator.NewHistory(s.allocations, alloc.TournamentID, alloc.Round)

	var conflicts []domain.Conflict
	var breakdown domain.AuditBreakdown
	var reasons []string

	competitors := []domain.CompetitorSnapshot{alloc.PlayerA}
	if alloc.PlayerB != nil {
		competitors = append(competitors, *alloc.PlayerB)
	}

	for _, c := range competitors {
		hist, err := history.For(ctx, c.ID)
		if err != nil {
			return nil, domain.AuditRecord{}, err
		}
		if hist.UsedTable(table.Number) {
			breakdown.TableReuse += allocator.TableReuseWeight
			message := fmt.Sprintf("%s already played on table %d", c.Name, table.Number)
			reasons = append(reasons, message)
			conflicts = append(conflicts, domain.Conflict{Type: domain.ConflictTableReuse, Message: message})
		}
		if table.Terrain != "" && hist.UsedTerrain(table.Terrain) {
			breakdown.TerrainReuse += allocator.TerrainReuseWeight
			message := fmt.Sprintf("%s already played terrain %q (table %d)", c.Name, table.Terrain, table.Number)
			reasons = append(reasons, message)
			conflicts = append(conflicts, domain.Conflict{Type: domain.ConflictTerrainReuse, Message: message})
		}
	}

	if alloc.BCPTable != nil && *alloc.BCPTable != table.Number {
		breakdown.BCPMismatch = 1
		reasons = append(reasons, fmt.Sprintf("manually moved off BCP-suggested table %d", *alloc.BCPTable))
	}

	auditID, err := gonanoid.New()
	if err != nil {
		return nil, domain.AuditRecord{}, fmt.Errorf("failed to generate audit id: %w", err)
	}

	audit := domain.AuditRecord{
		ID:         auditID,
		Timestamp:  time.Now().UTC(),
		TotalCost:  breakdown.TableReuse + breakdown.TerrainReuse,
		Breakdown:  breakdown,
		Reasons:    reasons,
		FirstRound: alloc.Round <= 1,
		Conflicts:  conflicts,
	}
	return conflicts, audit, nil
}
