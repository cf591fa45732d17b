package allocator

import (
	"context"
	"fmt"
	"table-allocator/internal/domain"
)

// AllocationReader is the slice of the allocation repository the history
// lookup needs: every persisted allocation for one competitor in rounds
// strictly before the given round.
type AllocationReader interface {
	ListForCompetitorBeforeRound(ctx context.Context, tournamentID, competitorID string, round int) ([]domain.Allocation, error)
}

// CompetitorHistory is the set of tables and terrains one competitor has
// already played in this tournament.
type CompetitorHistory struct {
	Tables   map[int]struct{}
	Terrains map[string]struct{}
}

func (h CompetitorHistory) UsedTable(number int) bool {
	_, ok := h.Tables[number]
	return ok
}

func (h CompetitorHistory) UsedTerrain(terrain string) bool {
	_, ok := h.Terrains[terrain]
	return ok
}

// HistoryProvider answers "has competitor X used table N / terrain T before
// round R" for one tournament.
type HistoryProvider interface {
	For(ctx context.Context, competitorID string) (CompetitorHistory, error)
	UsedTables(ctx context.Context, competitorID string) (map[int]struct{}, error)
	UsedTerrains(ctx context.Context, competitorID string) (map[string]struct{}, error)
}

// History memoizes per-competitor lookups for the lifetime of one generation
// run. A competitor's history cannot change mid-run, so a cold query hits the
// store once and every later call is served from the cache. One instance is
// scoped to a single (tournament, round) and must not be reused across runs.
type History struct {
	store        AllocationReader
	tournamentID string
	round        int
	cache        map[string]CompetitorHistory
}

func NewHistory(store AllocationReader, tournamentID string, round int) *History {
	return &History{
		store:        store,
		tournamentID: tournamentID,
		round:        round,
		cache:        make(map[string]CompetitorHistory),
	}
}

// For returns the competitor's table/terrain history. Round 1 has no earlier
// rounds by construction, so it returns empty sets without touching the store.
func (h *History) For(ctx context.Context, competitorID string) (CompetitorHistory, error) {
	if cached, ok := h.cache[competitorID]; ok {
		return cached, nil
	}

	hist := CompetitorHistory{
		Tables:   make(map[int]struct{}),
		Terrains: make(map[string]struct{}),
	}

	if h.round > 1 {
		allocations, err := h.store.ListForCompetitorBeforeRound(ctx, h.tournamentID, competitorID, h.round)
		if err != nil {
			return CompetitorHistory{}, fmt.Errorf("failed to load history for competitor %s: %w", competitorID, err)
		}
		for _, a := range allocations {
			if a.TableNumber != domain.NoTable {
				hist.Tables[a.TableNumber] = struct{}{}
			}
			if a.Terrain != "" {
				hist.Terrains[a.Terrain] = struct{}{}
			}
		}
	}

	h.cache[competitorID] = hist
	return hist, nil
}

func (h *History) UsedTables(ctx context.Context, competitorID string) (map[int]struct{}, error) {
	hist, err := h.For(ctx, competitorID)
	if err != nil {
		return nil, err
	}
	return hist.Tables, nil
}

func (h *History) UsedTerrains(ctx context.Context, competitorID string) (map[string]struct{}, error) {
	hist, err := h.For(ctx, competitorID)
	if err != nil {
		return nil, err
	}
	return hist.Terrains, nil
}
