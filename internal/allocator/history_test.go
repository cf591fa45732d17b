package allocator

import (
	"context"
	"testing"
	"table-allocator/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	allocations []domain.Allocation
	calls       int
}

func (f *fakeReader) ListForCompetitorBeforeRound(_ context.Context, tournamentID, competitorID string, round int) ([]domain.Allocation, error) {
	f.calls++
	var out []domain.Allocation
	for _, a := range f.allocations {
		if a.TournamentID != tournamentID || a.Round >= round {
			continue
		}
		if a.PlayerA.ID == competitorID || (a.PlayerB != nil && a.PlayerB.ID == competitorID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func allocation(round, table int, terrain, playerA, playerB string) domain.Allocation {
	a := domain.Allocation{
		TournamentID: "t1",
		Round:        round,
		TableNumber:  table,
		Terrain:      terrain,
		PlayerA:      domain.CompetitorSnapshot{ID: playerA, Name: playerA},
	}
	if playerB != "" {
		a.PlayerB = &domain.CompetitorSnapshot{ID: playerB, Name: playerB}
	}
	return a
}

func TestHistory_RoundOneNeverQueriesTheStore(t *testing.T) {
	store := &fakeReader{allocations: []domain.Allocation{allocation(1, 2, "Volkus", "a", "b")}}
	history := NewHistory(store, "t1", 1)

	hist, err := history.For(context.Background(), "a")
	require.NoError(t, err)

	assert.Empty(t, hist.Tables)
	assert.Empty(t, hist.Terrains)
	assert.Equal(t, 0, store.calls)
}

func TestHistory_MemoizesPerCompetitor(t *testing.T) {
	store := &fakeReader{allocations: []domain.Allocation{
		allocation(1, 2, "Volkus", "a", "b"),
		allocation(2, 3, "", "a", "c"),
	}}
	history := NewHistory(store, "t1", 3)
	ctx := context.Background()

	first, err := history.For(ctx, "a")
	require.NoError(t, err)
	second, err := history.For(ctx, "a")
	require.NoError(t, err)
	_, err = history.UsedTables(ctx, "a")
	require.NoError(t, err)
	_, err = history.UsedTerrains(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, first, second)
}

func TestHistory_DerivesTablesAndTerrains(t *testing.T) {
	store := &fakeReader{allocations: []domain.Allocation{
		allocation(1, 2, "Volkus", "a", "b"),
		allocation(2, 5, "", "c", "a"),
		// byes carry no table and no terrain
		allocation(2, domain.NoTable, "", "a", ""),
		// later rounds must not leak in
		allocation(3, 7, "Ruins", "a", "d"),
	}}
	history := NewHistory(store, "t1", 3)

	hist, err := history.For(context.Background(), "a")
	require.NoError(t, err)

	assert.True(t, hist.UsedTable(2))
	assert.True(t, hist.UsedTable(5))
	assert.False(t, hist.UsedTable(domain.NoTable))
	assert.False(t, hist.UsedTable(7))
	assert.True(t, hist.UsedTerrain("Volkus"))
	assert.False(t, hist.UsedTerrain("Ruins"))
	assert.False(t, hist.UsedTerrain(""))
}
