package allocator

import (
	"context"
	"testing"
	"table-allocator/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

func tables(numbers ...int) []domain.Table {
	out := make([]domain.Table, len(numbers))
	for i, n := range numbers {
		out[i] = domain.Table{TournamentID: "t1", Number: n}
	}
	return out
}

func pairing(aID, bID string, total int, suggested *int) domain.Pairing {
	p := domain.Pairing{
		PlayerA:        domain.Competitor{ID: aID, Name: "player " + aID, TotalScore: total},
		SuggestedTable: suggested,
	}
	if bID != "" {
		p.PlayerB = &domain.Competitor{ID: bID, Name: "player " + bID, TotalScore: total}
	}
	return p
}

func intPtr(n int) *int { return &n }

func emptyHistory() *History {
	return NewHistory(&fakeReader{}, "t1", 1)
}

func assignedTables(decisions []domain.Allocation) []int {
	var out []int
	for _, d := range decisions {
		if !d.IsBye() {
			out = append(out, d.TableNumber)
		}
	}
	return out
}

func TestGenerate_RoundOneHonorsValidPermutation(t *testing.T) {
	pairings := []domain.Pairing{
		pairing("a", "b", 0, intPtr(3)),
		pairing("c", "d", 0, intPtr(1)),
		pairing("e", "f", 0, intPtr(2)),
	}

	result, err := newTestEngine().Generate(context.Background(), "t1", 1, pairings, tables(1, 2, 3), emptyHistory())
	require.NoError(t, err)

	require.Len(t, result.Decisions, 3)
	assert.Equal(t, []int{3, 1, 2}, assignedTables(result.Decisions))
	assert.Empty(t, result.Conflicts)
	for _, d := range result.Decisions {
		assert.Equal(t, 0, d.Audit.TotalCost)
		assert.True(t, d.Audit.FirstRound)
		require.Len(t, d.Audit.Reasons, 1)
		assert.Contains(t, d.Audit.Reasons[0], "honored")
	}
}

func TestGenerate_RoundOneResolvesDuplicateAndMissingSuggestions(t *testing.T) {
	pairings := []domain.Pairing{
		pairing("a", "b", 0, intPtr(2)),
		pairing("c", "d", 0, intPtr(2)),
		pairing("e", "f", 0, nil),
	}

	result, err := newTestEngine().Generate(context.Background(), "t1", 1, pairings, tables(1, 2, 3), emptyHistory())
	require.NoError(t, err)

	got := assignedTables(result.Decisions)
	assert.ElementsMatch(t, []int{1, 2, 3}, got)
	assert.Equal(t, 2, got[0], "first claim on table 2 wins")
	assert.Empty(t, result.Conflicts, "three tables fit three pairings")
	assert.Contains(t, result.Decisions[1].Audit.Reasons[0], "reassigned")
}

func TestGenerate_RoundOneRunsOutOfTables(t *testing.T) {
	pairings := []domain.Pairing{
		pairing("a", "b", 0, intPtr(1)),
		pairing("c", "d", 0, intPtr(2)),
		pairing("e", "f", 0, nil),
	}

	result, err := newTestEngine().Generate(context.Background(), "t1", 1, pairings, tables(1, 2), emptyHistory())
	require.NoError(t, err, "running out of tables in round 1 is a conflict, not a failure")

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, domain.ConflictNoTable, result.Conflicts[0].Type)
	assert.Equal(t, domain.NoTable, result.Decisions[2].TableNumber)
	assert.Contains(t, result.Summary, "without a table")
}

func TestGenerate_RoundOneInvalidSuggestionReassigned(t *testing.T) {
	pairings := []domain.Pairing{pairing("a", "b", 0, intPtr(9))}

	result, err := newTestEngine().Generate(context.Background(), "t1", 1, pairings, tables(1, 2), emptyHistory())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Decisions[0].TableNumber)
	assert.Contains(t, result.Decisions[0].Audit.Reasons[0], "unavailable")
}

func TestGenerate_GreedyHigherScoreGetsFirstPick(t *testing.T) {
	// Spec-style scenario: four tables, table 3 carries "Volkus". The
	// stronger pairing's player already used table 1 and the Volkus
	// terrain, so tables 1 and 3 are both penalized for it.
	tableSet := tables(1, 2, 3, 4)
	tableSet[2].Terrain = "Volkus"

	store := &fakeReader{allocations: []domain.Allocation{
		allocation(1, 1, "Volkus", "a", "x"),
	}}

	p1 := pairing("a", "b", 3, nil)
	p2 := pairing("c", "d", 1, nil)
	history := NewHistory(store, "t1", 2)

	result, err := newTestEngine().Generate(context.Background(), "t1", 2, []domain.Pairing{p2, p1}, tableSet, history)
	require.NoError(t, err)

	require.Len(t, result.Decisions, 2)
	// p1 is decided first despite arriving second, and avoids 1 and 3.
	assert.Equal(t, "a", result.Decisions[0].PlayerA.ID)
	assert.Equal(t, 2, result.Decisions[0].TableNumber)
	// p2 then takes the cheapest remaining table.
	assert.Equal(t, "c", result.Decisions[1].PlayerA.ID)
	assert.Equal(t, 1, result.Decisions[1].TableNumber)
	assert.Empty(t, result.Conflicts)
}

func TestGenerate_GreedyNeverReusesWhenAvoidable(t *testing.T) {
	store := &fakeReader{allocations: []domain.Allocation{
		allocation(1, 1, "", "a", "x"),
		allocation(2, 2, "", "a", "y"),
	}}

	result, err := newTestEngine().Generate(context.Background(), "t1", 3,
		[]domain.Pairing{pairing("a", "b", 0, nil)}, tables(1, 2, 3), NewHistory(store, "t1", 3))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Decisions[0].TableNumber)
	assert.Equal(t, 0, result.Decisions[0].Audit.Breakdown.TableReuse)
	assert.Empty(t, result.Conflicts)
}

func TestGenerate_GreedyReportsUnavoidableReuse(t *testing.T) {
	store := &fakeReader{allocations: []domain.Allocation{
		allocation(1, 1, "", "a", "x"),
		allocation(2, 2, "", "a", "y"),
	}}

	result, err := newTestEngine().Generate(context.Background(), "t1", 3,
		[]domain.Pairing{pairing("a", "b", 0, nil)}, tables(1, 2), NewHistory(store, "t1", 3))
	require.NoError(t, err)

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, domain.ConflictTableReuse, result.Conflicts[0].Type)
	assert.Contains(t, result.Conflicts[0].Message, "player a")
	assert.Equal(t, 1, result.Decisions[0].TableNumber, "cheapest of two bad options")
	assert.Contains(t, result.Summary, "best effort")
}

func TestGenerate_GreedyOrderIsInputOrderIndependent(t *testing.T) {
	pairings := []domain.Pairing{
		pairing("e", "f", 2, nil),
		pairing("a", "b", 4, nil),
		pairing("g", "h", 2, nil),
		pairing("c", "d", 4, nil),
	}
	shuffled := []domain.Pairing{pairings[3], pairings[0], pairings[1], pairings[2]}

	run := func(input []domain.Pairing) map[string]int {
		result, err := newTestEngine().Generate(context.Background(), "t1", 2, input, tables(1, 2, 3, 4), NewHistory(&fakeReader{}, "t1", 2))
		require.NoError(t, err)
		out := make(map[string]int)
		for _, d := range result.Decisions {
			out[d.PlayerA.ID] = d.TableNumber
		}
		return out
	}

	assert.Equal(t, run(pairings), run(shuffled))
	// Equal scores fall back to the smaller competitor id: a/b before c/d.
	result, err := newTestEngine().Generate(context.Background(), "t1", 2, shuffled, tables(1, 2, 3, 4), NewHistory(&fakeReader{}, "t1", 2))
	require.NoError(t, err)
	assert.Equal(t, "a", result.Decisions[0].PlayerA.ID)
	assert.Equal(t, "c", result.Decisions[1].PlayerA.ID)
	assert.Equal(t, "e", result.Decisions[2].PlayerA.ID)
	assert.Equal(t, "g", result.Decisions[3].PlayerA.ID)
}

func TestGenerate_GreedyTieBreakPrefersSuggestedTable(t *testing.T) {
	// Table 1 carries a terrain the player has seen, so its total
	// (10000 + 1) exactly matches the clean table numbered 10001.
	tableSet := []domain.Table{
		{TournamentID: "t1", Number: 1, Terrain: "Volkus"},
		{TournamentID: "t1", Number: 10001},
	}
	store := &fakeReader{allocations: []domain.Allocation{
		allocation(1, 5, "Volkus", "a", "x"),
	}}

	result, err := newTestEngine().Generate(context.Background(), "t1", 2,
		[]domain.Pairing{pairing("a", "b", 0, intPtr(10001))}, tableSet, NewHistory(store, "t1", 2))
	require.NoError(t, err)
	assert.Equal(t, 10001, result.Decisions[0].TableNumber)

	// Without a suggestion the ascending scan keeps the lower number.
	result, err = newTestEngine().Generate(context.Background(), "t1", 2,
		[]domain.Pairing{pairing("a", "b", 0, nil)}, tableSet, NewHistory(store, "t1", 2))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Decisions[0].TableNumber)
}

func TestGenerate_GreedyRecordsAlternatives(t *testing.T) {
	result, err := newTestEngine().Generate(context.Background(), "t1", 2,
		[]domain.Pairing{pairing("a", "b", 0, nil)}, tables(1, 2, 3), NewHistory(&fakeReader{}, "t1", 2))
	require.NoError(t, err)

	audit := result.Decisions[0].Audit
	assert.NotContains(t, audit.Alternatives, 1, "chosen table is excluded")
	assert.Equal(t, map[int]int{2: 2, 3: 3}, audit.Alternatives)
}

func TestGenerate_ByesGetNoTableAndFollowRegulars(t *testing.T) {
	pairings := []domain.Pairing{
		pairing("a", "", 3, nil), // bye arrives first
		pairing("c", "d", 2, nil),
	}

	result, err := newTestEngine().Generate(context.Background(), "t1", 2, pairings, tables(1, 2), NewHistory(&fakeReader{}, "t1", 2))
	require.NoError(t, err)

	require.Len(t, result.Decisions, 2)
	assert.Equal(t, "c", result.Decisions[0].PlayerA.ID)

	bye := result.Decisions[1]
	assert.True(t, bye.IsBye())
	assert.Equal(t, domain.NoTable, bye.TableNumber)
	assert.Equal(t, 0, bye.Audit.TotalCost)
	assert.True(t, bye.Audit.Bye)
	assert.Equal(t, []string{"bye"}, bye.Audit.Reasons)
	assert.Contains(t, result.Summary, "1 byes")
}

func TestGenerate_GreedyNoDuplicateTables(t *testing.T) {
	pairings := []domain.Pairing{
		pairing("a", "b", 5, nil),
		pairing("c", "d", 4, nil),
		pairing("e", "f", 3, nil),
		pairing("g", "h", 2, nil),
	}

	result, err := newTestEngine().Generate(context.Background(), "t1", 2, pairings, tables(1, 2, 3, 4), NewHistory(&fakeReader{}, "t1", 2))
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, n := range assignedTables(result.Decisions) {
		assert.False(t, seen[n], "table %d assigned twice", n)
		seen[n] = true
	}
}

func TestGenerate_GreedyFailsWhenPairingsExceedTables(t *testing.T) {
	pairings := []domain.Pairing{
		pairing("a", "b", 0, nil),
		pairing("c", "d", 0, nil),
		pairing("e", "f", 0, nil),
	}

	_, err := newTestEngine().Generate(context.Background(), "t1", 2, pairings, tables(1, 2), NewHistory(&fakeReader{}, "t1", 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 pairings but only 2 tables")
}
