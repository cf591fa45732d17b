package allocator

import (
	"context"
	"fmt"
	"sort"
	"time"
	"table-allocator/internal/domain"

	"github.com/rs/zerolog"
)

// Result is one full generation run: a decision per pairing (byes included),
// the conflicts aggregated across the round, and a one-line summary for the
// operator.
type Result struct {
	Decisions []domain.Allocation
	Conflicts []domain.Conflict
	Summary   string
}

// Engine turns the pairings of one round into table allocations. Round 1
// passes the externally suggested tables through; later rounds assign
// greedily by descending combined score, scoring every unclaimed table with
// the cost model. The engine keeps no state between calls.
type Engine struct {
	logger zerolog.Logger
}

func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Generate produces the allocations for one round. Table reuse, terrain
// reuse and a missing table in round 1 are reported as conflicts, never as
// errors; the only hard failure in greedy mode is more regular pairings than
// tables, which is a caller contract violation.
func (e *Engine) Generate(ctx context.Context, tournamentID string, round int, pairings []domain.Pairing, tables []domain.Table, history HistoryProvider) (*Result, error) {
	// Sort once by table number so every scan, and therefore every
	// equal-cost tie, resolves to the lowest-numbered table.
	sorted := make([]domain.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	regulars := make([]domain.Pairing, 0, len(pairings))
	byes := make([]domain.Pairing, 0)
	for _, p := range pairings {
		if p.IsBye() {
			byes = append(byes, p)
		} else {
			regulars = append(regulars, p)
		}
	}

	var result *Result
	var err error
	if round <= 1 {
		result = e.passthrough(tournamentID, round, regulars, sorted)
	} else {
		result, err = e.greedy(ctx, tournamentID, round, regulars, sorted, history)
		if err != nil {
			return nil, err
		}
	}

	for _, p := range byes {
		result.Decisions = append(result.Decisions, newDecision(tournamentID, round, p, domain.NoTable, "", domain.AuditRecord{
			Timestamp:  time.Now().UTC(),
			Reasons:    []string{"bye"},
			FirstRound: round <= 1,
			Bye:        true,
		}))
	}

	result.Summary = e.summarize(round, len(regulars), len(byes), result.Conflicts)
	e.logger.Info().
		Str("tournament_id", tournamentID).
		Int("round", round).
		Int("pairings", len(pairings)).
		Int("conflicts", len(result.Conflicts)).
		Msg(result.Summary)

	return result, nil
}

// passthrough is round-1 mode: there is no history to optimize against, so
// the suggested table wins unless it is missing, unknown, or already claimed
// earlier in this pass, in which case the lowest unclaimed table steps in.
func (e *Engine) passthrough(tournamentID string, round int, regulars []domain.Pairing, tables []domain.Table) *Result {
	result := &Result{}
	byNumber := make(map[int]domain.Table, len(tables))
	for _, t := range tables {
		byNumber[t.Number] = t
	}
	claimed := make(map[int]bool, len(tables))

	for _, p := range regulars {
		audit := domain.AuditRecord{
			Timestamp:  time.Now().UTC(),
			FirstRound: true,
		}

		chosen := domain.NoTable
		if p.SuggestedTable != nil {
			if t, ok := byNumber[*p.SuggestedTable]; ok && !claimed[t.Number] {
				chosen = t.Number
				audit.Reasons = append(audit.Reasons, fmt.Sprintf("suggested table %d honored", t.Number))
			}
		}

		if chosen == domain.NoTable {
			for _, t := range tables {
				if !claimed[t.Number] {
					chosen = t.Number
					if p.SuggestedTable == nil {
						audit.Reasons = append(audit.Reasons, fmt.Sprintf("no suggested table, assigned lowest free table %d", t.Number))
					} else {
						audit.Reasons = append(audit.Reasons, fmt.Sprintf("suggested table %d unavailable, reassigned to table %d", *p.SuggestedTable, t.Number))
					}
					break
				}
			}
		}

		terrain := ""
		if chosen == domain.NoTable {
			conflict := domain.Conflict{
				Type:    domain.ConflictNoTable,
				Message: fmt.Sprintf("no table available for %s vs %s", p.PlayerA.Name, p.PlayerB.Name),
			}
			audit.Reasons = append(audit.Reasons, conflict.Message)
			audit.Conflicts = append(audit.Conflicts, conflict)
			result.Conflicts = append(result.Conflicts, conflict)
		} else {
			claimed[chosen] = true
			terrain = byNumber[chosen].Terrain
		}

		result.Decisions = append(result.Decisions, newDecision(tournamentID, round, p, chosen, terrain, audit))
	}

	return result
}

// greedy is round-N mode: pairings sorted by descending combined score get
// first pick, and every unclaimed table is scored with the cost model. On an
// exact cost tie the suggested table wins; otherwise the ascending scan
// already prefers the lower number.
func (e *Engine) greedy(ctx context.Context, tournamentID string, round int, regulars []domain.Pairing, tables []domain.Table, history HistoryProvider) (*Result, error) {
	if len(regulars) > len(tables) {
		return nil, fmt.Errorf("round %d has %d pairings but only %d tables", round, len(regulars), len(tables))
	}

	// Stable order: combined score descending, then the smaller competitor
	// id ascending. SliceStable keeps input position as the final tie-break,
	// and competitor ids are unique within a round, so the order is the same
	// no matter how the input was shuffled.
	ordered := make([]domain.Pairing, len(regulars))
	copy(ordered, regulars)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CombinedScore() != ordered[j].CombinedScore() {
			return ordered[i].CombinedScore() > ordered[j].CombinedScore()
		}
		return ordered[i].MinCompetitorID() < ordered[j].MinCompetitorID()
	})

	result := &Result{}
	claimed := make(map[int]bool, len(tables))

	for _, p := range ordered {
		histA, err := history.For(ctx, p.PlayerA.ID)
		if err != nil {
			return nil, err
		}
		histB, err := history.For(ctx, p.PlayerB.ID)
		if err != nil {
			return nil, err
		}

		var chosen *domain.Table
		var chosenCost CostBreakdown
		costs := make(map[int]int, len(tables))

		for i := range tables {
			t := tables[i]
			if claimed[t.Number] {
				continue
			}
			breakdown := Cost(p, t, histA, histB)
			costs[t.Number] = breakdown.Total()

			if chosen == nil || breakdown.Total() < chosenCost.Total() {
				chosen = &tables[i]
				chosenCost = breakdown
				continue
			}
			// Exact tie: only the suggested table may displace an
			// earlier (lower-numbered) candidate.
			if breakdown.Total() == chosenCost.Total() &&
				p.SuggestedTable != nil && t.Number == *p.SuggestedTable && chosen.Number != *p.SuggestedTable {
				chosen = &tables[i]
				chosenCost = breakdown
			}
		}

		if chosen == nil {
			// Defended against above; claimed tables can never outnumber
			// seated pairings.
			return nil, fmt.Errorf("round %d: no unclaimed table left for %s vs %s", round, p.PlayerA.Name, p.PlayerB.Name)
		}

		claimed[chosen.Number] = true
		delete(costs, chosen.Number)

		audit := domain.AuditRecord{
			Timestamp: time.Now().UTC(),
			TotalCost: chosenCost.Total(),
			Breakdown: domain.AuditBreakdown{
				TableReuse:   chosenCost.TableReuse,
				TerrainReuse: chosenCost.TerrainReuse,
				TableNumber:  chosenCost.TableNumber,
			},
			Reasons:      chosenCost.Reasons(),
			Alternatives: costs,
		}

		for _, reason := range chosenCost.TableReuseReasons {
			audit.Conflicts = append(audit.Conflicts, domain.Conflict{Type: domain.ConflictTableReuse, Message: reason})
		}
		for _, reason := range chosenCost.TerrainReuseReasons {
			audit.Conflicts = append(audit.Conflicts, domain.Conflict{Type: domain.ConflictTerrainReuse, Message: reason})
		}
		result.Conflicts = append(result.Conflicts, audit.Conflicts...)

		e.logger.Debug().
			Int("round", round).
			Str("player_a", p.PlayerA.Name).
			Str("player_b", p.PlayerB.Name).
			Int("table", chosen.Number).
			Int("cost", chosenCost.Total()).
			Msg("table assigned")

		result.Decisions = append(result.Decisions, newDecision(tournamentID, round, p, chosen.Number, chosen.Terrain, audit))
	}

	return result, nil
}

func (e *Engine) summarize(round, regulars, byes int, conflicts []domain.Conflict) string {
	var tableReuse, terrainReuse, noTable int
	for _, c := range conflicts {
		switch c.Type {
		case domain.ConflictTableReuse:
			tableReuse++
		case domain.ConflictTerrainReuse:
			terrainReuse++
		case domain.ConflictNoTable:
			noTable++
		}
	}

	if len(conflicts) == 0 {
		return fmt.Sprintf("round %d: %d pairings seated cleanly, %d byes", round, regulars, byes)
	}
	if noTable > 0 {
		return fmt.Sprintf("round %d: best effort, %d pairings without a table, %d table reuse conflicts, %d terrain reuse conflicts", round, noTable, tableReuse, terrainReuse)
	}
	return fmt.Sprintf("round %d: best effort, %d table reuse conflicts, %d terrain reuse conflicts", round, tableReuse, terrainReuse)
}

func newDecision(tournamentID string, round int, p domain.Pairing, tableNumber int, terrain string, audit domain.AuditRecord) domain.Allocation {
	alloc := domain.Allocation{
		TournamentID: tournamentID,
		Round:        round,
		TableNumber:  tableNumber,
		Terrain:      terrain,
		PlayerA: domain.CompetitorSnapshot{
			ID:    p.PlayerA.ID,
			Name:  p.PlayerA.Name,
			Score: p.PlayerA.TotalScore,
		},
		BCPTable: p.SuggestedTable,
		Audit:    audit,
	}
	if p.PlayerB != nil {
		alloc.PlayerB = &domain.CompetitorSnapshot{
			ID:    p.PlayerB.ID,
			Name:  p.PlayerB.Name,
			Score: p.PlayerB.TotalScore,
		}
	}
	return alloc
}
