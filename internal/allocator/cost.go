package allocator

import (
	"fmt"
	"table-allocator/internal/domain"
)

// Tier weights. Each tier carries a 10x safety margin over the next so that a
// lower tier can never flip a decision made by a higher one: two table
// reuses (200000) still dominate any combination of terrain reuses and table
// numbers a realistic tournament can produce.
const (
	TableReuseWeight   = 100000
	TerrainReuseWeight = 10000
)

// CostBreakdown is the per-tier penalty of seating one pairing at one table.
type CostBreakdown struct {
	TableReuse   int
	TerrainReuse int
	TableNumber  int

	TableReuseReasons   []string
	TerrainReuseReasons []string
}

func (c CostBreakdown) Total() int {
	return c.TableReuse + c.TerrainReuse + c.TableNumber
}

// Reasons returns every human-readable reason behind the nonzero tiers.
func (c CostBreakdown) Reasons() []string {
	reasons := make([]string, 0, len(c.TableReuseReasons)+len(c.TerrainReuseReasons)+1)
	reasons = append(reasons, c.TableReuseReasons...)
	reasons = append(reasons, c.TerrainReuseReasons...)
	if c.TableNumber > 0 {
		reasons = append(reasons, fmt.Sprintf("table number preference +%d", c.TableNumber))
	}
	return reasons
}

// Cost scores seating pairing p at table t given both competitors' history.
// It is a pure function: no side effects, no state, callable on its own.
// histB is ignored for byes.
func Cost(p domain.Pairing, t domain.Table, histA, histB CompetitorHistory) CostBreakdown {
	breakdown := CostBreakdown{TableNumber: t.Number}

	scoreCompetitor := func(c domain.Competitor, hist CompetitorHistory) {
		if hist.UsedTable(t.Number) {
			breakdown.TableReuse += TableReuseWeight
			breakdown.TableReuseReasons = append(breakdown.TableReuseReasons,
				fmt.Sprintf("%s already played on table %d", c.Name, t.Number))
		}
		if t.Terrain != "" && hist.UsedTerrain(t.Terrain) {
			breakdown.TerrainReuse += TerrainReuseWeight
			breakdown.TerrainReuseReasons = append(breakdown.TerrainReuseReasons,
				fmt.Sprintf("%s already played terrain %q (table %d)", c.Name, t.Terrain, t.Number))
		}
	}

	scoreCompetitor(p.PlayerA, histA)
	if p.PlayerB != nil {
		scoreCompetitor(*p.PlayerB, histB)
	}

	return breakdown
}
