package domain

import (
	"time"
)

type Tournament struct {
	ID           string
	Name         string
	BCPEventID   string
	CurrentRound int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Table is a physical seat for a round. Numbers are 1-based, unique within a
// tournament and stable across rounds. Terrain is empty when the table has no
// terrain layout assigned.
type Table struct {
	ID           string
	TournamentID string
	Number       int
	Terrain      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Competitor is one side of a pairing as reported by the pairing source.
type Competitor struct {
	ID         string
	Name       string
	RoundScore int
	TotalScore int
}

// Pairing is one matchup for the round being generated. It is built fresh
// from the pairing source on every generation run and never persisted as is.
// PlayerB is nil for a bye. SuggestedTable is nil when the pairing source
// proposed no table.
type Pairing struct {
	PlayerA        Competitor
	PlayerB        *Competitor
	SuggestedTable *int
}

func (p Pairing) IsBye() bool {
	return p.PlayerB == nil
}

// CombinedScore is the tournament-to-date score of both competitors.
func (p Pairing) CombinedScore() int {
	score := p.PlayerA.TotalScore
	if p.PlayerB != nil {
		score += p.PlayerB.TotalScore
	}
	return score
}

// MinCompetitorID is the lexicographically smaller competitor id, used as the
// deterministic tie-break when combined scores are equal.
func (p Pairing) MinCompetitorID() string {
	if p.PlayerB != nil && p.PlayerB.ID < p.PlayerA.ID {
		return p.PlayerB.ID
	}
	return p.PlayerA.ID
}

// CompetitorSnapshot is the competitor state copied into an allocation at
// decision time.
type CompetitorSnapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// NoTable marks an allocation without a table: byes, and regular pairings
// that could not be seated. Table numbering starts at 1, so 0 is unambiguous.
const NoTable = 0

// Allocation is the durable per-pairing decision for a round. It may be
// replaced in place (same id, new table and audit) by a manual reassign or
// swap; Version fences concurrent edits.
type Allocation struct {
	ID           string
	TournamentID string
	Round        int
	TableNumber  int
	Terrain      string
	PlayerA      CompetitorSnapshot
	PlayerB      *CompetitorSnapshot
	BCPTable     *int
	Audit        AuditRecord
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Allocation) IsBye() bool {
	return a.PlayerB == nil
}

type ConflictType string

const (
	ConflictTableReuse   ConflictType = "TABLE_REUSE"
	ConflictTerrainReuse ConflictType = "TERRAIN_REUSE"
	ConflictNoTable      ConflictType = "NO_TABLE_AVAILABLE"
)

// Conflict is a soft, reported violation of an allocation preference. It
// never blocks generation.
type Conflict struct {
	Type    ConflictType `json:"type"`
	Message string       `json:"message"`
}

// AuditBreakdown itemizes the cost of a decision. Generation fills
// TableNumber; manual edits fill BCPMismatch instead (1 when a suggested
// table existed and the chosen table differs).
type AuditBreakdown struct {
	TableReuse   int `json:"tableReuse"`
	TerrainReuse int `json:"terrainReuse"`
	TableNumber  int `json:"tableNumber,omitempty"`
	BCPMismatch  int `json:"bcpMismatch,omitempty"`
}

// AuditRecord is the append-only rationale for one decision. It is never
// mutated after creation; manual edits attach a fresh record and the prior
// one is retained in the audit history table.
type AuditRecord struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	TotalCost    int            `json:"total_cost"`
	Breakdown    AuditBreakdown `json:"breakdown"`
	Reasons      []string       `json:"reasons"`
	Alternatives map[int]int    `json:"alternatives,omitempty"`
	FirstRound   bool           `json:"first_round"`
	Bye          bool           `json:"bye"`
	Conflicts    []Conflict     `json:"conflicts,omitempty"`
}
