package service

import (
	"context"
	"fmt"
	"table-allocator/internal/allocator"
	"table-allocator/internal/api"
	"table-allocator/internal/constants"
	"table-allocator/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type pairingSource interface {
	GetEvent(ctx context.Context, eventID string) (*api.EventResponse, error)
	GetPairings(ctx context.Context, eventID string, round int) (*api.PairingsResponse, error)
}

type tournamentStore interface {
	Create(ctx context.Context, tournament *domain.Tournament) error
	Get(ctx context.Context, id string) (*domain.Tournament, error)
	UpdateCurrentRound(ctx context.Context, id string, round int) error
}

type tableStore interface {
	CreateBatch(ctx context.Context, tables []domain.Table) error
	ListByTournament(ctx context.Context, tournamentID string) ([]domain.Table, error)
}

type allocationStore interface {
	allocator.AllocationReader
	ReplaceRound(ctx context.Context, tournamentID string, round int, allocations []domain.Allocation) ([]domain.Allocation, error)
	ListByRound(ctx context.Context, tournamentID string, round int) ([]domain.Allocation, error)
}

// AllocationService drives one generation run: pull the round's pairings
// from BCP, run the engine against the tournament's tables and history, and
// persist the result as the round's allocations.
type AllocationService struct {
	bcp         pairingSource
	tournaments tournamentStore
	tables      tableStore
	allocations allocationStore
	engine      *allocator.Engine
	logger      zerolog.Logger
}

func NewAllocationService(bcp *api.BCPClient, tournamentRepo tournamentStore, tableRepo tableStore, allocationRepo allocationStore, engine *allocator.Engine, logger zerolog.Logger) *AllocationService {
	return &AllocationService{
		bcp:         bcp,
		tournaments: tournamentRepo,
		tables:      tableRepo,
		allocations: allocationRepo,
		engine:      engine,
		logger:      logger,
	}
}

// TableSpec describes one table when creating a tournament.
type TableSpec struct {
	Number  int    `json:"number"`
	Terrain string `json:"terrain"`
}

func (s *AllocationService) CreateTournament(ctx context.Context, name, bcpEventID string, specs []TableSpec) (*domain.Tournament, error) {
	if name == "" {
		return nil, fmt.Errorf("tournament name is required")
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one table is required")
	}

	seen := make(map[int]bool, len(specs))
	for _, spec := range specs {
		if spec.Number < 1 {
			return nil, fmt.Errorf("table numbers start at 1, got %d", spec.Number)
		}
		if seen[spec.Number] {
			return nil, fmt.Errorf("duplicate table number %d", spec.Number)
		}
		seen[spec.Number] = true
	}

	tournament := &domain.Tournament{
		Name:       name,
		BCPEventID: bcpEventID,
	}
	if err := s.tournaments.Create(ctx, tournament); err != nil {
		return nil, err
	}

	tables := make([]domain.Table, len(specs))
	for i, spec := range specs {
		tables[i] = domain.Table{
			TournamentID: tournament.ID,
			Number:       spec.Number,
			Terrain:      spec.Terrain,
		}
	}
	if err := s.tables.CreateBatch(ctx, tables); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("tournament_id", tournament.ID).
		Str("name", name).
		Int("tables", len(tables)).
		Msg("tournament created")

	return tournament, nil
}

// RoundOutcome is one persisted generation run.
type RoundOutcome struct {
	Allocations []domain.Allocation
	Conflicts   []domain.Conflict
	Summary     string
}

// GenerateRound fetches the round's pairings from BCP, allocates tables and
// persists the result, replacing any previous allocations for the round.
func (s *AllocationService) GenerateRound(ctx context.Context, tournamentID string, round int) (*RoundOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if round < 1 {
		return nil, fmt.Errorf("round must be at least 1, got %d", round)
	}

	tournament, err := s.tournaments.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	event, pairingsResp, err := s.fetchPairingData(ctx, tournament.BCPEventID, round)
	if err != nil {
		s.logger.Error().Err(err).Str("tournament_id", tournamentID).Int("round", round).Msg("failed to fetch pairing data")
		return nil, fmt.Errorf("failed to fetch pairing data: %w", err)
	}
	if round > event.Data.NumberOfRounds {
		return nil, fmt.Errorf("round %d exceeds event round count %d", round, event.Data.NumberOfRounds)
	}
	if len(pairingsResp.Data) == 0 {
		return nil, fmt.Errorf("BCP has no pairings for round %d yet", round)
	}

	tables, err := s.tables.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("tournament %s has no tables configured", tournamentID)
	}

	pairings := mapPairings(pairingsResp.Data)
	history := allocator.NewHistory(s.allocations, tournamentID, round)

	result, err := s.engine.Generate(ctx, tournamentID, round, pairings, tables, history)
	if err != nil {
		return nil, err
	}

	persisted, err := s.allocations.ReplaceRound(ctx, tournamentID, round, result.Decisions)
	if err != nil {
		return nil, fmt.Errorf("failed to persist round %d: %w", round, err)
	}

	if round > tournament.CurrentRound {
		if err := s.tournaments.UpdateCurrentRound(ctx, tournamentID, round); err != nil {
			return nil, err
		}
	}

	return &RoundOutcome{
		Allocations: persisted,
		Conflicts:   result.Conflicts,
		Summary:     result.Summary,
	}, nil
}

func (s *AllocationService) GetRound(ctx context.Context, tournamentID string, round int) ([]domain.Allocation, error) {
	return s.allocations.ListByRound(ctx, tournamentID, round)
}

func (s *AllocationService) fetchPairingData(ctx context.Context, eventID string, round int) (*api.EventResponse, *api.PairingsResponse, error) {
	apiCtx, cancel := context.WithTimeout(ctx, constants.ExternalAPITimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(apiCtx)
	var event *api.EventResponse
	var pairings *api.PairingsResponse

	g.Go(func() error {
		var err error
		event, err = s.bcp.GetEvent(gCtx, eventID)
		return err
	})

	g.Go(func() error {
		var err error
		pairings, err = s.bcp.GetPairings(gCtx, eventID, round)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return event, pairings, nil
}

func mapPairings(bcpPairings []api.BCPPairing) []domain.Pairing {
	pairings := make([]domain.Pairing, len(bcpPairings))
	for i, bp := range bcpPairings {
		p := domain.Pairing{
			PlayerA: domain.Competitor{
				ID:         bp.Player1.ID,
				Name:       bp.Player1.Name,
				RoundScore: bp.Player1.RoundPoints,
				TotalScore: bp.Player1.TournamentPoints,
			},
			SuggestedTable: bp.Table,
		}
		if bp.Player2 != nil {
			p.PlayerB = &domain.Competitor{
				ID:         bp.Player2.ID,
				Name:       bp.Player2.Name,
				RoundScore: bp.Player2.RoundPoints,
				TotalScore: bp.Player2.TournamentPoints,
			}
		}
		pairings[i] = p
	}
	return pairings
}
