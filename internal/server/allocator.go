package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"table-allocator/internal/domain"
	"table-allocator/internal/repository"
	"table-allocator/internal/service"

	"github.com/rs/zerolog"
)

// AllocatorServer exposes the allocation engine and the manual adjustment
// operations as a JSON admin API.
type AllocatorServer struct {
	allocationSvc *service.AllocationService
	adjustmentSvc *service.AdjustmentService
	logger        zerolog.Logger
}

func NewAllocatorServer(allocationSvc *service.AllocationService, adjustmentSvc *service.AdjustmentService, logger zerolog.Logger) *AllocatorServer {
	return &AllocatorServer{
		allocationSvc: allocationSvc,
		adjustmentSvc: adjustmentSvc,
		logger:        logger,
	}
}

func (s *AllocatorServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tournaments", s.handleCreateTournament)
	mux.HandleFunc("GET /api/tournaments/{id}/rounds/{round}", s.handleGetRound)
	mux.HandleFunc("POST /api/tournaments/{id}/rounds/{round}/generate", s.handleGenerateRound)
	mux.HandleFunc("POST /api/allocations/{id}/reassign", s.handleReassign)
	mux.HandleFunc("POST /api/allocations/swap", s.handleSwap)
}

type createTournamentRequest struct {
	Name       string              `json:"name"`
	BCPEventID string              `json:"bcp_event_id"`
	Tables     []service.TableSpec `json:"tables"`
}

type tournamentResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BCPEventID   string `json:"bcp_event_id"`
	CurrentRound int    `json:"current_round"`
}

func (s *AllocatorServer) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tournament, err := s.allocationSvc.CreateTournament(r.Context(), req.Name, req.BCPEventID, req.Tables)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, tournamentResponse{
		ID:           tournament.ID,
		Name:         tournament.Name,
		BCPEventID:   tournament.BCPEventID,
		CurrentRound: tournament.CurrentRound,
	})
}

type allocationResponse struct {
	ID          string                     `json:"id"`
	Round       int                        `json:"round"`
	TableNumber *int                       `json:"table_number"`
	Terrain     string                     `json:"terrain,omitempty"`
	PlayerA     domain.CompetitorSnapshot  `json:"player_a"`
	PlayerB     *domain.CompetitorSnapshot `json:"player_b,omitempty"`
	Audit       domain.AuditRecord         `json:"audit"`
}

type roundResponse struct {
	Allocations []allocationResponse `json:"allocations"`
	Conflicts   []domain.Conflict    `json:"conflicts"`
	Summary     string               `json:"summary,omitempty"`
}

func (s *AllocatorServer) handleGetRound(w http.ResponseWriter, r *http.Request) {
	tournamentID := r.PathValue("id")
	round, err := strconv.Atoi(r.PathValue("round"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid round number")
		return
	}

	allocations, err := s.allocationSvc.GetRound(r.Context(), tournamentID, round)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := roundResponse{Allocations: make([]allocationResponse, 0, len(allocations))}
	for _, a := range allocations {
		resp.Allocations = append(resp.Allocations, toAllocationResponse(a))
		resp.Conflicts = append(resp.Conflicts, a.Audit.Conflicts...)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *AllocatorServer) handleGenerateRound(w http.ResponseWriter, r *http.Request) {
	tournamentID := r.PathValue("id")
	round, err := strconv.Atoi(r.PathValue("round"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid round number")
		return
	}

	outcome, err := s.allocationSvc.GenerateRound(r.Context(), tournamentID, round)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := roundResponse{
		Allocations: make([]allocationResponse, 0, len(outcome.Allocations)),
		Conflicts:   outcome.Conflicts,
		Summary:     outcome.Summary,
	}
	for _, a := range outcome.Allocations {
		resp.Allocations = append(resp.Allocations, toAllocationResponse(a))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type reassignRequest struct {
	TableNumber int `json:"table_number"`
}

func (s *AllocatorServer) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.adjustmentSvc.Reassign(r.Context(), r.PathValue("id"), req.TableNumber)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type swapRequest struct {
	FirstID  string `json:"first_id"`
	SecondID string `json:"second_id"`
}

func (s *AllocatorServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.adjustmentSvc.Swap(r.Context(), req.FirstID, req.SecondID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func toAllocationResponse(a domain.Allocation) allocationResponse {
	resp := allocationResponse{
		ID:      a.ID,
		Round:   a.Round,
		Terrain: a.Terrain,
		PlayerA: a.PlayerA,
		PlayerB: a.PlayerB,
		Audit:   a.Audit,
	}
	if a.TableNumber != domain.NoTable {
		n := a.TableNumber
		resp.TableNumber = &n
	}
	return resp
}

func (s *AllocatorServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrTournamentNotFound),
		errors.Is(err, repository.ErrAllocationNotFound),
		errors.Is(err, repository.ErrTableNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrTableOccupied),
		errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, service.ErrSelfSwap),
		errors.Is(err, service.ErrDifferentRounds),
		errors.Is(err, service.ErrByeAllocation),
		errors.Is(err, service.ErrNoTableAssigned):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *AllocatorServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *AllocatorServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
