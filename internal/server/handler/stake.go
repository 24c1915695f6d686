package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/soliseum/arenad/internal/domain"
)

// StakeService defines the methods the stake handler requires from the
// service layer.
type StakeService interface {
	PlaceStake(ctx context.Context, arenaID, owner string, amount uint64, side domain.Side) (domain.Stake, error)
	GetStake(ctx context.Context, arenaID, owner string) (domain.Stake, error)
	ListStakes(ctx context.Context, arenaID string, opts domain.ListOpts) ([]domain.Stake, error)
	Claim(ctx context.Context, arenaID, owner string) (uint64, error)
}

// StakeHandler serves stake and claim endpoints.
type StakeHandler struct {
	stakes StakeService
	logger *slog.Logger
}

// NewStakeHandler creates a StakeHandler.
func NewStakeHandler(stakes StakeService, logger *slog.Logger) *StakeHandler {
	return &StakeHandler{
		stakes: stakes,
		logger: logger,
	}
}

type placeStakeRequest struct {
	Owner  string      `json:"owner"`
	Amount uint64      `json:"amount"`
	Side   domain.Side `json:"side"`
}

// PlaceStake moves funds into the arena escrow on the chosen side.
// POST /api/arenas/{id}/stakes
func (h *StakeHandler) PlaceStake(w http.ResponseWriter, r *http.Request) {
	arenaID := pathParam(r, "id")

	var req placeStakeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	stake, err := h.stakes.PlaceStake(r.Context(), arenaID, req.Owner, req.Amount, req.Side)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: place stake failed",
			slog.String("arena_id", arenaID),
			slog.String("owner", req.Owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to place stake")
		return
	}

	writeJSON(w, http.StatusCreated, stake)
}

// listStakesResponse wraps the stake book with pagination echoes.
type listStakesResponse struct {
	Stakes []domain.Stake `json:"stakes"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListStakes returns the stake book of an arena.
// GET /api/arenas/{id}/stakes
func (h *StakeHandler) ListStakes(w http.ResponseWriter, r *http.Request) {
	arenaID := pathParam(r, "id")
	opts := parseListOpts(r)

	stakes, err := h.stakes.ListStakes(r.Context(), arenaID, opts)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list stakes failed",
			slog.String("arena_id", arenaID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list stakes")
		return
	}

	writeJSON(w, http.StatusOK, listStakesResponse{
		Stakes: stakes,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetStake returns one participant's stake.
// GET /api/arenas/{id}/stakes/{owner}
func (h *StakeHandler) GetStake(w http.ResponseWriter, r *http.Request) {
	arenaID := pathParam(r, "id")
	owner := pathParam(r, "owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing stake owner")
		return
	}

	stake, err := h.stakes.GetStake(r.Context(), arenaID, owner)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get stake failed",
			slog.String("arena_id", arenaID),
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get stake")
		return
	}

	writeJSON(w, http.StatusOK, stake)
}

type claimRequest struct {
	Owner string `json:"owner"`
}

// claimResponse reports the amount paid out to the claimer.
type claimResponse struct {
	ArenaID string `json:"arena_id"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

// Claim pays a winning staker their principal plus reward.
// POST /api/arenas/{id}/claims
func (h *StakeHandler) Claim(w http.ResponseWriter, r *http.Request) {
	arenaID := pathParam(r, "id")

	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Owner == "" {
		writeError(w, http.StatusBadRequest, "missing stake owner")
		return
	}

	amount, err := h.stakes.Claim(r.Context(), arenaID, req.Owner)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: claim failed",
			slog.String("arena_id", arenaID),
			slog.String("owner", req.Owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to claim")
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		ArenaID: arenaID,
		Owner:   req.Owner,
		Amount:  amount,
	})
}
