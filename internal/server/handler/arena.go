package handler

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/soliseum/arenad/internal/consensus"
	"github.com/soliseum/arenad/internal/domain"
	"github.com/soliseum/arenad/internal/service"
)

// ArenaService defines the methods the arena handler requires from the
// service layer. Declared locally so the handler package does not depend on
// the concrete service type.
type ArenaService interface {
	OpenArena(ctx context.Context, p service.OpenArenaParams) (domain.Arena, error)
	GetArena(ctx context.Context, id string) (domain.Arena, error)
	ListArenas(ctx context.Context, opts domain.ListOpts) ([]domain.Arena, error)
	Settle(ctx context.Context, arenaID string, winner domain.Side, sigs []consensus.IndexedSignature) (domain.Arena, error)
	Reset(ctx context.Context, arenaID, caller string, sigs []consensus.IndexedSignature) (domain.Arena, error)
	RotateOracles(ctx context.Context, arenaID, caller string, newKeys domain.Committee, sigs []consensus.IndexedSignature) (domain.Arena, error)
}

// ArenaHandler serves arena lifecycle endpoints.
type ArenaHandler struct {
	arenas ArenaService
	logger *slog.Logger
}

// NewArenaHandler creates an ArenaHandler.
func NewArenaHandler(arenas ArenaService, logger *slog.Logger) *ArenaHandler {
	return &ArenaHandler{
		arenas: arenas,
		logger: logger,
	}
}

// signatureDTO carries one oracle signature on the wire. The signature is
// hex encoded, matching the output of the arenactl signing commands.
type signatureDTO struct {
	Index     uint8  `json:"index"`
	Signature string `json:"signature"`
}

func parseSignatures(dtos []signatureDTO) ([]consensus.IndexedSignature, error) {
	sigs := make([]consensus.IndexedSignature, 0, len(dtos))
	for i, d := range dtos {
		raw, err := hex.DecodeString(d.Signature)
		if err != nil {
			return nil, fmt.Errorf("signature %d is not hex: %w", i, err)
		}
		sigs = append(sigs, consensus.IndexedSignature{Index: d.Index, Signature: raw})
	}
	return sigs, nil
}

type openArenaRequest struct {
	Creator string           `json:"creator"`
	FeeBps  uint16           `json:"fee_bps"`
	Oracles domain.Committee `json:"oracles"`
}

// OpenArena creates a new arena.
// POST /api/arenas
func (h *ArenaHandler) OpenArena(w http.ResponseWriter, r *http.Request) {
	var req openArenaRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	arena, err := h.arenas.OpenArena(r.Context(), service.OpenArenaParams{
		Creator: req.Creator,
		FeeBps:  req.FeeBps,
		Oracles: req.Oracles,
	})
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: open arena failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to open arena")
		return
	}

	writeJSON(w, http.StatusCreated, arena)
}

// listArenasResponse wraps the list endpoint output with pagination echoes.
type listArenasResponse struct {
	Arenas []domain.Arena `json:"arenas"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListArenas returns arenas, newest first.
// GET /api/arenas?limit=50&offset=0
func (h *ArenaHandler) ListArenas(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	arenas, err := h.arenas.ListArenas(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list arenas failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list arenas")
		return
	}

	writeJSON(w, http.StatusOK, listArenasResponse{
		Arenas: arenas,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetArena returns a single arena by id.
// GET /api/arenas/{id}
func (h *ArenaHandler) GetArena(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing arena id")
		return
	}

	arena, err := h.arenas.GetArena(r.Context(), id)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get arena failed",
			slog.String("arena_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get arena")
		return
	}

	writeJSON(w, http.StatusOK, arena)
}

type settleRequest struct {
	Winner     domain.Side    `json:"winner"`
	Signatures []signatureDTO `json:"signatures"`
}

// Settle declares the winning side with oracle consensus.
// POST /api/arenas/{id}/settle
func (h *ArenaHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sigs, err := parseSignatures(req.Signatures)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	arena, err := h.arenas.Settle(r.Context(), id, req.Winner, sigs)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: settle failed",
			slog.String("arena_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to settle arena")
		return
	}

	writeJSON(w, http.StatusOK, arena)
}

type resetRequest struct {
	Caller     string         `json:"caller"`
	Signatures []signatureDTO `json:"signatures"`
}

// Reset recycles a drained, settled arena for a new contest.
// POST /api/arenas/{id}/reset
func (h *ArenaHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sigs, err := parseSignatures(req.Signatures)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	arena, err := h.arenas.Reset(r.Context(), id, req.Caller, sigs)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: reset failed",
			slog.String("arena_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to reset arena")
		return
	}

	writeJSON(w, http.StatusOK, arena)
}

type rotateOraclesRequest struct {
	Caller     string           `json:"caller"`
	Oracles    domain.Committee `json:"oracles"`
	Signatures []signatureDTO   `json:"signatures"`
}

// RotateOracles replaces the arena's oracle committee.
// POST /api/arenas/{id}/oracles
func (h *ArenaHandler) RotateOracles(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req rotateOraclesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sigs, err := parseSignatures(req.Signatures)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	arena, err := h.arenas.RotateOracles(r.Context(), id, req.Caller, req.Oracles, sigs)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: rotate oracles failed",
			slog.String("arena_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to rotate oracles")
		return
	}

	writeJSON(w, http.StatusOK, arena)
}
