package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/playverse/tournament-engine/middleware"
	"github.com/playverse/tournament-engine/models"
	"github.com/playverse/tournament-engine/services"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(ms services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: ms}
}

type submitResultRequest struct {
	WinnerParticipantID int     `json:"winner_participant_id"`
	Score               *string `json:"score"`
}

// SubmitResultHandler handles POST /matches/{matchID}/result.
func (h *MatchHandler) SubmitResultHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to submit a result")
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var req submitResultRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if req.WinnerParticipantID <= 0 {
		badRequestResponse(w, r, errors.New("winner_participant_id is required"))
		return
	}

	outcome, err := h.matchService.SubmitResult(r.Context(), services.SubmitResultInput{
		MatchID:             matchID,
		WinnerParticipantID: req.WinnerParticipantID,
		Score:               req.Score,
		ActorUserID:         currentUserID,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	response := jsonResponse{"match": outcome.Match}
	if len(outcome.NextRound) > 0 {
		response["next_round"] = outcome.NextRound
	}
	if outcome.Completed {
		response["champion"] = outcome.Champion
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler handles GET /matches/{matchID}.
func (h *MatchHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.GetByID(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListByTournamentHandler handles GET /tournaments/{tournamentID}/matches.
func (h *MatchHandler) ListByTournamentHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var round *int
	if roundStr := r.URL.Query().Get("round"); roundStr != "" {
		n, err := strconv.Atoi(roundStr)
		if err != nil || n <= 0 {
			badRequestResponse(w, r, errors.New("invalid round query parameter"))
			return
		}
		round = &n
	}
	var status *models.MatchStatus
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		s := models.MatchStatus(statusStr)
		status = &s
	}

	matches, err := h.matchService.ListByTournament(r.Context(), tournamentID, round, status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
