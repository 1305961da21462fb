package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/friendsbet/internal/wager-service/dto"
)

const defaultLeaderboardLimit = 50

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	initial := s.StartingBalance
	if req.InitialBalance != nil {
		initial = *req.InitialBalance
	}
	u, err := s.Ledger.OpenAccount(r.Context(), req.UserID, initial)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bal, err := s.Ledger.BalanceOf(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{UserID: id, Balance: bal})
}

func (s *Server) topUp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.TopUpRequest
	if !s.decode(w, r, &req) {
		return
	}
	bal, err := s.Ledger.TopUp(r.Context(), id, req.Amount, req.Ref)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{UserID: id, Balance: bal})
}

func (s *Server) ledgerEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Ledger.Entries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) userBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.Bets.BetsForUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	rows, err := s.Ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) activity(w http.ResponseWriter, r *http.Request) {
	if s.Activity == nil {
		writeError(w, http.StatusServiceUnavailable, "activity feed unavailable")
		return
	}
	items, err := s.Activity.Recent(r.Context(), 100)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
