package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/questrank/internal/adapters/http/identity"
	"github.com/okian/questrank/internal/domain/model"
)

// LeaderboardDependencies defines the interface for leaderboard operations
type LeaderboardDependencies interface {
	GetLeaderboard(ctx context.Context, period model.Period, windowSize int, callerID string) (model.Snapshot, error)
	DefaultWindowSize() int
	MaxWindowSize() int
}

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard?period=P&limit=N requests.
// The caller entry is resolved from the request identity.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()

	period, err := model.ParsePeriod(q.Get("period"))
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	n := h.deps.DefaultWindowSize()
	if raw := q.Get("limit"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeFailure(w, WrapKind(op, ErrBadRequest, strconv.ErrSyntax))
			return
		}
	}
	if n > h.deps.MaxWindowSize() {
		writeFailure(w, NewKind(op, ErrLimitTooHigh))
		return
	}

	snap, err := h.deps.GetLeaderboard(r.Context(), period, n, identity.UserID(r.Context()))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
