package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	service "github.com/okian/questrank/internal/app"
	"github.com/okian/questrank/internal/domain/model"
)

const maxFactBody = 64 << 10

// FactDependencies defines the interface for fact-change notifications.
type FactDependencies interface {
	HandleFactChange(ctx context.Context, c model.FactChange) (service.Outcome, error)
}

// FactsHandler handles fact-change notifications.
type FactsHandler struct {
	deps     FactDependencies
	validate *validator.Validate
}

// NewFactsHandler creates a new facts handler.
func NewFactsHandler(deps FactDependencies) *FactsHandler {
	return &FactsHandler{deps: deps, validate: validator.New()}
}

// HandleFactChanged handles POST /facts/changed. A new notification is
// accepted with 202, a redelivered one acknowledged with 200.
func (h *FactsHandler) HandleFactChanged(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_fact_changed"
	var req factRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFactBody)).Decode(&req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	if err := h.validate.Struct(req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, describe(err)))
		return
	}

	outcome, err := h.deps.HandleFactChange(r.Context(), req.change("http"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	status := http.StatusAccepted
	if outcome == service.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, ack(outcome))
}

// describe turns validator output into a short message naming fields by
// their JSON names.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := jsonName(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, "missing "+name)
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", name, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", name, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func jsonName(field string) string {
	switch field {
	case "EventID":
		return "event_id"
	case "UserID":
		return "user_id"
	case "Kind":
		return "kind"
	case "OccurredAt":
		return "occurred_at"
	default:
		return field
	}
}
