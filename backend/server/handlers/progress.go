package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goalmate/backend/backend/models"
	"github.com/goalmate/backend/backend/progress"
)

type recordProgressRequest struct {
	Value       float64 `json:"value"`
	Notes       string  `json:"notes"`
	SubTaskID   string  `json:"subTaskId"`
	IsUnitValue bool    `json:"isUnitValue"`
}

// RecordProgress appends one contribution to a goal and returns the
// recomputed aggregate.
func RecordProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	goalID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	var req recordProgressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Value < 0 {
		writeError(w, http.StatusBadRequest, "value must not be negative")
		return
	}

	upd := progress.Update{
		Value:       req.Value,
		Notes:       req.Notes,
		IsUnitValue: req.IsUnitValue,
	}
	if req.SubTaskID != "" {
		subTaskID, err := primitive.ObjectIDFromHex(req.SubTaskID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid sub-task id")
			return
		}
		upd.SubTaskID = &subTaskID
	}

	goal, err := engine.RecordProgress(r.Context(), goalID, userID, upd)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	view, err := projectGoal(r, goal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type subTaskStatusRequest struct {
	GoalID    string `json:"goalId"`
	SubTaskID string `json:"subTaskId"`
	Status    string `json:"status"`
}

// SetSubTaskStatus moves a sub-task through its lifecycle and returns the
// goal with the completion rolled up.
func SetSubTaskStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req subTaskStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goalID, err := primitive.ObjectIDFromHex(req.GoalID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}
	subTaskID, err := primitive.ObjectIDFromHex(req.SubTaskID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sub-task id")
		return
	}

	goal, err := engine.SetSubTaskStatus(r.Context(), goalID, subTaskID, userID, models.GoalStatus(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	view, err := projectGoal(r, goal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
