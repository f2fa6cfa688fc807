package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/goalmate/backend/backend/progress"
	"github.com/goalmate/backend/backend/server/contextkey"
)

// errorResponse is the JSON body returned for every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes the given payload as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// writeError writes a JSON error body with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps a lower-layer error onto an HTTP status. Sentinel
// errors from the progress engine and the storage layer carry their own
// status; anything unrecognized is a 500 with a generic body.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, progress.ErrGoalNotFound) || errors.Is(err, mongo.ErrNoDocuments):
		writeError(w, http.StatusNotFound, "goal not found")
	case errors.Is(err, progress.ErrSubTaskNotFound):
		writeError(w, http.StatusNotFound, "sub-task not found")
	case errors.Is(err, progress.ErrNotContributor):
		writeError(w, http.StatusForbidden, "you are not a contributor of this goal")
	case errors.Is(err, progress.ErrNotAssigned):
		writeError(w, http.StatusForbidden, "sub-task is not assigned to you")
	case errors.Is(err, progress.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid sub-task status")
	case errors.Is(err, progress.ErrGoalArchived):
		writeError(w, http.StatusBadRequest, "goal is archived")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// requestUserID extracts the authenticated user's object id from the request
// context. The second return value is false when the request carries no
// valid identity; callers then respond with 401.
func requestUserID(r *http.Request) (primitive.ObjectID, bool) {
	raw, ok := r.Context().Value(contextkey.UserIDKey).(string)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}
