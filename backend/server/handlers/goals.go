package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/goalmate/backend/backend/models"
	"github.com/goalmate/backend/backend/progress"
	storage "github.com/goalmate/backend/backend/storage/persistent"
)

// store is a global variable that holds an interface to the storage system (database).
var store storage.StorageInterface

// engine is a global variable that holds the goal progress engine. All
// progress writes go through it.
var engine *progress.Engine

// freeGoalLimit is the number of simultaneously active goals a non-premium
// account may own.
const freeGoalLimit = 3

// Init wires the handler package to the storage backend and the progress
// engine. It must be called before the router is started.
func Init(s storage.StorageInterface, e *progress.Engine) {
	store = s
	engine = e
}

type createGoalRequest struct {
	Title             string                   `json:"title"`
	Description       string                   `json:"description"`
	GoalType          models.GoalType          `json:"goalType"`
	CollaborativeType models.CollaborativeType `json:"collaborativeType"`
	GoalCategory      string                   `json:"goalCategory"`
	Priority          string                   `json:"priority"`
	StartDate         time.Time                `json:"startDate"`
	EndDate           time.Time                `json:"endDate"`
	Frequency         string                   `json:"frequency"`
	ProgressFrequency string                   `json:"progressFrequency"`

	FitnessType string  `json:"fitnessType"`
	Duration    float64 `json:"duration"`
	Distance    float64 `json:"distance"`
	Sets        float64 `json:"sets"`
	Reps        float64 `json:"reps"`
	Weight      float64 `json:"weight"`

	EducationType string  `json:"educationType"`
	StudyHours    float64 `json:"studyHours"`
	Pages         float64 `json:"pages"`
	Modules       float64 `json:"modules"`
	TestScore     string  `json:"testScore"`

	SubTasks []createSubTaskRequest `json:"subTasks"`
}

type createSubTaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	AssignedTo  string  `json:"assignedTo"`
	StartValue  float64 `json:"startValue"`
	EndValue    float64 `json:"endValue"`
}

// CreateGoal creates a new goal owned by the authenticated user. Non-premium
// accounts are limited to freeGoalLimit active goals.
func CreateGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createGoalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	switch req.GoalType {
	case models.GoalIndividual, models.GoalGroup, models.GoalCollaborative:
	default:
		writeError(w, http.StatusBadRequest, "invalid goal type")
		return
	}
	if req.GoalType == models.GoalCollaborative {
		if req.CollaborativeType != models.CollabCompete && req.CollaborativeType != models.CollabAchieveTogether {
			writeError(w, http.StatusBadRequest, "collaborative goals require a collaborative type")
			return
		}
	} else if req.CollaborativeType != "" {
		writeError(w, http.StatusBadRequest, "collaborative type is only valid on collaborative goals")
		return
	}
	if !req.EndDate.IsZero() && !req.StartDate.IsZero() && req.EndDate.Before(req.StartDate) {
		writeError(w, http.StatusBadRequest, "end date must be after start date")
		return
	}

	user, err := store.FindUser(r.Context(), bson.M{"_id": userID})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !user.IsPremium {
		active, err := store.GoalCount(r.Context(), bson.M{
			"created_by": userID,
			"status":     bson.M{"$ne": models.StatusArchived},
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if active >= freeGoalLimit {
			writeError(w, http.StatusForbidden, "free accounts are limited to 3 active goals, upgrade to premium to create more")
			return
		}
	}

	now := time.Now()
	goal := &models.Goal{
		Title:             strings.TrimSpace(req.Title),
		Description:       req.Description,
		GoalType:          req.GoalType,
		CollaborativeType: req.CollaborativeType,
		GoalCategory:      req.GoalCategory,
		Priority:          req.Priority,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		Frequency:         req.Frequency,
		ProgressFrequency: req.ProgressFrequency,
		Status:            models.StatusNotStarted,
		FitnessType:       req.FitnessType,
		Duration:          req.Duration,
		Distance:          req.Distance,
		Sets:              req.Sets,
		Reps:              req.Reps,
		Weight:            req.Weight,
		EducationType:     req.EducationType,
		StudyHours:        req.StudyHours,
		Pages:             req.Pages,
		Modules:           req.Modules,
		TestScore:         req.TestScore,
		CreatedBy:         userID,
		Participants:      []primitive.ObjectID{},
		SubTasks:          []models.SubTask{},
		ProgressHistory:   []models.ProgressEntry{},
		IsCustomCategory:  req.GoalCategory != models.CategoryFitness && req.GoalCategory != models.CategoryEducation,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	for _, st := range req.SubTasks {
		if strings.TrimSpace(st.Title) == "" {
			writeError(w, http.StatusBadRequest, "sub-task title is required")
			return
		}
		assignee := userID
		if st.AssignedTo != "" {
			assignee, err = primitive.ObjectIDFromHex(st.AssignedTo)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid sub-task assignee id")
				return
			}
		}
		goal.SubTasks = append(goal.SubTasks, models.SubTask{
			ID:          primitive.NewObjectID(),
			Title:       strings.TrimSpace(st.Title),
			Description: st.Description,
			AssignedTo:  assignee,
			Status:      models.StatusNotStarted,
			StartValue:  st.StartValue,
			EndValue:    st.EndValue,
			CreatedAt:   now,
		})
	}

	if goal.CollaborativeType == models.CollabCompete {
		goal.SeedIndividualProgress(now)
	}

	created, err := store.AddGoal(r.Context(), goal)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	view, err := projectGoal(r, created)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListGoals returns every goal the authenticated user contributes to, owned
// or joined.
func ListGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	goals, err := store.FindGoalsByParameter(r.Context(), bson.M{
		"$or": []bson.M{
			{"created_by": userID},
			{"participants": userID},
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views, err := projectGoals(r, goals)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// sharedGoalView pairs a pending invitation with the goal it refers to.
type sharedGoalView struct {
	ShareID   string             `json:"shareId"`
	Message   string             `json:"message,omitempty"`
	Status    models.ShareStatus `json:"status"`
	SharedBy  userSummary        `json:"sharedBy"`
	CreatedAt time.Time          `json:"createdAt"`
	Goal      *goalView          `json:"goal"`
}

// ListSharedGoals returns the invitations addressed to the authenticated
// user that are still pending.
func ListSharedGoals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	shares, err := store.FindGoalSharesByParameter(r.Context(), bson.M{
		"friend_user_id": userID,
		"status":         models.SharePending,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]sharedGoalView, 0, len(shares))
	for _, share := range shares {
		goal, err := store.FindGoal(r.Context(), share.GoalID)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				continue // goal deleted since the share was created
			}
			writeDomainError(w, err)
			return
		}
		view, err := projectGoal(r, goal)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		sharer, err := resolveUsers(r, []primitive.ObjectID{share.UserID})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out = append(out, sharedGoalView{
			ShareID:   share.ID.Hex(),
			Message:   share.Message,
			Status:    share.Status,
			SharedBy:  sharer[share.UserID],
			CreatedAt: share.CreatedAt,
			Goal:      view,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// GetGoal returns one goal. Only contributors may read it.
func GetGoal(w http.ResponseWriter, r *http.Request) {
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

	goal, err := store.FindGoal(r.Context(), goalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !goal.IsContributor(userID) {
		writeError(w, http.StatusForbidden, "you are not a contributor of this goal")
		return
	}

	view, err := projectGoal(r, goal)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type updateGoalRequest struct {
	Title             *string    `json:"title"`
	Description       *string    `json:"description"`
	Priority          *string    `json:"priority"`
	EndDate           *time.Time `json:"endDate"`
	Frequency         *string    `json:"frequency"`
	ProgressFrequency *string    `json:"progressFrequency"`
	Archived          *bool      `json:"archived"`
}

// UpdateGoal lets the creator edit a goal's descriptive fields or archive
// it. Progress state is never writable here.
func UpdateGoal(w http.ResponseWriter, r *http.Request) {
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

	var req updateGoalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goal, err := store.FindGoal(r.Context(), goalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if goal.CreatedBy != userID {
		writeError(w, http.StatusForbidden, "only the goal creator may update it")
		return
	}

	set := bson.M{}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}
		set["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		set["description"] = *req.Description
	}
	if req.Priority != nil {
		set["priority"] = *req.Priority
	}
	if req.EndDate != nil {
		set["end_date"] = *req.EndDate
	}
	if req.Frequency != nil {
		set["frequency"] = *req.Frequency
	}
	if req.ProgressFrequency != nil {
		set["progress_frequency"] = *req.ProgressFrequency
	}
	if req.Archived != nil && *req.Archived {
		set["status"] = models.StatusArchived
	}
	if len(set) == 0 {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	set["updated_at"] = time.Now()

	if _, err := store.UpdateGoal(r.Context(), bson.M{"_id": goalID}, bson.M{"$set": set}); err != nil {
		writeDomainError(w, err)
		return
	}

	updated, err := store.FindGoal(r.Context(), goalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view, err := projectGoal(r, updated)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// DeleteGoal removes a goal and its share records. Creator only.
func DeleteGoal(w http.ResponseWriter, r *http.Request) {
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

	goal, err := store.FindGoal(r.Context(), goalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if goal.CreatedBy != userID {
		writeError(w, http.StatusForbidden, "only the goal creator may delete it")
		return
	}

	if _, err := store.DeleteGoal(r.Context(), bson.M{"_id": goalID}); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "goal deleted"})
}

type shareGoalRequest struct {
	GoalID      string `json:"goalId"`
	FriendEmail string `json:"friendEmail"`
	Message     string `json:"message"`
}

// ShareGoal invites another user, looked up by email, to join a goal. Only
// the creator may share, and only shared goal types can be shared.
func ShareGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req shareGoalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goalID, err := primitive.ObjectIDFromHex(req.GoalID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return
	}

	goal, err := store.FindGoal(r.Context(), goalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if goal.CreatedBy != userID {
		writeError(w, http.StatusForbidden, "only the goal creator may share it")
		return
	}
	if goal.GoalType == models.GoalIndividual {
		writeError(w, http.StatusBadRequest, "individual goals cannot be shared")
		return
	}

	friend, err := store.FindUser(r.Context(), bson.M{"email": req.FriendEmail})
	if err != nil {
		if err == mongo.ErrNoDocuments {
			writeError(w, http.StatusNotFound, "no user with that email")
			return
		}
		writeDomainError(w, err)
		return
	}
	if friend.ID == userID {
		writeError(w, http.StatusBadRequest, "you cannot share a goal with yourself")
		return
	}
	if goal.IsContributor(friend.ID) {
		writeError(w, http.StatusConflict, "user is already a contributor of this goal")
		return
	}

	now := time.Now()
	share, err := store.AddGoalShare(r.Context(), &models.GoalShare{
		GoalID:       goalID,
		UserID:       userID,
		FriendUserID: friend.ID,
		Status:       models.SharePending,
		Message:      req.Message,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			writeError(w, http.StatusConflict, "goal already shared with this user")
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, share)
}

type respondToShareRequest struct {
	Accept bool `json:"accept"`
}

// RespondToShare lets the invited friend accept or decline a pending share.
// Accepting adds them to the goal's participants.
func RespondToShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	shareID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid share id")
		return
	}

	var req respondToShareRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	share, err := store.FindGoalShare(r.Context(), bson.M{"_id": shareID})
	if err != nil {
		if err == mongo.ErrNoDocuments {
			writeError(w, http.StatusNotFound, "share not found")
			return
		}
		writeDomainError(w, err)
		return
	}
	if share.FriendUserID != userID {
		writeError(w, http.StatusForbidden, "this invitation is not addressed to you")
		return
	}
	if share.Status != models.SharePending {
		writeError(w, http.StatusConflict, "invitation has already been answered")
		return
	}

	status := models.ShareDeclined
	if req.Accept {
		status = models.ShareAccepted
	}
	if _, err := store.UpdateGoalShare(r.Context(), bson.M{"_id": shareID}, bson.M{
		"$set": bson.M{"status": status, "updated_at": time.Now()},
	}); err != nil {
		writeDomainError(w, err)
		return
	}

	if req.Accept {
		if _, err := store.UpdateGoal(r.Context(), bson.M{"_id": share.GoalID}, bson.M{
			"$addToSet": bson.M{"participants": userID},
			"$set":      bson.M{"updated_at": time.Now()},
		}); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// LeaveGoal removes the authenticated user from a goal's participants. The
// creator cannot leave their own goal. Compete-mode tallies for the leaver
// are removed; the progress history keeps their past entries.
func LeaveGoal(w http.ResponseWriter, r *http.Request) {
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

	goal, err := store.FindGoal(r.Context(), goalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if goal.CreatedBy == userID {
		writeError(w, http.StatusBadRequest, "the creator cannot leave their own goal")
		return
	}
	if !goal.IsContributor(userID) {
		writeError(w, http.StatusForbidden, "you are not a contributor of this goal")
		return
	}

	if _, err := store.UpdateGoal(r.Context(), bson.M{"_id": goalID}, bson.M{
		"$pull": bson.M{
			"participants":        userID,
			"individual_progress": bson.M{"user_id": userID},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}); err != nil {
		writeDomainError(w, err)
		return
	}

	if _, err := store.DeleteGoalShare(r.Context(), bson.M{
		"goal_id":        goalID,
		"friend_user_id": userID,
	}); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "left goal"})
}
