package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/goalmate/backend/backend/models"
	"github.com/goalmate/backend/backend/progress"
	storage "github.com/goalmate/backend/backend/storage/persistent"
	"github.com/goalmate/backend/backend/server/contextkey"
)

// memoryStorage is an in-memory StorageInterface for handler tests. Filters
// are interpreted only as far as the handlers actually use them.
type memoryStorage struct {
	users  map[primitive.ObjectID]*models.User
	goals  map[primitive.ObjectID]*models.Goal
	shares map[primitive.ObjectID]*models.GoalShare
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{
		users:  make(map[primitive.ObjectID]*models.User),
		goals:  make(map[primitive.ObjectID]*models.Goal),
		shares: make(map[primitive.ObjectID]*models.GoalShare),
	}
}

func (m *memoryStorage) Connect(dbName, uri string) error { return nil }
func (m *memoryStorage) Disconnect() error                { return nil }

func (m *memoryStorage) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryStorage) FindUser(ctx context.Context, filter interface{}) (*models.User, error) {
	f := filter.(bson.M)
	if id, ok := f["_id"].(primitive.ObjectID); ok {
		if u, ok := m.users[id]; ok {
			return u, nil
		}
		return nil, mongo.ErrNoDocuments
	}
	if email, ok := f["email"].(string); ok {
		for _, u := range m.users {
			if u.Email == email {
				return u, nil
			}
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (m *memoryStorage) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memoryStorage) UpdateUser(ctx context.Context, filter interface{}, update interface{}) (*models.User, error) {
	return nil, nil
}

func (m *memoryStorage) UserCount(ctx context.Context, filter interface{}) (int64, error) {
	return int64(len(m.users)), nil
}

func (m *memoryStorage) AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	if goal.ID.IsZero() {
		goal.ID = primitive.NewObjectID()
	}
	m.goals[goal.ID] = goal
	return goal, nil
}

func (m *memoryStorage) FindGoal(ctx context.Context, id primitive.ObjectID) (*models.Goal, error) {
	if g, ok := m.goals[id]; ok {
		return g, nil
	}
	return nil, mongo.ErrNoDocuments
}

func (m *memoryStorage) FindGoalsByParameter(ctx context.Context, filter interface{}) ([]models.Goal, error) {
	var out []models.Goal
	for _, g := range m.goals {
		out = append(out, *g)
	}
	return out, nil
}

func (m *memoryStorage) UpdateGoal(ctx context.Context, filter interface{}, update interface{}) (*storage.UpdateResult, error) {
	f := filter.(bson.M)
	id := f["_id"].(primitive.ObjectID)
	goal, ok := m.goals[id]
	if !ok {
		return &storage.UpdateResult{}, nil
	}
	u := update.(bson.M)
	if set, ok := u["$set"].(bson.M); ok {
		if title, ok := set["title"].(string); ok {
			goal.Title = title
		}
		if status, ok := set["status"].(models.GoalStatus); ok {
			goal.Status = status
		}
	}
	if add, ok := u["$addToSet"].(bson.M); ok {
		if p, ok := add["participants"].(primitive.ObjectID); ok && !goal.IsContributor(p) {
			goal.Participants = append(goal.Participants, p)
		}
	}
	return &storage.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (m *memoryStorage) ReplaceGoal(ctx context.Context, goal *models.Goal) error {
	goal.Revision++
	m.goals[goal.ID] = goal
	return nil
}

func (m *memoryStorage) DeleteGoal(ctx context.Context, filter interface{}) (*storage.DeleteResult, error) {
	f := filter.(bson.M)
	id := f["_id"].(primitive.ObjectID)
	delete(m.goals, id)
	return &storage.DeleteResult{DeletedCount: 1}, nil
}

func (m *memoryStorage) GoalCount(ctx context.Context, filter interface{}) (int64, error) {
	f := filter.(bson.M)
	creator := f["created_by"].(primitive.ObjectID)
	var n int64
	for _, g := range m.goals {
		if g.CreatedBy == creator && g.Status != models.StatusArchived {
			n++
		}
	}
	return n, nil
}

func (m *memoryStorage) AddGoalShare(ctx context.Context, share *models.GoalShare) (*models.GoalShare, error) {
	for _, s := range m.shares {
		if s.GoalID == share.GoalID && s.FriendUserID == share.FriendUserID {
			return nil, mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
		}
	}
	share.ID = primitive.NewObjectID()
	m.shares[share.ID] = share
	return share, nil
}

func (m *memoryStorage) FindGoalShare(ctx context.Context, filter interface{}) (*models.GoalShare, error) {
	f := filter.(bson.M)
	if id, ok := f["_id"].(primitive.ObjectID); ok {
		if s, ok := m.shares[id]; ok {
			return s, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (m *memoryStorage) FindGoalSharesByParameter(ctx context.Context, filter interface{}) ([]models.GoalShare, error) {
	f := filter.(bson.M)
	var out []models.GoalShare
	for _, s := range m.shares {
		if friend, ok := f["friend_user_id"].(primitive.ObjectID); ok && s.FriendUserID != friend {
			continue
		}
		if status, ok := f["status"].(models.ShareStatus); ok && s.Status != status {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *memoryStorage) UpdateGoalShare(ctx context.Context, filter interface{}, update interface{}) (*storage.UpdateResult, error) {
	f := filter.(bson.M)
	id := f["_id"].(primitive.ObjectID)
	share, ok := m.shares[id]
	if !ok {
		return &storage.UpdateResult{}, nil
	}
	u := update.(bson.M)
	if set, ok := u["$set"].(bson.M); ok {
		if status, ok := set["status"].(models.ShareStatus); ok {
			share.Status = status
		}
	}
	return &storage.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (m *memoryStorage) DeleteGoalShare(ctx context.Context, filter interface{}) (*storage.DeleteResult, error) {
	return &storage.DeleteResult{}, nil
}

// setup wires the handler globals to a fresh in-memory store and returns it
// together with a premade active user.
func setup(t *testing.T) (*memoryStorage, *models.User) {
	t.Helper()
	mem := newMemoryStorage()
	Init(mem, progress.NewEngine(mem, nil))

	user, err := mem.AddUser(context.Background(), &models.User{
		Name:          "Test User",
		Email:         "test@example.com",
		AccountStatus: models.AccountActive,
	})
	assert.NoError(t, err)
	return mem, user
}

func authedRequest(method, target string, userID primitive.ObjectID, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	ctx := context.WithValue(req.Context(), contextkey.UserIDKey, userID.Hex())
	return req.WithContext(ctx)
}

func TestCreateGoalFreeLimit(t *testing.T) {
	mem, user := setup(t)

	for i := 0; i < freeGoalLimit; i++ {
		mem.AddGoal(context.Background(), &models.Goal{
			Title:     "existing",
			GoalType:  models.GoalIndividual,
			Status:    models.StatusInProgress,
			CreatedBy: user.ID,
		})
	}

	rec := httptest.NewRecorder()
	CreateGoal(rec, authedRequest("POST", "/api/goals/create", user.ID, map[string]interface{}{
		"title":    "one too many",
		"goalType": "Individual",
	}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Premium accounts are not capped.
	user.IsPremium = true
	rec = httptest.NewRecorder()
	CreateGoal(rec, authedRequest("POST", "/api/goals/create", user.ID, map[string]interface{}{
		"title":    "fourth goal",
		"goalType": "Individual",
	}))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateGoalValidation(t *testing.T) {
	_, user := setup(t)

	rec := httptest.NewRecorder()
	CreateGoal(rec, authedRequest("POST", "/api/goals/create", user.ID, map[string]interface{}{
		"title":    "bad type",
		"goalType": "Squad",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	CreateGoal(rec, authedRequest("POST", "/api/goals/create", user.ID, map[string]interface{}{
		"title":    "no collab type",
		"goalType": "Collaborative",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGoalAuthorization(t *testing.T) {
	mem, user := setup(t)
	stranger, _ := mem.AddUser(context.Background(), &models.User{Name: "Stranger", Email: "s@example.com"})

	goal, _ := mem.AddGoal(context.Background(), &models.Goal{
		Title:     "private",
		GoalType:  models.GoalIndividual,
		CreatedBy: user.ID,
	})

	router := mux.NewRouter()
	router.HandleFunc("/api/goals/{id}", GetGoal).Methods("GET")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/api/goals/"+goal.ID.Hex(), stranger.ID, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/api/goals/"+goal.ID.Hex(), user.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Title   string `json:"title"`
		Creator struct {
			Name string `json:"name"`
		} `json:"creator"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "private", view.Title)
	assert.Equal(t, "Test User", view.Creator.Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("GET", "/api/goals/"+primitive.NewObjectID().Hex(), user.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordProgressEndpoint(t *testing.T) {
	mem, user := setup(t)

	goal, _ := mem.AddGoal(context.Background(), &models.Goal{
		Title:        "read 100 pages",
		GoalType:     models.GoalIndividual,
		GoalCategory: models.CategoryEducation,
		Pages:        100,
		Status:       models.StatusNotStarted,
		CreatedBy:    user.ID,
	})

	router := mux.NewRouter()
	router.HandleFunc("/api/goals/{id}/progress", RecordProgress).Methods("POST")

	// No identity in context.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/goals/"+goal.ID.Hex()+"/progress", bytes.NewBufferString(`{"value":10}`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("POST", "/api/goals/"+goal.ID.Hex()+"/progress", user.ID, map[string]interface{}{
		"value": -5.0,
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("POST", "/api/goals/"+goal.ID.Hex()+"/progress", user.ID, map[string]interface{}{
		"value": 40.0,
		"notes": "evening session",
	}))
	assert.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		CompletionPercentage float64 `json:"completionPercentage"`
		Status               string  `json:"status"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 40.0, view.CompletionPercentage)
	assert.Equal(t, string(models.StatusInProgress), view.Status)
	assert.Len(t, mem.goals[goal.ID].ProgressHistory, 1)
}

func TestShareAndRespondFlow(t *testing.T) {
	mem, user := setup(t)
	friend, _ := mem.AddUser(context.Background(), &models.User{
		Name:          "Friend",
		Email:         "friend@example.com",
		AccountStatus: models.AccountActive,
	})

	goal, _ := mem.AddGoal(context.Background(), &models.Goal{
		Title:             "train together",
		GoalType:          models.GoalCollaborative,
		CollaborativeType: models.CollabCompete,
		Status:            models.StatusNotStarted,
		CreatedBy:         user.ID,
		CreatedAt:         time.Now(),
	})

	// Creator shares with the friend.
	rec := httptest.NewRecorder()
	ShareGoal(rec, authedRequest("POST", "/api/goals/share", user.ID, map[string]interface{}{
		"goalId":      goal.ID.Hex(),
		"friendEmail": "friend@example.com",
		"message":     "join me",
	}))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var share models.GoalShare
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &share))
	assert.Equal(t, models.SharePending, share.Status)

	// Sharing twice conflicts.
	rec = httptest.NewRecorder()
	ShareGoal(rec, authedRequest("POST", "/api/goals/share", user.ID, map[string]interface{}{
		"goalId":      goal.ID.Hex(),
		"friendEmail": "friend@example.com",
	}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Only the invited friend may respond.
	router := mux.NewRouter()
	router.HandleFunc("/api/goals/shares/{id}/respond", RespondToShare).Methods("POST")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("POST", "/api/goals/shares/"+share.ID.Hex()+"/respond", user.ID, map[string]bool{"accept": true}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("POST", "/api/goals/shares/"+share.ID.Hex()+"/respond", friend.ID, map[string]bool{"accept": true}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mem.goals[goal.ID].IsContributor(friend.ID))

	// Answering again conflicts.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest("POST", "/api/goals/shares/"+share.ID.Hex()+"/respond", friend.ID, map[string]bool{"accept": false}))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetSubTaskStatusEndpoint(t *testing.T) {
	mem, user := setup(t)
	assignee, _ := mem.AddUser(context.Background(), &models.User{Name: "Assignee", Email: "a@example.com"})

	subTaskID := primitive.NewObjectID()
	goal, _ := mem.AddGoal(context.Background(), &models.Goal{
		Title:             "ship the feature",
		GoalType:          models.GoalCollaborative,
		CollaborativeType: models.CollabAchieveTogether,
		Status:            models.StatusNotStarted,
		CreatedBy:         user.ID,
		Participants:      []primitive.ObjectID{assignee.ID},
		SubTasks: []models.SubTask{
			{ID: subTaskID, Title: "write docs", AssignedTo: assignee.ID, Status: models.StatusNotStarted},
		},
	})

	rec := httptest.NewRecorder()
	SetSubTaskStatus(rec, authedRequest("POST", "/api/goals/subtask/status", assignee.ID, map[string]interface{}{
		"goalId":    goal.ID.Hex(),
		"subTaskId": subTaskID.Hex(),
		"status":    "Completed",
	}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100.0, mem.goals[goal.ID].SubTasks[0].CompletionPercentage)

	rec = httptest.NewRecorder()
	SetSubTaskStatus(rec, authedRequest("POST", "/api/goals/subtask/status", assignee.ID, map[string]interface{}{
		"goalId":    goal.ID.Hex(),
		"subTaskId": subTaskID.Hex(),
		"status":    "Paused",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
