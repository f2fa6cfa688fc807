package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goalmate/backend/backend/models"
)

// newTestStore connects to the database named by TEST_DB_NAME. Tests that
// need a live MongoDB are skipped when MONGODB_URI is not set.
func newTestStore(t *testing.T) StorageInterface {
	t.Helper()

	godotenv.Load("../../../.env")
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set")
	}
	dbName := os.Getenv("TEST_DB_NAME")
	if dbName == "" {
		dbName = "goalmate_test"
	}

	store, err := NewStorage(dbName, uri)
	if err != nil {
		t.Fatalf("Error initializing storage: %v", err)
	}
	t.Cleanup(func() { store.Disconnect() })
	return store
}

func TestUserRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.AddUser(ctx, &models.User{
		Name:          "Storage Test User",
		Email:         primitive.NewObjectID().Hex() + "@example.com",
		PasswordHash:  "hash",
		AccountStatus: models.AccountActive,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	})
	assert.NoError(t, err)
	assert.NotEqual(t, primitive.NilObjectID, user.ID)
	t.Cleanup(func() {
		store.UpdateUser(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{"account_status": models.AccountBanned}})
	})

	found, err := store.FindUser(ctx, bson.M{"_id": user.ID})
	assert.NoError(t, err)
	assert.Equal(t, user.Email, found.Email)

	// Duplicate email must be rejected by the unique index.
	_, err = store.AddUser(ctx, &models.User{Name: "Dup", Email: user.Email})
	assert.Error(t, err)

	byIDs, err := store.FindUsersByIDs(ctx, []primitive.ObjectID{user.ID})
	assert.NoError(t, err)
	assert.Len(t, byIDs, 1)
}

func TestGoalRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	creator := primitive.NewObjectID()
	goal, err := store.AddGoal(ctx, &models.Goal{
		Title:        "storage test goal",
		GoalType:     models.GoalIndividual,
		GoalCategory: models.CategoryFitness,
		Distance:     100,
		Status:       models.StatusNotStarted,
		CreatedBy:    creator,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	assert.NoError(t, err)
	t.Cleanup(func() { store.DeleteGoal(ctx, bson.M{"_id": goal.ID}) })

	found, err := store.FindGoal(ctx, goal.ID)
	assert.NoError(t, err)
	assert.Equal(t, "storage test goal", found.Title)

	byCreator, err := store.FindGoalsByParameter(ctx, bson.M{"created_by": creator})
	assert.NoError(t, err)
	assert.Len(t, byCreator, 1)

	count, err := store.GoalCount(ctx, bson.M{"created_by": creator})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestReplaceGoalRevisionGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	goal, err := store.AddGoal(ctx, &models.Goal{
		Title:     "revision test goal",
		GoalType:  models.GoalIndividual,
		Status:    models.StatusNotStarted,
		CreatedBy: primitive.NewObjectID(),
	})
	assert.NoError(t, err)
	t.Cleanup(func() { store.DeleteGoal(ctx, bson.M{"_id": goal.ID}) })

	// Two readers load the same revision.
	first, err := store.FindGoal(ctx, goal.ID)
	assert.NoError(t, err)
	second, err := store.FindGoal(ctx, goal.ID)
	assert.NoError(t, err)

	first.Title = "first writer"
	assert.NoError(t, store.ReplaceGoal(ctx, first))

	// The stale second writer must hit the revision guard.
	second.Title = "second writer"
	err = store.ReplaceGoal(ctx, second)
	assert.ErrorIs(t, err, ErrRevisionConflict)

	found, err := store.FindGoal(ctx, goal.ID)
	assert.NoError(t, err)
	assert.Equal(t, "first writer", found.Title)
	assert.Equal(t, first.Revision, found.Revision)
}
