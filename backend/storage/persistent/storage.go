package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/goalmate/backend/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrRevisionConflict is returned by ReplaceGoal when the goal document was
// modified since it was read. Callers reload and recompute.
var ErrRevisionConflict = errors.New("goal revision conflict")

// DeleteResult represents the result of a deletion operation in MongoDB,
// specifically the count of documents deleted.
type DeleteResult struct {
	DeletedCount int64
}

// UpdateResult represents the result of an update operation in MongoDB,
// specifically the count of documents matched and modified.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

// StorageInterface defines the set of methods that any persistent storage
// backend needs to implement.
type StorageInterface interface {
	// Establishes a connection to the storage backend.
	Connect(dbName, uri string) error
	// Disconnects from the storage backend.
	Disconnect() error
	// Adds a new user to the storage backend.
	AddUser(ctx context.Context, user *models.User) (*models.User, error)
	// Finds a user in the storage backend using a filter.
	FindUser(ctx context.Context, filter interface{}) (*models.User, error)
	// Finds the users with the given ids, for resolving display identities.
	FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	// Updates an existing user in the storage backend using a filter and update instructions.
	UpdateUser(ctx context.Context, filter interface{}, update interface{}) (*models.User, error)
	// Returns the count of users in the storage backend using a filter.
	UserCount(ctx context.Context, filter interface{}) (int64, error)
	// Adds a new goal to the storage backend.
	AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error)
	// Finds a goal by its id.
	FindGoal(ctx context.Context, id primitive.ObjectID) (*models.Goal, error)
	// Finds goals in the storage backend using a filter.
	FindGoalsByParameter(ctx context.Context, filter interface{}) ([]models.Goal, error)
	// Applies partial update instructions to one goal.
	UpdateGoal(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error)
	// Replaces the whole goal aggregate, guarded by its revision token.
	ReplaceGoal(ctx context.Context, goal *models.Goal) error
	// Deletes a goal in the storage backend using a filter.
	DeleteGoal(ctx context.Context, filter interface{}) (*DeleteResult, error)
	// Returns the count of goals in the storage backend using a filter.
	GoalCount(ctx context.Context, filter interface{}) (int64, error)
	// Adds a new goal share record to the storage backend.
	AddGoalShare(ctx context.Context, share *models.GoalShare) (*models.GoalShare, error)
	// Finds a goal share record using a filter.
	FindGoalShare(ctx context.Context, filter interface{}) (*models.GoalShare, error)
	// Finds goal share records using a filter.
	FindGoalSharesByParameter(ctx context.Context, filter interface{}) ([]models.GoalShare, error)
	// Updates an existing goal share record.
	UpdateGoalShare(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error)
	// Deletes goal share records using a filter.
	DeleteGoalShare(ctx context.Context, filter interface{}) (*DeleteResult, error)
}

// NewStorage creates a new StorageInterface with a MongoDB backend,
// using the provided URI to connect to the MongoDB server.
func NewStorage(dbName, uri string) (StorageInterface, error) {
	storage := NewMongoStorage()
	err := storage.Connect(dbName, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage, nil
}
