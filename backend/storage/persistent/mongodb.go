package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goalmate/backend/backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStorage is a struct representing a MongoDB storage.
// It provides an interface to perform CRUD operations on various collections in the MongoDB database.
type MongoStorage struct {
	client *mongo.Client
	dbName string
}

// NewMongoStorage creates a new instance of MongoStorage.
// This function doesn't establish a connection to the MongoDB server.
// To connect to the server, use the Connect method of the returned MongoStorage instance.
func NewMongoStorage() *MongoStorage {
	return &MongoStorage{}
}

// Connect establishes a connection to the MongoDB server at the given URI and a database name.
// Sets up indexes and unique constraints as necessary.
// Returns an error if any issues are encountered.
func (m *MongoStorage) Connect(dbName, uri string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %v", err)
	}

	m.client = client
	m.dbName = dbName

	// Users: unique email for account identity plus a lookup index.
	usersCollection := m.client.Database(m.dbName).Collection("users")
	emailIndexModel := mongo.IndexModel{
		Keys: bson.M{
			"email": 1,
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err = usersCollection.Indexes().CreateOne(ctx, emailIndexModel); err != nil {
		return fmt.Errorf("error creating email index: %v", err)
	}

	// Goals: the query paths the handlers use — by creator, by participant,
	// by status/category, and by collaborative type.
	goalsCollection := m.client.Database(m.dbName).Collection("goals")
	goalIndexes := []mongo.IndexModel{
		{Keys: bson.M{"created_by": 1}, Options: options.Index()},
		{Keys: bson.M{"participants": 1}, Options: options.Index()},
		{Keys: bson.M{"status": 1}, Options: options.Index()},
		{Keys: bson.M{"goal_category": 1}, Options: options.Index()},
		{Keys: bson.M{"collaborative_type": 1}, Options: options.Index()},
	}
	if _, err = goalsCollection.Indexes().CreateMany(ctx, goalIndexes); err != nil {
		return fmt.Errorf("error creating goal indexes: %v", err)
	}

	// Goal shares: one share per (goal, sharer, friend) triple, plus a
	// lookup path for "shares pending for me".
	sharesCollection := m.client.Database(m.dbName).Collection("goalShares")
	shareUniqueIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "goal_id", Value: 1},
			{Key: "user_id", Value: 1},
			{Key: "friend_user_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err = sharesCollection.Indexes().CreateOne(ctx, shareUniqueIndexModel); err != nil {
		return fmt.Errorf("error creating goal share index: %v", err)
	}
	friendIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "friend_user_id", Value: 1},
			{Key: "status", Value: 1},
		},
		Options: options.Index(),
	}
	if _, err = sharesCollection.Indexes().CreateOne(ctx, friendIndexModel); err != nil {
		return fmt.Errorf("error creating goal share friend index: %v", err)
	}

	return nil
}

// Disconnect closes the connection to the MongoDB server.
// It should be called when the MongoStorage instance is no longer needed.
// Returns an error if the disconnection process fails.
func (m *MongoStorage) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.client.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %v", err)
	}

	return nil
}

// UserCount returns the number of documents in the 'users' collection that match the given filter.
// Returns an error if the count operation fails.
func (m *MongoStorage) UserCount(ctx context.Context, filter interface{}) (int64, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddUser adds a new user document to the 'users' collection.
// Returns the added user instance and an error if the insert operation fails.
func (m *MongoStorage) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	result, err := collection.InsertOne(ctx, user)
	if err != nil {
		if writeException, ok := err.(mongo.WriteException); ok {
			for _, writeError := range writeException.WriteErrors {
				if writeError.Code == 11000 {
					return nil, fmt.Errorf("an account with the email '%s' already exists", user.Email)
				}
			}
		}
		return nil, err
	}

	user.ID = result.InsertedID.(primitive.ObjectID)
	return user, nil
}

// FindUser finds a user document in the 'users' collection that matches the given filter.
// Returns the found user as a User instance and an error if the find operation fails.
func (m *MongoStorage) FindUser(ctx context.Context, filter interface{}) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	result := collection.FindOne(ctx, filter)
	user := &models.User{}
	err := result.Decode(user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindUsersByIDs returns the users with the given object ids. Missing ids are
// silently skipped; the caller resolves what it can.
func (m *MongoStorage) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	collection := m.client.Database(m.dbName).Collection("users")
	cursor, err := collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, cursor.Err()
}

// UpdateUser updates a user document in the 'users' collection that matches the given filter with the provided update.
// Returns the updated user as a User instance and an error if the update operation fails.
func (m *MongoStorage) UpdateUser(ctx context.Context, filter interface{}, update interface{}) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, errors.New("no user found to update")
	}
	updatedUser, err := m.FindUser(ctx, filter)
	if err != nil {
		return nil, err
	}
	return updatedUser, nil
}

// AddGoal adds a new goal document to the 'goals' collection.
// Returns the added goal instance and an error if the insert operation fails.
func (m *MongoStorage) AddGoal(ctx context.Context, goal *models.Goal) (*models.Goal, error) {
	collection := m.client.Database(m.dbName).Collection("goals")
	result, err := collection.InsertOne(ctx, goal)
	if err != nil {
		return nil, err
	}

	goal.ID = result.InsertedID.(primitive.ObjectID)
	return goal, nil
}

// FindGoal finds one goal by its id.
// Returns mongo.ErrNoDocuments when the goal does not exist.
func (m *MongoStorage) FindGoal(ctx context.Context, id primitive.ObjectID) (*models.Goal, error) {
	collection := m.client.Database(m.dbName).Collection("goals")
	result := collection.FindOne(ctx, bson.M{"_id": id})
	goal := &models.Goal{}
	err := result.Decode(goal)
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// FindGoalsByParameter finds goal documents in the 'goals' collection that match the given filter.
// Returns the found goals as a slice of Goal instances and an error if the find operation fails.
func (m *MongoStorage) FindGoalsByParameter(ctx context.Context, filter interface{}) ([]models.Goal, error) {
	collection := m.client.Database(m.dbName).Collection("goals")
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var goals []models.Goal
	for cursor.Next(ctx) {
		var goal models.Goal
		if err := cursor.Decode(&goal); err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}

	return goals, cursor.Err()
}

// UpdateGoal applies partial update instructions to one goal document.
// The filter must be non-empty for a valid updation.
// Returns the result of the update operation as an UpdateResult instance and an error if the update operation fails.
func (m *MongoStorage) UpdateGoal(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error) {
	if filter == nil {
		return nil, errors.New("filter cannot be nil")
	}
	filterMap, ok := filter.(bson.M)
	if !ok {
		return nil, errors.New("filter must be of type bson.M")
	}
	if len(filterMap) == 0 {
		return nil, errors.New("filter cannot be empty")
	}

	collection := m.client.Database(m.dbName).Collection("goals")
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, errors.New("goal does not exist")
	}
	return &UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// ReplaceGoal writes the whole goal aggregate back in one operation, guarded
// by the revision the aggregate was read at. The stored revision is bumped on
// success; ErrRevisionConflict is returned when another writer got there
// first, in which case the caller must reload and recompute.
func (m *MongoStorage) ReplaceGoal(ctx context.Context, goal *models.Goal) error {
	collection := m.client.Database(m.dbName).Collection("goals")

	readRevision := goal.Revision
	goal.Revision = readRevision + 1
	goal.UpdatedAt = time.Now()

	result, err := collection.ReplaceOne(ctx, bson.M{"_id": goal.ID, "revision": readRevision}, goal)
	if err != nil {
		goal.Revision = readRevision
		return err
	}
	if result.MatchedCount == 0 {
		goal.Revision = readRevision
		return ErrRevisionConflict
	}
	return nil
}

// DeleteGoal deletes goal documents from the 'goals' collection that match the given filter.
// Associated goal share records are removed as well.
// Returns the result of the delete operation as a DeleteResult instance and an error if the delete operation fails.
func (m *MongoStorage) DeleteGoal(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	collection := m.client.Database(m.dbName).Collection("goals")
	goalResult := collection.FindOne(ctx, filter)
	if err := goalResult.Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.New("goal not found")
		}
		return nil, err
	}

	goal := &models.Goal{}
	if err := goalResult.Decode(goal); err != nil {
		return nil, err
	}

	// Clean up share records pointing at the goal.
	_, err := m.client.Database(m.dbName).Collection("goalShares").DeleteMany(ctx, bson.M{"goal_id": goal.ID})
	if err != nil {
		return nil, err
	}

	result, err := collection.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// GoalCount returns the number of documents in the 'goals' collection that match the given filter.
// Returns an error if the count operation fails.
func (m *MongoStorage) GoalCount(ctx context.Context, filter interface{}) (int64, error) {
	collection := m.client.Database(m.dbName).Collection("goals")
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AddGoalShare adds a new goal share document to the 'goalShares' collection.
// A duplicate (goal, sharer, friend) triple surfaces the driver's duplicate
// key error unchanged so callers can map it to a conflict.
// Returns the added share instance and an error if the insert operation fails.
func (m *MongoStorage) AddGoalShare(ctx context.Context, share *models.GoalShare) (*models.GoalShare, error) {
	collection := m.client.Database(m.dbName).Collection("goalShares")
	result, err := collection.InsertOne(ctx, share)
	if err != nil {
		return nil, err
	}

	share.ID = result.InsertedID.(primitive.ObjectID)
	return share, nil
}

// FindGoalShare finds a goal share document that matches the given filter.
// Returns the found share as a GoalShare instance and an error if the find operation fails.
func (m *MongoStorage) FindGoalShare(ctx context.Context, filter interface{}) (*models.GoalShare, error) {
	collection := m.client.Database(m.dbName).Collection("goalShares")
	result := collection.FindOne(ctx, filter)
	share := &models.GoalShare{}
	err := result.Decode(share)
	if err != nil {
		return nil, err
	}
	return share, nil
}

// FindGoalSharesByParameter finds goal share documents that match the given filter.
// Returns the found shares as a slice of GoalShare instances and an error if the find operation fails.
func (m *MongoStorage) FindGoalSharesByParameter(ctx context.Context, filter interface{}) ([]models.GoalShare, error) {
	collection := m.client.Database(m.dbName).Collection("goalShares")
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var shares []models.GoalShare
	for cursor.Next(ctx) {
		var share models.GoalShare
		if err := cursor.Decode(&share); err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}

	return shares, cursor.Err()
}

// UpdateGoalShare updates a goal share document that matches the given filter with the provided update.
// Returns the result of the update operation as an UpdateResult instance and an error if the update operation fails.
func (m *MongoStorage) UpdateGoalShare(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error) {
	collection := m.client.Database(m.dbName).Collection("goalShares")
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, errors.New("no goal share found to update")
	}

	return &UpdateResult{MatchedCount: result.MatchedCount, ModifiedCount: result.ModifiedCount}, nil
}

// DeleteGoalShare deletes goal share documents that match the given filter.
// Returns the result of the delete operation as a DeleteResult instance and an error if the delete operation fails.
func (m *MongoStorage) DeleteGoalShare(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	collection := m.client.Database(m.dbName).Collection("goalShares")
	result, err := collection.DeleteMany(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}
