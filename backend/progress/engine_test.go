package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/goalmate/backend/backend/models"
	storage "github.com/goalmate/backend/backend/storage/persistent"
)

// fakeGoalStore keeps goals in memory and mimics the revision guard of the
// real storage layer. conflictsLeft forces that many replace attempts to fail
// with a revision conflict first.
type fakeGoalStore struct {
	goals         map[primitive.ObjectID]*models.Goal
	conflictsLeft int
	replaceCalls  int
}

func newFakeGoalStore(goals ...*models.Goal) *fakeGoalStore {
	s := &fakeGoalStore{goals: make(map[primitive.ObjectID]*models.Goal)}
	for _, g := range goals {
		s.goals[g.ID] = g
	}
	return s
}

func (s *fakeGoalStore) FindGoal(ctx context.Context, id primitive.ObjectID) (*models.Goal, error) {
	g, ok := s.goals[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	copied := *g
	copied.SubTasks = append([]models.SubTask(nil), g.SubTasks...)
	copied.ProgressHistory = append([]models.ProgressEntry(nil), g.ProgressHistory...)
	copied.IndividualProgress = append([]models.IndividualProgress(nil), g.IndividualProgress...)
	return &copied, nil
}

func (s *fakeGoalStore) ReplaceGoal(ctx context.Context, goal *models.Goal) error {
	s.replaceCalls++
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return storage.ErrRevisionConflict
	}
	goal.Revision++
	s.goals[goal.ID] = goal
	return nil
}

// recordingNotifier remembers every event it was handed.
type recordingNotifier struct {
	goals        []*models.Goal
	contributors []primitive.ObjectID
}

func (n *recordingNotifier) GoalUpdated(goal *models.Goal, contributor primitive.ObjectID) {
	n.goals = append(n.goals, goal)
	n.contributors = append(n.contributors, contributor)
}

func individualGoal(creator primitive.ObjectID) *models.Goal {
	return &models.Goal{
		ID:           primitive.NewObjectID(),
		Title:        "Read the collected works",
		GoalType:     models.GoalIndividual,
		GoalCategory: models.CategoryEducation,
		Pages:        100,
		Status:       models.StatusNotStarted,
		CreatedBy:    creator,
	}
}

func TestRecordProgressSingleTrack(t *testing.T) {
	creator := primitive.NewObjectID()
	goal := individualGoal(creator)
	store := newFakeGoalStore(goal)
	notifier := &recordingNotifier{}
	engine := NewEngine(store, notifier)

	updated, err := engine.RecordProgress(context.Background(), goal.ID, creator, Update{Value: 25, Notes: "first sitting"})
	assert.NoError(t, err)
	assert.Equal(t, 25.0, updated.CompletionPercentage)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Len(t, updated.ProgressHistory, 1)
	assert.Equal(t, "first sitting", updated.ProgressHistory[0].Notes)
	assert.Equal(t, creator, updated.ProgressHistory[0].UpdatedBy)

	// Second contribution accumulates, history is append-only.
	updated, err = engine.RecordProgress(context.Background(), goal.ID, creator, Update{Value: 75})
	assert.NoError(t, err)
	assert.Equal(t, 100.0, updated.CompletionPercentage)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	assert.Len(t, updated.ProgressHistory, 2)

	assert.Len(t, notifier.goals, 2)
	assert.Equal(t, creator, notifier.contributors[0])
}

func TestRecordProgressGoalNotFound(t *testing.T) {
	store := newFakeGoalStore()
	engine := NewEngine(store, nil)

	_, err := engine.RecordProgress(context.Background(), primitive.NewObjectID(), primitive.NewObjectID(), Update{Value: 1})
	assert.ErrorIs(t, err, ErrGoalNotFound)
	assert.Zero(t, store.replaceCalls, "nothing should be written")
}

func TestRecordProgressNotContributor(t *testing.T) {
	creator := primitive.NewObjectID()
	goal := individualGoal(creator)
	store := newFakeGoalStore(goal)
	engine := NewEngine(store, nil)

	_, err := engine.RecordProgress(context.Background(), goal.ID, primitive.NewObjectID(), Update{Value: 10})
	assert.ErrorIs(t, err, ErrNotContributor)
	assert.Zero(t, store.replaceCalls)
	assert.Empty(t, store.goals[goal.ID].ProgressHistory, "state must be unchanged")
}

func TestRecordProgressArchivedGoal(t *testing.T) {
	creator := primitive.NewObjectID()
	goal := individualGoal(creator)
	goal.Status = models.StatusArchived
	store := newFakeGoalStore(goal)
	engine := NewEngine(store, nil)

	_, err := engine.RecordProgress(context.Background(), goal.ID, creator, Update{Value: 10})
	assert.ErrorIs(t, err, ErrGoalArchived)
	assert.Zero(t, store.replaceCalls)
}

func TestRecordProgressCreatorContributesOnCompete(t *testing.T) {
	creator := primitive.NewObjectID()
	friend := primitive.NewObjectID()
	goal := &models.Goal{
		ID:                primitive.NewObjectID(),
		GoalType:          models.GoalCollaborative,
		CollaborativeType: models.CollabCompete,
		GoalCategory:      models.CategoryFitness,
		Distance:          100,
		Status:            models.StatusNotStarted,
		CreatedBy:         creator,
		Participants:      []primitive.ObjectID{friend},
	}
	goal.SeedIndividualProgress(time.Now())
	store := newFakeGoalStore(goal)
	engine := NewEngine(store, nil)

	// The creator is an implicit contributor even though they are not in
	// the participants list.
	updated, err := engine.RecordProgress(context.Background(), goal.ID, creator, Update{Value: 60})
	assert.NoError(t, err)
	assert.Equal(t, 30.0, updated.CompletionPercentage)
}

func TestRecordProgressSubTask(t *testing.T) {
	creator := primitive.NewObjectID()
	assignee := primitive.NewObjectID()
	subTaskID := primitive.NewObjectID()
	goal := &models.Goal{
		ID:                primitive.NewObjectID(),
		GoalType:          models.GoalCollaborative,
		CollaborativeType: models.CollabAchieveTogether,
		Status:            models.StatusNotStarted,
		CreatedBy:         creator,
		Participants:      []primitive.ObjectID{assignee},
		SubTasks: []models.SubTask{
			{ID: subTaskID, AssignedTo: assignee, StartValue: 50, EndValue: 100, Status: models.StatusNotStarted},
		},
	}
	store := newFakeGoalStore(goal)
	engine := NewEngine(store, nil)

	// The creator gets no bypass on sub-task contributions.
	_, err := engine.RecordProgress(context.Background(), goal.ID, creator, Update{Value: 75, SubTaskID: &subTaskID, IsUnitValue: true})
	assert.ErrorIs(t, err, ErrNotAssigned)

	unknown := primitive.NewObjectID()
	_, err = engine.RecordProgress(context.Background(), goal.ID, assignee, Update{Value: 75, SubTaskID: &unknown})
	assert.ErrorIs(t, err, ErrSubTaskNotFound)

	updated, err := engine.RecordProgress(context.Background(), goal.ID, assignee, Update{Value: 75, SubTaskID: &subTaskID, IsUnitValue: true})
	assert.NoError(t, err)
	assert.Equal(t, 50.0, updated.SubTasks[0].CompletionPercentage)
	assert.Equal(t, 50.0, updated.CompletionPercentage)
	assert.Equal(t, &subTaskID, updated.ProgressHistory[0].SubTaskID)
}

func TestRecordProgressRetriesOnRevisionConflict(t *testing.T) {
	creator := primitive.NewObjectID()
	goal := individualGoal(creator)
	store := newFakeGoalStore(goal)
	store.conflictsLeft = 2
	engine := NewEngine(store, nil)

	updated, err := engine.RecordProgress(context.Background(), goal.ID, creator, Update{Value: 10})
	assert.NoError(t, err)
	assert.Equal(t, 3, store.replaceCalls)
	assert.Len(t, updated.ProgressHistory, 1, "the retried write must not duplicate the history entry")
}

func TestRecordProgressGivesUpAfterMaxAttempts(t *testing.T) {
	creator := primitive.NewObjectID()
	goal := individualGoal(creator)
	store := newFakeGoalStore(goal)
	store.conflictsLeft = maxWriteAttempts
	engine := NewEngine(store, nil)

	_, err := engine.RecordProgress(context.Background(), goal.ID, creator, Update{Value: 10})
	assert.ErrorIs(t, err, storage.ErrRevisionConflict)
}

func TestSetSubTaskStatus(t *testing.T) {
	creator := primitive.NewObjectID()
	assignee := primitive.NewObjectID()
	subTaskID := primitive.NewObjectID()
	goal := &models.Goal{
		ID:                primitive.NewObjectID(),
		GoalType:          models.GoalCollaborative,
		CollaborativeType: models.CollabAchieveTogether,
		Status:            models.StatusNotStarted,
		CreatedBy:         creator,
		Participants:      []primitive.ObjectID{assignee},
		SubTasks: []models.SubTask{
			{ID: subTaskID, AssignedTo: assignee, Status: models.StatusNotStarted},
		},
	}
	store := newFakeGoalStore(goal)
	engine := NewEngine(store, nil)

	_, err := engine.SetSubTaskStatus(context.Background(), goal.ID, subTaskID, assignee, "Paused")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = engine.SetSubTaskStatus(context.Background(), goal.ID, subTaskID, primitive.NewObjectID(), models.StatusInProgress)
	assert.ErrorIs(t, err, ErrNotAssigned)

	// Completing forces the percentage to 100 and rolls up the goal.
	updated, err := engine.SetSubTaskStatus(context.Background(), goal.ID, subTaskID, assignee, models.StatusCompleted)
	assert.NoError(t, err)
	assert.Equal(t, 100.0, updated.SubTasks[0].CompletionPercentage)
	assert.Equal(t, models.StatusCompleted, updated.Status)

	// Re-completing is idempotent.
	again, err := engine.SetSubTaskStatus(context.Background(), goal.ID, subTaskID, assignee, models.StatusCompleted)
	assert.NoError(t, err)
	assert.Equal(t, 100.0, again.CompletionPercentage)

	// The creator may drive sub-task status even when not the assignee.
	_, err = engine.SetSubTaskStatus(context.Background(), goal.ID, subTaskID, creator, models.StatusInProgress)
	assert.NoError(t, err)
}

func TestSetSubTaskStatusArchivedGoal(t *testing.T) {
	creator := primitive.NewObjectID()
	subTaskID := primitive.NewObjectID()
	goal := &models.Goal{
		ID:                primitive.NewObjectID(),
		CollaborativeType: models.CollabAchieveTogether,
		Status:            models.StatusArchived,
		CreatedBy:         creator,
		SubTasks: []models.SubTask{
			{ID: subTaskID, AssignedTo: creator},
		},
	}
	store := newFakeGoalStore(goal)
	engine := NewEngine(store, nil)

	_, err := engine.SetSubTaskStatus(context.Background(), goal.ID, subTaskID, creator, models.StatusCompleted)
	assert.ErrorIs(t, err, ErrGoalArchived)
}

func TestNotifierPanicDoesNotFailUpdate(t *testing.T) {
	creator := primitive.NewObjectID()
	goal := individualGoal(creator)
	store := newFakeGoalStore(goal)
	engine := NewEngine(store, panickyNotifier{})

	updated, err := engine.RecordProgress(context.Background(), goal.ID, creator, Update{Value: 10})
	assert.NoError(t, err)
	assert.NotNil(t, updated)
}

type panickyNotifier struct{}

func (panickyNotifier) GoalUpdated(goal *models.Goal, contributor primitive.ObjectID) {
	panic("boom")
}
