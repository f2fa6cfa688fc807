package progress

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/goalmate/backend/backend/models"
	storage "github.com/goalmate/backend/backend/storage/persistent"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// GoalStore is the slice of the storage layer the engine needs: one read and
// one compare-and-swap write per update.
type GoalStore interface {
	FindGoal(ctx context.Context, id primitive.ObjectID) (*models.Goal, error)
	ReplaceGoal(ctx context.Context, goal *models.Goal) error
}

// Notifier receives fire-and-forget goal events after a successful write.
// Implementations must not block and must swallow their own failures.
type Notifier interface {
	GoalUpdated(goal *models.Goal, contributor primitive.ObjectID)
}

// maxWriteAttempts bounds the reload-recompute loop when concurrent updates
// race on the same goal document.
const maxWriteAttempts = 3

// Engine applies progress updates to goal aggregates. Every update is
// load → pure compute → single compare-and-swap write; a revision conflict
// reloads the document and recomputes, so concurrent contributions never
// overwrite each other's rollup or history entries.
type Engine struct {
	store    GoalStore
	notifier Notifier
	now      func() time.Time
}

// NewEngine creates an Engine. notifier may be nil, in which case events are
// simply not emitted.
func NewEngine(store GoalStore, notifier Notifier) *Engine {
	return &Engine{store: store, notifier: notifier, now: time.Now}
}

// Update is the contribution payload for RecordProgress.
type Update struct {
	Value       float64
	Notes       string
	SubTaskID   *primitive.ObjectID
	IsUnitValue bool
}

// RecordProgress records one numeric contribution against a goal and returns
// the updated aggregate.
//
// The contributor must be the goal's creator or a listed participant. On an
// achieve-together goal with a sub-task id, the contributor must additionally
// be that sub-task's assignee — the creator gets no bypass here. All
// validation happens before any mutation; the history entry is appended and
// the status re-derived only after the mode dispatch succeeded, and the whole
// aggregate is written in one compare-and-swap.
func (e *Engine) RecordProgress(ctx context.Context, goalID, contributorID primitive.ObjectID, upd Update) (*models.Goal, error) {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		goal, err := e.loadGoal(ctx, goalID)
		if err != nil {
			return nil, err
		}
		if !goal.IsContributor(contributorID) {
			return nil, ErrNotContributor
		}
		if goal.Status == models.StatusArchived {
			return nil, ErrGoalArchived
		}

		now := e.now()
		switch {
		case goal.CollaborativeType == models.CollabAchieveTogether && upd.SubTaskID != nil:
			st := goal.FindSubTask(*upd.SubTaskID)
			if st == nil {
				return nil, ErrSubTaskNotFound
			}
			if st.AssignedTo != contributorID {
				return nil, ErrNotAssigned
			}
			applySubTask(goal, st, upd.Value, upd.IsUnitValue)
		case goal.CollaborativeType == models.CollabCompete:
			applyCompete(goal, contributorID, upd.Value, now)
		default:
			applySingleTrack(goal, upd.Value)
		}

		goal.ProgressHistory = append(goal.ProgressHistory, models.ProgressEntry{
			Date:      now,
			Value:     upd.Value,
			Notes:     upd.Notes,
			UpdatedBy: contributorID,
			SubTaskID: upd.SubTaskID,
		})
		deriveStatus(goal)

		if err := e.store.ReplaceGoal(ctx, goal); err != nil {
			if errors.Is(err, storage.ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("persisting goal progress: %w", err)
		}

		e.notify(goal, contributorID)
		return goal, nil
	}
	return nil, fmt.Errorf("persisting goal progress after %d attempts: %w", maxWriteAttempts, lastErr)
}

// SetSubTaskStatus sets a sub-task's status directly. Unlike RecordProgress,
// the goal creator is authorized here in addition to the assignee. Setting
// Completed forces the sub-task's percentage to 100; re-setting an already
// completed sub-task is idempotent, not an error. The goal rollup uses the
// same range-size weighting as RecordProgress.
func (e *Engine) SetSubTaskStatus(ctx context.Context, goalID, subTaskID, userID primitive.ObjectID, status models.GoalStatus) (*models.Goal, error) {
	switch status {
	case models.StatusNotStarted, models.StatusInProgress, models.StatusCompleted:
	default:
		return nil, ErrInvalidStatus
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		goal, err := e.loadGoal(ctx, goalID)
		if err != nil {
			return nil, err
		}
		if goal.Status == models.StatusArchived {
			return nil, ErrGoalArchived
		}
		st := goal.FindSubTask(subTaskID)
		if st == nil {
			return nil, ErrSubTaskNotFound
		}
		if st.AssignedTo != userID && goal.CreatedBy != userID {
			return nil, ErrNotAssigned
		}

		st.Status = status
		if status == models.StatusCompleted {
			st.CompletionPercentage = 100
		}
		goal.CompletionPercentage = weightedSubTaskCompletion(goal.SubTasks)
		deriveStatus(goal)

		if err := e.store.ReplaceGoal(ctx, goal); err != nil {
			if errors.Is(err, storage.ErrRevisionConflict) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("persisting sub-task status: %w", err)
		}

		e.notify(goal, userID)
		return goal, nil
	}
	return nil, fmt.Errorf("persisting sub-task status after %d attempts: %w", maxWriteAttempts, lastErr)
}

func (e *Engine) loadGoal(ctx context.Context, id primitive.ObjectID) (*models.Goal, error) {
	goal, err := e.store.FindGoal(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrGoalNotFound
		}
		return nil, fmt.Errorf("loading goal: %w", err)
	}
	return goal, nil
}

func (e *Engine) notify(goal *models.Goal, contributor primitive.ObjectID) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("notifier panic for goal %s: %v", goal.ID.Hex(), r)
		}
	}()
	e.notifier.GoalUpdated(goal, contributor)
}
