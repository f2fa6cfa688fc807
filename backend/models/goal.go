package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GoalType distinguishes solo goals from shared ones.
type GoalType string

const (
	GoalIndividual    GoalType = "Individual"
	GoalGroup         GoalType = "Group"
	GoalCollaborative GoalType = "Collaborative"
)

// CollaborativeType selects the progress model for shared goals. It is empty
// for individual goals.
type CollaborativeType string

const (
	// CollabCompete: every contributor tracks independent progress toward
	// the same target; the goal rolls up the mean of their percentages.
	CollabCompete CollaborativeType = "compete"
	// CollabAchieveTogether: the goal is decomposed into assigned sub-tasks
	// whose weighted completion rolls up into one percentage.
	CollabAchieveTogether CollaborativeType = "achieve-together"
)

// GoalStatus is derived from the completion percentage, except Archived,
// which is only ever set externally.
type GoalStatus string

const (
	StatusNotStarted GoalStatus = "Not Started"
	StatusInProgress GoalStatus = "In Progress"
	StatusCompleted  GoalStatus = "Completed"
	StatusArchived   GoalStatus = "Archived"
)

// Goal categories with dedicated metric fields. Anything else is a custom
// category and carries no derivable target value.
const (
	CategoryFitness   = "Fitness"
	CategoryEducation = "Education"
)

// SubTask is a unit of work inside an achieve-together goal, assigned to
// exactly one contributor. StartValue/EndValue define the numeric range that
// maps onto 0-100%; a zero range means the sub-task is tracked directly in
// percent.
type SubTask struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title                string             `bson:"title" json:"title"`
	Description          string             `bson:"description,omitempty" json:"description,omitempty"`
	AssignedTo           primitive.ObjectID `bson:"assigned_to" json:"assignedTo"`
	Status               GoalStatus         `bson:"status" json:"status"`
	StartValue           float64            `bson:"start_value" json:"startValue"`
	EndValue             float64            `bson:"end_value" json:"endValue"`
	CompletionPercentage float64            `bson:"completion_percentage" json:"completionPercentage"`
	CreatedAt            time.Time          `bson:"created_at" json:"createdAt"`
}

// Range returns the size of the sub-task's value range, or 0 when no range
// is defined.
func (st *SubTask) Range() float64 {
	if st.EndValue > st.StartValue {
		return st.EndValue - st.StartValue
	}
	return 0
}

// ProgressEntry is one record of the append-only contribution log. Entries
// are never mutated or deleted.
type ProgressEntry struct {
	Date      time.Time           `bson:"date" json:"date"`
	Value     float64             `bson:"value" json:"value"`
	Notes     string              `bson:"notes,omitempty" json:"notes,omitempty"`
	UpdatedBy primitive.ObjectID  `bson:"updated_by" json:"updatedBy"`
	SubTaskID *primitive.ObjectID `bson:"sub_task_id,omitempty" json:"subTaskId,omitempty"`
}

// IndividualProgress is one contributor's running tally on a compete goal.
type IndividualProgress struct {
	UserID               primitive.ObjectID `bson:"user_id" json:"userId"`
	CompletionPercentage float64            `bson:"completion_percentage" json:"completionPercentage"`
	TotalProgress        float64            `bson:"total_progress" json:"totalProgress"`
	LastUpdated          time.Time          `bson:"last_updated" json:"lastUpdated"`
}

// Goal is the aggregate root. CompletionPercentage is always recomputed from
// the mode's constituent parts, never set by a client, and Revision is the
// optimistic-concurrency token bumped on every replace.
type Goal struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title             string             `bson:"title" json:"title"`
	Description       string             `bson:"description" json:"description"`
	GoalType          GoalType           `bson:"goal_type" json:"goalType"`
	CollaborativeType CollaborativeType  `bson:"collaborative_type,omitempty" json:"collaborativeType,omitempty"`
	GoalCategory      string             `bson:"goal_category" json:"goalCategory"`
	Priority          string             `bson:"priority" json:"priority"`

	StartDate time.Time `bson:"start_date" json:"startDate"`
	EndDate   time.Time `bson:"end_date" json:"endDate"`

	Frequency         string `bson:"frequency" json:"frequency"`
	ProgressFrequency string `bson:"progress_frequency" json:"progressFrequency"`

	Status GoalStatus `bson:"status" json:"status"`

	// Fitness metrics.
	FitnessType string  `bson:"fitness_type,omitempty" json:"fitnessType,omitempty"`
	Duration    float64 `bson:"duration,omitempty" json:"duration,omitempty"`
	Distance    float64 `bson:"distance,omitempty" json:"distance,omitempty"`
	Sets        float64 `bson:"sets,omitempty" json:"sets,omitempty"`
	Reps        float64 `bson:"reps,omitempty" json:"reps,omitempty"`
	Weight      float64 `bson:"weight,omitempty" json:"weight,omitempty"`

	// Education metrics.
	EducationType string  `bson:"education_type,omitempty" json:"educationType,omitempty"`
	StudyHours    float64 `bson:"study_hours,omitempty" json:"studyHours,omitempty"`
	Pages         float64 `bson:"pages,omitempty" json:"pages,omitempty"`
	Modules       float64 `bson:"modules,omitempty" json:"modules,omitempty"`
	TestScore     string  `bson:"test_score,omitempty" json:"testScore,omitempty"`

	CreatedBy    primitive.ObjectID   `bson:"created_by" json:"createdBy"`
	Participants []primitive.ObjectID `bson:"participants" json:"participants"`

	SubTasks           []SubTask            `bson:"sub_tasks" json:"subTasks"`
	ProgressHistory    []ProgressEntry      `bson:"progress_history" json:"progressHistory"`
	IndividualProgress []IndividualProgress `bson:"individual_progress" json:"individualProgress"`

	CompletionPercentage float64 `bson:"completion_percentage" json:"completionPercentage"`
	IsCustomCategory     bool    `bson:"is_custom_category" json:"isCustomCategory"`

	Revision  int64     `bson:"revision" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Contributors returns the creator plus the explicit participant set,
// deduplicated, creator first. Every aggregation and authorization path
// iterates this set rather than Participants alone.
func (g *Goal) Contributors() []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(g.Participants)+1)
	out = append(out, g.CreatedBy)
	for _, p := range g.Participants {
		if p != g.CreatedBy {
			out = append(out, p)
		}
	}
	return out
}

// IsContributor reports whether the user is the creator or a listed
// participant of the goal.
func (g *Goal) IsContributor(userID primitive.ObjectID) bool {
	if g.CreatedBy == userID {
		return true
	}
	for _, p := range g.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// FindSubTask returns the sub-task with the given id, or nil.
func (g *Goal) FindSubTask(id primitive.ObjectID) *SubTask {
	for i := range g.SubTasks {
		if g.SubTasks[i].ID == id {
			return &g.SubTasks[i]
		}
	}
	return nil
}

// SeedIndividualProgress initializes a zero compete-mode entry for every
// contributor that does not have one yet.
func (g *Goal) SeedIndividualProgress(now time.Time) {
	for _, id := range g.Contributors() {
		if g.findIndividualProgress(id) == nil {
			g.IndividualProgress = append(g.IndividualProgress, IndividualProgress{
				UserID:      id,
				LastUpdated: now,
			})
		}
	}
}

func (g *Goal) findIndividualProgress(userID primitive.ObjectID) *IndividualProgress {
	for i := range g.IndividualProgress {
		if g.IndividualProgress[i].UserID == userID {
			return &g.IndividualProgress[i]
		}
	}
	return nil
}

// IndividualProgressFor returns the contributor's compete-mode entry,
// creating a zero entry when none exists.
func (g *Goal) IndividualProgressFor(userID primitive.ObjectID, now time.Time) *IndividualProgress {
	if ip := g.findIndividualProgress(userID); ip != nil {
		return ip
	}
	g.IndividualProgress = append(g.IndividualProgress, IndividualProgress{
		UserID:      userID,
		LastUpdated: now,
	})
	return &g.IndividualProgress[len(g.IndividualProgress)-1]
}

// IsOverdue reports whether the goal passed its end date without completing.
func (g *Goal) IsOverdue(now time.Time) bool {
	return now.After(g.EndDate) && g.Status != StatusCompleted
}
