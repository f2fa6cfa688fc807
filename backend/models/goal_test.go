package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestContributors(t *testing.T) {
	creator := primitive.NewObjectID()
	friend := primitive.NewObjectID()

	goal := &Goal{CreatedBy: creator, Participants: []primitive.ObjectID{friend, creator}}

	// Creator first, duplicates collapsed.
	assert.Equal(t, []primitive.ObjectID{creator, friend}, goal.Contributors())

	solo := &Goal{CreatedBy: creator}
	assert.Equal(t, []primitive.ObjectID{creator}, solo.Contributors())
}

func TestIsContributor(t *testing.T) {
	creator := primitive.NewObjectID()
	friend := primitive.NewObjectID()
	goal := &Goal{CreatedBy: creator, Participants: []primitive.ObjectID{friend}}

	assert.True(t, goal.IsContributor(creator))
	assert.True(t, goal.IsContributor(friend))
	assert.False(t, goal.IsContributor(primitive.NewObjectID()))
}

func TestSubTaskRange(t *testing.T) {
	st := &SubTask{StartValue: 50, EndValue: 100}
	assert.Equal(t, 50.0, st.Range())

	// Inverted or empty ranges count as no range.
	st = &SubTask{StartValue: 100, EndValue: 50}
	assert.Equal(t, 0.0, st.Range())
	assert.Equal(t, 0.0, (&SubTask{}).Range())
}

func TestSeedIndividualProgress(t *testing.T) {
	creator := primitive.NewObjectID()
	friend := primitive.NewObjectID()
	now := time.Now()

	goal := &Goal{CreatedBy: creator, Participants: []primitive.ObjectID{friend}}
	goal.SeedIndividualProgress(now)
	assert.Len(t, goal.IndividualProgress, 2)

	// Seeding again must not duplicate entries.
	goal.SeedIndividualProgress(now)
	assert.Len(t, goal.IndividualProgress, 2)
}

func TestIndividualProgressFor(t *testing.T) {
	creator := primitive.NewObjectID()
	now := time.Now()
	goal := &Goal{CreatedBy: creator}

	ip := goal.IndividualProgressFor(creator, now)
	ip.TotalProgress = 10

	// The returned pointer aliases the slice entry.
	assert.Equal(t, 10.0, goal.IndividualProgress[0].TotalProgress)
	assert.Same(t, &goal.IndividualProgress[0], goal.IndividualProgressFor(creator, now))
}

func TestIsOverdue(t *testing.T) {
	now := time.Now()
	goal := &Goal{EndDate: now.Add(-time.Hour), Status: StatusInProgress}
	assert.True(t, goal.IsOverdue(now))

	goal.Status = StatusCompleted
	assert.False(t, goal.IsOverdue(now))

	future := &Goal{EndDate: now.Add(time.Hour), Status: StatusInProgress}
	assert.False(t, future.IsOverdue(now))
}
