package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goalmate/backend/backend/models"
)

// fakeProducer records every body it was asked to publish.
type fakeProducer struct {
	published [][]byte
}

func (p *fakeProducer) Publish(body []byte) error {
	p.published = append(p.published, body)
	return nil
}

func TestPublishEventRoundRobin(t *testing.T) {
	p1 := &fakeProducer{}
	p2 := &fakeProducer{}
	q := &Queue{Producers: []Producer{p1, p2}}

	for i := 0; i < 4; i++ {
		err := PublishEvent(&GoalEvent{EventID: "evt"}, q)
		assert.NoError(t, err)
	}

	assert.Len(t, p1.published, 2)
	assert.Len(t, p2.published, 2)
}

func TestPublishEventNoProducers(t *testing.T) {
	err := PublishEvent(&GoalEvent{}, &Queue{})
	assert.Error(t, err)
}

func TestPublisherGoalUpdated(t *testing.T) {
	producer := &fakeProducer{}
	publisher := &Publisher{Queue: &Queue{Producers: []Producer{producer}}}

	creator := primitive.NewObjectID()
	friend := primitive.NewObjectID()
	goal := &models.Goal{
		ID:                   primitive.NewObjectID(),
		Title:                "Marathon training",
		Status:               models.StatusCompleted,
		CompletionPercentage: 100,
		CreatedBy:            creator,
		Participants:         []primitive.ObjectID{friend, creator},
	}

	publisher.GoalUpdated(goal, friend)

	assert.Len(t, producer.published, 1)

	var event GoalEvent
	assert.NoError(t, json.Unmarshal(producer.published[0], &event))
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, goal.ID.Hex(), event.GoalID)
	assert.Equal(t, "Marathon training", event.Title)
	assert.Equal(t, string(models.StatusCompleted), event.Status)
	assert.Equal(t, 100.0, event.CompletionPercentage)
	assert.Equal(t, friend.Hex(), event.UpdatedBy)

	// Recipients are the deduplicated contributor set, creator first.
	assert.Equal(t, []string{creator.Hex(), friend.Hex()}, event.Recipients)
}
