package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/goalmate/backend/backend/models"
	"github.com/goalmate/backend/backend/server/notifications/email"
	cache "github.com/goalmate/backend/backend/storage/cache"
	persistent "github.com/goalmate/backend/backend/storage/persistent"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// globalCount is used in the round robin algorithm to assign producers to each goal event.
var globalCount int

// Pusher delivers a serialized event to the given users' live connections.
// The realtime websocket hub implements it.
type Pusher interface {
	PushToUsers(userIDs []string, message []byte)
}

// GoalEvent is the queue message emitted after every successful progress
// write. EventID makes redelivered messages recognizable; Recipients are the
// goal's contributors (creator plus participants) as hex object ids.
type GoalEvent struct {
	EventID              string    `json:"event_id"`
	GoalID               string    `json:"goal_id"`
	Title                string    `json:"title"`
	Status               string    `json:"status"`
	CompletionPercentage float64   `json:"completion_percentage"`
	UpdatedBy            string    `json:"updated_by"`
	Recipients           []string  `json:"recipients"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// NotificationProducerFactory is a struct for creating new NotificationProducer instances.
type NotificationProducerFactory struct{}

// NotificationConsumerFactory is a struct for creating new NotificationConsumer instances.
// It carries the dedupe cache, the realtime pusher, and the user store used
// to resolve contributor email addresses on goal completion.
type NotificationConsumerFactory struct {
	Cache  cache.CacheInterface
	Pusher Pusher
	Store  persistent.StorageInterface
}

// NotificationProducer manages the connection, channel, and queue of the AMQP message producer for goal events.
type NotificationProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   *amqp.Queue
}

// NotificationConsumer manages the connection, channel, queue and delivery
// targets of the AMQP message consumer for goal events.
type NotificationConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   *amqp.Queue
	cache   cache.CacheInterface
	pusher  Pusher
	store   persistent.StorageInterface
}

// CreateProducer instantiates a new NotificationProducer bound to the given
// connection, channel, and queue.
func (f *NotificationProducerFactory) CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error) {
	return &NotificationProducer{
		conn:    conn,
		channel: ch,
		queue:   queue,
	}, nil
}

// CreateConsumer instantiates a new NotificationConsumer bound to the given
// connection, channel, and queue, wired to the factory's delivery targets.
func (f *NotificationConsumerFactory) CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error) {
	return &NotificationConsumer{
		conn:    conn,
		channel: ch,
		queue:   queue,
		cache:   f.Cache,
		pusher:  f.Pusher,
		store:   f.Store,
	}, nil
}

// Publish publishes a goal event body to the AMQP queue.
func (np *NotificationProducer) Publish(body []byte) error {
	err := np.channel.Publish(
		"",            // exchange
		np.queue.Name, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Consume sets up a consumer on the queue and launches a goroutine that
// continuously reads goal events from it. Each event is checked against the
// dedupe cache, then pushed to the recipients' live connections; when the
// event marks a completion, every contributor is additionally emailed.
// Transient failures nack with requeue; handled and duplicate events ack.
func (nc *NotificationConsumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	msgs, err := nc.channel.Consume(
		nc.queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case d, ok := <-msgs:
				if !ok {
					return
				}

				event := &GoalEvent{}
				if err := json.Unmarshal(d.Body, event); err != nil {
					log.Printf("failed to unmarshal goal event: %v", err)
					d.Nack(false, false) // malformed, do not requeue
					continue
				}

				processed, err := nc.cache.Get(ctx, "event_"+event.EventID)
				if err != nil {
					// Ignore cache misses, handle other errors.
					if err.Error() != cache.ErrKeyNotFound {
						log.Printf("error checking cache: %v", err)
						d.Nack(false, true)
						continue
					}
				}

				if processed != nil {
					d.Ack(false)
					continue
				}

				nc.deliver(ctx, event, d.Body)

				d.Ack(false)
				if err := nc.cache.Set(ctx, "event_"+event.EventID, true); err != nil {
					log.Printf("failed to set key in cache: %v", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return msgs, nil
}

// deliver fans one event out. Failures are logged and swallowed: the
// notification sink is best effort by contract and must never bounce back
// into the progress path.
func (nc *NotificationConsumer) deliver(ctx context.Context, event *GoalEvent, body []byte) {
	if nc.pusher != nil {
		nc.pusher.PushToUsers(event.Recipients, body)
	}

	if event.Status != string(models.StatusCompleted) || nc.store == nil {
		return
	}

	ids := make([]primitive.ObjectID, 0, len(event.Recipients))
	for _, hex := range event.Recipients {
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	users, err := nc.store.FindUsersByIDs(ctx, ids)
	if err != nil {
		log.Printf("failed to resolve recipients for goal %s: %v", event.GoalID, err)
		return
	}
	for _, u := range users {
		if err := email.SendGoalCompleted(u.Email, event.Title); err != nil {
			log.Printf("failed to send completion email to %s: %v", u.Email, err)
		}
	}
}

// BuildNotificationQueue initializes a Queue for goal events with the given
// number of producers and consumers. Consumers share the dedupe cache, the
// realtime pusher, and the user store.
func BuildNotificationQueue(rabbitMQURL string, numProducers, numConsumers int, c cache.CacheInterface, pusher Pusher, store persistent.StorageInterface) (*Queue, error) {
	prodFactories := make([]ProducerFactory, numProducers)
	for i := 0; i < numProducers; i++ {
		prodFactories[i] = &NotificationProducerFactory{}
	}

	consFactories := make([]ConsumerFactory, numConsumers)
	for i := 0; i < numConsumers; i++ {
		consFactories[i] = &NotificationConsumerFactory{Cache: c, Pusher: pusher, Store: store}
	}

	return InitQueue(rabbitMQURL, "goalEvents", prodFactories, consFactories)
}

// InitNotificationCache initializes the cache storage used to deduplicate
// redelivered goal events.
func InitNotificationCache(url string) (cache.CacheInterface, error) {
	c, err := cache.NewCache(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to cache: %w", err)
	}
	return c, nil
}

// PublishEvent serializes a goal event and publishes it onto the queue using
// one of the producers in a round-robin manner.
func PublishEvent(event *GoalEvent, q *Queue) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.New("failed to marshal goal event: " + err.Error())
	}

	producerCount := len(q.Producers)
	if producerCount == 0 {
		return errors.New("no producers available")
	}

	producer := q.Producers[globalCount%producerCount]
	globalCount++

	if err := producer.Publish(body); err != nil {
		return errors.New("failed to publish goal event: " + err.Error())
	}

	return nil
}

// Publisher adapts the queue to the progress engine's notifier contract:
// events are emitted after successful writes, and publish failures are
// logged, never surfaced to the progress caller.
type Publisher struct {
	Queue *Queue
}

// GoalUpdated builds and publishes a goal event for a successful progress
// write.
func (p *Publisher) GoalUpdated(goal *models.Goal, contributor primitive.ObjectID) {
	recipients := make([]string, 0, len(goal.Participants)+1)
	for _, id := range goal.Contributors() {
		recipients = append(recipients, id.Hex())
	}

	event := &GoalEvent{
		EventID:              uuid.NewString(),
		GoalID:               goal.ID.Hex(),
		Title:                goal.Title,
		Status:               string(goal.Status),
		CompletionPercentage: goal.CompletionPercentage,
		UpdatedBy:            contributor.Hex(),
		Recipients:           recipients,
		OccurredAt:           time.Now(),
	}

	if err := PublishEvent(event, p.Queue); err != nil {
		log.Printf("failed to publish goal event for %s: %v", goal.ID.Hex(), err)
	}
}
