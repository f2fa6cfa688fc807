package backend

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/goalmate/backend/backend/progress"
	"github.com/goalmate/backend/backend/queue"
	"github.com/goalmate/backend/backend/server"
	"github.com/goalmate/backend/backend/server/auth"
	"github.com/goalmate/backend/backend/server/handlers"
	"github.com/goalmate/backend/backend/server/notifications/email"
	"github.com/goalmate/backend/backend/server/notifications/realtime"
	storage "github.com/goalmate/backend/backend/storage/persistent"
)

// RunBackend is the main function that sets up and runs the backend server.
func RunBackend() {

	// Load the .env file.
	err := godotenv.Load("backend/.env")
	if err != nil {
		fmt.Println("Error loading .env file")
	}

	// Read the environment variables from the .env file using os.Getenv.
	signingKey := os.Getenv("JWT_SIGNING_KEY") // JWT signing key for token generation
	serverURL := os.Getenv("SERVER_URL")       // The URL where the server is running
	dbURI := os.Getenv("MONGODB_URI")          // MongoDB database URI
	dbName := os.Getenv("DB_NAME")             // The name of the MongoDB database
	smtpEmail := os.Getenv("SMTP_EMAIL")       // The email address used for sending completion emails
	smtpPassword := os.Getenv("SMTP_PASSWORD") // The password for the email account
	redisUrl := os.Getenv("REDIS_URL")         // The Redis URL for deduplicating goal events
	rabbitMQURL := os.Getenv("RABBITMQ_URL")   // The URL for the RabbitMQ message broker
	numProducers := 1                          // The number of goal event producers
	numConsumers := 2                          // The number of goal event consumers
	ctx := context.Background()

	// Initialize the email service with the email and password
	if _, err := email.InitEmailService(smtpEmail, smtpPassword); err != nil {
		log.Println("email service disabled:", err)
	}

	// Initialize the persistent storage backend
	store, err := storage.NewStorage(dbName, dbURI)
	if err != nil {
		log.Fatal("error initializing storage: ", err)
	}

	// Start the realtime hub that pushes goal events to connected clients
	hub := realtime.NewHub()
	go hub.Run()

	// Initialize the cache used to deduplicate redelivered goal events
	eventCache, err := queue.InitNotificationCache(redisUrl)
	if err != nil {
		log.Fatal("error initializing event cache: ", err)
	}

	// Build the goal event queue and start its consumers
	eventQueue, err := queue.BuildNotificationQueue(rabbitMQURL, numProducers, numConsumers, eventCache, hub, store)
	if err != nil {
		log.Fatal("error initializing queue: ", err)
	}
	if _, err := eventQueue.StartConsumers(ctx); err != nil {
		log.Fatal("error starting queue consumers: ", err)
	}

	// Wire the progress engine to storage and the event queue
	engine := progress.NewEngine(store, &queue.Publisher{Queue: eventQueue})

	// Initialize the authentication service and the request handlers
	auth.InitAuth(store, signingKey)
	handlers.Init(store, engine)

	// Start the core server
	go func() {
		if err := server.Start(serverURL, hub); err != nil {
			log.Fatal("server stopped: ", err)
		}
	}()

	// Setting up the signal interrupt handler to gracefully shutdown our server
	sigs := make(chan os.Signal, 1)

	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		fmt.Println()
		fmt.Println(sig)
		store.Disconnect()
		os.Exit(0)
	}()

	select {}
}
