package server

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/goalmate/backend/backend/server/auth"
	"github.com/goalmate/backend/backend/server/contextkey"
	apihandlers "github.com/goalmate/backend/backend/server/handlers"
	"github.com/goalmate/backend/backend/server/notifications/realtime"
)

// jwtMiddleware is a middleware function that performs JWT validation.
//
// It reads the JWT from the Authorization header of the HTTP request,
// verifies the token's signature and expiry, and injects the user's ID
// extracted from the claims into the request's context under
// contextkey.UserIDKey. Requests without a valid bearer token are rejected
// with 401 before reaching the handler.
func jwtMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tokenString string

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			splitToken := strings.Split(authHeader, "Bearer ")
			if len(splitToken) != 2 {
				http.Error(w, "malformed authorization header", http.StatusUnauthorized)
				return
			}
			tokenString = strings.TrimSpace(splitToken[1])
		} else {
			// Browser websocket clients cannot set headers, so the websocket
			// endpoint also accepts the token as a query parameter.
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		userID, err := auth.VerifyAuthToken(tokenString)
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextkey.UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoveryMiddleware is a middleware function that recovers from panics and provides a generic error message to the client.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %s\n", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the REST server. Runs on localhost:8080 by default.
// The function requires a serverURL (the URL where the server must be deployed)
// and the realtime hub that serves websocket connections.
func Start(serverURL string, hub *realtime.Hub) error {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.Use(recoveryMiddleware)

	// Public authentication endpoints.
	api.HandleFunc("/users/register", apihandlers.Register).Methods(http.MethodPost)
	api.HandleFunc("/users/login", apihandlers.Login).Methods(http.MethodPost)
	api.HandleFunc("/users/refresh", apihandlers.Refresh).Methods(http.MethodPost)

	// Everything under /api/goals requires a valid bearer token.
	goals := api.PathPrefix("/goals").Subrouter()
	goals.Use(jwtMiddleware)
	goals.HandleFunc("/create", apihandlers.CreateGoal).Methods(http.MethodPost)
	goals.HandleFunc("", apihandlers.ListGoals).Methods(http.MethodGet)
	goals.HandleFunc("/shared", apihandlers.ListSharedGoals).Methods(http.MethodGet)
	goals.HandleFunc("/share", apihandlers.ShareGoal).Methods(http.MethodPost)
	goals.HandleFunc("/shares/{id}/respond", apihandlers.RespondToShare).Methods(http.MethodPost)
	goals.HandleFunc("/subtask/status", apihandlers.SetSubTaskStatus).Methods(http.MethodPost)
	goals.HandleFunc("/{id}", apihandlers.GetGoal).Methods(http.MethodGet)
	goals.HandleFunc("/{id}", apihandlers.UpdateGoal).Methods(http.MethodPut)
	goals.HandleFunc("/{id}", apihandlers.DeleteGoal).Methods(http.MethodDelete)
	goals.HandleFunc("/{id}/leave", apihandlers.LeaveGoal).Methods(http.MethodPost)
	goals.HandleFunc("/{id}/progress", apihandlers.RecordProgress).Methods(http.MethodPost)

	// Websocket endpoint for live goal events.
	r.Handle("/ws", jwtMiddleware(http.HandlerFunc(hub.ServeWS)))

	// Apply the CORS middleware to the router
	corsOrigins := handlers.AllowedOrigins([]string{"*"})
	corsMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"})
	corsHeaders := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})

	// Wrap the router with the CORS middleware
	corsRouter := handlers.CORS(corsOrigins, corsMethods, corsHeaders)(r)

	// Apply the logging middleware
	loggingRouter := handlers.LoggingHandler(os.Stdout, corsRouter)

	// Parsing the server url
	u, err := url.Parse(serverURL)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:      loggingRouter,
		Addr:         u.Host,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	return server.ListenAndServe()
}
