package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"

	"github.com/goalmate/backend/cli/client"
	"github.com/goalmate/backend/cli/cmd"
)

// RunCLI starts the interactive console against a running backend.
func RunCLI() {
	// Load the .env file
	err := godotenv.Load("cli/.env")
	if err != nil {
		fmt.Println("Error loading .env file")
	}

	// Read the environment variables
	signingKey := os.Getenv("JWT_SIGNING_KEY")
	authToken := os.Getenv("AUTH_TOKEN")
	authTokenRefresh := os.Getenv("AUTH_TOKEN_REFRESH")
	serverURL := os.Getenv("SERVER_URL")
	dbURI := os.Getenv("MONGODB_URI")
	dbName := os.Getenv("DB_NAME")

	if authToken == "" {
		authToken = "goalmate_auth_token"
	}
	if authTokenRefresh == "" {
		authTokenRefresh = "goalmate_refresh_token"
	}

	// Drop any tokens left over from a previous session.
	keyring.Delete(client.KeyringService, authToken)
	keyring.Delete(client.KeyringService, authTokenRefresh)

	client.InitClient(serverURL, signingKey, authToken, authTokenRefresh)
	cmd.InitCmd(dbName, dbURI)
	cmd.Execute()
}
