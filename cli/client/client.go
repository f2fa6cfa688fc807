package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/form3tech-oss/jwt-go"
	"github.com/zalando/go-keyring"

	"github.com/goalmate/backend/lib/utils"
)

// jwtSigningKey is used to verify JWT tokens held in the keyring.
var jwtSigningKey string

// KeyringKey is used to store and retrieve the JWT token from the system keyring.
var KeyringKey string

// RefreshKeyringKey is used to store and retrieve the refresh token from the system keyring.
var RefreshKeyringKey string

// ServerURL is the URL of the server the client is connecting to.
var ServerURL string

// client is the HTTP client used to make requests to the server.
var client = &http.Client{}

// KeyringService is the name of the service in the system keyring where the JWT token and refresh token are stored.
const KeyringService = "GoalMate"

// TokenResult represents the token pair returned by the auth endpoints.
type TokenResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// GoalSummary is the subset of the goal payload the console displays.
type GoalSummary struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	GoalType             string  `json:"goalType"`
	Status               string  `json:"status"`
	CompletionPercentage float64 `json:"completionPercentage"`
	Overdue              bool    `json:"overdue"`
}

// SharedGoalSummary is one pending invitation as shown by the console.
type SharedGoalSummary struct {
	ShareID string `json:"shareId"`
	Message string `json:"message"`
	SharedBy struct {
		Name string `json:"name"`
	} `json:"sharedBy"`
	Goal *GoalSummary `json:"goal"`
}

// InitClient initializes the client package state. This function must be
// called before using any other functions in the package.
func InitClient(serverURL, signingKey, authToken, authTokenRefresh string) {
	jwtSigningKey = signingKey
	KeyringKey = authToken
	RefreshKeyringKey = authTokenRefresh
	ServerURL = serverURL
}

// decodeJWT decodes a JWT token and returns the claims contained within it.
// It returns an error if the token is invalid.
func decodeJWT(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSigningKey), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// isJwtTokenInKeyring checks if the system keyring contains a JWT token.
// Returns 'true' and the token if it exists, 'false' and an empty string if it doesn't.
func isJwtTokenInKeyring() (bool, string, error) {
	token, err := keyring.Get(KeyringService, KeyringKey)
	if err != nil {
		if err == keyring.ErrNotFound {
			return false, "", nil
		}
		return false, "", errors.New("failed to access keyring: " + err.Error())
	}
	return true, token, nil
}

// ClearKeyring clears the JWT token and refresh token from the system keyring atomically.
func ClearKeyring() error {
	accessToken, err := keyring.Get(KeyringService, KeyringKey)
	if err != nil {
		return errors.New("failed to retrieve access token from keyring: " + err.Error())
	}

	err = keyring.Delete(KeyringService, KeyringKey)
	if err != nil {
		return errors.New("failed to delete access token from keyring: " + err.Error())
	}

	err = keyring.Delete(KeyringService, RefreshKeyringKey)
	if err != nil {
		keyring.Set(KeyringService, KeyringKey, accessToken)
		return errors.New("failed to delete refresh token from keyring: " + err.Error())
	}

	return nil
}

// IsUserAuthenticated checks if the user is authenticated by checking if a
// valid JWT token exists in the system keyring. If the token is expired it
// tries to refresh it using the stored refresh token.
func IsUserAuthenticated() (string, error) {

	hasJwt, tokenStr, err := isJwtTokenInKeyring()

	if err != nil {
		return "", err
	}

	if !hasJwt {
		return "", nil
	}

	_, err = decodeJWT(tokenStr)
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			if ve.Errors&jwt.ValidationErrorExpired != 0 {
				newToken, refreshErr := RefreshAccessToken()
				if refreshErr != nil {
					return "", refreshErr
				}
				return newToken, nil
			}
		}
		return "", err
	}

	return tokenStr, nil
}

// sendRequest sends a JSON request to the server and decodes the response
// into out, if out is non-nil. Error bodies are surfaced as plain errors.
func sendRequest(method, path string, token *string, body interface{}, out interface{}) error {

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to create request: %v", err)
		}
		reqBody = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequest(method, ServerURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != nil {
		req.Header.Add("Authorization", "Bearer "+*token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(bodyBytes, &errBody); err == nil && errBody.Error != "" {
			return errors.New(errBody.Error)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return err
		}
	}

	return nil
}

// storeTokens saves a token pair to the system keyring.
func storeTokens(result *TokenResult) error {
	if err := keyring.Set(KeyringService, KeyringKey, result.Token); err != nil {
		return err
	}
	if result.RefreshToken != "" {
		if err := keyring.Set(KeyringService, RefreshKeyringKey, result.RefreshToken); err != nil {
			keyring.Delete(KeyringService, KeyringKey)
			return err
		}
	}
	return nil
}

// RefreshAccessToken attempts to refresh the JWT token using the refresh token.
// Returns the refreshed token if successful, else an error.
func RefreshAccessToken() (string, error) {

	refreshToken, err := keyring.Get(KeyringService, RefreshKeyringKey)

	if err != nil {
		return "", err
	}

	var result TokenResult
	err = sendRequest("POST", "/api/users/refresh", nil, map[string]string{
		"refreshToken": refreshToken,
	}, &result)

	if err != nil {
		return "", err
	}

	if err := storeTokens(&result); err != nil {
		return "", err
	}

	return result.Token, nil
}

// SignIn attempts to sign in a user with the provided email and password.
// Returns the JWT token and refresh token if the sign in was successful, else an error.
func SignIn(email, password string) (string, string, error) {

	isSignedIn, _, err := isJwtTokenInKeyring()

	if err != nil {
		return "", "", err
	}

	if isSignedIn {
		return "", "", errors.New("a user is already signed in")
	}

	var result TokenResult
	err = sendRequest("POST", "/api/users/login", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &result)
	if err != nil {
		return "", "", err
	}

	if err := storeTokens(&result); err != nil {
		return "", "", err
	}

	return result.Token, result.RefreshToken, nil
}

// SignUp attempts to register a new user with the provided details.
// Returns the JWT token and refresh token if the sign up was successful, else an error.
func SignUp(name, email, password string, age int) (string, string, error) {

	isSignedIn, _, err := isJwtTokenInKeyring()

	if err != nil {
		return "", "", err
	}

	if isSignedIn {
		return "", "", errors.New("a user is already signed in")
	}

	if len(name) < 2 {
		return "", "", errors.New("name must be at least 2 characters")
	}

	if !utils.ValidateEmail(email) {
		return "", "", errors.New("invalid email format")
	}

	if !utils.ValidatePassword(password) {
		return "", "", errors.New("password must be at least 8 characters and contain both letters and numbers")
	}

	var result TokenResult
	err = sendRequest("POST", "/api/users/register", nil, map[string]interface{}{
		"name":     name,
		"email":    email,
		"password": password,
		"age":      age,
	}, &result)
	if err != nil {
		return "", "", err
	}

	if err := storeTokens(&result); err != nil {
		return "", "", err
	}

	return result.Token, result.RefreshToken, nil
}

// SignOut signs out the current user by removing the tokens from the system keyring.
func SignOut() error {

	token, err := IsUserAuthenticated()

	if err != nil {
		return err
	}

	if token == "" {
		return errors.New("no user is currently signed in")
	}

	return ClearKeyring()
}

// ListGoals returns every goal the signed-in user contributes to.
func ListGoals() ([]GoalSummary, error) {

	token, err := IsUserAuthenticated()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("no user is currently signed in")
	}

	var goals []GoalSummary
	if err := sendRequest("GET", "/api/goals", &token, nil, &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

// ListSharedGoals returns the pending invitations addressed to the signed-in user.
func ListSharedGoals() ([]SharedGoalSummary, error) {

	token, err := IsUserAuthenticated()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("no user is currently signed in")
	}

	var shares []SharedGoalSummary
	if err := sendRequest("GET", "/api/goals/shared", &token, nil, &shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// RespondToShare accepts or declines a pending invitation.
func RespondToShare(shareID string, accept bool) error {

	token, err := IsUserAuthenticated()
	if err != nil {
		return err
	}
	if token == "" {
		return errors.New("no user is currently signed in")
	}

	return sendRequest("POST", "/api/goals/shares/"+shareID+"/respond", &token, map[string]bool{
		"accept": accept,
	}, nil)
}

// RecordProgress records one contribution against a goal and returns its
// recomputed state.
func RecordProgress(goalID string, value float64, notes string) (*GoalSummary, error) {

	token, err := IsUserAuthenticated()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("no user is currently signed in")
	}

	var goal GoalSummary
	err = sendRequest("POST", "/api/goals/"+goalID+"/progress", &token, map[string]interface{}{
		"value": value,
		"notes": notes,
	}, &goal)
	if err != nil {
		return nil, err
	}
	return &goal, nil
}
