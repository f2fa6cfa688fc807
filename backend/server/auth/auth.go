package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/goalmate/backend/backend/models"
	storage "github.com/goalmate/backend/backend/storage/persistent"
	"github.com/goalmate/backend/lib/utils"
)

// store is a global variable that holds an interface to the storage system (database).
var store storage.StorageInterface

// jwtSigningKey is a global variable that holds the key used for signing and verifying JWT tokens.
var jwtSigningKey string

const (
	authTokenTTL    = time.Minute * 15
	refreshTokenTTL = time.Hour * 24 * 7
)

// InitAuth initializes the authentication system with the storage backend
// and the key used to sign JWT tokens.
func InitAuth(s storage.StorageInterface, signingKey string) {
	store = s
	jwtSigningKey = signingKey
}

// CreateAuthToken creates a signed, short-lived JWT token for a user.
//
// It accepts one argument:
// - userId: The ID of the user to generate a token for.
//
// The function creates a JWT token with the user's ID and an expiration time.
// It returns a signed JWT token or an error if there was a problem during the token creation.
func CreateAuthToken(userId string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userId,
		"exp": time.Now().Add(authTokenTTL).Unix(),
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString([]byte(jwtSigningKey))

	if err != nil {
		return "", errors.New("failed to create auth token")
	}

	return signedToken, nil
}

// CreateRefreshToken creates a refresh JWT token for a user.
//
// It accepts one argument:
// - userId: The ID of the user to generate a refresh token for.
//
// The function creates a JWT refresh token with the user's ID and an expiration time.
// It returns a signed JWT refresh token or an error if there was a problem during the token creation.
func CreateRefreshToken(userId string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userId,
		"exp": time.Now().Add(refreshTokenTTL).Unix(),
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString([]byte(jwtSigningKey))

	if err != nil {
		return "", errors.New("failed to create refresh token")
	}

	return signedToken, nil
}

// CreateTokens creates both an auth token and a refresh token for a user.
//
// It accepts one argument:
// - userId: The ID of the user to generate tokens for.
//
// The function calls the CreateAuthToken and CreateRefreshToken functions to create a pair of tokens.
// It returns the pair of tokens or an error if there was a problem during the token creation.
func CreateTokens(userId string) (string, string, error) {
	authToken, authErr := CreateAuthToken(userId)
	if authErr != nil {
		return "", "", authErr
	}

	refreshToken, refreshErr := CreateRefreshToken(userId)
	if refreshErr != nil {
		return "", "", refreshErr
	}

	return authToken, refreshToken, nil
}

// VerifyAuthToken parses and validates a signed JWT token and returns the
// user id embedded in its claims. It is used by the server middleware to
// authenticate requests.
func VerifyAuthToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSigningKey), nil
	})

	if err != nil {
		return "", errors.New("invalid auth token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid auth token")
	}

	userId, ok := claims["id"].(string)
	if !ok || userId == "" {
		return "", errors.New("invalid auth token")
	}

	return userId, nil
}

// SignIn authenticates a user.
//
// It accepts two arguments:
// - email: A string containing the email of the user attempting to log in.
// - password: A string containing the password of the user attempting to log in.
//
// This function performs several tasks:
// It finds the user in the database by their email.
// It rejects accounts that are not active.
// It compares the hashed password stored in the database with the password provided by the user.
// It calls CreateTokens function to generate a new pair of tokens for the user.
//
// The function returns an authentication token, a refresh token, and an error
// if there was a problem with any step of the process.
func SignIn(email string, password string) (string, string, error) {

	if !utils.ValidateEmail(email) {
		return "", "", errors.New("invalid email format")
	}

	foundUser, err := store.FindUser(context.Background(), bson.M{"email": email})

	if err != nil {
		return "", "", errors.New("authentication failed")
	}

	if foundUser.AccountStatus != models.AccountActive {
		return "", "", errors.New("account is not active")
	}

	err = bcrypt.CompareHashAndPassword([]byte(foundUser.PasswordHash), []byte(password))
	if err != nil {
		return "", "", errors.New("authentication failed")
	}

	token, refreshToken, err := CreateTokens(foundUser.ID.Hex())

	if err != nil {
		return "", "", err
	}

	return token, refreshToken, nil
}

// SignUp registers a new user.
//
// It accepts five arguments:
// - name: A string containing the display name of the new user.
// - email: A string containing the email of the new user.
// - password: A string containing the password of the new user.
// - age: The age of the new user.
// - gender: A string containing the gender of the new user, may be empty.
//
// This function performs several tasks:
// It checks if the length of the name is at least 2 characters.
// It validates the email format and the password complexity.
// It checks if a user with the same email already exists in the database.
// It hashes the password provided by the user.
// It creates a new user in the database with the provided details.
// It calls CreateTokens function to generate a new pair of tokens for the user.
//
// The function returns an authentication token, a refresh token, and an error if there was a problem with any step of the process.
func SignUp(name string, email string, password string, age int, gender string) (string, string, error) {

	if len(name) < 2 {
		return "", "", errors.New("invalid name")
	}

	if !utils.ValidateEmail(email) {
		return "", "", errors.New("invalid email format")
	}

	if !utils.ValidatePassword(password) {
		return "", "", errors.New("password must be at least 8 characters and contain both letters and numbers")
	}

	if age < 0 {
		return "", "", errors.New("invalid age")
	}

	foundUser, err := store.FindUser(context.Background(), bson.M{"email": email})
	if err != nil && err != mongo.ErrNoDocuments {
		return "", "", err
	}

	if foundUser != nil {
		return "", "", errors.New("an account with this email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}

	now := time.Now()

	user := &models.User{
		Name:          name,
		Email:         email,
		PasswordHash:  string(hashedPassword),
		Age:           age,
		Gender:        gender,
		AccountStatus: models.AccountActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	newUser, err := store.AddUser(context.Background(), user)
	if err != nil {
		return "", "", err
	}

	token, refreshToken, err := CreateTokens(newUser.ID.Hex())
	if err != nil {
		return "", "", err
	}

	return token, refreshToken, nil
}

// RefreshToken validates a refresh token and generates a new pair of tokens if the refresh token is valid.
// It accepts one argument:
// - refreshToken: A string containing the refresh token to be validated.
//
// This function performs several tasks:
// It parses the refresh token and validates it.
// If the refresh token is valid, it generates a new pair of tokens for the
// user id embedded in its claims.
// If the refresh token is expired or invalid, it returns an error.
//
// The function returns the new tokens (or empty strings if there was an error), and an error if there was a problem with any step of the process.
func RefreshToken(refreshToken string) (string, string, error) {
	token, err := jwt.Parse(refreshToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSigningKey), nil
	})

	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			if ve.Errors == jwt.ValidationErrorExpired {
				return "", "", errors.New("expired refresh token")
			}
		}
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", errors.New("invalid refresh token")
	}

	userId, ok := claims["id"].(string)
	if !ok || userId == "" {
		return "", "", errors.New("invalid refresh token")
	}

	return CreateTokens(userId)
}
