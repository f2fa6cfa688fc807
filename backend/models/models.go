package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AccountStatus is the moderation state of a user account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "Active"
	AccountSuspended AccountStatus = "Suspended"
	AccountBanned    AccountStatus = "Banned"
)

type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	Age            int                `bson:"age" json:"age"`
	Email          string             `bson:"email" json:"email"`
	ProfilePicture string             `bson:"profile_picture" json:"profilePicture"`
	PasswordHash   string             `bson:"password_hash" json:"-"`
	Gender         string             `bson:"gender" json:"gender"`
	IsAdmin        bool               `bson:"is_admin" json:"isAdmin"`
	IsPremium      bool               `bson:"is_premium" json:"isPremium"`
	AccountStatus  AccountStatus      `bson:"account_status" json:"accountStatus"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updatedAt"`
}

// ShareStatus tracks whether the invited friend has acted on a goal share.
type ShareStatus string

const (
	SharePending  ShareStatus = "Pending"
	ShareAccepted ShareStatus = "Accepted"
	ShareDeclined ShareStatus = "Declined"
)

// GoalShare is the invitation record created when a goal creator shares a
// goal with a friend. Participation in progress tracking only counts once
// the share has been accepted.
type GoalShare struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	GoalID       primitive.ObjectID `bson:"goal_id" json:"goalId"`
	UserID       primitive.ObjectID `bson:"user_id" json:"userId"`
	FriendUserID primitive.ObjectID `bson:"friend_user_id" json:"friendUserId"`
	Status       ShareStatus        `bson:"status" json:"status"`
	Message      string             `bson:"message" json:"message"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}
