package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	ishell "github.com/abiosoft/ishell"
	"github.com/common-nighthawk/go-figure"
	"golang.org/x/crypto/bcrypt"

	"github.com/goalmate/backend/backend/models"
	storage "github.com/goalmate/backend/backend/storage/persistent"
	"github.com/goalmate/backend/cli/client"
	"github.com/goalmate/backend/lib/utils"
)

// guestCommands is a slice of Command structures containing commands that are available to users who have not logged in.
var guestCommands []Command

// userCommands is a slice of Command structures containing commands that are available only to logged in users.
var userCommands []Command

// commonCommands is a slice of Command structures containing commands that are available to all users, regardless of their login status.
var commonCommands []Command

// loggedIn is a boolean variable that indicates whether a user is currently logged in.
var loggedIn bool

// shell represents an instance of the interactive shell used for this application.
var shell *ishell.Shell

// dbName and dbURI connect the createadmin command directly to storage,
// bypassing the API. Admin accounts are bootstrapped locally, never over HTTP.
var dbName, dbURI string

// The Command struct defines a user command in the system. Each command has a Name, a Desc (short for description), and a Func (the function to execute when the command is called).
type Command struct {
	Name string                  // Name is the name of the command.
	Desc string                  // Desc is a short description of what the command does.
	Func func(c *ishell.Context) // Func is the function that is executed when the command is invoked.
}

// InitCmd initializes the console commands. It sets up the shell and the
// commands for guest and signed-in scenarios.
func InitCmd(databaseName, databaseURI string) {

	dbName = databaseName
	dbURI = databaseURI

	// Initialize shell
	shell = ishell.New()

	// Define the commands available to a guest user (not signed in)
	guestCommands = []Command{
		{
			Name: "signin",
			Desc: "Sign in to your account",
			Func: func(c *ishell.Context) {
				var email, password string
				for {
					c.Print("Enter Email: ")
					email = c.ReadLine()

					if utils.ValidateEmail(email) {
						break
					}
					c.Println("Email is not valid.")
				}

				for {
					c.Print("Enter Password: ")
					password = c.ReadPassword()

					if len(password) > 0 {
						break
					}
					c.Println("Password cannot be empty.")
				}

				_, _, err := client.SignIn(email, password)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				loggedIn = true
				c.Println("Welcome, you are now signed in.")
				for _, command := range guestCommands {
					shell.DeleteCmd(command.Name)
				}
				addCommands(shell, userCommands)
			},
		},
		{
			Name: "signup",
			Desc: "Sign up for a new account",
			Func: func(c *ishell.Context) {
				var name, email, password string
				var age int
				for {
					c.Print("Enter Name: ")
					name = c.ReadLine()

					if len(name) > 1 {
						break
					}
					c.Println("Name must be longer than 1 character.")
				}

				for {
					c.Print("Enter Email: ")
					email = c.ReadLine()

					if utils.ValidateEmail(email) {
						break
					}
					c.Println("Email is not valid.")
				}

				for {
					c.Print("Enter Age: ")
					parsed, err := strconv.Atoi(c.ReadLine())
					if err == nil && parsed >= 0 {
						age = parsed
						break
					}
					c.Println("Age must be a non-negative number.")
				}

				for {
					c.Print("Enter Password: ")
					password = c.ReadPassword()

					if utils.ValidatePassword(password) {
						c.Print("Confirm Password: ")
						confirmPassword := c.ReadPassword()

						if password == confirmPassword {
							break
						}
						c.Println()
						c.Println("Passwords do not match. Please try again.")
						c.Println()
					} else {
						c.Println()
						c.Println("Password must be at least 8 characters and contain both letters and numbers.")
						c.Println()
					}
				}

				_, _, err := client.SignUp(name, email, password, age)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("Account created successfully. You are now signed in.")
				loggedIn = true
				for _, command := range guestCommands {
					shell.DeleteCmd(command.Name)
				}
				addCommands(shell, userCommands)
			},
		},
		{
			Name: "createadmin",
			Desc: "Bootstrap an admin account directly in the database",
			Func: createAdmin,
		},
	}

	// Define the commands available to a signed in user
	userCommands = []Command{
		{
			Name: "goals",
			Desc: "List your goals",
			Func: func(c *ishell.Context) {
				goals, err := client.ListGoals()
				if err != nil {
					handleClientError(err)
					return
				}
				if len(goals) == 0 {
					c.Println("You have no goals yet.")
					return
				}
				for _, g := range goals {
					line := fmt.Sprintf("  |-- [%s] %s (%s, %.1f%%)", g.ID, g.Title, g.Status, g.CompletionPercentage)
					if g.Overdue {
						line += " OVERDUE"
					}
					c.Println(line)
				}
			},
		},
		{
			Name: "invites",
			Desc: "List pending goal invitations",
			Func: func(c *ishell.Context) {
				shares, err := client.ListSharedGoals()
				if err != nil {
					handleClientError(err)
					return
				}
				if len(shares) == 0 {
					c.Println("No pending invitations.")
					return
				}
				for _, s := range shares {
					title := "(deleted goal)"
					if s.Goal != nil {
						title = s.Goal.Title
					}
					c.Printf("  |-- [%s] %q from %s: %s\n", s.ShareID, title, s.SharedBy.Name, s.Message)
				}
			},
		},
		{
			Name: "respond",
			Desc: "Accept or decline a goal invitation",
			Func: func(c *ishell.Context) {
				c.Print("Enter Invitation ID: ")
				shareID := strings.TrimSpace(c.ReadLine())
				if shareID == "" {
					c.Println("Invitation ID cannot be empty.")
					return
				}

				var accept bool
				for {
					c.Print("Accept the invitation? (yes/no): ")
					response := strings.ToLower(c.ReadLine())
					if response == "yes" || response == "no" {
						accept = response == "yes"
						break
					}
					c.Println("Invalid response. Please type 'yes' or 'no'.")
				}

				if err := client.RespondToShare(shareID, accept); err != nil {
					handleClientError(err)
					return
				}
				if accept {
					c.Println("Invitation accepted. The goal now appears under 'goals'.")
				} else {
					c.Println("Invitation declined.")
				}
			},
		},
		{
			Name: "progress",
			Desc: "Record progress against one of your goals",
			Func: func(c *ishell.Context) {
				c.Print("Enter Goal ID: ")
				goalID := strings.TrimSpace(c.ReadLine())
				if goalID == "" {
					c.Println("Goal ID cannot be empty.")
					return
				}

				var value float64
				for {
					c.Print("Enter Progress Value: ")
					parsed, err := strconv.ParseFloat(c.ReadLine(), 64)
					if err == nil && parsed >= 0 {
						value = parsed
						break
					}
					c.Println("Value must be a non-negative number.")
				}

				c.Print("Notes (optional): ")
				notes := c.ReadLine()

				goal, err := client.RecordProgress(goalID, value, notes)
				if err != nil {
					handleClientError(err)
					return
				}
				c.Printf("Recorded. %q is now %s at %.1f%%.\n", goal.Title, goal.Status, goal.CompletionPercentage)
			},
		},
		{
			Name: "signout",
			Desc: "Sign out from your account",
			Func: func(c *ishell.Context) {
				err := client.SignOut()
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("You are now signed out.")
				loggedIn = false
				for _, command := range userCommands {
					shell.DeleteCmd(command.Name)
				}
				addCommands(shell, guestCommands)
			},
		},
	}

	// Define common commands that are always available, regardless of login state
	commonCommands = []Command{
		{
			Name: "exit",
			Desc: "Exit the application",
			Func: func(c *ishell.Context) {
				fmt.Println("Goodbye!")
				os.Exit(0)
			},
		},
	}

	// The help command is created separately to avoid the cyclic dependency
	commonCommands = append(commonCommands, Command{
		Name: "help",
		Desc: "List available commands",
		Func: func(c *ishell.Context) {
			c.Println("Available commands:")
			if loggedIn {
				for _, command := range userCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			} else {
				for _, command := range guestCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			}
			for _, command := range commonCommands {
				c.Println("  |-- '" + command.Name + "' : " + command.Desc)
			}
			c.Println()
		},
	})
}

// handleClientError surfaces a client error, downgrading the session when
// the refresh token has expired.
func handleClientError(err error) {
	if err.Error() == "expired refresh token" {
		utils.PrintError("Session expired, please sign in again by typing 'signin' in the terminal.")
		client.ClearKeyring()
		loggedIn = false
		for _, command := range userCommands {
			shell.DeleteCmd(command.Name)
		}
		addCommands(shell, guestCommands)
		return
	}
	utils.PrintError(err.Error())
}

// createAdmin writes an admin user straight into storage. It prompts for the
// account details, hashes the password, and marks the account premium.
func createAdmin(c *ishell.Context) {
	var name, email, password string

	for {
		c.Print("Enter Admin Name: ")
		name = c.ReadLine()
		if len(name) > 1 {
			break
		}
		c.Println("Name must be longer than 1 character.")
	}

	for {
		c.Print("Enter Admin Email: ")
		email = c.ReadLine()
		if utils.ValidateEmail(email) {
			break
		}
		c.Println("Email is not valid.")
	}

	for {
		c.Print("Enter Admin Password: ")
		password = c.ReadPassword()
		if utils.ValidatePassword(password) {
			break
		}
		c.Println("Password must be at least 8 characters and contain both letters and numbers.")
	}

	store, err := storage.NewStorage(dbName, dbURI)
	if err != nil {
		utils.PrintError("could not connect to storage: " + err.Error())
		return
	}
	defer store.Disconnect()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		utils.PrintError(err.Error())
		return
	}

	now := time.Now()
	_, err = store.AddUser(context.Background(), &models.User{
		Name:          name,
		Email:         email,
		PasswordHash:  string(hashedPassword),
		IsAdmin:       true,
		IsPremium:     true,
		AccountStatus: models.AccountActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		utils.PrintError(err.Error())
		return
	}

	c.Println("Admin account created.")
}

// addCommands is a helper function that adds the given commands to the shell.
func addCommands(shell *ishell.Shell, commands []Command) {
	for _, command := range commands {
		shell.AddCmd(&ishell.Cmd{
			Name: command.Name,
			Help: "Command: " + command.Name,
			Func: command.Func,
		})
	}
}

// Execute is the main function that executes the shell.
// It welcomes the user, adds common and guest commands to the shell, and runs the shell.
func Execute() {
	shell.Println()
	figure.NewFigure("GoalMate", "basic", true).Print()
	shell.Println("Welcome to GoalMate -- the social goal tracker console. Type 'help' to see a list of commands.")

	addCommands(shell, commonCommands)
	addCommands(shell, guestCommands)

	shell.Run()
}
