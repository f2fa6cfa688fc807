package handlers

import (
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goalmate/backend/backend/models"
)

// userSummary is the public identity shape embedded in goal responses.
type userSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

type subTaskView struct {
	ID                   string      `json:"id"`
	Title                string      `json:"title"`
	Description          string      `json:"description,omitempty"`
	AssignedTo           userSummary `json:"assignedTo"`
	Status               string      `json:"status"`
	StartValue           float64     `json:"startValue"`
	EndValue             float64     `json:"endValue"`
	CompletionPercentage float64     `json:"completionPercentage"`
}

type individualProgressView struct {
	User                 userSummary `json:"user"`
	CompletionPercentage float64     `json:"completionPercentage"`
	TotalProgress        float64     `json:"totalProgress"`
	LastUpdated          time.Time   `json:"lastUpdated"`
}

// goalView is the wire shape of a goal: the raw aggregate with contributor
// object ids resolved into display identities.
type goalView struct {
	*models.Goal
	Creator            userSummary              `json:"creator"`
	ParticipantUsers   []userSummary            `json:"participantUsers"`
	SubTaskViews       []subTaskView            `json:"subTaskViews,omitempty"`
	IndividualProgress []individualProgressView `json:"individualProgressViews,omitempty"`
	Overdue            bool                     `json:"overdue"`
}

// resolveUsers fetches display identities for the given ids. Unknown ids
// (deleted accounts) resolve to a bare id with no name.
func resolveUsers(r *http.Request, ids []primitive.ObjectID) (map[primitive.ObjectID]userSummary, error) {
	out := make(map[primitive.ObjectID]userSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	users, err := store.FindUsersByIDs(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = userSummary{ID: u.ID.Hex(), Name: u.Name, ProfilePicture: u.ProfilePicture}
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = userSummary{ID: id.Hex()}
		}
	}
	return out, nil
}

// projectGoal resolves every user id referenced by the goal and assembles
// the response view.
func projectGoal(r *http.Request, goal *models.Goal) (*goalView, error) {
	ids := goal.Contributors()
	for i := range goal.SubTasks {
		ids = append(ids, goal.SubTasks[i].AssignedTo)
	}
	for i := range goal.IndividualProgress {
		ids = append(ids, goal.IndividualProgress[i].UserID)
	}
	identities, err := resolveUsers(r, ids)
	if err != nil {
		return nil, err
	}

	view := &goalView{
		Goal:    goal,
		Creator: identities[goal.CreatedBy],
		Overdue: goal.IsOverdue(time.Now()),
	}

	view.ParticipantUsers = make([]userSummary, 0, len(goal.Participants))
	for _, id := range goal.Participants {
		view.ParticipantUsers = append(view.ParticipantUsers, identities[id])
	}

	for i := range goal.SubTasks {
		st := &goal.SubTasks[i]
		view.SubTaskViews = append(view.SubTaskViews, subTaskView{
			ID:                   st.ID.Hex(),
			Title:                st.Title,
			Description:          st.Description,
			AssignedTo:           identities[st.AssignedTo],
			Status:               string(st.Status),
			StartValue:           st.StartValue,
			EndValue:             st.EndValue,
			CompletionPercentage: st.CompletionPercentage,
		})
	}

	for i := range goal.IndividualProgress {
		ip := &goal.IndividualProgress[i]
		view.IndividualProgress = append(view.IndividualProgress, individualProgressView{
			User:                 identities[ip.UserID],
			CompletionPercentage: ip.CompletionPercentage,
			TotalProgress:        ip.TotalProgress,
			LastUpdated:          ip.LastUpdated,
		})
	}

	return view, nil
}

// projectGoals assembles views for a list of goals.
func projectGoals(r *http.Request, goals []models.Goal) ([]*goalView, error) {
	views := make([]*goalView, 0, len(goals))
	for i := range goals {
		view, err := projectGoal(r, &goals[i])
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}
