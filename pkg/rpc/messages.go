// Package rpc holds the teamsync.v1 wire messages. Messages travel as JSON
// through Codec; the Connect bindings live in package rpcconnect.
package rpc

// User is the public view of an account.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	TeamID     string `json:"teamId,omitempty"`
	LastActive int64  `json:"lastActive"`
	CreatedAt  int64  `json:"createdAt"`
}

// Team is a team record.
type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	OwnerID   string   `json:"ownerId"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt"`
	Version   int64    `json:"version"`
}

// Member is one row of a team's member list.
type Member struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	LastActive int64  `json:"lastActive"`
	Owner      bool   `json:"owner,omitempty"`
}

// Schedule is one calendar entry.
type Schedule struct {
	ID        string `json:"id"`
	TeamID    string `json:"teamId"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	DueTime   string `json:"dueTime,omitempty"`
	CreatorID string `json:"creatorId"`
	CreatedAt int64  `json:"createdAt"`
}

// TeamService

type CreateTeamRequest struct {
	Name string `json:"name"`
}

type CreateTeamResponse struct {
	Team *Team `json:"team"`
}

type JoinTeamRequest struct {
	TeamID string `json:"teamId"`
}

type JoinTeamResponse struct {
	Team *Team `json:"team"`
}

type LeaveTeamRequest struct{}

type LeaveTeamResponse struct{}

type RemoveMemberRequest struct {
	UserID string `json:"userId"`
}

type RemoveMemberResponse struct{}

type TransferOwnershipRequest struct {
	UserID string `json:"userId"`
}

type TransferOwnershipResponse struct {
	Team *Team `json:"team"`
}

type DisbandTeamRequest struct{}

type DisbandTeamResponse struct{}

type GetMyTeamRequest struct{}

type GetMyTeamResponse struct {
	Team    *Team     `json:"team"`
	Members []*Member `json:"members"`
}

type WatchTeamRequest struct{}

type WatchTeamResponse struct {
	Team    *Team     `json:"team"`
	Members []*Member `json:"members"`
}

// ScheduleService

type AddScheduleRequest struct {
	TeamID  string `json:"teamId"`
	Title   string `json:"title"`
	Date    string `json:"date"`
	DueTime string `json:"dueTime,omitempty"`
}

type AddScheduleResponse struct {
	Schedule *Schedule `json:"schedule"`
}

type DeleteScheduleRequest struct {
	ScheduleID string `json:"scheduleId"`
}

type DeleteScheduleResponse struct{}

// ListSchedulesRequest lists a team's calendar. Date is optional.
type ListSchedulesRequest struct {
	TeamID string `json:"teamId"`
	Date   string `json:"date,omitempty"`
}

type ListSchedulesResponse struct {
	Schedules []*Schedule `json:"schedules"`
}

// WatchSchedulesRequest opens the live calendar. Date is optional and
// filters every snapshot.
type WatchSchedulesRequest struct {
	TeamID string `json:"teamId"`
	Date   string `json:"date,omitempty"`
}

// WatchSchedulesResponse is one complete snapshot.
type WatchSchedulesResponse struct {
	TeamID    string      `json:"teamId"`
	Schedules []*Schedule `json:"schedules"`
}

// AuthService

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type LogoutRequest struct{}

type LogoutResponse struct{}

type GetCurrentUserRequest struct{}

type GetCurrentUserResponse struct {
	User *User `json:"user"`
}

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	LastActive int64 `json:"lastActive"`
}
