package service

import (
	"github.com/mmynk/teamsync/internal/membership"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/pkg/rpc"
)

func toRPCUser(u *models.User) *rpc.User {
	return &rpc.User{
		ID:         u.ID,
		Email:      u.Email,
		TeamID:     u.TeamID,
		LastActive: u.LastActive,
		CreatedAt:  u.CreatedAt,
	}
}

func toRPCTeam(t *models.Team) *rpc.Team {
	return &rpc.Team{
		ID:        t.ID,
		Name:      t.Name,
		OwnerID:   t.OwnerID,
		Members:   append([]string{}, t.Members...),
		CreatedAt: t.CreatedAt,
		Version:   t.Version,
	}
}

func toRPCMembers(members []membership.Member) []*rpc.Member {
	out := make([]*rpc.Member, len(members))
	for i, m := range members {
		out[i] = &rpc.Member{
			UserID:     m.UserID,
			Email:      m.Email,
			LastActive: m.LastActive,
			Owner:      m.Owner,
		}
	}
	return out
}

func toRPCSchedules(entries []*models.Schedule) []*rpc.Schedule {
	out := make([]*rpc.Schedule, len(entries))
	for i, s := range entries {
		out[i] = toRPCSchedule(s)
	}
	return out
}

func toRPCSchedule(s *models.Schedule) *rpc.Schedule {
	return &rpc.Schedule{
		ID:        s.ID,
		TeamID:    s.TeamID,
		Title:     s.Title,
		Date:      s.Date,
		DueTime:   s.DueTime,
		CreatorID: s.CreatorID,
		CreatedAt: s.CreatedAt,
	}
}
