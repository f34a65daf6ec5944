package membership

import (
	"context"
	"fmt"

	"github.com/mmynk/teamsync/internal/errors"
	"github.com/mmynk/teamsync/internal/storage"
)

// CheckInvariants verifies the membership invariants for the given teams
// and users:
//   - an existing team has a non-empty member set without duplicates that
//     contains its owner
//   - every listed member's record points back at the team
//   - a user's TeamID references an existing team that lists the user
//
// Missing teams are skipped. Every violation found is returned, joined.
func CheckInvariants(ctx context.Context, r storage.Reader, teamIDs, userIDs []string) error {
	var errs []error
	for _, id := range teamIDs {
		team, err := r.GetTeam(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if len(team.Members) == 0 {
			errs = append(errs, fmt.Errorf("team %s has no members", id))
		}
		if !team.HasMember(team.OwnerID) {
			errs = append(errs, fmt.Errorf("team %s owner %s is not a member", id, team.OwnerID))
		}
		seen := make(map[string]bool, len(team.Members))
		for _, m := range team.Members {
			if seen[m] {
				errs = append(errs, fmt.Errorf("team %s lists %s twice", id, m))
			}
			seen[m] = true
		}
		users, err := r.GetUsersByIDs(ctx, team.Members)
		if err != nil {
			return err
		}
		for _, m := range team.Members {
			u, ok := users[m]
			if !ok {
				errs = append(errs, fmt.Errorf("team %s lists unknown user %s", id, m))
				continue
			}
			if u.TeamID != id {
				errs = append(errs, fmt.Errorf("team %s lists %s whose team is %q", id, m, u.TeamID))
			}
		}
	}

	users, err := r.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return err
	}
	for _, id := range userIDs {
		u, ok := users[id]
		if !ok || u.TeamID == "" {
			continue
		}
		team, err := r.GetTeam(ctx, u.TeamID)
		if errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("user %s references missing team %s", id, u.TeamID))
			continue
		}
		if err != nil {
			return err
		}
		if !team.HasMember(id) {
			errs = append(errs, fmt.Errorf("user %s references team %s which does not list them", id, u.TeamID))
		}
	}
	return errors.Join(errs...)
}
