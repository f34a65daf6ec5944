// Package membership owns team creation, joining, leaving and member
// removal.
//
// Every operation that touches a Team and a User record does so inside one
// storage transaction, so User.TeamID and Team.Members always agree once the
// transaction commits. Joins to the same team are serialized by the team's
// version: concurrent writers conflict and the store retries them, so no
// join is ever lost.
package membership

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/errors"
	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
)

// MaxTeamNameLength bounds team names, in runes.
const MaxTeamNameLength = 64

// Service implements the membership operations.
type Service struct {
	store  storage.Store
	broker *feed.Broker
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. broker backs WatchTeam and may be nil when
// live views are not needed.
func NewService(store storage.Store, broker *feed.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		broker: broker,
		logger: logger,
		now:    time.Now,
	}
}

// ValidateTeamName trims name and checks it is usable.
func ValidateTeamName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New(errors.KindValidation, op, "team name is required")
	}
	if utf8.RuneCountInString(name) > MaxTeamNameLength {
		return "", errors.Newf(errors.KindValidation, op, "team name must be at most %d characters", MaxTeamNameLength)
	}
	return name, nil
}

func requireAuth(op string, p auth.Principal) error {
	if !p.Authenticated() {
		return errors.New(errors.KindPermission, op, "authentication required")
	}
	return nil
}

// CreateTeam creates a team owned by p with p as its only member. If p
// already belongs to a team it leaves that team first, under the same rules
// as LeaveTeam, in the same transaction.
func (s *Service) CreateTeam(ctx context.Context, p auth.Principal, name string) (*models.Team, error) {
	const op = "membership.CreateTeam"
	name, err := ValidateTeamName(op, name)
	if err != nil {
		return nil, err
	}
	if err := requireAuth(op, p); err != nil {
		return nil, err
	}

	var created *models.Team
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		now := s.now().Unix()
		user, err := ensureUser(ctx, tx, p, now)
		if err != nil {
			return err
		}
		if err := detach(ctx, tx, op, user); err != nil {
			return err
		}

		team := &models.Team{
			ID:        uuid.NewString(),
			Name:      name,
			OwnerID:   p.ID,
			Members:   []string{p.ID},
			CreatedAt: now,
		}
		if err := tx.CreateTeam(ctx, team); err != nil {
			return err
		}
		user.TeamID = team.ID
		if err := tx.PutUser(ctx, user); err != nil {
			return err
		}
		created = team
		return nil
	})
	if err != nil {
		return nil, errors.Classify(op, err)
	}

	s.logger.Info("team created", "team_id", created.ID, "user_id", p.ID, "name", created.Name)
	return created, nil
}

// JoinTeam adds p to the team. A principal whose record already points at
// the team gets an AlreadyMember error and nothing changes. A principal in
// another team leaves it first, under the rules of LeaveTeam.
func (s *Service) JoinTeam(ctx context.Context, p auth.Principal, teamID string) (*models.Team, error) {
	const op = "membership.JoinTeam"
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, errors.New(errors.KindValidation, op, "team id is required")
	}
	if err := requireAuth(op, p); err != nil {
		return nil, err
	}

	var joined *models.Team
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		team, err := tx.GetTeam(ctx, teamID)
		if errors.Is(err, storage.ErrNotFound) {
			return &errors.Error{Kind: errors.KindNotFound, Op: op, Msg: "team not found", Err: err}
		}
		if err != nil {
			return err
		}
		user, err := ensureUser(ctx, tx, p, s.now().Unix())
		if err != nil {
			return err
		}
		if user.TeamID == teamID {
			return errors.New(errors.KindAlreadyMember, op, "already a member of this team")
		}
		if err := detach(ctx, tx, op, user); err != nil {
			return err
		}

		// Set semantics: a stale listing of p is not duplicated. The update
		// still goes through the version check so concurrent joins serialize.
		team.AddMember(p.ID)
		if err := tx.UpdateTeam(ctx, team); err != nil {
			return err
		}
		user.TeamID = teamID
		if err := tx.PutUser(ctx, user); err != nil {
			return err
		}
		joined = team
		return nil
	})
	if err != nil {
		return nil, errors.Classify(op, err)
	}

	s.logger.Info("team joined", "team_id", teamID, "user_id", p.ID, "members", len(joined.Members))
	return joined, nil
}

// LeaveTeam removes p from their team. The owner cannot leave, and the
// owner check comes before the last-member check.
func (s *Service) LeaveTeam(ctx context.Context, p auth.Principal) error {
	const op = "membership.LeaveTeam"
	if err := requireAuth(op, p); err != nil {
		return err
	}

	var teamID string
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		user, team, err := currentTeam(ctx, tx, op, p)
		if err != nil {
			return err
		}
		if err := leave(ctx, tx, op, user, team); err != nil {
			return err
		}
		teamID = team.ID
		return tx.PutUser(ctx, user)
	})
	if err != nil {
		return errors.Classify(op, err)
	}

	s.logger.Info("team left", "team_id", teamID, "user_id", p.ID)
	return nil
}

// RemoveMember lets the owner remove another member. The target's TeamID
// is cleared only if it still points at this team.
func (s *Service) RemoveMember(ctx context.Context, p auth.Principal, targetUserID string) error {
	const op = "membership.RemoveMember"
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return errors.New(errors.KindValidation, op, "target user id is required")
	}
	if err := requireAuth(op, p); err != nil {
		return err
	}

	var teamID string
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, team, err := currentTeam(ctx, tx, op, p)
		if err != nil {
			return err
		}
		if !team.IsOwner(p.ID) {
			return errors.New(errors.KindPermission, op, "only the team owner can remove members")
		}
		if targetUserID == p.ID {
			return errors.New(errors.KindSelfRemoval, op, "the owner cannot remove themselves")
		}
		if !team.RemoveMember(targetUserID) {
			return errors.New(errors.KindNotAMember, op, "target is not a member of this team")
		}
		if err := tx.UpdateTeam(ctx, team); err != nil {
			return err
		}

		target, err := tx.GetUser(ctx, targetUserID)
		if errors.Is(err, storage.ErrNotFound) {
			teamID = team.ID
			return nil
		}
		if err != nil {
			return err
		}
		if target.TeamID == team.ID {
			target.TeamID = ""
			if err := tx.PutUser(ctx, target); err != nil {
				return err
			}
		}
		teamID = team.ID
		return nil
	})
	if err != nil {
		return errors.Classify(op, err)
	}

	s.logger.Info("member removed", "team_id", teamID, "user_id", p.ID, "target_user_id", targetUserID)
	return nil
}

// TransferOwnership hands the team to another current member. Transferring
// to oneself is a no-op.
func (s *Service) TransferOwnership(ctx context.Context, p auth.Principal, newOwnerID string) (*models.Team, error) {
	const op = "membership.TransferOwnership"
	newOwnerID = strings.TrimSpace(newOwnerID)
	if newOwnerID == "" {
		return nil, errors.New(errors.KindValidation, op, "new owner id is required")
	}
	if err := requireAuth(op, p); err != nil {
		return nil, err
	}

	var updated *models.Team
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, team, err := currentTeam(ctx, tx, op, p)
		if err != nil {
			return err
		}
		if !team.IsOwner(p.ID) {
			return errors.New(errors.KindPermission, op, "only the team owner can transfer ownership")
		}
		if newOwnerID == p.ID {
			updated = team
			return nil
		}
		if !team.HasMember(newOwnerID) {
			return errors.New(errors.KindNotAMember, op, "new owner is not a member of this team")
		}
		team.OwnerID = newOwnerID
		if err := tx.UpdateTeam(ctx, team); err != nil {
			return err
		}
		updated = team
		return nil
	})
	if err != nil {
		return nil, errors.Classify(op, err)
	}

	s.logger.Info("ownership transferred", "team_id", updated.ID, "user_id", p.ID, "owner_id", updated.OwnerID)
	return updated, nil
}

// DisbandTeam deletes the owner's team. Every member is detached and the
// team's schedules are deleted with it, in one transaction.
func (s *Service) DisbandTeam(ctx context.Context, p auth.Principal) error {
	const op = "membership.DisbandTeam"
	if err := requireAuth(op, p); err != nil {
		return err
	}

	var disbanded *models.Team
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, team, err := currentTeam(ctx, tx, op, p)
		if err != nil {
			return err
		}
		if !team.IsOwner(p.ID) {
			return errors.New(errors.KindPermission, op, "only the team owner can disband the team")
		}

		users, err := tx.GetUsersByIDs(ctx, team.Members)
		if err != nil {
			return err
		}
		for _, id := range team.Members {
			u, ok := users[id]
			if !ok || u.TeamID != team.ID {
				continue
			}
			u.TeamID = ""
			if err := tx.PutUser(ctx, u); err != nil {
				return err
			}
		}
		if err := tx.DeleteTeam(ctx, team.ID); err != nil {
			return err
		}
		disbanded = team
		return nil
	})
	if err != nil {
		return errors.Classify(op, err)
	}

	s.logger.Info("team disbanded", "team_id", disbanded.ID, "user_id", p.ID, "members", len(disbanded.Members))
	return nil
}

// ensureUser returns p's record, or a fresh unsaved one when the identity
// provider knows p but the store does not yet.
func ensureUser(ctx context.Context, tx storage.Tx, p auth.Principal, now int64) (*models.User, error) {
	user, err := tx.GetUser(ctx, p.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.User{ID: p.ID, Email: p.Email, LastActive: now, CreatedAt: now}, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// currentTeam loads p's user record and the team it belongs to.
func currentTeam(ctx context.Context, tx storage.Tx, op string, p auth.Principal) (*models.User, *models.Team, error) {
	notMember := errors.New(errors.KindNotAMember, op, "not a member of any team")

	user, err := tx.GetUser(ctx, p.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, notMember
	}
	if err != nil {
		return nil, nil, err
	}
	if user.TeamID == "" {
		return nil, nil, notMember
	}
	team, err := tx.GetTeam(ctx, user.TeamID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, notMember
	}
	if err != nil {
		return nil, nil, err
	}
	if !team.HasMember(p.ID) {
		return nil, nil, notMember
	}
	return user, team, nil
}

// leave applies the LeaveTeam rules and removes user from team. The caller
// persists user.
func leave(ctx context.Context, tx storage.Tx, op string, user *models.User, team *models.Team) error {
	if team.IsOwner(user.ID) {
		return errors.New(errors.KindOwnerCannotLeave, op, "the team owner cannot leave")
	}
	if len(team.Members) == 1 {
		return errors.New(errors.KindLastMember, op, "the last member cannot leave")
	}
	team.RemoveMember(user.ID)
	if err := tx.UpdateTeam(ctx, team); err != nil {
		return err
	}
	user.TeamID = ""
	return nil
}

// detach takes user out of their current team before they move to another
// one. References to missing teams, or teams that no longer list the user,
// are simply cleared.
func detach(ctx context.Context, tx storage.Tx, op string, user *models.User) error {
	if user.TeamID == "" {
		return nil
	}
	team, err := tx.GetTeam(ctx, user.TeamID)
	if errors.Is(err, storage.ErrNotFound) {
		user.TeamID = ""
		return nil
	}
	if err != nil {
		return err
	}
	if !team.HasMember(user.ID) {
		user.TeamID = ""
		return nil
	}
	return leave(ctx, tx, op, user, team)
}
