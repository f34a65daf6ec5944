package membership

import (
	"context"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/errors"
	"github.com/mmynk/teamsync/internal/feed"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
)

// Member is the detail row shown for one team member.
type Member struct {
	UserID     string
	Email      string
	LastActive int64
	Owner      bool
}

// TeamView is a team with its member details, read in one transaction.
type TeamView struct {
	Team    *models.Team
	Members []Member
}

// CurrentTeam returns p's team with member details.
func (s *Service) CurrentTeam(ctx context.Context, p auth.Principal) (*TeamView, error) {
	const op = "membership.CurrentTeam"
	if err := requireAuth(op, p); err != nil {
		return nil, err
	}

	var view *TeamView
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, team, err := currentTeam(ctx, tx, op, p)
		if err != nil {
			return err
		}
		view, err = loadView(ctx, tx, team)
		return err
	})
	if err != nil {
		return nil, errors.Classify(op, err)
	}
	return view, nil
}

// WatchTeam is a live view of p's current team. It delivers the full view
// now and again whenever the team or a member's record changes. The stream
// ends with a NotFound error when the team is disbanded and with a
// NotAMember error when p leaves or is removed.
func (s *Service) WatchTeam(ctx context.Context, p auth.Principal) (*feed.Stream[*TeamView], error) {
	const op = "membership.WatchTeam"
	if s.broker == nil {
		return nil, errors.New(errors.KindUnavailable, op, "live views are not configured")
	}
	initial, err := s.CurrentTeam(ctx, p)
	if err != nil {
		return nil, err
	}
	teamID := initial.Team.ID

	sub := s.broker.Subscribe(feed.TeamTopic(teamID))
	return feed.Watch(ctx, sub, func(ctx context.Context) (*TeamView, error) {
		var view *TeamView
		err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			team, err := tx.GetTeam(ctx, teamID)
			if errors.Is(err, storage.ErrNotFound) {
				return &errors.Error{Kind: errors.KindNotFound, Op: op, Msg: "team was disbanded", Err: err}
			}
			if err != nil {
				return err
			}
			if !team.HasMember(p.ID) {
				return errors.New(errors.KindNotAMember, op, "no longer a member of this team")
			}
			view, err = loadView(ctx, tx, team)
			return err
		})
		if err != nil {
			return nil, errors.Classify(op, err)
		}
		return view, nil
	}), nil
}

// loadView batches the member lookups into one read keyed by the member set.
func loadView(ctx context.Context, r storage.Reader, team *models.Team) (*TeamView, error) {
	users, err := r.GetUsersByIDs(ctx, team.Members)
	if err != nil {
		return nil, err
	}
	view := &TeamView{Team: team, Members: make([]Member, 0, len(team.Members))}
	for _, id := range team.Members {
		m := Member{UserID: id, Owner: team.IsOwner(id)}
		if u, ok := users[id]; ok {
			m.Email = u.Email
			m.LastActive = u.LastActive
		}
		view.Members = append(view.Members, m)
	}
	return view, nil
}
