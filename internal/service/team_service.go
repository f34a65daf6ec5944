package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/internal/membership"
	"github.com/mmynk/teamsync/internal/metrics"
	"github.com/mmynk/teamsync/internal/middleware"
	"github.com/mmynk/teamsync/pkg/rpc"
	"github.com/mmynk/teamsync/pkg/rpc/rpcconnect"
)

// TeamService implements the Connect TeamService.
type TeamService struct {
	rpcconnect.UnimplementedTeamServiceHandler
	members *membership.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewTeamService creates a TeamService. m may be nil.
func NewTeamService(members *membership.Service, m *metrics.Metrics, logger *slog.Logger) *TeamService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamService{members: members, metrics: m, logger: logger}
}

// CreateTeam creates a team owned by the caller.
func (s *TeamService) CreateTeam(ctx context.Context, req *connect.Request[rpc.CreateTeamRequest]) (*connect.Response[rpc.CreateTeamResponse], error) {
	s.logger.Debug("CreateTeam request received", "name", req.Msg.Name)

	team, err := s.members.CreateTeam(ctx, middleware.PrincipalFrom(ctx), req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.CreateTeamResponse{Team: toRPCTeam(team)}), nil
}

// JoinTeam adds the caller to a team. Joining one's own team fails with
// AlreadyExists, which clients treat as success.
func (s *TeamService) JoinTeam(ctx context.Context, req *connect.Request[rpc.JoinTeamRequest]) (*connect.Response[rpc.JoinTeamResponse], error) {
	s.logger.Debug("JoinTeam request received", "team_id", req.Msg.TeamID)

	team, err := s.members.JoinTeam(ctx, middleware.PrincipalFrom(ctx), req.Msg.TeamID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.JoinTeamResponse{Team: toRPCTeam(team)}), nil
}

// LeaveTeam removes the caller from their team.
func (s *TeamService) LeaveTeam(ctx context.Context, req *connect.Request[rpc.LeaveTeamRequest]) (*connect.Response[rpc.LeaveTeamResponse], error) {
	if err := s.members.LeaveTeam(ctx, middleware.PrincipalFrom(ctx)); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.LeaveTeamResponse{}), nil
}

// RemoveMember lets the owner remove another member.
func (s *TeamService) RemoveMember(ctx context.Context, req *connect.Request[rpc.RemoveMemberRequest]) (*connect.Response[rpc.RemoveMemberResponse], error) {
	s.logger.Debug("RemoveMember request received", "target_user_id", req.Msg.UserID)

	if err := s.members.RemoveMember(ctx, middleware.PrincipalFrom(ctx), req.Msg.UserID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.RemoveMemberResponse{}), nil
}

// TransferOwnership hands the caller's team to another member.
func (s *TeamService) TransferOwnership(ctx context.Context, req *connect.Request[rpc.TransferOwnershipRequest]) (*connect.Response[rpc.TransferOwnershipResponse], error) {
	team, err := s.members.TransferOwnership(ctx, middleware.PrincipalFrom(ctx), req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.TransferOwnershipResponse{Team: toRPCTeam(team)}), nil
}

// DisbandTeam deletes the caller's team.
func (s *TeamService) DisbandTeam(ctx context.Context, req *connect.Request[rpc.DisbandTeamRequest]) (*connect.Response[rpc.DisbandTeamResponse], error) {
	if err := s.members.DisbandTeam(ctx, middleware.PrincipalFrom(ctx)); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.DisbandTeamResponse{}), nil
}

// GetMyTeam returns the caller's team with member details.
func (s *TeamService) GetMyTeam(ctx context.Context, req *connect.Request[rpc.GetMyTeamRequest]) (*connect.Response[rpc.GetMyTeamResponse], error) {
	view, err := s.members.CurrentTeam(ctx, middleware.PrincipalFrom(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.GetMyTeamResponse{
		Team:    toRPCTeam(view.Team),
		Members: toRPCMembers(view.Members),
	}), nil
}

// WatchTeam streams the caller's team view until the team is disbanded or
// the caller leaves it.
func (s *TeamService) WatchTeam(ctx context.Context, req *connect.Request[rpc.WatchTeamRequest], stream *connect.ServerStream[rpc.WatchTeamResponse]) error {
	live, err := s.members.WatchTeam(ctx, middleware.PrincipalFrom(ctx))
	if err != nil {
		return toConnectError(err)
	}
	defer live.Close()
	defer s.metrics.Subscribed("team")()

	for view := range live.Updates() {
		err := stream.Send(&rpc.WatchTeamResponse{
			Team:    toRPCTeam(view.Team),
			Members: toRPCMembers(view.Members),
		})
		if err != nil {
			return err
		}
	}
	return toConnectError(live.Err())
}
