// Package rpcconnect binds the teamsync.v1 services to Connect. It follows
// the layout of protoc-gen-connect-go output: procedure constants, client
// and handler interfaces, constructors and Unimplemented handlers.
package rpcconnect

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/pkg/rpc"
)

// TeamServiceName is the fully-qualified name of the TeamService service.
const TeamServiceName = "teamsync.v1.TeamService"

const (
	TeamServiceCreateTeamProcedure        = "/teamsync.v1.TeamService/CreateTeam"
	TeamServiceJoinTeamProcedure          = "/teamsync.v1.TeamService/JoinTeam"
	TeamServiceLeaveTeamProcedure         = "/teamsync.v1.TeamService/LeaveTeam"
	TeamServiceRemoveMemberProcedure      = "/teamsync.v1.TeamService/RemoveMember"
	TeamServiceTransferOwnershipProcedure = "/teamsync.v1.TeamService/TransferOwnership"
	TeamServiceDisbandTeamProcedure       = "/teamsync.v1.TeamService/DisbandTeam"
	TeamServiceGetMyTeamProcedure         = "/teamsync.v1.TeamService/GetMyTeam"
	TeamServiceWatchTeamProcedure         = "/teamsync.v1.TeamService/WatchTeam"
)

// TeamServiceClient is a client for the teamsync.v1.TeamService service.
type TeamServiceClient interface {
	CreateTeam(context.Context, *connect.Request[rpc.CreateTeamRequest]) (*connect.Response[rpc.CreateTeamResponse], error)
	JoinTeam(context.Context, *connect.Request[rpc.JoinTeamRequest]) (*connect.Response[rpc.JoinTeamResponse], error)
	LeaveTeam(context.Context, *connect.Request[rpc.LeaveTeamRequest]) (*connect.Response[rpc.LeaveTeamResponse], error)
	RemoveMember(context.Context, *connect.Request[rpc.RemoveMemberRequest]) (*connect.Response[rpc.RemoveMemberResponse], error)
	TransferOwnership(context.Context, *connect.Request[rpc.TransferOwnershipRequest]) (*connect.Response[rpc.TransferOwnershipResponse], error)
	DisbandTeam(context.Context, *connect.Request[rpc.DisbandTeamRequest]) (*connect.Response[rpc.DisbandTeamResponse], error)
	GetMyTeam(context.Context, *connect.Request[rpc.GetMyTeamRequest]) (*connect.Response[rpc.GetMyTeamResponse], error)
	WatchTeam(context.Context, *connect.Request[rpc.WatchTeamRequest]) (*connect.ServerStreamForClient[rpc.WatchTeamResponse], error)
}

// NewTeamServiceClient constructs a client for the teamsync.v1.TeamService
// service. The JSON codec is always used.
func NewTeamServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) TeamServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(rpc.Codec{})}, opts...)
	return &teamServiceClient{
		createTeam:        connect.NewClient[rpc.CreateTeamRequest, rpc.CreateTeamResponse](httpClient, baseURL+TeamServiceCreateTeamProcedure, opts...),
		joinTeam:          connect.NewClient[rpc.JoinTeamRequest, rpc.JoinTeamResponse](httpClient, baseURL+TeamServiceJoinTeamProcedure, opts...),
		leaveTeam:         connect.NewClient[rpc.LeaveTeamRequest, rpc.LeaveTeamResponse](httpClient, baseURL+TeamServiceLeaveTeamProcedure, opts...),
		removeMember:      connect.NewClient[rpc.RemoveMemberRequest, rpc.RemoveMemberResponse](httpClient, baseURL+TeamServiceRemoveMemberProcedure, opts...),
		transferOwnership: connect.NewClient[rpc.TransferOwnershipRequest, rpc.TransferOwnershipResponse](httpClient, baseURL+TeamServiceTransferOwnershipProcedure, opts...),
		disbandTeam:       connect.NewClient[rpc.DisbandTeamRequest, rpc.DisbandTeamResponse](httpClient, baseURL+TeamServiceDisbandTeamProcedure, opts...),
		getMyTeam:         connect.NewClient[rpc.GetMyTeamRequest, rpc.GetMyTeamResponse](httpClient, baseURL+TeamServiceGetMyTeamProcedure, opts...),
		watchTeam:         connect.NewClient[rpc.WatchTeamRequest, rpc.WatchTeamResponse](httpClient, baseURL+TeamServiceWatchTeamProcedure, opts...),
	}
}

type teamServiceClient struct {
	createTeam        *connect.Client[rpc.CreateTeamRequest, rpc.CreateTeamResponse]
	joinTeam          *connect.Client[rpc.JoinTeamRequest, rpc.JoinTeamResponse]
	leaveTeam         *connect.Client[rpc.LeaveTeamRequest, rpc.LeaveTeamResponse]
	removeMember      *connect.Client[rpc.RemoveMemberRequest, rpc.RemoveMemberResponse]
	transferOwnership *connect.Client[rpc.TransferOwnershipRequest, rpc.TransferOwnershipResponse]
	disbandTeam       *connect.Client[rpc.DisbandTeamRequest, rpc.DisbandTeamResponse]
	getMyTeam         *connect.Client[rpc.GetMyTeamRequest, rpc.GetMyTeamResponse]
	watchTeam         *connect.Client[rpc.WatchTeamRequest, rpc.WatchTeamResponse]
}

func (c *teamServiceClient) CreateTeam(ctx context.Context, req *connect.Request[rpc.CreateTeamRequest]) (*connect.Response[rpc.CreateTeamResponse], error) {
	return c.createTeam.CallUnary(ctx, req)
}

func (c *teamServiceClient) JoinTeam(ctx context.Context, req *connect.Request[rpc.JoinTeamRequest]) (*connect.Response[rpc.JoinTeamResponse], error) {
	return c.joinTeam.CallUnary(ctx, req)
}

func (c *teamServiceClient) LeaveTeam(ctx context.Context, req *connect.Request[rpc.LeaveTeamRequest]) (*connect.Response[rpc.LeaveTeamResponse], error) {
	return c.leaveTeam.CallUnary(ctx, req)
}

func (c *teamServiceClient) RemoveMember(ctx context.Context, req *connect.Request[rpc.RemoveMemberRequest]) (*connect.Response[rpc.RemoveMemberResponse], error) {
	return c.removeMember.CallUnary(ctx, req)
}

func (c *teamServiceClient) TransferOwnership(ctx context.Context, req *connect.Request[rpc.TransferOwnershipRequest]) (*connect.Response[rpc.TransferOwnershipResponse], error) {
	return c.transferOwnership.CallUnary(ctx, req)
}

func (c *teamServiceClient) DisbandTeam(ctx context.Context, req *connect.Request[rpc.DisbandTeamRequest]) (*connect.Response[rpc.DisbandTeamResponse], error) {
	return c.disbandTeam.CallUnary(ctx, req)
}

func (c *teamServiceClient) GetMyTeam(ctx context.Context, req *connect.Request[rpc.GetMyTeamRequest]) (*connect.Response[rpc.GetMyTeamResponse], error) {
	return c.getMyTeam.CallUnary(ctx, req)
}

func (c *teamServiceClient) WatchTeam(ctx context.Context, req *connect.Request[rpc.WatchTeamRequest]) (*connect.ServerStreamForClient[rpc.WatchTeamResponse], error) {
	return c.watchTeam.CallServerStream(ctx, req)
}

// TeamServiceHandler is an implementation of the teamsync.v1.TeamService
// service.
type TeamServiceHandler interface {
	CreateTeam(context.Context, *connect.Request[rpc.CreateTeamRequest]) (*connect.Response[rpc.CreateTeamResponse], error)
	JoinTeam(context.Context, *connect.Request[rpc.JoinTeamRequest]) (*connect.Response[rpc.JoinTeamResponse], error)
	LeaveTeam(context.Context, *connect.Request[rpc.LeaveTeamRequest]) (*connect.Response[rpc.LeaveTeamResponse], error)
	RemoveMember(context.Context, *connect.Request[rpc.RemoveMemberRequest]) (*connect.Response[rpc.RemoveMemberResponse], error)
	TransferOwnership(context.Context, *connect.Request[rpc.TransferOwnershipRequest]) (*connect.Response[rpc.TransferOwnershipResponse], error)
	DisbandTeam(context.Context, *connect.Request[rpc.DisbandTeamRequest]) (*connect.Response[rpc.DisbandTeamResponse], error)
	GetMyTeam(context.Context, *connect.Request[rpc.GetMyTeamRequest]) (*connect.Response[rpc.GetMyTeamResponse], error)
	WatchTeam(context.Context, *connect.Request[rpc.WatchTeamRequest], *connect.ServerStream[rpc.WatchTeamResponse]) error
}

// NewTeamServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewTeamServiceHandler(svc TeamServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(rpc.Codec{})}, opts...)
	createTeam := connect.NewUnaryHandler(TeamServiceCreateTeamProcedure, svc.CreateTeam, opts...)
	joinTeam := connect.NewUnaryHandler(TeamServiceJoinTeamProcedure, svc.JoinTeam, opts...)
	leaveTeam := connect.NewUnaryHandler(TeamServiceLeaveTeamProcedure, svc.LeaveTeam, opts...)
	removeMember := connect.NewUnaryHandler(TeamServiceRemoveMemberProcedure, svc.RemoveMember, opts...)
	transferOwnership := connect.NewUnaryHandler(TeamServiceTransferOwnershipProcedure, svc.TransferOwnership, opts...)
	disbandTeam := connect.NewUnaryHandler(TeamServiceDisbandTeamProcedure, svc.DisbandTeam, opts...)
	getMyTeam := connect.NewUnaryHandler(TeamServiceGetMyTeamProcedure, svc.GetMyTeam, opts...)
	watchTeam := connect.NewServerStreamHandler(TeamServiceWatchTeamProcedure, svc.WatchTeam, opts...)
	return "/" + TeamServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case TeamServiceCreateTeamProcedure:
			createTeam.ServeHTTP(w, r)
		case TeamServiceJoinTeamProcedure:
			joinTeam.ServeHTTP(w, r)
		case TeamServiceLeaveTeamProcedure:
			leaveTeam.ServeHTTP(w, r)
		case TeamServiceRemoveMemberProcedure:
			removeMember.ServeHTTP(w, r)
		case TeamServiceTransferOwnershipProcedure:
			transferOwnership.ServeHTTP(w, r)
		case TeamServiceDisbandTeamProcedure:
			disbandTeam.ServeHTTP(w, r)
		case TeamServiceGetMyTeamProcedure:
			getMyTeam.ServeHTTP(w, r)
		case TeamServiceWatchTeamProcedure:
			watchTeam.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// UnimplementedTeamServiceHandler returns CodeUnimplemented from all methods.
type UnimplementedTeamServiceHandler struct{}

func (UnimplementedTeamServiceHandler) CreateTeam(context.Context, *connect.Request[rpc.CreateTeamRequest]) (*connect.Response[rpc.CreateTeamResponse], error) {
	return nil, unimplemented(TeamServiceCreateTeamProcedure)
}

func (UnimplementedTeamServiceHandler) JoinTeam(context.Context, *connect.Request[rpc.JoinTeamRequest]) (*connect.Response[rpc.JoinTeamResponse], error) {
	return nil, unimplemented(TeamServiceJoinTeamProcedure)
}

func (UnimplementedTeamServiceHandler) LeaveTeam(context.Context, *connect.Request[rpc.LeaveTeamRequest]) (*connect.Response[rpc.LeaveTeamResponse], error) {
	return nil, unimplemented(TeamServiceLeaveTeamProcedure)
}

func (UnimplementedTeamServiceHandler) RemoveMember(context.Context, *connect.Request[rpc.RemoveMemberRequest]) (*connect.Response[rpc.RemoveMemberResponse], error) {
	return nil, unimplemented(TeamServiceRemoveMemberProcedure)
}

func (UnimplementedTeamServiceHandler) TransferOwnership(context.Context, *connect.Request[rpc.TransferOwnershipRequest]) (*connect.Response[rpc.TransferOwnershipResponse], error) {
	return nil, unimplemented(TeamServiceTransferOwnershipProcedure)
}

func (UnimplementedTeamServiceHandler) DisbandTeam(context.Context, *connect.Request[rpc.DisbandTeamRequest]) (*connect.Response[rpc.DisbandTeamResponse], error) {
	return nil, unimplemented(TeamServiceDisbandTeamProcedure)
}

func (UnimplementedTeamServiceHandler) GetMyTeam(context.Context, *connect.Request[rpc.GetMyTeamRequest]) (*connect.Response[rpc.GetMyTeamResponse], error) {
	return nil, unimplemented(TeamServiceGetMyTeamProcedure)
}

func (UnimplementedTeamServiceHandler) WatchTeam(context.Context, *connect.Request[rpc.WatchTeamRequest], *connect.ServerStream[rpc.WatchTeamResponse]) error {
	return unimplemented(TeamServiceWatchTeamProcedure)
}

func unimplemented(procedure string) error {
	name := strings.ReplaceAll(strings.TrimPrefix(procedure, "/"), "/", ".")
	return connect.NewError(connect.CodeUnimplemented, errors.New(name+" is not implemented"))
}
