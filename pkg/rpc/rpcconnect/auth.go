package rpcconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/pkg/rpc"
)

// AuthServiceName is the fully-qualified name of the AuthService service.
const AuthServiceName = "teamsync.v1.AuthService"

const (
	AuthServiceRegisterProcedure       = "/teamsync.v1.AuthService/Register"
	AuthServiceLoginProcedure          = "/teamsync.v1.AuthService/Login"
	AuthServiceLogoutProcedure         = "/teamsync.v1.AuthService/Logout"
	AuthServiceGetCurrentUserProcedure = "/teamsync.v1.AuthService/GetCurrentUser"
	AuthServiceHeartbeatProcedure      = "/teamsync.v1.AuthService/Heartbeat"
)

// PublicProcedures can be called without a token.
var PublicProcedures = []string{
	AuthServiceRegisterProcedure,
	AuthServiceLoginProcedure,
}

// AuthServiceClient is a client for the teamsync.v1.AuthService service.
type AuthServiceClient interface {
	Register(context.Context, *connect.Request[rpc.RegisterRequest]) (*connect.Response[rpc.RegisterResponse], error)
	Login(context.Context, *connect.Request[rpc.LoginRequest]) (*connect.Response[rpc.LoginResponse], error)
	Logout(context.Context, *connect.Request[rpc.LogoutRequest]) (*connect.Response[rpc.LogoutResponse], error)
	GetCurrentUser(context.Context, *connect.Request[rpc.GetCurrentUserRequest]) (*connect.Response[rpc.GetCurrentUserResponse], error)
	Heartbeat(context.Context, *connect.Request[rpc.HeartbeatRequest]) (*connect.Response[rpc.HeartbeatResponse], error)
}

// NewAuthServiceClient constructs a client for the teamsync.v1.AuthService
// service.
func NewAuthServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) AuthServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(rpc.Codec{})}, opts...)
	return &authServiceClient{
		register:       connect.NewClient[rpc.RegisterRequest, rpc.RegisterResponse](httpClient, baseURL+AuthServiceRegisterProcedure, opts...),
		login:          connect.NewClient[rpc.LoginRequest, rpc.LoginResponse](httpClient, baseURL+AuthServiceLoginProcedure, opts...),
		logout:         connect.NewClient[rpc.LogoutRequest, rpc.LogoutResponse](httpClient, baseURL+AuthServiceLogoutProcedure, opts...),
		getCurrentUser: connect.NewClient[rpc.GetCurrentUserRequest, rpc.GetCurrentUserResponse](httpClient, baseURL+AuthServiceGetCurrentUserProcedure, opts...),
		heartbeat:      connect.NewClient[rpc.HeartbeatRequest, rpc.HeartbeatResponse](httpClient, baseURL+AuthServiceHeartbeatProcedure, opts...),
	}
}

type authServiceClient struct {
	register       *connect.Client[rpc.RegisterRequest, rpc.RegisterResponse]
	login          *connect.Client[rpc.LoginRequest, rpc.LoginResponse]
	logout         *connect.Client[rpc.LogoutRequest, rpc.LogoutResponse]
	getCurrentUser *connect.Client[rpc.GetCurrentUserRequest, rpc.GetCurrentUserResponse]
	heartbeat      *connect.Client[rpc.HeartbeatRequest, rpc.HeartbeatResponse]
}

func (c *authServiceClient) Register(ctx context.Context, req *connect.Request[rpc.RegisterRequest]) (*connect.Response[rpc.RegisterResponse], error) {
	return c.register.CallUnary(ctx, req)
}

func (c *authServiceClient) Login(ctx context.Context, req *connect.Request[rpc.LoginRequest]) (*connect.Response[rpc.LoginResponse], error) {
	return c.login.CallUnary(ctx, req)
}

func (c *authServiceClient) Logout(ctx context.Context, req *connect.Request[rpc.LogoutRequest]) (*connect.Response[rpc.LogoutResponse], error) {
	return c.logout.CallUnary(ctx, req)
}

func (c *authServiceClient) GetCurrentUser(ctx context.Context, req *connect.Request[rpc.GetCurrentUserRequest]) (*connect.Response[rpc.GetCurrentUserResponse], error) {
	return c.getCurrentUser.CallUnary(ctx, req)
}

func (c *authServiceClient) Heartbeat(ctx context.Context, req *connect.Request[rpc.HeartbeatRequest]) (*connect.Response[rpc.HeartbeatResponse], error) {
	return c.heartbeat.CallUnary(ctx, req)
}

// AuthServiceHandler is an implementation of the teamsync.v1.AuthService
// service.
type AuthServiceHandler interface {
	Register(context.Context, *connect.Request[rpc.RegisterRequest]) (*connect.Response[rpc.RegisterResponse], error)
	Login(context.Context, *connect.Request[rpc.LoginRequest]) (*connect.Response[rpc.LoginResponse], error)
	Logout(context.Context, *connect.Request[rpc.LogoutRequest]) (*connect.Response[rpc.LogoutResponse], error)
	GetCurrentUser(context.Context, *connect.Request[rpc.GetCurrentUserRequest]) (*connect.Response[rpc.GetCurrentUserResponse], error)
	Heartbeat(context.Context, *connect.Request[rpc.HeartbeatRequest]) (*connect.Response[rpc.HeartbeatResponse], error)
}

// NewAuthServiceHandler builds an HTTP handler from the service
// implementation.
func NewAuthServiceHandler(svc AuthServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(rpc.Codec{})}, opts...)
	register := connect.NewUnaryHandler(AuthServiceRegisterProcedure, svc.Register, opts...)
	login := connect.NewUnaryHandler(AuthServiceLoginProcedure, svc.Login, opts...)
	logout := connect.NewUnaryHandler(AuthServiceLogoutProcedure, svc.Logout, opts...)
	getCurrentUser := connect.NewUnaryHandler(AuthServiceGetCurrentUserProcedure, svc.GetCurrentUser, opts...)
	heartbeat := connect.NewUnaryHandler(AuthServiceHeartbeatProcedure, svc.Heartbeat, opts...)
	return "/" + AuthServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case AuthServiceRegisterProcedure:
			register.ServeHTTP(w, r)
		case AuthServiceLoginProcedure:
			login.ServeHTTP(w, r)
		case AuthServiceLogoutProcedure:
			logout.ServeHTTP(w, r)
		case AuthServiceGetCurrentUserProcedure:
			getCurrentUser.ServeHTTP(w, r)
		case AuthServiceHeartbeatProcedure:
			heartbeat.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// UnimplementedAuthServiceHandler returns CodeUnimplemented from all
// methods.
type UnimplementedAuthServiceHandler struct{}

func (UnimplementedAuthServiceHandler) Register(context.Context, *connect.Request[rpc.RegisterRequest]) (*connect.Response[rpc.RegisterResponse], error) {
	return nil, unimplemented(AuthServiceRegisterProcedure)
}

func (UnimplementedAuthServiceHandler) Login(context.Context, *connect.Request[rpc.LoginRequest]) (*connect.Response[rpc.LoginResponse], error) {
	return nil, unimplemented(AuthServiceLoginProcedure)
}

func (UnimplementedAuthServiceHandler) Logout(context.Context, *connect.Request[rpc.LogoutRequest]) (*connect.Response[rpc.LogoutResponse], error) {
	return nil, unimplemented(AuthServiceLogoutProcedure)
}

func (UnimplementedAuthServiceHandler) GetCurrentUser(context.Context, *connect.Request[rpc.GetCurrentUserRequest]) (*connect.Response[rpc.GetCurrentUserResponse], error) {
	return nil, unimplemented(AuthServiceGetCurrentUserProcedure)
}

func (UnimplementedAuthServiceHandler) Heartbeat(context.Context, *connect.Request[rpc.HeartbeatRequest]) (*connect.Response[rpc.HeartbeatResponse], error) {
	return nil, unimplemented(AuthServiceHeartbeatProcedure)
}
