package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/errors"
	"github.com/mmynk/teamsync/internal/middleware"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/presence"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/pkg/rpc"
	"github.com/mmynk/teamsync/pkg/rpc/rpcconnect"
)

// UserReader loads user records. storage.Store satisfies it.
type UserReader interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// AuthService implements the AuthService RPC interface.
type AuthService struct {
	rpcconnect.UnimplementedAuthServiceHandler
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	users         UserReader
	heartbeat     *presence.Heartbeat
	logger        *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, users UserReader, heartbeat *presence.Heartbeat, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		users:         users,
		heartbeat:     heartbeat,
		logger:        logger,
	}
}

// Register creates a new user account with no team.
func (s *AuthService) Register(ctx context.Context, req *connect.Request[rpc.RegisterRequest]) (*connect.Response[rpc.RegisterResponse], error) {
	const op = "auth.Register"
	s.logger.Info("Register request", "email", req.Msg.Email)

	user, err := s.authenticator.Register(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Registration failed", "email", req.Msg.Email, "error", err)
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			return nil, connect.NewError(connect.CodeAlreadyExists, err)
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidEmail):
			return nil, toConnectError(&errors.Error{Kind: errors.KindValidation, Op: op, Msg: err.Error(), Err: err})
		default:
			return nil, toConnectError(errors.Classify(op, err))
		}
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.logger.Info("User registered", "user_id", user.ID, "email", user.Email)
	return connect.NewResponse(&rpc.RegisterResponse{User: toRPCUser(user), Token: token}), nil
}

// Login authenticates a user and returns a JWT token.
func (s *AuthService) Login(ctx context.Context, req *connect.Request[rpc.LoginRequest]) (*connect.Response[rpc.LoginResponse], error) {
	s.logger.Info("Login request", "email", req.Msg.Email)

	if req.Msg.Email == "" || req.Msg.Password == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, auth.ErrInvalidCredentials)
	}

	user, err := s.authenticator.Authenticate(ctx, req.Msg.Email, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Login failed", "email", req.Msg.Email, "error", err)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidCredentials)
		}
		return nil, toConnectError(errors.Classify("auth.Login", err))
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.logger.Info("User logged in", "user_id", user.ID, "email", user.Email)
	return connect.NewResponse(&rpc.LoginResponse{User: toRPCUser(user), Token: token}), nil
}

// Logout is a no-op apart from logging: tokens are stateless and the
// client discards its own.
func (s *AuthService) Logout(ctx context.Context, req *connect.Request[rpc.LogoutRequest]) (*connect.Response[rpc.LogoutResponse], error) {
	s.logger.Info("Logout request", "user_id", middleware.PrincipalFrom(ctx).ID)
	return connect.NewResponse(&rpc.LogoutResponse{}), nil
}

// GetCurrentUser returns the caller's stored record.
func (s *AuthService) GetCurrentUser(ctx context.Context, req *connect.Request[rpc.GetCurrentUserRequest]) (*connect.Response[rpc.GetCurrentUserResponse], error) {
	user, err := s.currentUser(ctx, "auth.GetCurrentUser")
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&rpc.GetCurrentUserResponse{User: toRPCUser(user)}), nil
}

// Heartbeat marks the caller as active now.
func (s *AuthService) Heartbeat(ctx context.Context, req *connect.Request[rpc.HeartbeatRequest]) (*connect.Response[rpc.HeartbeatResponse], error) {
	const op = "auth.Heartbeat"
	p := middleware.PrincipalFrom(ctx)
	if !p.Authenticated() {
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	if err := s.heartbeat.Beat(ctx, p.ID); err != nil {
		return nil, toConnectError(errors.Classify(op, err))
	}
	user, err := s.currentUser(ctx, op)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&rpc.HeartbeatResponse{LastActive: user.LastActive}), nil
}

func (s *AuthService) currentUser(ctx context.Context, op string) (*models.User, error) {
	p := middleware.PrincipalFrom(ctx)
	if !p.Authenticated() {
		return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	user, err := s.users.GetUser(ctx, p.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("Failed to load user", "user_id", p.ID, "error", err)
		}
		return nil, toConnectError(errors.Classify(op, err))
	}
	return user, nil
}
