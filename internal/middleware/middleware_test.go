package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/metrics"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/pkg/rpc"
	"github.com/mmynk/teamsync/pkg/rpc/rpcconnect"
)

// echoAuth reports the principal each call saw.
type echoAuth struct {
	rpcconnect.UnimplementedAuthServiceHandler
}

func (echoAuth) Login(ctx context.Context, _ *connect.Request[rpc.LoginRequest]) (*connect.Response[rpc.LoginResponse], error) {
	return connect.NewResponse(&rpc.LoginResponse{Token: PrincipalFrom(ctx).ID}), nil
}

func (echoAuth) GetCurrentUser(ctx context.Context, _ *connect.Request[rpc.GetCurrentUserRequest]) (*connect.Response[rpc.GetCurrentUserResponse], error) {
	p := PrincipalFrom(ctx)
	return connect.NewResponse(&rpc.GetCurrentUserResponse{User: &rpc.User{ID: p.ID, Email: p.Email}}), nil
}

type echoTeam struct {
	rpcconnect.UnimplementedTeamServiceHandler
}

func (echoTeam) WatchTeam(ctx context.Context, _ *connect.Request[rpc.WatchTeamRequest], stream *connect.ServerStream[rpc.WatchTeamResponse]) error {
	return stream.Send(&rpc.WatchTeamResponse{Team: &rpc.Team{OwnerID: PrincipalFrom(ctx).ID}})
}

func setup(t *testing.T) (rpcconnect.AuthServiceClient, rpcconnect.TeamServiceClient, *auth.JWTManager) {
	t.Helper()
	jwt := auth.NewJWTManager("secret", time.Hour)
	interceptors := connect.WithInterceptors(
		NewLoggingInterceptor(nil, metrics.New(prometheus.NewRegistry())),
		NewAuthInterceptor(jwt, rpcconnect.PublicProcedures...),
	)

	mux := http.NewServeMux()
	mux.Handle(rpcconnect.NewAuthServiceHandler(echoAuth{}, interceptors))
	mux.Handle(rpcconnect.NewTeamServiceHandler(echoTeam{}, interceptors))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return rpcconnect.NewAuthServiceClient(server.Client(), server.URL),
		rpcconnect.NewTeamServiceClient(server.Client(), server.URL),
		jwt
}

func withToken[T any](token string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthInterceptorUnary(t *testing.T) {
	authClient, _, jwt := setup(t)
	ctx := context.Background()
	token, err := jwt.Generate(&models.User{ID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)

	resp, err := authClient.GetCurrentUser(ctx, withToken(token, &rpc.GetCurrentUserRequest{}))
	require.NoError(t, err)
	require.Equal(t, "u1", resp.Msg.User.ID)
	require.Equal(t, "u1@example.com", resp.Msg.User.Email)

	_, err = authClient.GetCurrentUser(ctx, connect.NewRequest(&rpc.GetCurrentUserRequest{}))
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = authClient.GetCurrentUser(ctx, withToken("garbage", &rpc.GetCurrentUserRequest{}))
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	other := auth.NewJWTManager("other-secret", time.Hour)
	forged, err := other.Generate(&models.User{ID: "u1"})
	require.NoError(t, err)
	_, err = authClient.GetCurrentUser(ctx, withToken(forged, &rpc.GetCurrentUserRequest{}))
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestPublicProceduresPassThrough(t *testing.T) {
	authClient, _, jwt := setup(t)
	ctx := context.Background()

	resp, err := authClient.Login(ctx, connect.NewRequest(&rpc.LoginRequest{}))
	require.NoError(t, err)
	require.Empty(t, resp.Msg.Token)

	resp, err = authClient.Login(ctx, withToken("garbage", &rpc.LoginRequest{}))
	require.NoError(t, err)
	require.Empty(t, resp.Msg.Token)

	token, err := jwt.Generate(&models.User{ID: "u1"})
	require.NoError(t, err)
	resp, err = authClient.Login(ctx, withToken(token, &rpc.LoginRequest{}))
	require.NoError(t, err)
	require.Equal(t, "u1", resp.Msg.Token)
}

func TestAuthInterceptorStreaming(t *testing.T) {
	_, teamClient, jwt := setup(t)
	ctx := context.Background()
	token, err := jwt.Generate(&models.User{ID: "u2"})
	require.NoError(t, err)

	stream, err := teamClient.WatchTeam(ctx, withToken(token, &rpc.WatchTeamRequest{}))
	require.NoError(t, err)
	require.True(t, stream.Receive(), "stream: %v", stream.Err())
	require.Equal(t, "u2", stream.Msg().Team.OwnerID)
	require.NoError(t, stream.Close())

	stream, err = teamClient.WatchTeam(ctx, connect.NewRequest(&rpc.WatchTeamRequest{}))
	if err == nil {
		require.False(t, stream.Receive())
		err = stream.Err()
		stream.Close()
	}
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc")
	require.NoError(t, err)
	require.Equal(t, "abc", token)

	token, err = BearerToken("bearer  abc ")
	require.NoError(t, err)
	require.Equal(t, "abc", token)

	_, err = BearerToken("")
	require.ErrorIs(t, err, auth.ErrMissingToken)
	for _, bad := range []string{"Basic abc", "Bearer", "Bearer ", "abc"} {
		_, err = BearerToken(bad)
		require.ErrorIs(t, err, auth.ErrInvalidToken, bad)
	}
}

func TestLoggingRecordsPrincipal(t *testing.T) {
	ctx, call := withCallInfo(context.Background())
	ctx = withPrincipal(ctx, auth.Principal{ID: "u3"})
	require.Equal(t, "u3", call.principal.ID)
	require.Equal(t, "u3", PrincipalFrom(ctx).ID)

	// Without the logging interceptor installed nothing breaks.
	ctx = withPrincipal(context.Background(), auth.Principal{ID: "u4"})
	require.Equal(t, "u4", PrincipalFrom(ctx).ID)
}
