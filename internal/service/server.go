package service

import (
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/membership"
	"github.com/mmynk/teamsync/internal/metrics"
	"github.com/mmynk/teamsync/internal/middleware"
	"github.com/mmynk/teamsync/internal/presence"
	"github.com/mmynk/teamsync/internal/schedule"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/pkg/rpc/rpcconnect"
)

// Deps are the collaborators of the Connect services.
type Deps struct {
	Store         storage.Store
	Members       *membership.Service
	Schedules     *schedule.Service
	Authenticator auth.Authenticator
	JWT           *auth.JWTManager
	Heartbeat     *presence.Heartbeat
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Mount registers the three services on mux behind the logging and auth
// interceptors.
func Mount(mux *http.ServeMux, d Deps) {
	interceptors := connect.WithInterceptors(
		middleware.NewLoggingInterceptor(d.Logger, d.Metrics),
		middleware.NewAuthInterceptor(d.JWT, rpcconnect.PublicProcedures...),
	)

	mux.Handle(rpcconnect.NewAuthServiceHandler(
		NewAuthService(d.Authenticator, d.JWT, d.Store, d.Heartbeat, d.Logger), interceptors))
	mux.Handle(rpcconnect.NewTeamServiceHandler(
		NewTeamService(d.Members, d.Metrics, d.Logger), interceptors))
	mux.Handle(rpcconnect.NewScheduleServiceHandler(
		NewScheduleService(d.Schedules, d.Metrics, d.Logger), interceptors))
}
