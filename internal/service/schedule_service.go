package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/internal/metrics"
	"github.com/mmynk/teamsync/internal/middleware"
	"github.com/mmynk/teamsync/internal/schedule"
	"github.com/mmynk/teamsync/pkg/rpc"
	"github.com/mmynk/teamsync/pkg/rpc/rpcconnect"
)

// ScheduleService implements the Connect ScheduleService.
type ScheduleService struct {
	rpcconnect.UnimplementedScheduleServiceHandler
	schedules *schedule.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewScheduleService creates a ScheduleService. m may be nil.
func NewScheduleService(schedules *schedule.Service, m *metrics.Metrics, logger *slog.Logger) *ScheduleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleService{schedules: schedules, metrics: m, logger: logger}
}

// AddSchedule adds an entry to a team's calendar.
func (s *ScheduleService) AddSchedule(ctx context.Context, req *connect.Request[rpc.AddScheduleRequest]) (*connect.Response[rpc.AddScheduleResponse], error) {
	s.logger.Debug("AddSchedule request received", "team_id", req.Msg.TeamID, "date", req.Msg.Date)

	entry, err := s.schedules.AddSchedule(ctx, middleware.PrincipalFrom(ctx),
		req.Msg.TeamID, req.Msg.Title, req.Msg.Date, req.Msg.DueTime)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.AddScheduleResponse{Schedule: toRPCSchedule(entry)}), nil
}

// DeleteSchedule removes an entry.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, req *connect.Request[rpc.DeleteScheduleRequest]) (*connect.Response[rpc.DeleteScheduleResponse], error) {
	s.logger.Debug("DeleteSchedule request received", "schedule_id", req.Msg.ScheduleID)

	if err := s.schedules.DeleteSchedule(ctx, middleware.PrincipalFrom(ctx), req.Msg.ScheduleID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.DeleteScheduleResponse{}), nil
}

// ListSchedules returns a team's entries in deadline order, optionally for
// one date.
func (s *ScheduleService) ListSchedules(ctx context.Context, req *connect.Request[rpc.ListSchedulesRequest]) (*connect.Response[rpc.ListSchedulesResponse], error) {
	entries, err := s.schedules.List(ctx, middleware.PrincipalFrom(ctx), req.Msg.TeamID, req.Msg.Date)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&rpc.ListSchedulesResponse{Schedules: toRPCSchedules(entries)}), nil
}

// WatchSchedules streams full calendar snapshots. With a date set, every
// snapshot holds only that day's entries.
func (s *ScheduleService) WatchSchedules(ctx context.Context, req *connect.Request[rpc.WatchSchedulesRequest], stream *connect.ServerStream[rpc.WatchSchedulesResponse]) error {
	const op = "schedule.WatchSchedules"
	date := req.Msg.Date
	if date != "" {
		if err := schedule.ValidateDate(op, date); err != nil {
			return toConnectError(err)
		}
	}

	live, err := s.schedules.ListForTeam(ctx, middleware.PrincipalFrom(ctx), req.Msg.TeamID)
	if err != nil {
		return toConnectError(err)
	}
	defer live.Close()
	defer s.metrics.Subscribed("schedules")()

	for snap := range live.Updates() {
		entries := snap.Schedules
		if date != "" {
			entries = schedule.ForDate(entries, date)
		}
		err := stream.Send(&rpc.WatchSchedulesResponse{
			TeamID:    snap.TeamID,
			Schedules: toRPCSchedules(entries),
		})
		if err != nil {
			return err
		}
	}
	return toConnectError(live.Err())
}
