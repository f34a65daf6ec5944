package rpcconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/pkg/rpc"
)

// ScheduleServiceName is the fully-qualified name of the ScheduleService
// service.
const ScheduleServiceName = "teamsync.v1.ScheduleService"

const (
	ScheduleServiceAddScheduleProcedure    = "/teamsync.v1.ScheduleService/AddSchedule"
	ScheduleServiceDeleteScheduleProcedure = "/teamsync.v1.ScheduleService/DeleteSchedule"
	ScheduleServiceListSchedulesProcedure  = "/teamsync.v1.ScheduleService/ListSchedules"
	ScheduleServiceWatchSchedulesProcedure = "/teamsync.v1.ScheduleService/WatchSchedules"
)

// ScheduleServiceClient is a client for the teamsync.v1.ScheduleService
// service.
type ScheduleServiceClient interface {
	AddSchedule(context.Context, *connect.Request[rpc.AddScheduleRequest]) (*connect.Response[rpc.AddScheduleResponse], error)
	DeleteSchedule(context.Context, *connect.Request[rpc.DeleteScheduleRequest]) (*connect.Response[rpc.DeleteScheduleResponse], error)
	ListSchedules(context.Context, *connect.Request[rpc.ListSchedulesRequest]) (*connect.Response[rpc.ListSchedulesResponse], error)
	WatchSchedules(context.Context, *connect.Request[rpc.WatchSchedulesRequest]) (*connect.ServerStreamForClient[rpc.WatchSchedulesResponse], error)
}

// NewScheduleServiceClient constructs a client for the
// teamsync.v1.ScheduleService service.
func NewScheduleServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) ScheduleServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(rpc.Codec{})}, opts...)
	return &scheduleServiceClient{
		addSchedule:    connect.NewClient[rpc.AddScheduleRequest, rpc.AddScheduleResponse](httpClient, baseURL+ScheduleServiceAddScheduleProcedure, opts...),
		deleteSchedule: connect.NewClient[rpc.DeleteScheduleRequest, rpc.DeleteScheduleResponse](httpClient, baseURL+ScheduleServiceDeleteScheduleProcedure, opts...),
		listSchedules:  connect.NewClient[rpc.ListSchedulesRequest, rpc.ListSchedulesResponse](httpClient, baseURL+ScheduleServiceListSchedulesProcedure, opts...),
		watchSchedules: connect.NewClient[rpc.WatchSchedulesRequest, rpc.WatchSchedulesResponse](httpClient, baseURL+ScheduleServiceWatchSchedulesProcedure, opts...),
	}
}

type scheduleServiceClient struct {
	addSchedule    *connect.Client[rpc.AddScheduleRequest, rpc.AddScheduleResponse]
	deleteSchedule *connect.Client[rpc.DeleteScheduleRequest, rpc.DeleteScheduleResponse]
	listSchedules  *connect.Client[rpc.ListSchedulesRequest, rpc.ListSchedulesResponse]
	watchSchedules *connect.Client[rpc.WatchSchedulesRequest, rpc.WatchSchedulesResponse]
}

func (c *scheduleServiceClient) AddSchedule(ctx context.Context, req *connect.Request[rpc.AddScheduleRequest]) (*connect.Response[rpc.AddScheduleResponse], error) {
	return c.addSchedule.CallUnary(ctx, req)
}

func (c *scheduleServiceClient) DeleteSchedule(ctx context.Context, req *connect.Request[rpc.DeleteScheduleRequest]) (*connect.Response[rpc.DeleteScheduleResponse], error) {
	return c.deleteSchedule.CallUnary(ctx, req)
}

func (c *scheduleServiceClient) ListSchedules(ctx context.Context, req *connect.Request[rpc.ListSchedulesRequest]) (*connect.Response[rpc.ListSchedulesResponse], error) {
	return c.listSchedules.CallUnary(ctx, req)
}

func (c *scheduleServiceClient) WatchSchedules(ctx context.Context, req *connect.Request[rpc.WatchSchedulesRequest]) (*connect.ServerStreamForClient[rpc.WatchSchedulesResponse], error) {
	return c.watchSchedules.CallServerStream(ctx, req)
}

// ScheduleServiceHandler is an implementation of the
// teamsync.v1.ScheduleService service.
type ScheduleServiceHandler interface {
	AddSchedule(context.Context, *connect.Request[rpc.AddScheduleRequest]) (*connect.Response[rpc.AddScheduleResponse], error)
	DeleteSchedule(context.Context, *connect.Request[rpc.DeleteScheduleRequest]) (*connect.Response[rpc.DeleteScheduleResponse], error)
	ListSchedules(context.Context, *connect.Request[rpc.ListSchedulesRequest]) (*connect.Response[rpc.ListSchedulesResponse], error)
	WatchSchedules(context.Context, *connect.Request[rpc.WatchSchedulesRequest], *connect.ServerStream[rpc.WatchSchedulesResponse]) error
}

// NewScheduleServiceHandler builds an HTTP handler from the service
// implementation.
func NewScheduleServiceHandler(svc ScheduleServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(rpc.Codec{})}, opts...)
	addSchedule := connect.NewUnaryHandler(ScheduleServiceAddScheduleProcedure, svc.AddSchedule, opts...)
	deleteSchedule := connect.NewUnaryHandler(ScheduleServiceDeleteScheduleProcedure, svc.DeleteSchedule, opts...)
	listSchedules := connect.NewUnaryHandler(ScheduleServiceListSchedulesProcedure, svc.ListSchedules, opts...)
	watchSchedules := connect.NewServerStreamHandler(ScheduleServiceWatchSchedulesProcedure, svc.WatchSchedules, opts...)
	return "/" + ScheduleServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ScheduleServiceAddScheduleProcedure:
			addSchedule.ServeHTTP(w, r)
		case ScheduleServiceDeleteScheduleProcedure:
			deleteSchedule.ServeHTTP(w, r)
		case ScheduleServiceListSchedulesProcedure:
			listSchedules.ServeHTTP(w, r)
		case ScheduleServiceWatchSchedulesProcedure:
			watchSchedules.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// UnimplementedScheduleServiceHandler returns CodeUnimplemented from all
// methods.
type UnimplementedScheduleServiceHandler struct{}

func (UnimplementedScheduleServiceHandler) AddSchedule(context.Context, *connect.Request[rpc.AddScheduleRequest]) (*connect.Response[rpc.AddScheduleResponse], error) {
	return nil, unimplemented(ScheduleServiceAddScheduleProcedure)
}

func (UnimplementedScheduleServiceHandler) DeleteSchedule(context.Context, *connect.Request[rpc.DeleteScheduleRequest]) (*connect.Response[rpc.DeleteScheduleResponse], error) {
	return nil, unimplemented(ScheduleServiceDeleteScheduleProcedure)
}

func (UnimplementedScheduleServiceHandler) ListSchedules(context.Context, *connect.Request[rpc.ListSchedulesRequest]) (*connect.Response[rpc.ListSchedulesResponse], error) {
	return nil, unimplemented(ScheduleServiceListSchedulesProcedure)
}

func (UnimplementedScheduleServiceHandler) WatchSchedules(context.Context, *connect.Request[rpc.WatchSchedulesRequest], *connect.ServerStream[rpc.WatchSchedulesResponse]) error {
	return unimplemented(ScheduleServiceWatchSchedulesProcedure)
}
