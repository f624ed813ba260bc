package task

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/scenario-gateway/engine"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/road"
	"github.com/tsinghua-fib-lab/scenario-gateway/gateway"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/rpccodec"
)

const (
	GatewayServiceName = "scenario.v1.GatewayService"

	GatewayServiceStepProcedure                  = "/scenario.v1.GatewayService/Step"
	GatewayServiceReportObjectWorldPoseProcedure = "/scenario.v1.GatewayService/ReportObjectWorldPose"
	GatewayServiceReportObjectRoadPoseProcedure  = "/scenario.v1.GatewayService/ReportObjectRoadPose"
	GatewayServiceGetObjectCountProcedure        = "/scenario.v1.GatewayService/GetObjectCount"
	GatewayServiceGetObjectStateProcedure        = "/scenario.v1.GatewayService/GetObjectState"
	GatewayServiceGetObjectStatesProcedure       = "/scenario.v1.GatewayService/GetObjectStates"
	GatewayServiceGetSteeringTargetProcedure     = "/scenario.v1.GatewayService/GetSteeringTarget"
)

type StepRequest struct {
	DT *float64 `json:"dt,omitempty"` // 为空时使用配置步长
}

type StepResponse struct {
	T     float64 `json:"t"`
	Step  int32   `json:"step"`
	Error string  `json:"error,omitempty"` // 本步动作失败信息，快照已提交
}

type ReportObjectWorldPoseRequest struct {
	ID        int32   `json:"id"`
	Name      string  `json:"name"`
	Timestamp float64 `json:"timestamp"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	H         float64 `json:"h"`
	P         float64 `json:"p"`
	R         float64 `json:"r"`
	Speed     float64 `json:"speed"`
}

type ReportObjectRoadPoseRequest struct {
	ID        int32   `json:"id"`
	Name      string  `json:"name"`
	Timestamp float64 `json:"timestamp"`
	RoadID    int32   `json:"road_id"`
	LaneID    int32   `json:"lane_id"`
	Offset    float64 `json:"lateral_offset"`
	S         float64 `json:"s"`
	Speed     float64 `json:"speed"`
}

type ReportObjectResponse struct{}

type GetObjectCountRequest struct{}

type GetObjectCountResponse struct {
	Count int `json:"count"`
}

type GetObjectStateRequest struct {
	Index int `json:"index"`
}

type GetObjectStateResponse struct {
	State ObjectStateRecord `json:"state"`
}

type GetObjectStatesRequest struct {
	MaxCount int     `json:"max_count"`
	IDs      []int32 `json:"ids,omitempty"` // 非空时按ID查询，忽略max_count
}

type GetObjectStatesResponse struct {
	States    []ObjectStateRecord `json:"states"`
	FailedIDs []int32             `json:"failed_ids,omitempty"`
}

type GetSteeringTargetRequest struct {
	Index     int     `json:"index"`
	Lookahead float64 `json:"lookahead"`
}

type GetSteeringTargetResponse struct {
	Local     [3]float64 `json:"local"`
	Global    [3]float64 `json:"global"`
	Angle     float64    `json:"angle"`
	Curvature float64    `json:"curvature"`
}

// connectError 将错误类型映射为RPC错误码
func connectError(err error) error {
	switch {
	case errors.Is(err, gateway.ErrIndexOutOfRange), errors.Is(err, road.ErrRoadNetworkExhausted), errors.Is(err, road.ErrOutOfRange):
		return connect.NewError(connect.CodeOutOfRange, err)
	case errors.Is(err, road.ErrUnknownRoad), errors.Is(err, road.ErrUnknownLane), errors.Is(err, gateway.ErrUnknownObject):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrClosed), errors.Is(err, ErrNoRoadFix), errors.Is(err, engine.ErrNotInitialized), errors.Is(err, engine.ErrClosed):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
}

// Register 将GatewayService与ClockService注册到sidecar
// 说明：上下文内部已串行化，不使用syncer的步进锁
func (ctx *Context) Register(sidecar *syncer.Sidecar) {
	ctx.clock.Register(sidecar)
	sidecar.Register(GatewayServiceName, ctx.NewHandler, syncer.WithNoLock())
}

// NewHandler 创建GatewayService的HTTP处理器
func (ctx *Context) NewHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, rpccodec.WithJSON())
	mux := http.NewServeMux()
	mux.Handle(GatewayServiceStepProcedure, connect.NewUnaryHandler(GatewayServiceStepProcedure, ctx.rpcStep, opts...))
	mux.Handle(GatewayServiceReportObjectWorldPoseProcedure, connect.NewUnaryHandler(GatewayServiceReportObjectWorldPoseProcedure, ctx.rpcReportObjectWorldPose, opts...))
	mux.Handle(GatewayServiceReportObjectRoadPoseProcedure, connect.NewUnaryHandler(GatewayServiceReportObjectRoadPoseProcedure, ctx.rpcReportObjectRoadPose, opts...))
	mux.Handle(GatewayServiceGetObjectCountProcedure, connect.NewUnaryHandler(GatewayServiceGetObjectCountProcedure, ctx.rpcGetObjectCount, opts...))
	mux.Handle(GatewayServiceGetObjectStateProcedure, connect.NewUnaryHandler(GatewayServiceGetObjectStateProcedure, ctx.rpcGetObjectState, opts...))
	mux.Handle(GatewayServiceGetObjectStatesProcedure, connect.NewUnaryHandler(GatewayServiceGetObjectStatesProcedure, ctx.rpcGetObjectStates, opts...))
	mux.Handle(GatewayServiceGetSteeringTargetProcedure, connect.NewUnaryHandler(GatewayServiceGetSteeringTargetProcedure, ctx.rpcGetSteeringTarget, opts...))
	return "/" + GatewayServiceName + "/", mux
}

// rpcStep 推进一步
// 说明：动作失败不视为RPC错误，通过响应中的error字段返回
func (ctx *Context) rpcStep(_ context.Context, in *connect.Request[StepRequest]) (*connect.Response[StepResponse], error) {
	dt := ctx.clock.DT
	if in.Msg.DT != nil {
		dt = *in.Msg.DT
	}
	err := ctx.Step(dt)
	res := &StepResponse{}
	if err != nil {
		if !errors.Is(err, engine.ErrStepExecution) {
			return nil, connectError(err)
		}
		res.Error = err.Error()
	}
	res.T, res.Step = ctx.clock.Now()
	return connect.NewResponse(res), nil
}

func (ctx *Context) rpcReportObjectWorldPose(_ context.Context, in *connect.Request[ReportObjectWorldPoseRequest]) (*connect.Response[ReportObjectResponse], error) {
	m := in.Msg
	if err := ctx.ReportObjectWorldPose(m.ID, m.Name, m.Timestamp, m.X, m.Y, m.Z, m.H, m.P, m.R, m.Speed); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ReportObjectResponse{}), nil
}

func (ctx *Context) rpcReportObjectRoadPose(_ context.Context, in *connect.Request[ReportObjectRoadPoseRequest]) (*connect.Response[ReportObjectResponse], error) {
	m := in.Msg
	if err := ctx.ReportObjectRoadPose(m.ID, m.Name, m.Timestamp, m.RoadID, m.LaneID, m.Offset, m.S, m.Speed); err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&ReportObjectResponse{}), nil
}

func (ctx *Context) rpcGetObjectCount(_ context.Context, _ *connect.Request[GetObjectCountRequest]) (*connect.Response[GetObjectCountResponse], error) {
	if ctx.closed.Load() {
		return nil, connectError(ErrClosed)
	}
	return connect.NewResponse(&GetObjectCountResponse{Count: ctx.ObjectCount()}), nil
}

func (ctx *Context) rpcGetObjectState(_ context.Context, in *connect.Request[GetObjectStateRequest]) (*connect.Response[GetObjectStateResponse], error) {
	s, err := ctx.ObjectState(in.Msg.Index)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&GetObjectStateResponse{State: s}), nil
}

// rpcGetObjectStates 按注册顺序返回至多max_count个对象状态，max_count<=0表示全部
// 说明：给出ids时按ID查询，不存在的ID在failed_ids中返回
func (ctx *Context) rpcGetObjectStates(_ context.Context, in *connect.Request[GetObjectStatesRequest]) (*connect.Response[GetObjectStatesResponse], error) {
	if len(in.Msg.IDs) > 0 {
		found, failed, err := ctx.ObjectStatesByID(in.Msg.IDs)
		if err != nil {
			return nil, connectError(err)
		}
		return connect.NewResponse(&GetObjectStatesResponse{States: found, FailedIDs: failed}), nil
	}
	if ctx.closed.Load() {
		return nil, connectError(ErrClosed)
	}
	n := ctx.ObjectCount()
	if in.Msg.MaxCount > 0 {
		n = min(n, in.Msg.MaxCount)
	}
	out := make([]ObjectStateRecord, n)
	out = out[:ctx.ObjectStates(n, out)]
	return connect.NewResponse(&GetObjectStatesResponse{States: out}), nil
}

func (ctx *Context) rpcGetSteeringTarget(_ context.Context, in *connect.Request[GetSteeringTargetRequest]) (*connect.Response[GetSteeringTargetResponse], error) {
	st, err := ctx.SteeringTarget(in.Msg.Index, in.Msg.Lookahead)
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&GetSteeringTargetResponse{
		Local:     st.Local,
		Global:    st.Global,
		Angle:     st.Angle,
		Curvature: st.Curvature,
	}), nil
}

// Client GatewayService客户端
type Client struct {
	Step                  *connect.Client[StepRequest, StepResponse]
	ReportObjectWorldPose *connect.Client[ReportObjectWorldPoseRequest, ReportObjectResponse]
	ReportObjectRoadPose  *connect.Client[ReportObjectRoadPoseRequest, ReportObjectResponse]
	GetObjectCount        *connect.Client[GetObjectCountRequest, GetObjectCountResponse]
	GetObjectState        *connect.Client[GetObjectStateRequest, GetObjectStateResponse]
	GetObjectStates       *connect.Client[GetObjectStatesRequest, GetObjectStatesResponse]
	GetSteeringTarget     *connect.Client[GetSteeringTargetRequest, GetSteeringTargetResponse]
}

// NewClient 创建GatewayService客户端
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append(opts, rpccodec.WithJSON())
	return &Client{
		Step:                  connect.NewClient[StepRequest, StepResponse](httpClient, baseURL+GatewayServiceStepProcedure, opts...),
		ReportObjectWorldPose: connect.NewClient[ReportObjectWorldPoseRequest, ReportObjectResponse](httpClient, baseURL+GatewayServiceReportObjectWorldPoseProcedure, opts...),
		ReportObjectRoadPose:  connect.NewClient[ReportObjectRoadPoseRequest, ReportObjectResponse](httpClient, baseURL+GatewayServiceReportObjectRoadPoseProcedure, opts...),
		GetObjectCount:        connect.NewClient[GetObjectCountRequest, GetObjectCountResponse](httpClient, baseURL+GatewayServiceGetObjectCountProcedure, opts...),
		GetObjectState:        connect.NewClient[GetObjectStateRequest, GetObjectStateResponse](httpClient, baseURL+GatewayServiceGetObjectStateProcedure, opts...),
		GetObjectStates:       connect.NewClient[GetObjectStatesRequest, GetObjectStatesResponse](httpClient, baseURL+GatewayServiceGetObjectStatesProcedure, opts...),
		GetSteeringTarget:     connect.NewClient[GetSteeringTargetRequest, GetSteeringTargetResponse](httpClient, baseURL+GatewayServiceGetSteeringTargetProcedure, opts...),
	}
}
