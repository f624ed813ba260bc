package clock

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/rpccodec"
)

const (
	ClockServiceName         = "scenario.v1.ClockService"
	ClockServiceNowProcedure = "/scenario.v1.ClockService/Now"
)

type NowRequest struct{}

type NowResponse struct {
	T    float64 `json:"t"`
	Step int32   `json:"step"`
}

// Register 将ClockService注册到sidecar
// 说明：只读服务，不参与步进锁
func (c *Clock) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(ClockServiceName, c.NewHandler, syncer.WithNoLock())
}

// NewHandler 创建ClockService的HTTP处理器
// 返回：路由前缀与处理器
func (c *Clock) NewHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, rpccodec.WithJSON())
	mux := http.NewServeMux()
	mux.Handle(ClockServiceNowProcedure, connect.NewUnaryHandler(ClockServiceNowProcedure, c.rpcNow, opts...))
	return "/" + ClockServiceName + "/", mux
}

// rpcNow 获取当前仿真时间
// 说明：提供外部系统查询当前仿真时间的接口，支持分布式仿真的时间同步
func (c *Clock) rpcNow(ctx context.Context, in *connect.Request[NowRequest]) (*connect.Response[NowResponse], error) {
	t, step := c.Now()
	return connect.NewResponse(&NowResponse{T: t, Step: step}), nil
}

// NewClient 创建ClockService客户端
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *connect.Client[NowRequest, NowResponse] {
	opts = append(opts, rpccodec.WithJSON())
	return connect.NewClient[NowRequest, NowResponse](httpClient, baseURL+ClockServiceNowProcedure, opts...)
}
