package task

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/scenario-gateway/clock"
	"github.com/tsinghua-fib-lab/scenario-gateway/engine"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/position"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/road"
	"github.com/tsinghua-fib-lab/scenario-gateway/gateway"
	"github.com/tsinghua-fib-lab/scenario-gateway/recorder"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
)

const (
	SelfName = "scenario" // 本程序在模拟任务集群中的名字
)

var (
	ErrInitialization = errors.New("initialization failed")
	ErrClosed         = errors.New("task closed")
	ErrNoRoadFix      = errors.New("object has no valid road position")
)

// ObjectStateRecord 对外提供的扁平化对象状态
type ObjectStateRecord struct {
	ID         int32   `json:"id"`
	Name       string  `json:"name"`
	Timestamp  float64 `json:"timestamp"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	H          float64 `json:"h"`
	P          float64 `json:"p"`
	R          float64 `json:"r"`
	Speed      float64 `json:"speed"`
	RoadID     int32   `json:"road_id"`
	LaneID     int32   `json:"lane_id"`
	S          float64 `json:"s"`
	Offset     float64 `json:"lateral_offset"`
	TrackValid bool    `json:"track_valid"`
}

func newRecord(s gateway.ObjectState) ObjectStateRecord {
	p := s.Pos
	return ObjectStateRecord{
		ID:         s.ID,
		Name:       s.Name,
		Timestamp:  s.Timestamp,
		X:          p.X,
		Y:          p.Y,
		Z:          p.Z,
		H:          p.H,
		P:          p.P,
		R:          p.R,
		Speed:      s.Speed,
		RoadID:     p.RoadID,
		LaneID:     p.LaneID,
		S:          p.S,
		Offset:     p.Offset,
		TrackValid: p.TrackValid,
	}
}

// Context 仿真任务上下文
// 功能：包含一次运行的全部状态（时钟、路网、网关、场景引擎、记录器），是对外调用的唯一入口
// 说明：
// 1. 上报与查询可以与Step并发，Step之间由引擎串行化
// 2. Close可在任意时刻调用，之后所有调用返回ErrClosed
type Context struct {
	// 运行标识
	runID string

	// 保护下列资源的释放，普通调用持读锁
	mtx sync.RWMutex
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock
	// 运行时配置
	runtimeConfig *config.RuntimeConfig
	// 路网
	network *road.Network
	// 对象状态网关
	gateway *gateway.Gateway
	// 场景引擎
	engine *engine.Engine
	// 快照记录器
	recorder recorder.Recorder

	// 最近一次步进的错误
	lastErr atomic.Pointer[error]
}

// Init 按配置加载输入并初始化
func Init(c config.Config) (*Context, error) {
	in, err := input.Load(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	return InitFromInput(c, in)
}

// InitFromInput 由已加载的输入初始化任务
// 功能：构建路网、网关与场景引擎，执行零时长的初始化步并记录首个快照
// 参数：c-配置，in-路网与场景
// 返回：任务上下文；路网、场景或输出不合法时返回包装了ErrInitialization的错误，且不保留部分状态
// 说明：初始化步中的动作失败不影响创建，通过LastError返回
func InitFromInput(c config.Config, in *input.Input) (*Context, error) {
	if in == nil || in.Map == nil {
		return nil, fmt.Errorf("%w: no road network", ErrInitialization)
	}
	ctx := &Context{
		runID:         uuid.New().String(),
		runtimeConfig: config.NewRuntimeConfig(c),
	}
	ctx.clock = clock.New(ctx.runtimeConfig.C.Step)

	network, err := road.NewNetwork(in.Map, ctx.runtimeConfig.C)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	ctx.network = network
	ctx.gateway = gateway.New(network)
	ctx.engine = engine.New(ctx, ctx.gateway)

	ctx.recorder, err = recorder.Open(c.Output, ctx.runID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	scenario := in.Scenario
	if scenario == nil {
		scenario = &input.ScenarioData{}
	}
	if err := ctx.engine.Init(scenario.Objects, scenario.Actions); errors.Is(err, engine.ErrStepExecution) {
		// 初始化步的动作失败只影响本步
		log.Errorf("initial step: %v", err)
		ctx.lastErr.Store(&err)
	} else if err != nil {
		ctx.engine.Close()
		return nil, fmt.Errorf("%w: %w", ErrInitialization, errors.Join(err, ctx.recorder.Close()))
	}
	if err := ctx.recorder.Record(ctx.gateway.Snapshot()); err != nil {
		log.Errorf("record initial snapshot: %v", err)
	}
	log.Infof("run %s initialized: %d roads, %d objects", ctx.runID, len(network.Roads()), ctx.gateway.NumberOfObjects())
	return ctx, nil
}

func (ctx *Context) RunID() string {
	return ctx.runID
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) RoadNetwork() entity.IRoadNetwork {
	return ctx.network
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// acquire 持读锁并检查是否已关闭，成功时需调用返回的释放函数
func (ctx *Context) acquire() (func(), error) {
	ctx.mtx.RLock()
	if ctx.closed.Load() {
		ctx.mtx.RUnlock()
		return nil, ErrClosed
	}
	return ctx.mtx.RUnlock, nil
}

// Step 推进dt秒
// 返回：动作或移动失败时返回包装了engine.ErrStepExecution的错误，快照仍然提交并记录
func (ctx *Context) Step(dt float64) error {
	release, err := ctx.acquire()
	if err != nil {
		return err
	}
	defer release()
	snap, err := ctx.engine.Step(dt)
	if snap != nil {
		if rerr := ctx.recorder.Record(snap); rerr != nil {
			log.Errorf("record step %d: %v", snap.Step, rerr)
		}
	}
	if err != nil {
		log.Errorf("step failed: %v", err)
	}
	ctx.lastErr.Store(&err)
	return err
}

// LastError 最近一次Step的错误，未出错或尚未步进时为nil
func (ctx *Context) LastError() error {
	if p := ctx.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Close 关闭任务，释放路网与网关，可重复调用
func (ctx *Context) Close() error {
	ctx.mtx.Lock()
	defer ctx.mtx.Unlock()
	if ctx.closed.Swap(true) {
		return nil
	}
	ctx.engine.Close()
	err := ctx.recorder.Close()
	ctx.network = nil
	ctx.gateway = nil
	log.Infof("run %s closed", ctx.runID)
	return err
}

// ReportObjectWorldPose 以世界坐标上报外部对象
// 说明：无法吸附到路网时只保存世界坐标，不视为错误
func (ctx *Context) ReportObjectWorldPose(id int32, name string, timestamp, x, y, z, h, p, r, speed float64) error {
	release, err := ctx.acquire()
	if err != nil {
		return err
	}
	defer release()
	ctx.gateway.ReportWorldPose(gateway.SourceExternal, id, name, timestamp, x, y, z, h, p, r, speed)
	return nil
}

// ReportObjectRoadPose 以道路坐标上报外部对象
func (ctx *Context) ReportObjectRoadPose(id int32, name string, timestamp float64, roadID, laneID int32, offset, s, speed float64) error {
	release, err := ctx.acquire()
	if err != nil {
		return err
	}
	defer release()
	_, err = ctx.gateway.ReportRoadPose(gateway.SourceExternal, id, name, timestamp, roadID, laneID, offset, s, speed)
	return err
}

// ObjectCount 最近一次提交中的对象个数，关闭后为0
func (ctx *Context) ObjectCount() int {
	release, err := ctx.acquire()
	if err != nil {
		return 0
	}
	defer release()
	return ctx.gateway.NumberOfObjects()
}

// ObjectState 按注册顺序下标读取对象状态
func (ctx *Context) ObjectState(index int) (ObjectStateRecord, error) {
	release, err := ctx.acquire()
	if err != nil {
		return ObjectStateRecord{}, err
	}
	defer release()
	s, err := ctx.gateway.ObjectStateByIndex(index)
	if err != nil {
		return ObjectStateRecord{}, err
	}
	return newRecord(s), nil
}

// ObjectStates 按注册顺序填充调用方缓冲区
// 返回：实际写入的个数，不超过max与len(out)
func (ctx *Context) ObjectStates(max int, out []ObjectStateRecord) int {
	release, err := ctx.acquire()
	if err != nil {
		return 0
	}
	defer release()
	max = min(max, len(out))
	if max <= 0 {
		return 0
	}
	states := ctx.gateway.ObjectStates(max)
	for i, s := range states {
		out[i] = newRecord(s)
	}
	return len(states)
}

// ObjectStatesByID 按ID读取最近一次提交中的对象状态
// 返回：找到的状态（与ids同序）与不存在的ID
func (ctx *Context) ObjectStatesByID(ids []int32) ([]ObjectStateRecord, []int32, error) {
	release, err := ctx.acquire()
	if err != nil {
		return nil, nil, err
	}
	defer release()
	snap := ctx.gateway.Snapshot()
	found, failed := utils.Find(func(id int32) (ObjectStateRecord, bool) {
		s, ok := snap.Find(id)
		return newRecord(s), ok
	}, ids)
	return found, failed, nil
}

// SteeringTarget 计算下标为index的对象沿当前车道前方lookahead处的转向目标
func (ctx *Context) SteeringTarget(index int, lookahead float64) (position.SteeringTarget, error) {
	release, err := ctx.acquire()
	if err != nil {
		return position.SteeringTarget{}, err
	}
	defer release()
	s, err := ctx.gateway.ObjectStateByIndex(index)
	if err != nil {
		return position.SteeringTarget{}, err
	}
	if !s.Pos.TrackValid {
		return position.SteeringTarget{}, fmt.Errorf("object %d: %w", s.ID, ErrNoRoadFix)
	}
	return s.Pos.SteeringTarget(ctx.network, lookahead)
}
