package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/position"
	"github.com/tsinghua-fib-lab/scenario-gateway/gateway"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/container"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
)

var (
	ErrStepExecution      = errors.New("step execution failed")
	ErrNotInitialized     = errors.New("engine not initialized")
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrClosed             = errors.New("engine closed")

	errUnchanged = errors.New("unchanged")
)

// State 引擎状态
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateStepping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStepping:
		return "stepping"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// pending 尚未执行的轮询动作
type pending struct {
	action Action
	fired  bool
}

// Engine 场景引擎
// 功能：持有仿真时钟，每次Step推进时钟、移动内部对象、执行到期动作，最后提交网关
// 说明：Step与Close互斥，网关的外部写入可与Step并发
type Engine struct {
	ctx entity.ITaskContext
	gw  *gateway.Gateway

	mtx       sync.Mutex
	state     State
	scheduled *container.PriorityQueue[Action] // 按触发时间排队的动作
	polled    []*pending                       // 每步轮询触发条件的动作
}

// New 创建引擎
func New(ctx entity.ITaskContext, gw *gateway.Gateway) *Engine {
	return &Engine{
		ctx:       ctx,
		gw:        gw,
		scheduled: container.NewPriorityQueue[Action](),
	}
}

// State 当前状态
func (e *Engine) State() State {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.state
}

// AddAction 加入动作
// 说明：实现Scheduled的动作按触发时间排队，同一时间按加入顺序执行；其余动作每步轮询
func (e *Engine) AddAction(a Action) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.addAction(a)
}

func (e *Engine) addAction(a Action) {
	if s, ok := a.(Scheduled); ok {
		e.scheduled.Push(s, s.TriggerTime())
		return
	}
	e.polled = append(e.polled, &pending{action: a})
}

// Init 初始化
// 功能：登记场景初始对象与动作，然后执行一次零时长的步进
// 参数：objects-初始对象，actions-场景动作
// 返回：
//   - 初始对象位置无法解析或动作不合法时返回错误，引擎保持未初始化
//   - 零时长步进中动作失败时返回包装了ErrStepExecution的错误，此时引擎已初始化且快照已提交
//
// 说明：零时长步进把初始化前外部上报的对象一并纳入第一个快照
func (e *Engine) Init(objects []input.ObjectData, actions []input.ActionData) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	switch e.state {
	case StateClosed:
		return ErrClosed
	case StateUninitialized:
	default:
		return ErrAlreadyInitialized
	}

	network := e.ctx.RoadNetwork()
	t, _ := e.ctx.Clock().Now()
	states := make([]gateway.ObjectState, 0, len(objects))
	seen := make(map[int32]struct{}, len(objects))
	for _, o := range objects {
		if _, ok := seen[o.ID]; ok {
			return fmt.Errorf("duplicate object id %d", o.ID)
		}
		seen[o.ID] = struct{}{}
		p := o.Position
		pos, err := position.FromTrack(network, p.Road, p.Lane, p.S, p.Offset, p.H, 0, 0)
		if err != nil {
			return fmt.Errorf("object %d: %w", o.ID, err)
		}
		src := gateway.SourceInternal
		if o.External {
			src = gateway.SourceExternal
		}
		states = append(states, gateway.ObjectState{
			ID:        o.ID,
			Name:      o.Name,
			Timestamp: t,
			Pos:       pos,
			Speed:     o.Speed,
			Source:    src,
		})
	}
	built := make([]Action, 0, len(actions))
	for _, a := range actions {
		action, err := NewAction(a)
		if err != nil {
			return err
		}
		built = append(built, action)
	}

	for _, s := range states {
		e.gw.ReportObject(s)
	}
	for _, a := range built {
		e.addAction(a)
	}
	e.state = StateInitialized
	log.Infof("engine initialized with %d objects and %d actions", len(states), len(built))
	_, err := e.step(0)
	return err
}

// Step 推进一步
// 功能：
// 1. 时钟推进dt
// 2. 内部对象沿车道前进 speed*dt
// 3. 按顺序执行到期动作，首个失败的动作中止本步其余动作（未执行的动作留到下一步）
// 4. 提交网关快照
// 返回：本步快照；移动或动作失败时返回包装了ErrStepExecution的错误，快照仍然提交
func (e *Engine) Step(dt float64) (*gateway.Snapshot, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	switch e.state {
	case StateUninitialized:
		return nil, ErrNotInitialized
	case StateClosed:
		return nil, ErrClosed
	}
	if dt < 0 {
		return nil, fmt.Errorf("negative step %v", dt)
	}
	e.state = StateStepping
	return e.step(dt)
}

func (e *Engine) step(dt float64) (*gateway.Snapshot, error) {
	t := e.ctx.Clock().Advance(dt)
	errs := make([]error, 0)
	if dt > 0 {
		errs = append(errs, e.move(t, dt)...)
	}
	if err := e.runActions(t); err != nil {
		errs = append(errs, err)
	}
	snap := e.gw.CommitStep(t)
	log.Debugf("step %d committed at t=%.3f with %d objects", snap.Step, t, snap.Len())
	if len(errs) > 0 {
		return snap, fmt.Errorf("%w: %w", ErrStepExecution, errors.Join(errs...))
	}
	return snap, nil
}

// move 内部对象沿车道前进
// 说明：到达路网尽头的对象停在最后的有效位置并停车
func (e *Engine) move(t, dt float64) []error {
	network := e.ctx.RoadNetwork()
	errs := make([]error, 0)
	for _, id := range e.gw.ObjectIDs() {
		err := e.gw.UpdateObject(id, func(s gateway.ObjectState) (gateway.ObjectState, error) {
			if s.Source != gateway.SourceInternal || !s.Pos.TrackValid {
				return s, errUnchanged
			}
			s.Timestamp = t
			if s.Speed == 0 {
				return s, nil
			}
			pos, err := s.Pos.MoveAlongLane(network, s.Speed*dt)
			if err != nil {
				log.Warnf("object %d stopped at road %d s=%.2f: %v", id, s.Pos.RoadID, s.Pos.S, err)
				s.Speed = 0
				errs = append(errs, fmt.Errorf("object %d: %w", id, err))
				return s, nil
			}
			s.Pos = pos
			return s, nil
		})
		if err != nil && !errors.Is(err, errUnchanged) && !errors.Is(err, gateway.ErrUnknownObject) {
			errs = append(errs, err)
		}
	}
	return errs
}

// runActions 执行到期动作
// 说明：排队动作按(触发时间, 加入顺序)在前，轮询动作按加入顺序在后
func (e *Engine) runActions(t float64) error {
	due := make([]*pending, 0)
	for _, a := range e.scheduled.PopUntil(t + triggerEpsilon) {
		due = append(due, &pending{action: a})
	}
	for _, p := range e.polled {
		if !p.fired && p.action.Triggered(t) {
			due = append(due, p)
		}
	}
	network := e.ctx.RoadNetwork()
	for i, p := range due {
		p.fired = true
		if err := p.action.Apply(t, e.gw, network); err != nil {
			log.Errorf("action %q failed at t=%.3f: %v", p.action.Name(), t, err)
			for _, rest := range due[i+1:] {
				if s, ok := rest.action.(Scheduled); ok && !rest.fired {
					e.scheduled.Push(s, s.TriggerTime())
				}
			}
			return fmt.Errorf("action %q: %w", p.action.Name(), err)
		}
		log.Debugf("action %q applied at t=%.3f", p.action.Name(), t)
	}
	return nil
}

// Pending 尚未执行的动作数
func (e *Engine) Pending() int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	n := e.scheduled.Len()
	for _, p := range e.polled {
		if !p.fired {
			n++
		}
	}
	return n
}

// Close 关闭引擎，可重复调用
func (e *Engine) Close() {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.state == StateClosed {
		return
	}
	e.state = StateClosed
	e.scheduled = container.NewPriorityQueue[Action]()
	e.polled = nil
}
