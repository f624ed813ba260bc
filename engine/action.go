package engine

import (
	"fmt"

	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/position"
	"github.com/tsinghua-fib-lab/scenario-gateway/gateway"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
)

// triggerEpsilon 时间触发的容差，避免浮点累加误差导致错过触发步
const triggerEpsilon = 1e-9

// Action 场景动作
// 说明：每个动作至多执行一次，执行时可通过网关读写任意对象
type Action interface {
	Name() string
	// 当前时间是否满足触发条件
	Triggered(t float64) bool
	// 执行动作
	Apply(t float64, gw *gateway.Gateway, network entity.IRoadNetwork) error
}

// Scheduled 触发时间固定的动作，引擎按时间排队而不是每步轮询
type Scheduled interface {
	Action
	TriggerTime() float64
}

// TimeTrigger 仿真时间达到At时触发
type TimeTrigger struct {
	At float64
}

func (tt TimeTrigger) Triggered(t float64) bool {
	return t+triggerEpsilon >= tt.At
}

func (tt TimeTrigger) TriggerTime() float64 {
	return tt.At
}

// SpeedAction 设置对象速度
type SpeedAction struct {
	TimeTrigger
	ActionName string
	ObjectID   int32
	Speed      float64
}

func (a *SpeedAction) Name() string { return a.ActionName }

func (a *SpeedAction) Apply(t float64, gw *gateway.Gateway, _ entity.IRoadNetwork) error {
	return gw.UpdateObject(a.ObjectID, func(s gateway.ObjectState) (gateway.ObjectState, error) {
		s.Speed = a.Speed
		s.Timestamp = t
		s.Source = gateway.SourceInternal
		return s, nil
	})
}

// TeleportAction 把对象移动到指定道路坐标
type TeleportAction struct {
	TimeTrigger
	ActionName string
	ObjectID   int32
	Target     input.TrackData
}

func (a *TeleportAction) Name() string { return a.ActionName }

func (a *TeleportAction) Apply(t float64, gw *gateway.Gateway, network entity.IRoadNetwork) error {
	pos, err := position.FromTrack(network, a.Target.Road, a.Target.Lane, a.Target.S, a.Target.Offset, a.Target.H, 0, 0)
	if err != nil {
		return err
	}
	return gw.UpdateObject(a.ObjectID, func(s gateway.ObjectState) (gateway.ObjectState, error) {
		s.Pos = pos
		s.Timestamp = t
		s.Source = gateway.SourceInternal
		return s, nil
	})
}

// LaneChangeAction 瞬时换到同一道路上的另一条车道，保持s与相对航向，横向偏移归零
type LaneChangeAction struct {
	TimeTrigger
	ActionName string
	ObjectID   int32
	Lane       int32
}

func (a *LaneChangeAction) Name() string { return a.ActionName }

func (a *LaneChangeAction) Apply(t float64, gw *gateway.Gateway, network entity.IRoadNetwork) error {
	return gw.UpdateObject(a.ObjectID, func(s gateway.ObjectState) (gateway.ObjectState, error) {
		if !s.Pos.TrackValid {
			return s, fmt.Errorf("object %d: %w", a.ObjectID, position.ErrNoRoadNetwork)
		}
		pos, err := position.FromTrack(network, s.Pos.RoadID, a.Lane, s.Pos.S, 0, s.Pos.HRel, s.Pos.PRel, s.Pos.RRel)
		if err != nil {
			return s, err
		}
		s.Pos = pos
		s.Timestamp = t
		s.Source = gateway.SourceInternal
		return s, nil
	})
}

// NewAction 根据场景数据创建内置动作
// 说明：speed、teleport、lane_change必须恰好给出一个
func NewAction(data input.ActionData) (Scheduled, error) {
	trigger := TimeTrigger{At: data.Trigger.Time}
	var (
		res   Scheduled
		count int
	)
	if data.Speed != nil {
		res = &SpeedAction{TimeTrigger: trigger, ActionName: data.Name, ObjectID: data.Object, Speed: data.Speed.Value}
		count++
	}
	if data.Teleport != nil {
		res = &TeleportAction{TimeTrigger: trigger, ActionName: data.Name, ObjectID: data.Object, Target: *data.Teleport}
		count++
	}
	if data.LaneChange != nil {
		res = &LaneChangeAction{TimeTrigger: trigger, ActionName: data.Name, ObjectID: data.Object, Lane: data.LaneChange.Lane}
		count++
	}
	if count != 1 {
		return nil, fmt.Errorf("action %q: expected exactly one of speed, teleport, lane_change, got %d", data.Name, count)
	}
	return res, nil
}
