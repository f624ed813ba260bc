package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/position"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/container"
)

// Gateway 场景网关
// 功能：对象状态的唯一登记处，内部引擎与外部调用方都通过它写入，消费者通过它读取一致的快照
// 说明：
//   - 写入（Report*/Update/Remove）随时可调用，互相之间以及与CommitStep之间是原子的
//   - 同一ID在两次提交之间以最后一次写入为准，写入总是整体替换
//   - 读者只能拿到快照或副本，不会引用到正在修改的数据
type Gateway struct {
	network entity.IRoadNetwork

	mtx     sync.Mutex
	runtime *container.OrderedMap[int32, ObjectState] // 当前正在写入的状态，按注册顺序
	step    int64

	snapshot atomic.Pointer[Snapshot] // 最近一次提交的快照
}

// New 创建网关
// 参数：network-路网，用于把上报的位置换算为完整的Position
func New(network entity.IRoadNetwork) *Gateway {
	g := &Gateway{
		network: network,
		runtime: container.NewOrderedMap[int32, ObjectState](),
	}
	g.snapshot.Store(&Snapshot{states: []ObjectState{}})
	return g
}

// ReportObject 写入对象状态
// 功能：ID首次出现时注册到下一个下标，否则整体覆盖
// 返回：对象下标
func (g *Gateway) ReportObject(state ObjectState) int {
	state.Updated = true
	g.mtx.Lock()
	defer g.mtx.Unlock()
	index, added := g.runtime.Set(state.ID, state)
	if added {
		log.Debugf("register object %d(%s) at index %d from %v", state.ID, state.Name, index, state.Source)
	}
	return index
}

// ReportWorldPose 以世界坐标写入对象状态
// 说明：位置吸附到路网，吸附失败时只保存世界坐标
func (g *Gateway) ReportWorldPose(src Source, id int32, name string, timestamp, x, y, z, h, p, r, speed float64) ObjectState {
	pos := position.FromWorld(g.network, x, y, z, h, p, r)
	if !pos.TrackValid {
		log.Warnf("object %d at (%.2f, %.2f) is off road", id, x, y)
	}
	state := ObjectState{
		ID:        id,
		Name:      name,
		Timestamp: timestamp,
		Pos:       pos,
		Speed:     speed,
		Source:    src,
	}
	g.ReportObject(state)
	return state
}

// ReportRoadPose 以道路坐标写入对象状态
// 返回：道路或车道不存在时返回错误且不修改已有状态
func (g *Gateway) ReportRoadPose(src Source, id int32, name string, timestamp float64, roadID, laneID int32, offset, s, speed float64) (ObjectState, error) {
	pos, err := position.FromTrack(g.network, roadID, laneID, s, offset, 0, 0, 0)
	if err != nil {
		return ObjectState{}, fmt.Errorf("report object %d: %w", id, err)
	}
	state := ObjectState{
		ID:        id,
		Name:      name,
		Timestamp: timestamp,
		Pos:       pos,
		Speed:     speed,
		Source:    src,
	}
	g.ReportObject(state)
	return state, nil
}

// UpdateObject 原子地读改写已有对象
// 参数：f-返回新状态与错误，出错时不写入
// 返回：对象不存在时返回ErrUnknownObject
func (g *Gateway) UpdateObject(id int32, f func(ObjectState) (ObjectState, error)) error {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	ok, err := g.runtime.Update(id, func(old ObjectState) (ObjectState, error) {
		state, err := f(old)
		state.ID = id
		state.Updated = true
		return state, err
	})
	if !ok {
		return fmt.Errorf("object %d: %w", id, ErrUnknownObject)
	}
	return err
}

// RemoveObject 显式删除对象，后续对象的下标依次前移
func (g *Gateway) RemoveObject(id int32) bool {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.runtime.Delete(id)
}

// Object 读取当前（未提交）状态的副本，供场景动作使用
func (g *Gateway) Object(id int32) (ObjectState, bool) {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.runtime.Get(id)
}

// ObjectIDs 当前已注册对象的ID，按注册顺序
func (g *Gateway) ObjectIDs() []int32 {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return g.runtime.Keys()
}

// CommitStep 提交一步
// 功能：把当前状态发布为该时刻的快照，并清除所有对象的Updated标记
// 返回：新快照
func (g *Gateway) CommitStep(timestamp float64) *Snapshot {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.step++
	snap := &Snapshot{
		Time:   timestamp,
		Step:   g.step,
		states: g.runtime.Values(),
	}
	g.runtime.Range(func(i int, id int32, state ObjectState) bool {
		state.Updated = false
		g.runtime.Set(id, state)
		return true
	})
	g.snapshot.Store(snap)
	return snap
}

// Snapshot 最近一次提交的快照，提交前为空快照
func (g *Gateway) Snapshot() *Snapshot {
	return g.snapshot.Load()
}

// NumberOfObjects 快照中的对象个数
func (g *Gateway) NumberOfObjects() int {
	return g.Snapshot().Len()
}

// ObjectStateByIndex 快照中第i个对象，越界时返回ErrIndexOutOfRange
func (g *Gateway) ObjectStateByIndex(i int) (ObjectState, error) {
	return g.Snapshot().At(i)
}

// ObjectStateByID 快照中指定ID的对象，不存在时返回ErrUnknownObject
func (g *Gateway) ObjectStateByID(id int32) (ObjectState, error) {
	if state, ok := g.Snapshot().Find(id); ok {
		return state, nil
	}
	return ObjectState{}, fmt.Errorf("object %d: %w", id, ErrUnknownObject)
}

// ObjectStates 快照中至多max个对象状态
func (g *Gateway) ObjectStates(max int) []ObjectState {
	return g.Snapshot().States(max)
}
