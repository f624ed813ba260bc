package road

import (
	"fmt"

	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
)

// Advance 沿车道行驶方向前进
// 功能：s按车道方向变化delta，越过道路端点时沿车道连接（或路口内唯一的连接）进入下一条道路
// 参数：coord-当前道路坐标，delta-前进距离（负数为后退）
// 返回：新的道路坐标，失败时返回原坐标与错误
// 算法说明：
// 1. 右侧车道s增大，左侧车道s减小
// 2. 越界部分从下一条道路的进入端开始计算
// 3. 进入端与离开端同为起点或同为终点时参考线方向反转，横向偏移取反
// 说明：没有后继、或路口存在多条候选连接时返回ErrRoadNetworkExhausted
func (n *Network) Advance(coord entity.TrackCoord, delta float64) (entity.TrackCoord, error) {
	r, err := n.GetOrError(coord.RoadID)
	if err != nil {
		return coord, err
	}
	if _, ok := r.lanes[coord.LaneID]; !ok {
		return coord, fmt.Errorf("road %d lane %d: %w", coord.RoadID, coord.LaneID, ErrUnknownLane)
	}
	res := coord
	res.S += entity.LaneDirection(coord.LaneID) * delta
	for range maxHops {
		var (
			end      entity.ContactPoint
			overflow float64
		)
		switch {
		case res.S > r.length:
			end, overflow = entity.ContactEnd, res.S-r.length
		case res.S < 0:
			end, overflow = entity.ContactStart, -res.S
		default:
			return res, nil
		}
		next, contact, lane, err := n.neighbor(r, end, res.LaneID)
		if err != nil {
			return coord, err
		}
		if contact == end {
			res.Offset = -res.Offset
		}
		r = next
		res.RoadID, res.LaneID, res.S = next.id, lane, enter(next, contact, overflow)
	}
	return coord, fmt.Errorf("road %d lane %d: more than %d hops: %w", coord.RoadID, coord.LaneID, maxHops, ErrRoadNetworkExhausted)
}
