package road

import (
	"fmt"

	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
)

// connection 路口连接，incoming与connecting为道路下标
type connection struct {
	incoming   int
	connecting int
	contact    entity.ContactPoint // 进入connecting道路的端点
	laneLinks  map[int32]int32     // incoming车道 -> connecting车道
}

// Junction 路口
type Junction struct {
	id          int32
	connections []connection
}

func (j *Junction) ID() int32 {
	return j.id
}

// newJunction 创建Junction，道路须已全部创建
func newJunction(base input.JunctionData, roadIndex map[int32]int) (*Junction, error) {
	j := &Junction{id: base.ID}
	for _, c := range base.Connections {
		in, ok := roadIndex[c.IncomingRoad]
		if !ok {
			return nil, fmt.Errorf("junction %d: incoming road %d: %w", base.ID, c.IncomingRoad, ErrUnknownRoad)
		}
		conn, ok := roadIndex[c.ConnectingRoad]
		if !ok {
			return nil, fmt.Errorf("junction %d: connecting road %d: %w", base.ID, c.ConnectingRoad, ErrUnknownRoad)
		}
		contact, err := parseContact(c.ContactPoint)
		if err != nil {
			return nil, fmt.Errorf("junction %d: %w", base.ID, err)
		}
		links := make(map[int32]int32, len(c.LaneLinks))
		for _, ll := range c.LaneLinks {
			links[ll.From] = ll.To
		}
		j.connections = append(j.connections, connection{
			incoming:   in,
			connecting: conn,
			contact:    contact,
			laneLinks:  links,
		})
	}
	return j, nil
}

// resolve 从incoming道路进入路口
// 参数：incoming-道路下标，laneID-车道ID，为0时只按道路匹配
// 返回：唯一匹配的连接与目标车道
// 说明：没有匹配或存在多条匹配时返回ErrRoadNetworkExhausted，多路径的选择由上层动作负责
func (j *Junction) resolve(incoming int, laneID int32) (connection, int32, error) {
	var (
		found []connection
		lanes []int32
	)
	for _, c := range j.connections {
		if c.incoming != incoming {
			continue
		}
		if laneID == 0 {
			found = append(found, c)
			lanes = append(lanes, 0)
			continue
		}
		if to, ok := c.laneLinks[laneID]; ok {
			found = append(found, c)
			lanes = append(lanes, to)
		}
	}
	switch len(found) {
	case 0:
		return connection{}, 0, fmt.Errorf("junction %d: no connection for lane %d: %w", j.id, laneID, ErrRoadNetworkExhausted)
	case 1:
		return found[0], lanes[0], nil
	default:
		return connection{}, 0, fmt.Errorf("junction %d: %d candidate connections for lane %d: %w", j.id, len(found), laneID, ErrRoadNetworkExhausted)
	}
}

func parseContact(v string) (entity.ContactPoint, error) {
	switch v {
	case "start":
		return entity.ContactStart, nil
	case "end":
		return entity.ContactEnd, nil
	default:
		return 0, fmt.Errorf("unknown contact point %q", v)
	}
}
