package road

import (
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/paulmach/orb/quadtree"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
)

const (
	maxHops = 64 // 沿连接解析s时最多经过的道路数
)

var (
	ErrUnknownRoad          = entity.ErrUnknownRoad
	ErrInvalidRoad          = ErrUnknownRoad
	ErrUnknownLane          = entity.ErrUnknownLane
	ErrOutOfRange           = entity.ErrOutOfRange
	ErrRoadNetworkExhausted = entity.ErrRoadNetworkExhausted
)

// Network 路网
// 功能：道路与路口的只读集合，道路按输入顺序平铺存储，连接关系以下标表示
// 说明：构建完成后不再修改，可被任意数量的协程并发读取
type Network struct {
	roads         []*Road
	roadIndex     map[int32]int
	junctions     []*Junction
	junctionIndex map[int32]int

	snapDistance  float64
	snapTolerance float64

	tree  *quadtree.Quadtree // 参考线采样点索引
	reach float64            // 采样点到可吸附位置的最大距离
}

var _ entity.IRoadNetwork = (*Network)(nil)

// NewNetwork 构建路网
// 功能：根据输入数据创建全部道路、路口，解析连接关系并建立空间索引
// 参数：m-路网数据，c-控制参数（吸附距离与精度）
// 返回：路网，数据不合法时返回错误
// 算法说明：
// 1. 逐条创建道路并检查ID唯一性
// 2. 创建路口（依赖道路下标）
// 3. 将道路两端的road/junction连接解析为下标
// 4. 并行计算每条道路的包围盒与参考线采样点
// 5. 将全部采样点加入四叉树
func NewNetwork(m *input.MapData, c config.Control) (*Network, error) {
	if m == nil {
		return nil, fmt.Errorf("nil map data")
	}
	n := &Network{
		roads:         make([]*Road, 0, len(m.Roads)),
		roadIndex:     make(map[int32]int, len(m.Roads)),
		junctions:     make([]*Junction, 0, len(m.Junctions)),
		junctionIndex: make(map[int32]int, len(m.Junctions)),
		snapDistance:  c.SnapDistance,
		snapTolerance: c.SnapTolerance,
	}
	for i, base := range m.Roads {
		if _, ok := n.roadIndex[base.ID]; ok {
			return nil, fmt.Errorf("duplicate road id %d", base.ID)
		}
		r, err := newRoad(base, i)
		if err != nil {
			return nil, err
		}
		n.roads = append(n.roads, r)
		n.roadIndex[r.id] = i
	}
	for i, base := range m.Junctions {
		if _, ok := n.junctionIndex[base.ID]; ok {
			return nil, fmt.Errorf("duplicate junction id %d", base.ID)
		}
		j, err := newJunction(base, n.roadIndex)
		if err != nil {
			return nil, err
		}
		n.junctions = append(n.junctions, j)
		n.junctionIndex[j.id] = i
	}
	for i, base := range m.Roads {
		var err error
		r := n.roads[i]
		if r.predecessor, err = n.parseLink(base.Predecessor); err != nil {
			return nil, fmt.Errorf("road %d predecessor: %w", r.id, err)
		}
		if r.successor, err = n.parseLink(base.Successor); err != nil {
			return nil, fmt.Errorf("road %d successor: %w", r.id, err)
		}
	}
	parallel.GoFor(n.roads, func(r *Road) { r.initBound(n.snapDistance) })
	if err := n.initIndex(); err != nil {
		return nil, err
	}
	log.Infof("road network: %d roads, %d junctions, total length %.1f",
		len(n.roads), len(n.junctions), lo.SumBy(n.roads, func(r *Road) float64 { return r.length }))
	return n, nil
}

func (n *Network) parseLink(l *input.LinkData) (*link, error) {
	if l == nil {
		return nil, nil
	}
	switch l.Type {
	case "road":
		index, ok := n.roadIndex[l.ID]
		if !ok {
			return nil, fmt.Errorf("road %d: %w", l.ID, ErrUnknownRoad)
		}
		contact, err := parseContact(l.Contact)
		if err != nil {
			return nil, err
		}
		return &link{kind: linkRoad, index: index, contact: contact}, nil
	case "junction":
		index, ok := n.junctionIndex[l.ID]
		if !ok {
			return nil, fmt.Errorf("unknown junction %d", l.ID)
		}
		return &link{kind: linkJunction, index: index}, nil
	default:
		return nil, fmt.Errorf("unknown link type %q", l.Type)
	}
}

// Roads 全部道路，按输入顺序
func (n *Network) Roads() []*Road {
	return n.roads
}

// Get 根据ID获取Road，不存在时返回nil
func (n *Network) Get(id int32) *Road {
	if i, ok := n.roadIndex[id]; ok {
		return n.roads[i]
	}
	return nil
}

// GetOrError 根据ID获取Road（带错误处理）
func (n *Network) GetOrError(id int32) (*Road, error) {
	if i, ok := n.roadIndex[id]; ok {
		return n.roads[i], nil
	}
	return nil, fmt.Errorf("no id %d in road data: %w", id, ErrUnknownRoad)
}

// Junction 根据ID获取Junction，不存在时返回nil
func (n *Network) Junction(id int32) *Junction {
	if i, ok := n.junctionIndex[id]; ok {
		return n.junctions[i]
	}
	return nil
}

// neighbor 从道路r的end端离开时的下一条道路
// 参数：r-当前道路，end-离开的端点，laneID-当前车道，为0时只解析道路
// 返回：下一条道路，进入下一条道路的端点，下一条道路上的车道
func (n *Network) neighbor(r *Road, end entity.ContactPoint, laneID int32) (*Road, entity.ContactPoint, int32, error) {
	l := lo.Ternary(end == entity.ContactEnd, r.successor, r.predecessor)
	if l == nil {
		return nil, 0, 0, fmt.Errorf("road %d has no link at %v: %w", r.id, end, ErrRoadNetworkExhausted)
	}
	if l.kind == linkJunction {
		conn, to, err := n.junctions[l.index].resolve(r.index, laneID)
		if err != nil {
			return nil, 0, 0, err
		}
		next := n.roads[conn.connecting]
		if laneID != 0 {
			if _, ok := next.lanes[to]; !ok {
				return nil, 0, 0, fmt.Errorf("road %d has no lane %d: %w", next.id, to, ErrRoadNetworkExhausted)
			}
		}
		return next, conn.contact, to, nil
	}
	next := n.roads[l.index]
	if laneID == 0 {
		return next, l.contact, 0, nil
	}
	lane, ok := r.lanes[laneID]
	if !ok {
		return nil, 0, 0, fmt.Errorf("road %d lane %d: %w", r.id, laneID, ErrUnknownLane)
	}
	to := lane.link(end)
	if to == nil {
		return nil, 0, 0, fmt.Errorf("road %d lane %d has no link at %v: %w", r.id, laneID, end, ErrRoadNetworkExhausted)
	}
	if _, ok := next.lanes[*to]; !ok {
		return nil, 0, 0, fmt.Errorf("road %d has no lane %d: %w", next.id, *to, ErrRoadNetworkExhausted)
	}
	return next, l.contact, *to, nil
}

// enter 从contact端进入道路r并前进overflow后的s
func enter(r *Road, contact entity.ContactPoint, overflow float64) float64 {
	if contact == entity.ContactStart {
		return overflow
	}
	return r.length - overflow
}

// Evaluate 计算参考线位姿
// 功能：s越界时沿道路连接解析到相邻道路
// 返回：参考线位姿（RoadID与S为解析后的值）
// 说明：
//   - s<0且没有可解析的前驱时返回ErrOutOfRange
//   - s>length且没有可解析的后继时截断到道路终点
func (n *Network) Evaluate(roadID int32, s float64) (entity.RefPose, error) {
	r, err := n.GetOrError(roadID)
	if err != nil {
		return entity.RefPose{}, err
	}
	for range maxHops {
		switch {
		case s < 0:
			next, contact, _, err := n.neighbor(r, entity.ContactStart, 0)
			if err != nil {
				return entity.RefPose{}, fmt.Errorf("road %d s=%v: %w", r.id, s, ErrOutOfRange)
			}
			s, r = enter(next, contact, -s), next
		case s > r.length:
			next, contact, _, err := n.neighbor(r, entity.ContactEnd, 0)
			if err != nil {
				return r.evaluate(r.length), nil
			}
			s, r = enter(next, contact, s-r.length), next
		default:
			return r.evaluate(s), nil
		}
	}
	return entity.RefPose{}, fmt.Errorf("road %d s=%v: more than %d hops: %w", roadID, s, maxHops, ErrOutOfRange)
}

// LaneWidth 车道宽度，道路或车道不存在时为0
func (n *Network) LaneWidth(roadID, laneID int32, s float64) float64 {
	r := n.Get(roadID)
	if r == nil {
		return 0
	}
	l, ok := r.lanes[laneID]
	if !ok || s < 0 || s > r.length {
		return 0
	}
	return l.Width(s)
}

// ResolveLaneOffset 车道中心线加横向偏移后的世界位姿
// 功能：参考线位姿沿左法向平移 内侧车道宽度之和 + 本车道半宽 + offset
// 参数：roadID-道路，laneID-车道，s-纵向位置（截断到道路范围），offset-相对车道中心的偏移，左正
func (n *Network) ResolveLaneOffset(roadID, laneID int32, s, offset float64) (entity.LanePose, error) {
	r, err := n.GetOrError(roadID)
	if err != nil {
		return entity.LanePose{}, err
	}
	if _, ok := r.lanes[laneID]; !ok {
		return entity.LanePose{}, fmt.Errorf("road %d lane %d: %w", roadID, laneID, ErrUnknownLane)
	}
	s = r.clamp(s)
	ref := r.evaluate(s)
	t := r.laneCenter(laneID, s) + offset
	nx, ny := -math.Sin(ref.Heading), math.Cos(ref.Heading)
	return entity.LanePose{
		S:       s,
		X:       ref.X + t*nx,
		Y:       ref.Y + t*ny,
		Z:       ref.Z,
		Heading: ref.Heading,
		Pitch:   ref.Pitch,
		T:       t,
		NormalX: nx,
		NormalY: ny,
	}, nil
}

// Curvature 参考线曲率，直线为0，s截断到道路范围
func (n *Network) Curvature(roadID int32, s float64) (float64, error) {
	r, err := n.GetOrError(roadID)
	if err != nil {
		return 0, err
	}
	return r.curvature(s), nil
}
