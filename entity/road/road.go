package road

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
)

const (
	geometryGapTolerance = 1e-6 // 相邻几何元素s衔接的容差
	sampleStep           = 1.0  // 参考线采样间隔上限
)

type linkKind int

const (
	linkRoad linkKind = iota
	linkJunction
)

// link 道路端点连接，index为道路或路口在Network中的下标
type link struct {
	kind    linkKind
	index   int
	contact entity.ContactPoint
}

// Road 道路实体
// 功能：表示路网中的一段道路，包含参考线几何、高程、车道与两端连接
type Road struct {
	id       int32
	index    int
	name     string
	junction int32 // 所在路口ID，普通道路为-1
	length   float64

	geometry  []primitive
	elevation profile
	lanes     map[int32]*Lane
	rightIDs  []int32 // 右侧车道，由内向外（-1, -2, ...）
	leftIDs   []int32 // 左侧车道，由内向外（1, 2, ...）

	predecessor *link
	successor   *link

	bound     orb.Bound   // 含车道宽度与吸附距离的包围盒
	samples   []orb.Point // 参考线采样点，间隔不超过sampleStep
	halfWidth float64     // 单侧最大路面宽度
}

// newRoad 创建Road
// 功能：根据基础数据创建道路，校验几何连续性与车道ID，连接关系由Network稍后解析
func newRoad(base input.RoadData, index int) (*Road, error) {
	if len(base.Geometry) == 0 {
		return nil, fmt.Errorf("road %d: empty geometry", base.ID)
	}
	r := &Road{
		id:        base.ID,
		index:     index,
		name:      base.Name,
		junction:  -1,
		elevation: newProfile(base.Elevation),
		lanes:     make(map[int32]*Lane, len(base.Lanes)),
	}
	if base.Junction != nil {
		r.junction = *base.Junction
	}
	for _, g := range base.Geometry {
		if math.Abs(g.S-r.length) > geometryGapTolerance {
			return nil, fmt.Errorf("road %d: geometry starts at s=%v, expected %v", base.ID, g.S, r.length)
		}
		p, err := newPrimitive(g)
		if err != nil {
			return nil, fmt.Errorf("road %d: %w", base.ID, err)
		}
		r.geometry = append(r.geometry, p)
		r.length += g.Length
	}
	for _, l := range base.Lanes {
		if l.ID == 0 {
			return nil, fmt.Errorf("road %d: lane id 0 is reserved for the reference line", base.ID)
		}
		if _, ok := r.lanes[l.ID]; ok {
			return nil, fmt.Errorf("road %d: duplicate lane %d", base.ID, l.ID)
		}
		r.lanes[l.ID] = newLane(l)
	}
	ids := lo.Keys(r.lanes)
	r.rightIDs = lo.Filter(ids, func(id int32, _ int) bool { return id < 0 })
	r.leftIDs = lo.Filter(ids, func(id int32, _ int) bool { return id > 0 })
	sort.Slice(r.rightIDs, func(i, j int) bool { return r.rightIDs[i] > r.rightIDs[j] })
	sort.Slice(r.leftIDs, func(i, j int) bool { return r.leftIDs[i] < r.leftIDs[j] })
	return r, nil
}

func (r *Road) ID() int32 {
	return r.id
}

func (r *Road) Name() string {
	return r.name
}

func (r *Road) Length() float64 {
	return r.length
}

// Junction 所在路口ID，普通道路为-1
func (r *Road) Junction() int32 {
	return r.junction
}

// Lane 查找车道
func (r *Road) Lane(id int32) (*Lane, bool) {
	l, ok := r.lanes[id]
	return l, ok
}

// LaneIDs 全部车道ID，从左到右排序
func (r *Road) LaneIDs() []int32 {
	ids := make([]int32, 0, len(r.lanes))
	for i := len(r.leftIDs) - 1; i >= 0; i-- {
		ids = append(ids, r.leftIDs[i])
	}
	return append(ids, r.rightIDs...)
}

func (r *Road) clamp(s float64) float64 {
	return lo.Clamp(s, 0, r.length)
}

// primitiveAt 查找s所在的几何元素，s须已截断到[0, length]
func (r *Road) primitiveAt(s float64) primitive {
	i := sort.Search(len(r.geometry), func(i int) bool { return r.geometry[i].start() > s }) - 1
	return r.geometry[max(i, 0)]
}

// evaluate 计算本道路参考线位姿，s截断到[0, length]
func (r *Road) evaluate(s float64) entity.RefPose {
	s = r.clamp(s)
	p := r.primitiveAt(s)
	ds := min(s-p.start(), p.length())
	x, y, hdg := p.eval(ds)
	z, dz := r.elevation.at(s)
	return entity.RefPose{
		RoadID:  r.id,
		S:       s,
		X:       x,
		Y:       y,
		Z:       z,
		Heading: hdg,
		Pitch:   math.Atan(dz),
	}
}

func (r *Road) curvature(s float64) float64 {
	s = r.clamp(s)
	p := r.primitiveAt(s)
	return p.curvature(min(s-p.start(), p.length()))
}

// sideIDs 车道所在一侧的车道ID，由内向外
func (r *Road) sideIDs(laneID int32) []int32 {
	if laneID < 0 {
		return r.rightIDs
	}
	return r.leftIDs
}

// laneCenter 车道中心线相对参考线的横向距离（左正右负）
// 算法说明：内侧车道宽度之和加本车道宽度的一半
func (r *Road) laneCenter(laneID int32, s float64) float64 {
	t := 0.
	for _, id := range r.sideIDs(laneID) {
		w := r.lanes[id].Width(s)
		if id == laneID {
			t += w / 2
			break
		}
		t += w
	}
	if laneID < 0 {
		return -t
	}
	return t
}

// sideWidth 某一侧车道的总宽度
func (r *Road) sideWidth(ids []int32, s float64) float64 {
	return lo.SumBy(ids, func(id int32) float64 { return r.lanes[id].Width(s) })
}

// locateLane 根据横向距离t定位车道
// 返回：车道ID，路面外的横向距离（位于车道内时为0）
func (r *Road) locateLane(t, s float64) (int32, float64, bool) {
	ids := r.rightIDs
	if t > 0 || (t == 0 && len(ids) == 0) {
		ids = r.leftIDs
	}
	if len(ids) == 0 {
		// 该侧无车道，吸附到另一侧最内侧车道
		other := lo.Ternary(t > 0, r.rightIDs, r.leftIDs)
		if len(other) == 0 {
			return 0, 0, false
		}
		return other[0], math.Abs(t), true
	}
	acc := 0.
	for _, id := range ids {
		acc += r.lanes[id].Width(s)
		if math.Abs(t) <= acc {
			return id, 0, true
		}
	}
	return ids[len(ids)-1], math.Abs(t) - acc, true
}

// initBound 采样参考线计算包围盒，采样点供Network建立空间索引
func (r *Road) initBound(pad float64) {
	n := int(math.Ceil(r.length/sampleStep)) + 1
	mp := make(orb.MultiPoint, 0, n)
	halfWidth := 0.
	for i := range n {
		s := r.length * float64(i) / float64(n-1)
		ref := r.evaluate(s)
		mp = append(mp, orb.Point{ref.X, ref.Y})
		halfWidth = max(halfWidth, r.sideWidth(r.rightIDs, s), r.sideWidth(r.leftIDs, s))
	}
	r.samples = mp
	r.halfWidth = halfWidth
	r.bound = mp.Bound().Pad(halfWidth + pad)
}
