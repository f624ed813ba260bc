package road

import (
	"fmt"
	"math"
	"slices"

	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
)

// projection 点在道路参考线上的投影
type projection struct {
	s        float64
	ref      entity.RefPose
	t        float64 // 相对参考线的横向距离，左正
	overhang float64 // 超出道路端点的纵向距离
}

// sample 参考线采样点，记录所属道路下标
type sample struct {
	p    orb.Point
	road int
}

func (s sample) Point() orb.Point {
	return s.p
}

// initIndex 建立参考线采样点的四叉树
// 说明：可吸附的点到参考线的距离不超过 halfWidth+snapDistance，采样间隔不超过sampleStep，
// 查询半径取二者之和
func (n *Network) initIndex() error {
	var bound orb.Bound
	for i, r := range n.roads {
		if i == 0 {
			bound = r.bound
		} else {
			bound = bound.Union(r.bound)
		}
		n.reach = max(n.reach, r.halfWidth+n.snapDistance+sampleStep)
	}
	n.tree = quadtree.New(bound)
	for _, r := range n.roads {
		for _, p := range r.samples {
			if err := n.tree.Add(sample{p: p, road: r.index}); err != nil {
				return fmt.Errorf("road %d: index sample %v: %w", r.id, p, err)
			}
		}
	}
	return nil
}

// candidates 包围盒包含该点且有采样点在查询范围内的道路，按下标排序
func (n *Network) candidates(p orb.Point) []*Road {
	if n.tree == nil {
		return nil
	}
	found := n.tree.InBound(nil, orb.Bound{Min: p, Max: p}.Pad(n.reach))
	indices := make([]int, 0, 4)
	for _, f := range found {
		i := f.(sample).road
		if !slices.Contains(indices, i) && n.roads[i].bound.Contains(p) {
			indices = append(indices, i)
		}
	}
	slices.Sort(indices)
	res := make([]*Road, len(indices))
	for k, i := range indices {
		res[k] = n.roads[i]
	}
	return res
}

// project 将点投影到道路参考线
// 算法说明：
// 1. 以不超过sampleStep的间隔采样 f(s) = (p - r(s)) · tangent(s)
// 2. f由正变负的区间内存在距离的局部极小，二分至区间长度小于tol
// 3. 端点处f<=0（起点）或f>=0（终点）时端点本身也是候选
// 4. 返回到参考线距离最小的候选
// 说明：s的误差不超过tol
func (r *Road) project(x, y, tol float64) projection {
	f := func(s float64) (float64, entity.RefPose) {
		ref := r.evaluate(s)
		sin, cos := math.Sincos(ref.Heading)
		return (x-ref.X)*cos + (y-ref.Y)*sin, ref
	}
	steps := max(1, int(math.Ceil(r.length/sampleStep)))
	h := r.length / float64(steps)

	cands := make([]float64, 0, 2)
	prev, _ := f(0)
	if prev <= 0 {
		cands = append(cands, 0)
	}
	for i := 1; i <= steps; i++ {
		lo, hi := float64(i-1)*h, float64(i)*h
		cur, _ := f(hi)
		if prev > 0 && cur <= 0 {
			for hi-lo > tol {
				mid := (lo + hi) / 2
				if v, _ := f(mid); v > 0 {
					lo = mid
				} else {
					hi = mid
				}
			}
			cands = append(cands, (lo+hi)/2)
		}
		prev = cur
	}
	if prev >= 0 {
		cands = append(cands, r.length)
	}

	best := projection{}
	bestDist := mathutil.INF
	for _, s := range cands {
		along, ref := f(s)
		dx, dy := x-ref.X, y-ref.Y
		if d := math.Hypot(dx, dy); d < bestDist {
			bestDist = d
			sin, cos := math.Sincos(ref.Heading)
			best = projection{s: s, ref: ref, t: dy*cos - dx*sin}
			if (s == 0 && along < 0) || (s == r.length && along > 0) {
				best.overhang = math.Abs(along)
			}
		}
	}
	return best
}

// Snap 将世界坐标吸附到路网
// 功能：通过道路包围盒筛选候选道路，在候选道路上投影并定位车道
// 返回：道路坐标与到路面的距离；超出吸附距离或没有候选道路时ok为false
// 说明：优先选择到路面距离最小的道路，相同时选择到车道中心线横向偏移更小的道路，s的误差不超过snap_tolerance
func (n *Network) Snap(x, y float64) (entity.TrackFix, bool) {
	var (
		best     entity.TrackFix
		bestOff  = mathutil.INF
		found    bool
		bestDist = mathutil.INF
	)
	for _, r := range n.candidates(orb.Point{x, y}) {
		p := r.project(x, y, n.snapTolerance)
		laneID, off, ok := r.locateLane(p.t, p.s)
		if !ok {
			continue
		}
		dist := math.Hypot(off, p.overhang)
		if dist > n.snapDistance {
			continue
		}
		offset := p.t - r.laneCenter(laneID, p.s)
		if dist < bestDist || (dist == bestDist && math.Abs(offset) < bestOff) {
			bestDist, bestOff, found = dist, math.Abs(offset), true
			best = entity.TrackFix{
				TrackCoord: entity.TrackCoord{
					RoadID: r.id,
					LaneID: laneID,
					S:      p.s,
					Offset: offset,
				},
				Ref:      p.ref,
				Distance: dist,
			}
		}
	}
	return best, found
}
