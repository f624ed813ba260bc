package road

import (
	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
)

// Lane 车道
// 功能：保存车道宽度曲线与跨道路的前驱后继车道
type Lane struct {
	id          int32
	typ         string
	width       profile
	predecessor *int32 // 前驱道路上的车道ID
	successor   *int32 // 后继道路上的车道ID
}

func newLane(base input.LaneData) *Lane {
	return &Lane{
		id:          base.ID,
		typ:         base.Type,
		width:       newProfile(base.Width),
		predecessor: base.Predecessor,
		successor:   base.Successor,
	}
}

func (l *Lane) ID() int32 {
	return l.id
}

func (l *Lane) Type() string {
	return l.typ
}

// Width s处的车道宽度，不小于0
func (l *Lane) Width(s float64) float64 {
	w, _ := l.width.at(s)
	return max(w, 0)
}

// Direction 行驶方向相对参考线的符号
func (l *Lane) Direction() float64 {
	return entity.LaneDirection(l.id)
}

// link 沿行驶方向在道路某一端的连接车道
func (l *Lane) link(end entity.ContactPoint) *int32 {
	if end == entity.ContactEnd {
		return l.successor
	}
	return l.predecessor
}
