package entity

import "errors"

var (
	ErrUnknownRoad          = errors.New("unknown road")
	ErrUnknownLane          = errors.New("unknown lane")
	ErrOutOfRange           = errors.New("s out of range")
	ErrRoadNetworkExhausted = errors.New("road network exhausted")
)

// ContactPoint 道路连接点
type ContactPoint int32

const (
	ContactStart ContactPoint = iota // 道路起点（s=0）
	ContactEnd                       // 道路终点（s=length）
)

func (c ContactPoint) String() string {
	if c == ContactStart {
		return "start"
	}
	return "end"
}

// TrackCoord 道路坐标
// 说明：Offset为相对车道中心线的横向偏移，以参考线左侧为正
type TrackCoord struct {
	RoadID int32
	LaneID int32
	S      float64
	Offset float64
}

// RefPose 参考线上某点的位姿
type RefPose struct {
	RoadID  int32   // 实际所在道路（跨道路解析后可能与输入不同）
	S       float64 // 实际所在道路上的s
	X       float64
	Y       float64
	Z       float64
	Heading float64 // 参考线切线方向
	Pitch   float64
}

// LanePose 车道偏移后的世界位姿
// 说明：Heading与Pitch为参考线方向，T为相对参考线的横向距离，(NormalX, NormalY)为参考线左法向
type LanePose struct {
	S       float64
	X       float64
	Y       float64
	Z       float64
	Heading float64
	Pitch   float64
	T       float64
	NormalX float64
	NormalY float64
}

// TrackFix 世界坐标吸附到路网的结果
type TrackFix struct {
	TrackCoord
	Ref      RefPose // 吸附点处的参考线位姿
	Distance float64 // 到路面的距离，位于车道内时为0
}

// LaneDirection 车道行驶方向相对参考线的符号
// 返回：右侧车道（负ID）为1，左侧车道（正ID）为-1
func LaneDirection(laneID int32) float64 {
	if laneID > 0 {
		return -1
	}
	return 1
}
