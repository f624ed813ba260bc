package position

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
)

var (
	ErrNoRoadNetwork = errors.New("no road network fix")
	ErrUnknownRoad   = entity.ErrUnknownRoad
	ErrUnknownLane   = entity.ErrUnknownLane
)

// Position 位置
// 功能：同时保存道路坐标与世界坐标两种表示，由路网互相换算
// 说明：
//   - 值类型，只通过RoadID在路网中按需查找，不持有道路引用
//   - TrackValid为false时只有世界坐标有效（例如路外位置）
//   - HRel、PRel、RRel相对车道行驶方向
type Position struct {
	RoadID int32
	LaneID int32
	S      float64
	Offset float64 // 相对车道中心线，左正
	HRel   float64
	PRel   float64
	RRel   float64

	X float64
	Y float64
	Z float64
	H float64
	P float64
	R float64

	TrackValid bool
}

// SteeringTarget 转向目标点
type SteeringTarget struct {
	Local     [3]float64 // 以当前位置为原点、当前航向为x轴的局部坐标
	Global    [3]float64 // 世界坐标
	Angle     float64    // 目标点切线方向与当前航向的夹角，左转为正
	Curvature float64    // 目标点处沿行驶方向的曲率，左转为正
}

// NormalizeAngle 将角度规范到(-π, π]
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	} else if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// laneHeading 车道行驶方向，左侧车道与参考线反向
func laneHeading(refHeading float64, laneID int32) float64 {
	if laneID > 0 {
		return refHeading + math.Pi
	}
	return refHeading
}

// FromTrack 由道路坐标创建Position
// 功能：车道中心线加横向偏移得到世界位置，相对姿态叠加到车道行驶方向上
// 参数：net-路网，roadID/laneID/s/offset-道路坐标，hRel/pRel/rRel-相对姿态
// 返回：Position，道路或车道不存在时返回ErrUnknownRoad/ErrUnknownLane
func FromTrack(net entity.IRoadNetwork, roadID, laneID int32, s, offset, hRel, pRel, rRel float64) (Position, error) {
	if net == nil {
		return Position{}, ErrNoRoadNetwork
	}
	pose, err := net.ResolveLaneOffset(roadID, laneID, s, offset)
	if err != nil {
		return Position{}, err
	}
	dir := entity.LaneDirection(laneID)
	return Position{
		RoadID:     roadID,
		LaneID:     laneID,
		S:          pose.S,
		Offset:     offset,
		HRel:       hRel,
		PRel:       pRel,
		RRel:       rRel,
		X:          pose.X,
		Y:          pose.Y,
		Z:          pose.Z,
		H:          NormalizeAngle(laneHeading(pose.Heading, laneID) + hRel),
		P:          dir*pose.Pitch + pRel,
		R:          rRel,
		TrackValid: true,
	}, nil
}

// FromWorld 由世界坐标创建Position
// 功能：吸附到路网以填充道路坐标与相对姿态
// 说明：超出吸附距离时不报错，Position只保存世界坐标且TrackValid为false
func FromWorld(net entity.IRoadNetwork, x, y, z, h, p, r float64) Position {
	pos := Position{X: x, Y: y, Z: z, H: NormalizeAngle(h), P: p, R: r}
	if net == nil {
		return pos
	}
	fix, ok := net.Snap(x, y)
	if !ok {
		return pos
	}
	pos.RoadID = fix.RoadID
	pos.LaneID = fix.LaneID
	pos.S = fix.S
	pos.Offset = fix.Offset
	pos.HRel = NormalizeAngle(h - laneHeading(fix.Ref.Heading, fix.LaneID))
	pos.PRel = p - entity.LaneDirection(fix.LaneID)*fix.Ref.Pitch
	pos.RRel = r
	pos.TrackValid = true
	return pos
}

// Track 道路坐标
func (p Position) Track() entity.TrackCoord {
	return entity.TrackCoord{RoadID: p.RoadID, LaneID: p.LaneID, S: p.S, Offset: p.Offset}
}

// MoveAlongLane 沿当前车道行驶方向前进ds
// 返回：新的Position（保持横向偏移与相对姿态），失败时返回原Position与错误
func (p Position) MoveAlongLane(net entity.IRoadNetwork, ds float64) (Position, error) {
	if !p.TrackValid || net == nil {
		return p, ErrNoRoadNetwork
	}
	next, err := net.Advance(p.Track(), ds)
	if err != nil {
		return p, err
	}
	res, err := FromTrack(net, next.RoadID, next.LaneID, next.S, next.Offset, p.HRel, p.PRel, p.RRel)
	if err != nil {
		return p, err
	}
	return res, nil
}

// SteeringTarget 计算转向目标点
// 功能：沿当前车道前进lookahead得到目标点，给出局部与世界坐标、航向差与曲率
// 参数：net-路网，lookahead-前视距离
// 返回：转向目标，Position没有有效道路坐标时返回ErrNoRoadNetwork
// 算法说明：
// 1. 复制当前道路坐标并前进lookahead（可跨越道路连接）
// 2. 目标点世界坐标减去当前位置后绕z轴旋转-H得到局部坐标
// 3. 航向差为目标车道切线方向减当前航向
// 4. 曲率按车道行驶方向取符号
func (p Position) SteeringTarget(net entity.IRoadNetwork, lookahead float64) (SteeringTarget, error) {
	if !p.TrackValid || net == nil {
		return SteeringTarget{}, ErrNoRoadNetwork
	}
	target, err := net.Advance(p.Track(), lookahead)
	if err != nil {
		return SteeringTarget{}, fmt.Errorf("steering target: %w", err)
	}
	pose, err := net.ResolveLaneOffset(target.RoadID, target.LaneID, target.S, target.Offset)
	if err != nil {
		return SteeringTarget{}, fmt.Errorf("steering target: %w", err)
	}
	k, err := net.Curvature(target.RoadID, target.S)
	if err != nil {
		return SteeringTarget{}, fmt.Errorf("steering target: %w", err)
	}
	global := mgl64.Vec3{pose.X, pose.Y, pose.Z}
	local := mgl64.Rotate3DZ(-p.H).Mul3x1(global.Sub(mgl64.Vec3{p.X, p.Y, p.Z}))
	return SteeringTarget{
		Local:     local,
		Global:    global,
		Angle:     NormalizeAngle(laneHeading(pose.Heading, target.LaneID) - p.H),
		Curvature: k * entity.LaneDirection(target.LaneID),
	}, nil
}
