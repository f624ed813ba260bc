package position_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/position"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/road"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
)

func ptr(v int32) *int32 {
	return &v
}

func lanes(pre, suc bool) []input.LaneData {
	res := make([]input.LaneData, 0, 2)
	for _, id := range []int32{-1, 1} {
		l := input.LaneData{ID: id, Width: []input.PolyData{{A: 3.5}}}
		if pre {
			l.Predecessor = ptr(id)
		}
		if suc {
			l.Successor = ptr(id)
		}
		res = append(res, l)
	}
	return res
}

// newNetwork 两条100米直路首尾相接，之后接一段曲率0.01的圆弧
func newNetwork(t *testing.T) *road.Network {
	t.Helper()
	m := &input.MapData{
		Roads: []input.RoadData{
			{
				ID:        0,
				Successor: &input.LinkData{Type: "road", ID: 1, Contact: "start"},
				Geometry:  []input.GeometryData{{Length: 100, Type: "line"}},
				Lanes:     lanes(false, true),
			},
			{
				ID:          1,
				Predecessor: &input.LinkData{Type: "road", ID: 0, Contact: "end"},
				Geometry:    []input.GeometryData{{X: 100, Length: 100, Type: "line"}},
				Lanes:       lanes(true, false),
			},
			{
				ID:       2,
				Geometry: []input.GeometryData{{Y: 500, Length: 100, Type: "arc", Curvature: 0.01}},
				Lanes:    lanes(false, false),
			},
		},
	}
	n, err := road.NewNetwork(m, config.Control{SnapDistance: 5, SnapTolerance: 0.01})
	require.NoError(t, err)
	return n
}

func TestSteeringTargetStraight(t *testing.T) {
	n := newNetwork(t)
	pos, err := position.FromTrack(n, 0, -1, 50, 0, 0, 0, 0)
	require.NoError(t, err)

	target, err := pos.SteeringTarget(n, 25)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{75, -1.75, 0}, target.Global[:], 1e-9)
	assert.InDeltaSlice(t, []float64{25, 0, 0}, target.Local[:], 1e-9)
	assert.InDelta(t, 0, target.Angle, 1e-9)
	assert.Equal(t, 0., target.Curvature)

	// 跨越道路连接
	target, err = pos.SteeringTarget(n, 80)
	require.NoError(t, err)
	assert.InDelta(t, 130, target.Global[0], 1e-9)
}

func TestSteeringTargetLeftLane(t *testing.T) {
	n := newNetwork(t)
	pos, err := position.FromTrack(n, 1, 1, 50, 0, 0, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi, pos.H, 1e-9)

	target, err := pos.SteeringTarget(n, 70)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{80, 1.75, 0}, target.Global[:], 1e-9)
	assert.InDeltaSlice(t, []float64{70, 0, 0}, target.Local[:], 1e-9)
	assert.InDelta(t, 0, target.Angle, 1e-9)
}

func TestSteeringTargetArc(t *testing.T) {
	n := newNetwork(t)

	pos, err := position.FromTrack(n, 2, -1, 10, 0, 0, 0, 0)
	require.NoError(t, err)
	target, err := pos.SteeringTarget(n, 25)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, target.Angle, 1e-9)
	assert.InDelta(t, 0.01, target.Curvature, 1e-12)
	assert.Greater(t, target.Local[1], 0.)

	// 左侧车道沿圆弧反向行驶，向右转
	pos, err = position.FromTrack(n, 2, 1, 90, 0, 0, 0, 0)
	require.NoError(t, err)
	target, err = pos.SteeringTarget(n, 25)
	require.NoError(t, err)
	assert.InDelta(t, -0.25, target.Angle, 1e-9)
	assert.InDelta(t, -0.01, target.Curvature, 1e-12)
	assert.Less(t, target.Local[1], 0.)
}

func TestSteeringTargetErrors(t *testing.T) {
	n := newNetwork(t)

	off := position.FromWorld(n, 50, 60, 0, 0, 0, 0)
	_, err := off.SteeringTarget(n, 10)
	assert.ErrorIs(t, err, position.ErrNoRoadNetwork)

	pos, err := position.FromTrack(n, 0, -1, 50, 0, 0, 0, 0)
	require.NoError(t, err)
	_, err = pos.SteeringTarget(nil, 10)
	assert.ErrorIs(t, err, position.ErrNoRoadNetwork)

	_, err = pos.SteeringTarget(n, 200)
	assert.ErrorIs(t, err, road.ErrRoadNetworkExhausted)
}

func TestFromTrack(t *testing.T) {
	n := newNetwork(t)

	pos, err := position.FromTrack(n, 0, -1, 30, 0.5, 0.1, 0.02, 0.03)
	require.NoError(t, err)
	assert.True(t, pos.TrackValid)
	assert.InDelta(t, 30, pos.X, 1e-9)
	assert.InDelta(t, -1.25, pos.Y, 1e-9)
	assert.InDelta(t, 0.1, pos.H, 1e-9)
	assert.InDelta(t, 0.02, pos.P, 1e-9)
	assert.InDelta(t, 0.03, pos.R, 1e-9)

	_, err = position.FromTrack(n, 5, -1, 30, 0, 0, 0, 0)
	assert.ErrorIs(t, err, position.ErrUnknownRoad)
	_, err = position.FromTrack(n, 0, -4, 30, 0, 0, 0, 0)
	assert.ErrorIs(t, err, position.ErrUnknownLane)
	_, err = position.FromTrack(nil, 0, -1, 30, 0, 0, 0, 0)
	assert.ErrorIs(t, err, position.ErrNoRoadNetwork)
}

func TestFromWorld(t *testing.T) {
	n := newNetwork(t)

	pos := position.FromWorld(n, 120, 2, 1, math.Pi-0.1, 0, 0)
	require.True(t, pos.TrackValid)
	assert.Equal(t, int32(1), pos.RoadID)
	assert.Equal(t, int32(1), pos.LaneID)
	assert.InDelta(t, 20, pos.S, 0.01)
	assert.InDelta(t, 0.25, pos.Offset, 1e-6)
	assert.InDelta(t, -0.1, pos.HRel, 1e-9)
	assert.Equal(t, 1., pos.Z)

	back, err := position.FromTrack(n, pos.RoadID, pos.LaneID, pos.S, pos.Offset, pos.HRel, pos.PRel, pos.RRel)
	require.NoError(t, err)
	assert.InDelta(t, 120, back.X, 0.01)
	assert.InDelta(t, 2, back.Y, 0.01)
	assert.InDelta(t, pos.H, back.H, 1e-9)

	off := position.FromWorld(n, 50, 60, 0, 4, 0, 0)
	assert.False(t, off.TrackValid)
	assert.Equal(t, 50., off.X)
	assert.InDelta(t, 4-2*math.Pi, off.H, 1e-9)

	nowhere := position.FromWorld(nil, 1, 2, 3, 0, 0, 0)
	assert.False(t, nowhere.TrackValid)
}

func TestMoveAlongLane(t *testing.T) {
	n := newNetwork(t)
	pos, err := position.FromTrack(n, 0, -1, 90, 0.2, 0.05, 0, 0)
	require.NoError(t, err)

	moved, err := pos.MoveAlongLane(n, 15)
	require.NoError(t, err)
	assert.Equal(t, int32(1), moved.RoadID)
	assert.InDelta(t, 5, moved.S, 1e-9)
	assert.InDelta(t, 105, moved.X, 1e-9)
	assert.InDelta(t, 0.2, moved.Offset, 1e-9)
	assert.InDelta(t, 0.05, moved.HRel, 1e-9)

	stuck, err := moved.MoveAlongLane(n, 200)
	assert.ErrorIs(t, err, road.ErrRoadNetworkExhausted)
	assert.Equal(t, moved, stuck)
}

func TestNormalizeAngle(t *testing.T) {
	assert.InDelta(t, 0, position.NormalizeAngle(2*math.Pi), 1e-12)
	assert.InDelta(t, math.Pi, position.NormalizeAngle(-math.Pi), 1e-12)
	assert.InDelta(t, -math.Pi/2, position.NormalizeAngle(3*math.Pi/2), 1e-12)
}
