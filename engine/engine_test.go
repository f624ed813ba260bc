package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-gateway/clock"
	"github.com/tsinghua-fib-lab/scenario-gateway/engine"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/road"
	"github.com/tsinghua-fib-lab/scenario-gateway/gateway"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
)

type testContext struct {
	clock   *clock.Clock
	network *road.Network
	rc      *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock                  { return c.clock }
func (c *testContext) RoadNetwork() entity.IRoadNetwork     { return c.network }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig { return c.rc }

func twoLaneRoad(id int32, x float64) input.RoadData {
	return input.RoadData{
		ID:       id,
		Geometry: []input.GeometryData{{X: x, Length: 100, Type: "line"}},
		Lanes: []input.LaneData{
			{ID: -2, Width: []input.PolyData{{A: 3.5}}},
			{ID: -1, Width: []input.PolyData{{A: 3.5}}},
			{ID: 1, Width: []input.PolyData{{A: 3.5}}},
		},
	}
}

func newEngine(t *testing.T) (*engine.Engine, *gateway.Gateway, *testContext) {
	t.Helper()
	rc := config.NewRuntimeConfig(config.Config{Control: config.Control{Step: config.ControlStep{Interval: 0.1}}})
	n, err := road.NewNetwork(&input.MapData{Roads: []input.RoadData{twoLaneRoad(0, 0), twoLaneRoad(1, 0)}}, rc.C)
	require.NoError(t, err)
	ctx := &testContext{clock: clock.New(rc.C.Step), network: n, rc: rc}
	gw := gateway.New(n)
	return engine.New(ctx, gw), gw, ctx
}

func object(id int32, s, speed float64) input.ObjectData {
	return input.ObjectData{
		ID:       id,
		Name:     "car",
		Position: input.TrackData{Road: 0, Lane: -1, S: s},
		Speed:    speed,
	}
}

func TestEngineStateMachine(t *testing.T) {
	e, gw, _ := newEngine(t)
	assert.Equal(t, engine.StateUninitialized, e.State())
	_, err := e.Step(0.1)
	assert.ErrorIs(t, err, engine.ErrNotInitialized)

	require.NoError(t, e.Init([]input.ObjectData{object(0, 10, 0)}, nil))
	assert.Equal(t, engine.StateInitialized, e.State())
	assert.Equal(t, int64(1), gw.Snapshot().Step)
	assert.Equal(t, 1, gw.NumberOfObjects())
	assert.ErrorIs(t, e.Init(nil, nil), engine.ErrAlreadyInitialized)

	snap, err := e.Step(0.1)
	require.NoError(t, err)
	assert.Equal(t, engine.StateStepping, e.State())
	assert.InDelta(t, 0.1, snap.Time, 1e-12)
	_, err = e.Step(-1)
	assert.Error(t, err)

	e.Close()
	e.Close()
	assert.Equal(t, engine.StateClosed, e.State())
	_, err = e.Step(0.1)
	assert.ErrorIs(t, err, engine.ErrClosed)
	assert.ErrorIs(t, e.Init(nil, nil), engine.ErrClosed)
	assert.Equal(t, "closed", e.State().String())
}

func TestInitFoldsExternalReports(t *testing.T) {
	e, gw, _ := newEngine(t)
	_, err := gw.ReportRoadPose(gateway.SourceExternal, 100, "ext", 0, 0, 1, 0, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, gw.NumberOfObjects())

	require.NoError(t, e.Init([]input.ObjectData{object(0, 10, 0)}, nil))
	require.Equal(t, 2, gw.NumberOfObjects())
	first, err := gw.ObjectStateByIndex(0)
	require.NoError(t, err)
	assert.Equal(t, int32(100), first.ID)
}

func TestInitFailure(t *testing.T) {
	cases := map[string]struct {
		objects []input.ObjectData
		actions []input.ActionData
	}{
		"unknown road": {objects: []input.ObjectData{{ID: 0, Position: input.TrackData{Road: 9, Lane: -1}}}},
		"unknown lane": {objects: []input.ObjectData{{ID: 0, Position: input.TrackData{Road: 0, Lane: 3}}}},
		"duplicate":    {objects: []input.ObjectData{object(0, 1, 0), object(0, 2, 0)}},
		"bad action":   {actions: []input.ActionData{{Name: "empty"}}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			e, gw, _ := newEngine(t)
			assert.Error(t, e.Init(c.objects, c.actions))
			assert.Equal(t, engine.StateUninitialized, e.State())
			assert.Empty(t, gw.ObjectIDs())
		})
	}
}

func TestInitStepActionFailure(t *testing.T) {
	e, gw, _ := newEngine(t)
	actions := []input.ActionData{
		{Name: "bad teleport", Object: 0, Trigger: input.TriggerData{Time: 0}, Teleport: &input.TrackData{Road: 99, Lane: -1}},
	}
	err := e.Init([]input.ObjectData{object(0, 10, 0)}, actions)
	assert.ErrorIs(t, err, engine.ErrStepExecution)
	assert.ErrorIs(t, err, road.ErrUnknownRoad)
	assert.Equal(t, engine.StateInitialized, e.State())
	assert.Equal(t, []int32{0}, gw.ObjectIDs())

	// 之后的步进不受影响
	_, err = e.Step(0.1)
	require.NoError(t, err)
}

func TestCarMotion(t *testing.T) {
	e, gw, _ := newEngine(t)
	ext := object(1, 20, 10)
	ext.External = true
	require.NoError(t, e.Init([]input.ObjectData{object(0, 50, 10), ext}, nil))

	for range 5 {
		_, err := e.Step(0.1)
		require.NoError(t, err)
	}
	car, err := gw.ObjectStateByID(0)
	require.NoError(t, err)
	assert.InDelta(t, 55, car.Pos.S, 1e-9)
	assert.InDelta(t, 55, car.Pos.X, 1e-9)
	assert.InDelta(t, 0.5, car.Timestamp, 1e-9)
	assert.True(t, car.Updated)

	other, err := gw.ObjectStateByID(1)
	require.NoError(t, err)
	assert.InDelta(t, 20, other.Pos.S, 1e-9)
	assert.False(t, other.Updated)
}

func TestMotionRunsOutOfRoad(t *testing.T) {
	e, gw, _ := newEngine(t)
	require.NoError(t, e.Init([]input.ObjectData{object(0, 99, 30)}, nil))

	_, err := e.Step(0.1)
	assert.ErrorIs(t, err, engine.ErrStepExecution)
	assert.ErrorIs(t, err, road.ErrRoadNetworkExhausted)

	car, err := gw.ObjectStateByID(0)
	require.NoError(t, err)
	assert.InDelta(t, 99, car.Pos.S, 1e-9)
	assert.Equal(t, 0., car.Speed)

	_, err = e.Step(0.1)
	assert.NoError(t, err)
}

func TestActionsBeforeCommit(t *testing.T) {
	e, gw, _ := newEngine(t)
	actions := []input.ActionData{
		{Name: "accelerate", Object: 0, Trigger: input.TriggerData{Time: 0.2}, Speed: &input.SpeedData{Value: 20}},
		{Name: "change", Object: 0, Trigger: input.TriggerData{Time: 0.2}, LaneChange: &input.LaneChangeData{Lane: -2}},
		{Name: "jump", Object: 0, Trigger: input.TriggerData{Time: 0.4}, Teleport: &input.TrackData{Road: 1, Lane: -1, S: 5}},
	}
	require.NoError(t, e.Init([]input.ObjectData{object(0, 10, 0)}, actions))
	assert.Equal(t, 3, e.Pending())

	_, err := e.Step(0.1)
	require.NoError(t, err)
	car, _ := gw.ObjectStateByID(0)
	assert.Equal(t, 0., car.Speed)

	// 浮点累加 0.1+0.1 仍按0.2触发
	_, err = e.Step(0.1)
	require.NoError(t, err)
	car, _ = gw.ObjectStateByID(0)
	assert.Equal(t, 20., car.Speed)
	assert.Equal(t, int32(-2), car.Pos.LaneID)
	assert.InDelta(t, -5.25, car.Pos.Y, 1e-9)
	assert.Equal(t, 1, e.Pending())

	_, err = e.Step(0.1)
	require.NoError(t, err)
	car, _ = gw.ObjectStateByID(0)
	assert.InDelta(t, 12, car.Pos.S, 1e-9)

	_, err = e.Step(0.1)
	require.NoError(t, err)
	car, _ = gw.ObjectStateByID(0)
	assert.Equal(t, int32(1), car.Pos.RoadID)
	assert.InDelta(t, 5, car.Pos.S, 1e-9)
	assert.Equal(t, 0, e.Pending())
}

func TestActionFailureAbortsStep(t *testing.T) {
	e, gw, _ := newEngine(t)
	actions := []input.ActionData{
		{Name: "bad teleport", Object: 0, Trigger: input.TriggerData{Time: 0.1}, Teleport: &input.TrackData{Road: 99, Lane: -1}},
		{Name: "accelerate", Object: 0, Trigger: input.TriggerData{Time: 0.1}, Speed: &input.SpeedData{Value: 20}},
	}
	require.NoError(t, e.Init([]input.ObjectData{object(0, 10, 0)}, actions))

	snap, err := e.Step(0.1)
	assert.ErrorIs(t, err, engine.ErrStepExecution)
	assert.ErrorIs(t, err, road.ErrUnknownRoad)
	require.NotNil(t, snap)
	assert.Equal(t, int64(2), snap.Step)
	car, _ := gw.ObjectStateByID(0)
	assert.Equal(t, 0., car.Speed)

	// 被中止的动作在下一步执行
	_, err = e.Step(0.1)
	require.NoError(t, err)
	car, _ = gw.ObjectStateByID(0)
	assert.Equal(t, 20., car.Speed)
}

func TestActionOnUnknownObject(t *testing.T) {
	e, _, _ := newEngine(t)
	actions := []input.ActionData{
		{Name: "ghost", Object: 42, Trigger: input.TriggerData{Time: 0}, Speed: &input.SpeedData{Value: 1}},
	}
	err := e.Init(nil, actions)
	assert.ErrorIs(t, err, engine.ErrStepExecution)
	assert.ErrorIs(t, err, gateway.ErrUnknownObject)
	assert.Equal(t, engine.StateInitialized, e.State())
}

type countingAction struct {
	after float64
	calls int
}

func (a *countingAction) Name() string             { return "count" }
func (a *countingAction) Triggered(t float64) bool { return t > a.after }
func (a *countingAction) Apply(float64, *gateway.Gateway, entity.IRoadNetwork) error {
	a.calls++
	return nil
}

func TestPolledAction(t *testing.T) {
	e, _, _ := newEngine(t)
	a := &countingAction{after: 0.15}
	e.AddAction(a)
	require.NoError(t, e.Init(nil, nil))
	for range 4 {
		_, err := e.Step(0.1)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 0, e.Pending())
}

func TestNewAction(t *testing.T) {
	a, err := engine.NewAction(input.ActionData{Name: "s", Trigger: input.TriggerData{Time: 3}, Speed: &input.SpeedData{Value: 2}})
	require.NoError(t, err)
	assert.Equal(t, "s", a.Name())
	assert.Equal(t, 3., a.TriggerTime())
	assert.False(t, a.Triggered(2.5))
	assert.True(t, a.Triggered(3))

	_, err = engine.NewAction(input.ActionData{
		Name:       "two",
		Speed:      &input.SpeedData{},
		LaneChange: &input.LaneChangeData{Lane: -1},
	})
	assert.Error(t, err)
}
