package task_test

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/scenario-gateway/engine"
	"github.com/tsinghua-fib-lab/scenario-gateway/entity/road"
	"github.com/tsinghua-fib-lab/scenario-gateway/gateway"
	"github.com/tsinghua-fib-lab/scenario-gateway/recorder"
	"github.com/tsinghua-fib-lab/scenario-gateway/task"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
)

const mapYAML = `
roads:
  - id: 0
    geometry:
      - {s: 0, x: 0, y: 0, hdg: 0, length: 100, type: line}
    lanes:
      - id: -1
        width: [{s: 0, a: 3.5}]
      - id: 1
        width: [{s: 0, a: 3.5}]
`

const scenarioYAML = `
objects:
  - id: 1
    name: npc
    position: {road: 0, lane: -1, s: 10}
    speed: 10
actions:
  - name: brake
    object: 1
    trigger: {time: 0.2}
    speed: {value: 0}
  - name: ghost
    object: 99
    trigger: {time: 0.3}
    speed: {value: 1}
`

func writeConfig(t *testing.T, output config.Output) config.Config {
	t.Helper()
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "map.yaml")
	scenarioPath := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(mapPath, []byte(mapYAML), 0o644))
	require.NoError(t, os.WriteFile(scenarioPath, []byte(scenarioYAML), 0o644))
	return config.Config{
		Input: config.Input{
			Map:      config.InputPath{File: mapPath},
			Scenario: &config.InputPath{File: scenarioPath},
		},
		Control: config.Control{Step: config.ControlStep{Interval: 0.1, Total: 10}},
		Output:  output,
	}
}

func newTask(t *testing.T) *task.Context {
	t.Helper()
	ctx, err := task.Init(writeConfig(t, config.Output{}))
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func TestInitAndStep(t *testing.T) {
	ctx := newTask(t)
	require.Equal(t, 1, ctx.ObjectCount())

	s, err := ctx.ObjectState(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.ID)
	assert.InDelta(t, 10, s.S, 1e-9)
	assert.InDelta(t, -1.75, s.Y, 1e-9)

	require.NoError(t, ctx.Step(0.1))
	s, err = ctx.ObjectState(0)
	require.NoError(t, err)
	assert.InDelta(t, 11, s.S, 1e-9)
	assert.InDelta(t, 11, s.X, 1e-9)
	assert.InDelta(t, 0.1, s.Timestamp, 1e-9)

	_, err = ctx.ObjectState(1)
	assert.ErrorIs(t, err, gateway.ErrIndexOutOfRange)
}

func TestActionsAndStepErrors(t *testing.T) {
	ctx := newTask(t)
	require.NoError(t, ctx.Step(0.1))
	require.NoError(t, ctx.Step(0.1))
	assert.NoError(t, ctx.LastError())
	s, _ := ctx.ObjectState(0)
	assert.Zero(t, s.Speed)
	assert.InDelta(t, 12, s.S, 1e-9)

	// 作用于不存在对象的动作使本步失败，快照仍然提交
	err := ctx.Step(0.1)
	assert.ErrorIs(t, err, engine.ErrStepExecution)
	assert.ErrorIs(t, ctx.LastError(), gateway.ErrUnknownObject)
	s, _ = ctx.ObjectState(0)
	assert.InDelta(t, 0.3, s.Timestamp, 1e-9)

	require.NoError(t, ctx.Step(0.1))
	assert.NoError(t, ctx.LastError())
}

func TestExternalReports(t *testing.T) {
	ctx := newTask(t)
	require.NoError(t, ctx.ReportObjectRoadPose(7, "ego", 0.05, 0, 1, 0.5, 40, 8))
	ctx.ReportObjectWorldPose(8, "far", 0.05, 500, 500, 0, 0, 0, 0, 1)
	assert.ErrorIs(t, ctx.ReportObjectRoadPose(9, "bad", 0, 0, 3, 0, 10, 0), road.ErrUnknownLane)
	// 提交前不可见
	assert.Equal(t, 1, ctx.ObjectCount())

	require.NoError(t, ctx.Step(0.1))
	require.Equal(t, 3, ctx.ObjectCount())

	ego, err := ctx.ObjectState(1)
	require.NoError(t, err)
	assert.Equal(t, int32(7), ego.ID)
	assert.InDelta(t, 40, ego.X, 1e-9)
	assert.InDelta(t, 2.25, ego.Y, 1e-9)
	assert.InDelta(t, math.Pi, ego.H, 1e-9)
	// 外部对象不被引擎移动
	assert.InDelta(t, 0.05, ego.Timestamp, 1e-12)

	far, err := ctx.ObjectState(2)
	require.NoError(t, err)
	assert.False(t, far.TrackValid)
	assert.Equal(t, 500.0, far.X)

	_, err = ctx.SteeringTarget(2, 5)
	assert.ErrorIs(t, err, task.ErrNoRoadFix)
}

func TestObjectStatesBuffer(t *testing.T) {
	ctx := newTask(t)
	require.NoError(t, ctx.ReportObjectRoadPose(7, "ego", 0, 0, -1, 0, 50, 0))
	require.NoError(t, ctx.Step(0.1))

	out := make([]task.ObjectStateRecord, 5)
	assert.Equal(t, 2, ctx.ObjectStates(5, out))
	assert.Equal(t, int32(1), out[0].ID)
	assert.Equal(t, int32(7), out[1].ID)

	out = make([]task.ObjectStateRecord, 1)
	assert.Equal(t, 1, ctx.ObjectStates(5, out))
	assert.Equal(t, 0, ctx.ObjectStates(0, out))
}

func TestSteeringTarget(t *testing.T) {
	ctx := newTask(t)
	require.NoError(t, ctx.Step(0.1))
	st, err := ctx.SteeringTarget(0, 5)
	require.NoError(t, err)
	assert.InDelta(t, 5, st.Local[0], 1e-9)
	assert.InDelta(t, 0, st.Local[1], 1e-9)
	assert.InDelta(t, 16, st.Global[0], 1e-9)
	assert.InDelta(t, -1.75, st.Global[1], 1e-9)
	assert.InDelta(t, 0, st.Angle, 1e-9)

	_, err = ctx.SteeringTarget(3, 5)
	assert.ErrorIs(t, err, gateway.ErrIndexOutOfRange)
}

func TestClose(t *testing.T) {
	ctx := newTask(t)
	require.NoError(t, ctx.Close())
	require.NoError(t, ctx.Close())
	assert.ErrorIs(t, ctx.Step(0.1), task.ErrClosed)
	assert.ErrorIs(t, ctx.ReportObjectRoadPose(1, "x", 0, 0, -1, 0, 1, 0), task.ErrClosed)
	assert.Zero(t, ctx.ObjectCount())
	_, err := ctx.ObjectState(0)
	assert.ErrorIs(t, err, task.ErrClosed)
}

func TestInitFailure(t *testing.T) {
	c := writeConfig(t, config.Output{})

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("roads:\n  - id: 0\n    geometry: []\n    lanes: []\n"), 0o644))
	c.Input.Map.File = broken
	_, err := task.Init(c)
	assert.ErrorIs(t, err, task.ErrInitialization)

	c.Input.Map.File = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = task.Init(c)
	assert.ErrorIs(t, err, task.ErrInitialization)

	_, err = task.InitFromInput(c, nil)
	assert.ErrorIs(t, err, task.ErrInitialization)
}

func TestInitStepActionFailure(t *testing.T) {
	c := writeConfig(t, config.Output{})
	scenario := filepath.Join(t.TempDir(), "teleport.yaml")
	require.NoError(t, os.WriteFile(scenario, []byte(`
objects:
  - id: 1
    name: npc
    position: {road: 0, lane: -1, s: 10}
actions:
  - name: jump
    object: 1
    trigger: {time: 0}
    teleport: {road: 42, lane: -1, s: 5}
`), 0o644))
	c.Input.Scenario.File = scenario

	ctx, err := task.Init(c)
	require.NoError(t, err)
	require.NotNil(t, ctx)
	t.Cleanup(func() { ctx.Close() })

	assert.Equal(t, 1, ctx.ObjectCount())
	assert.ErrorIs(t, ctx.LastError(), engine.ErrStepExecution)
	assert.ErrorIs(t, ctx.LastError(), road.ErrUnknownRoad)

	s, err := ctx.ObjectState(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.ID)
	assert.Equal(t, int32(0), s.RoadID)
	assert.InDelta(t, 10, s.S, 1e-9)
}

func TestRecording(t *testing.T) {
	db := filepath.Join(t.TempDir(), "out.db")
	ctx, err := task.Init(writeConfig(t, config.Output{SQLite: db}))
	require.NoError(t, err)
	for range 2 {
		require.NoError(t, ctx.Step(0.1))
	}
	runID := ctx.RunID()
	require.NoError(t, ctx.Close())

	r, err := recorder.NewSQLiteRecorder(db, runID)
	require.NoError(t, err)
	defer r.Close()
	traj, err := r.Trajectory(1)
	require.NoError(t, err)
	// 初始化步与两次步进
	require.Len(t, traj, 3)
	assert.InDelta(t, 10, traj[0].S, 1e-9)
	assert.InDelta(t, 12, traj[2].S, 1e-9)
}

func TestGatewayServiceRPC(t *testing.T) {
	ctx := newTask(t)
	mux := http.NewServeMux()
	mux.Handle(ctx.NewHandler())
	server := httptest.NewServer(mux)
	defer server.Close()
	client := task.NewClient(server.Client(), server.URL)
	bg := context.Background()

	_, err := client.ReportObjectRoadPose.CallUnary(bg, connect.NewRequest(&task.ReportObjectRoadPoseRequest{
		ID: 7, Name: "ego", RoadID: 0, LaneID: -1, S: 30, Speed: 5,
	}))
	require.NoError(t, err)
	_, err = client.ReportObjectWorldPose.CallUnary(bg, connect.NewRequest(&task.ReportObjectWorldPoseRequest{
		ID: 8, Name: "walker", X: 60, Y: 1.75,
	}))
	require.NoError(t, err)
	_, err = client.ReportObjectRoadPose.CallUnary(bg, connect.NewRequest(&task.ReportObjectRoadPoseRequest{ID: 9, RoadID: 42, LaneID: -1}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	step, err := client.Step.CallUnary(bg, connect.NewRequest(&task.StepRequest{}))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, step.Msg.T, 1e-9)
	assert.Empty(t, step.Msg.Error)

	count, err := client.GetObjectCount.CallUnary(bg, connect.NewRequest(&task.GetObjectCountRequest{}))
	require.NoError(t, err)
	assert.Equal(t, 3, count.Msg.Count)

	state, err := client.GetObjectState.CallUnary(bg, connect.NewRequest(&task.GetObjectStateRequest{Index: 2}))
	require.NoError(t, err)
	assert.Equal(t, int32(8), state.Msg.State.ID)
	assert.Equal(t, int32(1), state.Msg.State.LaneID)
	assert.True(t, state.Msg.State.TrackValid)

	_, err = client.GetObjectState.CallUnary(bg, connect.NewRequest(&task.GetObjectStateRequest{Index: 5}))
	assert.Equal(t, connect.CodeOutOfRange, connect.CodeOf(err))

	states, err := client.GetObjectStates.CallUnary(bg, connect.NewRequest(&task.GetObjectStatesRequest{MaxCount: 2}))
	require.NoError(t, err)
	require.Len(t, states.Msg.States, 2)
	assert.Equal(t, int32(7), states.Msg.States[1].ID)

	states, err = client.GetObjectStates.CallUnary(bg, connect.NewRequest(&task.GetObjectStatesRequest{IDs: []int32{8, 42, 1}}))
	require.NoError(t, err)
	require.Len(t, states.Msg.States, 2)
	assert.Equal(t, int32(8), states.Msg.States[0].ID)
	assert.Equal(t, int32(1), states.Msg.States[1].ID)
	assert.Equal(t, []int32{42}, states.Msg.FailedIDs)

	target, err := client.GetSteeringTarget.CallUnary(bg, connect.NewRequest(&task.GetSteeringTargetRequest{Index: 1, Lookahead: 10}))
	require.NoError(t, err)
	assert.InDelta(t, 10, target.Msg.Local[0], 1e-9)
	assert.InDelta(t, 40, target.Msg.Global[0], 1e-9)

	dt := 0.2
	step, err = client.Step.CallUnary(bg, connect.NewRequest(&task.StepRequest{DT: &dt}))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, step.Msg.T, 1e-9)
	assert.Contains(t, step.Msg.Error, "ghost")

	require.NoError(t, ctx.Close())
	_, err = client.GetObjectCount.CallUnary(bg, connect.NewRequest(&task.GetObjectCountRequest{}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}
