package recorder

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/tsinghua-fib-lab/scenario-gateway/gateway"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const insertState = `INSERT OR REPLACE INTO object_states (
    run_id, step, time, object_id, name, source, timestamp,
    x, y, z, h, p, r, speed, road_id, lane_id, s, lane_offset, track_valid
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// TrajectoryPoint 轨迹库中某个对象在某一步的记录
type TrajectoryPoint struct {
	Step       int64
	Time       float64
	X, Y, Z    float64
	H          float64
	Speed      float64
	RoadID     int32
	LaneID     int32
	S          float64
	Offset     float64
	TrackValid bool
}

// SQLiteRecorder 把快照写入SQLite轨迹库，每一步一个事务
type SQLiteRecorder struct {
	runID string
	db    *sql.DB
}

// NewSQLiteRecorder 打开（必要时创建）轨迹库并登记本次运行
func NewSQLiteRecorder(path, runID string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Join(fmt.Errorf("init schema: %w", err), db.Close())
	}
	if _, err := db.Exec(
		"INSERT OR REPLACE INTO runs (run_id, started_at) VALUES (?, ?)",
		runID, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return nil, errors.Join(fmt.Errorf("register run: %w", err), db.Close())
	}
	return &SQLiteRecorder{runID: runID, db: db}, nil
}

// Record 以单个事务写入一帧
func (r *SQLiteRecorder) Record(snap *gateway.Snapshot) (err error) {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin step %d: %w", snap.Step, err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()
	stmt, err := tx.Prepare(insertState)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, s := range snap.States(-1) {
		p := s.Pos
		if _, err = stmt.Exec(
			r.runID, snap.Step, snap.Time, s.ID, s.Name, s.Source.String(), s.Timestamp,
			p.X, p.Y, p.Z, p.H, p.P, p.R, s.Speed,
			p.RoadID, p.LaneID, p.S, p.Offset, p.TrackValid,
		); err != nil {
			return fmt.Errorf("insert object %d at step %d: %w", s.ID, snap.Step, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit step %d: %w", snap.Step, err)
	}
	return nil
}

// Trajectory 按步序读取本次运行中某个对象的全部记录
func (r *SQLiteRecorder) Trajectory(objectID int32) ([]TrajectoryPoint, error) {
	rows, err := r.db.Query(
		`SELECT step, time, x, y, z, h, speed, road_id, lane_id, s, lane_offset, track_valid
		FROM object_states WHERE run_id = ? AND object_id = ? ORDER BY step`,
		r.runID, objectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query trajectory of %d: %w", objectID, err)
	}
	defer rows.Close()
	res := make([]TrajectoryPoint, 0)
	for rows.Next() {
		var pt TrajectoryPoint
		if err := rows.Scan(
			&pt.Step, &pt.Time, &pt.X, &pt.Y, &pt.Z, &pt.H, &pt.Speed,
			&pt.RoadID, &pt.LaneID, &pt.S, &pt.Offset, &pt.TrackValid,
		); err != nil {
			return nil, fmt.Errorf("scan trajectory of %d: %w", objectID, err)
		}
		res = append(res, pt)
	}
	return res, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
