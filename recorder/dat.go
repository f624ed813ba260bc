package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tsinghua-fib-lab/scenario-gateway/gateway"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// DatRecorder 以长度前缀分帧的protobuf文件记录快照
// 说明：每一帧是一个structpb.Struct，包含run、step、time与objects列表
type DatRecorder struct {
	runID string
	file  *os.File
	w     *bufio.Writer
}

// NewDatRecorder 创建（覆盖）记录文件
func NewDatRecorder(path, runID string) (*DatRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create dat file: %w", err)
	}
	return &DatRecorder{runID: runID, file: f, w: bufio.NewWriter(f)}, nil
}

// Record 写入一帧
func (r *DatRecorder) Record(snap *gateway.Snapshot) error {
	frame, err := snapshotToStruct(r.runID, snap)
	if err != nil {
		return err
	}
	if _, err := protodelim.MarshalTo(r.w, frame); err != nil {
		return fmt.Errorf("write dat frame %d: %w", snap.Step, err)
	}
	return nil
}

// Close 刷新缓冲并关闭文件
func (r *DatRecorder) Close() error {
	return errors.Join(r.w.Flush(), r.file.Close())
}

// ReadDat 读取记录文件中的全部帧
func ReadDat(rd io.Reader) ([]*structpb.Struct, error) {
	br := bufio.NewReader(rd)
	res := make([]*structpb.Struct, 0)
	for {
		frame := &structpb.Struct{}
		err := protodelim.UnmarshalFrom(br, frame)
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("read dat frame %d: %w", len(res), err)
		}
		res = append(res, frame)
	}
}

func stateToMap(s gateway.ObjectState) map[string]any {
	p := s.Pos
	return map[string]any{
		"id":          s.ID,
		"name":        s.Name,
		"timestamp":   s.Timestamp,
		"speed":       s.Speed,
		"source":      s.Source.String(),
		"x":           p.X,
		"y":           p.Y,
		"z":           p.Z,
		"h":           p.H,
		"p":           p.P,
		"r":           p.R,
		"road_id":     p.RoadID,
		"lane_id":     p.LaneID,
		"s":           p.S,
		"offset":      p.Offset,
		"track_valid": p.TrackValid,
	}
}

func snapshotToStruct(runID string, snap *gateway.Snapshot) (*structpb.Struct, error) {
	states := snap.States(-1)
	objects := make([]any, 0, len(states))
	for _, s := range states {
		objects = append(objects, stateToMap(s))
	}
	frame, err := structpb.NewStruct(map[string]any{
		"run":     runID,
		"step":    snap.Step,
		"time":    snap.Time,
		"objects": objects,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %d: %w", snap.Step, err)
	}
	return frame, nil
}
