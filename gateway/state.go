package gateway

import (
	"errors"
	"fmt"

	"github.com/tsinghua-fib-lab/scenario-gateway/entity/position"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnknownObject   = errors.New("unknown object")
)

// Source 状态的写入方
type Source int32

const (
	SourceInternal Source = iota // 场景引擎
	SourceExternal               // 外部上报
)

func (s Source) String() string {
	switch s {
	case SourceInternal:
		return "internal"
	case SourceExternal:
		return "external"
	default:
		return fmt.Sprintf("Source(%d)", int32(s))
	}
}

// ObjectState 对象状态
// 说明：值类型，读者拿到的总是副本
type ObjectState struct {
	ID        int32
	Name      string
	Timestamp float64
	Pos       position.Position
	Speed     float64

	Source  Source // 最近一次写入方
	Updated bool   // 自上次提交以来是否被写入过
}

// Snapshot 某一步提交后的只读快照
// 说明：创建后不再修改，可被任意协程并发读取
type Snapshot struct {
	Time float64
	Step int64 // 提交序号，从1开始，0表示尚未提交

	states []ObjectState
}

// Len 对象个数
func (s *Snapshot) Len() int {
	return len(s.states)
}

// At 按注册顺序下标读取
func (s *Snapshot) At(i int) (ObjectState, error) {
	if i < 0 || i >= len(s.states) {
		return ObjectState{}, fmt.Errorf("object index %d of %d: %w", i, len(s.states), ErrIndexOutOfRange)
	}
	return s.states[i], nil
}

// Find 按ID读取
func (s *Snapshot) Find(id int32) (ObjectState, bool) {
	for _, st := range s.states {
		if st.ID == id {
			return st, true
		}
	}
	return ObjectState{}, false
}

// States 按注册顺序复制至多max个对象状态，max<0表示全部
func (s *Snapshot) States(max int) []ObjectState {
	n := len(s.states)
	if max >= 0 && max < n {
		n = max
	}
	return append(make([]ObjectState, 0, n), s.states[:n]...)
}
