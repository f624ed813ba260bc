// 快照记录器，把每一步提交的网关快照写入文件或数据库
package recorder

import (
	"errors"

	"github.com/tsinghua-fib-lab/scenario-gateway/gateway"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
)

// Recorder 快照记录器
type Recorder interface {
	Record(snap *gateway.Snapshot) error
	Close() error
}

// multi 依次写入多个记录器
type multi []Recorder

func (m multi) Record(snap *gateway.Snapshot) error {
	errs := make([]error, 0)
	for _, r := range m {
		if err := r.Record(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	errs := make([]error, 0)
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open 根据输出配置打开记录器
// 参数：c-输出配置，runID-本次运行的标识
// 返回：全部配置项对应的记录器（未配置时为空记录器），任一打开失败时关闭已打开的并返回错误
func Open(c config.Output, runID string) (Recorder, error) {
	res := make(multi, 0, 2)
	if c.Dat != "" {
		r, err := NewDatRecorder(c.Dat, runID)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	if c.SQLite != "" {
		r, err := NewSQLiteRecorder(c.SQLite, runID)
		if err != nil {
			return nil, errors.Join(err, res.Close())
		}
		res = append(res, r)
	}
	if len(res) > 0 {
		log.Infof("recording run %s to %d sink(s)", runID, len(res))
	}
	return res, nil
}
