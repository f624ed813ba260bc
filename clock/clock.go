package clock

import (
	"fmt"
	"sync"

	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
)

// Clock 仿真时钟管理器
// 功能：管理仿真时间推进，每次推进的步长由调用方给出（0表示初始化步）
// 说明：维护当前仿真时间、步数等信息，提供时间格式化和RPC服务
type Clock struct {
	DT         float64 // 默认步长（秒）
	START_STEP int32   // 起始步
	END_STEP   int32   // 结束步，模拟区间[START, END)，与START相同时不限步数

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前步数

	mtx sync.RWMutex
}

// New 根据配置创建新的时钟实例
// 参数：stepConfig-控制步配置，包含起始步、总步数与步长
// 返回：初始化完成的时钟实例
func New(stepConfig config.ControlStep) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
		END_STEP:   stepConfig.Start + stepConfig.Total,
	}
	c.Init()
	return c
}

// Init 重置时钟状态
// 说明：重置步数为起始步，重新计算当前时间
func (c *Clock) Init() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
}

// Advance 推进时钟
// 参数：dt-推进的时间，为0时不计步
// 返回：推进后的时间
func (c *Clock) Advance(dt float64) float64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.T += dt
	if dt != 0 {
		c.InternalStep++
	}
	return c.T
}

// Now 当前时间与步数
func (c *Clock) Now() (float64, int32) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.T, c.InternalStep
}

// Done 是否已到达结束步
func (c *Clock) Done() bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.END_STEP > c.START_STEP && c.InternalStep >= c.END_STEP
}

// String 获取时钟的字符串表示
// 返回：格式化的时间字符串（HH:MM:SS）
func (c *Clock) String() string {
	t, _ := c.Now()
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	s := int(t)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
// 返回：小时、分钟、秒（秒为浮点数，支持亚秒级精度）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	t, _ := c.Now()
	hour := int(t) / 3600
	minute := int(t) % 3600 / 60
	second := t - float64(hour*3600+minute*60)
	return hour, minute, second
}
