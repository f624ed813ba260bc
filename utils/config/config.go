package config

const (
	DefaultSnapDistance  = 5.0  // 默认吸附距离
	DefaultSnapTolerance = 0.01 // 默认逆向投影精度
	DefaultInterval      = 0.05 // 默认步长（秒）
)

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息，缺省项已被填充
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，填充缺省值
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
// 算法说明：
// 1. 吸附距离、吸附精度未设置（<=0）时使用默认值
// 2. 步长未设置时使用默认步长
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	rc.C = config.Control.WithDefaults()
	config.Control = rc.C
	rc.All = config

	return rc
}

// WithDefaults 返回填充了缺省值的控制配置
func (c Control) WithDefaults() Control {
	if c.SnapDistance <= 0 {
		c.SnapDistance = DefaultSnapDistance
	}
	if c.SnapTolerance <= 0 {
		c.SnapTolerance = DefaultSnapTolerance
	}
	if c.Step.Interval <= 0 {
		c.Step.Interval = DefaultInterval
	}
	return c
}
