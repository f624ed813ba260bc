package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：File优先级高于MongoDB，File为空时从{DB}.{Col}读取唯一一个文档
type InputPath struct {
	DB   string `yaml:"db,omitempty"`   // 数据库名
	Col  string `yaml:"col,omitempty"`  // 集合名
	File string `yaml:"file,omitempty"` // 文件路径（优先级高于MongoDB）
}

// GetDb 获取数据库名
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
func (p InputPath) GetColl() string {
	return p.Col
}

// Input 指定模拟器所有输入数据的配置项
// 功能：定义路网与场景两类输入数据
type Input struct {
	URI      string     `yaml:"uri,omitempty"`      // MongoDB连接字符串
	Map      InputPath  `yaml:"map"`                // 路网
	Scenario *InputPath `yaml:"scenario,omitempty"` // 场景（初始对象与动作），为空则不创建内部对象
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
}

// Control 模拟器控制配置
// 功能：定义时间推进与坐标吸附相关的核心参数
type Control struct {
	Step          ControlStep `yaml:"step"`
	SnapDistance  float64     `yaml:"snap_distance,omitempty"`  // 世界坐标吸附到路网的最大距离，超出视为离开路网
	SnapTolerance float64     `yaml:"snap_tolerance,omitempty"` // 逆向投影的s坐标精度
}

// Output 快照记录配置，为空则不记录
type Output struct {
	Dat    string `yaml:"dat,omitempty"`    // protobuf分帧记录文件路径
	SQLite string `yaml:"sqlite,omitempty"` // SQLite轨迹库路径
}

// Config YAML配置文件的根结构
// 功能：定义整个仿真系统的配置结构
// 说明：包含输入、控制、输出等所有配置项
type Config struct {
	Input   Input   `yaml:"input"`            // 输入
	Control Control `yaml:"control"`          // 模拟过程控制
	Output  Output  `yaml:"output,omitempty"` // 输出
}
