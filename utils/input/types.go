package input

// LinkData 道路连接关系
// Type为road或junction，Contact为被连接道路上的连接点（start或end），junction连接时忽略Contact
type LinkData struct {
	Type    string `yaml:"type" bson:"type"`
	ID      int32  `yaml:"id" bson:"id"`
	Contact string `yaml:"contact,omitempty" bson:"contact,omitempty"`
}

// GeometryData 参考线几何元素
// 功能：描述一段参考线，Type决定使用哪些参数
// 说明：
//   - line: 无附加参数
//   - arc: Curvature
//   - spiral: CurvStart, CurvEnd（曲率沿长度线性变化）
//   - poly3: A, B, C, D（局部坐标 v = a + b*u + c*u^2 + d*u^3）
//   - param_poly3: AU..DU, AV..DV, PRange（arc_length或normalized）
type GeometryData struct {
	S      float64 `yaml:"s" bson:"s"`
	X      float64 `yaml:"x" bson:"x"`
	Y      float64 `yaml:"y" bson:"y"`
	Hdg    float64 `yaml:"hdg" bson:"hdg"`
	Length float64 `yaml:"length" bson:"length"`
	Type   string  `yaml:"type" bson:"type"`

	Curvature float64 `yaml:"curvature,omitempty" bson:"curvature,omitempty"`
	CurvStart float64 `yaml:"curv_start,omitempty" bson:"curv_start,omitempty"`
	CurvEnd   float64 `yaml:"curv_end,omitempty" bson:"curv_end,omitempty"`

	A float64 `yaml:"a,omitempty" bson:"a,omitempty"`
	B float64 `yaml:"b,omitempty" bson:"b,omitempty"`
	C float64 `yaml:"c,omitempty" bson:"c,omitempty"`
	D float64 `yaml:"d,omitempty" bson:"d,omitempty"`

	AU     float64 `yaml:"au,omitempty" bson:"au,omitempty"`
	BU     float64 `yaml:"bu,omitempty" bson:"bu,omitempty"`
	CU     float64 `yaml:"cu,omitempty" bson:"cu,omitempty"`
	DU     float64 `yaml:"du,omitempty" bson:"du,omitempty"`
	AV     float64 `yaml:"av,omitempty" bson:"av,omitempty"`
	BV     float64 `yaml:"bv,omitempty" bson:"bv,omitempty"`
	CV     float64 `yaml:"cv,omitempty" bson:"cv,omitempty"`
	DV     float64 `yaml:"dv,omitempty" bson:"dv,omitempty"`
	PRange string  `yaml:"p_range,omitempty" bson:"p_range,omitempty"`
}

// PolyData 三次多项式记录，用于车道宽度（S为s_offset）与高程
type PolyData struct {
	S float64 `yaml:"s" bson:"s"`
	A float64 `yaml:"a" bson:"a"`
	B float64 `yaml:"b,omitempty" bson:"b,omitempty"`
	C float64 `yaml:"c,omitempty" bson:"c,omitempty"`
	D float64 `yaml:"d,omitempty" bson:"d,omitempty"`
}

// LaneData 车道
// ID为带符号索引：负数在参考线右侧，正数在左侧，0保留给参考线
type LaneData struct {
	ID          int32      `yaml:"id" bson:"id"`
	Type        string     `yaml:"type,omitempty" bson:"type,omitempty"`
	Width       []PolyData `yaml:"width" bson:"width"`
	Predecessor *int32     `yaml:"predecessor,omitempty" bson:"predecessor,omitempty"` // 前驱道路上的车道ID
	Successor   *int32     `yaml:"successor,omitempty" bson:"successor,omitempty"`     // 后继道路上的车道ID
}

// RoadData 道路
type RoadData struct {
	ID          int32          `yaml:"id" bson:"id"`
	Name        string         `yaml:"name,omitempty" bson:"name,omitempty"`
	Junction    *int32         `yaml:"junction,omitempty" bson:"junction,omitempty"` // 所在路口，为空表示普通道路
	Predecessor *LinkData      `yaml:"predecessor,omitempty" bson:"predecessor,omitempty"`
	Successor   *LinkData      `yaml:"successor,omitempty" bson:"successor,omitempty"`
	Geometry    []GeometryData `yaml:"geometry" bson:"geometry"`
	Elevation   []PolyData     `yaml:"elevation,omitempty" bson:"elevation,omitempty"`
	Lanes       []LaneData     `yaml:"lanes" bson:"lanes"`
}

// LaneLinkData 路口内车道连接
type LaneLinkData struct {
	From int32 `yaml:"from" bson:"from"`
	To   int32 `yaml:"to" bson:"to"`
}

// ConnectionData 路口连接：从IncomingRoad经ConnectingRoad通过路口
type ConnectionData struct {
	IncomingRoad   int32          `yaml:"incoming_road" bson:"incoming_road"`
	ConnectingRoad int32          `yaml:"connecting_road" bson:"connecting_road"`
	ContactPoint   string         `yaml:"contact_point" bson:"contact_point"`
	LaneLinks      []LaneLinkData `yaml:"lane_links" bson:"lane_links"`
}

// JunctionData 路口
type JunctionData struct {
	ID          int32            `yaml:"id" bson:"id"`
	Connections []ConnectionData `yaml:"connections" bson:"connections"`
}

// MapData 路网
type MapData struct {
	Roads     []RoadData     `yaml:"roads" bson:"roads"`
	Junctions []JunctionData `yaml:"junctions,omitempty" bson:"junctions,omitempty"`
}

// TrackData 道路坐标
type TrackData struct {
	Road   int32   `yaml:"road" bson:"road"`
	Lane   int32   `yaml:"lane" bson:"lane"`
	S      float64 `yaml:"s" bson:"s"`
	Offset float64 `yaml:"offset,omitempty" bson:"offset,omitempty"`
	H      float64 `yaml:"h,omitempty" bson:"h,omitempty"` // 相对车道行驶方向的航向角
}

// ObjectData 场景初始对象
// External为true的对象由外部上报驱动，引擎不推进其位置
type ObjectData struct {
	ID       int32     `yaml:"id" bson:"id"`
	Name     string    `yaml:"name" bson:"name"`
	External bool      `yaml:"external,omitempty" bson:"external,omitempty"`
	Position TrackData `yaml:"position" bson:"position"`
	Speed    float64   `yaml:"speed,omitempty" bson:"speed,omitempty"`
}

// TriggerData 动作触发条件：仿真时间达到Time
type TriggerData struct {
	Time float64 `yaml:"time" bson:"time"`
}

// SpeedData 速度动作参数
type SpeedData struct {
	Value float64 `yaml:"value" bson:"value"`
}

// LaneChangeData 变道动作参数
type LaneChangeData struct {
	Lane int32 `yaml:"lane" bson:"lane"`
}

// ActionData 场景动作，Speed/Teleport/LaneChange三选一
type ActionData struct {
	Name       string          `yaml:"name" bson:"name"`
	Object     int32           `yaml:"object" bson:"object"`
	Trigger    TriggerData     `yaml:"trigger" bson:"trigger"`
	Speed      *SpeedData      `yaml:"speed,omitempty" bson:"speed,omitempty"`
	Teleport   *TrackData      `yaml:"teleport,omitempty" bson:"teleport,omitempty"`
	LaneChange *LaneChangeData `yaml:"lane_change,omitempty" bson:"lane_change,omitempty"`
}

// ScenarioData 场景
type ScenarioData struct {
	Objects []ObjectData `yaml:"objects" bson:"objects"`
	Actions []ActionData `yaml:"actions,omitempty" bson:"actions,omitempty"`
}
