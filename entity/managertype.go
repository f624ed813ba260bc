package entity

// 依赖倒置

// entity/road/network.go的依赖倒置
// 说明：加载后只读，可被任意数量的并发读者共享
type IRoadNetwork interface {
	// 计算参考线位姿，s越界时沿道路连接解析
	Evaluate(roadID int32, s float64) (RefPose, error)
	// 车道宽度，车道不存在时为0
	LaneWidth(roadID, laneID int32, s float64) float64
	// 车道中心线加横向偏移后的世界位姿
	ResolveLaneOffset(roadID, laneID int32, s, offset float64) (LanePose, error)
	// 沿车道行驶方向前进delta，失败时返回原坐标
	Advance(coord TrackCoord, delta float64) (TrackCoord, error)
	// 参考线曲率
	Curvature(roadID int32, s float64) (float64, error)
	// 世界坐标吸附到路网，超出吸附距离时ok为false
	Snap(x, y float64) (fix TrackFix, ok bool)
}
