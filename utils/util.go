package utils

// Find 按ID依次查找数据
// 参数：lookup-按ID查找，ids-待查找的ID列表
// 返回：找到的数据（与ids同序）与未找到的ID
func Find[T any](lookup func(int32) (T, bool), ids []int32) (okData []T, failedIDs []int32) {
	okData = make([]T, 0, len(ids))
	failedIDs = make([]int32, 0)
	for _, id := range ids {
		if d, ok := lookup(id); ok {
			okData = append(okData, d)
		} else {
			failedIDs = append(failedIDs, id)
		}
	}
	return
}
