package container

import "container/heap"

// item 优先队列中单个元素
type item[T any] struct {
	Value    T       // 元素的值
	Priority float64 // 元素的优先级（越小越优先）
	seq      uint64  // 插入序号，优先级相同时先入先出
}

// priorityQueue 实现heap.Interface
type priorityQueue[T any] []*item[T]

func (pq priorityQueue[T]) Len() int { return len(pq) }

func (pq priorityQueue[T]) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority < pq[j].Priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue[T]) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *priorityQueue[T]) Push(x any) {
	*pq = append(*pq, x.(*item[T]))
}

func (pq *priorityQueue[T]) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	*pq = old[0 : n-1]
	return item
}

// PriorityQueue 稳定的最小优先队列
// 功能：按优先级弹出元素，优先级相同的元素按插入顺序弹出
type PriorityQueue[T any] struct {
	queue priorityQueue[T]
	seq   uint64
}

// NewPriorityQueue 创建优先队列
func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{queue: make(priorityQueue[T], 0)}
}

// Len 获取当前队列长度
func (q *PriorityQueue[T]) Len() int {
	return len(q.queue)
}

// Push 加入元素
func (q *PriorityQueue[T]) Push(value T, priority float64) {
	heap.Push(&q.queue, &item[T]{Value: value, Priority: priority, seq: q.seq})
	q.seq++
}

// Pop 弹出优先级最高的元素，队列为空时panic
func (q *PriorityQueue[T]) Pop() (value T, priority float64) {
	item := heap.Pop(&q.queue).(*item[T])
	return item.Value, item.Priority
}

// PopUntil 按顺序弹出所有优先级不大于limit的元素
func (q *PriorityQueue[T]) PopUntil(limit float64) []T {
	res := make([]T, 0)
	for len(q.queue) > 0 && q.queue[0].Priority <= limit {
		v, _ := q.Pop()
		res = append(res, v)
	}
	return res
}
