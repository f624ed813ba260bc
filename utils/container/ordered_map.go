package container

// OrderedMap 按插入顺序保存的映射
// 功能：键唯一，遍历顺序与下标均为首次插入顺序，覆盖写不改变位置
// 说明：非线程安全，由持有者负责加锁
type OrderedMap[K comparable, V any] struct {
	index  map[K]int // 键 -> 下标
	keys   []K
	values []V
}

// NewOrderedMap 创建有序映射
func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{
		index:  make(map[K]int),
		keys:   make([]K, 0),
		values: make([]V, 0),
	}
}

// Len 元素个数
func (m *OrderedMap[K, V]) Len() int {
	return len(m.keys)
}

// Set 插入或覆盖
// 返回：元素下标，是否为新插入
func (m *OrderedMap[K, V]) Set(key K, value V) (int, bool) {
	if i, ok := m.index[key]; ok {
		m.values[i] = value
		return i, false
	}
	i := len(m.keys)
	m.index[key] = i
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
	return i, true
}

// Get 按键查找
func (m *OrderedMap[K, V]) Get(key K) (V, bool) {
	if i, ok := m.index[key]; ok {
		return m.values[i], true
	}
	var zero V
	return zero, false
}

// Update 原地修改已有元素
// 参数：f-返回新值，出错时不写入
// 返回：键是否存在，f的错误
func (m *OrderedMap[K, V]) Update(key K, f func(V) (V, error)) (bool, error) {
	i, ok := m.index[key]
	if !ok {
		return false, nil
	}
	v, err := f(m.values[i])
	if err != nil {
		return true, err
	}
	m.values[i] = v
	return true, nil
}

// Delete 删除元素，后续元素依次前移以保持顺序
func (m *OrderedMap[K, V]) Delete(key K) bool {
	i, ok := m.index[key]
	if !ok {
		return false
	}
	delete(m.index, key)
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.values = append(m.values[:i], m.values[i+1:]...)
	for j := i; j < len(m.keys); j++ {
		m.index[m.keys[j]] = j
	}
	return true
}

// Keys 全部键的副本，按插入顺序
func (m *OrderedMap[K, V]) Keys() []K {
	return append(make([]K, 0, len(m.keys)), m.keys...)
}

// Values 全部值的副本，按插入顺序
func (m *OrderedMap[K, V]) Values() []V {
	return append(make([]V, 0, len(m.values)), m.values...)
}

// Range 按插入顺序遍历，f返回false时停止
func (m *OrderedMap[K, V]) Range(f func(i int, key K, value V) bool) {
	for i, k := range m.keys {
		if !f(i, k, m.values[i]) {
			return
		}
	}
}
