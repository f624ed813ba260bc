// 随机数引擎，包装了golang.org/x/exp/rand，为属性测试与场景生成提供可复现的随机采样
package randengine

import (
	"flag"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎
// 说明：相同种子（与偏移量）产生相同的序列，非线程安全
type Engine struct {
	*rand.Rand
}

// New 创建随机数引擎
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// Uniform 生成[lo, hi)内均匀分布的随机数
func (e *Engine) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*e.Float64()
}

// Pick 按权重随机选择下标
// 参数：weight-非负权重
// 返回：选中的下标，权重全为0时返回-1
func (e *Engine) Pick(weight []float64) int {
	total := 0.
	for _, w := range weight {
		total += w
	}
	if total <= 0 {
		return -1
	}
	random := total * e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return i
		}
	}
	return len(weight) - 1
}
