package road

import (
	"fmt"
	"math"
	"sort"

	"github.com/tsinghua-fib-lab/scenario-gateway/utils/input"
	"gonum.org/v1/gonum/integrate/quad"
)

const (
	arcTableQuadPoints = 8   // 弧长表每段的Gauss-Legendre积分点数
	spiralMinPoints    = 16  // 螺旋线积分最少点数
	spiralMaxPoints    = 256 // 螺旋线积分最多点数
)

// primitive 参考线几何元素
// 功能：给定元素内的弧长ds，闭式（或定点积分）计算位置、切线方向与曲率
type primitive interface {
	start() float64
	length() float64
	eval(ds float64) (x, y, hdg float64)
	curvature(ds float64) float64
}

// geometry 几何元素公共部分
type geometry struct {
	s, x, y, hdg, len float64
}

func (g *geometry) start() float64  { return g.s }
func (g *geometry) length() float64 { return g.len }

// toWorld 将元素局部坐标(u, v)变换到世界坐标
func (g *geometry) toWorld(u, v float64) (float64, float64) {
	sin, cos := math.Sincos(g.hdg)
	return g.x + u*cos - v*sin, g.y + u*sin + v*cos
}

type line struct {
	geometry
}

func (l *line) eval(ds float64) (float64, float64, float64) {
	x, y := l.toWorld(ds, 0)
	return x, y, l.hdg
}

func (l *line) curvature(float64) float64 { return 0 }

type arc struct {
	geometry
	k float64
}

func (a *arc) eval(ds float64) (float64, float64, float64) {
	h := a.hdg + a.k*ds
	return a.x + (math.Sin(h)-math.Sin(a.hdg))/a.k,
		a.y - (math.Cos(h)-math.Cos(a.hdg))/a.k,
		h
}

func (a *arc) curvature(float64) float64 { return a.k }

// spiral 回旋线，曲率沿弧长线性变化
// 说明：方向角为弧长的二次函数，位置用定点Gauss-Legendre积分求得
type spiral struct {
	geometry
	k0, dk float64 // 起点曲率与曲率变化率
}

func (sp *spiral) heading(u float64) float64 {
	return sp.hdg + sp.k0*u + sp.dk*u*u/2
}

func (sp *spiral) eval(ds float64) (float64, float64, float64) {
	if ds <= 0 {
		return sp.x, sp.y, sp.hdg
	}
	change := math.Abs(sp.k0*ds) + math.Abs(sp.dk*ds*ds/2)
	n := min(spiralMaxPoints, spiralMinPoints+int(change*16))
	x := quad.Fixed(func(u float64) float64 { return math.Cos(sp.heading(u)) }, 0, ds, n, quad.Legendre{}, 0)
	y := quad.Fixed(func(u float64) float64 { return math.Sin(sp.heading(u)) }, 0, ds, n, quad.Legendre{}, 0)
	return sp.x + x, sp.y + y, sp.heading(ds)
}

func (sp *spiral) curvature(ds float64) float64 { return sp.k0 + sp.dk*ds }

// arcTable 参数-弧长对照表
// 功能：多项式曲线的弧长没有闭式反函数，预先积分得到单调的(s, p)采样，查询时线性插值
type arcTable struct {
	s []float64
	p []float64
}

// newArcTable 构建弧长表
// 参数：speed-|dr/dp|，pMax-参数上限，length-元素长度
// 说明：累计弧长达到length后提前结束
func newArcTable(speed func(float64) float64, pMax, length float64) arcTable {
	n := max(32, 2*int(math.Ceil(length)))
	h := pMax / float64(n)
	t := arcTable{s: []float64{0}, p: []float64{0}}
	acc := 0.
	for i := range n {
		p0 := float64(i) * h
		acc += quad.Fixed(speed, p0, p0+h, arcTableQuadPoints, quad.Legendre{}, 0)
		t.s = append(t.s, acc)
		t.p = append(t.p, p0+h)
		if acc >= length {
			break
		}
	}
	return t
}

func (t arcTable) param(ds float64) float64 {
	i := sort.SearchFloat64s(t.s, ds)
	if i == 0 {
		return t.p[0]
	}
	if i >= len(t.s) {
		return t.p[len(t.p)-1]
	}
	frac := (ds - t.s[i-1]) / (t.s[i] - t.s[i-1])
	return t.p[i-1] + frac*(t.p[i]-t.p[i-1])
}

// poly3 局部坐标下 v = a + b*u + c*u^2 + d*u^3
type poly3 struct {
	geometry
	a, b, c, d float64
	table      arcTable
}

func (p *poly3) dv(u float64) float64  { return p.b + 2*p.c*u + 3*p.d*u*u }
func (p *poly3) ddv(u float64) float64 { return 2*p.c + 6*p.d*u }

func (p *poly3) eval(ds float64) (float64, float64, float64) {
	u := p.table.param(ds)
	x, y := p.toWorld(u, p.a+p.b*u+p.c*u*u+p.d*u*u*u)
	return x, y, p.hdg + math.Atan(p.dv(u))
}

func (p *poly3) curvature(ds float64) float64 {
	u := p.table.param(ds)
	d1 := p.dv(u)
	return p.ddv(u) / math.Pow(1+d1*d1, 1.5)
}

// paramPoly3 参数三次曲线 u(p), v(p)
type paramPoly3 struct {
	geometry
	au, bu, cu, du float64
	av, bv, cv, dv float64
	table          arcTable
}

func (pp *paramPoly3) deriv(p float64) (du, dv float64) {
	return pp.bu + 2*pp.cu*p + 3*pp.du*p*p, pp.bv + 2*pp.cv*p + 3*pp.dv*p*p
}

func (pp *paramPoly3) eval(ds float64) (float64, float64, float64) {
	p := pp.table.param(ds)
	u := pp.au + pp.bu*p + pp.cu*p*p + pp.du*p*p*p
	v := pp.av + pp.bv*p + pp.cv*p*p + pp.dv*p*p*p
	x, y := pp.toWorld(u, v)
	du, dv := pp.deriv(p)
	return x, y, pp.hdg + math.Atan2(dv, du)
}

func (pp *paramPoly3) curvature(ds float64) float64 {
	p := pp.table.param(ds)
	du, dv := pp.deriv(p)
	ddu, ddv := 2*pp.cu+6*pp.du*p, 2*pp.cv+6*pp.dv*p
	n := math.Pow(du*du+dv*dv, 1.5)
	if n == 0 {
		return 0
	}
	return (du*ddv - dv*ddu) / n
}

// newPrimitive 根据输入数据创建几何元素
func newPrimitive(g input.GeometryData) (primitive, error) {
	if g.Length <= 0 {
		return nil, fmt.Errorf("geometry at s=%v: non-positive length %v", g.S, g.Length)
	}
	base := geometry{s: g.S, x: g.X, y: g.Y, hdg: g.Hdg, len: g.Length}
	switch g.Type {
	case "line":
		return &line{geometry: base}, nil
	case "arc":
		if g.Curvature == 0 {
			return &line{geometry: base}, nil
		}
		return &arc{geometry: base, k: g.Curvature}, nil
	case "spiral":
		return &spiral{geometry: base, k0: g.CurvStart, dk: (g.CurvEnd - g.CurvStart) / g.Length}, nil
	case "poly3":
		p := &poly3{geometry: base, a: g.A, b: g.B, c: g.C, d: g.D}
		p.table = newArcTable(func(u float64) float64 {
			d1 := p.dv(u)
			return math.Sqrt(1 + d1*d1)
		}, g.Length, g.Length)
		return p, nil
	case "param_poly3":
		pp := &paramPoly3{
			geometry: base,
			au:       g.AU, bu: g.BU, cu: g.CU, du: g.DU,
			av: g.AV, bv: g.BV, cv: g.CV, dv: g.DV,
		}
		pMax := g.Length
		switch g.PRange {
		case "", "arc_length", "arcLength":
		case "normalized":
			pMax = 1
		default:
			return nil, fmt.Errorf("geometry at s=%v: unknown p_range %q", g.S, g.PRange)
		}
		pp.table = newArcTable(func(p float64) float64 {
			du, dv := pp.deriv(p)
			return math.Hypot(du, dv)
		}, pMax, g.Length)
		return pp, nil
	default:
		return nil, fmt.Errorf("geometry at s=%v: unknown type %q", g.S, g.Type)
	}
}

// cubic 三次多项式记录，ds相对记录起点s
type cubic struct {
	s, a, b, c, d float64
}

func (c cubic) value(ds float64) float64 { return c.a + ds*(c.b+ds*(c.c+ds*c.d)) }
func (c cubic) slope(ds float64) float64 { return c.b + ds*(2*c.c+3*ds*c.d) }

// profile 按s分段的三次多项式，用于车道宽度与高程
type profile []cubic

func newProfile(data []input.PolyData) profile {
	p := make(profile, len(data))
	for i, d := range data {
		p[i] = cubic{s: d.S, a: d.A, b: d.B, c: d.C, d: d.D}
	}
	sort.SliceStable(p, func(i, j int) bool { return p[i].s < p[j].s })
	return p
}

// at 计算s处的值与斜率，无记录时为0
func (p profile) at(s float64) (value, slope float64) {
	if len(p) == 0 {
		return 0, 0
	}
	i := max(0, sort.Search(len(p), func(i int) bool { return p[i].s > s })-1)
	ds := s - p[i].s
	return p[i].value(ds), p[i].slope(ds)
}
