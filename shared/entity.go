package shared

import "math"

const (
	// DefaultSpeed 实体移动速度（单位/秒），在实体生命周期内不可变
	DefaultSpeed = 2.0

	// NoInput 尚未应用任何输入时的确认游标
	NoInput int64 = -1
)

// Entity 世界中的一个实体：服务端为权威副本，客户端为预测/插值副本
type Entity struct {
	ID    string  `json:"entity_id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Speed float64 `json:"speed"`
}

// ApplyInput 按轴独立线性积分（不做对角线归一化）
func (e *Entity) ApplyInput(in Input) {
	e.X += float64(in.X) * in.Dt * e.Speed
	e.Y += float64(in.Y) * in.Dt * e.Speed
}

// Rules 客户端预测与服务端权威共用的合法性规则
type Rules struct {
	Min   float64 // 坐标下界（含）
	Max   float64 // 坐标上界（含）
	MaxDt float64 // 单个输入允许的最大模拟时间（秒），反作弊上限
}

// DefaultRules 世界为 [0,10]×[0,10]，单步 dt 不超过 0.1s
func DefaultRules() Rules {
	return Rules{Min: 0, Max: 10, MaxDt: 0.1}
}

// Validate 边界包含、方向感知：贴边的实体仍可离开边界
func (r Rules) Validate(e Entity, in Input) bool {
	if !validAxis(in.X) || !validAxis(in.Y) {
		return false
	}
	if math.IsNaN(in.Dt) || math.IsInf(in.Dt, 0) || in.Dt < 0 {
		return false
	}
	if in.X > 0 && e.X >= r.Max {
		return false
	}
	if in.X < 0 && e.X <= r.Min {
		return false
	}
	if in.Y > 0 && e.Y >= r.Max {
		return false
	}
	if in.Y < 0 && e.Y <= r.Min {
		return false
	}
	return in.Dt <= r.MaxDt
}

// Apply 校验通过则应用输入并把坐标夹回 [Min, Max]，返回是否应用。
// 服务端权威与客户端预测、重放都走这里，两侧结果一致。
func (r Rules) Apply(e *Entity, in Input) bool {
	if !r.Validate(*e, in) {
		return false
	}
	e.ApplyInput(in)
	e.X = clamp(e.X, r.Min, r.Max)
	e.Y = clamp(e.Y, r.Min, r.Max)
	return true
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func validAxis(v int) bool {
	return v >= -1 && v <= 1
}
