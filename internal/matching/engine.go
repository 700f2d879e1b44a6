package matching

import (
	"math"
	"time"
)

// 门禁对综合分的上限：硬性失败封顶 35，软性警告封顶 70
const (
	failCapScore = 35
	warnCapScore = 70
)

// Engine 是确定性的匹配评分核心。
// 它不做任何 I/O：候选人、职位、配置和迁移索引全部由调用方注入，
// 相同输入永远产出相同结果，便于缓存与回放。
type Engine struct {
	cfg      Config
	taxonomy *TaxonomyIndex
	now      func() time.Time
}

// Option 配置 Engine 的可选项
type Option func(*Engine)

// WithClock 注入时钟，测试与回放场景用固定时间保证结果可复现
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTaxonomy 注入技能迁移索引，nil 时不做迁移折算
func WithTaxonomy(idx *TaxonomyIndex) Option {
	return func(e *Engine) {
		e.taxonomy = idx
	}
}

// NewEngine 创建评分引擎。配置会先做归一化，非法权重回退到默认值。
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg.Normalized(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate 对一个候选人-职位组合执行完整评分流程：
// 门禁 -> 契合度 -> 约束 -> 综合(含门禁封顶) -> 成交概率 -> 可解释性。
func (e *Engine) Evaluate(c CandidateProfile, j JobPosting) *Result {
	th := e.cfg.Thresholds
	gates, in := evaluateGates(c, j, th, e.now())

	skills := scoreSkills(c, j, e.taxonomy)
	experience := scoreExperience(c, j)
	industry := scoreIndustry(c, j)
	fitFactors := FitFactors{
		Skills:     skills,
		Experience: experience,
		Industry:   industry,
	}
	fitScore := composeFit(fitFactors, e.cfg.Fit)

	constraintFactors := ConstraintFactors{
		Salary:    scoreSalaryConstraint(in),
		Commute:   scoreCommuteConstraint(c, in, th),
		StartDate: scoreStartDateConstraint(in, th),
	}
	constraintScore := composeConstraint(constraintFactors, e.cfg.Constraint)

	overall := clampScore(int(math.Round(e.cfg.FitWeight*float64(fitScore) + e.cfg.ConstraintWeight*float64(constraintScore))))
	switch gates.OverallGate {
	case GateFail:
		if overall > failCapScore {
			overall = failCapScore
		}
	case GateWarn:
		if overall > warnCapScore {
			overall = warnCapScore
		}
	}

	r := &Result{
		Version:           EngineVersion,
		CandidateID:       c.ID,
		JobID:             j.ID,
		Gates:             gates,
		FitScore:          fitScore,
		FitFactors:        fitFactors,
		ConstraintScore:   constraintScore,
		ConstraintFactors: constraintFactors,
		OverallMatch:      overall,
	}
	r.DealProbability = estimateDealProbability(r, j)
	r.Explainability = buildExplainability(r, in)
	return r
}
