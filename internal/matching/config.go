package matching

// FitWeights 契合度三个子项的权重
type FitWeights struct {
	Skills     float64 `json:"skills" yaml:"skills"`
	Experience float64 `json:"experience" yaml:"experience"`
	Industry   float64 `json:"industry" yaml:"industry"`
}

// ConstraintWeights 约束得分三个子项的权重
type ConstraintWeights struct {
	Salary    float64 `json:"salary" yaml:"salary"`
	Commute   float64 `json:"commute" yaml:"commute"`
	StartDate float64 `json:"startDate" yaml:"start_date"`
}

// Thresholds 闸门判定的阈值表
type Thresholds struct {
	SalaryWarnPercent float64 `json:"salaryWarnPercent" yaml:"salary_warn_percent"`
	SalaryFailPercent float64 `json:"salaryFailPercent" yaml:"salary_fail_percent"`

	CommuteWarnMinutes int `json:"commuteWarnMinutes" yaml:"commute_warn_minutes"`
	CommuteFailMinutes int `json:"commuteFailMinutes" yaml:"commute_fail_minutes"`

	AvailabilityWarnDays int `json:"availabilityWarnDays" yaml:"availability_warn_days"`
	AvailabilityFailDays int `json:"availabilityFailDays" yaml:"availability_fail_days"`

	MinSkillMatchPercent int `json:"minSkillMatchPercent" yaml:"min_skill_match_percent"`
}

// Config 匹配配置：顶层 契合度/约束 二分权重、各子项权重及阈值表
// 同一时刻只有一份配置处于激活状态；无激活配置时引擎回退到内置默认值，
// 因此引擎永远不会仅因配置缺失而失败。
type Config struct {
	FitWeight        float64 `json:"fitWeight" yaml:"fit_weight"`
	ConstraintWeight float64 `json:"constraintWeight" yaml:"constraint_weight"`

	Fit        FitWeights        `json:"fit" yaml:"fit"`
	Constraint ConstraintWeights `json:"constraint" yaml:"constraint"`

	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`
}

// DefaultConfig 内置默认配置
func DefaultConfig() Config {
	return Config{
		FitWeight:        0.6,
		ConstraintWeight: 0.4,
		Fit: FitWeights{
			Skills:     0.5,
			Experience: 0.3,
			Industry:   0.2,
		},
		Constraint: ConstraintWeights{
			Salary:    0.4,
			Commute:   0.3,
			StartDate: 0.3,
		},
		Thresholds: Thresholds{
			SalaryWarnPercent:    10,
			SalaryFailPercent:    35,
			CommuteWarnMinutes:   45,
			CommuteFailMinutes:   90,
			AvailabilityWarnDays: 30,
			AvailabilityFailDays: 120,
			MinSkillMatchPercent: 30,
		},
	}
}

// Normalized 返回一份权重归一化后的配置副本
// 任何一组权重之和为 0 时回退到默认权重，保证加权求和始终良定义。
func (c Config) Normalized() Config {
	def := DefaultConfig()

	if s := c.FitWeight + c.ConstraintWeight; s > 0 {
		c.FitWeight /= s
		c.ConstraintWeight /= s
	} else {
		c.FitWeight = def.FitWeight
		c.ConstraintWeight = def.ConstraintWeight
	}

	if s := c.Fit.Skills + c.Fit.Experience + c.Fit.Industry; s > 0 {
		c.Fit.Skills /= s
		c.Fit.Experience /= s
		c.Fit.Industry /= s
	} else {
		c.Fit = def.Fit
	}

	if s := c.Constraint.Salary + c.Constraint.Commute + c.Constraint.StartDate; s > 0 {
		c.Constraint.Salary /= s
		c.Constraint.Commute /= s
		c.Constraint.StartDate /= s
	} else {
		c.Constraint = def.Constraint
	}

	// 阈值缺失时逐项回退
	if c.Thresholds.SalaryWarnPercent <= 0 {
		c.Thresholds.SalaryWarnPercent = def.Thresholds.SalaryWarnPercent
	}
	if c.Thresholds.SalaryFailPercent <= 0 {
		c.Thresholds.SalaryFailPercent = def.Thresholds.SalaryFailPercent
	}
	if c.Thresholds.CommuteWarnMinutes <= 0 {
		c.Thresholds.CommuteWarnMinutes = def.Thresholds.CommuteWarnMinutes
	}
	if c.Thresholds.CommuteFailMinutes <= 0 {
		c.Thresholds.CommuteFailMinutes = def.Thresholds.CommuteFailMinutes
	}
	if c.Thresholds.AvailabilityWarnDays <= 0 {
		c.Thresholds.AvailabilityWarnDays = def.Thresholds.AvailabilityWarnDays
	}
	if c.Thresholds.AvailabilityFailDays <= 0 {
		c.Thresholds.AvailabilityFailDays = def.Thresholds.AvailabilityFailDays
	}
	if c.Thresholds.MinSkillMatchPercent <= 0 {
		c.Thresholds.MinSkillMatchPercent = def.Thresholds.MinSkillMatchPercent
	}

	return c
}
