package matching // 候选人-岗位匹配与成单概率评分引擎的核心类型定义

import "time"

// EngineVersion 当前评分引擎的版本标签，写入每一份结果和校准日志
const EngineVersion = "v1"

// GateStatus 表示单个资格闸门的判定结果
type GateStatus string

const (
	// GatePass 通过
	GatePass GateStatus = "pass"
	// GateWarn 警告
	GateWarn GateStatus = "warn"
	// GateFail 不通过
	GateFail GateStatus = "fail"
)

// RemoteType 岗位的远程办公类型
const (
	RemoteTypeRemote = "remote"
	RemoteTypeHybrid = "hybrid"
	RemoteTypeOnsite = "onsite"
)

// CandidateProfile 候选人画像（引擎只读输入）
// 数值字段以零值表示"未知"，引擎按 §缺失即中性 的规则处理
type CandidateProfile struct {
	ID              string
	Skills          []string
	YearsExperience float64
	Industries      []string // 行业经验标签

	// 期望薪资：点值优先，否则使用区间
	ExpectedSalary    float64
	ExpectedSalaryMin float64
	ExpectedSalaryMax float64

	MaxCommuteMinutes int  // 可容忍的最大通勤时间(分钟)，0 表示未知
	RemotePreferred   bool // 是否接受/偏好远程办公
	NeedsSponsorship  bool // 是否需要工作签证担保

	AvailableFrom *time.Time // 最早可入职日期，nil 表示未知
}

// JobPosting 岗位信息（引擎只读输入）
type JobPosting struct {
	ID               string
	RequiredSkills   []string
	NiceToHaveSkills []string
	MustHaveSkills   []string // 必备技能子集，为空时所有必需技能都视为必备

	SalaryMin float64
	SalaryMax float64

	ExperienceMin float64
	ExperienceMax float64

	Industry        string
	RemoteType      string // remote / hybrid / onsite
	VisaSponsorship bool   // 是否提供签证担保
}

// Gates 四个独立闸门加聚合闸门的判定快照
type Gates struct {
	Salary       GateStatus `json:"salary"`
	Commute      GateStatus `json:"commute"`
	WorkAuth     GateStatus `json:"workAuth"`
	Availability GateStatus `json:"availability"`
	OverallGate  GateStatus `json:"overallGate"`
}

// SkillsFactor 技能子项评分及匹配明细
type SkillsFactor struct {
	Score        int      `json:"score"`
	Matched      []string `json:"matched"`
	Missing      []string `json:"missing"`
	Transferable []string `json:"transferable"`
}

// ExperienceFactor 经验子项评分
type ExperienceFactor struct {
	Score      int     `json:"score"`
	LevelMatch bool    `json:"levelMatch"`
	GapYears   float64 `json:"gapYears,omitempty"` // 低于岗位最低年限时的差距
}

// IndustryFactor 行业子项评分
type IndustryFactor struct {
	Score           int    `json:"score"`
	MatchedIndustry string `json:"matchedIndustry,omitempty"`
}

// FitFactors 契合度三个子项的完整分解
type FitFactors struct {
	Skills     SkillsFactor     `json:"skills"`
	Experience ExperienceFactor `json:"experience"`
	Industry   IndustryFactor   `json:"industry"`
}

// SalaryConstraint 薪资约束子项评分
type SalaryConstraint struct {
	Score      int     `json:"score"`
	Negotiable bool    `json:"negotiable"`
	GapPercent float64 `json:"gapPercent,omitempty"` // 期望超出预算的百分比
}

// CommuteConstraint 通勤约束子项评分
type CommuteConstraint struct {
	Score int `json:"score"`
}

// StartDateConstraint 入职时间约束子项评分
type StartDateConstraint struct {
	Score     int `json:"score"`
	DaysUntil int `json:"daysUntil,omitempty"` // 距最早可入职日期的天数
}

// ConstraintFactors 约束得分三个子项的完整分解
type ConstraintFactors struct {
	Salary    SalaryConstraint    `json:"salary"`
	Commute   CommuteConstraint   `json:"commute"`
	StartDate StartDateConstraint `json:"startDate"`
}

// Explainability 可解释性输出：理由、风险与建议动作
type Explainability struct {
	TopReasons []string `json:"topReasons"`
	TopRisks   []string `json:"topRisks"`
	NextAction string   `json:"nextAction"`
	WhyNot     string   `json:"whyNot,omitempty"`
}

// Result 引擎的唯一输出，一经产生不可变
// 所有分数均为 [0,100] 整数，成单概率被钳制在 [5,95]
type Result struct {
	Version     string `json:"version"`
	CandidateID string `json:"candidateId"`
	JobID       string `json:"jobId"`

	Gates Gates `json:"gates"`

	FitScore   int        `json:"fitScore"`
	FitFactors FitFactors `json:"fitFactors"`

	ConstraintScore   int               `json:"constraintScore"`
	ConstraintFactors ConstraintFactors `json:"constraintFactors"`

	OverallMatch    int `json:"overallMatch"`
	DealProbability int `json:"dealProbability"`

	Explainability Explainability `json:"explainability"`
}
