package matching

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow 测试用固定时钟，保证结果可复现
var fixedNow = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

func testEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(DefaultConfig(), opts...)
}

// TestEvaluateSalaryWithinBudget 薪资恰好等于岗位上限时薪资闸门通过且约束满分
func TestEvaluateSalaryWithinBudget(t *testing.T) {
	e := testEngine(t)

	c := CandidateProfile{
		ID:              "cand-1",
		Skills:          []string{"Go", "MySQL"},
		YearsExperience: 5,
		ExpectedSalary:  70000,
	}
	j := JobPosting{
		ID:             "job-1",
		RequiredSkills: []string{"Go", "MySQL"},
		SalaryMax:      70000,
		ExperienceMin:  3,
		ExperienceMax:  8,
	}

	r := e.Evaluate(c, j)

	assert.Equal(t, GatePass, r.Gates.Salary, "薪资未超出预算，闸门应为 pass")
	assert.Equal(t, GatePass, r.Gates.OverallGate, "聚合闸门应为 pass")
	assert.Equal(t, 100, r.ConstraintFactors.Salary.Score, "薪资约束应为满分")
	assert.Equal(t, 100, r.FitFactors.Skills.Score, "技能全部命中应为满分")
}

// TestEvaluateSalaryFailCapsOverall 薪资超限导致硬性失败时综合分被封顶到 35
func TestEvaluateSalaryFailCapsOverall(t *testing.T) {
	e := testEngine(t)

	c := CandidateProfile{
		ID:              "cand-2",
		Skills:          []string{"Go", "MySQL"},
		YearsExperience: 5,
		ExpectedSalary:  95000,
	}
	j := JobPosting{
		ID:             "job-2",
		RequiredSkills: []string{"Go", "MySQL"},
		SalaryMax:      70000,
		ExperienceMin:  3,
		ExperienceMax:  8,
	}

	r := e.Evaluate(c, j)

	// gap% = (95000-70000)/70000×100 ≈ 35.7 > 35
	assert.Equal(t, GateFail, r.Gates.Salary, "薪资差距超过 fail 阈值应判 fail")
	assert.Equal(t, GateFail, r.Gates.OverallGate)
	assert.LessOrEqual(t, r.OverallMatch, 35, "硬性失败下综合分不得超过 35")
	assert.Equal(t, "clarify salary flexibility", r.Explainability.NextAction)
	assert.NotEmpty(t, r.Explainability.WhyNot, "fail 时必须给出 whyNot 说明")
}

// TestEvaluateSkillsPartialMatch 无迁移条目时缺失技能只计缺失，不给折算分
func TestEvaluateSkillsPartialMatch(t *testing.T) {
	e := testEngine(t)

	c := CandidateProfile{ID: "cand-3", Skills: []string{"Azure"}}
	j := JobPosting{ID: "job-3", RequiredSkills: []string{"Azure", "SCCM"}}

	r := e.Evaluate(c, j)

	assert.Equal(t, []string{"azure"}, r.FitFactors.Skills.Matched)
	assert.Equal(t, []string{"sccm"}, r.FitFactors.Skills.Missing)
	assert.Empty(t, r.FitFactors.Skills.Transferable)
	assert.Equal(t, 50, r.FitFactors.Skills.Score, "1/2 命中应得 50 分")
}

// TestEvaluateTransferableSkillCredit 迁移索引命中的技能按 0.7 折算
func TestEvaluateTransferableSkillCredit(t *testing.T) {
	tax := NewTaxonomyIndex([]TransferEntry{
		{Skill: "SCCM", TransfersFrom: []string{"Azure", "Intune"}},
	})
	e := testEngine(t, WithTaxonomy(tax))

	c := CandidateProfile{ID: "cand-4", Skills: []string{"Azure"}}
	j := JobPosting{ID: "job-4", RequiredSkills: []string{"Azure", "SCCM"}}

	r := e.Evaluate(c, j)

	assert.Equal(t, []string{"azure"}, r.FitFactors.Skills.Matched)
	assert.Equal(t, []string{"sccm"}, r.FitFactors.Skills.Transferable)
	assert.Empty(t, r.FitFactors.Skills.Missing)
	// round((1 + 0.7×1)/2 × 100) = 85
	assert.Equal(t, 85, r.FitFactors.Skills.Score)
}

// TestEvaluateAvailabilityFailOverridesEverything 可入职时间过远时无论其他因素多好都判 fail
func TestEvaluateAvailabilityFailOverridesEverything(t *testing.T) {
	e := testEngine(t)

	from := fixedNow.AddDate(0, 0, 200)
	c := CandidateProfile{
		ID:              "cand-5",
		Skills:          []string{"Go", "MySQL"},
		YearsExperience: 5,
		ExpectedSalary:  60000,
		AvailableFrom:   &from,
	}
	j := JobPosting{
		ID:             "job-5",
		RequiredSkills: []string{"Go", "MySQL"},
		SalaryMax:      70000,
		ExperienceMin:  3,
		ExperienceMax:  8,
	}

	r := e.Evaluate(c, j)

	assert.Equal(t, GateFail, r.Gates.Availability, "200 天超过 fail 阈值 120 天")
	assert.Equal(t, GateFail, r.Gates.OverallGate)
	assert.Equal(t, "discuss start date", r.Explainability.NextAction)
}

// TestEvaluateWarnCapsOverall 软性警告下综合分被封顶到 70
func TestEvaluateWarnCapsOverall(t *testing.T) {
	e := testEngine(t)

	from := fixedNow.AddDate(0, 0, 45) // warn 阈值 30 < 45 < fail 阈值 120
	c := CandidateProfile{
		ID:              "cand-6",
		Skills:          []string{"Go", "MySQL"},
		YearsExperience: 5,
		ExpectedSalary:  60000,
		AvailableFrom:   &from,
	}
	j := JobPosting{
		ID:             "job-6",
		RequiredSkills: []string{"Go", "MySQL"},
		SalaryMax:      70000,
		ExperienceMin:  3,
		ExperienceMax:  8,
	}

	r := e.Evaluate(c, j)

	assert.Equal(t, GateWarn, r.Gates.Availability)
	assert.Equal(t, GateWarn, r.Gates.OverallGate)
	assert.LessOrEqual(t, r.OverallMatch, 70, "软性警告下综合分不得超过 70")
	assert.Equal(t, "contact candidate for clarification", r.Explainability.NextAction)
}

// TestEvaluateDeterminism 相同输入必须产出字节级一致的结果
func TestEvaluateDeterminism(t *testing.T) {
	tax := NewTaxonomyIndex([]TransferEntry{
		{Skill: "Kubernetes", TransfersFrom: []string{"Docker"}},
	})
	e := testEngine(t, WithTaxonomy(tax))

	from := fixedNow.AddDate(0, 0, 10)
	c := CandidateProfile{
		ID:                "cand-7",
		Skills:            []string{"Go", "Docker", "Redis"},
		YearsExperience:   4,
		Industries:        []string{"fintech"},
		ExpectedSalaryMin: 55000,
		ExpectedSalaryMax: 65000,
		MaxCommuteMinutes: 50,
		AvailableFrom:     &from,
	}
	j := JobPosting{
		ID:              "job-7",
		RequiredSkills:  []string{"Go", "Kubernetes", "Redis"},
		MustHaveSkills:  []string{"Go"},
		SalaryMin:       50000,
		SalaryMax:       70000,
		ExperienceMin:   3,
		ExperienceMax:   8,
		Industry:        "FinTech",
		RemoteType:      RemoteTypeHybrid,
		VisaSponsorship: true,
	}

	first, err := json.Marshal(e.Evaluate(c, j))
	require.NoError(t, err)
	second, err := json.Marshal(e.Evaluate(c, j))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second), "两次评估的序列化结果必须逐字节一致")
}

// TestEvaluateSkillsMonotonicity 增加一个命中技能不会降低技能分或契合度总分
func TestEvaluateSkillsMonotonicity(t *testing.T) {
	e := testEngine(t)

	j := JobPosting{
		ID:             "job-8",
		RequiredSkills: []string{"Go", "MySQL", "Redis", "Kafka"},
	}

	base := CandidateProfile{ID: "cand-8", Skills: []string{"Go", "MySQL"}}
	more := CandidateProfile{ID: "cand-8", Skills: []string{"Go", "MySQL", "Redis"}}

	rBase := e.Evaluate(base, j)
	rMore := e.Evaluate(more, j)

	assert.GreaterOrEqual(t, rMore.FitFactors.Skills.Score, rBase.FitFactors.Skills.Score,
		"多命中一个技能后技能分不得下降")
	assert.GreaterOrEqual(t, rMore.FitScore, rBase.FitScore,
		"多命中一个技能后契合度总分不得下降")
}

// TestEvaluateMissingFieldsStayNeutral 可选字段缺失只能判 pass 且子项分不低于中性基线
func TestEvaluateMissingFieldsStayNeutral(t *testing.T) {
	e := testEngine(t)

	// 除 ID 外什么都不知道的候选人
	c := CandidateProfile{ID: "cand-9"}
	j := JobPosting{ID: "job-9", RequiredSkills: []string{"Go"}}

	r := e.Evaluate(c, j)

	assert.Equal(t, GatePass, r.Gates.Salary, "薪资未知不应触发闸门")
	assert.Equal(t, GatePass, r.Gates.Commute)
	assert.Equal(t, GatePass, r.Gates.WorkAuth)
	assert.Equal(t, GatePass, r.Gates.Availability)
	assert.Equal(t, GatePass, r.Gates.OverallGate)

	assert.Equal(t, 50, r.FitFactors.Industry.Score, "行业未知应保持中性基线 50")
	assert.Equal(t, 100, r.FitFactors.Experience.Score, "经验区间未知不惩罚")
	assert.Equal(t, 100, r.ConstraintFactors.Salary.Score)
	assert.Equal(t, 100, r.ConstraintFactors.Commute.Score)
	assert.Equal(t, 100, r.ConstraintFactors.StartDate.Score)
}

// TestEvaluateScoreRanges 各分数始终落在 [0,100] 区间、概率落在 [5,95] 区间
func TestEvaluateScoreRanges(t *testing.T) {
	e := testEngine(t)

	far := fixedNow.AddDate(2, 0, 0)
	cases := []struct {
		name string
		c    CandidateProfile
		j    JobPosting
	}{
		{
			name: "全部缺失",
			c:    CandidateProfile{ID: "c-a"},
			j:    JobPosting{ID: "j-a"},
		},
		{
			name: "全面冲突",
			c: CandidateProfile{
				ID:               "c-b",
				Skills:           []string{"COBOL"},
				YearsExperience:  1,
				ExpectedSalary:   200000,
				NeedsSponsorship: true,
				AvailableFrom:    &far,
			},
			j: JobPosting{
				ID:             "j-b",
				RequiredSkills: []string{"Go", "Rust", "Kubernetes"},
				SalaryMax:      60000,
				ExperienceMin:  8,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := e.Evaluate(tc.c, tc.j)
			assert.GreaterOrEqual(t, r.FitScore, 0)
			assert.LessOrEqual(t, r.FitScore, 100)
			assert.GreaterOrEqual(t, r.ConstraintScore, 0)
			assert.LessOrEqual(t, r.ConstraintScore, 100)
			assert.GreaterOrEqual(t, r.OverallMatch, 0)
			assert.LessOrEqual(t, r.OverallMatch, 100)
			assert.GreaterOrEqual(t, r.DealProbability, 5, "概率下界为 5")
			assert.LessOrEqual(t, r.DealProbability, 95, "概率上界为 95")
		})
	}
}

// TestEvaluateStampsIdentity 结果必须携带引擎版本和双方 ID
func TestEvaluateStampsIdentity(t *testing.T) {
	e := testEngine(t)

	r := e.Evaluate(CandidateProfile{ID: "cand-10"}, JobPosting{ID: "job-10"})

	assert.Equal(t, EngineVersion, r.Version)
	assert.Equal(t, "cand-10", r.CandidateID)
	assert.Equal(t, "job-10", r.JobID)
}

// TestDealProbabilitySkillBoost 闸门通过且技能分 ≥80 时概率获得 1.1 倍加成
func TestDealProbabilitySkillBoost(t *testing.T) {
	r := &Result{
		OverallMatch: 80,
		Gates:        Gates{OverallGate: GatePass},
		FitFactors:   FitFactors{Skills: SkillsFactor{Score: 85}},
	}

	p := estimateDealProbability(r, JobPosting{})

	// round(80 × 1.1) = 88
	assert.Equal(t, 88, p)
}

// TestDealProbabilityFailMultiplier 聚合 fail 时概率乘 0.3 且不低于下界
func TestDealProbabilityFailMultiplier(t *testing.T) {
	r := &Result{
		OverallMatch: 35,
		Gates:        Gates{OverallGate: GateFail},
		FitFactors:   FitFactors{Skills: SkillsFactor{Score: 20}},
	}

	p := estimateDealProbability(r, JobPosting{})

	// round(35 × 0.3) = 11
	assert.Equal(t, 11, p)

	r.OverallMatch = 5
	assert.Equal(t, 5, estimateDealProbability(r, JobPosting{}), "概率不得低于下界 5")
}

// TestDealProbabilityMustHavePenalty 缺失必备技能超过 2 个时概率乘 0.8
func TestDealProbabilityMustHavePenalty(t *testing.T) {
	r := &Result{
		OverallMatch: 60,
		Gates:        Gates{OverallGate: GatePass},
		FitFactors: FitFactors{Skills: SkillsFactor{
			Score:   30,
			Missing: []string{"go", "rust", "kubernetes"},
		}},
	}

	// 岗位未声明必备子集时所有必需技能都是必备的
	p := estimateDealProbability(r, JobPosting{})
	assert.Equal(t, 48, p, "round(60 × 0.8) = 48")

	// 必备子集只含一个缺失技能时不触发惩罚
	j := JobPosting{MustHaveSkills: []string{"Go"}}
	assert.Equal(t, 60, estimateDealProbability(r, j))
}
