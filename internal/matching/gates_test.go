package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestSalaryFigure 期望薪资代表值的取法：点值 > 区间中点 > 单边值 > 未知
func TestSalaryFigure(t *testing.T) {
	assert.Equal(t, float64(80000), salaryFigure(CandidateProfile{ExpectedSalary: 80000}))
	assert.Equal(t, float64(60000), salaryFigure(CandidateProfile{
		ExpectedSalaryMin: 50000,
		ExpectedSalaryMax: 70000,
	}))
	assert.Equal(t, float64(70000), salaryFigure(CandidateProfile{ExpectedSalaryMax: 70000}))
	assert.Equal(t, float64(50000), salaryFigure(CandidateProfile{ExpectedSalaryMin: 50000}))
	assert.Equal(t, float64(0), salaryFigure(CandidateProfile{}))

	// 点值优先于区间
	assert.Equal(t, float64(80000), salaryFigure(CandidateProfile{
		ExpectedSalary:    80000,
		ExpectedSalaryMin: 50000,
		ExpectedSalaryMax: 70000,
	}))
}

// TestDaysUntilDate 天数差向上取整，过去的日期记 0
func TestDaysUntilDate(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, daysUntilDate(now, now))
	assert.Equal(t, 0, daysUntilDate(now, now.AddDate(0, 0, -3)))
	assert.Equal(t, 1, daysUntilDate(now, now.Add(2*time.Hour)), "不足一天按一天计")
	assert.Equal(t, 30, daysUntilDate(now, now.AddDate(0, 0, 30)))
}

// TestCommuteGateShortToleranceIsPass 通勤容忍度低于 20 分钟判 pass 而非 warn
// 这是既有策略的不对称行为，按原样保留。
func TestCommuteGateShortToleranceIsPass(t *testing.T) {
	th := DefaultConfig().Thresholds
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	j := JobPosting{ID: "job-onsite", RemoteType: RemoteTypeOnsite}

	short := CandidateProfile{ID: "c", MaxCommuteMinutes: 15}
	g, _ := evaluateGates(short, j, th, now)
	assert.Equal(t, GatePass, g.Commute, "低于 20 分钟按住得很近处理")

	mid := CandidateProfile{ID: "c", MaxCommuteMinutes: 30}
	g, _ = evaluateGates(mid, j, th, now)
	assert.Equal(t, GateWarn, g.Commute, "20~45 分钟之间应为 warn")

	long := CandidateProfile{ID: "c", MaxCommuteMinutes: 60}
	g, _ = evaluateGates(long, j, th, now)
	assert.Equal(t, GatePass, g.Commute, "容忍度充足应为 pass")
}

// TestCommuteGateRemoteExemption 远程岗位或候选人接受远程时通勤闸门豁免
func TestCommuteGateRemoteExemption(t *testing.T) {
	th := DefaultConfig().Thresholds
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	c := CandidateProfile{ID: "c", MaxCommuteMinutes: 25}

	g, in := evaluateGates(c, JobPosting{ID: "j", RemoteType: RemoteTypeRemote}, th, now)
	assert.Equal(t, GatePass, g.Commute)
	assert.True(t, in.commuteExempt)

	c.RemotePreferred = true
	g, in = evaluateGates(c, JobPosting{ID: "j", RemoteType: RemoteTypeOnsite}, th, now)
	assert.Equal(t, GatePass, g.Commute)
	assert.True(t, in.commuteExempt)
}

// TestWorkAuthGate 只有"需要担保且岗位不提供"这一种组合会 fail
func TestWorkAuthGate(t *testing.T) {
	th := DefaultConfig().Thresholds
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	g, _ := evaluateGates(CandidateProfile{NeedsSponsorship: true}, JobPosting{VisaSponsorship: false}, th, now)
	assert.Equal(t, GateFail, g.WorkAuth)
	assert.Equal(t, GateFail, g.OverallGate, "工作许可 fail 必须拉低聚合闸门")

	g, _ = evaluateGates(CandidateProfile{NeedsSponsorship: true}, JobPosting{VisaSponsorship: true}, th, now)
	assert.Equal(t, GatePass, g.WorkAuth)

	g, _ = evaluateGates(CandidateProfile{}, JobPosting{}, th, now)
	assert.Equal(t, GatePass, g.WorkAuth)
}

// TestGateAggregation 聚合规则：fail 只看薪资/许可/入职时间，warn 额外纳入通勤
func TestGateAggregation(t *testing.T) {
	th := DefaultConfig().Thresholds
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	// 仅通勤 warn 时聚合为 warn
	c := CandidateProfile{MaxCommuteMinutes: 30}
	g, _ := evaluateGates(c, JobPosting{RemoteType: RemoteTypeOnsite}, th, now)
	assert.Equal(t, GateWarn, g.Commute)
	assert.Equal(t, GateWarn, g.OverallGate)

	// 通勤永远不会 fail
	assert.NotEqual(t, GateFail, g.Commute)
}

// TestConfigNormalized 权重归一化：各组权重之和被调整为 1，非法配置回退默认
func TestConfigNormalized(t *testing.T) {
	cfg := Config{
		FitWeight:        3,
		ConstraintWeight: 1,
		Fit:              FitWeights{Skills: 2, Experience: 1, Industry: 1},
		Constraint:       ConstraintWeights{Salary: 1, Commute: 1, StartDate: 2},
	}

	n := cfg.Normalized()

	assert.InDelta(t, 0.75, n.FitWeight, 1e-9)
	assert.InDelta(t, 0.25, n.ConstraintWeight, 1e-9)
	assert.InDelta(t, 0.5, n.Fit.Skills, 1e-9)
	assert.InDelta(t, 1.0, n.Constraint.Salary+n.Constraint.Commute+n.Constraint.StartDate, 1e-9)

	// 全零权重回退到默认配置
	zero := Config{}.Normalized()
	def := DefaultConfig()
	assert.Equal(t, def.FitWeight, zero.FitWeight)
	assert.Equal(t, def.Fit, zero.Fit)
	assert.Equal(t, def.Thresholds, zero.Thresholds, "阈值缺失时回退默认阈值")
}
