package matching

import (
	"math"
	"time"
)

// gateInputs 闸门评估产生的中间量，供约束评分和可解释性层复用
// 可解释性层只消费这里已算出的数值，不自行重新推导。
type gateInputs struct {
	candidateSalary float64 // 候选人薪资的单一代表值，0 表示未知
	salaryGapPct    float64 // 期望超出岗位薪资上限的百分比，仅在双方薪资已知时有效
	salaryKnown     bool    // 候选人和岗位薪资是否都已知

	commuteExempt bool // 远程岗位或候选人接受远程，通勤不构成约束

	daysUntil      int  // 距最早可入职日期的天数（向上取整）
	availabilityOK bool // 是否给出了可入职日期
}

// salaryFigure 从候选人的期望薪资字段中取出单一代表值
// 点值优先；否则取已知区间的中点；只有单边时取该边；全部未知返回 0。
func salaryFigure(c CandidateProfile) float64 {
	switch {
	case c.ExpectedSalary > 0:
		return c.ExpectedSalary
	case c.ExpectedSalaryMin > 0 && c.ExpectedSalaryMax > 0:
		return (c.ExpectedSalaryMin + c.ExpectedSalaryMax) / 2
	case c.ExpectedSalaryMax > 0:
		return c.ExpectedSalaryMax
	case c.ExpectedSalaryMin > 0:
		return c.ExpectedSalaryMin
	}
	return 0
}

// daysUntilDate 计算从 now 到 target 的日历天数差，向上取整
func daysUntilDate(now time.Time, target time.Time) int {
	diff := target.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}

// evaluateGates 计算四个独立闸门和聚合闸门
// 信息缺失一律判 pass：没有证据就没有惩罚。
func evaluateGates(c CandidateProfile, j JobPosting, th Thresholds, now time.Time) (Gates, gateInputs) {
	var g Gates
	var in gateInputs

	// 1. 薪资闸门
	g.Salary = GatePass
	in.candidateSalary = salaryFigure(c)
	if in.candidateSalary > 0 && j.SalaryMax > 0 {
		in.salaryKnown = true
		in.salaryGapPct = (in.candidateSalary - j.SalaryMax) / j.SalaryMax * 100
		if in.salaryGapPct > th.SalaryFailPercent {
			g.Salary = GateFail
		} else if in.salaryGapPct > th.SalaryWarnPercent {
			g.Salary = GateWarn
		}
	}

	// 2. 通勤闸门
	// 远程岗位或候选人接受远程时直接通过。
	// 通勤容忍度低于 20 分钟按"住得很近"解读，判 pass 而非 warn——
	// 该不对称行为来自既有策略，保持原样，不做"修正"。
	g.Commute = GatePass
	in.commuteExempt = j.RemoteType == RemoteTypeRemote || c.RemotePreferred
	if !in.commuteExempt && c.MaxCommuteMinutes > 0 {
		if c.MaxCommuteMinutes < 20 {
			g.Commute = GatePass
		} else if c.MaxCommuteMinutes < th.CommuteWarnMinutes {
			g.Commute = GateWarn
		}
	}

	// 3. 工作许可闸门
	g.WorkAuth = GatePass
	if c.NeedsSponsorship && !j.VisaSponsorship {
		g.WorkAuth = GateFail
	}

	// 4. 可入职时间闸门
	g.Availability = GatePass
	if c.AvailableFrom != nil {
		in.availabilityOK = true
		in.daysUntil = daysUntilDate(now, *c.AvailableFrom)
		if in.daysUntil > th.AvailabilityFailDays {
			g.Availability = GateFail
		} else if in.daysUntil > th.AvailabilityWarnDays {
			g.Availability = GateWarn
		}
	}

	// 聚合：薪资/工作许可/可入职时间任一 fail 则 fail；
	// 否则薪资/通勤/可入职时间任一 warn 则 warn；否则 pass。
	switch {
	case g.Salary == GateFail || g.WorkAuth == GateFail || g.Availability == GateFail:
		g.OverallGate = GateFail
	case g.Salary == GateWarn || g.Commute == GateWarn || g.Availability == GateWarn:
		g.OverallGate = GateWarn
	default:
		g.OverallGate = GatePass
	}

	return g, in
}
