package matching

import "math"

// negotiableGapPercent 薪资差距不超过该百分比时标记为"可协商"
const negotiableGapPercent = 20

// scoreSalaryConstraint 薪资约束子项评分
// 期望不超过岗位上限记满分；超出部分按 gap%×2 扣分；差距 ≤20% 标记可协商。
// 任一方薪资未知按中性满分处理。
func scoreSalaryConstraint(in gateInputs) SalaryConstraint {
	if !in.salaryKnown || in.salaryGapPct <= 0 {
		return SalaryConstraint{Score: 100}
	}

	score := 100 - in.salaryGapPct*2
	if score < 0 {
		score = 0
	}
	return SalaryConstraint{
		Score:      clampScore(int(math.Round(score))),
		Negotiable: in.salaryGapPct <= negotiableGapPercent,
		GapPercent: in.salaryGapPct,
	}
}

// scoreCommuteConstraint 通勤约束子项评分
// 远程豁免记满分；否则直接以候选人的通勤容忍分钟数作为代理量：
// 超过 fail 阈值记 40，超过 warn 阈值记 70，否则满分。
func scoreCommuteConstraint(c CandidateProfile, in gateInputs, th Thresholds) CommuteConstraint {
	if in.commuteExempt || c.MaxCommuteMinutes <= 0 {
		return CommuteConstraint{Score: 100}
	}

	switch {
	case c.MaxCommuteMinutes > th.CommuteFailMinutes:
		return CommuteConstraint{Score: 40}
	case c.MaxCommuteMinutes > th.CommuteWarnMinutes:
		return CommuteConstraint{Score: 70}
	}
	return CommuteConstraint{Score: 100}
}

// scoreStartDateConstraint 入职时间约束子项评分
// 未给出日期或 14 天内可入职记满分；超过 fail 阈值记 30，超过 warn 阈值记 60；
// 其余情况按 max(60, 100 − 0.5×天数) 计。
func scoreStartDateConstraint(in gateInputs, th Thresholds) StartDateConstraint {
	if !in.availabilityOK {
		return StartDateConstraint{Score: 100}
	}

	f := StartDateConstraint{DaysUntil: in.daysUntil}
	switch {
	case in.daysUntil <= 14:
		f.Score = 100
	case in.daysUntil > th.AvailabilityFailDays:
		f.Score = 30
	case in.daysUntil > th.AvailabilityWarnDays:
		f.Score = 60
	default:
		score := 100 - 0.5*float64(in.daysUntil)
		if score < 60 {
			score = 60
		}
		f.Score = clampScore(int(math.Round(score)))
	}
	return f
}

// composeConstraint 按配置权重合成约束总分
func composeConstraint(f ConstraintFactors, w ConstraintWeights) int {
	sum := float64(f.Salary.Score)*w.Salary +
		float64(f.Commute.Score)*w.Commute +
		float64(f.StartDate.Score)*w.StartDate
	return clampScore(int(math.Round(sum)))
}
