package matching

import (
	"fmt"
	"strings"
)

// 可解释性输出的条数上限
const (
	maxTopReasons   = 3
	maxTopRisks     = 2
	maxListedSkills = 3
)

// buildExplainability 从已计算出的结果派生理由/风险/建议动作
// 这是一个独立的派生层：只读取数值核心的产出，不重新推导任何分数，
// 因此可以单独测试或替换（例如做本地化）。
func buildExplainability(r *Result, in gateInputs) Explainability {
	ex := Explainability{
		TopReasons: []string{},
		TopRisks:   []string{},
	}

	// 理由，按优先级：技能命中 > 经验匹配 > 薪资在预算内 > 可快速入职
	skills := r.FitFactors.Skills
	if n := len(skills.Matched); n > 0 {
		total := n + len(skills.Transferable) + len(skills.Missing)
		ex.TopReasons = append(ex.TopReasons, fmt.Sprintf(
			"Matched %d of %d required skills: %s", n, total, listSkills(skills.Matched)))
	}
	if r.FitFactors.Experience.LevelMatch {
		ex.TopReasons = append(ex.TopReasons, "Experience level matches the role requirements")
	}
	if in.salaryKnown && in.salaryGapPct <= 0 {
		ex.TopReasons = append(ex.TopReasons, "Salary expectation is within the job's budget")
	}
	if in.availabilityOK && in.daysUntil <= 14 {
		ex.TopReasons = append(ex.TopReasons, "Available to start within two weeks")
	}
	if len(ex.TopReasons) > maxTopReasons {
		ex.TopReasons = ex.TopReasons[:maxTopReasons]
	}

	// 风险，按优先级：缺失技能 > 薪资差距 > 入职时间 > 通勤
	if len(skills.Missing) > 0 {
		ex.TopRisks = append(ex.TopRisks, fmt.Sprintf(
			"Missing required skills: %s", listSkills(skills.Missing)))
	}
	if r.Gates.Salary == GateWarn || r.Gates.Salary == GateFail {
		ex.TopRisks = append(ex.TopRisks, fmt.Sprintf(
			"Salary expectation exceeds the budget by %.1f%%", in.salaryGapPct))
	}
	if r.Gates.Availability == GateWarn {
		ex.TopRisks = append(ex.TopRisks, fmt.Sprintf(
			"Earliest start date is %d days out", in.daysUntil))
	}
	if r.Gates.Commute == GateWarn {
		ex.TopRisks = append(ex.TopRisks, "Commute tolerance may not cover the onsite requirement")
	}
	if len(ex.TopRisks) > maxTopRisks {
		ex.TopRisks = ex.TopRisks[:maxTopRisks]
	}

	// 建议动作：fail 时挑选最具体的失败维度并附带 why-not 说明
	switch r.Gates.OverallGate {
	case GateFail:
		switch {
		case r.Gates.Salary == GateFail:
			ex.NextAction = "clarify salary flexibility"
			ex.WhyNot = "salary expectation exceeds the job's budget beyond the acceptable threshold"
		case r.Gates.WorkAuth == GateFail:
			ex.NextAction = "clarify sponsorship"
			ex.WhyNot = "candidate requires visa sponsorship the job does not offer"
		case r.Gates.Availability == GateFail:
			ex.NextAction = "discuss start date"
			ex.WhyNot = "candidate's earliest availability is too far out"
		}
	case GateWarn:
		ex.NextAction = "contact candidate for clarification"
	default:
		ex.NextAction = "invite candidate to interview"
	}

	return ex
}

// listSkills 最多列出前 maxListedSkills 个技能名
func listSkills(skills []string) string {
	if len(skills) <= maxListedSkills {
		return strings.Join(skills, ", ")
	}
	return strings.Join(skills[:maxListedSkills], ", ")
}
