package matching

import "math"

// 成单概率的上下界：引擎在任何方向上都不宣称确定性
const (
	dealProbabilityFloor = 5
	dealProbabilityCeil  = 95
)

// mustHaveMissingCount 统计缺失技能中属于"必备"范畴的数量
// 岗位未声明必备子集时，所有必需技能都视为必备。
func mustHaveMissingCount(missing []string, j JobPosting) int {
	if len(missing) == 0 {
		return 0
	}
	if len(j.MustHaveSkills) == 0 {
		return len(missing)
	}

	mustHave := make([]string, 0, len(j.MustHaveSkills))
	for _, s := range j.MustHaveSkills {
		if ns := normalizeSkill(s); ns != "" {
			mustHave = append(mustHave, ns)
		}
	}

	count := 0
	for _, m := range missing {
		for _, mh := range mustHave {
			if skillMatches(m, mh) {
				count++
				break
			}
		}
	}
	return count
}

// estimateDealProbability 从整体匹配度推导成单概率
// 以整体匹配百分比为基数，按固定顺序应用各条件乘数：
// 聚合闸门 fail ×0.3 / warn ×0.7（两者互斥），技能 ≥80 ×1.1，
// 薪资可协商 ×1.05，缺失必备技能 >2 个 ×0.8；最终钳制到 [5,95]。
func estimateDealProbability(r *Result, j JobPosting) int {
	p := float64(r.OverallMatch)

	switch r.Gates.OverallGate {
	case GateFail:
		p *= 0.3
	case GateWarn:
		p *= 0.7
	}

	if r.FitFactors.Skills.Score >= 80 {
		p *= 1.1
	}

	if r.ConstraintFactors.Salary.Negotiable {
		p *= 1.05
	}

	if mustHaveMissingCount(r.FitFactors.Skills.Missing, j) > 2 {
		p *= 0.8
	}

	if p < dealProbabilityFloor {
		p = dealProbabilityFloor
	}
	if p > dealProbabilityCeil {
		p = dealProbabilityCeil
	}
	return int(math.Round(p))
}
