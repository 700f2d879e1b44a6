package matching

import "math"

// transferableCredit 可迁移技能相对直接匹配技能的折算系数
const transferableCredit = 0.7

// scoreSkills 技能子项评分
// 对每个必需技能：任一候选人技能与其双向子串匹配即为直接命中；
// 否则查迁移索引，候选人技能命中迁移来源时记为可迁移；否则记为缺失。
// 得分 = round(((直接 + 0.7×可迁移) / max(1, 必需技能数)) × 100)。
func scoreSkills(c CandidateProfile, j JobPosting, tax *TaxonomyIndex) SkillsFactor {
	candSkills := make([]string, 0, len(c.Skills))
	for _, s := range c.Skills {
		if ns := normalizeSkill(s); ns != "" {
			candSkills = append(candSkills, ns)
		}
	}

	f := SkillsFactor{
		Matched:      []string{},
		Missing:      []string{},
		Transferable: []string{},
	}

	jobSkillCount := 0
	for _, raw := range j.RequiredSkills {
		required := normalizeSkill(raw)
		if required == "" {
			continue
		}
		jobSkillCount++

		if anySkillMatches(candSkills, required) {
			f.Matched = append(f.Matched, required)
			continue
		}

		if transferred(candSkills, required, tax) {
			f.Transferable = append(f.Transferable, required)
			continue
		}

		f.Missing = append(f.Missing, required)
	}

	denom := jobSkillCount
	if denom < 1 {
		denom = 1
	}
	raw := (float64(len(f.Matched)) + transferableCredit*float64(len(f.Transferable))) / float64(denom) * 100
	f.Score = clampScore(int(math.Round(raw)))
	return f
}

// anySkillMatches 候选人技能列表中是否存在与 required 双向子串匹配的技能
func anySkillMatches(candSkills []string, required string) bool {
	for _, s := range candSkills {
		if skillMatches(s, required) {
			return true
		}
	}
	return false
}

// transferred 候选人技能是否命中 required 的迁移来源
func transferred(candSkills []string, required string, tax *TaxonomyIndex) bool {
	sources := tax.TransfersFrom(required)
	if len(sources) == 0 {
		return false
	}
	for _, src := range sources {
		if anySkillMatches(candSkills, src) {
			return true
		}
	}
	return false
}

// scoreExperience 经验子项评分
// 低于岗位最低年限：每差 1 年扣 15 分；超出最高年限 5 年以上：过度胜任记 70 分；
// 区间内记满分。岗位未给出经验区间时按中性满分处理。
func scoreExperience(c CandidateProfile, j JobPosting) ExperienceFactor {
	// 区间未知 ⇒ 不惩罚
	if j.ExperienceMin <= 0 && j.ExperienceMax <= 0 {
		return ExperienceFactor{Score: 100, LevelMatch: true}
	}

	y := c.YearsExperience
	if y < j.ExperienceMin {
		gap := j.ExperienceMin - y
		score := 100 - gap*15
		if score < 0 {
			score = 0
		}
		return ExperienceFactor{
			Score:      clampScore(int(math.Round(score))),
			LevelMatch: false,
			GapYears:   gap,
		}
	}

	if j.ExperienceMax > 0 && y > j.ExperienceMax+5 {
		// 过度胜任惩罚
		return ExperienceFactor{Score: 70, LevelMatch: false}
	}

	return ExperienceFactor{Score: 100, LevelMatch: true}
}

// scoreIndustry 行业子项评分
// 基础分 50：行业契合度未知不归零。任一候选人行业标签与岗位行业双向子串匹配记 100。
func scoreIndustry(c CandidateProfile, j JobPosting) IndustryFactor {
	f := IndustryFactor{Score: 50}
	jobIndustry := normalizeSkill(j.Industry)
	if jobIndustry == "" {
		return f
	}
	for _, tag := range c.Industries {
		nt := normalizeSkill(tag)
		if skillMatches(nt, jobIndustry) {
			f.Score = 100
			f.MatchedIndustry = nt
			return f
		}
	}
	return f
}

// composeFit 按配置权重合成契合度总分
func composeFit(f FitFactors, w FitWeights) int {
	sum := float64(f.Skills.Score)*w.Skills +
		float64(f.Experience.Score)*w.Experience +
		float64(f.Industry.Score)*w.Industry
	return clampScore(int(math.Round(sum)))
}

// clampScore 将分数钳制到 [0,100]
func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
