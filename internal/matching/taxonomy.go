package matching

import "strings"

// TransferEntry 技能迁移词条：一个标准技能以及它可以由哪些技能迁移而来（有方向）
type TransferEntry struct {
	Skill         string   `json:"skill"`
	TransfersFrom []string `json:"transfersFrom"`
}

// TaxonomyIndex 技能迁移索引
// 以小写规范化后的技能名为键，查询某个必需技能可被哪些来源技能部分替代。
type TaxonomyIndex struct {
	transfers map[string][]string
}

// NewTaxonomyIndex 根据词条列表构建索引
func NewTaxonomyIndex(entries []TransferEntry) *TaxonomyIndex {
	idx := &TaxonomyIndex{transfers: make(map[string][]string, len(entries))}
	for _, e := range entries {
		key := normalizeSkill(e.Skill)
		if key == "" || len(e.TransfersFrom) == 0 {
			continue
		}
		sources := make([]string, 0, len(e.TransfersFrom))
		for _, s := range e.TransfersFrom {
			if ns := normalizeSkill(s); ns != "" {
				sources = append(sources, ns)
			}
		}
		if len(sources) > 0 {
			idx.transfers[key] = sources
		}
	}
	return idx
}

// TransfersFrom 返回指定技能的迁移来源集合，无词条时返回 nil
func (x *TaxonomyIndex) TransfersFrom(skill string) []string {
	if x == nil || x.transfers == nil {
		return nil
	}
	return x.transfers[normalizeSkill(skill)]
}

// Len 返回索引中的词条数量
func (x *TaxonomyIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.transfers)
}

// normalizeSkill 技能名规范化：小写并去除首尾空白
func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// skillMatches 判断两个规范化后的技能名是否匹配（双向子串）
func skillMatches(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
