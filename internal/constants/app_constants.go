package constants

import "time"

const (
	// 匹配结果与引擎配置的缓存时长
	MatchResultCacheDuration   = time.Hour
	ActiveConfigCacheDuration  = 10 * time.Minute
	SkillTaxonomyCacheDuration = 30 * time.Minute

	// RecomputeLockDuration 批量重算分布式锁的持有时长
	RecomputeLockDuration = 5 * time.Minute
)
