package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// MatchModulePrefix 匹配模块
	MatchModulePrefix = "match"
	// ConfigModulePrefix 配置模块
	ConfigModulePrefix = "config"
	// TaxonomyModulePrefix 技能迁移模块
	TaxonomyModulePrefix = "taxonomy"

	// EntityResult 匹配结果实体
	EntityResult = "result"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityActive 激活配置实体
	EntityActive = "active"
	// EntityIndex 迁移索引实体
	EntityIndex = "index"

	// KeyMatchResult 匹配结果缓存 (STRING, JSON)
	// 格式: app:match:result:{engineVersion}:{candidateID}:{jobID}
	KeyMatchResult = AppPrefix + ":" + MatchModulePrefix + ":" + EntityResult + ":%s:%s:%s"

	// KeyRecomputeLock 岗位批量重算分布式锁 (STRING)
	// 格式: app:match:lock:{jobID}
	KeyRecomputeLock = AppPrefix + ":" + MatchModulePrefix + ":" + EntityLock + ":%s"

	// KeyActiveMatchingConfig 激活的引擎配置缓存 (STRING, JSON)
	// 格式: app:config:active
	KeyActiveMatchingConfig = AppPrefix + ":" + ConfigModulePrefix + ":" + EntityActive

	// KeySkillTaxonomy 技能迁移索引缓存 (STRING, JSON)
	// 格式: app:taxonomy:index
	KeySkillTaxonomy = AppPrefix + ":" + TaxonomyModulePrefix + ":" + EntityIndex
)
