package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"talent-match-go/internal/matching"
)

// Candidate 候选人主表
// 画像字段（技能、行业等多值字段）以JSON列存储，读取时解码为匹配引擎的输入结构。
type Candidate struct {
	CandidateID       string         `gorm:"type:char(36);primaryKey"`
	PrimaryName       string         `gorm:"type:varchar(255)"`
	PrimaryPhone      string         `gorm:"type:varchar(50);uniqueIndex:idx_candidates_primary_phone_unique"`
	PrimaryEmail      string         `gorm:"type:varchar(255);uniqueIndex:idx_candidates_primary_email_unique"`
	CurrentLocation   string         `gorm:"type:varchar(255)"`
	SkillsJSON        datatypes.JSON `gorm:"type:json"`
	IndustriesJSON    datatypes.JSON `gorm:"type:json"`
	YearsExperience   float64        `gorm:"type:decimal(4,1);default:0"`
	ExpectedSalary    float64        `gorm:"type:decimal(12,2);default:0"`
	ExpectedSalaryMin float64        `gorm:"type:decimal(12,2);default:0"`
	ExpectedSalaryMax float64        `gorm:"type:decimal(12,2);default:0"`
	MaxCommuteMinutes int            `gorm:"default:0"`
	RemotePreferred   bool           `gorm:"default:false"`
	NeedsSponsorship  bool           `gorm:"default:false"`
	AvailableFrom     *time.Time     `gorm:"type:datetime(6)"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// ToProfile 解码JSON列，转换为匹配引擎的候选人输入
func (c *Candidate) ToProfile() matching.CandidateProfile {
	return matching.CandidateProfile{
		ID:                c.CandidateID,
		Skills:            decodeStringList(c.SkillsJSON),
		YearsExperience:   c.YearsExperience,
		Industries:        decodeStringList(c.IndustriesJSON),
		ExpectedSalary:    c.ExpectedSalary,
		ExpectedSalaryMin: c.ExpectedSalaryMin,
		ExpectedSalaryMax: c.ExpectedSalaryMax,
		MaxCommuteMinutes: c.MaxCommuteMinutes,
		RemotePreferred:   c.RemotePreferred,
		NeedsSponsorship:  c.NeedsSponsorship,
		AvailableFrom:     c.AvailableFrom,
	}
}

// Job 岗位信息表
type Job struct {
	JobID                string         `gorm:"type:char(36);primaryKey"`
	JobTitle             string         `gorm:"type:varchar(255);not null"`
	Department           string         `gorm:"type:varchar(255)"`
	Location             string         `gorm:"type:varchar(255)"`
	RequiredSkillsJSON   datatypes.JSON `gorm:"type:json"`
	NiceToHaveSkillsJSON datatypes.JSON `gorm:"type:json"`
	MustHaveSkillsJSON   datatypes.JSON `gorm:"type:json"`
	SalaryMin            float64        `gorm:"type:decimal(12,2);default:0"`
	SalaryMax            float64        `gorm:"type:decimal(12,2);default:0"`
	ExperienceMin        float64        `gorm:"type:decimal(4,1);default:0"`
	ExperienceMax        float64        `gorm:"type:decimal(4,1);default:0"`
	Industry             string         `gorm:"type:varchar(255)"`
	RemoteType           string         `gorm:"type:varchar(20);default:'onsite'"`
	VisaSponsorship      bool           `gorm:"default:false"`
	Status               string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedByUserID      string         `gorm:"type:char(36)"`
	CreatedAt            time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt            time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// ToPosting 解码JSON列，转换为匹配引擎的岗位输入
func (j *Job) ToPosting() matching.JobPosting {
	return matching.JobPosting{
		ID:               j.JobID,
		RequiredSkills:   decodeStringList(j.RequiredSkillsJSON),
		NiceToHaveSkills: decodeStringList(j.NiceToHaveSkillsJSON),
		MustHaveSkills:   decodeStringList(j.MustHaveSkillsJSON),
		SalaryMin:        j.SalaryMin,
		SalaryMax:        j.SalaryMax,
		ExperienceMin:    j.ExperienceMin,
		ExperienceMax:    j.ExperienceMax,
		Industry:         j.Industry,
		RemoteType:       j.RemoteType,
		VisaSponsorship:  j.VisaSponsorship,
	}
}

// SkillTransfer 技能迁移词条表
// 每行描述一个标准技能可以由哪些来源技能部分替代
type SkillTransfer struct {
	TransferID        uint64         `gorm:"primaryKey;autoIncrement"`
	Skill             string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_skill_transfers_skill"`
	TransfersFromJSON datatypes.JSON `gorm:"type:json;not null"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (SkillTransfer) TableName() string {
	return "skill_transfers"
}

// ToEntry 转换为迁移索引词条
func (s *SkillTransfer) ToEntry() matching.TransferEntry {
	return matching.TransferEntry{
		Skill:         s.Skill,
		TransfersFrom: decodeStringList(s.TransfersFromJSON),
	}
}

// MatchingConfig 引擎配置表
// 同一时刻至多一行 IsActive=true；引擎本身不读此表，由调用方解析后显式传入。
type MatchingConfig struct {
	ConfigID    uint64         `gorm:"primaryKey;autoIncrement"`
	Name        string         `gorm:"type:varchar(255);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`
	IsActive    bool           `gorm:"default:false;index:idx_matching_configs_is_active"`
	Version     int            `gorm:"default:1"`
	CreatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (MatchingConfig) TableName() string {
	return "matching_configs"
}

// ToEngineConfig 解码配置载荷；解码失败时返回内置默认配置
func (m *MatchingConfig) ToEngineConfig() matching.Config {
	var cfg matching.Config
	if err := json.Unmarshal(m.PayloadJSON, &cfg); err != nil {
		return matching.DefaultConfig()
	}
	return cfg
}

// Submission 投递表：候选人对岗位的一次投递
type Submission struct {
	SubmissionUUID      string    `gorm:"type:char(36);primaryKey"`
	CandidateID         *string   `gorm:"type:char(36);index:idx_submissions_candidate_id"`
	JobID               *string   `gorm:"type:char(36);index:idx_submissions_job_id"`
	SubmissionTimestamp time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_submissions_timestamp"`
	SourceChannel       string    `gorm:"type:varchar(100)"`
	Status              string    `gorm:"type:varchar(50);default:'ACTIVE';index:idx_submissions_status"`
	CreatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Job       *Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (Submission) TableName() string {
	return "submissions"
}

// CandidateJobMatch 候选人-岗位匹配评估表
// (candidate_id, job_id, engine_version) 唯一，重复评估通过幂等upsert覆盖。
type CandidateJobMatch struct {
	MatchID         uint64         `gorm:"primaryKey;autoIncrement"`
	CandidateID     string         `gorm:"type:char(36);not null;index:idx_cjm_candidate_id;uniqueIndex:idx_cjm_candidate_job_version,priority:1"`
	JobID           string         `gorm:"type:char(36);not null;index:idx_cjm_job_id_overall,priority:1;uniqueIndex:idx_cjm_candidate_job_version,priority:2"`
	EngineVersion   string         `gorm:"type:varchar(20);not null;uniqueIndex:idx_cjm_candidate_job_version,priority:3"`
	OverallGate     string         `gorm:"type:varchar(10);not null"`
	FitScore        int            `gorm:"not null"`
	ConstraintScore int            `gorm:"not null"`
	OverallMatch    int            `gorm:"not null;index:idx_cjm_job_id_overall,priority:2"`
	DealProbability int            `gorm:"not null"`
	ResultJSON      datatypes.JSON `gorm:"type:json;not null"`
	EvaluatedAt     time.Time      `gorm:"type:datetime(6);not null"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Job       *Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (CandidateJobMatch) TableName() string {
	return "candidate_job_matches"
}

// MatchOutcome 校准日志表，按投递维度记录预测快照与最终成交结果
// 每个投递至多一行：评估时写入预测快照（幂等覆盖），成交结果后续回流补齐。
type MatchOutcome struct {
	OutcomeID      uint64 `gorm:"primaryKey;autoIncrement"`
	SubmissionUUID string `gorm:"type:char(36);not null;uniqueIndex:idx_match_outcomes_submission"`
	CandidateID    string `gorm:"type:char(36);not null;index:idx_match_outcomes_candidate_id"`
	JobID          string `gorm:"type:char(36);not null;index:idx_match_outcomes_job_id"`
	EngineVersion  string `gorm:"type:varchar(20);not null"`

	// 评估时刻的预测快照
	PredictedFitScore        int            `gorm:"not null;default:0"`
	PredictedConstraintScore int            `gorm:"not null;default:0"`
	PredictedOverallMatch    int            `gorm:"not null;default:0"`
	PredictedProbability     int            `gorm:"not null;default:0"`
	GatesJSON                datatypes.JSON `gorm:"type:json"`
	EvaluatedAt              *time.Time     `gorm:"type:datetime(6)"`

	// 后续回流的真实结果，未回流时为空
	Outcome   string     `gorm:"type:varchar(50);not null;default:''"` // hired / rejected / withdrawn / offer_declined
	Notes     string     `gorm:"type:text"`
	OutcomeAt *time.Time `gorm:"type:datetime(6)"`

	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (MatchOutcome) TableName() string {
	return "match_outcomes"
}

// decodeStringList 解码JSON字符串数组列，解码失败返回nil
func decodeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// StringToJSON Helper function to convert string to datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// StringListToJSON Helper function to convert []string to datatypes.JSON
func StringListToJSON(list []string) (datatypes.JSON, error) {
	bytes, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
