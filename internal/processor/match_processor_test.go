package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/matching"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockMatchStore 模拟数据库存储
type MockMatchStore struct {
	candidates map[string]*models.Candidate
	jobs       map[string]*models.Job
	transfers  []models.SkillTransfer
	activeCfg  *models.MatchingConfig

	savedMatches      []*models.CandidateJobMatch
	savedEvents       []*models.OutboxMessage
	savedCalibrations []*models.MatchOutcome
	matches           map[string]*models.CandidateJobMatch // key: candidateID/jobID
	submissions       map[string]*models.Submission
	activeSubs        map[string][]models.Submission // key: jobID

	saveErr error
}

func newMockMatchStore() *MockMatchStore {
	return &MockMatchStore{
		candidates:  make(map[string]*models.Candidate),
		jobs:        make(map[string]*models.Job),
		matches:     make(map[string]*models.CandidateJobMatch),
		submissions: make(map[string]*models.Submission),
		activeSubs:  make(map[string][]models.Submission),
	}
}

func (m *MockMatchStore) GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	c, ok := m.candidates[candidateID]
	if !ok {
		return nil, fmt.Errorf("候选人 %s: %w", candidateID, storage.ErrNotFound)
	}
	return c, nil
}

func (m *MockMatchStore) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("岗位 %s: %w", jobID, storage.ErrNotFound)
	}
	return j, nil
}

func (m *MockMatchStore) ListSkillTransfers(ctx context.Context) ([]models.SkillTransfer, error) {
	return m.transfers, nil
}

func (m *MockMatchStore) GetActiveMatchingConfig(ctx context.Context) (*models.MatchingConfig, error) {
	if m.activeCfg == nil {
		return nil, fmt.Errorf("激活配置: %w", storage.ErrNotFound)
	}
	return m.activeCfg, nil
}

func (m *MockMatchStore) SaveMatchResult(ctx context.Context, match *models.CandidateJobMatch, calibration *models.MatchOutcome, event *models.OutboxMessage) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.savedMatches = append(m.savedMatches, match)
	if calibration != nil {
		m.savedCalibrations = append(m.savedCalibrations, calibration)
	}
	if event != nil {
		m.savedEvents = append(m.savedEvents, event)
	}
	m.matches[match.CandidateID+"/"+match.JobID] = match
	return nil
}

func (m *MockMatchStore) GetMatchByCandidateJob(ctx context.Context, candidateID, jobID, engineVersion string) (*models.CandidateJobMatch, error) {
	match, ok := m.matches[candidateID+"/"+jobID]
	if !ok || match.EngineVersion != engineVersion {
		return nil, fmt.Errorf("匹配结果 %s/%s: %w", candidateID, jobID, storage.ErrNotFound)
	}
	return match, nil
}

func (m *MockMatchStore) GetSubmissionByUUID(ctx context.Context, submissionUUID string) (*models.Submission, error) {
	s, ok := m.submissions[submissionUUID]
	if !ok {
		return nil, fmt.Errorf("投递 %s: %w", submissionUUID, storage.ErrNotFound)
	}
	return s, nil
}

func (m *MockMatchStore) ListActiveSubmissionsByJob(ctx context.Context, jobID string) ([]models.Submission, error) {
	return m.activeSubs[jobID], nil
}

// MockResultCache 模拟缓存层
type MockResultCache struct {
	results  map[string]string
	cfg      string
	taxonomy string
	getErr   error
}

func newMockResultCache() *MockResultCache {
	return &MockResultCache{results: make(map[string]string)}
}

func (m *MockResultCache) CacheMatchResult(ctx context.Context, engineVersion, candidateID, jobID string, resultJSON string) error {
	m.results[engineVersion+":"+candidateID+":"+jobID] = resultJSON
	return nil
}

func (m *MockResultCache) GetCachedMatchResult(ctx context.Context, engineVersion, candidateID, jobID string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.results[engineVersion+":"+candidateID+":"+jobID]
	if !ok {
		return "", fmt.Errorf("缓存未命中: %w", storage.ErrNotFound)
	}
	return v, nil
}

func (m *MockResultCache) CacheActiveConfig(ctx context.Context, payloadJSON string) error {
	m.cfg = payloadJSON
	return nil
}

func (m *MockResultCache) GetCachedActiveConfig(ctx context.Context) (string, error) {
	if m.cfg == "" {
		return "", fmt.Errorf("缓存未命中: %w", storage.ErrNotFound)
	}
	return m.cfg, nil
}

func (m *MockResultCache) CacheSkillTaxonomy(ctx context.Context, entriesJSON string) error {
	m.taxonomy = entriesJSON
	return nil
}

func (m *MockResultCache) GetCachedSkillTaxonomy(ctx context.Context) (string, error) {
	if m.taxonomy == "" {
		return "", fmt.Errorf("缓存未命中: %w", storage.ErrNotFound)
	}
	return m.taxonomy, nil
}

// MockArchiver 模拟审计归档
type MockArchiver struct {
	archived map[string][]byte
	err      error
}

func (m *MockArchiver) ArchiveMatchResult(ctx context.Context, engineVersion, candidateID, jobID string, resultJSON []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.archived == nil {
		m.archived = make(map[string][]byte)
	}
	key := fmt.Sprintf("matches/%s/%s/%s.json", engineVersion, candidateID, jobID)
	m.archived[key] = resultJSON
	return key, nil
}

// MockPublisher 模拟消息发布器
type MockPublisher struct {
	published []interface{}
	err       error
}

func (m *MockPublisher) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, data)
	return nil
}

func mustListJSON(t *testing.T, list []string) []byte {
	t.Helper()
	data, err := models.StringListToJSON(list)
	require.NoError(t, err, "构造JSON列表失败")
	return data
}

func testCandidate(t *testing.T) *models.Candidate {
	available := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	return &models.Candidate{
		CandidateID:     "cand-001",
		PrimaryName:     "Test Candidate",
		SkillsJSON:      mustListJSON(t, []string{"Go", "MySQL", "Kubernetes"}),
		YearsExperience: 5,
		ExpectedSalary:  70000,
		AvailableFrom:   &available,
	}
}

func testJob(t *testing.T) *models.Job {
	return &models.Job{
		JobID:              "job-001",
		JobTitle:           "Backend Engineer",
		RequiredSkillsJSON: mustListJSON(t, []string{"Go", "MySQL"}),
		SalaryMin:          60000,
		SalaryMax:          80000,
		ExperienceMin:      3,
		ExperienceMax:      8,
		RemoteType:         "remote",
		VisaSponsorship:    true,
		Status:             "OPEN",
	}
}

func testProcessor(t *testing.T, store *MockMatchStore, cache *MockResultCache, archiver *MockArchiver, pub *MockPublisher) *MatchProcessor {
	t.Helper()
	comp := &Components{Store: store}
	if cache != nil {
		comp.Cache = cache
	}
	if archiver != nil {
		comp.Archiver = archiver
	}
	if pub != nil {
		comp.Publisher = pub
	}
	p, err := NewMatchProcessor(comp, &Settings{
		RabbitMQ: &config.RabbitMQConfig{
			MatchEventsExchange:      "match.events.exchange",
			MatchNeededRoutingKey:    "match.needed",
			MatchCompletedRoutingKey: "match.completed",
		},
		Logger: log.New(io.Discard, "", 0),
		Clock: func() time.Time {
			return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		},
	})
	require.NoError(t, err, "创建MatchProcessor失败")
	return p
}

func TestEvaluatePairPersistsResultAndEvent(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)
	cache := newMockResultCache()
	archiver := &MockArchiver{}

	p := testProcessor(t, store, cache, archiver, nil)

	result, err := p.EvaluatePair(context.Background(), "cand-001", "job-001", "", storage.TriggerCandidateUpdated)
	require.NoError(t, err, "评估应该成功")
	require.NotNil(t, result)

	assert.Equal(t, matching.EngineVersion, result.Version, "结果应携带引擎版本")
	assert.Equal(t, matching.GatePass, result.Gates.OverallGate, "该组合应通过所有闸门")

	// 结果与事件在同一事务写入
	require.Len(t, store.savedMatches, 1, "应写入1条匹配结果")
	saved := store.savedMatches[0]
	assert.Equal(t, result.OverallMatch, saved.OverallMatch)
	assert.Equal(t, result.DealProbability, saved.DealProbability)
	assert.Equal(t, string(result.Gates.OverallGate), saved.OverallGate)

	require.Len(t, store.savedEvents, 1, "应写入1条outbox事件")
	event := store.savedEvents[0]
	assert.Equal(t, "match.completed", event.EventType)
	assert.Equal(t, "match.events.exchange", event.TargetExchange)
	assert.Equal(t, "match.completed", event.TargetRoutingKey)
	assert.NotEmpty(t, event.EventID, "事件应有唯一ID")

	var payload storage.MatchCompletedMessage
	require.NoError(t, json.Unmarshal([]byte(event.Payload), &payload), "事件负载应为合法JSON")
	assert.Equal(t, "cand-001", payload.CandidateID)
	assert.Equal(t, result.DealProbability, payload.DealProbability)

	// 缓存与归档为旁路写入
	cached, err := cache.GetCachedMatchResult(context.Background(), matching.EngineVersion, "cand-001", "job-001")
	require.NoError(t, err, "结果应进缓存")
	assert.NotEmpty(t, cached)
	assert.Len(t, archiver.archived, 1, "结果应被归档")
}

func TestEvaluatePairCandidateMissing(t *testing.T) {
	store := newMockMatchStore()
	store.jobs["job-001"] = testJob(t)

	p := testProcessor(t, store, nil, nil, nil)

	_, err := p.EvaluatePair(context.Background(), "ghost", "job-001", "", storage.TriggerRecompute)
	require.Error(t, err, "候选人不存在应返回错误")
	assert.ErrorIs(t, err, ErrLoadCandidateFailed, "应归类为加载候选人失败")
	assert.ErrorIs(t, err, storage.ErrNotFound, "底层原因应可被识别为未找到")
	assert.Empty(t, store.savedMatches, "不应写入任何结果")
}

func TestEvaluatePairArchiveFailureIsNonFatal(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)
	archiver := &MockArchiver{err: errors.New("minio unavailable")}

	p := testProcessor(t, store, nil, archiver, nil)

	result, err := p.EvaluatePair(context.Background(), "cand-001", "job-001", "", storage.TriggerJobUpdated)
	require.NoError(t, err, "归档失败不应影响评估结果")
	assert.NotNil(t, result)
	assert.Len(t, store.savedMatches, 1, "结果仍应落库")
}

func TestPreviewPairDoesNotPersist(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)
	cache := newMockResultCache()
	archiver := &MockArchiver{}

	p := testProcessor(t, store, cache, archiver, nil)

	result, err := p.PreviewPair(context.Background(), "cand-001", "job-001")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, matching.GatePass, result.Gates.OverallGate)
	assert.Empty(t, store.savedMatches, "预览不应落库")
	assert.Empty(t, store.savedEvents, "预览不应产生事件")
	assert.Empty(t, archiver.archived, "预览不应归档")
}

func TestEvaluatePairReturnsResultOnPersistFailure(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)
	store.saveErr = errors.New("mysql gone away")

	p := testProcessor(t, store, nil, nil, nil)

	result, err := p.EvaluatePair(context.Background(), "cand-001", "job-001", "", storage.TriggerCandidateUpdated)
	require.Error(t, err, "落库失败应返回错误供调用方决策")
	assert.ErrorIs(t, err, ErrPersistResultFailed, "应归类为持久化失败")
	assert.NotNil(t, result, "已算出的结果应随错误一并返回")
	assert.Equal(t, matching.EngineVersion, result.Version)
}

func TestEvaluatePairUsesActiveConfigFromStore(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)

	// 激活配置把契合度权重拉满，两种配置下结果应不同
	custom := matching.Config{
		FitWeight:        1.0,
		ConstraintWeight: 0.0,
	}
	payload, err := json.Marshal(custom)
	require.NoError(t, err)
	store.activeCfg = &models.MatchingConfig{
		ConfigID:    1,
		PayloadJSON: payload,
		IsActive:    true,
	}
	cache := newMockResultCache()

	p := testProcessor(t, store, cache, nil, nil)

	result, err := p.EvaluatePair(context.Background(), "cand-001", "job-001", "", storage.TriggerRecompute)
	require.NoError(t, err)
	assert.Equal(t, result.FitScore, result.OverallMatch, "权重全在契合度时综合分应等于契合度分")

	// 配置应被回填到缓存
	cachedCfg, err := cache.GetCachedActiveConfig(context.Background())
	require.NoError(t, err, "激活配置应进缓存")
	assert.JSONEq(t, string(payload), cachedCfg)
}

func TestGetMatchForSubmissionReadsStoredResult(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)
	candidateID, jobID := "cand-001", "job-001"
	store.submissions["sub-123"] = &models.Submission{
		SubmissionUUID: "sub-123",
		CandidateID:    &candidateID,
		JobID:          &jobID,
		Status:         "ACTIVE",
	}

	p := testProcessor(t, store, nil, nil, nil)

	// 第一次调用触发现场评估
	first, err := p.GetMatchForSubmission(context.Background(), "sub-123")
	require.NoError(t, err, "无存量结果时应现场评估")
	require.Len(t, store.savedMatches, 1)

	// 第二次调用直接返回存量结果，不再评估
	second, err := p.GetMatchForSubmission(context.Background(), "sub-123")
	require.NoError(t, err)
	assert.Equal(t, first.OverallMatch, second.OverallMatch)
	assert.Len(t, store.savedMatches, 1, "存量命中时不应重复评估")
}

func TestGetMatchForSubmissionUnknownSubmission(t *testing.T) {
	store := newMockMatchStore()
	p := testProcessor(t, store, nil, nil, nil)

	_, err := p.GetMatchForSubmission(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound, "未知投递应返回未找到")
}

func TestEnqueueJobRecompute(t *testing.T) {
	store := newMockMatchStore()
	candA, candB := "cand-a", "cand-b"
	store.activeSubs["job-001"] = []models.Submission{
		{SubmissionUUID: "sub-a", CandidateID: &candA, Status: "ACTIVE"},
		{SubmissionUUID: "sub-b", CandidateID: &candB, Status: "ACTIVE"},
		{SubmissionUUID: "sub-orphan", Status: "ACTIVE"}, // 缺候选人关联，跳过
	}
	pub := &MockPublisher{}

	p := testProcessor(t, store, nil, nil, pub)

	enqueued, err := p.EnqueueJobRecompute(context.Background(), "job-001")
	require.NoError(t, err)
	assert.Equal(t, 2, enqueued, "应跳过无候选人关联的投递")
	require.Len(t, pub.published, 2)

	msg, ok := pub.published[0].(storage.MatchNeededMessage)
	require.True(t, ok, "发布的应是MatchNeededMessage")
	assert.Equal(t, storage.TriggerRecompute, msg.Trigger)
	assert.Equal(t, "job-001", msg.JobID)
	assert.NotEmpty(t, msg.EventID)
}

func TestHandleMatchNeededMessage(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)

	p := testProcessor(t, store, nil, nil, nil)

	valid, err := json.Marshal(storage.MatchNeededMessage{
		EventID:     "evt-1",
		Trigger:     storage.TriggerCandidateUpdated,
		CandidateID: "cand-001",
		JobID:       "job-001",
	})
	require.NoError(t, err)

	assert.True(t, p.HandleMatchNeededMessage(context.Background(), valid), "有效消息应ack")
	assert.Len(t, store.savedMatches, 1)

	// 损坏的JSON直接ack丢弃，重投不会修复
	assert.True(t, p.HandleMatchNeededMessage(context.Background(), []byte("{not json")), "损坏消息应ack丢弃")

	// 输入已不存在时同样ack丢弃
	gone, err := json.Marshal(storage.MatchNeededMessage{
		EventID:     "evt-2",
		Trigger:     storage.TriggerRecompute,
		CandidateID: "ghost",
		JobID:       "job-001",
	})
	require.NoError(t, err)
	assert.True(t, p.HandleMatchNeededMessage(context.Background(), gone), "输入不存在应ack丢弃")

	// 持久化瞬时失败时nack重投
	store.saveErr = errors.New("mysql gone away")
	assert.False(t, p.HandleMatchNeededMessage(context.Background(), valid), "瞬时故障应nack重投")
	store.saveErr = nil
}

func TestHandleMatchNeededMessageWritesCalibrationRow(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)

	p := testProcessor(t, store, nil, nil, nil)

	body, err := json.Marshal(storage.MatchNeededMessage{
		EventID:        "evt-cal-1",
		Trigger:        storage.TriggerSubmissionCreated,
		CandidateID:    "cand-001",
		JobID:          "job-001",
		SubmissionUUID: "sub-123",
	})
	require.NoError(t, err)

	require.True(t, p.HandleMatchNeededMessage(context.Background(), body))
	require.Len(t, store.savedCalibrations, 1, "携带投递ID的消息应写入校准行")

	row := store.savedCalibrations[0]
	match := store.savedMatches[0]
	assert.Equal(t, "sub-123", row.SubmissionUUID)
	assert.Equal(t, "cand-001", row.CandidateID)
	assert.Equal(t, "job-001", row.JobID)
	assert.Equal(t, matching.EngineVersion, row.EngineVersion)
	assert.Equal(t, match.FitScore, row.PredictedFitScore, "校准行应携带预测契合分")
	assert.Equal(t, match.ConstraintScore, row.PredictedConstraintScore)
	assert.Equal(t, match.OverallMatch, row.PredictedOverallMatch)
	assert.Equal(t, match.DealProbability, row.PredictedProbability)
	require.NotNil(t, row.EvaluatedAt)

	var gates matching.Gates
	require.NoError(t, json.Unmarshal(row.GatesJSON, &gates), "校准行应携带闸门快照")
	assert.Equal(t, matching.GatePass, gates.OverallGate)
	assert.Empty(t, row.Outcome, "真实结果由后续回流补齐")
}

func TestEvaluatePairWithoutSubmissionSkipsCalibration(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)

	p := testProcessor(t, store, nil, nil, nil)

	_, err := p.EvaluatePair(context.Background(), "cand-001", "job-001", "", storage.TriggerCandidateUpdated)
	require.NoError(t, err)
	assert.Len(t, store.savedMatches, 1)
	assert.Empty(t, store.savedCalibrations, "没有投递关联时不应写校准行")
}

func TestEvaluatePairUsesConfiguredEngineDefaults(t *testing.T) {
	store := newMockMatchStore()
	store.candidates["cand-001"] = testCandidate(t)
	store.jobs["job-001"] = testJob(t)

	// 无激活配置行时应使用注入的兜底配置而不是内置默认值
	defaults := matching.DefaultConfig()
	defaults.FitWeight = 1.0
	defaults.ConstraintWeight = 0.0

	p, err := NewMatchProcessor(&Components{Store: store}, &Settings{
		EngineDefaults: &defaults,
		Logger:         log.New(io.Discard, "", 0),
		Clock: func() time.Time {
			return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		},
	})
	require.NoError(t, err)

	result, err := p.EvaluatePair(context.Background(), "cand-001", "job-001", "", storage.TriggerCandidateUpdated)
	require.NoError(t, err)
	assert.Equal(t, result.FitScore, result.OverallMatch, "契合权重拉满时总分应等于契合分")
}

func TestEvaluatePairAppliesTaxonomyFromStore(t *testing.T) {
	store := newMockMatchStore()
	candidate := testCandidate(t)
	candidate.SkillsJSON = mustListJSON(t, []string{"Azure", "MySQL"})
	store.candidates["cand-001"] = candidate

	job := testJob(t)
	job.RequiredSkillsJSON = mustListJSON(t, []string{"AWS", "MySQL"})
	store.jobs["job-001"] = job

	p := testProcessor(t, store, nil, nil, nil)

	// 无迁移映射时 AWS 缺失
	base, err := p.EvaluatePair(context.Background(), "cand-001", "job-001", "", storage.TriggerRecompute)
	require.NoError(t, err)
	assert.Contains(t, base.FitFactors.Skills.Missing, "aws")

	// 配置 Azure -> AWS 迁移后获得部分加分
	store.transfers = []models.SkillTransfer{
		{Skill: "AWS", TransfersFromJSON: mustListJSON(t, []string{"Azure"})},
	}
	withTransfer, err := p.EvaluatePair(context.Background(), "cand-001", "job-001", "", storage.TriggerRecompute)
	require.NoError(t, err)
	assert.Contains(t, withTransfer.FitFactors.Skills.Transferable, "aws", "迁移技能应被标记")
	assert.Greater(t, withTransfer.FitFactors.Skills.Score, base.FitFactors.Skills.Score, "迁移加分应提高技能分")
}
