package main

import (
	"context"
	"log"
	"os"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

// 批量回填工具：为存量投递补发 match.needed 事件
// 用于引擎版本升级或评分配置变更后的全量重算。
func main() {
	var (
		configPath string
		jobID      string
		dryRun     bool
	)
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.StringVar(&jobID, "job", "", "只回填指定岗位，为空时回填全部活跃岗位")
	pflag.BoolVar(&dryRun, "dry-run", false, "只统计不发消息")
	pflag.Parse()

	logFile, err := os.Create("backfill.log")
	if err != nil {
		log.Fatalf("创建日志文件失败: %v", err)
	}
	defer logFile.Close()
	log.SetOutput(logFile)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	ctx := context.Background()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()

	if storageManager.MySQL == nil {
		log.Fatal("MySQL未初始化，无法回填")
	}
	if !dryRun && storageManager.RabbitMQ == nil {
		log.Fatal("RabbitMQ未初始化，无法发送消息")
	}

	jobIDs, err := collectJobIDs(ctx, storageManager, jobID)
	if err != nil {
		log.Fatalf("获取岗位列表失败: %v", err)
	}
	log.Printf("总共找到 %d 个岗位需要回填", len(jobIDs))

	total, skipped := 0, 0
	for _, id := range jobIDs {
		submissions, err := storageManager.MySQL.ListActiveSubmissionsByJob(ctx, id)
		if err != nil {
			log.Printf("岗位 %s 获取投递列表失败，跳过: %v", id, err)
			continue
		}

		for i := range submissions {
			sub := &submissions[i]
			if sub.CandidateID == nil {
				skipped++
				continue
			}
			if dryRun {
				total++
				continue
			}

			msg := storage.MatchNeededMessage{
				EventID:        uuid.NewString(),
				Trigger:        storage.TriggerRecompute,
				CandidateID:    *sub.CandidateID,
				JobID:          id,
				RequestedAt:    time.Now().UTC(),
				SubmissionUUID: sub.SubmissionUUID,
			}
			if err := storageManager.RabbitMQ.PublishJSON(
				ctx,
				cfg.RabbitMQ.MatchEventsExchange,
				cfg.RabbitMQ.MatchNeededRoutingKey,
				msg,
				true,
			); err != nil {
				log.Printf("投递 %s 入队失败: %v", sub.SubmissionUUID, err)
				continue
			}
			total++
		}
	}

	log.Printf("回填完成: 入队 %d 条, 跳过 %d 条 (dry-run=%v)", total, skipped, dryRun)
}

// collectJobIDs 收集待回填的岗位ID
func collectJobIDs(ctx context.Context, storageManager *storage.Storage, jobID string) ([]string, error) {
	if jobID != "" {
		// 指定岗位时校验其存在
		if _, err := storageManager.MySQL.GetJobByID(ctx, jobID); err != nil {
			return nil, err
		}
		return []string{jobID}, nil
	}

	var jobs []models.Job
	err := storageManager.MySQL.DB().WithContext(ctx).
		Select("job_id").
		Where("status IN ?", []string{"ACTIVE", "OPEN"}).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(jobs))
	for i := range jobs {
		ids = append(ids, jobs[i].JobID)
	}
	return ids, nil
}
