// internal/services/stats_service.go
package services

import (
	"time"

	"github.com/Corphon/DialogueEngine/internal/utils"
)

// UsageStats 表示运行统计
type UsageStats struct {
	ConversationsStarted int64                  `json:"conversations_started"`
	ConversationsEnded   int64                  `json:"conversations_ended"`
	ActiveSessions       int                    `json:"active_sessions"`
	ResponsesSelected    int64                  `json:"responses_selected"`
	SubtitlesShown       int64                  `json:"subtitles_shown"`
	Saves                int64                  `json:"saves"`
	Loads                int64                  `json:"loads"`
	SaveFailures         int64                  `json:"save_failures"`
	LoadFailures         int64                  `json:"load_failures"`
	SceneChanges         int64                  `json:"scene_changes"`
	Uptime               string                 `json:"uptime"`
	Metrics              map[string]interface{} `json:"metrics,omitempty"`
	GeneratedAt          time.Time              `json:"generated_at"`
}

// StatsService 汇总运行统计
type StatsService struct {
	metrics       *utils.DialogueMetrics
	conversations *ConversationService
	startedAt     time.Time
}

// NewStatsService 创建统计服务实例
func NewStatsService(metrics *utils.DialogueMetrics, conversations *ConversationService) *StatsService {
	if metrics == nil {
		metrics = utils.NewDialogueMetrics(nil, nil)
	}
	return &StatsService{
		metrics:       metrics,
		conversations: conversations,
		startedAt:     time.Now(),
	}
}

// GetStats returns the current counters. detailed adds the raw metrics.
func (s *StatsService) GetStats(detailed bool) *UsageStats {
	c := s.metrics.Collector()
	stats := &UsageStats{
		ConversationsStarted: c.GetCounterValue(utils.MetricConversationsStarted),
		ConversationsEnded:   c.GetCounterValue(utils.MetricConversationsEnded),
		ResponsesSelected:    c.GetCounterValue(utils.MetricResponsesSelected),
		SubtitlesShown:       c.GetCounterValue(utils.MetricSubtitlesShown),
		Saves:                c.GetCounterValue(utils.MetricSaves),
		Loads:                c.GetCounterValue(utils.MetricLoads),
		SaveFailures:         c.GetCounterValue(utils.MetricSaveFailures),
		LoadFailures:         c.GetCounterValue(utils.MetricLoadFailures),
		SceneChanges:         c.GetCounterValue(utils.MetricSceneChanges),
		Uptime:               time.Since(s.startedAt).Round(time.Second).String(),
		GeneratedAt:          time.Now(),
	}
	if s.conversations != nil {
		stats.ActiveSessions = s.conversations.ActiveCount()
	}
	if detailed {
		stats.Metrics = c.GetMetrics()
	}
	return stats
}
