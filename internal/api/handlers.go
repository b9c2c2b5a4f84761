// internal/api/handlers.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/DialogueEngine/internal/config"
	"github.com/Corphon/DialogueEngine/internal/services"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	Conversations *services.ConversationService // 对话服务
	Saves         *services.SaveService         // 存档服务
	Stats         *services.StatsService        // 统计服务
	Response      *ResponseHelper               // 响应助手
	startedAt     time.Time
}

// NewHandler 创建API处理器
func NewHandler(conversations *services.ConversationService, saves *services.SaveService, stats *services.StatsService) *Handler {
	return &Handler{
		Conversations: conversations,
		Saves:         saves,
		Stats:         stats,
		Response:      NewResponseHelper(),
		startedAt:     time.Now(),
	}
}

// GotoRequest 按位置选择回应
type GotoRequest struct {
	Target string `json:"target"`
}

// PortraitRequest 修改会话内角色头像
type PortraitRequest struct {
	Actor    string `json:"actor" binding:"required"`
	Portrait string `json:"portrait"`
}

// SaverRequest 创建或更新远程存档组件
type SaverRequest struct {
	Data                   string `json:"data"`
	SaveAcrossSceneChanges bool   `json:"save_across_scene_changes"`
}

// SceneRequest 切换场景
type SceneRequest struct {
	Name  string `json:"name" binding:"required"`
	Index int    `json:"index"`
}

// VariableRequest 设置变量
type VariableRequest struct {
	Value bool `json:"value"`
}

// SettingsRequest 修改对话默认设置，未提供的字段保持不变
type SettingsRequest struct {
	Language                *string `json:"language"`
	AlwaysForceResponseMenu *bool   `json:"always_force_response_menu"`
}

// DatabaseSummary 对话数据库概要
type DatabaseSummary struct {
	Version       string              `json:"version,omitempty"`
	Actors        []string            `json:"actors"`
	Conversations []ConversationBrief `json:"conversations"`
	Problems      []string            `json:"problems,omitempty"`
}

// ConversationBrief 对话概要
type ConversationBrief struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Entries int    `json:"entries"`
}

// ===============================
// 对话会话
// ===============================

// StartConversation 启动对话
func (h *Handler) StartConversation(c *gin.Context) {
	var req services.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "", "无效的请求参数", err.Error())
		return
	}

	snap, err := h.Conversations.Start(req)
	if err != nil {
		h.Response.ServiceError(c, err, ErrorConversationNotFound)
		return
	}
	h.Response.Created(c, snap, "对话已开始")
}

// ListConversations 列出进行中的会话
func (h *Handler) ListConversations(c *gin.Context) {
	h.Response.Success(c, h.Conversations.List())
}

// GetConversation 获取会话当前状态
func (h *Handler) GetConversation(c *gin.Context) {
	snap, err := h.Conversations.Get(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSessionNotFound)
		return
	}
	h.Response.Success(c, snap)
}

// ContinueConversation 当前字幕播放结束
func (h *Handler) ContinueConversation(c *gin.Context) {
	snap, err := h.Conversations.Continue(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSessionNotFound)
		return
	}
	h.Response.Success(c, snap)
}

// ChooseResponse 选择回应菜单中的一项
func (h *Handler) ChooseResponse(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.Response.BadRequest(c, ErrorResponseInvalid, "回应序号必须是整数")
		return
	}

	snap, err := h.Conversations.Choose(c.Param("id"), index)
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSessionNotFound, ErrorNoResponseMenu)
		return
	}
	h.Response.Success(c, snap)
}

// HighlightResponse 标记当前回应但不选择
func (h *Handler) HighlightResponse(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.Response.BadRequest(c, ErrorResponseInvalid, "回应序号必须是整数")
		return
	}

	snap, err := h.Conversations.Highlight(c.Param("id"), index)
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSessionNotFound, ErrorNoResponseMenu)
		return
	}
	h.Response.Success(c, snap)
}

// GotoResponse 按位置选择回应: first, last, random, current
func (h *Handler) GotoResponse(c *gin.Context) {
	var req GotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "", "无效的请求参数", err.Error())
		return
	}

	snap, err := h.Conversations.Goto(c.Param("id"), req.Target)
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSessionNotFound)
		return
	}
	h.Response.Success(c, snap)
}

// RandomizeNext 下一句 NPC 台词随机选择
func (h *Handler) RandomizeNext(c *gin.Context) {
	snap, err := h.Conversations.RandomizeNext(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSessionNotFound)
		return
	}
	h.Response.Success(c, snap)
}

// SetPortrait 修改会话内角色头像
func (h *Handler) SetPortrait(c *gin.Context) {
	var req PortraitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "", "无效的请求参数", err.Error())
		return
	}

	snap, err := h.Conversations.SetActorPortrait(c.Param("id"), req.Actor, req.Portrait)
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSessionNotFound)
		return
	}
	h.Response.Success(c, snap)
}

// CloseConversation 结束会话
func (h *Handler) CloseConversation(c *gin.Context) {
	snap, err := h.Conversations.Close(c.Param("id"))
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSessionNotFound)
		return
	}
	h.Response.Success(c, snap, "对话已结束")
}

// GetDatabase 返回对话数据库概要
func (h *Handler) GetDatabase(c *gin.Context) {
	db := h.Conversations.Database()
	if db == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorDatabaseUnavailable, "对话数据库未加载")
		return
	}

	summary := DatabaseSummary{
		Version:       db.Version,
		Actors:        make([]string, 0, len(db.Actors)),
		Conversations: make([]ConversationBrief, 0, len(db.Conversations)),
		Problems:      db.Validate(),
	}
	for _, actor := range db.Actors {
		summary.Actors = append(summary.Actors, actor.Name)
	}
	for _, conv := range db.Conversations {
		summary.Conversations = append(summary.Conversations, ConversationBrief{
			ID:      conv.ID,
			Title:   conv.Title,
			Entries: len(conv.Entries),
		})
	}
	h.Response.Success(c, summary)
}

// ===============================
// 存档
// ===============================

// slotParam 解析存档槽参数，失败时已写入响应
func (h *Handler) slotParam(c *gin.Context) (int, bool) {
	slot, err := strconv.Atoi(c.Param("slot"))
	if err != nil || slot < 0 {
		h.Response.BadRequest(c, ErrorSlotInvalid, "存档槽必须是非负整数")
		return 0, false
	}
	return slot, true
}

// ListSaves 列出有数据的存档槽
func (h *Handler) ListSaves(c *gin.Context) {
	h.Response.Success(c, h.Saves.Slots(c.Request.Context()))
}

// GetSave 获取存档槽状态
func (h *Handler) GetSave(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	h.Response.Success(c, h.Saves.Slot(c.Request.Context(), slot))
}

// SaveGame 记录当前状态到存档槽
func (h *Handler) SaveGame(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	if err := h.Saves.Save(c.Request.Context(), slot); err != nil {
		h.Response.ServiceError(c, err, ErrorSlotEmpty)
		return
	}
	h.Response.Success(c, h.Saves.Slot(c.Request.Context(), slot), "游戏已保存")
}

// LoadGame 从存档槽恢复状态
func (h *Handler) LoadGame(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	if err := h.Saves.Load(c.Request.Context(), slot); err != nil {
		h.Response.ServiceError(c, err, ErrorSlotEmpty)
		return
	}
	h.Response.Success(c, gin.H{
		"slot":  slot,
		"scene": h.Saves.Scene(),
	}, "游戏已读取")
}

// DeleteSave 删除存档槽
func (h *Handler) DeleteSave(c *gin.Context) {
	slot, ok := h.slotParam(c)
	if !ok {
		return
	}
	if err := h.Saves.Delete(c.Request.Context(), slot); err != nil {
		h.Response.ServiceError(c, err, ErrorSlotEmpty)
		return
	}
	h.Response.Success(c, gin.H{"slot": slot}, "存档已删除")
}

// GetRecords 返回内存中的存档记录，refresh=true 时先重新记录
func (h *Handler) GetRecords(c *gin.Context) {
	if c.Query("refresh") == "true" {
		h.Response.Success(c, h.Saves.Record())
		return
	}
	h.Response.Success(c, h.Saves.Records())
}

// ResetGame 丢弃内存中的存档数据
func (h *Handler) ResetGame(c *gin.Context) {
	h.Saves.Reset()
	h.Response.Success(c, h.Saves.Scene(), "游戏状态已重置")
}

// ===============================
// 存档组件
// ===============================

// PutSaver 创建或更新远程存档组件
func (h *Handler) PutSaver(c *gin.Context) {
	var req SaverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "", "无效的请求参数", err.Error())
		return
	}

	info, err := h.Saves.PutBlob(c.Param("key"), req.Data, req.SaveAcrossSceneChanges)
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSaverNotFound, ErrorSaverConflict)
		return
	}
	h.Response.Success(c, info)
}

// GetSaver 获取远程存档组件
func (h *Handler) GetSaver(c *gin.Context) {
	info, err := h.Saves.GetBlob(c.Param("key"))
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSaverNotFound)
		return
	}
	h.Response.Success(c, info)
}

// DeleteSaver 注销远程存档组件
func (h *Handler) DeleteSaver(c *gin.Context) {
	key := c.Param("key")
	if err := h.Saves.DeleteBlob(key); err != nil {
		h.Response.ServiceError(c, err, ErrorSaverNotFound)
		return
	}
	h.Response.Success(c, gin.H{"key": key}, "存档组件已删除")
}

// ===============================
// 场景
// ===============================

// GetScene 获取当前场景
func (h *Handler) GetScene(c *gin.Context) {
	h.Response.Success(c, h.Saves.Scene())
}

// ChangeScene 切换场景
func (h *Handler) ChangeScene(c *gin.Context) {
	var req SceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, ErrorSceneInvalid, "无效的请求参数", err.Error())
		return
	}

	scene, err := h.Saves.ChangeScene(req.Name, req.Index)
	if err != nil {
		h.Response.ServiceError(c, err, ErrorSceneInvalid)
		return
	}
	h.Response.Success(c, scene, "场景已切换")
}

// ===============================
// 变量
// ===============================

// ListVariables 列出所有变量
func (h *Handler) ListVariables(c *gin.Context) {
	h.Response.Success(c, h.Conversations.Variables().Snapshot())
}

// GetVariable 获取变量值，未设置的变量为 false
func (h *Handler) GetVariable(c *gin.Context) {
	name := c.Param("name")
	h.Response.Success(c, gin.H{
		"name":  name,
		"value": h.Conversations.Variables().Get(name),
	})
}

// SetVariable 设置变量并刷新回应菜单
func (h *Handler) SetVariable(c *gin.Context) {
	var req VariableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, ErrorVariableInvalid, "无效的请求参数", err.Error())
		return
	}

	name := c.Param("name")
	h.Conversations.SetVariable(name, req.Value)
	h.Response.Success(c, gin.H{"name": name, "value": req.Value})
}

// ===============================
// 设置
// ===============================

// GetSettings 获取对话默认设置
func (h *Handler) GetSettings(c *gin.Context) {
	h.Response.Success(c, h.Conversations.Settings())
}

// UpdateSettings 更新对话默认设置，只影响之后开始的会话
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, ErrorBadRequest, "无效的请求参数", err.Error())
		return
	}

	settings := h.Conversations.Settings()
	if req.Language != nil {
		settings.Language = *req.Language
	}
	if req.AlwaysForceResponseMenu != nil {
		settings.AlwaysForceResponseMenu = *req.AlwaysForceResponseMenu
	}
	settings = h.Conversations.UpdateSettings(settings)

	// 持久化失败不影响本次运行
	if err := config.UpdateDialogueSettings(settings.Language, settings.AlwaysForceResponseMenu); err != nil {
		utils.GetLogger().Warn("Dialogue settings not persisted", map[string]interface{}{"error": err.Error()})
	}
	h.Response.Success(c, settings, "设置已更新")
}

// ===============================
// 系统
// ===============================

// GetStats 获取运行统计，detailed=true 包含原始指标
func (h *Handler) GetStats(c *gin.Context) {
	h.Response.Success(c, h.Stats.GetStats(c.Query("detailed") == "true"))
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	conversations := 0
	if db := h.Conversations.Database(); db != nil {
		conversations = len(db.Conversations)
	}
	h.Response.Success(c, gin.H{
		"status":          "ok",
		"uptime":          time.Since(h.startedAt).Round(time.Second).String(),
		"conversations":   conversations,
		"active_sessions": h.Conversations.ActiveCount(),
		"scene":           h.Saves.Scene(),
	})
}
