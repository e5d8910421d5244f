package server

import (
	"errors"
	"strings"

	"udg-chat/internal/httputil"
	"udg-chat/internal/message"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/platform/middleware"
	"udg-chat/internal/push"
	"udg-chat/internal/storage/database"

	"github.com/gin-gonic/gin"
)

// 新建立的貼文聊天室預設交易狀態
const defaultTradeStatus = "OPEN"

// listRooms 列出目前用戶參與的聊天室（最近更新在前）
func (a *API) listRooms(c *gin.Context) {
	rooms, err := a.repos.ChatRooms.ListUserRooms(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		a.storageError(c, err)
		return
	}
	c.JSON(200, httputil.NewSuccessResponseWithCount(httputil.DataRetrieved, rooms, len(rooms)))
}

// createRoom 建立聊天室；同成員、同類型、同貼文的聊天室已存在時直接回傳
func (a *API) createRoom(c *gin.Context) {
	var req message.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	ctx := c.Request.Context()
	me := middleware.GetUserID(c)

	if req.PeerID <= 0 || req.PeerID == me {
		httputil.ValidationError(c, "peer_id", "無效的對象")
		return
	}
	if !req.Type.Valid() {
		httputil.ValidationError(c, "type", "無效的聊天室類型")
		return
	}
	if _, err := a.repos.Users.GetByID(ctx, req.PeerID); err != nil {
		a.storageError(c, err)
		return
	}

	existing, err := a.repos.ChatRooms.FindExisting(ctx, me, req.PeerID, req.Type, req.PostID)
	switch {
	case err == nil:
		httputil.OK(c, httputil.DataRetrieved, existing)
		return
	case !errors.Is(err, database.ErrNotFound):
		a.storageError(c, err)
		return
	}

	now := a.clock.Now().UTC()
	room := &message.Room{
		User1ID:   me,
		User2ID:   req.PeerID,
		StoreID:   req.StoreID,
		Type:      req.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.PostID != nil {
		room.Post = &message.PostSummary{ID: *req.PostID, TradeStatus: defaultTradeStatus}
	}

	if err := a.repos.ChatRooms.Create(ctx, room); err != nil {
		a.storageError(c, err)
		return
	}

	logger.Info(ctx, "建立聊天室",
		logger.WithUserID(me),
		logger.WithRoomID(room.ID),
		logger.WithAction("create_room"))
	httputil.Created(c, room)
}

// getRoom 取得聊天室資訊
func (a *API) getRoom(c *gin.Context) {
	room, ok := a.loadRoom(c)
	if !ok {
		return
	}
	httputil.OK(c, httputil.DataRetrieved, room)
}

type updatePostRequest struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	TradeStatus string `json:"trade_status"`
}

// updatePost 更新聊天室連結的貼文摘要（交易狀態變更），id 為 0 時解除連結
func (a *API) updatePost(c *gin.Context) {
	room, ok := a.loadRoom(c)
	if !ok {
		return
	}

	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	var post *message.PostSummary
	if req.ID > 0 {
		post = &message.PostSummary{
			ID:          req.ID,
			Title:       middleware.SanitizeInput(strings.TrimSpace(req.Title)),
			TradeStatus: strings.ToUpper(strings.TrimSpace(req.TradeStatus)),
		}
	}

	ctx := c.Request.Context()
	if err := a.repos.ChatRooms.UpdatePost(ctx, room.ID, post); err != nil {
		a.storageError(c, err)
		return
	}

	updated, err := a.repos.ChatRooms.GetByID(ctx, room.ID)
	if err != nil {
		a.storageError(c, err)
		return
	}
	httputil.OK(c, httputil.DataUpdated, updated)
}

// listMessages 回傳完整歷史（舊訊息在前）
func (a *API) listMessages(c *gin.Context) {
	room, ok := a.loadRoom(c)
	if !ok {
		return
	}

	msgs, err := a.repos.Messages.ListByRoom(c.Request.Context(), room.ID)
	if err != nil {
		a.storageError(c, err)
		return
	}
	c.JSON(200, httputil.NewSuccessResponseWithCount(httputil.DataRetrieved, msgs, len(msgs)))
}

// sendMessage 發送訊息並推播給聊天室
func (a *API) sendMessage(c *gin.Context) {
	room, ok := a.loadRoom(c)
	if !ok {
		return
	}

	var req message.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}
	if err := message.ValidateSendRequest(&req, a.messageLimit()); err != nil {
		httputil.BadRequestWithCode(c, httputil.ErrorCodeInvalidContent, err.Error())
		return
	}

	ctx := c.Request.Context()
	msg := &message.Message{
		TempID:      req.TempID,
		ChatRoomID:  room.ID,
		SenderID:    middleware.GetUserID(c),
		Content:     middleware.SanitizeInput(req.Content),
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
		FileName:    req.FileName,
		CreatedAt:   a.clock.Now().UTC(),
	}
	if err := a.repos.Messages.Create(ctx, msg); err != nil {
		a.storageError(c, err)
		return
	}

	if err := a.hub.PublishMessage(push.NewMessage{Message: *msg}); err != nil {
		logger.Error(ctx, "推播新訊息失敗", logger.WithRoomID(room.ID), logger.WithMessageID(msg.ID), logger.WithError(err))
	}

	httputil.Created(c, msg)
}

// updateMessage 編輯自己的訊息
func (a *API) updateMessage(c *gin.Context) {
	room, ok := a.loadRoom(c)
	if !ok {
		return
	}
	msg, ok := a.loadOwnMessage(c, room)
	if !ok {
		return
	}
	if msg.IsDeleted {
		httputil.Conflict(c, "訊息已刪除")
		return
	}

	var req message.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}
	if err := message.ValidateContent(req.Content, a.messageLimit()); err != nil {
		httputil.BadRequestWithCode(c, httputil.ErrorCodeInvalidContent, err.Error())
		return
	}

	ctx := c.Request.Context()
	updated, err := a.repos.Messages.UpdateContent(ctx, room.ID, msg.ID, middleware.SanitizeInput(req.Content), a.clock.Now().UTC())
	if err != nil {
		a.storageError(c, err)
		return
	}

	if err := a.hub.Publish(push.MessageUpdated{Message: *updated}); err != nil {
		logger.Error(ctx, "推播訊息編輯失敗", logger.WithRoomID(room.ID), logger.WithMessageID(msg.ID), logger.WithError(err))
	}
	httputil.OK(c, httputil.DataUpdated, updated)
}

// deleteMessage 軟刪除自己的訊息，重複刪除不再推播
func (a *API) deleteMessage(c *gin.Context) {
	room, ok := a.loadRoom(c)
	if !ok {
		return
	}
	msg, ok := a.loadOwnMessage(c, room)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	now := a.clock.Now().UTC()
	deleted, err := a.repos.Messages.SoftDelete(ctx, room.ID, msg.ID, a.placeholder, now)
	if err != nil {
		a.storageError(c, err)
		return
	}

	if !msg.IsDeleted {
		ev := push.MessageDeleted{RoomID: room.ID, MessageID: msg.ID, UserID: msg.SenderID, DeletedAt: now}
		if err := a.hub.Publish(ev); err != nil {
			logger.Error(ctx, "推播訊息刪除失敗", logger.WithRoomID(room.ID), logger.WithMessageID(msg.ID), logger.WithError(err))
		}
	}
	httputil.OK(c, httputil.DataDeleted, deleted)
}

// markRead 將對方的訊息標記為已讀並通知聊天室
func (a *API) markRead(c *gin.Context) {
	room, ok := a.loadRoom(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	me := middleware.GetUserID(c)
	updated, err := a.repos.Messages.MarkRead(ctx, room.ID, me)
	if err != nil {
		a.storageError(c, err)
		return
	}

	if err := a.hub.Publish(push.Read{RoomID: room.ID, UserID: me, ReadAt: a.clock.Now().UTC()}); err != nil {
		logger.Error(ctx, "推播已讀失敗", logger.WithRoomID(room.ID), logger.WithError(err))
	}
	httputil.OK(c, httputil.MarkedRead, gin.H{"updated": updated})
}
