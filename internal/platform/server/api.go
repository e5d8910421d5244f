package server

import (
	"errors"
	"time"

	"udg-chat/internal/constants"
	"udg-chat/internal/httputil"
	"udg-chat/internal/message"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/platform/middleware"
	"udg-chat/internal/storage/database"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

// API 開發伺服器的 HTTP 處理器
type API struct {
	repos   *database.Repositories
	hub     *Hub
	uploads *uploadStore
	clock   clockwork.Clock

	secret           string
	tokenTTL         time.Duration
	bcryptCost       int
	placeholder      string
	maxMessageLength int
	maxUploadSize    int64
}

// loadRoom 解析 :room_id 並確認目前用戶是成員
func (a *API) loadRoom(c *gin.Context) (*message.Room, bool) {
	roomID, err := middleware.ParseIDParam(c, "room_id")
	if err != nil {
		httputil.BadRequestWithCode(c, httputil.ErrorCodeInvalidParameter, err.Error())
		return nil, false
	}

	room, err := a.repos.ChatRooms.GetByID(c.Request.Context(), roomID)
	if err != nil {
		a.storageError(c, err)
		return nil, false
	}

	if !room.HasMember(middleware.GetUserID(c)) {
		httputil.Forbidden(c, httputil.ErrorCodeNotRoomMember, "不是聊天室成員")
		return nil, false
	}
	return room, true
}

// loadOwnMessage 解析 :message_id 並確認目前用戶是發送者
func (a *API) loadOwnMessage(c *gin.Context, room *message.Room) (*message.Message, bool) {
	messageID, err := middleware.ParseIDParam(c, "message_id")
	if err != nil {
		httputil.BadRequestWithCode(c, httputil.ErrorCodeInvalidParameter, err.Error())
		return nil, false
	}

	msg, err := a.repos.Messages.GetByID(c.Request.Context(), room.ID, messageID)
	if err != nil {
		a.storageError(c, err)
		return nil, false
	}

	if msg.SenderID != middleware.GetUserID(c) {
		httputil.Forbidden(c, httputil.ErrorCodeNotOwner, "只能修改自己的訊息")
		return nil, false
	}
	return msg, true
}

func (a *API) storageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		httputil.NotFoundError(c, httputil.RecordNotFound)
	case errors.Is(err, database.ErrDuplicate):
		httputil.Conflict(c, "資料已存在")
	default:
		ctx := c.Request.Context()
		meta := middleware.GetRequestMetadata(ctx)
		logger.Error(ctx, "儲存操作失敗",
			logger.WithUserID(middleware.GetUserID(c)),
			logger.WithDetails(map[string]interface{}{"ip": meta.IPAddress, "path": c.FullPath()}),
			logger.WithError(err))
		httputil.InternalServerError(c, err)
	}
}

func (a *API) messageLimit() int {
	if a.maxMessageLength > 0 {
		return a.maxMessageLength
	}
	return constants.DefaultMaxMessageLength
}

func (a *API) hashPassword(password string) (string, error) {
	cost := a.bcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
