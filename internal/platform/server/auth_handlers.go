package server

import (
	"errors"
	"net/http"
	"strings"

	"udg-chat/internal/httputil"
	"udg-chat/internal/message"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/platform/middleware"
	"udg-chat/internal/session"
	"udg-chat/internal/storage/database"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// signup 註冊並直接登入
func (a *API) signup(c *gin.Context) {
	var req message.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Nickname = middleware.SanitizeInput(strings.TrimSpace(req.Nickname))
	for _, check := range []error{
		middleware.ValidateEmail(req.Email),
		middleware.ValidatePassword(req.Password),
		middleware.ValidateNickname(req.Nickname),
	} {
		var verr *middleware.ValidationError
		if errors.As(check, &verr) {
			httputil.ValidationError(c, verr.Field, verr.Message)
			return
		}
	}

	hash, err := a.hashPassword(req.Password)
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	user := &database.UserRecord{
		Email:        req.Email,
		Nickname:     req.Nickname,
		PasswordHash: hash,
		CreatedAt:    a.clock.Now().UTC(),
	}
	if err := a.repos.Users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			httputil.Conflict(c, "email 已被註冊")
			return
		}
		a.storageError(c, err)
		return
	}

	logger.Info(c.Request.Context(), "新用戶註冊",
		logger.WithUserID(user.ID),
		logger.WithAction("signup"))

	a.respondAuth(c, http.StatusCreated, user)
}

// login 以 email 與密碼登入
func (a *API) login(c *gin.Context) {
	var req message.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "無效的請求格式")
		return
	}

	user, err := a.repos.Users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		a.storageError(c, err)
		return
	}
	// 帳號不存在與密碼錯誤回傳相同訊息
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		httputil.Unauthorized(c, "帳號或密碼錯誤")
		return
	}

	a.respondAuth(c, http.StatusOK, user)
}

func (a *API) respondAuth(c *gin.Context, status int, user *database.UserRecord) {
	token, err := session.IssueToken(a.secret, user.ID, user.Email, a.tokenTTL, a.clock.Now())
	if err != nil {
		httputil.InternalServerError(c, err)
		return
	}

	c.JSON(status, httputil.NewSuccessResponse(httputil.LoggedIn, message.AuthResult{
		Token: token,
		User:  user.User(),
	}))
}
