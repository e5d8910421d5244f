// Package remote 聊天服務的 HTTP 客戶端
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"udg-chat/internal/constants"
	"udg-chat/internal/message"
)

const apiPrefix = "/api/v1"

// Client 聊天服務客戶端，每個呼叫都帶入 bearer token
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	UploadClient *http.Client
}

// NewClient 建立客戶端，timeout 為 0 時使用預設值
func NewClient(baseURL string, timeout, uploadTimeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = constants.DefaultRequestTimeout * time.Second
	}
	if uploadTimeout <= 0 {
		uploadTimeout = constants.DefaultUploadTimeout * time.Second
	}

	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		HTTPClient:   &http.Client{Timeout: timeout},
		UploadClient: &http.Client{Timeout: uploadTimeout},
	}
}

// envelope 成功回應格式 {"message": ..., "data": ...}
type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// doRequest 執行 JSON 請求，out 不為 nil 時解析 data 欄位
func (c *Client) doRequest(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+apiPrefix+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("解析回應失敗: %w", err)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("回應缺少 data: %s %s", method, path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("解析 data 失敗: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.Code
		apiErr.RequestID = eb.RequestID
		apiErr.Message = eb.Error
		if apiErr.Message == "" {
			apiErr.Message = eb.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// GetRoom 取得聊天室資訊
func (c *Client) GetRoom(ctx context.Context, roomID int64, token string) (message.Room, error) {
	var room message.Room
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/chats/rooms/%d", roomID), token, nil, &room); err != nil {
		return message.Room{}, err
	}
	if room.ID == 0 {
		return message.Room{}, fmt.Errorf("聊天室 %d 回應內容為空", roomID)
	}
	return room, nil
}

// GetMessages 取得聊天室完整歷史訊息
func (c *Client) GetMessages(ctx context.Context, roomID int64, token string) ([]message.Message, error) {
	var msgs []message.Message
	if err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/chats/rooms/%d/messages", roomID), token, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage 發送訊息
func (c *Client) SendMessage(ctx context.Context, roomID int64, req message.SendRequest, token string) (message.Message, error) {
	var msg message.Message
	err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/chats/rooms/%d/messages", roomID), token, req, &msg)
	return msg, err
}

// UpdateMessage 編輯訊息內容
func (c *Client) UpdateMessage(ctx context.Context, roomID, messageID int64, content, token string) (message.Message, error) {
	var msg message.Message
	path := fmt.Sprintf("/chats/rooms/%d/messages/%d", roomID, messageID)
	err := c.doRequest(ctx, http.MethodPut, path, token, message.UpdateRequest{Content: content}, &msg)
	return msg, err
}

// DeleteMessage 刪除訊息
func (c *Client) DeleteMessage(ctx context.Context, roomID, messageID int64, token string) error {
	path := fmt.Sprintf("/chats/rooms/%d/messages/%d", roomID, messageID)
	return c.doRequest(ctx, http.MethodDelete, path, token, nil, nil)
}

// MarkRead 將聊天室標記為已讀
func (c *Client) MarkRead(ctx context.Context, roomID int64, token string) error {
	return c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/chats/rooms/%d/read", roomID), token, nil, nil)
}

// RequestUploadTarget 取得附件上傳位置
func (c *Client) RequestUploadTarget(ctx context.Context, filename, contentType, token string) (message.UploadTarget, error) {
	var target message.UploadTarget
	req := message.UploadTargetRequest{Filename: filename, ContentType: contentType}
	if err := c.doRequest(ctx, http.MethodPost, "/uploads/presigned-url", token, req, &target); err != nil {
		return message.UploadTarget{}, err
	}
	if target.UploadURL == "" || target.FileURL == "" {
		return message.UploadTarget{}, fmt.Errorf("上傳位置不完整")
	}
	return target, nil
}

// Upload 將檔案內容直接 PUT 到上傳位置
func (c *Client) Upload(ctx context.Context, uploadURL, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.UploadClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, respBody)
	}
	return nil
}

// Signup 註冊
func (c *Client) Signup(ctx context.Context, req message.SignupRequest) (message.AuthResult, error) {
	var result message.AuthResult
	err := c.doRequest(ctx, http.MethodPost, "/auth/signup", "", req, &result)
	return result, err
}

// Login 登入
func (c *Client) Login(ctx context.Context, req message.LoginRequest) (message.AuthResult, error) {
	var result message.AuthResult
	err := c.doRequest(ctx, http.MethodPost, "/auth/login", "", req, &result)
	return result, err
}

// ListRooms 列出目前用戶的聊天室
func (c *Client) ListRooms(ctx context.Context, token string) ([]message.Room, error) {
	var rooms []message.Room
	if err := c.doRequest(ctx, http.MethodGet, "/chats/rooms", token, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateRoom 建立（或取得既有的）聊天室
func (c *Client) CreateRoom(ctx context.Context, req message.CreateRoomRequest, token string) (message.Room, error) {
	var room message.Room
	err := c.doRequest(ctx, http.MethodPost, "/chats/rooms", token, req, &room)
	return room, err
}
