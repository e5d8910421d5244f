// Package chatroom 單一聊天室的客戶端狀態：初次載入、樂觀發送、推播合併與輸入中提示
package chatroom

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"udg-chat/internal/constants"
	"udg-chat/internal/message"
	"udg-chat/internal/metrics"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/push"

	"github.com/jonboulle/clockwork"
)

// Remote 聊天服務
type Remote interface {
	GetRoom(ctx context.Context, roomID int64, token string) (message.Room, error)
	GetMessages(ctx context.Context, roomID int64, token string) ([]message.Message, error)
	SendMessage(ctx context.Context, roomID int64, req message.SendRequest, token string) (message.Message, error)
	UpdateMessage(ctx context.Context, roomID, messageID int64, content, token string) (message.Message, error)
	DeleteMessage(ctx context.Context, roomID, messageID int64, token string) error
	MarkRead(ctx context.Context, roomID int64, token string) error
	RequestUploadTarget(ctx context.Context, filename, contentType, token string) (message.UploadTarget, error)
	Upload(ctx context.Context, uploadURL, contentType string, body io.Reader) error
}

// Signaler 推播連線上的聊天室指令
type Signaler interface {
	JoinRoom(roomID int64, token string) error
	LeaveRoom(roomID int64, token string) error
	Typing(roomID int64, typing bool) error
}

// Session 目前登入的用戶
type Session interface {
	Token() string
	UserID() int64
}

// Attachment 要隨訊息送出的檔案
type Attachment struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// Option 客戶端選項
type Option func(*Client)

// WithClock 替換時鐘（測試使用）
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithTypingDelay 設定停止輸入提示的延遲
func WithTypingDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.typingDelay = d
		}
	}
}

// WithDeletedPlaceholder 設定刪除後顯示的文字
func WithDeletedPlaceholder(text string) Option {
	return func(c *Client) {
		if text != "" {
			c.placeholder = text
		}
	}
}

// WithMaxMessageLength 設定訊息長度上限
func WithMaxMessageLength(n int) Option {
	return func(c *Client) { c.maxLength = n }
}

// Client 單一聊天室的客戶端
type Client struct {
	roomID   int64
	session  Session
	remote   Remote
	signaler Signaler

	clock       clockwork.Clock
	typingDelay time.Duration
	placeholder string
	maxLength   int

	mu         sync.Mutex
	room       *message.Room
	tl         *timeline
	outbox     map[string]message.SendRequest
	sending    bool
	peerTyping bool
	joined     bool
	closed     bool

	typing  *typingDebouncer
	changes chan struct{}
}

// New 建立聊天室客戶端，signaler 為 nil 時不使用推播
func New(roomID int64, session Session, remote Remote, signaler Signaler, opts ...Option) *Client {
	c := &Client{
		roomID:      roomID,
		session:     session,
		remote:      remote,
		signaler:    signaler,
		clock:       clockwork.NewRealClock(),
		typingDelay: constants.DefaultTypingStopDelay,
		placeholder: message.DeletedPlaceholder,
		tl:          newTimeline(),
		outbox:      make(map[string]message.SendRequest),
		changes:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.typing = newTypingDebouncer(c.clock, c.typingDelay, c.emitTyping)
	return c
}

// RoomID 聊天室 ID
func (c *Client) RoomID() int64 {
	return c.roomID
}

// LoadInitial 取得聊天室與完整歷史，標記已讀並加入推播聊天室
func (c *Client) LoadInitial(ctx context.Context) error {
	token := c.session.Token()

	room, err := c.remote.GetRoom(ctx, c.roomID, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRoomUnavailable, err)
	}
	msgs, err := c.remote.GetMessages(ctx, c.roomID, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRoomUnavailable, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.room = &room
	c.tl.reset(msgs)
	c.mu.Unlock()
	c.notify()

	logger.Debug(ctx, "聊天室載入完成",
		logger.WithRoomID(c.roomID),
		logger.WithAction("chat_load"),
		logger.WithDetails(map[string]interface{}{"messages": len(msgs)}))

	c.markRead(ctx)
	c.join(ctx)
	return nil
}

// RefreshRoom 重新取得聊天室資訊（例如交易狀態改變後）
func (c *Client) RefreshRoom(ctx context.Context) (message.Room, error) {
	room, err := c.remote.GetRoom(ctx, c.roomID, c.session.Token())
	if err != nil {
		return message.Room{}, fmt.Errorf("重新取得聊天室失敗: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return room, nil
	}
	c.room = &room
	c.mu.Unlock()
	c.notify()
	return room, nil
}

// Send 樂觀發送：附件先上傳，成功後才加入暫存訊息，再等伺服器確認
func (c *Client) Send(ctx context.Context, content string, att *Attachment) (message.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return message.Message{}, ErrClosed
	}
	if c.sending {
		c.mu.Unlock()
		return message.Message{}, ErrSendInFlight
	}
	c.sending = true
	c.mu.Unlock()
	c.notify()
	defer c.finishSending()

	req := message.SendRequest{Content: content, MessageType: message.MessageTypeText}
	if att == nil {
		if err := message.ValidateSendRequest(&req, c.maxLength); err != nil {
			return message.Message{}, err
		}
	} else {
		if err := message.ValidateFileName(att.FileName); err != nil {
			return message.Message{}, err
		}
		fileURL, err := c.upload(ctx, att)
		if err != nil {
			metrics.ClientSends.WithLabelValues("upload_failed").Inc()
			logger.Warning(ctx, "附件上傳失敗",
				logger.WithRoomID(c.roomID),
				logger.WithAction("chat_upload"),
				logger.WithError(err))
			return message.Message{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
		}
		req.MessageType = message.TypeForContentType(att.ContentType)
		req.FileURL = fileURL
		req.FileName = att.FileName
		if err := message.ValidateSendRequest(&req, c.maxLength); err != nil {
			return message.Message{}, err
		}
	}

	now := c.clock.Now()
	req.TempID = newTempID(now)
	placeholder := message.Message{
		TempID:      req.TempID,
		ChatRoomID:  c.roomID,
		SenderID:    c.session.UserID(),
		Content:     req.Content,
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
		FileName:    req.FileName,
		Status:      message.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return message.Message{}, ErrClosed
	}
	c.tl.add(placeholder)
	c.outbox[req.TempID] = req
	c.mu.Unlock()
	c.notify()

	return c.deliver(ctx, req)
}

// Retry 重送失敗的訊息，內容與第一次完全相同
func (c *Client) Retry(ctx context.Context, tempID string) (message.Message, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return message.Message{}, ErrClosed
	}
	if c.sending {
		c.mu.Unlock()
		return message.Message{}, ErrSendInFlight
	}
	m := c.tl.getTemp(tempID)
	if m == nil {
		c.mu.Unlock()
		return message.Message{}, ErrMessageNotFound
	}
	req, ok := c.outbox[tempID]
	if m.Status != message.StatusFailed || !ok {
		c.mu.Unlock()
		return message.Message{}, ErrNotFailed
	}
	m.Status = message.StatusPending
	m.Error = ""
	c.sending = true
	c.mu.Unlock()
	c.notify()
	defer c.finishSending()

	return c.deliver(ctx, req)
}

// Discard 移除失敗的訊息，只影響本機
func (c *Client) Discard(tempID string) error {
	c.mu.Lock()
	m := c.tl.getTemp(tempID)
	if m == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	if m.Status != message.StatusFailed {
		c.mu.Unlock()
		return ErrNotFailed
	}
	c.tl.removeTemp(tempID)
	delete(c.outbox, tempID)
	c.mu.Unlock()
	c.notify()
	return nil
}

// deliver 呼叫遠端發送，回應後以 tempId 重新找到暫存訊息再更新
func (c *Client) deliver(ctx context.Context, req message.SendRequest) (message.Message, error) {
	sent, err := c.remote.SendMessage(ctx, c.roomID, req, c.session.Token())

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if err != nil {
			return message.Message{}, fmt.Errorf("發送訊息失敗: %w", err)
		}
		return sent, nil
	}

	if err != nil {
		m := c.tl.getTemp(req.TempID)
		if m != nil && m.ID != 0 {
			// 推播已經確認同一則訊息
			delete(c.outbox, req.TempID)
			confirmed := *m
			c.mu.Unlock()
			c.notify()
			metrics.ClientSends.WithLabelValues("sent").Inc()
			return confirmed, nil
		}
		if m != nil {
			m.Status = message.StatusFailed
			m.Error = err.Error()
		}
		c.mu.Unlock()
		c.notify()

		metrics.ClientSends.WithLabelValues("failed").Inc()
		logger.Warning(ctx, "訊息發送失敗",
			logger.WithRoomID(c.roomID),
			logger.WithTempID(req.TempID),
			logger.WithAction("chat_send"),
			logger.WithError(err))
		return message.Message{}, fmt.Errorf("發送訊息失敗: %w", err)
	}

	if sent.ChatRoomID == 0 {
		sent.ChatRoomID = c.roomID
	}
	confirmed, ok := c.tl.confirm(req.TempID, sent)
	if !ok {
		// 暫存訊息已被移除（例如重新載入時被伺服器版本取代）
		confirmed = sent
		confirmed.TempID = req.TempID
		confirmed.Status = message.StatusSent
		if c.tl.get(sent.ID) == nil {
			c.tl.add(confirmed)
			c.tl.sort()
		}
	}
	delete(c.outbox, req.TempID)
	c.mu.Unlock()
	c.notify()

	metrics.ClientSends.WithLabelValues("sent").Inc()
	return confirmed, nil
}

func (c *Client) upload(ctx context.Context, att *Attachment) (string, error) {
	token := c.session.Token()
	target, err := c.remote.RequestUploadTarget(ctx, att.FileName, att.ContentType, token)
	if err != nil {
		return "", err
	}
	if err := c.remote.Upload(ctx, target.UploadURL, att.ContentType, att.Body); err != nil {
		return "", err
	}
	return target.FileURL, nil
}

func (c *Client) finishSending() {
	c.mu.Lock()
	c.sending = false
	c.mu.Unlock()
	c.notify()
}

// Edit 編輯訊息，伺服器成功後在原位置更新
func (c *Client) Edit(ctx context.Context, messageID int64, content string) (message.Message, error) {
	if err := message.ValidateContent(content, c.maxLength); err != nil {
		return message.Message{}, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return message.Message{}, ErrClosed
	}
	m := c.tl.get(messageID)
	if m == nil {
		c.mu.Unlock()
		return message.Message{}, ErrMessageNotFound
	}
	if m.IsDeleted {
		c.mu.Unlock()
		return message.Message{}, ErrMessageDeleted
	}
	c.mu.Unlock()

	updated, err := c.remote.UpdateMessage(ctx, c.roomID, messageID, content, c.session.Token())
	if err != nil {
		return message.Message{}, fmt.Errorf("編輯訊息失敗: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return updated, nil
	}
	result, _ := c.applyUpdateLocked(updated)
	c.mu.Unlock()
	c.notify()
	return result, nil
}

// Delete 刪除訊息（軟刪除），伺服器成功後在原位置替換內容
func (c *Client) Delete(ctx context.Context, messageID int64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.tl.get(messageID) == nil {
		c.mu.Unlock()
		return ErrMessageNotFound
	}
	c.mu.Unlock()

	if err := c.remote.DeleteMessage(ctx, c.roomID, messageID, c.session.Token()); err != nil {
		return fmt.Errorf("刪除訊息失敗: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	changed := c.applyDeleteLocked(messageID, c.clock.Now())
	c.mu.Unlock()
	if changed {
		c.notify()
	}
	return nil
}

// applyUpdateLocked 原位置更新內容，不改變順序；已刪除的訊息不會被還原
func (c *Client) applyUpdateLocked(updated message.Message) (message.Message, bool) {
	m := c.tl.get(updated.ID)
	if m == nil {
		return updated, false
	}
	if m.IsDeleted {
		return *m, false
	}

	m.Content = updated.Content
	m.IsEdited = true
	if updated.MessageType != "" {
		m.MessageType = updated.MessageType
	}
	if !updated.UpdatedAt.IsZero() {
		m.UpdatedAt = updated.UpdatedAt
	}
	if updated.IsDeleted {
		m.SoftDelete(c.placeholder, updated.UpdatedAt)
	}
	return *m, true
}

func (c *Client) applyDeleteLocked(messageID int64, at time.Time) bool {
	m := c.tl.get(messageID)
	if m == nil {
		return false
	}
	return m.SoftDelete(c.placeholder, at)
}

// ReceivePush 合併一個推播事件，其他聊天室的事件直接忽略
func (c *Client) ReceivePush(ctx context.Context, ev push.Event) {
	if ev == nil {
		return
	}
	kind := string(ev.Kind())
	if ev.ChatRoomID() != c.roomID {
		metrics.PushEvents.WithLabelValues(kind, "ignored").Inc()
		return
	}

	me := c.session.UserID()
	changed := false
	markRead := false

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	switch e := ev.(type) {
	case push.NewMessage:
		var applied bool
		changed, applied = c.applyIncomingLocked(e.Message)
		if !applied {
			c.mu.Unlock()
			metrics.PushEvents.WithLabelValues(kind, "duplicate").Inc()
			return
		}
		markRead = e.Message.SenderID != me

	case push.Read:
		// 只標記已有伺服器 id 的訊息，傳送中與失敗的暫存訊息對方還看不到
		if e.UserID != me {
			for _, m := range c.tl.items {
				if m.SenderID == me && m.ID != 0 && !m.IsRead {
					m.IsRead = true
					changed = true
				}
			}
		}

	case push.TypingStart:
		if e.UserID != me && !c.peerTyping {
			c.peerTyping = true
			changed = true
		}

	case push.TypingStop:
		if e.UserID != me && c.peerTyping {
			c.peerTyping = false
			changed = true
		}

	case push.MessageUpdated:
		_, changed = c.applyUpdateLocked(e.Message)

	case push.MessageDeleted:
		at := e.DeletedAt
		if at.IsZero() {
			at = c.clock.Now()
		}
		changed = c.applyDeleteLocked(e.MessageID, at)
	}
	c.mu.Unlock()

	metrics.PushEvents.WithLabelValues(kind, "applied").Inc()
	if changed {
		c.notify()
	}
	if markRead {
		c.markRead(ctx)
	}
}

// applyIncomingLocked 推播的新訊息：重複 id 忽略；帶有本機 tempId 時確認暫存訊息；否則加入並排序
func (c *Client) applyIncomingLocked(m message.Message) (changed, applied bool) {
	if c.tl.get(m.ID) != nil {
		return false, false
	}

	if m.TempID != "" {
		if placeholder := c.tl.getTemp(m.TempID); placeholder != nil && placeholder.ID == 0 {
			c.tl.confirm(m.TempID, m)
			delete(c.outbox, m.TempID)
			return true, true
		}
	}

	c.tl.add(m)
	c.tl.sort()
	return true, true
}

// Run 依序處理推播事件，直到 ctx 結束或 channel 關閉
func (c *Client) Run(ctx context.Context, events <-chan push.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.ReceivePush(ctx, ev)
		}
	}
}

// NotifyTyping 輸入框內容改變時呼叫
func (c *Client) NotifyTyping(hasContent bool) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	c.typing.keystroke(hasContent)
}

func (c *Client) emitTyping(typing bool) {
	if c.signaler == nil {
		return
	}
	if err := c.signaler.Typing(c.roomID, typing); err != nil {
		logger.Debug(context.Background(), "送出輸入中提示失敗",
			logger.WithRoomID(c.roomID),
			logger.WithAction("chat_typing"),
			logger.WithError(err))
	}
}

func (c *Client) markRead(ctx context.Context) {
	if err := c.remote.MarkRead(ctx, c.roomID, c.session.Token()); err != nil {
		logger.Warning(ctx, "標記已讀失敗",
			logger.WithRoomID(c.roomID),
			logger.WithAction("chat_mark_read"),
			logger.WithError(err))
	}
}

func (c *Client) join(ctx context.Context) {
	if c.signaler == nil {
		return
	}
	if err := c.signaler.JoinRoom(c.roomID, c.session.Token()); err != nil {
		logger.Warning(ctx, "加入推播聊天室失敗",
			logger.WithRoomID(c.roomID),
			logger.WithAction("chat_join"),
			logger.WithError(err))
		return
	}
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()
}

// Messages 目前的訊息列表（複本，依 createdAt 排序）
func (c *Client) Messages() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tl.snapshot()
}

// Room 聊天室資訊，尚未載入時 ok 為 false
func (c *Client) Room() (message.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return message.Room{}, false
	}
	return *c.room, true
}

// PeerTyping 對方是否正在輸入
func (c *Client) PeerTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerTyping
}

// Sending 是否有訊息正在送出（發送按鈕應停用）
func (c *Client) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Changes 狀態改變通知，多次改變可能合併成一次
func (c *Client) Changes() <-chan struct{} {
	return c.changes
}

func (c *Client) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Close 離開聊天室；之後到達的回應與推播都不會再改變狀態
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	joined := c.joined
	c.mu.Unlock()

	c.typing.flush()

	if joined && c.signaler != nil {
		if err := c.signaler.LeaveRoom(c.roomID, c.session.Token()); err != nil {
			logger.Warning(ctx, "離開推播聊天室失敗",
				logger.WithRoomID(c.roomID),
				logger.WithAction("chat_leave"),
				logger.WithError(err))
			return err
		}
	}
	return nil
}
