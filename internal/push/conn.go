package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"udg-chat/internal/constants"
	"udg-chat/internal/metrics"
	"udg-chat/internal/platform/logger"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrClosed 連線已關閉
	ErrClosed = errors.New("push connection closed")
	// ErrSendBufferFull 指令佇列已滿
	ErrSendBufferFull = errors.New("push send buffer full")
	// ErrUnauthorized 握手被拒絕（token 無效）
	ErrUnauthorized = errors.New("push handshake unauthorized")
)

// TokenSource 提供連線用的 bearer token
type TokenSource interface {
	Token() string
}

// Options 推播連線設定
type Options struct {
	URL           string
	Tokens        TokenSource
	Dialer        *websocket.Dialer
	Clock         clockwork.Clock
	EventBuffer   int
	CommandBuffer int
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
	PongWait      time.Duration
	PingPeriod    time.Duration
	WriteWait     time.Duration
}

func (o *Options) setDefaults() {
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = constants.DefaultEventBuffer
	}
	if o.CommandBuffer <= 0 {
		o.CommandBuffer = constants.DefaultCommandBuffer
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = constants.DefaultReconnectMin
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = constants.DefaultReconnectMax
		if o.ReconnectMax < o.ReconnectMin {
			o.ReconnectMax = o.ReconnectMin
		}
	}
	if o.PongWait <= 0 {
		o.PongWait = constants.WebSocketPongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = constants.WebSocketWriteWait
	}
}

// Conn 推播連線，斷線後以指數退避自動重連並重新加入已加入的聊天室
type Conn struct {
	opts   Options
	events chan Event
	send   chan []byte

	mu    sync.Mutex
	rooms map[int64]string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial 建立第一次連線，失敗時直接回傳錯誤
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	opts.setDefaults()
	if opts.URL == "" {
		return nil, fmt.Errorf("push url 不能為空")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		opts:   opts,
		events: make(chan Event, opts.EventBuffer),
		send:   make(chan []byte, opts.CommandBuffer),
		rooms:  make(map[int64]string),
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ws, err := c.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	go c.run(ws)
	return c, nil
}

// Events 依收到順序送出的推播事件，連線關閉後 channel 會被關閉
func (c *Conn) Events() <-chan Event {
	return c.events
}

// JoinRoom 加入聊天室，重連後會自動重新加入
func (c *Conn) JoinRoom(roomID int64, token string) error {
	c.mu.Lock()
	c.rooms[roomID] = token
	c.mu.Unlock()

	return c.enqueue(Command{Type: CommandJoinRoom, Data: CommandData{ChatRoomID: roomID, Token: token}})
}

// LeaveRoom 離開聊天室
func (c *Conn) LeaveRoom(roomID int64, token string) error {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()

	return c.enqueue(Command{Type: CommandLeaveRoom, Data: CommandData{ChatRoomID: roomID, Token: token}})
}

// Typing 送出輸入中/停止輸入
func (c *Conn) Typing(roomID int64, typing bool) error {
	cmdType := CommandTypingStop
	if typing {
		cmdType = CommandTypingStart
	}
	return c.enqueue(Command{Type: cmdType, Data: CommandData{ChatRoomID: roomID}})
}

// Close 關閉連線並等待背景 goroutine 結束
func (c *Conn) Close() error {
	c.cancel()
	<-c.done
	return nil
}

func (c *Conn) enqueue(cmd Command) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	raw, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	select {
	case c.send <- raw:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("push url 格式錯誤: %w", err)
	}
	if c.opts.Tokens != nil {
		q := u.Query()
		q.Set("token", c.opts.Tokens.Token())
		u.RawQuery = q.Encode()
	}

	ws, resp, err := c.opts.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("連線推播伺服器失敗: %w", err)
	}
	return ws, nil
}

// run 維持連線直到 Close，斷線後退避重連
func (c *Conn) run(ws *websocket.Conn) {
	defer close(c.done)
	defer close(c.events)

	var initial [][]byte
	for {
		err := c.serve(ws, initial)
		if c.ctx.Err() != nil {
			return
		}
		logger.Warning(c.ctx, "推播連線中斷，準備重連",
			logger.WithAction("push_disconnected"),
			logger.WithError(err))

		ws = c.reconnect()
		if ws == nil {
			return
		}
		initial = c.rejoinFrames()
	}
}

func (c *Conn) reconnect() *websocket.Conn {
	backoff := c.opts.ReconnectMin
	for attempt := 1; ; attempt++ {
		select {
		case <-c.opts.Clock.After(backoff):
		case <-c.ctx.Done():
			return nil
		}

		metrics.PushReconnects.Inc()
		ws, err := c.dial(c.ctx)
		if err == nil {
			logger.Info(c.ctx, "推播連線已恢復",
				logger.WithAction("push_reconnected"),
				logger.WithDetails(map[string]interface{}{"attempt": attempt}))
			return ws
		}
		if c.ctx.Err() != nil {
			return nil
		}

		logger.Debug(c.ctx, "推播重連失敗",
			logger.WithAction("push_reconnect_failed"),
			logger.WithError(err),
			logger.WithDetails(map[string]interface{}{"attempt": attempt, "backoff": backoff.String()}))

		backoff *= 2
		if backoff > c.opts.ReconnectMax {
			backoff = c.opts.ReconnectMax
		}
	}
}

func (c *Conn) rejoinFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames := make([][]byte, 0, len(c.rooms))
	for roomID, token := range c.rooms {
		raw, err := json.Marshal(Command{Type: CommandJoinRoom, Data: CommandData{ChatRoomID: roomID, Token: token}})
		if err != nil {
			continue
		}
		frames = append(frames, raw)
	}
	return frames
}

// serve 執行一條連線的讀寫 pump，任一端結束即回傳
func (c *Conn) serve(ws *websocket.Conn, initial [][]byte) error {
	var readErr error
	readDone := make(chan struct{})
	go func() {
		readErr = c.readPump(ws)
		close(readDone)
	}()

	writeErr := c.writePump(ws, initial, readDone)
	_ = ws.Close()
	<-readDone

	if writeErr != nil {
		return writeErr
	}
	return readErr
}

func (c *Conn) readPump(ws *websocket.Conn) error {
	ws.SetReadLimit(constants.WebSocketMaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		// 伺服器可能把多個 frame 以換行合併送出
		for _, line := range bytes.Split(raw, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}

			ev, err := Decode(line)
			if err != nil {
				metrics.PushEvents.WithLabelValues("unknown", "malformed").Inc()
				logger.Debug(c.ctx, "忽略無法解析的推播",
					logger.WithAction("push_malformed"),
					logger.WithError(err))
				continue
			}

			select {
			case c.events <- ev:
			case <-c.ctx.Done():
				return c.ctx.Err()
			}
		}
	}
}

func (c *Conn) writePump(ws *websocket.Conn, initial [][]byte, readDone <-chan struct{}) error {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	write := func(messageType int, data []byte) error {
		_ = ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
		return ws.WriteMessage(messageType, data)
	}

	for _, frame := range initial {
		if err := write(websocket.TextMessage, frame); err != nil {
			return err
		}
	}

	for {
		select {
		case <-readDone:
			return nil

		case <-c.ctx.Done():
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return c.ctx.Err()

		case frame := <-c.send:
			if err := write(websocket.TextMessage, frame); err != nil {
				return err
			}

		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
