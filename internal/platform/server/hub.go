package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"udg-chat/internal/constants"
	"udg-chat/internal/metrics"
	"udg-chat/internal/platform/logger"
	"udg-chat/internal/push"
	"udg-chat/internal/storage/database"

	"github.com/gorilla/websocket"
)

const sendBuffer = 256

// roomFrame 要送到某個聊天室的一個 frame
type roomFrame struct {
	roomID int64
	kind   push.Kind
	data   []byte

	// ownerID 的連線收到 ownerData（例如帶 temp_id 的新訊息）
	ownerID   int64
	ownerData []byte

	skip *wsClient
}

type subscription struct {
	client *wsClient
	roomID int64
	join   bool
}

// Hub 依聊天室管理 WebSocket 連線並廣播推播事件
type Hub struct {
	clients map[*wsClient]struct{}
	rooms   map[int64]map[*wsClient]struct{}

	register   chan *wsClient
	unregister chan *wsClient
	subscribe  chan subscription
	broadcast  chan roomFrame

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub 創建推播中心，需另外呼叫 Run
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]struct{}),
		rooms:      make(map[int64]map[*wsClient]struct{}),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		subscribe:  make(chan subscription),
		broadcast:  make(chan roomFrame, sendBuffer),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run 主迴圈，Stop 之後關閉所有連線並返回
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			metrics.WSConnections.Inc()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}

		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			if sub.join {
				members, ok := h.rooms[sub.roomID]
				if !ok {
					members = make(map[*wsClient]struct{})
					h.rooms[sub.roomID] = members
				}
				members[sub.client] = struct{}{}
			} else {
				h.leave(sub.client, sub.roomID)
			}

		case frame := <-h.broadcast:
			metrics.WSBroadcasts.WithLabelValues(string(frame.kind)).Inc()
			for client := range h.rooms[frame.roomID] {
				if client == frame.skip {
					continue
				}
				data := frame.data
				if frame.ownerData != nil && client.userID == frame.ownerID {
					data = frame.ownerData
				}
				select {
				case client.send <- data:
				default:
					logger.Warning(context.Background(), "推播連線緩衝已滿，斷開慢速連線",
						logger.WithUserID(client.userID),
						logger.WithRoomID(frame.roomID))
					h.drop(client)
				}
			}
		}
	}
}

// Stop 停止主迴圈並等待所有連線關閉
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.done
}

// Publish 將事件廣播給聊天室中所有連線
func (h *Hub) Publish(ev push.Event) error {
	return h.publish(ev, nil)
}

// PublishMessage 廣播新訊息；發送者本人收到帶 temp_id 的版本
func (h *Hub) PublishMessage(ev push.NewMessage) error {
	owner, err := push.Encode(ev)
	if err != nil {
		return err
	}
	ev.Message.TempID = ""
	data, err := push.Encode(ev)
	if err != nil {
		return err
	}
	h.enqueue(roomFrame{
		roomID:    ev.ChatRoomID(),
		kind:      ev.Kind(),
		data:      data,
		ownerID:   ev.Message.SenderID,
		ownerData: owner,
	})
	return nil
}

func (h *Hub) publish(ev push.Event, skip *wsClient) error {
	data, err := push.Encode(ev)
	if err != nil {
		return err
	}
	h.enqueue(roomFrame{roomID: ev.ChatRoomID(), kind: ev.Kind(), data: data, skip: skip})
	return nil
}

func (h *Hub) enqueue(frame roomFrame) {
	select {
	case h.broadcast <- frame:
	case <-h.quit:
	}
}

func (h *Hub) join(client *wsClient, roomID int64) {
	select {
	case h.subscribe <- subscription{client: client, roomID: roomID, join: true}:
	case <-h.quit:
	}
}

func (h *Hub) part(client *wsClient, roomID int64) {
	select {
	case h.subscribe <- subscription{client: client, roomID: roomID}:
	case <-h.quit:
	}
}

func (h *Hub) attach(client *wsClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) detach(client *wsClient) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// leave 與 drop 只在 Run 的 goroutine 中呼叫
func (h *Hub) leave(client *wsClient, roomID int64) {
	members := h.rooms[roomID]
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) drop(client *wsClient) {
	for roomID := range h.rooms {
		h.leave(client, roomID)
	}
	delete(h.clients, client)
	close(client.send)
	metrics.WSConnections.Dec()
}

// wsClient 一條已認證的 WebSocket 連線
type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	send   chan []byte
	rooms  database.ChatRoomRepository

	// joined 只在 readPump 的 goroutine 中使用
	joined map[int64]bool
}

func newWSClient(hub *Hub, conn *websocket.Conn, userID int64, rooms database.ChatRoomRepository) *wsClient {
	return &wsClient{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		rooms:  rooms,
		joined: make(map[int64]bool),
	}
}

// serve 阻塞直到連線結束
func (c *wsClient) serve(ctx context.Context) {
	if !c.hub.attach(c) {
		_ = c.conn.Close()
		return
	}

	writeDone := make(chan struct{})
	go func() {
		c.writePump()
		close(writeDone)
	}()

	c.readPump(ctx)
	c.hub.detach(c)
	<-writeDone
}

func (c *wsClient) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(constants.WebSocketMaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug(ctx, "推播連線異常關閉", logger.WithUserID(c.userID), logger.WithError(err))
			}
			return
		}

		cmd, err := push.DecodeCommand(raw)
		if err != nil {
			logger.Debug(ctx, "忽略無效的推播指令", logger.WithUserID(c.userID), logger.WithError(err))
			continue
		}
		c.handle(ctx, cmd)
	}
}

func (c *wsClient) handle(ctx context.Context, cmd push.Command) {
	roomID := cmd.Data.ChatRoomID

	switch cmd.Type {
	case push.CommandJoinRoom:
		if err := c.authorize(ctx, roomID); err != nil {
			logger.Warning(ctx, "拒絕加入聊天室",
				logger.WithUserID(c.userID),
				logger.WithRoomID(roomID),
				logger.WithError(err))
			return
		}
		c.joined[roomID] = true
		c.hub.join(c, roomID)

	case push.CommandLeaveRoom:
		if c.joined[roomID] {
			delete(c.joined, roomID)
			c.hub.part(c, roomID)
		}

	case push.CommandTypingStart, push.CommandTypingStop:
		if !c.joined[roomID] {
			return
		}
		var ev push.Event = push.TypingStart{RoomID: roomID, UserID: c.userID}
		if cmd.Type == push.CommandTypingStop {
			ev = push.TypingStop{RoomID: roomID, UserID: c.userID}
		}
		if err := c.hub.publish(ev, c); err != nil {
			logger.Error(ctx, "廣播輸入狀態失敗", logger.WithRoomID(roomID), logger.WithError(err))
		}
	}
}

var errNotMember = errors.New("not a room member")

func (c *wsClient) authorize(ctx context.Context, roomID int64) error {
	room, err := c.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasMember(c.userID) {
		return errNotMember
	}
	return nil
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 每個事件一個 frame，客戶端逐一解析
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
