package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"udg-chat/internal/message"
)

// Kind 推播事件類型
type Kind string

// 推播事件類型常數
const (
	KindNewMessage     Kind = "new_message"
	KindRead           Kind = "read"
	KindTypingStart    Kind = "typing_start"
	KindTypingStop     Kind = "typing_stop"
	KindMessageUpdated Kind = "message_updated"
	KindMessageDeleted Kind = "message_deleted"
)

// ErrMalformedEvent 無法解析的推播內容
var ErrMalformedEvent = errors.New("malformed push event")

// Event 推播事件，只會是下列六種具體型別之一
type Event interface {
	Kind() Kind
	ChatRoomID() int64
}

// NewMessage 新訊息，Message.TempID 只有發送者本人送出的訊息才會帶
type NewMessage struct {
	Message message.Message
}

// Read 對方已讀到目前為止的訊息
type Read struct {
	RoomID int64
	UserID int64
	ReadAt time.Time
}

// TypingStart 對方開始輸入
type TypingStart struct {
	RoomID int64
	UserID int64
}

// TypingStop 對方停止輸入
type TypingStop struct {
	RoomID int64
	UserID int64
}

// MessageUpdated 訊息已編輯
type MessageUpdated struct {
	Message message.Message
}

// MessageDeleted 訊息已刪除
type MessageDeleted struct {
	RoomID    int64
	MessageID int64
	UserID    int64
	DeletedAt time.Time
}

func (NewMessage) Kind() Kind     { return KindNewMessage }
func (Read) Kind() Kind           { return KindRead }
func (TypingStart) Kind() Kind    { return KindTypingStart }
func (TypingStop) Kind() Kind     { return KindTypingStop }
func (MessageUpdated) Kind() Kind { return KindMessageUpdated }
func (MessageDeleted) Kind() Kind { return KindMessageDeleted }

func (e NewMessage) ChatRoomID() int64     { return e.Message.ChatRoomID }
func (e Read) ChatRoomID() int64           { return e.RoomID }
func (e TypingStart) ChatRoomID() int64    { return e.RoomID }
func (e TypingStop) ChatRoomID() int64     { return e.RoomID }
func (e MessageUpdated) ChatRoomID() int64 { return e.Message.ChatRoomID }
func (e MessageDeleted) ChatRoomID() int64 { return e.RoomID }

// frame 線上格式 {"type": ..., "data": {...}}
type frame struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

type readData struct {
	ChatRoomID int64     `json:"chat_room_id"`
	UserID     int64     `json:"user_id"`
	ReadAt     time.Time `json:"read_at"`
}

type typingData struct {
	ChatRoomID int64 `json:"chat_room_id"`
	UserID     int64 `json:"user_id"`
}

type deletedData struct {
	ChatRoomID int64     `json:"chat_room_id"`
	MessageID  int64     `json:"message_id"`
	UserID     int64     `json:"user_id,omitempty"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// Decode 解析一個推播 frame
func Decode(raw []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("%w: %s 缺少 data", ErrMalformedEvent, f.Type)
	}

	switch f.Type {
	case KindNewMessage, KindMessageUpdated:
		var msg message.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if msg.ID <= 0 || msg.ChatRoomID <= 0 {
			return nil, fmt.Errorf("%w: %s 缺少 id 或 chat_room_id", ErrMalformedEvent, f.Type)
		}
		if f.Type == KindNewMessage {
			return NewMessage{Message: msg}, nil
		}
		return MessageUpdated{Message: msg}, nil

	case KindRead:
		var d readData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if d.ChatRoomID <= 0 {
			return nil, fmt.Errorf("%w: read 缺少 chat_room_id", ErrMalformedEvent)
		}
		return Read{RoomID: d.ChatRoomID, UserID: d.UserID, ReadAt: d.ReadAt}, nil

	case KindTypingStart, KindTypingStop:
		var d typingData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if d.ChatRoomID <= 0 {
			return nil, fmt.Errorf("%w: %s 缺少 chat_room_id", ErrMalformedEvent, f.Type)
		}
		if f.Type == KindTypingStart {
			return TypingStart{RoomID: d.ChatRoomID, UserID: d.UserID}, nil
		}
		return TypingStop{RoomID: d.ChatRoomID, UserID: d.UserID}, nil

	case KindMessageDeleted:
		var d deletedData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if d.ChatRoomID <= 0 || d.MessageID <= 0 {
			return nil, fmt.Errorf("%w: message_deleted 缺少 id", ErrMalformedEvent)
		}
		return MessageDeleted{RoomID: d.ChatRoomID, MessageID: d.MessageID, UserID: d.UserID, DeletedAt: d.DeletedAt}, nil
	}

	return nil, fmt.Errorf("%w: 未知類型 %q", ErrMalformedEvent, f.Type)
}

// Encode 將事件序列化為推播 frame
func Encode(ev Event) ([]byte, error) {
	var data any
	switch e := ev.(type) {
	case NewMessage:
		data = e.Message
	case MessageUpdated:
		data = e.Message
	case Read:
		data = readData{ChatRoomID: e.RoomID, UserID: e.UserID, ReadAt: e.ReadAt}
	case TypingStart:
		data = typingData{ChatRoomID: e.RoomID, UserID: e.UserID}
	case TypingStop:
		data = typingData{ChatRoomID: e.RoomID, UserID: e.UserID}
	case MessageDeleted:
		data = deletedData{ChatRoomID: e.RoomID, MessageID: e.MessageID, UserID: e.UserID, DeletedAt: e.DeletedAt}
	default:
		return nil, fmt.Errorf("不支援的事件類型: %T", ev)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Type: ev.Kind(), Data: raw})
}
