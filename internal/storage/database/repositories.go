package database

import (
	"context"
	"errors"
	"time"

	"udg-chat/internal/message"
)

var (
	// ErrNotFound 記錄不存在.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 唯一鍵衝突（例如 email 已註冊）.
	ErrDuplicate = errors.New("duplicate record")
)

// UserRecord 用戶記錄，包含密碼雜湊.
type UserRecord struct {
	ID           int64     `bson:"id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	Nickname     string    `bson:"nickname" json:"nickname"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// User 轉為對外的用戶資料.
func (u *UserRecord) User() message.User {
	return message.User{ID: u.ID, Email: u.Email, Nickname: u.Nickname, CreatedAt: u.CreatedAt}
}

// UserRepository 用戶倉儲接口.
type UserRepository interface {
	Create(ctx context.Context, user *UserRecord) error
	GetByID(ctx context.Context, id int64) (*UserRecord, error)
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
}

// ChatRoomRepository 聊天室倉儲接口.
type ChatRoomRepository interface {
	Create(ctx context.Context, room *message.Room) error
	GetByID(ctx context.Context, id int64) (*message.Room, error)
	// FindExisting 尋找同兩位成員、同類型、同貼文的既有聊天室
	FindExisting(ctx context.Context, userA, userB int64, roomType message.RoomType, postID *int64) (*message.Room, error)
	ListUserRooms(ctx context.Context, userID int64) ([]message.Room, error)
	UpdatePost(ctx context.Context, id int64, post *message.PostSummary) error
}

// MessageRepository 訊息倉儲接口.
type MessageRepository interface {
	Create(ctx context.Context, msg *message.Message) error
	GetByID(ctx context.Context, roomID, id int64) (*message.Message, error)
	// ListByRoom 依 created_at 由舊到新回傳完整歷史
	ListByRoom(ctx context.Context, roomID int64) ([]message.Message, error)
	UpdateContent(ctx context.Context, roomID, id int64, content string, at time.Time) (*message.Message, error)
	SoftDelete(ctx context.Context, roomID, id int64, placeholder string, at time.Time) (*message.Message, error)
	// MarkRead 將聊天室中其他人發送的訊息標記為已讀，回傳更新數量
	MarkRead(ctx context.Context, roomID, readerID int64) (int64, error)
}

// Repositories 倉儲集合.
type Repositories struct {
	Users     UserRepository
	ChatRooms ChatRoomRepository
	Messages  MessageRepository

	// Driver 目前使用的儲存驅動（memory 或 mongo）
	Driver string
	ping   func(ctx context.Context) error
}

// NewRepositories 組合倉儲集合，ping 為 nil 時視為永遠可用.
func NewRepositories(driver string, users UserRepository, rooms ChatRoomRepository, msgs MessageRepository, ping func(ctx context.Context) error) *Repositories {
	return &Repositories{
		Users:     users,
		ChatRooms: rooms,
		Messages:  msgs,
		Driver:    driver,
		ping:      ping,
	}
}

// Ping 檢查儲存是否可用.
func (r *Repositories) Ping(ctx context.Context) error {
	if r.ping == nil {
		return nil
	}
	return r.ping(ctx)
}
