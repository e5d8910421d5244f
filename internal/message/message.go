package message

import "time"

// MessageType 訊息類型.
type MessageType string

// 訊息類型常數.
const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeFile  MessageType = "FILE"
)

// Status 客戶端送出狀態，伺服器來源的訊息為空字串（視同已送出）.
type Status string

// 訊息狀態常數.
const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// DeletedPlaceholder 軟刪除後取代原內容的固定文字.
const DeletedPlaceholder = "삭제된 메시지입니다."

// Message 聊天訊息.
type Message struct {
	ID          int64       `json:"id"`
	TempID      string      `json:"temp_id,omitempty"`
	ChatRoomID  int64       `json:"chat_room_id"`
	SenderID    int64       `json:"sender_id"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	FileURL     string      `json:"file_url,omitempty"`
	FileName    string      `json:"file_name,omitempty"`
	IsRead      bool        `json:"is_read"`
	IsEdited    bool        `json:"is_edited"`
	IsDeleted   bool        `json:"is_deleted"`
	Status      Status      `json:"status,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Delivered 是否已由伺服器確認.
func (m *Message) Delivered() bool {
	return m.ID > 0 && (m.Status == "" || m.Status == StatusSent)
}

// SoftDelete 以固定文字取代內容並標記刪除，重複套用不會有額外效果.
func (m *Message) SoftDelete(placeholder string, at time.Time) bool {
	if m.IsDeleted {
		return false
	}
	m.IsDeleted = true
	m.Content = placeholder
	m.FileURL = ""
	m.FileName = ""
	if !at.IsZero() {
		m.UpdatedAt = at
	}
	return true
}

// RoomType 聊天室類型，決定頁面顯示哪些聯絡/詢價功能.
type RoomType string

// 聊天室類型常數.
const (
	RoomTypeStore    RoomType = "STORE"
	RoomTypeSale     RoomType = "SALE"
	RoomTypePurchase RoomType = "PURCHASE"
)

// Valid 檢查聊天室類型是否有效.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeStore, RoomTypeSale, RoomTypePurchase:
		return true
	}
	return false
}

// PostSummary 聊天室連結的交易貼文摘要.
type PostSummary struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	TradeStatus string `json:"trade_status"`
}

// Room 聊天室.
type Room struct {
	ID        int64        `json:"id"`
	User1ID   int64        `json:"user1_id"`
	User2ID   int64        `json:"user2_id"`
	StoreID   *int64       `json:"store_id,omitempty"`
	Post      *PostSummary `json:"post,omitempty"`
	Type      RoomType     `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// HasMember 檢查用戶是否為聊天室成員.
func (r *Room) HasMember(userID int64) bool {
	return r.User1ID == userID || r.User2ID == userID
}

// PeerOf 取得對方的用戶 ID.
func (r *Room) PeerOf(userID int64) int64 {
	if r.User1ID == userID {
		return r.User2ID
	}
	return r.User1ID
}

// User 用戶.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}
