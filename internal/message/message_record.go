package message

// SendRequest 發送訊息請求.
type SendRequest struct {
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	FileURL     string      `json:"file_url,omitempty"`
	FileName    string      `json:"file_name,omitempty"`
	TempID      string      `json:"temp_id,omitempty"`
}

// UpdateRequest 編輯訊息請求.
type UpdateRequest struct {
	Content string `json:"content"`
}

// UploadTargetRequest 取得上傳位置請求.
type UploadTargetRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// UploadTarget 上傳位置，先把檔案 PUT 到 UploadURL，之後以 FileURL 引用.
type UploadTarget struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

// CreateRoomRequest 建立聊天室請求.
type CreateRoomRequest struct {
	PeerID  int64    `json:"peer_id"`
	Type    RoomType `json:"type"`
	PostID  *int64   `json:"post_id,omitempty"`
	StoreID *int64   `json:"store_id,omitempty"`
}

// SignupRequest 註冊請求.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nickname string `json:"nickname"`
}

// LoginRequest 登入請求.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult 登入/註冊結果.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
