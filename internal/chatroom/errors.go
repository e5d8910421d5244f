package chatroom

import "errors"

var (
	// ErrRoomUnavailable 進入聊天室時取得資料失敗，畫面應該返回列表
	ErrRoomUnavailable = errors.New("chat room unavailable")
	// ErrSendInFlight 已經有一則訊息正在送出
	ErrSendInFlight = errors.New("another send is in flight")
	// ErrUploadFailed 附件上傳失敗，不會產生暫存訊息
	ErrUploadFailed = errors.New("attachment upload failed")
	// ErrMessageNotFound 本機列表中找不到訊息
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotFailed 只能對失敗的訊息重送或捨棄
	ErrNotFailed = errors.New("message is not in failed state")
	// ErrMessageDeleted 已刪除的訊息不能編輯
	ErrMessageDeleted = errors.New("message already deleted")
	// ErrClosed 聊天室已關閉
	ErrClosed = errors.New("chat room client closed")
)
