package push

import (
	"encoding/json"
	"fmt"
)

// CommandType 客戶端送往伺服器的指令
type CommandType string

// 指令類型常數
const (
	CommandJoinRoom    CommandType = "join_room"
	CommandLeaveRoom   CommandType = "leave_room"
	CommandTypingStart CommandType = "typing_start"
	CommandTypingStop  CommandType = "typing_stop"
)

// Command 客戶端指令 frame
type Command struct {
	Type CommandType `json:"type"`
	Data CommandData `json:"data"`
}

// CommandData 指令內容
type CommandData struct {
	ChatRoomID int64  `json:"chat_room_id"`
	Token      string `json:"token,omitempty"`
}

// DecodeCommand 解析客戶端指令（開發伺服器使用）
func DecodeCommand(raw []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch cmd.Type {
	case CommandJoinRoom, CommandLeaveRoom, CommandTypingStart, CommandTypingStop:
	default:
		return Command{}, fmt.Errorf("%w: 未知指令 %q", ErrMalformedEvent, cmd.Type)
	}
	if cmd.Data.ChatRoomID <= 0 {
		return Command{}, fmt.Errorf("%w: %s 缺少 chat_room_id", ErrMalformedEvent, cmd.Type)
	}
	return cmd, nil
}
