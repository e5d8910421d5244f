package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"udg-chat/internal/chatroom"
	"udg-chat/internal/message"
)

// 畫面最多顯示的訊息數
const visibleMessages = 30

func formatRoomLine(room message.Room, me int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d [%s] 對象 #%d", room.ID, room.Type, room.PeerOf(me))
	if room.Post != nil {
		fmt.Fprintf(&b, " 貼文 #%d %s (%s)", room.Post.ID, room.Post.Title, room.Post.TradeStatus)
	}
	return b.String()
}

// formatMessage 單則訊息的一行顯示
func formatMessage(m message.Message, me int64) string {
	var b strings.Builder

	b.WriteString(m.CreatedAt.Local().Format("15:04"))
	b.WriteByte(' ')

	switch {
	case m.ID > 0:
		fmt.Fprintf(&b, "[%d] ", m.ID)
	case m.TempID != "":
		fmt.Fprintf(&b, "[%s] ", m.TempID)
	}

	if m.SenderID == me {
		b.WriteString("我: ")
	} else {
		fmt.Fprintf(&b, "#%d: ", m.SenderID)
	}

	switch {
	case m.IsDeleted:
		b.WriteString(m.Content)
	case m.MessageType == message.MessageTypeText:
		b.WriteString(m.Content)
	default:
		fmt.Fprintf(&b, "<%s %s> %s", strings.ToLower(string(m.MessageType)), m.FileName, m.FileURL)
	}

	if m.IsEdited && !m.IsDeleted {
		b.WriteString(" (已編輯)")
	}

	switch m.Status {
	case message.StatusPending:
		b.WriteString(" …傳送中")
	case message.StatusFailed:
		b.WriteString(" ✗ 傳送失敗")
		if m.Error != "" {
			fmt.Fprintf(&b, ": %s", m.Error)
		}
	default:
		if m.SenderID == me && m.IsRead {
			b.WriteString(" ✓✓")
		} else if m.SenderID == me {
			b.WriteString(" ✓")
		}
	}
	return b.String()
}

// roomView 重繪聊天室畫面，notice 會保留到下次重繪
type roomView struct {
	mu     sync.Mutex
	out    io.Writer
	userID int64
	last   string
}

type roomState interface {
	Messages() []message.Message
	Room() (message.Room, bool)
	PeerTyping() bool
	Sending() bool
}

var _ roomState = (*chatroom.Client)(nil)

func (v *roomView) render(state roomState) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var b strings.Builder
	b.WriteString("\033[H\033[2J")

	if room, ok := state.Room(); ok {
		b.WriteString(formatRoomLine(room, v.userID))
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat("─", 40))
	b.WriteByte('\n')

	msgs := state.Messages()
	if len(msgs) > visibleMessages {
		msgs = msgs[len(msgs)-visibleMessages:]
	}
	for _, m := range msgs {
		b.WriteString(formatMessage(m, v.userID))
		b.WriteByte('\n')
	}

	b.WriteString(strings.Repeat("─", 40))
	b.WriteByte('\n')
	if state.PeerTyping() {
		b.WriteString("對方正在輸入...\n")
	}
	if state.Sending() {
		b.WriteString("傳送中...\n")
	}
	if v.last != "" {
		fmt.Fprintf(&b, "! %s\n", v.last)
	}
	b.WriteString("> ")

	fmt.Fprint(v.out, b.String())
}

func (v *roomView) notice(msg string) {
	v.mu.Lock()
	v.last = msg
	v.mu.Unlock()
	fmt.Fprintf(v.out, "! %s\n> ", msg)
}
