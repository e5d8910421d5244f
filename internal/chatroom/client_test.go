package chatroom

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"
	"testing"
	"time"

	"udg-chat/internal/message"
	"udg-chat/internal/push"

	"github.com/jonboulle/clockwork"
)

func newTestClient(t *testing.T, remote *fakeRemote, opts ...Option) (*Client, *fakeSignaler) {
	t.Helper()
	sig := newFakeSignaler()
	c := New(testRoomID, fakeSession{id: myID}, remote, sig, opts...)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, sig
}

func countID(msgs []message.Message, id int64) int {
	n := 0
	for _, m := range msgs {
		if m.ID == id {
			n++
		}
	}
	return n
}

func ids(msgs []message.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func assertSorted(t *testing.T, msgs []message.Message) {
	t.Helper()
	sorted := slices.IsSortedFunc(msgs, func(a, b message.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if !sorted {
		t.Errorf("訊息未依 createdAt 排序: %v", ids(msgs))
	}
}

func expectTyping(t *testing.T, sig *fakeSignaler, want bool) {
	t.Helper()
	select {
	case got := <-sig.typing:
		if got != want {
			t.Errorf("期望 typing=%v，實際為 %v", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("等待 typing=%v 逾時", want)
	}
}

func expectNoTyping(t *testing.T, sig *fakeSignaler) {
	t.Helper()
	select {
	case got := <-sig.typing:
		t.Errorf("不應該送出 typing，實際送出 %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoadInitial(t *testing.T) {
	remote := newFakeRemote()
	remote.messages = []message.Message{
		{ID: 3, ChatRoomID: testRoomID, SenderID: peerID, Content: "c", CreatedAt: at(30)},
		{ID: 1, ChatRoomID: testRoomID, SenderID: myID, Content: "a", CreatedAt: at(10)},
		{ID: 2, ChatRoomID: testRoomID, SenderID: peerID, Content: "b", CreatedAt: at(20)},
	}
	c, sig := newTestClient(t, remote)

	if err := c.LoadInitial(context.Background()); err != nil {
		t.Fatalf("載入失敗: %v", err)
	}

	msgs := c.Messages()
	if got := ids(msgs); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Errorf("期望順序 [1 2 3]，實際為 %v", got)
	}
	if r, ok := c.Room(); !ok || r.ID != testRoomID {
		t.Errorf("聊天室資訊錯誤: %+v", r)
	}
	if remote.reads() != 1 {
		t.Errorf("載入後應該標記已讀一次，實際為 %d", remote.reads())
	}
	if sig.joins != 1 {
		t.Errorf("載入後應該加入推播聊天室，實際為 %d", sig.joins)
	}
}

func TestLoadInitialFailure(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*fakeRemote)
	}{
		{"聊天室不存在", func(f *fakeRemote) { f.roomErr = errNetwork }},
		{"歷史訊息失敗", func(f *fakeRemote) { f.messagesErr = errNetwork }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			remote := newFakeRemote()
			tc.setup(remote)
			c, sig := newTestClient(t, remote)

			err := c.LoadInitial(context.Background())
			if !errors.Is(err, ErrRoomUnavailable) || !errors.Is(err, errNetwork) {
				t.Fatalf("期望 ErrRoomUnavailable 包裝原始錯誤，實際為 %v", err)
			}
			if len(c.Messages()) != 0 {
				t.Error("載入失敗不應該有訊息")
			}
			if _, ok := c.Room(); ok {
				t.Error("載入失敗不應該有聊天室資訊")
			}
			if sig.joins != 0 || remote.reads() != 0 {
				t.Error("載入失敗不應該加入聊天室或標記已讀")
			}
		})
	}
}

func TestSendOptimisticThenConfirm(t *testing.T) {
	remote := newFakeRemote()
	fc := clockwork.NewFakeClockAt(at(100))
	c, _ := newTestClient(t, remote, WithClock(fc))

	var during []message.Message
	remote.setSend(func(req message.SendRequest) (message.Message, error) {
		during = c.Messages()
		return serverEcho(42, at(101))(req)
	})

	got, err := c.Send(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("發送失敗: %v", err)
	}

	tempID := remote.requests()[0].TempID
	if len(during) != 1 {
		t.Fatalf("等待回應時應該已有一則暫存訊息，實際為 %d", len(during))
	}
	if p := during[0]; p.ID != 0 || p.Status != message.StatusPending || p.TempID != tempID || p.SenderID != myID {
		t.Errorf("暫存訊息狀態錯誤: %+v", p)
	}
	if !during[0].CreatedAt.Equal(at(100)) {
		t.Errorf("暫存訊息時間應該使用本機時鐘: %v", during[0].CreatedAt)
	}

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("期望一則訊息，實際為 %d", len(msgs))
	}
	m := msgs[0]
	if m.ID != 42 || m.Status != message.StatusSent || m.Content != "hello" || m.TempID != tempID {
		t.Errorf("確認後訊息錯誤: %+v", m)
	}
	if !m.CreatedAt.Equal(at(101)) {
		t.Errorf("應該採用伺服器時間: %v", m.CreatedAt)
	}
	if got.ID != 42 {
		t.Errorf("Send 回傳錯誤: %+v", got)
	}
	if c.Sending() {
		t.Error("完成後不應該仍在發送中")
	}
}

func TestSendNoDuplicateWithEcho(t *testing.T) {
	testCases := []struct {
		name         string
		pushFirst    bool
		pushWithTemp bool
	}{
		{"推播先到且帶 temp_id", true, true},
		{"推播先到且沒有 temp_id", true, false},
		{"回應先到", false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			remote := newFakeRemote()
			c, _ := newTestClient(t, remote)
			ctx := context.Background()

			echo := func(req message.SendRequest) push.Event {
				msg, _ := serverEcho(42, at(5))(req)
				if !tc.pushWithTemp {
					msg.TempID = ""
				}
				return push.NewMessage{Message: msg}
			}

			remote.setSend(func(req message.SendRequest) (message.Message, error) {
				if tc.pushFirst {
					c.ReceivePush(ctx, echo(req))
				}
				return serverEcho(42, at(5))(req)
			})

			if _, err := c.Send(ctx, "hello", nil); err != nil {
				t.Fatal(err)
			}
			if !tc.pushFirst {
				c.ReceivePush(ctx, echo(remote.requests()[0]))
			}

			msgs := c.Messages()
			if len(msgs) != 1 || countID(msgs, 42) != 1 {
				t.Fatalf("期望只有一則 id=42 的訊息，實際為 %+v", msgs)
			}
			if msgs[0].Status != message.StatusSent {
				t.Errorf("期望狀態 sent，實際為 %s", msgs[0].Status)
			}
			if remote.reads() != 0 {
				t.Error("自己的訊息不應該觸發已讀")
			}
		})
	}
}

func TestSendEchoThenNetworkError(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestClient(t, remote)
	ctx := context.Background()

	remote.setSend(func(req message.SendRequest) (message.Message, error) {
		msg, _ := serverEcho(42, at(5))(req)
		c.ReceivePush(ctx, push.NewMessage{Message: msg})
		return message.Message{}, errNetwork
	})

	sent, err := c.Send(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("推播已確認時不應該回傳錯誤，實際為 %v", err)
	}
	if sent.ID != 42 || sent.Status != message.StatusSent {
		t.Errorf("期望 id=42 且狀態 sent，實際為 %+v", sent)
	}

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].ID != 42 || msgs[0].Status != message.StatusSent || msgs[0].Error != "" {
		t.Fatalf("期望只有一則已送出的訊息，實際為 %+v", msgs)
	}
}

func TestSendKeepsPushUpdatesAfterEcho(t *testing.T) {
	testCases := []struct {
		name  string
		after push.Event
		check func(t *testing.T, m message.Message)
	}{
		{
			name:  "已讀",
			after: push.Read{RoomID: testRoomID, UserID: peerID, ReadAt: at(6)},
			check: func(t *testing.T, m message.Message) {
				if !m.IsRead {
					t.Error("已讀狀態被晚到的回應覆蓋")
				}
			},
		},
		{
			name:  "刪除",
			after: push.MessageDeleted{RoomID: testRoomID, MessageID: 42, UserID: myID, DeletedAt: at(6)},
			check: func(t *testing.T, m message.Message) {
				if !m.IsDeleted || m.Content != message.DeletedPlaceholder {
					t.Errorf("已刪除的訊息被還原: %+v", m)
				}
			},
		},
		{
			name: "編輯",
			after: push.MessageUpdated{Message: message.Message{
				ID: 42, ChatRoomID: testRoomID, SenderID: myID, Content: "edited",
				MessageType: message.MessageTypeText, IsEdited: true, UpdatedAt: at(6),
			}},
			check: func(t *testing.T, m message.Message) {
				if !m.IsEdited || m.Content != "edited" {
					t.Errorf("編輯內容被覆蓋: %+v", m)
				}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			remote := newFakeRemote()
			c, _ := newTestClient(t, remote)
			ctx := context.Background()

			remote.setSend(func(req message.SendRequest) (message.Message, error) {
				msg, _ := serverEcho(42, at(5))(req)
				c.ReceivePush(ctx, push.NewMessage{Message: msg})
				c.ReceivePush(ctx, tc.after)
				return serverEcho(42, at(5))(req)
			})

			sent, err := c.Send(ctx, "hello", nil)
			if err != nil {
				t.Fatal(err)
			}
			if sent.Status != message.StatusSent {
				t.Errorf("期望狀態 sent，實際為 %s", sent.Status)
			}

			msgs := c.Messages()
			if len(msgs) != 1 || msgs[0].ID != 42 {
				t.Fatalf("期望只有一則 id=42 的訊息，實際為 %+v", msgs)
			}
			tc.check(t, msgs[0])
			tc.check(t, sent)
		})
	}
}

func TestOrderingAcrossSources(t *testing.T) {
	remote := newFakeRemote()
	remote.messages = []message.Message{
		{ID: 3, ChatRoomID: testRoomID, SenderID: peerID, CreatedAt: at(30)},
		{ID: 1, ChatRoomID: testRoomID, SenderID: peerID, CreatedAt: at(10)},
	}
	fc := clockwork.NewFakeClockAt(at(100))
	c, _ := newTestClient(t, remote, WithClock(fc))
	ctx := context.Background()

	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}
	assertSorted(t, c.Messages())

	c.ReceivePush(ctx, push.NewMessage{Message: message.Message{ID: 2, ChatRoomID: testRoomID, SenderID: peerID, CreatedAt: at(20)}})
	assertSorted(t, c.Messages())

	// 伺服器時間比本機早
	remote.setSend(serverEcho(4, at(5)))
	if _, err := c.Send(ctx, "early", nil); err != nil {
		t.Fatal(err)
	}

	msgs := c.Messages()
	assertSorted(t, msgs)
	if got := ids(msgs); !slices.Equal(got, []int64{4, 1, 2, 3}) {
		t.Errorf("期望順序 [4 1 2 3]，實際為 %v", got)
	}
}

func TestSendFailureRetryDiscard(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestClient(t, remote)
	ctx := context.Background()

	if _, err := c.Send(ctx, "x", nil); !errors.Is(err, errNetwork) {
		t.Fatalf("期望網路錯誤，實際為 %v", err)
	}

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("失敗後應該保留一則訊息，實際為 %d", len(msgs))
	}
	failed := msgs[0]
	if failed.Status != message.StatusFailed || failed.Error == "" {
		t.Errorf("期望 failed 且有錯誤訊息，實際為 %+v", failed)
	}

	if _, err := c.Retry(ctx, failed.TempID); !errors.Is(err, errNetwork) {
		t.Fatalf("重送應該再次失敗，實際為 %v", err)
	}
	reqs := remote.requests()
	if len(reqs) != 2 || reqs[0] != reqs[1] {
		t.Errorf("重送內容應該完全相同: %+v", reqs)
	}
	if msgs := c.Messages(); len(msgs) != 1 || msgs[0].Status != message.StatusFailed {
		t.Errorf("重送失敗後應該仍是一則 failed 訊息: %+v", msgs)
	}

	before := remote.calls()
	if err := c.Discard(failed.TempID); err != nil {
		t.Fatalf("捨棄失敗: %v", err)
	}
	if remote.calls() != before {
		t.Errorf("捨棄不應該有網路呼叫，多了 %d 次", remote.calls()-before)
	}
	if len(c.Messages()) != 0 {
		t.Error("捨棄後列表應該為空")
	}
	if err := c.Discard(failed.TempID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("重複捨棄應該回傳 ErrMessageNotFound，實際為 %v", err)
	}
}

func TestRetrySuccess(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestClient(t, remote)
	ctx := context.Background()

	_, _ = c.Send(ctx, "retry me", nil)
	tempID := c.Messages()[0].TempID

	remote.setSend(serverEcho(7, at(1)))
	got, err := c.Retry(ctx, tempID)
	if err != nil {
		t.Fatalf("重送失敗: %v", err)
	}
	if got.ID != 7 || got.Status != message.StatusSent || got.Error != "" {
		t.Errorf("重送結果錯誤: %+v", got)
	}
	if msgs := c.Messages(); len(msgs) != 1 || msgs[0].ID != 7 {
		t.Errorf("重送後應該只有一則訊息: %+v", msgs)
	}

	if _, err := c.Retry(ctx, tempID); !errors.Is(err, ErrNotFailed) {
		t.Errorf("已送出的訊息不能重送，實際為 %v", err)
	}
	if err := c.Discard(tempID); !errors.Is(err, ErrNotFailed) {
		t.Errorf("已送出的訊息不能捨棄，實際為 %v", err)
	}
}

func TestFailedMessageSurvivesReload(t *testing.T) {
	remote := newFakeRemote()
	remote.messages = []message.Message{{ID: 1, ChatRoomID: testRoomID, SenderID: peerID, CreatedAt: at(1)}}
	c, _ := newTestClient(t, remote)
	ctx := context.Background()

	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}
	_, _ = c.Send(ctx, "lost", nil)
	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}

	msgs := c.Messages()
	if len(msgs) != 2 || msgs[1].Status != message.StatusFailed {
		t.Errorf("重新載入後應該保留失敗的訊息: %+v", msgs)
	}
}

func TestSoftDeleteIdempotent(t *testing.T) {
	remote := newFakeRemote()
	remote.messages = []message.Message{{ID: 7, ChatRoomID: testRoomID, SenderID: myID, Content: "24K 반지", CreatedAt: at(1)}}
	fc := clockwork.NewFakeClockAt(at(50))
	c, _ := newTestClient(t, remote, WithClock(fc))
	ctx := context.Background()

	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, 7); err != nil {
		t.Fatalf("刪除失敗: %v", err)
	}
	afterDelete := c.Messages()[0]

	c.ReceivePush(ctx, push.MessageDeleted{RoomID: testRoomID, MessageID: 7, UserID: myID, DeletedAt: at(999)})

	msgs := c.Messages()
	if len(msgs) != 1 {
		t.Fatalf("刪除不應該移除訊息，實際為 %d", len(msgs))
	}
	m := msgs[0]
	if !m.IsDeleted || m.Content != message.DeletedPlaceholder {
		t.Errorf("刪除後狀態錯誤: %+v", m)
	}
	if !m.UpdatedAt.Equal(afterDelete.UpdatedAt) {
		t.Errorf("重複刪除不應該再次修改: %v != %v", m.UpdatedAt, afterDelete.UpdatedAt)
	}

	if _, err := c.Edit(ctx, 7, "restore"); !errors.Is(err, ErrMessageDeleted) {
		t.Errorf("已刪除的訊息不能編輯，實際為 %v", err)
	}
	c.ReceivePush(ctx, push.MessageUpdated{Message: message.Message{ID: 7, ChatRoomID: testRoomID, Content: "restore"}})
	if got := c.Messages()[0].Content; got != message.DeletedPlaceholder {
		t.Errorf("已刪除的訊息不應該被編輯推播還原: %q", got)
	}
}

func TestDeletedPlaceholderOption(t *testing.T) {
	remote := newFakeRemote()
	remote.messages = []message.Message{{ID: 1, ChatRoomID: testRoomID, SenderID: peerID, Content: "x", CreatedAt: at(1)}}
	c, _ := newTestClient(t, remote, WithDeletedPlaceholder("(deleted)"))
	ctx := context.Background()

	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}
	c.ReceivePush(ctx, push.MessageDeleted{RoomID: testRoomID, MessageID: 1})
	if got := c.Messages()[0].Content; got != "(deleted)" {
		t.Errorf("期望自訂刪除文字，實際為 %q", got)
	}
}

func TestEditInPlace(t *testing.T) {
	remote := newFakeRemote()
	remote.messages = []message.Message{
		{ID: 1, ChatRoomID: testRoomID, SenderID: myID, Content: "old", CreatedAt: at(1)},
		{ID: 2, ChatRoomID: testRoomID, SenderID: peerID, Content: "reply", CreatedAt: at(2)},
	}
	c, _ := newTestClient(t, remote)
	ctx := context.Background()

	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := c.Edit(ctx, 1, "new")
	if err != nil {
		t.Fatalf("編輯失敗: %v", err)
	}
	if got.Content != "new" || !got.IsEdited {
		t.Errorf("編輯結果錯誤: %+v", got)
	}
	msgs := c.Messages()
	if !slices.Equal(ids(msgs), []int64{1, 2}) || msgs[0].Content != "new" || !msgs[0].CreatedAt.Equal(at(1)) {
		t.Errorf("編輯不應該改變順序或時間: %+v", msgs)
	}

	if _, err := c.Edit(ctx, 99, "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("期望 ErrMessageNotFound，實際為 %v", err)
	}

	remote.updateErr = errNetwork
	if _, err := c.Edit(ctx, 1, "newer"); !errors.Is(err, errNetwork) {
		t.Errorf("期望網路錯誤，實際為 %v", err)
	}
	if c.Messages()[0].Content != "new" {
		t.Error("編輯失敗不應該修改內容")
	}

	remote.deleteErr = errNetwork
	if err := c.Delete(ctx, 2); !errors.Is(err, errNetwork) {
		t.Errorf("期望網路錯誤，實際為 %v", err)
	}
	if c.Messages()[1].IsDeleted {
		t.Error("刪除失敗不應該修改訊息")
	}
}

func TestTypingDebounce(t *testing.T) {
	fc := clockwork.NewFakeClockAt(baseTime)
	c, sig := newTestClient(t, newFakeRemote(), WithClock(fc))

	// 500ms 內輸入三個字
	c.NotifyTyping(true)
	fc.Advance(200 * time.Millisecond)
	c.NotifyTyping(true)
	fc.Advance(200 * time.Millisecond)
	c.NotifyTyping(true)

	expectTyping(t, sig, true)
	expectNoTyping(t, sig)

	fc.Advance(2*time.Second - time.Millisecond)
	expectNoTyping(t, sig)

	fc.Advance(time.Millisecond)
	expectTyping(t, sig, false)
	expectNoTyping(t, sig)
}

func TestTypingStopWhenCleared(t *testing.T) {
	fc := clockwork.NewFakeClockAt(baseTime)
	c, sig := newTestClient(t, newFakeRemote(), WithClock(fc))

	c.NotifyTyping(true)
	c.NotifyTyping(false)
	expectTyping(t, sig, true)
	expectTyping(t, sig, false)

	fc.Advance(5 * time.Second)
	expectNoTyping(t, sig)

	// 清空後再次輸入會重新送出 start
	c.NotifyTyping(true)
	expectTyping(t, sig, true)
}

func TestTypingDelayOption(t *testing.T) {
	fc := clockwork.NewFakeClockAt(baseTime)
	c, sig := newTestClient(t, newFakeRemote(), WithClock(fc), WithTypingDelay(500*time.Millisecond))

	c.NotifyTyping(true)
	expectTyping(t, sig, true)
	fc.Advance(500 * time.Millisecond)
	expectTyping(t, sig, false)
}

func TestCrossRoomIsolation(t *testing.T) {
	remote := newFakeRemote()
	remote.messages = []message.Message{{ID: 1, ChatRoomID: testRoomID, SenderID: myID, Content: "mine", CreatedAt: at(1)}}
	c, _ := newTestClient(t, remote)
	ctx := context.Background()

	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}
	before := c.Messages()
	reads := remote.reads()

	const otherRoom int64 = 99
	events := []push.Event{
		push.NewMessage{Message: message.Message{ID: 50, ChatRoomID: otherRoom, SenderID: peerID, Content: "elsewhere", CreatedAt: at(2)}},
		push.Read{RoomID: otherRoom, UserID: peerID},
		push.TypingStart{RoomID: otherRoom, UserID: peerID},
		push.MessageUpdated{Message: message.Message{ID: 1, ChatRoomID: otherRoom, Content: "hijack"}},
		push.MessageDeleted{RoomID: otherRoom, MessageID: 1},
	}
	for _, ev := range events {
		c.ReceivePush(ctx, ev)
	}

	after := c.Messages()
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("其他聊天室的事件不應該改變列表: %+v", after)
	}
	if c.PeerTyping() {
		t.Error("其他聊天室的輸入中不應該影響本聊天室")
	}
	if remote.reads() != reads {
		t.Error("其他聊天室的訊息不應該觸發已讀")
	}
}

func TestReadReceipt(t *testing.T) {
	remote := newFakeRemote()
	remote.messages = []message.Message{
		{ID: 1, ChatRoomID: testRoomID, SenderID: myID, CreatedAt: at(1)},
		{ID: 2, ChatRoomID: testRoomID, SenderID: peerID, CreatedAt: at(2)},
		{ID: 3, ChatRoomID: testRoomID, SenderID: myID, CreatedAt: at(3)},
	}
	c, _ := newTestClient(t, remote)
	ctx := context.Background()
	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}

	// 自己的已讀事件不影響
	c.ReceivePush(ctx, push.Read{RoomID: testRoomID, UserID: myID})
	for _, m := range c.Messages() {
		if m.IsRead {
			t.Fatalf("自己的已讀事件不應該標記訊息: %+v", m)
		}
	}

	// 發送失敗的暫存訊息沒有伺服器 id，對方讀不到
	if _, err := c.Send(ctx, "unsent", nil); err == nil {
		t.Fatal("期望發送失敗")
	}

	c.ReceivePush(ctx, push.Read{RoomID: testRoomID, UserID: peerID})
	msgs := c.Messages()
	if len(msgs) != 4 {
		t.Fatalf("期望 4 則訊息，實際為 %+v", msgs)
	}
	for _, m := range msgs {
		if wantRead := m.SenderID == myID && m.ID != 0; m.IsRead != wantRead {
			t.Errorf("訊息 %d (%s) 已讀狀態錯誤: %v", m.ID, m.TempID, m.IsRead)
		}
	}
}

func TestPeerTyping(t *testing.T) {
	c, _ := newTestClient(t, newFakeRemote())
	ctx := context.Background()

	c.ReceivePush(ctx, push.TypingStart{RoomID: testRoomID, UserID: myID})
	if c.PeerTyping() {
		t.Error("自己的輸入中不應該顯示")
	}
	c.ReceivePush(ctx, push.TypingStart{RoomID: testRoomID, UserID: peerID})
	if !c.PeerTyping() {
		t.Error("對方輸入中應該顯示")
	}
	c.ReceivePush(ctx, push.TypingStop{RoomID: testRoomID, UserID: peerID})
	if c.PeerTyping() {
		t.Error("對方停止輸入後不應該顯示")
	}
}

func TestIncomingMessageMarksRead(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestClient(t, remote)
	ctx := context.Background()

	ev := push.NewMessage{Message: message.Message{ID: 9, ChatRoomID: testRoomID, SenderID: peerID, Content: "시세?", CreatedAt: at(9)}}
	c.ReceivePush(ctx, ev)
	if remote.reads() != 1 {
		t.Errorf("對方訊息應該觸發已讀，實際為 %d", remote.reads())
	}

	c.ReceivePush(ctx, ev)
	if remote.reads() != 1 {
		t.Error("重複推播不應該再次觸發已讀")
	}
	if n := len(c.Messages()); n != 1 {
		t.Errorf("重複推播不應該新增訊息，實際為 %d", n)
	}
}

func TestUploadFailureShowsNoMessage(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*fakeRemote)
	}{
		{"取得上傳位置失敗", func(f *fakeRemote) { f.targetErr = errNetwork }},
		{"上傳失敗", func(f *fakeRemote) { f.uploadErr = errNetwork }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			remote := newFakeRemote()
			tc.setup(remote)
			c, _ := newTestClient(t, remote)

			var shown int
			remote.setSend(func(req message.SendRequest) (message.Message, error) {
				shown++
				return serverEcho(1, at(1))(req)
			})

			att := &Attachment{FileName: "ring.png", ContentType: "image/png", Body: strings.NewReader("PNG")}
			_, err := c.Send(context.Background(), "", att)
			if !errors.Is(err, ErrUploadFailed) {
				t.Fatalf("期望 ErrUploadFailed，實際為 %v", err)
			}
			if len(c.Messages()) != 0 || shown != 0 {
				t.Error("上傳失敗不應該產生訊息")
			}
			if c.Sending() {
				t.Error("上傳失敗後應該可以再次發送")
			}
		})
	}
}

func TestSendAttachment(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestClient(t, remote)
	remote.setSend(serverEcho(5, at(5)))

	att := &Attachment{FileName: "receipt.pdf", ContentType: "application/pdf", Body: strings.NewReader("PDF")}
	got, err := c.Send(context.Background(), "", att)
	if err != nil {
		t.Fatalf("發送附件失敗: %v", err)
	}

	req := remote.requests()[0]
	if req.MessageType != message.MessageTypeFile || req.FileURL != "http://files/receipt.pdf" || req.FileName != "receipt.pdf" {
		t.Errorf("發送請求錯誤: %+v", req)
	}
	if got.FileURL != req.FileURL || remote.uploaded[0] != "PDF" {
		t.Errorf("附件內容錯誤: %+v", got)
	}

	if _, err := c.Send(context.Background(), "", &Attachment{FileName: "../x.png", ContentType: "image/png", Body: strings.NewReader("")}); err == nil {
		t.Error("非法檔名應該被拒絕")
	}
}

func TestSendValidation(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestClient(t, remote, WithMaxMessageLength(5))

	if _, err := c.Send(context.Background(), "   ", nil); !errors.Is(err, message.ErrEmptyContent) {
		t.Errorf("期望 ErrEmptyContent，實際為 %v", err)
	}
	if _, err := c.Send(context.Background(), "too long", nil); err == nil {
		t.Error("超過長度應該失敗")
	}
	if len(c.Messages()) != 0 || len(remote.requests()) != 0 {
		t.Error("驗證失敗不應該產生訊息或網路呼叫")
	}
}

func TestSendInFlight(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestClient(t, remote)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	remote.setSend(func(req message.SendRequest) (message.Message, error) {
		close(entered)
		<-release
		return serverEcho(1, at(1))(req)
	})

	done := make(chan error, 1)
	go func() {
		_, err := c.Send(ctx, "first", nil)
		done <- err
	}()

	<-entered
	if !c.Sending() {
		t.Error("發送中 Sending() 應該為 true")
	}
	if _, err := c.Send(ctx, "second", nil); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("期望 ErrSendInFlight，實際為 %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("第一則發送失敗: %v", err)
	}
	if c.Sending() {
		t.Error("完成後 Sending() 應該為 false")
	}
	if n := len(c.Messages()); n != 1 {
		t.Errorf("期望一則訊息，實際為 %d", n)
	}
}

func TestCloseGuard(t *testing.T) {
	remote := newFakeRemote()
	c, sig := newTestClient(t, remote)
	ctx := context.Background()

	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}
	c.NotifyTyping(true)
	expectTyping(t, sig, true)

	remote.setSend(func(req message.SendRequest) (message.Message, error) {
		if err := c.Close(ctx); err != nil {
			t.Errorf("關閉失敗: %v", err)
		}
		return serverEcho(1, at(1))(req)
	})
	if _, err := c.Send(ctx, "bye", nil); err != nil {
		t.Fatalf("關閉後回應仍應回傳結果: %v", err)
	}

	expectTyping(t, sig, false)
	if sig.leaves != 1 {
		t.Errorf("關閉時應該離開推播聊天室，實際為 %d", sig.leaves)
	}

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].Status != message.StatusPending || msgs[0].ID != 0 {
		t.Errorf("關閉後到達的回應不應該改變狀態: %+v", msgs)
	}

	c.ReceivePush(ctx, push.TypingStart{RoomID: testRoomID, UserID: peerID})
	if c.PeerTyping() {
		t.Error("關閉後推播不應該改變狀態")
	}
	if _, err := c.Send(ctx, "again", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("關閉後發送應該回傳 ErrClosed，實際為 %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Errorf("重複關閉不應該失敗: %v", err)
	}
}

func TestRefreshRoom(t *testing.T) {
	remote := newFakeRemote()
	c, _ := newTestClient(t, remote)
	ctx := context.Background()

	if err := c.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}
	remote.room.Post = &message.PostSummary{ID: 3, Title: "순금 1돈", TradeStatus: "COMPLETED"}

	r, err := c.RefreshRoom(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Room(); got.Post == nil || got.Post.TradeStatus != "COMPLETED" || r.Post.ID != 3 {
		t.Errorf("重新取得聊天室失敗: %+v", got)
	}
}

func TestRunDispatchesEvents(t *testing.T) {
	c, _ := newTestClient(t, newFakeRemote())

	events := make(chan push.Event, 2)
	events <- push.TypingStart{RoomID: testRoomID, UserID: peerID}
	close(events)

	if err := c.Run(context.Background(), events); err != nil {
		t.Fatalf("Run 應該在 channel 關閉後正常結束: %v", err)
	}
	if !c.PeerTyping() {
		t.Error("Run 應該套用事件")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx, make(chan push.Event)); !errors.Is(err, context.Canceled) {
		t.Errorf("期望 context.Canceled，實際為 %v", err)
	}
}

func TestChangesNotification(t *testing.T) {
	c, _ := newTestClient(t, newFakeRemote())

	c.ReceivePush(context.Background(), push.TypingStart{RoomID: testRoomID, UserID: peerID})
	select {
	case <-c.Changes():
	case <-time.After(time.Second):
		t.Fatal("狀態改變應該送出通知")
	}
}

func TestTempIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^temp_\d+_[0-9a-f]{9}$`)
	now := time.UnixMilli(1767225600123)

	a, b := newTempID(now), newTempID(now)
	if !pattern.MatchString(a) {
		t.Errorf("temp id 格式錯誤: %s", a)
	}
	if !strings.HasPrefix(a, "temp_1767225600123_") {
		t.Errorf("temp id 應該包含毫秒時間: %s", a)
	}
	if a == b {
		t.Error("同一毫秒產生的 temp id 不應該相同")
	}
}
