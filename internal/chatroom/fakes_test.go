package chatroom

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"udg-chat/internal/message"
)

const (
	myID       int64 = 1
	peerID     int64 = 2
	testRoomID int64 = 10
)

var errNetwork = errors.New("network unreachable")

var baseTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return baseTime.Add(time.Duration(sec) * time.Second)
}

type fakeSession struct{ id int64 }

func (s fakeSession) Token() string { return "tok" }
func (s fakeSession) UserID() int64 { return s.id }

type fakeRemote struct {
	mu sync.Mutex

	room        message.Room
	roomErr     error
	messages    []message.Message
	messagesErr error

	sendFn   func(req message.SendRequest) (message.Message, error)
	sendReqs []message.SendRequest

	updateErr  error
	deleteErr  error
	markReads  int
	targetErr  error
	uploadErr  error
	uploaded   []string
	networkOps int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		room: message.Room{ID: testRoomID, User1ID: myID, User2ID: peerID, Type: message.RoomTypeSale},
	}
}

func (f *fakeRemote) count() {
	f.mu.Lock()
	f.networkOps++
	f.mu.Unlock()
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networkOps
}

func (f *fakeRemote) GetRoom(ctx context.Context, roomID int64, token string) (message.Room, error) {
	f.count()
	if f.roomErr != nil {
		return message.Room{}, f.roomErr
	}
	return f.room, nil
}

func (f *fakeRemote) GetMessages(ctx context.Context, roomID int64, token string) ([]message.Message, error) {
	f.count()
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	return append([]message.Message(nil), f.messages...), nil
}

func (f *fakeRemote) SendMessage(ctx context.Context, roomID int64, req message.SendRequest, token string) (message.Message, error) {
	f.count()
	f.mu.Lock()
	f.sendReqs = append(f.sendReqs, req)
	fn := f.sendFn
	f.mu.Unlock()

	if fn == nil {
		return message.Message{}, errNetwork
	}
	return fn(req)
}

func (f *fakeRemote) UpdateMessage(ctx context.Context, roomID, messageID int64, content, token string) (message.Message, error) {
	f.count()
	if f.updateErr != nil {
		return message.Message{}, f.updateErr
	}
	return message.Message{ID: messageID, ChatRoomID: roomID, Content: content, IsEdited: true, UpdatedAt: at(500)}, nil
}

func (f *fakeRemote) DeleteMessage(ctx context.Context, roomID, messageID int64, token string) error {
	f.count()
	return f.deleteErr
}

func (f *fakeRemote) MarkRead(ctx context.Context, roomID int64, token string) error {
	f.count()
	f.mu.Lock()
	f.markReads++
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markReads
}

func (f *fakeRemote) RequestUploadTarget(ctx context.Context, filename, contentType, token string) (message.UploadTarget, error) {
	f.count()
	if f.targetErr != nil {
		return message.UploadTarget{}, f.targetErr
	}
	return message.UploadTarget{UploadURL: "http://up/" + filename, FileURL: "http://files/" + filename}, nil
}

func (f *fakeRemote) Upload(ctx context.Context, uploadURL, contentType string, body io.Reader) error {
	f.count()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	raw, _ := io.ReadAll(body)
	f.mu.Lock()
	f.uploaded = append(f.uploaded, string(raw))
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) setSend(fn func(req message.SendRequest) (message.Message, error)) {
	f.mu.Lock()
	f.sendFn = fn
	f.mu.Unlock()
}

func (f *fakeRemote) requests() []message.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message.SendRequest(nil), f.sendReqs...)
}

type fakeSignaler struct {
	mu     sync.Mutex
	joins  int
	leaves int
	typing chan bool
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{typing: make(chan bool, 16)}
}

func (s *fakeSignaler) JoinRoom(roomID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins++
	return nil
}

func (s *fakeSignaler) LeaveRoom(roomID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves++
	return nil
}

func (s *fakeSignaler) Typing(roomID int64, typing bool) error {
	s.typing <- typing
	return nil
}

// serverEcho 模擬伺服器回傳：指定 id 與時間，帶回 temp_id
func serverEcho(id int64, created time.Time) func(req message.SendRequest) (message.Message, error) {
	return func(req message.SendRequest) (message.Message, error) {
		return message.Message{
			ID:          id,
			TempID:      req.TempID,
			ChatRoomID:  testRoomID,
			SenderID:    myID,
			Content:     req.Content,
			MessageType: req.MessageType,
			FileURL:     req.FileURL,
			FileName:    req.FileName,
			CreatedAt:   created,
			UpdatedAt:   created,
		}, nil
	}
}
