package database

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"udg-chat/internal/message"
)

// MemoryStore 記憶體儲存，開發伺服器預設使用，重啟後資料消失.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int64]*UserRecord
	emails   map[string]int64
	rooms    map[int64]*message.Room
	messages map[int64][]*message.Message // roomID -> 依建立順序
	seq      map[string]int64
}

// NewMemoryStore 創建記憶體儲存.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]*UserRecord),
		emails:   make(map[string]int64),
		rooms:    make(map[int64]*message.Room),
		messages: make(map[int64][]*message.Message),
		seq:      make(map[string]int64),
	}
}

// NewMemoryRepositories 以記憶體儲存建立倉儲集合.
func NewMemoryRepositories() *Repositories {
	s := NewMemoryStore()
	return NewRepositories("memory", memoryUsers{s}, memoryRooms{s}, memoryMessages{s}, nil)
}

func (s *MemoryStore) nextID(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(ctx context.Context, user *UserRecord) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.emails[key]; exists {
		return ErrDuplicate
	}
	user.ID = s.nextID("users")
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	stored := *user
	s.users[user.ID] = &stored
	s.emails[key] = user.ID
	return nil
}

func (r memoryUsers) GetByID(ctx context.Context, id int64) (*UserRecord, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r memoryUsers) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.users[id]
	return &out, nil
}

type memoryRooms struct{ s *MemoryStore }

func (r memoryRooms) Create(ctx context.Context, room *message.Room) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	room.ID = s.nextID("chat_rooms")
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = room.CreatedAt
	stored := cloneRoom(*room)
	s.rooms[room.ID] = &stored
	return nil
}

func (r memoryRooms) GetByID(ctx context.Context, id int64) (*message.Room, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRoom(*room)
	return &out, nil
}

func (r memoryRooms) FindExisting(ctx context.Context, userA, userB int64, roomType message.RoomType, postID *int64) (*message.Room, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, room := range s.rooms {
		if room.Type != roomType || !room.HasMember(userA) || !room.HasMember(userB) {
			continue
		}
		if !samePost(room.Post, postID) {
			continue
		}
		out := cloneRoom(*room)
		return &out, nil
	}
	return nil, ErrNotFound
}

func (r memoryRooms) ListUserRooms(ctx context.Context, userID int64) ([]message.Room, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := []message.Room{}
	for _, room := range s.rooms {
		if room.HasMember(userID) {
			rooms = append(rooms, cloneRoom(*room))
		}
	}
	// 最近更新的在前
	slices.SortFunc(rooms, func(a, b message.Room) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return rooms, nil
}

func (r memoryRooms) UpdatePost(ctx context.Context, id int64, post *message.PostSummary) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[id]
	if !ok {
		return ErrNotFound
	}
	if post == nil {
		room.Post = nil
	} else {
		p := *post
		room.Post = &p
	}
	room.UpdatedAt = time.Now().UTC()
	return nil
}

type memoryMessages struct{ s *MemoryStore }

func (r memoryMessages) Create(ctx context.Context, msg *message.Message) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[msg.ChatRoomID]
	if !ok {
		return ErrNotFound
	}
	msg.ID = s.nextID("messages")
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.UpdatedAt = msg.CreatedAt
	stored := *msg
	s.messages[msg.ChatRoomID] = append(s.messages[msg.ChatRoomID], &stored)
	room.UpdatedAt = msg.CreatedAt
	return nil
}

func (r memoryMessages) find(roomID, id int64) *message.Message {
	for _, m := range r.s.messages[roomID] {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r memoryMessages) GetByID(ctx context.Context, roomID, id int64) (*message.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m := r.find(roomID, id)
	if m == nil {
		return nil, ErrNotFound
	}
	out := *m
	return &out, nil
}

func (r memoryMessages) ListByRoom(ctx context.Context, roomID int64) ([]message.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	msgs := make([]message.Message, 0, len(r.s.messages[roomID]))
	for _, m := range r.s.messages[roomID] {
		msgs = append(msgs, *m)
	}
	slices.SortStableFunc(msgs, func(a, b message.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return msgs, nil
}

func (r memoryMessages) UpdateContent(ctx context.Context, roomID, id int64, content string, at time.Time) (*message.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := r.find(roomID, id)
	if m == nil {
		return nil, ErrNotFound
	}
	m.Content = content
	m.IsEdited = true
	m.UpdatedAt = at
	out := *m
	return &out, nil
}

func (r memoryMessages) SoftDelete(ctx context.Context, roomID, id int64, placeholder string, at time.Time) (*message.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := r.find(roomID, id)
	if m == nil {
		return nil, ErrNotFound
	}
	m.SoftDelete(placeholder, at)
	out := *m
	return &out, nil
}

func (r memoryMessages) MarkRead(ctx context.Context, roomID, readerID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, m := range r.s.messages[roomID] {
		if m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func cloneRoom(room message.Room) message.Room {
	if room.Post != nil {
		p := *room.Post
		room.Post = &p
	}
	if room.StoreID != nil {
		id := *room.StoreID
		room.StoreID = &id
	}
	return room
}

func samePost(post *message.PostSummary, postID *int64) bool {
	if post == nil || postID == nil {
		return post == nil && postID == nil
	}
	return post.ID == *postID
}
