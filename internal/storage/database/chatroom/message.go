package chatroom

import (
	"context"
	"errors"
	"time"

	"udg-chat/internal/message"
	"udg-chat/internal/storage/database"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Message 訊息數據模型
type Message struct {
	ID        int64     `bson:"id"`
	RoomID    int64     `bson:"room_id"`
	SenderID  int64     `bson:"sender_id"`
	TempID    string    `bson:"temp_id,omitempty"`
	Content   string    `bson:"content"`
	Type      string    `bson:"type"`
	FileURL   string    `bson:"file_url,omitempty"`
	FileName  string    `bson:"file_name,omitempty"`
	IsRead    bool      `bson:"is_read"`
	IsEdited  bool      `bson:"is_edited"`
	IsDeleted bool      `bson:"is_deleted"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func fromMessage(m *message.Message) Message {
	return Message{
		ID:        m.ID,
		RoomID:    m.ChatRoomID,
		SenderID:  m.SenderID,
		TempID:    m.TempID,
		Content:   m.Content,
		Type:      string(m.MessageType),
		FileURL:   m.FileURL,
		FileName:  m.FileName,
		IsRead:    m.IsRead,
		IsEdited:  m.IsEdited,
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (d *Message) message() message.Message {
	return message.Message{
		ID:          d.ID,
		TempID:      d.TempID,
		ChatRoomID:  d.RoomID,
		SenderID:    d.SenderID,
		Content:     d.Content,
		MessageType: message.MessageType(d.Type),
		FileURL:     d.FileURL,
		FileName:    d.FileName,
		IsRead:      d.IsRead,
		IsEdited:    d.IsEdited,
		IsDeleted:   d.IsDeleted,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MessageStore 訊息存儲實作
type MessageStore struct {
	db         *mongo.Database
	collection *mongo.Collection
	rooms      *ChatRoomStore
}

// NewMessageStore 創建新的訊息存儲
func NewMessageStore(db *mongo.Database, rooms *ChatRoomStore) *MessageStore {
	return &MessageStore{
		db:         db,
		collection: db.Collection(collectionMessages),
		rooms:      rooms,
	}
}

// Create 創建訊息
func (s *MessageStore) Create(ctx context.Context, msg *message.Message) error {
	if _, err := s.rooms.GetByID(ctx, msg.ChatRoomID); err != nil {
		return err
	}

	id, err := nextSequence(ctx, s.db, collectionMessages)
	if err != nil {
		return err
	}
	msg.ID = id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.UpdatedAt = msg.CreatedAt

	if _, err := s.collection.InsertOne(ctx, fromMessage(msg)); err != nil {
		return err
	}
	return s.rooms.touch(ctx, msg.ChatRoomID, msg.CreatedAt)
}

// GetByID 根據 ID 獲取訊息
func (s *MessageStore) GetByID(ctx context.Context, roomID, id int64) (*message.Message, error) {
	var doc Message
	if err := s.collection.FindOne(ctx, bson.M{"room_id": roomID, "id": id}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	m := doc.message()
	return &m, nil
}

// ListByRoom 獲取完整歷史訊息（舊訊息在前）
func (s *MessageStore) ListByRoom(ctx context.Context, roomID int64) ([]message.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	msgs := []message.Message{}
	for cursor.Next(ctx) {
		var doc Message
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		msgs = append(msgs, doc.message())
	}
	return msgs, cursor.Err()
}

// UpdateContent 編輯訊息內容
func (s *MessageStore) UpdateContent(ctx context.Context, roomID, id int64, content string, at time.Time) (*message.Message, error) {
	return s.findAndUpdate(ctx, bson.M{"room_id": roomID, "id": id}, bson.M{"$set": bson.M{
		"content":    content,
		"is_edited":  true,
		"updated_at": at,
	}})
}

// SoftDelete 以固定文字取代內容並標記刪除；已刪除的訊息不再修改
func (s *MessageStore) SoftDelete(ctx context.Context, roomID, id int64, placeholder string, at time.Time) (*message.Message, error) {
	m, err := s.findAndUpdate(ctx,
		softDeleteFilter(roomID, id),
		bson.M{
			"$set": bson.M{
				"content":    placeholder,
				"is_deleted": true,
				"updated_at": at,
			},
			"$unset": bson.M{"file_url": "", "file_name": ""},
		})
	if errors.Is(err, database.ErrNotFound) {
		// 已刪除或不存在
		return s.GetByID(ctx, roomID, id)
	}
	return m, err
}

// MarkRead 將其他人發送的訊息標記為已讀
func (s *MessageStore) MarkRead(ctx context.Context, roomID, readerID int64) (int64, error) {
	result, err := s.collection.UpdateMany(ctx,
		unreadFromOthersFilter(roomID, readerID),
		bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// softDeleteFilter 只比對尚未刪除的訊息，重複刪除不會再次寫入
func softDeleteFilter(roomID, id int64) bson.M {
	return bson.M{"room_id": roomID, "id": id, "is_deleted": false}
}

func unreadFromOthersFilter(roomID, readerID int64) bson.M {
	return bson.M{"room_id": roomID, "sender_id": bson.M{"$ne": readerID}, "is_read": false}
}

func (s *MessageStore) findAndUpdate(ctx context.Context, filter, update bson.M) (*message.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc Message
	if err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	m := doc.message()
	return &m, nil
}
