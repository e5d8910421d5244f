// Package chatroom MongoDB 實作的聊天室、訊息與用戶倉儲
package chatroom

import (
	"context"
	"errors"
	"fmt"
	"time"

	"udg-chat/internal/message"
	"udg-chat/internal/storage/database"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ChatRoom 聊天室數據模型
type ChatRoom struct {
	ID        int64        `bson:"id"`
	User1ID   int64        `bson:"user1_id"`
	User2ID   int64        `bson:"user2_id"`
	Members   []int64      `bson:"members"` // 查詢用：[user1_id, user2_id]
	StoreID   *int64       `bson:"store_id,omitempty"`
	Post      *PostSummary `bson:"post,omitempty"`
	Type      string       `bson:"type"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

// PostSummary 聊天室連結的貼文摘要
type PostSummary struct {
	ID          int64  `bson:"id"`
	Title       string `bson:"title"`
	TradeStatus string `bson:"trade_status"`
}

func fromRoom(r *message.Room) ChatRoom {
	doc := ChatRoom{
		ID:        r.ID,
		User1ID:   r.User1ID,
		User2ID:   r.User2ID,
		Members:   []int64{r.User1ID, r.User2ID},
		StoreID:   r.StoreID,
		Type:      string(r.Type),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Post != nil {
		doc.Post = &PostSummary{ID: r.Post.ID, Title: r.Post.Title, TradeStatus: r.Post.TradeStatus}
	}
	return doc
}

func (d *ChatRoom) room() message.Room {
	r := message.Room{
		ID:        d.ID,
		User1ID:   d.User1ID,
		User2ID:   d.User2ID,
		StoreID:   d.StoreID,
		Type:      message.RoomType(d.Type),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.Post != nil {
		r.Post = &message.PostSummary{ID: d.Post.ID, Title: d.Post.Title, TradeStatus: d.Post.TradeStatus}
	}
	return r
}

// ChatRoomStore 聊天室存儲實作
type ChatRoomStore struct {
	db         *mongo.Database
	collection *mongo.Collection
}

// NewChatRoomStore 創建新的聊天室存儲
func NewChatRoomStore(db *mongo.Database) *ChatRoomStore {
	return &ChatRoomStore{
		db:         db,
		collection: db.Collection(collectionChatRooms),
	}
}

// Create 創建聊天室
func (s *ChatRoomStore) Create(ctx context.Context, room *message.Room) error {
	id, err := nextSequence(ctx, s.db, collectionChatRooms)
	if err != nil {
		return err
	}
	room.ID = id
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	room.UpdatedAt = room.CreatedAt

	_, err = s.collection.InsertOne(ctx, fromRoom(room))
	return err
}

// GetByID 根據 ID 獲取聊天室
func (s *ChatRoomStore) GetByID(ctx context.Context, id int64) (*message.Room, error) {
	var doc ChatRoom
	if err := s.collection.FindOne(ctx, bson.M{"id": id}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	r := doc.room()
	return &r, nil
}

// FindExisting 尋找同兩位成員、同類型、同貼文的既有聊天室
func (s *ChatRoomStore) FindExisting(ctx context.Context, userA, userB int64, roomType message.RoomType, postID *int64) (*message.Room, error) {
	filter := bson.M{
		"members": bson.M{"$all": bson.A{userA, userB}},
		"type":    string(roomType),
	}
	if postID != nil {
		filter["post.id"] = *postID
	} else {
		filter["post"] = bson.M{"$exists": false}
	}

	var doc ChatRoom
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	r := doc.room()
	return &r, nil
}

// ListUserRooms 列出用戶的聊天室，最近更新的在前
func (s *ChatRoomStore) ListUserRooms(ctx context.Context, userID int64) ([]message.Room, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "id", Value: -1}})

	cursor, err := s.collection.Find(ctx, bson.M{"members": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rooms := []message.Room{}
	for cursor.Next(ctx) {
		var doc ChatRoom
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rooms = append(rooms, doc.room())
	}
	return rooms, cursor.Err()
}

// UpdatePost 更新聊天室連結的貼文（例如交易狀態改變）
func (s *ChatRoomStore) UpdatePost(ctx context.Context, id int64, post *message.PostSummary) error {
	update := bson.M{"updated_at": time.Now().UTC()}
	var op bson.M
	if post == nil {
		op = bson.M{"$set": update, "$unset": bson.M{"post": ""}}
	} else {
		update["post"] = PostSummary{ID: post.ID, Title: post.Title, TradeStatus: post.TradeStatus}
		op = bson.M{"$set": update}
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"id": id}, op)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// touch 更新聊天室的最後活動時間
func (s *ChatRoomStore) touch(ctx context.Context, id int64, at time.Time) error {
	_, err := s.collection.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$max": bson.M{"updated_at": at}})
	return err
}

// notFound 將 mongo.ErrNoDocuments 轉為 database.ErrNotFound
func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return database.ErrNotFound
	}
	return err
}
