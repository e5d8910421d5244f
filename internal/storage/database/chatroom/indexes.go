package chatroom

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateIndexes 創建數據庫索引
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	// 訊息：聊天室 + 時間（完整歷史查詢），聊天室 + id（唯一）
	messageIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("room_time_idx"),
		},
		{
			Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "id", Value: 1}},
			Options: options.Index().SetName("room_message_idx").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "is_read", Value: 1}},
			Options: options.Index().SetName("read_status_idx"),
		},
	}
	if _, err := db.Collection(collectionMessages).Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return err
	}

	roomIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("room_id_idx").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "members", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("member_idx"),
		},
	}
	if _, err := db.Collection(collectionChatRooms).Indexes().CreateMany(ctx, roomIndexes); err != nil {
		return err
	}

	userIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("user_id_idx").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_idx").SetUnique(true),
		},
	}
	_, err := db.Collection(collectionUsers).Indexes().CreateMany(ctx, userIndexes)
	return err
}
