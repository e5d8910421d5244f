package chatroom

import (
	"context"

	"udg-chat/internal/platform/logger"
	"udg-chat/internal/storage/database"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// NewRepositories 以 MongoDB 建立倉儲集合
func NewRepositories(ctx context.Context, db *mongo.Database) *database.Repositories {
	// 索引建立失敗不中斷服務啟動
	if err := CreateIndexes(ctx, db); err != nil {
		logger.Warning(ctx, "建立 MongoDB 索引失敗",
			logger.WithAction("create_indexes"),
			logger.WithError(err))
	}

	rooms := NewChatRoomStore(db)
	return database.NewRepositories("mongo",
		NewUserStore(db),
		rooms,
		NewMessageStore(db, rooms),
		func(ctx context.Context) error { return db.Client().Ping(ctx, nil) },
	)
}
