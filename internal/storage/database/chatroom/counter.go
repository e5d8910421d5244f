package chatroom

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	collectionUsers     = "users"
	collectionChatRooms = "chat_rooms"
	collectionMessages  = "messages"
	collectionCounters  = "counters"
)

type counter struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}

// nextSequence 取得遞增整數 ID（客戶端以整數 id 去重與比對）
func nextSequence(ctx context.Context, db *mongo.Database, name string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c counter
	err := db.Collection(collectionCounters).
		FindOneAndUpdate(ctx, bson.M{"_id": name}, sequenceIncrement(), opts).
		Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", name, err)
	}
	return c.Seq, nil
}

func sequenceIncrement() bson.M {
	return bson.M{"$inc": bson.M{"seq": int64(1)}}
}
