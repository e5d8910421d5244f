package chatroom

import (
	"context"
	"strings"
	"time"

	"udg-chat/internal/storage/database"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// UserStore 用戶存儲實作
type UserStore struct {
	db         *mongo.Database
	collection *mongo.Collection
}

// NewUserStore 創建新的用戶存儲
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{
		db:         db,
		collection: db.Collection(collectionUsers),
	}
}

// Create 創建用戶，email 已存在時回傳 database.ErrDuplicate
func (s *UserStore) Create(ctx context.Context, user *database.UserRecord) error {
	id, err := nextSequence(ctx, s.db, collectionUsers)
	if err != nil {
		return err
	}
	user.ID = id
	user.Email = strings.ToLower(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if _, err := s.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return database.ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID 根據 ID 獲取用戶
func (s *UserStore) GetByID(ctx context.Context, id int64) (*database.UserRecord, error) {
	return s.findOne(ctx, bson.M{"id": id})
}

// GetByEmail 根據 email 獲取用戶
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*database.UserRecord, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*database.UserRecord, error) {
	var user database.UserRecord
	if err := s.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}
