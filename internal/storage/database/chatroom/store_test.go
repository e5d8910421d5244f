package chatroom

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strconv"
	"testing"
	"time"

	"udg-chat/internal/message"
	"udg-chat/internal/storage/database"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestQueryDocuments(t *testing.T) {
	tests := []struct {
		name string
		got  bson.M
		want bson.M
	}{
		{
			name: "軟刪除只比對未刪除的訊息",
			got:  softDeleteFilter(3, 7),
			want: bson.M{"room_id": int64(3), "id": int64(7), "is_deleted": false},
		},
		{
			name: "已讀只更新對方的未讀訊息",
			got:  unreadFromOthersFilter(3, 1),
			want: bson.M{"room_id": int64(3), "sender_id": bson.M{"$ne": int64(1)}, "is_read": false},
		},
		{
			name: "序號每次加一",
			got:  sequenceIncrement(),
			want: bson.M{"$inc": bson.M{"seq": int64(1)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestMessageDocumentFields(t *testing.T) {
	doc := fromMessage(&message.Message{
		ID:          5,
		ChatRoomID:  3,
		SenderID:    1,
		Content:     "hi",
		MessageType: message.MessageTypeText,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("bson.Marshal() error = %v", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("bson.Unmarshal() error = %v", err)
	}

	// 查詢與索引依賴這些欄位名稱
	for _, key := range []string{"id", "room_id", "sender_id", "is_read", "is_deleted", "created_at"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("缺少欄位 %s: %v", key, fields)
		}
	}
	for _, key := range []string{"temp_id", "file_url", "file_name"} {
		if _, ok := fields[key]; ok {
			t.Errorf("空的 %s 不應該寫入", key)
		}
	}
}

func TestNotFound(t *testing.T) {
	if err := notFound(mongo.ErrNoDocuments); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("ErrNoDocuments 應該轉為 ErrNotFound，實際為 %v", err)
	}
	other := errors.New("boom")
	if err := notFound(other); err != other {
		t.Errorf("其他錯誤應該原樣回傳，實際為 %v", err)
	}
}

// 需要 UDG_TEST_MONGO_URL 指向可用的 MongoDB
func TestMongoRepositories(t *testing.T) {
	url := os.Getenv("UDG_TEST_MONGO_URL")
	if url == "" {
		t.Skip("未設定 UDG_TEST_MONGO_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(url))
	if err != nil {
		t.Fatalf("mongo.Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("udg_chat_test_" + strconv.FormatInt(time.Now().UnixNano(), 10))
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	repos := NewRepositories(ctx, db)
	if err := repos.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	alice := &database.UserRecord{Email: "Alice@Example.com", Nickname: "alice"}
	bob := &database.UserRecord{Email: "bob@example.com", Nickname: "bob"}
	for _, u := range []*database.UserRecord{alice, bob} {
		if err := repos.Users.Create(ctx, u); err != nil {
			t.Fatalf("Users.Create() error = %v", err)
		}
	}
	if alice.ID != 1 || bob.ID != 2 {
		t.Errorf("用戶 id 應該依序遞增，實際為 %d, %d", alice.ID, bob.ID)
	}
	if err := repos.Users.Create(ctx, &database.UserRecord{Email: "alice@example.com"}); !errors.Is(err, database.ErrDuplicate) {
		t.Errorf("重複 email 應該回傳 ErrDuplicate，實際為 %v", err)
	}
	if u, err := repos.Users.GetByEmail(ctx, "ALICE@example.com"); err != nil || u.ID != alice.ID {
		t.Errorf("GetByEmail() = %+v, %v", u, err)
	}

	room := &message.Room{User1ID: alice.ID, User2ID: bob.ID, Type: message.RoomTypeStore}
	if err := repos.ChatRooms.Create(ctx, room); err != nil {
		t.Fatalf("ChatRooms.Create() error = %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	fromAlice := &message.Message{ChatRoomID: room.ID, SenderID: alice.ID, Content: "hi", MessageType: message.MessageTypeText, CreatedAt: base}
	fromBob := &message.Message{ChatRoomID: room.ID, SenderID: bob.ID, Content: "yo", MessageType: message.MessageTypeText, CreatedAt: base.Add(time.Second)}
	for _, m := range []*message.Message{fromAlice, fromBob} {
		if err := repos.Messages.Create(ctx, m); err != nil {
			t.Fatalf("Messages.Create() error = %v", err)
		}
	}
	if fromBob.ID != fromAlice.ID+1 {
		t.Errorf("訊息 id 應該依序遞增，實際為 %d, %d", fromAlice.ID, fromBob.ID)
	}

	if n, err := repos.Messages.MarkRead(ctx, room.ID, alice.ID); err != nil || n != 1 {
		t.Errorf("MarkRead() = %d, %v, want 1", n, err)
	}
	if n, _ := repos.Messages.MarkRead(ctx, room.ID, alice.ID); n != 0 {
		t.Errorf("重複標記不應該再更新，實際為 %d", n)
	}

	deletedAt := base.Add(time.Minute)
	deleted, err := repos.Messages.SoftDelete(ctx, room.ID, fromAlice.ID, message.DeletedPlaceholder, deletedAt)
	if err != nil || !deleted.IsDeleted || deleted.Content != message.DeletedPlaceholder {
		t.Fatalf("SoftDelete() = %+v, %v", deleted, err)
	}
	again, err := repos.Messages.SoftDelete(ctx, room.ID, fromAlice.ID, "other", deletedAt.Add(time.Hour))
	if err != nil || again.Content != message.DeletedPlaceholder || !again.UpdatedAt.Equal(deletedAt) {
		t.Errorf("重複刪除不應該修改訊息: %+v, %v", again, err)
	}
	if _, err := repos.Messages.SoftDelete(ctx, room.ID, 999, "x", deletedAt); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("不存在的訊息應該回傳 ErrNotFound，實際為 %v", err)
	}

	msgs, err := repos.Messages.ListByRoom(ctx, room.ID)
	if err != nil || len(msgs) != 2 || msgs[0].ID != fromAlice.ID {
		t.Errorf("ListByRoom() = %+v, %v", msgs, err)
	}
}
