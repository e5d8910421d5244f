package chatroom

import (
	"slices"

	"udg-chat/internal/message"
)

// timeline 依 createdAt 排序的訊息列表，另以 id 與 tempId 建索引
type timeline struct {
	items  []*message.Message
	byID   map[int64]*message.Message
	byTemp map[string]*message.Message
}

func newTimeline() *timeline {
	return &timeline{
		byID:   make(map[int64]*message.Message),
		byTemp: make(map[string]*message.Message),
	}
}

// reset 以伺服器歷史取代列表，保留本機尚未確認的訊息
func (t *timeline) reset(msgs []message.Message) {
	var local []*message.Message
	for _, m := range t.items {
		if m.ID == 0 {
			local = append(local, m)
		}
	}

	t.items = make([]*message.Message, 0, len(msgs)+len(local))
	t.byID = make(map[int64]*message.Message, len(msgs))
	t.byTemp = make(map[string]*message.Message, len(local))

	for i := range msgs {
		if msgs[i].ID != 0 {
			if _, dup := t.byID[msgs[i].ID]; dup {
				continue
			}
		}
		m := msgs[i]
		t.insert(&m)
	}
	for _, m := range local {
		t.insert(m)
	}
	t.sort()
}

func (t *timeline) insert(m *message.Message) {
	t.items = append(t.items, m)
	if m.ID != 0 {
		t.byID[m.ID] = m
	}
	if m.TempID != "" {
		t.byTemp[m.TempID] = m
	}
}

// add 加到列表尾端，不重新排序
func (t *timeline) add(m message.Message) *message.Message {
	p := &m
	t.insert(p)
	return p
}

func (t *timeline) sort() {
	slices.SortStableFunc(t.items, func(a, b *message.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func (t *timeline) get(id int64) *message.Message {
	return t.byID[id]
}

func (t *timeline) getTemp(tempID string) *message.Message {
	return t.byTemp[tempID]
}

// confirm 以伺服器訊息確認暫存訊息；若同 id 的訊息已經存在（推播先到），直接移除暫存訊息
func (t *timeline) confirm(tempID string, server message.Message) (message.Message, bool) {
	placeholder := t.byTemp[tempID]
	if placeholder == nil {
		return message.Message{}, false
	}

	// 推播已用同一個 id 確認過，保留推播之後套用的已讀、編輯與刪除
	if placeholder.ID != 0 && placeholder.ID == server.ID {
		placeholder.Status = message.StatusSent
		placeholder.Error = ""
		return *placeholder, true
	}

	if existing := t.byID[server.ID]; existing != nil && existing != placeholder {
		t.removePtr(placeholder)
		delete(t.byTemp, tempID)
		existing.TempID = tempID
		existing.Status = message.StatusSent
		existing.Error = ""
		t.byTemp[tempID] = existing
		return *existing, true
	}

	*placeholder = server
	placeholder.TempID = tempID
	placeholder.Status = message.StatusSent
	placeholder.Error = ""
	t.byID[server.ID] = placeholder
	t.sort()
	return *placeholder, true
}

// removeTemp 移除本機訊息
func (t *timeline) removeTemp(tempID string) bool {
	m := t.byTemp[tempID]
	if m == nil {
		return false
	}
	t.removePtr(m)
	delete(t.byTemp, tempID)
	if m.ID != 0 && t.byID[m.ID] == m {
		delete(t.byID, m.ID)
	}
	return true
}

func (t *timeline) removePtr(m *message.Message) {
	if i := slices.Index(t.items, m); i >= 0 {
		t.items = slices.Delete(t.items, i, i+1)
	}
}

func (t *timeline) snapshot() []message.Message {
	out := make([]message.Message, len(t.items))
	for i, m := range t.items {
		out[i] = *m
	}
	return out
}
