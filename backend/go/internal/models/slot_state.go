package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// 保留的状态键，不属于任何槽位定义。
const (
	StateKeyKnowledgeContext = "knowledge_context"
	StateKeyError            = "error"
)

// SlotState 是会话的槽位状态：一个保持插入顺序的 name -> value 映射。
// 未填写的槽位值为 nil，序列化后为 JSON null。
type SlotState struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewSlotState 创建一个空的槽位状态。
func NewSlotState() *SlotState {
	return &SlotState{m: orderedmap.New[string, any]()}
}

func (s *SlotState) ensure() {
	if s.m == nil {
		s.m = orderedmap.New[string, any]()
	}
}

// Get 返回槽位的值以及该键是否存在。
func (s *SlotState) Get(name string) (any, bool) {
	if s == nil || s.m == nil {
		return nil, false
	}
	return s.m.Get(name)
}

// Set 写入槽位值。已存在的键保持原有位置。
func (s *SlotState) Set(name string, value any) {
	s.ensure()
	s.m.Set(name, value)
}

// Has 判断键是否存在（值可以为 nil）。
func (s *SlotState) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// IsFilled 判断槽位已存在且值非 nil。
func (s *SlotState) IsFilled(name string) bool {
	v, ok := s.Get(name)
	return ok && v != nil
}

// GetString 返回槽位值的字符串形式，未填写时返回空串。
func (s *SlotState) GetString(name string) string {
	v, ok := s.Get(name)
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Keys 按插入顺序返回所有键。
func (s *SlotState) Keys() []string {
	if s == nil || s.m == nil {
		return nil
	}
	keys := make([]string, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len 返回键的数量。
func (s *SlotState) Len() int {
	if s == nil || s.m == nil {
		return 0
	}
	return s.m.Len()
}

// Clone 通过 JSON 往返得到一个深拷贝，调用方可以安全修改。
func (s *SlotState) Clone() *SlotState {
	out := NewSlotState()
	if s == nil || s.m == nil {
		return out
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		// 值都来自 JSON 解码或字符串输入，理论上不会失败；退化为浅拷贝。
		for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
			out.m.Set(pair.Key, pair.Value)
		}
		return out
	}
	_ = out.UnmarshalJSON(raw)
	return out
}

// ToMap 转换为普通 map，用于日志等不关心顺序的场景。
func (s *SlotState) ToMap() map[string]any {
	out := make(map[string]any, s.Len())
	if s == nil || s.m == nil {
		return out
	}
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

// MarshalJSON 按插入顺序输出 JSON 对象。
func (s SlotState) MarshalJSON() ([]byte, error) {
	if s.m == nil {
		return []byte("{}"), nil
	}
	return s.m.MarshalJSON()
}

// UnmarshalJSON 解析 JSON 对象并保留键的顺序。
func (s *SlotState) UnmarshalJSON(data []byte) error {
	s.m = orderedmap.New[string, any]()
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	return s.m.UnmarshalJSON(data)
}

// Value 实现 driver.Valuer，以 JSON 文本落库。
func (s SlotState) Value() (driver.Value, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan 实现 sql.Scanner。
func (s *SlotState) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		s.m = orderedmap.New[string, any]()
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("无法将 %T 解析为 SlotState", src)
	}
}

// GormDataType 让 gorm 迁移时使用 JSON/文本列。
func (SlotState) GormDataType() string {
	return "json"
}

// DecodeValue 把任意值规整为 JSON 兼容的结构（map[string]any / []any / 基础类型）。
func DecodeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
