package cache

import (
	"encoding/json"
	"fmt"
)

// DecodeJSON 将结构化缓存内容解析为 T；内容残缺或格式不兼容时返回 ErrCorruptData。
func DecodeJSON[T any](blob []byte) (T, error) {
	var value T
	if len(blob) == 0 {
		return value, fmt.Errorf("%w: empty blob", ErrCorruptData)
	}
	if err := json.Unmarshal(blob, &value); err != nil {
		return value, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	return value, nil
}

// EncodeJSON 序列化结构化数据，供 Write 持久化。
func EncodeJSON(value any) ([]byte, error) {
	blob, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return blob, nil
}
