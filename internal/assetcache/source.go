package assetcache

import (
	"context"

	"github.com/binge-hub/binge-hub/internal/cache"
)

// Source 负责从远端取回 key 对应的原始字节。
type Source interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, key string) ([]byte, error)

// Fetch makes SourceFunc satisfy Source.
func (f SourceFunc) Fetch(ctx context.Context, key string) ([]byte, error) {
	return f(ctx, key)
}

// Decoder 将原始字节解码为资源。磁盘与网络两条路径共用同一个 Decoder。
type Decoder[T any] func(key string, data []byte) (T, error)

// JSONDecoder 返回结构化数据的 Decoder，解析失败时错误包装 cache.ErrCorruptData。
func JSONDecoder[T any]() Decoder[T] {
	return func(_ string, data []byte) (T, error) {
		return cache.DecodeJSON[T](data)
	}
}
