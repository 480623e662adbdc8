package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CacheDir>/<Namespace>/<key>    # 原始字节或结构化 JSON
//
// 条目没有过期与容量上限，除非手动删除，否则永久保留。
type Store interface {
	// EnsureReady 幂等地创建根目录与全部命名空间子目录。
	EnsureReady() error

	// Exists 判断条目是否已被完整写入。
	Exists(ctx context.Context, locator Locator) bool

	// Read 返回条目的完整内容。若不存在则返回 ErrNotFound，绝不返回空的默认值。
	Read(ctx context.Context, locator Locator) ([]byte, error)

	// Put 将 body 写入缓存。实现需通过临时文件 + rename 保证写入原子性，
	// 并在失败时清理临时文件。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Write 是 Put 的字节切片版本。
	Write(ctx context.Context, locator Locator, blob []byte) error

	// Remove 删除条目，不存在时视为成功。
	Remove(ctx context.Context, locator Locator) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Locator 唯一定位一个缓存条目（命名空间 + key），key 使用 URL 路径风格。
type Locator struct {
	Namespace string
	Key       string
}

// Entry 描述一次写入结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator `json:"locator"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
	ModTime   time.Time
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrStorageUnavailable 表示缓存目录无法创建或读写。
	ErrStorageUnavailable = errors.New("cache storage unavailable")
	// ErrCorruptData 表示缓存内容无法解析为期望的结构。
	ErrCorruptData = errors.New("cache entry corrupt")
)
