package assetcache

import "errors"

var (
	// ErrDecode 表示取回的字节无法解码为资源（图片损坏、JSON 残缺等）。
	ErrDecode = errors.New("asset decode failed")
	// ErrClosed 表示 Resolver 已关闭，不再接受新的解析请求。
	ErrClosed = errors.New("asset resolver closed")
)
