package assetcache

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Image 是解码后的海报/背景图。Data 保留原始字节，便于 HTTP 层直接回传；
// 写入内存层后只读，不得修改。
type Image struct {
	Key    string
	Format string
	Width  int
	Height int
	Data   []byte
	Pixels image.Image
}

// ContentType 根据解码出的格式返回 MIME 类型。
func (img *Image) ContentType() string {
	if img == nil || img.Format == "" {
		return "application/octet-stream"
	}
	return "image/" + img.Format
}

// DecodeImage 是图片资源的 Decoder。
func DecodeImage(key string, data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", ErrDecode, key)
	}
	pixels, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
	}
	bounds := pixels.Bounds()
	return &Image{
		Key:    key,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   data,
		Pixels: pixels,
	}, nil
}
