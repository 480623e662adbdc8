package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：日志、缓存目录、并发与超时。
type GlobalConfig struct {
	ListenPort           int      `mapstructure:"ListenPort"`
	LogLevel             string   `mapstructure:"LogLevel"`
	LogFilePath          string   `mapstructure:"LogFilePath"`
	LogMaxSize           int      `mapstructure:"LogMaxSize"`
	LogMaxBackups        int      `mapstructure:"LogMaxBackups"`
	LogCompress          bool     `mapstructure:"LogCompress"`
	CacheDir             string   `mapstructure:"CacheDir"`
	RatingsPath          string   `mapstructure:"RatingsPath"`
	MaxConcurrentFetches int      `mapstructure:"MaxConcurrentFetches"`
	UpstreamTimeout      Duration `mapstructure:"UpstreamTimeout"`
	RequestTimeout       Duration `mapstructure:"RequestTimeout"`
}

// CatalogConfig 描述远端影片目录 API 与图片源站。
type CatalogConfig struct {
	APIBaseURL      string   `mapstructure:"APIBaseURL"`
	MediaBaseURL    string   `mapstructure:"MediaBaseURL"`
	APIToken        string   `mapstructure:"APIToken"`
	Language        string   `mapstructure:"Language"`
	ListIDs         []string `mapstructure:"ListIDs"`
	PageConcurrency int      `mapstructure:"PageConcurrency"`
	PersistListings bool     `mapstructure:"PersistListings"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Catalog CatalogConfig `mapstructure:"Catalog"`
}

// 磁盘缓存的命名空间：原始图片字节与结构化数据分开存放。
const (
	ImageNamespace = "Images"
	DataNamespace  = "data"
)

// HasToken 表示是否配置了 API Bearer Token。
func (c CatalogConfig) HasToken() bool {
	return strings.TrimSpace(c.APIToken) != ""
}

// AuthMode 输出 `bearer` 或 `anonymous`，供日志字段使用。
func (c CatalogConfig) AuthMode() string {
	if c.HasToken() {
		return "bearer"
	}
	return "anonymous"
}
