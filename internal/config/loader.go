package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 环境变量沿用原桌面程序的命名，便于直接复用已有的 .env 文件。
const (
	EnvAPIToken = "BB_TMDB_API_KEY"
	EnvListIDs  = "MOVIE_LIST_IDS"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(durationDecodeHook(), stringListDecodeHook())
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyCatalogDefaults(&cfg.Catalog)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCache, err := filepath.Abs(cfg.Global.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheDir = absCache

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheDir", "./Cache")
	v.SetDefault("RatingsPath", "./ratings.json")
	v.SetDefault("MaxConcurrentFetches", 8)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("RequestTimeout", "45s")
	v.SetDefault("Catalog.APIBaseURL", "https://api.themoviedb.org")
	v.SetDefault("Catalog.MediaBaseURL", "https://image.tmdb.org/t/p/original")
	v.SetDefault("Catalog.Language", "en-US")
	v.SetDefault("Catalog.PageConcurrency", 4)
	v.SetDefault("Catalog.PersistListings", false)
}

func bindEnv(v *viper.Viper) error {
	if err := v.BindEnv("Catalog.APIToken", EnvAPIToken); err != nil {
		return fmt.Errorf("绑定环境变量失败: %w", err)
	}
	if err := v.BindEnv("Catalog.ListIDs", EnvListIDs); err != nil {
		return fmt.Errorf("绑定环境变量失败: %w", err)
	}
	return nil
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5080
	}
	if g.MaxConcurrentFetches == 0 {
		g.MaxConcurrentFetches = 8
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.RequestTimeout.DurationValue() == 0 {
		g.RequestTimeout = Duration(45 * time.Second)
	}
}

func applyCatalogDefaults(c *CatalogConfig) {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	c.MediaBaseURL = strings.TrimRight(strings.TrimSpace(c.MediaBaseURL), "/")
	c.APIToken = strings.TrimSpace(c.APIToken)
	if c.PageConcurrency == 0 {
		c.PageConcurrency = 4
	}
	ids := c.ListIDs[:0]
	for _, id := range c.ListIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	c.ListIDs = ids
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// stringListDecodeHook 允许字符串列表以 JSON 数组（MOVIE_LIST_IDS='[1, 2]'）、
// 逗号分隔字符串或 TOML 数组（元素可为整数）三种形式出现。
func stringListDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf([]string(nil))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			raw := strings.TrimSpace(v)
			if raw == "" {
				return []string{}, nil
			}
			if strings.HasPrefix(raw, "[") {
				dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
				dec.UseNumber()
				var items []interface{}
				if err := dec.Decode(&items); err != nil {
					return nil, fmt.Errorf("无法解析列表字段: %w", err)
				}
				return stringifyList(items), nil
			}
			return strings.Split(raw, ","), nil
		case []interface{}:
			return stringifyList(v), nil
		default:
			return data, nil
		}
	}
}

func stringifyList(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch value := item.(type) {
		case json.Number:
			out = append(out, value.String())
		case float64:
			out = append(out, strconv.FormatFloat(value, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprint(value))
		}
	}
	return out
}
