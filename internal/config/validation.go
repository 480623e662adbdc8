package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", fmt.Sprintf("无法识别的日志级别 %q", g.LogLevel))
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		return newFieldError("Global.CacheDir", "不能为空")
	}
	if strings.TrimSpace(g.RatingsPath) == "" {
		return newFieldError("Global.RatingsPath", "不能为空")
	}
	if g.MaxConcurrentFetches <= 0 {
		return newFieldError("Global.MaxConcurrentFetches", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.RequestTimeout.DurationValue() <= 0 {
		return newFieldError("Global.RequestTimeout", "必须大于 0")
	}

	cat := c.Catalog
	if err := validateUpstream(cat.APIBaseURL); err != nil {
		return fmt.Errorf("%s: %w", catalogField("APIBaseURL"), err)
	}
	if err := validateUpstream(cat.MediaBaseURL); err != nil {
		return fmt.Errorf("%s: %w", catalogField("MediaBaseURL"), err)
	}
	if strings.TrimSpace(cat.Language) == "" {
		return newFieldError(catalogField("Language"), "不能为空")
	}
	if cat.PageConcurrency <= 0 {
		return newFieldError(catalogField("PageConcurrency"), "必须大于 0")
	}

	seen := map[string]struct{}{}
	for _, id := range cat.ListIDs {
		if strings.ContainsAny(id, "/?# ") {
			return newFieldError(catalogField("ListIDs"), fmt.Sprintf("非法的列表 ID %q", id))
		}
		if _, exists := seen[id]; exists {
			return newFieldError(catalogField("ListIDs"), fmt.Sprintf("重复的列表 ID %q", id))
		}
		seen[id] = struct{}{}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
