package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// AssetFields 提供 resolver/key/tier 字段，供分层缓存日志复用。
func AssetFields(resolver, key, tier string) logrus.Fields {
	return logrus.Fields{
		"resolver": resolver,
		"key":      key,
		"tier":     tier,
	}
}

// RequestFields 提供 HTTP 访问日志字段。
func RequestFields(requestID, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}
