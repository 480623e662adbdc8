package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/subosito/gotenv"

	"github.com/binge-hub/binge-hub/internal/assetcache"
	"github.com/binge-hub/binge-hub/internal/cache"
	"github.com/binge-hub/binge-hub/internal/catalog"
	"github.com/binge-hub/binge-hub/internal/config"
	"github.com/binge-hub/binge-hub/internal/logging"
	"github.com/binge-hub/binge-hub/internal/ratings"
)

const (
	envConfigPath     = "BINGE_HUB_CONFIG"
	defaultConfigPath = "config.toml"
	dotEnvFile        = ".env"
)

// commandContext 在子命令之间共享配置与按需构建的运行时依赖。
type commandContext struct {
	configFlag *string
	configPath string
	config     *config.Config
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// resolveConfigPath 计算配置路径：--config > BINGE_HUB_CONFIG > ./config.toml。
func (c *commandContext) resolveConfigPath() string {
	if c.configFlag != nil {
		if flag := strings.TrimSpace(*c.configFlag); flag != "" {
			return flag
		}
	}
	if env := strings.TrimSpace(os.Getenv(envConfigPath)); env != "" {
		return env
	}
	return defaultConfigPath
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	path := c.resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	c.configPath = path
	c.config = cfg
	return cfg, nil
}

// logger 初始化结构化日志。未配置日志文件且 logOut 非空时改写到 logOut（一般是 stderr），
// 避免与 stdout 上的数据输出混在一起。
func (c *commandContext) logger(logOut io.Writer) (*logrus.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if cfg.Global.LogFilePath == "" && logOut != nil {
		logger.SetOutput(logOut)
	}
	return logger, nil
}

// appRuntime 汇总一次命令执行需要的缓存与目录依赖。
type appRuntime struct {
	cfg      *config.Config
	logger   *logrus.Logger
	registry *prometheus.Registry
	images   *assetcache.Resolver[*assetcache.Image]
	metadata *catalog.Metadata
}

// buildRuntime 按“配置 → 磁盘缓存 → 目录客户端 → Resolver”的顺序组装依赖。
func (c *commandContext) buildRuntime(logger *logrus.Logger) (*appRuntime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	store, err := cache.NewStore(cfg.Global.CacheDir, config.ImageNamespace, config.DataNamespace)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	client, err := catalog.NewClient(catalog.ClientOptions{
		HTTPClient:      catalog.NewHTTPClient(cfg.Global.UpstreamTimeout.DurationValue()),
		APIBaseURL:      cfg.Catalog.APIBaseURL,
		MediaBaseURL:    cfg.Catalog.MediaBaseURL,
		Token:           cfg.Catalog.APIToken,
		Language:        cfg.Catalog.Language,
		PageConcurrency: cfg.Catalog.PageConcurrency,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化目录客户端失败: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := assetcache.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("注册指标失败: %w", err)
	}

	images, err := assetcache.NewResolver(assetcache.Options[*assetcache.Image]{
		Name:          "images",
		Store:         store,
		Namespace:     config.ImageNamespace,
		Source:        catalog.ImageSource(client),
		Decode:        assetcache.DecodeImage,
		Logger:        logger,
		Metrics:       metrics,
		MaxConcurrent: cfg.Global.MaxConcurrentFetches,
	})
	if err != nil {
		return nil, err
	}

	metadata, err := catalog.NewMetadata(client, catalog.MetadataOptions{
		Store:           store,
		Namespace:       config.DataNamespace,
		PersistListings: cfg.Catalog.PersistListings,
		Logger:          logger,
		Metrics:         metrics,
		MaxConcurrent:   cfg.Global.MaxConcurrentFetches,
	})
	if err != nil {
		images.Close()
		return nil, err
	}

	return &appRuntime{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		images:   images,
		metadata: metadata,
	}, nil
}

func (r *appRuntime) inspectors() []assetcache.Inspector {
	return append([]assetcache.Inspector{r.images}, r.metadata.Inspectors()...)
}

// Close 停止全部 Resolver。
func (r *appRuntime) Close() {
	r.images.Close()
	r.metadata.Close()
}

func (c *commandContext) openRatings() (*ratings.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := ratings.Open(cfg.Global.RatingsPath)
	if err != nil {
		return nil, fmt.Errorf("打开评分文件失败: %w", err)
	}
	return store, nil
}

// loadDotEnv 将 .env 中尚未设置的变量导入进程环境；文件不存在时忽略。
func loadDotEnv(path string) error {
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("加载 %s 失败: %w", path, err)
	}
	return nil
}
