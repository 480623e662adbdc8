package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/binge-hub/binge-hub/internal/assetcache"
	"github.com/binge-hub/binge-hub/internal/cache"
)

// 结构化数据在 data 命名空间下的 key。
const (
	genresKey     = "genres.json"
	listKeyPrefix = "lists/"
	listKeySuffix = ".json"
)

// MetadataOptions 控制结构化数据缓存。PersistListings 为 false 时影片列表只缓存在内存中，
// 每次启动重新拉取；genre 表总是落盘。
type MetadataOptions struct {
	Store           cache.Store
	Namespace       string
	PersistListings bool
	Logger          *logrus.Logger
	Metrics         *assetcache.Metrics
	MaxConcurrent   int
}

// Metadata 通过两组 Resolver 为 genre 表与影片列表提供分层缓存。
type Metadata struct {
	genres *assetcache.Resolver[GenreLookup]
	lists  *assetcache.Resolver[[]Movie]
}

// NewMetadata 构建结构化数据缓存。
func NewMetadata(client *Client, opts MetadataOptions) (*Metadata, error) {
	if client == nil {
		return nil, errors.New("catalog client is required")
	}

	genres, err := assetcache.NewResolver(assetcache.Options[GenreLookup]{
		Name:          "genres",
		Store:         opts.Store,
		Namespace:     opts.Namespace,
		Source:        GenreSource(client),
		Decode:        assetcache.JSONDecoder[GenreLookup](),
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		MaxConcurrent: 1,
	})
	if err != nil {
		return nil, err
	}

	listOpts := assetcache.Options[[]Movie]{
		Name:          "lists",
		Source:        ListSource(client),
		Decode:        assetcache.JSONDecoder[[]Movie](),
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		MaxConcurrent: opts.MaxConcurrent,
	}
	if opts.PersistListings {
		listOpts.Store = opts.Store
		listOpts.Namespace = opts.Namespace
	}
	lists, err := assetcache.NewResolver(listOpts)
	if err != nil {
		genres.Close()
		return nil, err
	}

	return &Metadata{genres: genres, lists: lists}, nil
}

// Genres 返回 genre 查找表：内存 → 磁盘 → API。
func (m *Metadata) Genres(ctx context.Context) (GenreLookup, error) {
	return m.genres.Await(ctx, genresKey)
}

// Movies 返回单个列表的全部影片。
func (m *Metadata) Movies(ctx context.Context, listID string) ([]Movie, error) {
	return m.lists.Await(ctx, listKey(listID))
}

// Library 并发解析多个列表，按 listIDs 顺序拼接。
func (m *Metadata) Library(ctx context.Context, listIDs []string) ([]Movie, error) {
	results := make([][]Movie, len(listIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range listIDs {
		g.Go(func() error {
			movies, err := m.Movies(gctx, id)
			if err != nil {
				return err
			}
			results[i] = movies
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Movie
	for _, movies := range results {
		all = append(all, movies...)
	}
	return all, nil
}

// Inspectors 暴露内部 Resolver 供诊断接口使用。
func (m *Metadata) Inspectors() []assetcache.Inspector {
	return []assetcache.Inspector{m.genres, m.lists}
}

// Close 关闭内部 Resolver。
func (m *Metadata) Close() {
	m.genres.Close()
	m.lists.Close()
}

// GenreSource 拉取 genre 表并序列化为待落盘的 JSON。
func GenreSource(client *Client) assetcache.Source {
	return assetcache.SourceFunc(func(ctx context.Context, _ string) ([]byte, error) {
		lookup, err := client.Genres(ctx)
		if err != nil {
			return nil, markDecode(err)
		}
		return cache.EncodeJSON(lookup)
	})
}

// ListSource 根据 key（lists/<id>.json）拉取整个分页列表。
func ListSource(client *Client) assetcache.Source {
	return assetcache.SourceFunc(func(ctx context.Context, key string) ([]byte, error) {
		movies, err := client.Movies(ctx, listIDFromKey(key))
		if err != nil {
			return nil, markDecode(err)
		}
		return cache.EncodeJSON(movies)
	})
}

// ImageSource 从图片源站按路径取原始字节。
func ImageSource(client *Client) assetcache.Source {
	return assetcache.SourceFunc(func(ctx context.Context, key string) ([]byte, error) {
		return client.FetchBytes(ctx, client.MediaURL(key))
	})
}

// markDecode 让解析失败在 Resolver 侧归类为 decode，而不是网络错误。
func markDecode(err error) error {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) && !errors.Is(err, assetcache.ErrDecode) {
		return fmt.Errorf("%w: %w", assetcache.ErrDecode, err)
	}
	return err
}

func listKey(listID string) string {
	return listKeyPrefix + listID + listKeySuffix
}

func listIDFromKey(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, listKeyPrefix), listKeySuffix)
}
