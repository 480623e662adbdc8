package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/binge-hub/binge-hub/internal/logging"
)

// MaxPages 是分页列表可接受的 total_pages 上限，与 TMDB 自身的分页上限一致。
const MaxPages = 500

// ClientOptions 描述远端目录 API 与图片源站的连接参数。
type ClientOptions struct {
	HTTPClient      *http.Client
	APIBaseURL      string
	MediaBaseURL    string
	Token           string
	Language        string
	PageConcurrency int
	Logger          *logrus.Logger
}

// Client 是对目录 API 的薄封装：单次取字节、单次取 JSON、按 total_pages 拉取分页列表。
// 任何一步都不重试。
type Client struct {
	http            *http.Client
	apiBase         *url.URL
	mediaBase       string
	token           string
	language        string
	pageConcurrency int
	logger          *logrus.Logger
}

// NewClient constructs a catalog client. APIBaseURL and MediaBaseURL must be absolute http(s) URLs.
func NewClient(opts ClientOptions) (*Client, error) {
	apiBase, err := url.Parse(strings.TrimRight(opts.APIBaseURL, "/"))
	if err != nil || apiBase.Scheme == "" || apiBase.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", opts.APIBaseURL)
	}
	media, err := url.Parse(opts.MediaBaseURL)
	if err != nil || media.Scheme == "" || media.Host == "" {
		return nil, fmt.Errorf("invalid media base url %q", opts.MediaBaseURL)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient(0)
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.PageConcurrency <= 0 {
		opts.PageConcurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDiscardLogger()
	}

	return &Client{
		http:            opts.HTTPClient,
		apiBase:         apiBase,
		mediaBase:       strings.TrimRight(opts.MediaBaseURL, "/"),
		token:           opts.Token,
		language:        opts.Language,
		pageConcurrency: opts.PageConcurrency,
		logger:          opts.Logger,
	}, nil
}

// MediaURL 将图片路径（如 "/poster1.jpg"）拼接到图片源站。
func (c *Client) MediaURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.mediaBase + path
}

// ListEndpoint 返回分页影片列表的接口地址（不含 page 参数）。
func (c *Client) ListEndpoint(listID string) string {
	return fmt.Sprintf("/4/list/%s?language=%s", url.PathEscape(listID), url.QueryEscape(c.language))
}

// GenreEndpoint 返回 genre 查找表接口地址。
func (c *Client) GenreEndpoint() string {
	return "/3/genre/movie/list?language=" + url.QueryEscape(c.language)
}

// FetchBytes 匿名 GET 任意地址并返回完整正文，用于图片源站。
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return c.get(ctx, rawURL, false)
}

// FetchJSON 以 Bearer Token 请求 API 并解析到 out。
func (c *Client) FetchJSON(ctx context.Context, endpoint string, out any) error {
	target, err := c.resolve(endpoint)
	if err != nil {
		return err
	}
	body, err := c.get(ctx, target, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{URL: target, Err: err}
	}
	return nil
}

// FetchPagedListing 先请求第 1 页，依据 total_pages 为剩余每页各发一次请求，
// 按页序拼接 results。任一页失败则整体失败，不返回部分结果。
func (c *Client) FetchPagedListing(ctx context.Context, endpoint string) ([]json.RawMessage, error) {
	first, err := c.fetchPage(ctx, endpoint, 1)
	if err != nil {
		return nil, err
	}

	total := first.TotalPages
	if total > MaxPages {
		return nil, &DecodeError{URL: endpoint, Err: fmt.Errorf("total_pages %d exceeds limit %d", total, MaxPages)}
	}
	if total < 1 {
		total = 1
	}
	pages := make([][]json.RawMessage, total)
	pages[0] = first.Results

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.pageConcurrency)
	for n := 2; n <= total; n++ {
		g.Go(func() error {
			p, err := c.fetchPage(gctx, endpoint, n)
			if err != nil {
				return err
			}
			pages[n-1] = p.Results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	size := 0
	for _, p := range pages {
		size += len(p)
	}
	items := make([]json.RawMessage, 0, size)
	for _, p := range pages {
		items = append(items, p...)
	}
	return items, nil
}

// Movies 拉取整个影片列表。
func (c *Client) Movies(ctx context.Context, listID string) ([]Movie, error) {
	endpoint := c.ListEndpoint(listID)
	items, err := c.FetchPagedListing(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	movies := make([]Movie, 0, len(items))
	for _, raw := range items {
		var movie Movie
		if err := json.Unmarshal(raw, &movie); err != nil {
			return nil, &DecodeError{URL: endpoint, Err: err}
		}
		movies = append(movies, movie)
	}
	return movies, nil
}

// Genres 拉取 genre 查找表。
func (c *Client) Genres(ctx context.Context) (GenreLookup, error) {
	var resp genreResponse
	if err := c.FetchJSON(ctx, c.GenreEndpoint(), &resp); err != nil {
		return nil, err
	}
	lookup := make(GenreLookup, len(resp.Genres))
	for _, genre := range resp.Genres {
		lookup[genre.ID] = genre.Name
	}
	return lookup, nil
}

func (c *Client) fetchPage(ctx context.Context, endpoint string, n int) (*page, error) {
	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()

	var p page
	if err := c.FetchJSON(ctx, u.String(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// resolve 将相对接口路径拼接到 API 根地址；绝对地址原样返回。
func (c *Client) resolve(endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	joined := *c.apiBase
	joined.Path = strings.TrimRight(c.apiBase.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	joined.RawQuery = ref.RawQuery
	return joined.String(), nil
}

func (c *Client) get(ctx context.Context, target string, api bool) ([]byte, error) {
	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if api {
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(target, err)
	}
	defer resp.Body.Close()

	fields := logrus.Fields{
		"action":     "upstream_get",
		"url":        target,
		"status":     resp.StatusCode,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.WithFields(fields).Debug("upstream_status_error")
		return nil, &NetworkError{Kind: KindStatus, URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(target, err)
	}
	c.logger.WithFields(fields).WithField("bytes", len(body)).Debug("upstream_ok")
	return body, nil
}

func classifyTransportError(target string, err error) error {
	kind := KindConnect
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &NetworkError{Kind: kind, URL: target, Err: err}
}
