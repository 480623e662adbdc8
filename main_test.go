package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestResolveConfigPathPriority(t *testing.T) {
	t.Setenv(envConfigPath, "/tmp/env.toml")

	var flag string
	ctx := newCommandContext(&flag)
	if got := ctx.resolveConfigPath(); got != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", got)
	}

	flag = "/tmp/flag.toml"
	if got := ctx.resolveConfigPath(); got != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", got)
	}

	t.Setenv(envConfigPath, "")
	flag = ""
	if got := ctx.resolveConfigPath(); got != defaultConfigPath {
		t.Fatalf("缺省应使用 %s，得到 %s", defaultConfigPath, got)
	}
}

func TestCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := execute([]string{"--config", configFixture(t, "valid.toml"), "check-config"})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrBuffer().String())
	}
}

func TestCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := execute([]string{"--config", configFixture(t, "missing.toml"), "check-config"})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "加载配置失败") {
		t.Fatalf("stderr 应包含错误原因，得到 %s", stdErrBuffer().String())
	}
}

func TestVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := execute([]string{"--config", "/does/not/exist.toml", "version"})
	if code != 0 {
		t.Fatalf("version 不应加载配置，得到退出码 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "binge-hub") {
		t.Fatalf("version 输出应包含 binge-hub 标识")
	}
}

func TestRateCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfigFile(t, fmt.Sprintf(`
CacheDir = "%s"
RatingsPath = "%s"
`, filepath.Join(dir, "Cache"), filepath.Join(dir, "ratings.json")))

	useBufferWriters(t)
	if code := execute([]string{"--config", configPath, "rate", "550", "4"}); code != 0 {
		t.Fatalf("rate 失败: %s", stdErrBuffer().String())
	}
	if !strings.Contains(stdOutBuffer().String(), "movie 550: 4 stars") {
		t.Fatalf("unexpected output: %s", stdOutBuffer().String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "ratings.json"))
	if err != nil {
		t.Fatalf("读取评分文件失败: %v", err)
	}
	if !strings.Contains(string(data), `"550": 3`) {
		t.Fatalf("评分应以索引形式落盘，得到 %s", string(data))
	}

	stdOutBuffer().Reset()
	if code := execute([]string{"--config", configPath, "rate", "--toggle", "550", "4"}); code != 0 {
		t.Fatalf("toggle 失败: %s", stdErrBuffer().String())
	}
	if !strings.Contains(stdOutBuffer().String(), "rating cleared") {
		t.Fatalf("重复选择相同评分应清除，得到 %s", stdOutBuffer().String())
	}

	if code := execute([]string{"--config", configPath, "rate", "550", "6"}); code == 0 {
		t.Fatalf("越界评分应失败")
	}
}

func TestParseStars(t *testing.T) {
	cases := map[string]int{"1": 0, "5": 4, "clear": -1, " CLEAR ": -1}
	for raw, want := range cases {
		got, err := parseStars(raw)
		if err != nil || got != want {
			t.Fatalf("parseStars(%q) = %d, %v; want %d", raw, got, err, want)
		}
	}
	for _, raw := range []string{"0", "6", "five"} {
		if _, err := parseStars(raw); err == nil {
			t.Fatalf("parseStars(%q) should fail", raw)
		}
	}
}

func TestListsCommandJSON(t *testing.T) {
	upstream := newCatalogUpstream(t)
	configPath := upstream.writeConfig(t)

	useBufferWriters(t)
	if code := execute([]string{"--config", configPath, "rate", "11", "5"}); code != 0 {
		t.Fatalf("rate 失败: %s", stdErrBuffer().String())
	}
	stdOutBuffer().Reset()

	code := execute([]string{"--config", configPath, "lists", "--format", "json"})
	if code != 0 {
		t.Fatalf("lists 失败: %s", stdErrBuffer().String())
	}
	var rows []movieRow
	if err := json.Unmarshal(stdOutBuffer().Bytes(), &rows); err != nil {
		t.Fatalf("输出应为 JSON: %v (%s)", err, stdOutBuffer().String())
	}
	if len(rows) != 2 {
		t.Fatalf("期望 2 部影片，得到 %d", len(rows))
	}
	if rows[0].Title != "Star Wars" || rows[0].Stars != 5 || len(rows[0].Genres) != 1 || rows[0].Genres[0] != "Action" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
}

func TestListsCommandTable(t *testing.T) {
	upstream := newCatalogUpstream(t)
	configPath := upstream.writeConfig(t)

	useBufferWriters(t)
	code := execute([]string{"--config", configPath, "lists", "--format", "table"})
	if code != 0 {
		t.Fatalf("lists 失败: %s", stdErrBuffer().String())
	}
	out := stdOutBuffer().String()
	if !strings.Contains(out, "Finding Nemo") || !strings.Contains(out, "Comedy") {
		t.Fatalf("表格应包含影片与类型，得到 %s", out)
	}
}

func TestGenresCommand(t *testing.T) {
	upstream := newCatalogUpstream(t)
	configPath := upstream.writeConfig(t)

	useBufferWriters(t)
	if code := execute([]string{"--config", configPath, "genres"}); code != 0 {
		t.Fatalf("genres 失败: %s", stdErrBuffer().String())
	}
	if !strings.Contains(stdOutBuffer().String(), `"name": "Action"`) {
		t.Fatalf("非终端输出应为 JSON，得到 %s", stdOutBuffer().String())
	}
}

func TestFetchCommandPopulatesDiskCache(t *testing.T) {
	upstream := newCatalogUpstream(t)
	configPath := upstream.writeConfig(t)

	useBufferWriters(t)
	if code := execute([]string{"--config", configPath, "fetch", "poster1.jpg"}); code != 0 {
		t.Fatalf("fetch 失败: %s", stdErrBuffer().String())
	}
	if _, err := os.Stat(filepath.Join(upstream.dir, "Cache", "Images", "poster1.jpg")); err != nil {
		t.Fatalf("图片应写入磁盘层: %v", err)
	}

	stdOutBuffer().Reset()
	if code := execute([]string{"--config", configPath, "fetch", "/poster1.jpg"}); code != 0 {
		t.Fatalf("第二次 fetch 失败: %s", stdErrBuffer().String())
	}
	if hits := upstream.mediaHits.Load(); hits != 1 {
		t.Fatalf("第二次应命中磁盘层，源站请求次数 %d", hits)
	}

	if code := execute([]string{"--config", configPath, "fetch", "missing.jpg"}); code == 0 {
		t.Fatalf("缺失的资源应返回非零退出码")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BINGE_HUB_DOTENV_TEST=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("BINGE_HUB_DOTENV_TEST") })

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("加载 .env 失败: %v", err)
	}
	if got := os.Getenv("BINGE_HUB_DOTENV_TEST"); got != "from-dotenv" {
		t.Fatalf("期望从 .env 读取变量，得到 %q", got)
	}
	if err := loadDotEnv(filepath.Join(dir, "absent.env")); err != nil {
		t.Fatalf("缺失的 .env 应被忽略: %v", err)
	}
}

// catalogUpstream 模拟目录 API 与图片源站，供 CLI 子命令测试使用。
type catalogUpstream struct {
	*httptest.Server
	dir       string
	mediaHits atomic.Int32
}

func newCatalogUpstream(t *testing.T) *catalogUpstream {
	t.Helper()

	var poster bytes.Buffer
	if err := png.Encode(&poster, image.NewGray(image.Rect(0, 0, 4, 6))); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	up := &catalogUpstream{dir: t.TempDir()}
	mux := http.NewServeMux()
	mux.HandleFunc("/3/genre/movie/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"genres":[{"id":28,"name":"Action"},{"id":35,"name":"Comedy"}]}`))
	})
	mux.HandleFunc("/4/list/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"page":1,"total_pages":1,"results":[` +
			`{"id":11,"title":"Star Wars","release_date":"1977-05-25","genre_ids":[28],"poster_path":"/poster1.jpg"},` +
			`{"id":12,"title":"Finding Nemo","release_date":"2003-05-30","genre_ids":[35],"poster_path":"/poster2.jpg"}]}`))
	})
	mux.HandleFunc("/media/poster1.jpg", func(w http.ResponseWriter, r *http.Request) {
		up.mediaHits.Add(1)
		_, _ = w.Write(poster.Bytes())
	})
	up.Server = httptest.NewServer(mux)
	t.Cleanup(up.Close)
	return up
}

func (u *catalogUpstream) writeConfig(t *testing.T) string {
	t.Helper()
	return writeConfigFile(t, fmt.Sprintf(`
CacheDir = "%s"
RatingsPath = "%s"
UpstreamTimeout = "5s"
RequestTimeout = "10s"

[Catalog]
APIBaseURL = "%s"
MediaBaseURL = "%s/media"
APIToken = "test-token"
ListIDs = ["8300000"]
`, filepath.Join(u.dir, "Cache"), filepath.Join(u.dir, "ratings.json"), u.URL, u.URL))
}
