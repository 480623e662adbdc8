package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPagedListingFollowsTotalPages(t *testing.T) {
	api := newCatalogStub(t, 3)
	client := newTestClient(t, api.URL, api.URL, 4)

	items, err := client.FetchPagedListing(context.Background(), client.ListEndpoint("8300000"))
	require.NoError(t, err)

	assert.EqualValues(t, 3, api.listHits.Load())
	require.Len(t, items, 6)
	var ids []int64
	for _, raw := range items {
		var movie Movie
		require.NoError(t, json.Unmarshal(raw, &movie))
		ids = append(ids, movie.ID)
	}
	assert.Equal(t, []int64{11, 12, 21, 22, 31, 32}, ids)
}

func TestFetchPagedListingSinglePage(t *testing.T) {
	api := newCatalogStub(t, 1)
	client := newTestClient(t, api.URL, api.URL, 4)

	movies, err := client.Movies(context.Background(), "8300000")
	require.NoError(t, err)
	assert.EqualValues(t, 1, api.listHits.Load())
	require.Len(t, movies, 2)
	assert.Equal(t, "Movie 11", movies[0].Title)
}

func TestFetchPagedListingFailsWhole(t *testing.T) {
	api := newCatalogStub(t, 3)
	api.failPage = 2
	client := newTestClient(t, api.URL, api.URL, 1)

	items, err := client.FetchPagedListing(context.Background(), client.ListEndpoint("8300000"))
	assert.Nil(t, items)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, KindStatus, netErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, netErr.StatusCode)
}

func TestFetchPagedListingRejectsAbsurdTotalPages(t *testing.T) {
	for _, total := range []int{MaxPages + 1, 9000000000000000000} {
		api := newCatalogStub(t, total)
		client := newTestClient(t, api.URL, api.URL, 4)

		var items []json.RawMessage
		var err error
		require.NotPanics(t, func() {
			items, err = client.FetchPagedListing(context.Background(), client.ListEndpoint("8300000"))
		})
		assert.Nil(t, items)
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.Contains(t, decodeErr.Error(), "total_pages")
		assert.EqualValues(t, 1, api.listHits.Load())
	}
}

func TestFetchPagedListingAcceptsMaxPages(t *testing.T) {
	api := newCatalogStub(t, MaxPages)
	client := newTestClient(t, api.URL, api.URL, 16)

	items, err := client.FetchPagedListing(context.Background(), client.ListEndpoint("8300000"))
	require.NoError(t, err)
	assert.Len(t, items, 2*MaxPages)
	assert.EqualValues(t, MaxPages, api.listHits.Load())
}

func TestFetchJSONSendsBearerToken(t *testing.T) {
	api := newCatalogStub(t, 1)
	client := newTestClient(t, api.URL, api.URL, 1)

	lookup, err := client.Genres(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Action", lookup[28])
	assert.Equal(t, "Bearer test-token", api.lastAuth())
	assert.Equal(t, "application/json", api.lastAccept())
}

func TestFetchBytesIsAnonymous(t *testing.T) {
	api := newCatalogStub(t, 1)
	client := newTestClient(t, api.URL, api.URL+"/t/p/original", 1)

	body, err := client.FetchBytes(context.Background(), client.MediaURL("/poster1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "image:/t/p/original/poster1.jpg", string(body))
	assert.Empty(t, api.lastAuth())
}

func TestFetchJSONDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"genres": [`))
	}))
	defer srv.Close()
	client := newTestClient(t, srv.URL, srv.URL, 1)

	var out genreResponse
	err := client.FetchJSON(context.Background(), "/3/genre/movie/list", &out)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, decodeErr.URL, "/3/genre/movie/list")
}

func TestNetworkErrorKinds(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()
		client := newTestClient(t, srv.URL, srv.URL, 1)

		_, err := client.FetchBytes(context.Background(), srv.URL+"/missing.jpg")
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, KindStatus, netErr.Kind)
		assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
	})

	t.Run("connect", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		target := srv.URL
		srv.Close()
		client := newTestClient(t, target, target, 1)

		_, err := client.FetchBytes(context.Background(), target+"/poster1.jpg")
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, KindConnect, netErr.Kind)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		client, err := NewClient(ClientOptions{
			HTTPClient:   NewHTTPClient(50 * time.Millisecond),
			APIBaseURL:   srv.URL,
			MediaBaseURL: srv.URL,
		})
		require.NoError(t, err)

		_, err = client.FetchBytes(context.Background(), srv.URL+"/slow.jpg")
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, KindTimeout, netErr.Kind)
	})
}

func TestNewClientValidatesURLs(t *testing.T) {
	_, err := NewClient(ClientOptions{APIBaseURL: "api.themoviedb.org", MediaBaseURL: "https://image.tmdb.org"})
	assert.Error(t, err)
	_, err = NewClient(ClientOptions{APIBaseURL: "https://api.themoviedb.org", MediaBaseURL: ""})
	assert.Error(t, err)
}

func TestResolveEndpoint(t *testing.T) {
	client := newTestClient(t, "https://api.example.test/base/", "https://img.example.test", 1)

	got, err := client.resolve("/4/list/1?language=en-US")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.test/base/4/list/1?language=en-US", got)

	got, err = client.resolve("https://other.example.test/x")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.test/x", got)
}

func TestGenreLookupNames(t *testing.T) {
	lookup := GenreLookup{28: "Action", 35: "Comedy"}
	assert.Equal(t, []string{"Comedy", "Action"}, lookup.Names([]int{35, 99, 28}))
}

// catalogStub 模拟目录 API：/4/list/<id> 分页、/3/genre/movie/list、其余路径视为图片。
type catalogStub struct {
	*httptest.Server

	totalPages int
	failPage   int

	listHits  atomic.Int32
	genreHits atomic.Int32
	mediaHits atomic.Int32

	mu     sync.Mutex
	auth   string
	accept string
}

func newCatalogStub(t *testing.T, totalPages int) *catalogStub {
	t.Helper()
	stub := &catalogStub{totalPages: totalPages}
	mux := http.NewServeMux()
	mux.HandleFunc("/4/list/", stub.handleList)
	mux.HandleFunc("/3/genre/movie/list", stub.handleGenres)
	mux.HandleFunc("/", stub.handleMedia)
	stub.Server = httptest.NewServer(mux)
	t.Cleanup(stub.Close)
	return stub
}

func (s *catalogStub) record(r *http.Request) {
	s.mu.Lock()
	s.auth = r.Header.Get("Authorization")
	s.accept = r.Header.Get("Accept")
	s.mu.Unlock()
}

func (s *catalogStub) lastAuth() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *catalogStub) lastAccept() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accept
}

func (s *catalogStub) handleList(w http.ResponseWriter, r *http.Request) {
	s.listHits.Add(1)
	s.record(r)
	n, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if n == s.failPage {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	// 第 2 页故意变慢，验证结果仍按页序拼接。
	if n == 2 {
		time.Sleep(30 * time.Millisecond)
	}
	results := []map[string]any{
		{"id": n*10 + 1, "title": fmt.Sprintf("Movie %d", n*10+1), "genre_ids": []int{28}, "poster_path": fmt.Sprintf("/p%d1.jpg", n)},
		{"id": n*10 + 2, "title": fmt.Sprintf("Movie %d", n*10+2), "genre_ids": []int{35}, "poster_path": fmt.Sprintf("/p%d2.jpg", n)},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"page":          n,
		"total_pages":   s.totalPages,
		"total_results": 2 * s.totalPages,
		"results":       results,
	})
}

func (s *catalogStub) handleGenres(w http.ResponseWriter, r *http.Request) {
	s.genreHits.Add(1)
	s.record(r)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"genres":[{"id":28,"name":"Action"},{"id":35,"name":"Comedy"}]}`))
}

func (s *catalogStub) handleMedia(w http.ResponseWriter, r *http.Request) {
	s.mediaHits.Add(1)
	s.record(r)
	_, _ = w.Write([]byte("image:" + r.URL.Path))
}

func newTestClient(t *testing.T, apiURL, mediaURL string, pageConcurrency int) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{
		HTTPClient:      NewHTTPClient(5 * time.Second),
		APIBaseURL:      apiURL,
		MediaBaseURL:    mediaURL,
		Token:           "test-token",
		PageConcurrency: pageConcurrency,
	})
	require.NoError(t, err)
	return client
}
