package catalog

import "encoding/json"

// Movie 是列表接口返回的单部影片，字段沿用 TMDB 命名。
type Movie struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	ReleaseDate  string  `json:"release_date"`
	GenreIDs     []int   `json:"genre_ids"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
}

// GenreLookup 是 genre id → 名称的映射。
type GenreLookup map[int]string

// Names 按 ids 顺序返回类型名称，未知 id 被忽略。
func (g GenreLookup) Names(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := g[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

// page 是分页列表接口的单页响应。
type page struct {
	Page         int               `json:"page"`
	TotalPages   int               `json:"total_pages"`
	TotalResults int               `json:"total_results"`
	Results      []json.RawMessage `json:"results"`
}

type genreResponse struct {
	Genres []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
}
