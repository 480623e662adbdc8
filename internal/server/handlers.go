package server

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/binge-hub/binge-hub/internal/catalog"
	"github.com/binge-hub/binge-hub/internal/ratings"
)

type handlers struct {
	opts AppOptions
}

// MovieView 是影片与 genre 名称、本地评分合并后的视图。
type MovieView struct {
	catalog.Movie
	Genres []string `json:"genres"`
	Stars  int      `json:"stars,omitempty"`
}

type genrePayload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ratingPayload struct {
	MovieID int64 `json:"movie_id"`
	Stars   int   `json:"stars"`
}

type ratingRequest struct {
	Stars int `json:"stars"`
}

func (h *handlers) requestContext(c fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, h.opts.RequestTimeout)
}

// image 解析 /images/<path>，命中内存时不会产生任何 worker。
func (h *handlers) image(c fiber.Ctx) error {
	key := "/" + strings.TrimLeft(c.Params("*"), "/")
	if key == "/" {
		return fiber.NewError(fiber.StatusBadRequest, "image_path_required")
	}

	_, cached := h.opts.Images.Peek(key)
	ctx, cancel := h.requestContext(c)
	defer cancel()
	img, err := h.opts.Images.Await(ctx, key)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, img.ContentType())
	c.Set("X-Binge-Hub-Cache-Hit", strconv.FormatBool(cached))
	c.Set("X-Binge-Hub-Image-Size", strconv.Itoa(img.Width)+"x"+strconv.Itoa(img.Height))
	return c.Send(img.Data)
}

func (h *handlers) genres(c fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()
	lookup, err := h.opts.Catalog.Genres(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"genres": encodeGenres(lookup)})
}

func (h *handlers) list(c fiber.Ctx) error {
	listID := strings.TrimSpace(c.Params("id"))
	if listID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "list_id_required")
	}
	return h.renderMovies(c, func(ctx context.Context) ([]catalog.Movie, error) {
		return h.opts.Catalog.Movies(ctx, listID)
	})
}

// library 合并配置中的全部列表。
func (h *handlers) library(c fiber.Ctx) error {
	return h.renderMovies(c, func(ctx context.Context) ([]catalog.Movie, error) {
		return h.opts.Catalog.Library(ctx, h.opts.ListIDs)
	})
}

func (h *handlers) renderMovies(c fiber.Ctx, load func(context.Context) ([]catalog.Movie, error)) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	lookup, err := h.opts.Catalog.Genres(ctx)
	if err != nil {
		return err
	}
	movies, err := load(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"movies": mergeMovies(movies, lookup, h.opts.Ratings),
		"count":  len(movies),
	})
}

func (h *handlers) listRatings(c fiber.Ctx) error {
	all := h.opts.Ratings.All()
	result := make([]ratingPayload, 0, len(all))
	for _, r := range all {
		result = append(result, ratingPayload{MovieID: r.MovieID, Stars: r.Stars()})
	}
	return c.JSON(fiber.Map{"ratings": result})
}

// putRating 设置评分；stars 为 0 时清除。
func (h *handlers) putRating(c fiber.Ctx) error {
	movieID, req, err := parseRatingRequest(c)
	if err != nil {
		return err
	}
	if err := h.opts.Ratings.Set(movieID, req.Stars-1); err != nil {
		return err
	}
	return c.JSON(ratingPayload{MovieID: movieID, Stars: req.Stars})
}

// toggleRating 与界面点击星级一致：重复选择同一星级即清除。
func (h *handlers) toggleRating(c fiber.Ctx) error {
	movieID, req, err := parseRatingRequest(c)
	if err != nil {
		return err
	}
	rating, rated, err := h.opts.Ratings.Toggle(movieID, req.Stars-1)
	if err != nil {
		return err
	}
	stars := 0
	if rated {
		stars = rating.Stars()
	}
	return c.JSON(ratingPayload{MovieID: movieID, Stars: stars})
}

func parseRatingRequest(c fiber.Ctx) (int64, ratingRequest, error) {
	var req ratingRequest
	movieID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || movieID <= 0 {
		return 0, req, fiber.NewError(fiber.StatusBadRequest, "invalid_movie_id")
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return 0, req, fiber.NewError(fiber.StatusBadRequest, "invalid_body")
	}
	if req.Stars < 0 || req.Stars > ratings.MaxIndex+1 {
		return 0, req, fiber.NewError(fiber.StatusBadRequest, "invalid_rating")
	}
	return movieID, req, nil
}

func encodeGenres(lookup catalog.GenreLookup) []genrePayload {
	result := make([]genrePayload, 0, len(lookup))
	for id, name := range lookup {
		result = append(result, genrePayload{ID: id, Name: name})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

func mergeMovies(movies []catalog.Movie, lookup catalog.GenreLookup, store *ratings.Store) []MovieView {
	result := make([]MovieView, 0, len(movies))
	for _, movie := range movies {
		view := MovieView{Movie: movie, Genres: lookup.Names(movie.GenreIDs)}
		if rating, ok := store.Get(movie.ID); ok {
			view.Stars = rating.Stars()
		}
		result = append(result, view)
	}
	return result
}
