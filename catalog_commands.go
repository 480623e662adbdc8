package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/binge-hub/binge-hub/internal/catalog"
	"github.com/binge-hub/binge-hub/internal/config"
	"github.com/binge-hub/binge-hub/internal/ratings"
)

type movieRow struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Genres      []string `json:"genres"`
	PosterPath  string   `json:"poster_path,omitempty"`
	Stars       int      `json:"stars,omitempty"`
}

func newListsCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "lists [listID...]",
		Short: "Show the movies of the configured (or given) lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := useTable(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt, err := ctx.buildRuntime(logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			store, err := ctx.openRatings()
			if err != nil {
				return err
			}

			listIDs := args
			if len(listIDs) == 0 {
				listIDs = rt.cfg.Catalog.ListIDs
			}
			if len(listIDs) == 0 {
				return fmt.Errorf("未配置影片列表：设置 Catalog.ListIDs 或 %s", config.EnvListIDs)
			}

			reqCtx, cancel := context.WithTimeout(commandContextOf(cmd), rt.cfg.Global.RequestTimeout.DurationValue())
			defer cancel()
			lookup, err := rt.metadata.Genres(reqCtx)
			if err != nil {
				return err
			}
			movies, err := rt.metadata.Library(reqCtx, listIDs)
			if err != nil {
				return err
			}

			rows := buildMovieRows(movies, lookup, store)
			if !table {
				return writeJSON(cmd, rows)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderMovieTable(rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, table or json")
	return cmd
}

func newGenresCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "genres",
		Short: "Show the genre lookup table",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := useTable(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			rt, err := ctx.buildRuntime(logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			reqCtx, cancel := context.WithTimeout(commandContextOf(cmd), rt.cfg.Global.RequestTimeout.DurationValue())
			defer cancel()
			lookup, err := rt.metadata.Genres(reqCtx)
			if err != nil {
				return err
			}

			ids := make([]int, 0, len(lookup))
			for id := range lookup {
				ids = append(ids, id)
			}
			sort.Ints(ids)

			if !table {
				type genre struct {
					ID   int    `json:"id"`
					Name string `json:"name"`
				}
				out := make([]genre, 0, len(ids))
				for _, id := range ids {
					out = append(out, genre{ID: id, Name: lookup[id]})
				}
				return writeJSON(cmd, out)
			}

			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, []string{strconv.Itoa(id), lookup[id]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Genre"}, rows, []columnAlignment{alignRight, alignLeft}))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, table or json")
	return cmd
}

func buildMovieRows(movies []catalog.Movie, lookup catalog.GenreLookup, store *ratings.Store) []movieRow {
	rows := make([]movieRow, 0, len(movies))
	for _, movie := range movies {
		row := movieRow{
			ID:          movie.ID,
			Title:       movie.Title,
			ReleaseDate: movie.ReleaseDate,
			Genres:      lookup.Names(movie.GenreIDs),
			PosterPath:  movie.PosterPath,
		}
		if rating, ok := store.Get(movie.ID); ok {
			row.Stars = rating.Stars()
		}
		rows = append(rows, row)
	}
	return rows
}

func renderMovieTable(rows []movieRow) string {
	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		stars := ""
		if row.Stars > 0 {
			stars = strings.Repeat("★", row.Stars)
		}
		cells = append(cells, []string{
			strconv.FormatInt(row.ID, 10),
			row.Title,
			row.ReleaseDate,
			strings.Join(row.Genres, ", "),
			stars,
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Released", "Genres", "Rating"},
		cells,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func commandContextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
