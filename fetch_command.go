package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/binge-hub/binge-hub/internal/assetcache"
)

type fetchResult struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Bytes  int    `json:"bytes,omitempty"`
	Error  string `json:"error,omitempty"`
}

// newFetchCommand 通过分层缓存预取图片，结果写入磁盘层，后续启动可直接命中。
func newFetchCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "fetch <path>...",
		Short: "Resolve poster or backdrop paths through the cache",
		Args:  cobra.MinimumNArgs(1),
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

			results := make([]fetchResult, len(args))
			var g errgroup.Group
			for i, raw := range args {
				key := normalizeImagePath(raw)
				g.Go(func() error {
					img, err := rt.images.Await(reqCtx, key)
					results[i] = describeFetch(key, img, err)
					return nil
				})
			}
			_ = g.Wait()

			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
				}
			}

			if table {
				fmt.Fprintln(cmd.OutOrStdout(), renderFetchTable(results))
				stats := rt.images.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "disk hits: %d, network fetches: %d, failures: %d\n",
					stats.DiskHits, stats.NetworkFetches, stats.Failures)
			} else if err := writeJSON(cmd, results); err != nil {
				return err
			}

			if failed > 0 {
				return fmt.Errorf("%d/%d 个资源获取失败", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, table or json")
	return cmd
}

// normalizeImagePath 接受 "poster1.jpg" 或 "/poster1.jpg"，统一成带前导斜杠的 key。
func normalizeImagePath(raw string) string {
	return "/" + strings.TrimLeft(strings.TrimSpace(raw), "/")
}

func describeFetch(key string, img *assetcache.Image, err error) fetchResult {
	if err != nil {
		return fetchResult{Path: key, Error: err.Error()}
	}
	return fetchResult{
		Path:   key,
		Format: img.Format,
		Width:  img.Width,
		Height: img.Height,
		Bytes:  len(img.Data),
	}
}

func renderFetchTable(results []fetchResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.Error != "" {
			rows = append(rows, []string{r.Path, "-", "-", "-", r.Error})
			continue
		}
		rows = append(rows, []string{
			r.Path,
			r.Format,
			fmt.Sprintf("%dx%d", r.Width, r.Height),
			strconv.Itoa(r.Bytes),
			"ok",
		})
	}
	return renderTable(
		[]string{"Path", "Format", "Size", "Bytes", "Status"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
