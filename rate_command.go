package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/binge-hub/binge-hub/internal/ratings"
)

func newRateCommand(ctx *commandContext) *cobra.Command {
	var toggle bool

	cmd := &cobra.Command{
		Use:   "rate <movieID> <1-5|clear>",
		Short: "Set or clear the local star rating of a movie",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			movieID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || movieID <= 0 {
				return fmt.Errorf("无效的影片 ID %q", args[0])
			}
			index, err := parseStars(args[1])
			if err != nil {
				return err
			}

			store, err := ctx.openRatings()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if toggle && index >= 0 {
				rating, rated, err := store.Toggle(movieID, index)
				if err != nil {
					return err
				}
				if !rated {
					fmt.Fprintf(out, "movie %d: rating cleared\n", movieID)
					return nil
				}
				fmt.Fprintf(out, "movie %d: %d stars\n", movieID, rating.Stars())
				return nil
			}

			if err := store.Set(movieID, index); err != nil {
				return err
			}
			if index < 0 {
				fmt.Fprintf(out, "movie %d: rating cleared\n", movieID)
				return nil
			}
			fmt.Fprintf(out, "movie %d: %d stars\n", movieID, index+1)
			return nil
		},
	}

	cmd.Flags().BoolVar(&toggle, "toggle", false, "Clear the rating when it already equals the given stars")
	return cmd
}

// parseStars 把 1..5 转成评分索引，"clear" 返回 -1。
func parseStars(raw string) (int, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "clear" || value == "none" {
		return -1, nil
	}
	stars, err := strconv.Atoi(value)
	if err != nil || stars < 1 || stars > ratings.MaxIndex+1 {
		return 0, fmt.Errorf("评分必须是 1-%d 或 clear，得到 %q", ratings.MaxIndex+1, raw)
	}
	return stars - 1, nil
}
