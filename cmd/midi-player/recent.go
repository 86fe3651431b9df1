package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/JeanRibes/midi-player/config"
	"github.com/spf13/cobra"
)

var recentFlags struct {
	prune bool
	clear bool
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the recently played files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.RecentPath()
		if err != nil {
			return err
		}
		recent, err := config.LoadRecent(path)
		if err != nil {
			return err
		}
		switch {
		case recentFlags.clear:
			recent.Files = nil
			return recent.Save()
		case recentFlags.prune:
			recent.Prune()
			if err := recent.Save(); err != nil {
				return err
			}
		}

		files := recent.Latest()
		prefix := files.Prefix()
		if prefix != "" {
			fmt.Println(titleStyle.Render(prefix))
		}
		for i, f := range files {
			when := time.Unix(f.Time, 0).Format(time.DateTime)
			fmt.Println(indexStyle.Render(fmt.Sprint(i)), metaStyle.Render(when), strings.TrimPrefix(f.Path, prefix))
		}
		return nil
	},
}

func init() {
	recentCmd.Flags().BoolVar(&recentFlags.prune, "prune", false, "forget the files that no longer exist")
	recentCmd.Flags().BoolVar(&recentFlags.clear, "clear", false, "forget every file")
}
