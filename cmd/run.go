package cmd

import (
	"log"

	"github.com/levelcord/levelcord/levelcord"
	"github.com/spf13/cobra"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Starts the LevelCord bot and (optionally) the HTTP API",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			bot, err := levelcord.New(cfg)
			if err != nil {
				log.Fatalf("error creating levelcord: %s", err.Error())
			}

			if err = bot.Run(ctx); err != nil {
				log.Fatalf("error running levelcord: %s", err.Error())
			}
		},
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
}
