package main

import "github.com/spf13/cobra"

var tagFlags struct {
	limit int
}

var tagCmd = &cobra.Command{
	Use:   "tag <image>",
	Short: "Predict descriptive tags for an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			data, err := s.read(cmd, args[0])
			if err != nil {
				return err
			}

			tags, err := s.engine.Tag(cmd.Context(), data, tagFlags.limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, tags)
		})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score <image>",
	Short: "Predict the aesthetic score of an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			data, err := s.read(cmd, args[0])
			if err != nil {
				return err
			}

			score, err := s.engine.Score(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]float32{"score": score})
		})
	},
}

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("cloudforge %s\n", version)
	},
}

func init() {
	tagCmd.Flags().IntVarP(&tagFlags.limit, "limit", "n", 10, "maximum number of tags")

	rootCmd.AddCommand(tagCmd, scoreCmd, versionCmd)
}
