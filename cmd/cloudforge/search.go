package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Silversoul-07/cloudforge"
)

var searchFlags struct {
	model string
	text  string
	image string
	k     int
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the images most similar to a text or an image",
	Long: `Embed the query with one model and return its nearest indexed images,
best first. Exactly one of --text and --image is required; dino accepts only
images.

Examples:
  cloudforge search --model clip --text "sunset over the sea"
  cloudforge search --model dino --image query.jpg -k 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		req := cloudforge.SearchRequest{
			Model: searchFlags.model,
			Text:  searchFlags.text,
			K:     searchFlags.k,
		}

		return withSession(cmd.Context(), func(s *session) error {
			if searchFlags.image != "" {
				data, err := s.read(cmd, searchFlags.image)
				if err != nil {
					return err
				}
				req.Image = data
			}

			hits, err := s.engine.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, hits)
		})
	},
}

var colorFlags struct {
	limit int
}

var colorCmd = &cobra.Command{
	Use:   "color <image>",
	Short: "Rank ingested images by color-histogram similarity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			data, err := s.read(cmd, args[0])
			if err != nil {
				return err
			}

			matches, err := s.engine.SearchByColor(cmd.Context(), data, colorFlags.limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, matches)
		})
	},
}

func init() {
	f := searchCmd.Flags()
	f.StringVarP(&searchFlags.model, "model", "m", "clip", "embedding model: clip, siglip or dino")
	f.StringVarP(&searchFlags.text, "text", "t", "", "text query")
	f.StringVarP(&searchFlags.image, "image", "i", "", "image query file, - for stdin")
	f.IntVarP(&searchFlags.k, "k", "k", 10, "number of results")
	searchCmd.MarkFlagsMutuallyExclusive("text", "image")
	searchCmd.PreRunE = func(*cobra.Command, []string) error {
		if searchFlags.text == "" && searchFlags.image == "" {
			return errors.New("one of --text or --image is required")
		}
		return nil
	}

	colorCmd.Flags().IntVarP(&colorFlags.limit, "limit", "n", 10, "number of results, 0 for all")

	rootCmd.AddCommand(searchCmd, colorCmd)
}
