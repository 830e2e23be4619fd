package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Silversoul-07/cloudforge"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <image>...",
	Short: "Store images and index them in every enabled model",
	Long: `Store each image, record its color fingerprint and embed it with every
enabled model. A model that fails is reported per image and does not stop the
others. Arguments starting with http:// or https:// are downloaded; files and
downloads are both subject to images.max_bytes and images.max_pixels.

Examples:
  cloudforge ingest photos/*.jpg
  cloudforge ingest https://example.com/beach.jpg
  cat beach.png | cloudforge ingest -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(s *session) error {
			results := make([]*cloudforge.IngestResult, 0, len(args))
			for _, name := range args {
				res, err := ingestArg(cmd, s, name)
				if err != nil {
					return err
				}
				results = append(results, res)
			}
			return printJSON(cmd, results)
		})
	},
}

func ingestArg(cmd *cobra.Command, s *session, name string) (*cloudforge.IngestResult, error) {
	if isURL(name) {
		return s.engine.IngestURL(cmd.Context(), name)
	}

	data, err := s.read(cmd, name)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(name)
	if name == "-" {
		filename = ""
	}

	return s.engine.Ingest(cmd.Context(), data, filename)
}

var forgetCmd = &cobra.Command{
	Use:   "forget <id>...",
	Short: "Remove images from every index and delete the stored objects",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(e *cloudforge.Engine) error {
			removed := make(map[string]int, len(args))
			for _, id := range args {
				n, err := e.Forget(cmd.Context(), id)
				if err != nil {
					return err
				}
				removed[id] = n
			}
			return printJSON(cmd, removed)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index sizes and model cache state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withEngine(cmd.Context(), func(e *cloudforge.Engine) error {
			return printJSON(cmd, e.Stats())
		})
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd, forgetCmd, statsCmd)
}
