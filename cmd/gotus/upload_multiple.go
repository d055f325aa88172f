package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bitrise-io/go-tus/metadata"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
)

func newUploadMultipleCommand(logger log.Logger, opts *options) *cobra.Command {
	var metaFlags []string

	cmd := &cobra.Command{
		Use:   "upload-multiple ENDPOINT PATTERN...",
		Short: "Upload multiple files as one concatenated upload",
		Long: `Upload multiple files as partial uploads and combine them server-side
using the tus concatenation extension. PATTERN supports doublestar globs
(for example 'parts/**/*.bin'); parts are concatenated in match order.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, patterns := args[0], args[1:]

			paths, err := expandPatterns(patterns)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return errors.New("no files match the given patterns")
			}

			sources := make([]io.ReadSeeker, 0, len(paths))
			for _, path := range paths {
				file, err := os.Open(path)
				if err != nil {
					return err
				}
				defer func(file *os.File) {
					if err := file.Close(); err != nil {
						logger.Warnf("Failed to close file: %s", err)
					}
				}(file)
				sources = append(sources, file)
			}

			md := metadata.Metadata{}
			applyMetaFlags(md, metaFlags)

			up, err := newUploader(logger, opts)
			if err != nil {
				return err
			}

			location, err := up.UploadMultiple(cmd.Context(), endpoint, sources, md)
			if err != nil {
				return err
			}
			if location == nil {
				return errors.New("unable to upload files")
			}

			cmd.Println(location)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&metaFlags, "meta", nil, "additional metadata for the final upload ('key[=value]')")

	return cmd
}

// expandPatterns resolves the glob patterns into file paths, preserving
// pattern order. A pattern without glob characters must name an existing
// file.
func expandPatterns(patterns []string) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matches no files", pattern)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}
