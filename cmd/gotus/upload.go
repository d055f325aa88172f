package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-tus/metadata"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
)

func newUploadCommand(logger log.Logger, opts *options) *cobra.Command {
	var metaFlags []string
	var compress bool

	cmd := &cobra.Command{
		Use:   "upload ENDPOINT FILE",
		Short: "Upload a file to a tus server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, path := args[0], args[1]

			filename := filepath.Base(path)
			md := metadata.Metadata{}
			if mimeType := mime.TypeByExtension(filepath.Ext(path)); mimeType != "" {
				md["mime_type"] = metadata.NewStringValue(mimeType)
			}

			if compress {
				compressedPath, err := compressToTemp(path)
				if err != nil {
					return fmt.Errorf("compress file: %w", err)
				}
				defer func() {
					if err := os.Remove(compressedPath); err != nil {
						logger.Warnf("Failed to remove temporary file: %s", err)
					}
				}()
				path = compressedPath
				filename += ".zst"
				md["mime_type"] = metadata.NewStringValue("application/zstd")
			}

			md["filename"] = metadata.NewStringValue(filename)
			applyMetaFlags(md, metaFlags)

			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func() {
				if err := file.Close(); err != nil {
					logger.Warnf("Failed to close file: %s", err)
				}
			}()

			up, err := newUploader(logger, opts)
			if err != nil {
				return err
			}

			location, err := up.Upload(cmd.Context(), endpoint, file, md)
			if err != nil {
				return err
			}
			if location == nil {
				return errors.New("unable to upload file")
			}

			cmd.Println(location)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&metaFlags, "meta", nil, "additional metadata to upload ('key[=value]')")
	cmd.Flags().BoolVar(&compress, "compress", false, "zstd-compress the file before uploading")

	return cmd
}

// applyMetaFlags merges 'key[=value]' command line pairs into the metadata.
func applyMetaFlags(md metadata.Metadata, metaFlags []string) {
	for _, meta := range metaFlags {
		key, value, found := strings.Cut(meta, "=")
		if found {
			md[key] = metadata.NewStringValue(value)
		} else {
			md[key] = metadata.NoValue()
		}
	}
}

// compressToTemp writes a zstd-compressed copy of the file to a temporary
// file and returns its path. The caller removes the file when done.
func compressToTemp(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp("", "gotus-*.zst")
	if err != nil {
		return "", err
	}

	encoder, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return "", err
	}

	if _, err := io.Copy(encoder, in); err != nil {
		encoder.Close()
		out.Close()
		return "", err
	}
	if err := encoder.Close(); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	return out.Name(), nil
}
