package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"
)

func newMetadataCommand(logger log.Logger, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "metadata LOCATION",
		Short: "Query the metadata of an upload on a tus server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			up, err := newUploader(logger, opts)
			if err != nil {
				return err
			}

			md, err := up.Metadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if md == nil {
				return errors.New("unable to get metadata")
			}

			keys := make([]string, 0, len(md))
			for key := range md {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			for _, key := range keys {
				if value, present := md[key].Bytes(); present {
					cmd.Println(fmt.Sprintf("%s: %s", key, value))
				} else {
					cmd.Println(key)
				}
			}
			return nil
		},
	}
}
