// gotus is a command line client for tus (tus.io) servers.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bitrise-io/go-tus/protocol"
	"github.com/bitrise-io/go-tus/uploader"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

func main() {
	logger := log.NewLogger()

	root := newRootCommand(logger)
	if err := root.Execute(); err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

// options holds the global flags shared by all commands.
type options struct {
	debug        bool
	configPath   string
	retries      int
	maxRetryWait time.Duration
	chunkSize    string
	parallel     int
	insecure     bool
	headers      map[string]string
}

// fileConfig mirrors the optional TOML configuration file.
type fileConfig struct {
	Retries         int               `toml:"retries"`
	MaxRetryWait    string            `toml:"max_retry_wait"`
	ChunkSize       string            `toml:"chunk_size"`
	ParallelUploads int               `toml:"parallel_uploads"`
	Insecure        bool              `toml:"insecure"`
	Headers         map[string]string `toml:"headers"`
}

func newRootCommand(logger log.Logger) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:           "gotus",
		Short:         "Upload files to a tus server and query upload metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.EnableDebugLog(opts.debug)
			if opts.configPath == "" {
				return nil
			}
			return applyConfigFile(cmd, &opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", false, "log debug messages")
	flags.StringVar(&opts.configPath, "config", "", "path to a TOML configuration file")
	flags.IntVar(&opts.retries, "retries", uploader.DefaultRetryAttempts, "number of attempts per operation")
	flags.DurationVar(&opts.maxRetryWait, "max-retry-wait", uploader.DefaultMaxRetryWait, "maximum wait time between retries")
	flags.StringVar(&opts.chunkSize, "chunk-size", units.BytesSize(float64(protocol.DefaultChunkSize)), "chunk size per PATCH request (for example 4MiB)")
	flags.IntVar(&opts.parallel, "parallel", uploader.DefaultParallelUploads, "number of parallel part uploads")
	flags.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")

	cmd.AddCommand(newUploadCommand(logger, &opts))
	cmd.AddCommand(newUploadMultipleCommand(logger, &opts))
	cmd.AddCommand(newMetadataCommand(logger, &opts))

	return cmd
}

// applyConfigFile loads the TOML configuration file and applies its values
// to every option the user did not override on the command line.
func applyConfigFile(cmd *cobra.Command, opts *options) error {
	var config fileConfig
	if _, err := toml.DecodeFile(opts.configPath, &config); err != nil {
		return fmt.Errorf("load config file: %w", err)
	}

	flags := cmd.Flags()
	if config.Retries > 0 && !flags.Changed("retries") {
		opts.retries = config.Retries
	}
	if config.MaxRetryWait != "" && !flags.Changed("max-retry-wait") {
		wait, err := time.ParseDuration(config.MaxRetryWait)
		if err != nil {
			return fmt.Errorf("invalid max_retry_wait in config file: %w", err)
		}
		opts.maxRetryWait = wait
	}
	if config.ChunkSize != "" && !flags.Changed("chunk-size") {
		opts.chunkSize = config.ChunkSize
	}
	if config.ParallelUploads > 0 && !flags.Changed("parallel") {
		opts.parallel = config.ParallelUploads
	}
	if config.Insecure && !flags.Changed("insecure") {
		opts.insecure = true
	}
	opts.headers = config.Headers

	return nil
}

// newUploader builds an Uploader from the global options.
func newUploader(logger log.Logger, opts *options) (*uploader.Uploader, error) {
	chunkSize, err := units.RAMInBytes(opts.chunkSize)
	if err != nil {
		return nil, fmt.Errorf("invalid chunk size %q: %w", opts.chunkSize, err)
	}

	return uploader.New(uploader.Config{
		Retry: uploader.RetryConfiguration{
			RetryAttempts:      opts.retries,
			MaxRetryWait:       opts.maxRetryWait,
			InsecureSkipVerify: opts.insecure,
		},
		Logger:          logger,
		ChunkSize:       chunkSize,
		ParallelUploads: opts.parallel,
		Headers:         opts.headers,
	}), nil
}
