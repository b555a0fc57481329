package main

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/opd-ai/cryptosync/limits"
	"github.com/opd-ai/cryptosync/record"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	LogLevel   string
	Format     string // "text" | "json"
	ConfigFile string
	Collection string
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Encrypted record sync toolkit",
		Long:          "Derive sync keys, encrypt and decrypt record files, validate bookmark replicas and import or export records through an encrypted repository.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(opts.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
			}
			logrus.SetLevel(level)
			logrus.SetOutput(cmd.ErrOrStderr())

			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML repository configuration")
	cmd.PersistentFlags().StringVar(&opts.Collection, "collection", record.BookmarksCollection, "collection the records belong to")

	cmd.AddCommand(newKeysCommand(opts))
	cmd.AddCommand(newEncryptCommand(opts))
	cmd.AddCommand(newDecryptCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newExportCommand(opts))

	return cmd
}

// readInput reads path, or standard input for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("no input file given")
	}
	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}
	data, err := io.ReadAll(io.LimitReader(in, limits.MaxInputFile+1))
	if err != nil {
		return nil, err
	}
	if err := limits.ValidateInputFile(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// writeOutput writes data to path, or standard output for "" and "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
