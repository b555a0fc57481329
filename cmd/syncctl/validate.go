package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opd-ai/cryptosync/record"
	"github.com/opd-ai/cryptosync/validator"
	"github.com/spf13/cobra"
)

// errProblemsFound makes validate exit non-zero when replicas disagree.
var errProblemsFound = errors.New("replica problems found")

func newValidateCommand(rootOpts *rootOptions) *cobra.Command {
	var clientFile, serverFile string
	var serverOnly bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compare client and server bookmark replicas",
		Long: `Compare two cleartext bookmark files and report structural problems:
orphans, parent/child mismatches, records claimed by several folders,
missing or deleted children and records missing on either side.

With --server-only only the server file is checked for self-consistency.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := loadBookmarks(cmd, serverFile, rootOpts.Collection)
			if err != nil {
				return fmt.Errorf("server: %w", err)
			}

			var res *validator.Results
			if serverOnly {
				res = validator.ValidateServer(server)
			} else {
				client, err := loadBookmarks(cmd, clientFile, rootOpts.Collection)
				if err != nil {
					return fmt.Errorf("client: %w", err)
				}
				res = validator.Validate(client, server)
			}

			if err := printResults(cmd, rootOpts.Format, res); err != nil {
				return err
			}
			if res.AnyProblemsExist() {
				return errProblemsFound
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&clientFile, "client", "", "client cleartext bookmark file")
	cmd.Flags().StringVar(&serverFile, "server", "", "server cleartext bookmark file")
	cmd.Flags().BoolVar(&serverOnly, "server-only", false, "only check the server replica")
	_ = cmd.MarkFlagRequired("server")
	return cmd
}

func loadBookmarks(cmd *cobra.Command, path, collection string) ([]*record.BookmarkRecord, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	records, err := record.Default.DecodeCleartextList(data, collection)
	if err != nil {
		return nil, err
	}
	bookmarks := record.Bookmarks(records)
	if len(bookmarks) != len(records) {
		return nil, fmt.Errorf("%d record(s) are not bookmarks", len(records)-len(bookmarks))
	}
	return bookmarks, nil
}

func printResults(cmd *cobra.Command, format string, res *validator.Results) error {
	if format == "json" {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		return writeOutput(cmd, "", data)
	}

	summary := res.Summary()
	if len(summary) == 0 {
		return writeOutput(cmd, "", []byte("No problems found"))
	}
	var b strings.Builder
	b.WriteString("Problems found:\n")
	for _, pc := range summary {
		fmt.Fprintf(&b, "  %-22s %d\n", pc.Name, pc.Count)
	}
	return writeOutput(cmd, "", []byte(b.String()))
}
