package main

import (
	"fmt"
	"sort"

	"github.com/opd-ai/cryptosync"
	"github.com/opd-ai/cryptosync/crypto"
	"github.com/opd-ai/cryptosync/interfaces"
	"github.com/opd-ai/cryptosync/middleware"
	"github.com/opd-ai/cryptosync/record"
	"github.com/spf13/cobra"
)

type transferOptions struct {
	keys   keyOptions
	dbPath string
	file   string
}

// open builds the encrypted repository from --db, or from --config.
func (t *transferOptions) open(rootOpts *rootOptions, kb *crypto.KeyBundle) (*middleware.CryptoRepository, error) {
	switch {
	case t.dbPath != "":
		return cryptosync.OpenEncrypted(&interfaces.RepositoryConfig{
			Backend:      interfaces.BackendSQLite,
			DatabasePath: t.dbPath,
			Collection:   rootOpts.Collection,
		}, kb)
	case rootOpts.ConfigFile != "":
		return cryptosync.Open(&cryptosync.Options{ConfigFile: rootOpts.ConfigFile}, kb)
	default:
		return nil, fmt.Errorf("either --db or --config is required")
	}
}

func newImportCommand(rootOpts *rootOptions) *cobra.Command {
	t := &transferOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Encrypt a cleartext record file into a repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, t.file)
			if err != nil {
				return err
			}
			records, err := record.Default.DecodeCleartextList(data, rootOpts.Collection)
			if err != nil {
				return err
			}
			kb, err := t.keys.bundle()
			if err != nil {
				return err
			}
			defer crypto.WipeKeyBundle(kb)

			repo, err := t.open(rootOpts, kb)
			if err != nil {
				return err
			}
			defer repo.Close()

			report, err := cryptosync.Upload(cmd.Context(), repo, records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d record(s) into %s\n", report.Stored, repo.Collection())

			guids := make([]string, 0, len(report.Failed))
			for guid := range report.Failed {
				guids = append(guids, guid)
			}
			sort.Strings(guids)
			failed := make([]recordFailure, 0, len(guids))
			for _, guid := range guids {
				failed = append(failed, recordFailure{GUID: guid, Err: report.Failed[guid]})
			}
			return reportFailures(cmd, failed)
		},
	}
	addKeyFlags(cmd, &t.keys)
	cmd.Flags().StringVar(&t.dbPath, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&t.file, "in", "", "cleartext record file (- for stdin)")
	return cmd
}

func newExportCommand(rootOpts *rootOptions) *cobra.Command {
	t := &transferOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Decrypt every record in a repository into a cleartext file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := t.keys.bundle()
			if err != nil {
				return err
			}
			defer crypto.WipeKeyBundle(kb)

			repo, err := t.open(rootOpts, kb)
			if err != nil {
				return err
			}
			defer repo.Close()

			records, bad, err := cryptosync.Download(cmd.Context(), repo)
			if err != nil {
				return err
			}
			encoded, err := record.Default.EncodeCleartextList(records)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd, t.file, encoded); err != nil {
				return err
			}

			failed := make([]recordFailure, 0, len(bad))
			for _, r := range bad {
				failed = append(failed, recordFailure{GUID: r.GUID, Err: r.Err})
			}
			return reportFailures(cmd, failed)
		},
	}
	addKeyFlags(cmd, &t.keys)
	cmd.Flags().StringVar(&t.dbPath, "db", "", "SQLite database path")
	cmd.Flags().StringVar(&t.file, "out", "", "output file (default stdout)")
	return cmd
}
