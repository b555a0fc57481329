package main

import (
	"encoding/json"
	"fmt"

	"github.com/opd-ai/cryptosync/crypto"
	"github.com/opd-ai/cryptosync/record"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newEncryptCommand(rootOpts *rootOptions) *cobra.Command {
	k := &keyOptions{}
	var in, out string

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a cleartext record file into outer envelopes",
		Long: `Encrypt a JSON array of cleartext records into a JSON array of outer
envelopes whose payloads are crypto envelopes ({"IV","ciphertext","hmac"}).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, in)
			if err != nil {
				return err
			}
			records, err := record.Default.DecodeCleartextList(data, rootOpts.Collection)
			if err != nil {
				return err
			}
			kb, err := k.bundle()
			if err != nil {
				return err
			}
			defer crypto.WipeKeyBundle(kb)

			envs, err := encryptRecords(records, kb)
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(envs, "", "  ")
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, encoded)
		},
	}

	addKeyFlags(cmd, k)
	cmd.Flags().StringVar(&in, "in", "", "cleartext record file (- for stdin)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

func encryptRecords(records []record.Record, kb *crypto.KeyBundle) ([]*record.Envelope, error) {
	envs := make([]*record.Envelope, 0, len(records))
	for _, rec := range records {
		cr, err := crypto.EncryptRecord(rec, kb)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", rec.GUID(), err)
		}
		env, err := cr.ToEnvelope()
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func newDecryptCommand(rootOpts *rootOptions) *cobra.Command {
	k := &keyOptions{}
	var in, out string

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt outer envelopes into a cleartext record file",
		Long: `Decrypt a JSON array of outer envelopes. Records that fail authentication
or decryption are reported and left out; the command then exits with an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, in)
			if err != nil {
				return err
			}
			envs, err := record.ParseEnvelopes(data, rootOpts.Collection)
			if err != nil {
				return err
			}
			kb, err := k.bundle()
			if err != nil {
				return err
			}
			defer crypto.WipeKeyBundle(kb)

			records, failed := decryptEnvelopes(envs, kb)
			encoded, err := record.Default.EncodeCleartextList(records)
			if err != nil {
				return err
			}
			if err := writeOutput(cmd, out, encoded); err != nil {
				return err
			}
			return reportFailures(cmd, failed)
		},
	}

	addKeyFlags(cmd, k)
	cmd.Flags().StringVar(&in, "in", "", "envelope file (- for stdin)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	return cmd
}

// recordFailure names a record that could not be processed.
type recordFailure struct {
	GUID string
	Err  error
}

func decryptEnvelopes(envs []*record.Envelope, kb *crypto.KeyBundle) ([]record.Record, []recordFailure) {
	records := make([]record.Record, 0, len(envs))
	var failed []recordFailure
	for _, env := range envs {
		cr, err := crypto.FromEnvelope(env)
		if err == nil {
			var rec record.Record
			if rec, err = cr.DecryptRecord(kb); err == nil {
				records = append(records, rec)
				continue
			}
		}
		failed = append(failed, recordFailure{GUID: env.ID, Err: err})
	}
	return records, failed
}

func reportFailures(cmd *cobra.Command, failed []recordFailure) error {
	if len(failed) == 0 {
		return nil
	}
	for _, f := range failed {
		logrus.WithFields(logrus.Fields{
			"function": "reportFailures",
			"guid":     f.GUID,
		}).WithError(f.Err).Debug("Record failed")
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", f.GUID, f.Err)
	}
	return fmt.Errorf("%d record(s) failed", len(failed))
}
