package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/opd-ai/cryptosync/crypto"
	"github.com/spf13/cobra"
)

// passphraseEnv supplies the bundle store passphrase when --passphrase is unset.
const passphraseEnv = "SYNCCTL_PASSPHRASE"

// keyOptions selects the key bundle a command works with: either a stored
// bundle or one derived from a username and sync key.
type keyOptions struct {
	Username   string
	SyncKey    string
	BundleName string
	StoreDir   string
	Passphrase string
}

func addKeyFlags(cmd *cobra.Command, k *keyOptions) {
	cmd.Flags().StringVar(&k.Username, "username", "", "account username")
	cmd.Flags().StringVar(&k.SyncKey, "sync-key", "", "friendly Base32 sync key")
	cmd.Flags().StringVar(&k.BundleName, "bundle", "", "name of a stored key bundle to use instead of deriving one")
	addStoreFlags(cmd, k)
}

func addStoreFlags(cmd *cobra.Command, k *keyOptions) {
	cmd.Flags().StringVar(&k.StoreDir, "store-dir", "", "key bundle store directory")
	cmd.Flags().StringVar(&k.Passphrase, "passphrase", "", "key bundle store passphrase (default $"+passphraseEnv+")")
}

func (k *keyOptions) openStore() (*crypto.BundleStore, error) {
	if k.StoreDir == "" {
		return nil, fmt.Errorf("--store-dir is required")
	}
	passphrase := k.Passphrase
	if passphrase == "" {
		passphrase = os.Getenv(passphraseEnv)
	}
	return crypto.NewBundleStore(k.StoreDir, []byte(passphrase))
}

// bundle loads or derives the selected key bundle.
func (k *keyOptions) bundle() (*crypto.KeyBundle, error) {
	if k.BundleName != "" {
		store, err := k.openStore()
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Load(k.BundleName)
	}
	if k.Username == "" || k.SyncKey == "" {
		return nil, fmt.Errorf("either --bundle or both --username and --sync-key are required")
	}
	return crypto.DeriveKeyBundle(k.Username, k.SyncKey)
}

// fingerprint identifies a bundle without revealing its keys.
func fingerprint(kb *crypto.KeyBundle) string {
	enc := kb.EncryptionKey()
	mac := kb.HMACKey()
	defer crypto.ZeroBytes(enc)
	defer crypto.ZeroBytes(mac)

	h := sha256.New()
	h.Write(enc)
	h.Write(mac)
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func newKeysCommand(rootOpts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate, derive and store sync keys",
	}
	cmd.AddCommand(newKeysGenerateCommand(rootOpts))
	cmd.AddCommand(newKeysDeriveCommand(rootOpts))
	cmd.AddCommand(newKeysListCommand(rootOpts))
	return cmd
}

func newKeysGenerateCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a random sync key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make([]byte, crypto.SyncKeySize)
			if _, err := rand.Read(raw); err != nil {
				return fmt.Errorf("failed to generate sync key: %w", err)
			}
			defer crypto.ZeroBytes(raw)

			key := crypto.EncodeFriendlyBase32(raw)
			if rootOpts.Format == "json" {
				data, _ := json.Marshal(map[string]string{"syncKey": key})
				return writeOutput(cmd, "", data)
			}
			return writeOutput(cmd, "", []byte(key))
		},
	}
}

type deriveOutput struct {
	Username    string `json:"username"`
	Fingerprint string `json:"fingerprint"`
	Saved       string `json:"saved,omitempty"`
}

func newKeysDeriveCommand(rootOpts *rootOptions) *cobra.Command {
	k := &keyOptions{}
	var saveAs string

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a key bundle from a username and sync key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if k.Username == "" || k.SyncKey == "" {
				return fmt.Errorf("--username and --sync-key are required")
			}
			kb, err := crypto.DeriveKeyBundle(k.Username, k.SyncKey)
			if err != nil {
				return err
			}
			defer crypto.WipeKeyBundle(kb)

			out := deriveOutput{Username: k.Username, Fingerprint: fingerprint(kb)}
			if saveAs != "" {
				store, err := k.openStore()
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Save(saveAs, kb); err != nil {
					return err
				}
				out.Saved = saveAs
			}

			if rootOpts.Format == "json" {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				return writeOutput(cmd, "", data)
			}
			text := fmt.Sprintf("Derived key bundle for %s\n  fingerprint: %s", out.Username, out.Fingerprint)
			if out.Saved != "" {
				text += fmt.Sprintf("\n  saved as: %s", out.Saved)
			}
			return writeOutput(cmd, "", []byte(text))
		},
	}

	cmd.Flags().StringVar(&k.Username, "username", "", "account username")
	cmd.Flags().StringVar(&k.SyncKey, "sync-key", "", "friendly Base32 sync key")
	cmd.Flags().StringVar(&saveAs, "save", "", "store the bundle under this name")
	addStoreFlags(cmd, k)
	return cmd
}

func newKeysListCommand(rootOpts *rootOptions) *cobra.Command {
	k := &keyOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored key bundles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := k.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			names, err := store.Names()
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				if names == nil {
					names = []string{}
				}
				data, _ := json.Marshal(names)
				return writeOutput(cmd, "", data)
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	addStoreFlags(cmd, k)
	return cmd
}
