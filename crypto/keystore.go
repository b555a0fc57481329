package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// BundleStoreVersion is the current on-disk format version
	BundleStoreVersion = 1
	// SaltSize is the size of the PBKDF2 salt kept next to stored bundles
	SaltSize = 32

	bundleFileSuffix = ".bundle"
	saltFileName     = ".salt"
	stagedSuffix     = ".rotate"
	backupSuffix     = ".bak"
)

// ErrBundleNotFound is returned by Load when no bundle is stored under a name.
var ErrBundleNotFound = errors.New("key bundle not found")

// BundleStore keeps key bundles encrypted at rest. Each bundle is sealed with
// AES-256-GCM under a key stretched from a passphrase with PBKDF2.
type BundleStore struct {
	storeKey [32]byte
	dataDir  string
	saltFile string
}

// NewBundleStore opens (or creates) a bundle store in dataDir.
func NewBundleStore(dataDir string, passphrase []byte) (*BundleStore, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	bs := &BundleStore{
		dataDir:  dataDir,
		saltFile: filepath.Join(dataDir, saltFileName),
	}

	salt, err := bs.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	derived, err := PBKDF2(passphrase, salt, PBKDF2Iterations, 32)
	if err != nil {
		return nil, err
	}
	copy(bs.storeKey[:], derived)
	ZeroBytes(derived)

	return bs, nil
}

func (bs *BundleStore) loadOrGenerateSalt() ([]byte, error) {
	data, err := os.ReadFile(bs.saltFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read salt file: %w", err)
		}

		salt := make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		if err := os.WriteFile(bs.saltFile, salt, 0o600); err != nil {
			return nil, fmt.Errorf("failed to save salt: %w", err)
		}
		return salt, nil
	}

	if len(data) != SaltSize {
		return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), SaltSize)
	}
	return data, nil
}

func (bs *BundleStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid bundle name %q", name)
	}
	return filepath.Join(bs.dataDir, name+bundleFileSuffix), nil
}

// Save seals bundle under name, replacing any previous bundle atomically.
// Format: [version:2][nonce:12][ciphertext+tag].
func (bs *BundleStore) Save(name string, bundle *KeyBundle) error {
	if bundle == nil {
		return newCryptoError(KindInvalidKeyMaterial, "save bundle", fmt.Errorf("nil key bundle"))
	}
	finalFile, err := bs.path(name)
	if err != nil {
		return err
	}

	gcm, err := bs.aead()
	if err != nil {
		return err
	}
	output, err := sealBundle(gcm, name, bundle)
	if err != nil {
		return err
	}

	tmpFile := finalFile + ".tmp"
	if err := os.WriteFile(tmpFile, output, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpFile, finalFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "BundleStore.Save",
		"name":     name,
	}).Debug("Stored key bundle")
	return nil
}

// Load opens the bundle stored under name.
func (bs *BundleStore) Load(name string) (*KeyBundle, error) {
	filePath, err := bs.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, name)
		}
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	if len(data) < 2 {
		return nil, fmt.Errorf("bundle file too short: %d bytes", len(data))
	}
	if version := binary.BigEndian.Uint16(data[0:2]); version != BundleStoreVersion {
		return nil, fmt.Errorf("unsupported bundle version: %d (expected %d)", version, BundleStoreVersion)
	}

	gcm, err := bs.aead()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < 2+nonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("bundle file too short: %d bytes", len(data))
	}

	plaintext, err := gcm.Open(nil, data[2:2+nonceSize], data[2+nonceSize:], []byte(name))
	if err != nil {
		return nil, newCryptoError(KindInvalidKeyMaterial, "load bundle",
			fmt.Errorf("wrong passphrase or corrupted bundle: %w", err))
	}
	defer ZeroBytes(plaintext)

	if len(plaintext) != 2*KeySize {
		return nil, newCryptoError(KindInvalidKeyMaterial, "load bundle",
			fmt.Errorf("stored bundle has %d bytes", len(plaintext)))
	}
	return NewKeyBundle(plaintext[:KeySize], plaintext[KeySize:])
}

// Delete overwrites and removes a stored bundle. Deleting a missing bundle
// is not an error.
func (bs *BundleStore) Delete(name string) error {
	filePath, err := bs.path(name)
	if err != nil {
		return err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat bundle: %w", err)
	}

	// Best effort overwrite before unlinking.
	_ = os.WriteFile(filePath, make([]byte, info.Size()), 0o600)
	return os.Remove(filePath)
}

// Names lists the stored bundle names.
func (bs *BundleStore) Names() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(bs.dataDir, "*"+bundleFileSuffix))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), bundleFileSuffix))
	}
	return names, nil
}

// RotatePassphrase re-seals every stored bundle under a key derived from
// newPassphrase and a fresh salt. Every new file is staged before any
// original is replaced; on failure the store keeps working with the old
// passphrase.
func (bs *BundleStore) RotatePassphrase(newPassphrase []byte) error {
	if len(newPassphrase) == 0 {
		return fmt.Errorf("new passphrase cannot be empty")
	}

	names, err := bs.Names()
	if err != nil {
		return fmt.Errorf("failed to list bundles: %w", err)
	}

	bundles := make(map[string]*KeyBundle, len(names))
	defer func() {
		for _, kb := range bundles {
			_ = WipeKeyBundle(kb)
		}
	}()
	for _, name := range names {
		kb, err := bs.Load(name)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		bundles[name] = kb
	}

	newSalt := make([]byte, SaltSize)
	if _, err := rand.Read(newSalt); err != nil {
		return fmt.Errorf("failed to generate new salt: %w", err)
	}
	derived, err := PBKDF2(newPassphrase, newSalt, PBKDF2Iterations, 32)
	if err != nil {
		return err
	}
	var newKey [32]byte
	copy(newKey[:], derived)
	ZeroBytes(derived)
	defer ZeroBytes(newKey[:])

	rot := &rotation{}
	defer rot.cleanup()

	gcm, err := aeadFor(newKey[:])
	if err != nil {
		return err
	}
	for _, name := range names {
		finalFile, err := bs.path(name)
		if err != nil {
			return err
		}
		sealed, err := sealBundle(gcm, name, bundles[name])
		if err != nil {
			return err
		}
		if err := rot.stage(finalFile, sealed); err != nil {
			return fmt.Errorf("failed to re-seal %s: %w", name, err)
		}
	}
	if err := rot.stage(bs.saltFile, newSalt); err != nil {
		return fmt.Errorf("failed to stage new salt: %w", err)
	}

	// The salt is committed last, so old bundles and old salt stay paired
	// until every bundle has been replaced.
	if err := rot.commit(); err != nil {
		return err
	}

	ZeroBytes(bs.storeKey[:])
	bs.storeKey = newKey
	NewLogger("BundleStore.RotatePassphrase").
		WithFields(OperationFields("rotate", "success", logrus.Fields{"bundles": len(names)})).
		Info("Rotated bundle store passphrase")
	return nil
}

type stagedFile struct {
	final       string
	staged      string
	backup      string
	hasOriginal bool
	committed   bool
	keepBackup  bool
}

// rotation writes replacement files next to their originals and swaps them
// in together, restoring the originals if any swap fails.
type rotation struct {
	files []*stagedFile
}

func (r *rotation) stage(finalFile string, data []byte) error {
	sf := &stagedFile{
		final:  finalFile,
		staged: finalFile + stagedSuffix,
		backup: finalFile + backupSuffix,
	}
	r.files = append(r.files, sf)

	original, err := os.ReadFile(finalFile)
	switch {
	case err == nil:
		if err := os.WriteFile(sf.backup, original, 0o600); err != nil {
			return fmt.Errorf("failed to back up %s: %w", filepath.Base(finalFile), err)
		}
		sf.hasOriginal = true
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read %s: %w", filepath.Base(finalFile), err)
	}

	if err := os.WriteFile(sf.staged, data, 0o600); err != nil {
		return fmt.Errorf("failed to write staged file: %w", err)
	}
	return nil
}

func (r *rotation) commit() error {
	for _, sf := range r.files {
		if err := os.Rename(sf.staged, sf.final); err != nil {
			r.rollback()
			return fmt.Errorf("failed to replace %s: %w", filepath.Base(sf.final), err)
		}
		sf.committed = true
	}
	return nil
}

func (r *rotation) rollback() {
	for _, sf := range r.files {
		if !sf.committed {
			continue
		}
		if sf.hasOriginal {
			if err := os.Rename(sf.backup, sf.final); err != nil {
				NewLogger("rotation.rollback").
					WithFields(logrus.Fields{"file": sf.final, "backup": sf.backup}).
					WithError(err, "restore_failed", "rotate").
					Error("Failed to restore original after aborted rotation")
				sf.keepBackup = true
			}
		} else {
			os.Remove(sf.final)
		}
		sf.committed = false
	}
}

func (r *rotation) cleanup() {
	for _, sf := range r.files {
		os.Remove(sf.staged)
		if sf.hasOriginal && !sf.keepBackup {
			os.Remove(sf.backup)
		}
	}
}

// Close wipes the store key. The store must not be used afterwards.
func (bs *BundleStore) Close() error {
	ZeroBytes(bs.storeKey[:])
	return nil
}

func (bs *BundleStore) aead() (cipher.AEAD, error) {
	return aeadFor(bs.storeKey[:])
}

func aeadFor(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// sealBundle encodes bundle as [version:2][nonce:12][ciphertext+tag] with
// name bound as additional data.
func sealBundle(gcm cipher.AEAD, name string, bundle *KeyBundle) ([]byte, error) {
	plaintext := make([]byte, 0, 2*KeySize)
	plaintext = append(plaintext, bundle.encryptionKey[:]...)
	plaintext = append(plaintext, bundle.hmacKey[:]...)
	defer ZeroBytes(plaintext)

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, []byte(name))

	output := make([]byte, 2+len(nonce)+len(sealed))
	binary.BigEndian.PutUint16(output[0:2], BundleStoreVersion)
	copy(output[2:2+len(nonce)], nonce)
	copy(output[2+len(nonce):], sealed)
	return output, nil
}
