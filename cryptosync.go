package cryptosync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/cryptosync/crypto"
	"github.com/opd-ai/cryptosync/factory"
	"github.com/opd-ai/cryptosync/interfaces"
	"github.com/opd-ai/cryptosync/middleware"
	"github.com/opd-ai/cryptosync/record"
	"github.com/sirupsen/logrus"
)

// Options configures Open.
type Options struct {
	// Config selects the backing repository. When nil, ConfigFile is loaded
	// if set, otherwise factory defaults apply. Environment overrides apply
	// in both cases.
	Config     *interfaces.RepositoryConfig
	ConfigFile string
	// Registry serializes payloads; nil uses record.Default.
	Registry *record.Registry
}

// NewOptions returns Options that open the default repository.
func NewOptions() *Options {
	return &Options{}
}

// Open creates the repository described by options and wraps it so every
// stored record is encrypted with bundle.
func Open(options *Options, bundle *crypto.KeyBundle) (*middleware.CryptoRepository, error) {
	if options == nil {
		options = NewOptions()
	}
	if bundle == nil {
		return nil, middleware.ErrNilKeyBundle
	}

	var f *factory.RepositoryFactory
	if options.ConfigFile != "" && options.Config == nil {
		var err error
		f, err = factory.NewRepositoryFactoryFromFile(options.ConfigFile)
		if err != nil {
			return nil, err
		}
	} else {
		f = factory.NewRepositoryFactory()
	}

	inner, err := f.CreateRepositoryWithConfig(options.Config)
	if err != nil {
		return nil, err
	}

	var mwOpts []middleware.Option
	if options.Registry != nil {
		mwOpts = append(mwOpts, middleware.WithRegistry(options.Registry))
	}
	repo, err := middleware.NewCryptoRepository(inner, bundle, mwOpts...)
	if err != nil {
		inner.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Open",
		"collection": repo.Collection(),
	}).Debug("Opened encrypted repository")
	return repo, nil
}

// OpenEncrypted opens the repository described by config (nil for
// defaults) behind the crypto middleware.
func OpenEncrypted(config *interfaces.RepositoryConfig, bundle *crypto.KeyBundle) (*middleware.CryptoRepository, error) {
	return Open(&Options{Config: config}, bundle)
}

// UploadReport summarizes an Upload.
type UploadReport struct {
	Stored int64
	// Failed maps guids to the error the repository reported for them.
	Failed map[string]error
}

// Upload stores records in a single session. Records the repository rejects
// are listed in the report; errors from the session itself abort the upload.
func Upload(ctx context.Context, repo *middleware.CryptoRepository, records []record.Record) (*UploadReport, error) {
	session, err := repo.CreateSession(ctx)
	if err != nil {
		return nil, err
	}

	report := &UploadReport{Failed: make(map[string]error)}
	var mu sync.Mutex
	session.SetStoreSink(interfaces.StoreSinkFunc(func(guid string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		report.Failed[guid] = err
		mu.Unlock()
	}))

	if _, err := session.Begin(ctx).Await(ctx); err != nil {
		return nil, err
	}

	storeErr := func() error {
		for _, rec := range records {
			if err := session.Store(ctx, rec); err != nil {
				return fmt.Errorf("store %s: %w", rec.GUID(), err)
			}
		}
		return nil
	}()

	stored, doneErr := session.StoreDone(ctx).Await(ctx)
	_, finishErr := session.Finish(ctx).Await(ctx)
	if err := errors.Join(storeErr, doneErr, finishErr); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	report.Stored = stored

	logrus.WithFields(logrus.Fields{
		"function":   "Upload",
		"session_id": session.ID(),
		"stored":     report.Stored,
		"failed":     len(report.Failed),
	}).Info("Upload complete")
	return report, nil
}

// Download fetches and decrypts every record in a single session. Records
// that fail to decrypt are returned separately and do not abort the rest.
func Download(ctx context.Context, repo *middleware.CryptoRepository) ([]record.Record, []middleware.RecordResult, error) {
	session, err := repo.CreateSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	session.SetStoreSink(interfaces.StoreSinkFunc(func(string, error) {}))

	if _, err := session.Begin(ctx).Await(ctx); err != nil {
		return nil, nil, err
	}
	results, fetchErr := session.FetchAll(ctx).Await(ctx)
	_, finishErr := session.Finish(ctx).Await(ctx)
	if err := errors.Join(fetchErr, finishErr); err != nil {
		return nil, nil, err
	}

	good, bad := middleware.SplitResults(results)
	logrus.WithFields(logrus.Fields{
		"function":   "Download",
		"session_id": session.ID(),
		"records":    len(good),
		"failed":     len(bad),
	}).Info("Download complete")
	return good, bad, nil
}
