package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/fxaccount/account"
	"github.com/jmcleod/fxaccount/config"
	"github.com/jmcleod/fxaccount/fxaclient"
	"github.com/jmcleod/fxaccount/internal/util"
	"github.com/jmcleod/fxaccount/login"
	"github.com/jmcleod/fxaccount/push"
	"github.com/jmcleod/fxaccount/push/autopush"
	"github.com/jmcleod/fxaccount/storage"
	bboltstorage "github.com/jmcleod/fxaccount/storage/bbolt"
	"github.com/jmcleod/fxaccount/storage/file"
)

// Document names, used as file names, bbolt keys and sealing context.
const (
	accountsDocument = "accounts"
	pushDocument     = "push"
	tokensDocument   = "tokens"
)

const (
	boltFile = "fxaccount.db"
	saltFile = "wrapping.salt"
)

// environment is everything a command needs, opened from the config.
type environment struct {
	cfg      *config.Config
	logger   *slog.Logger
	accounts *account.Store
	push     *push.Store
	tokens   *push.LocalTokenClient

	db          *bbolt.DB
	wrappingKey *memguard.Enclave
}

func openEnvironment(cmd *cobra.Command) (*environment, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	e := &environment{cfg: cfg, logger: newLogger(cmd, cfg)}

	if e.wrappingKey, err = loadWrappingKey(cfg); err != nil {
		return nil, err
	}
	if cfg.Backend == config.BackendBolt {
		if e.db, err = bboltstorage.OpenDB(filepath.Join(cfg.DataDir, boltFile), &bbolt.Options{Timeout: 5 * time.Second}); err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
	}

	if err := e.open(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *environment) open() error {
	b, err := e.backend(accountsDocument)
	if err != nil {
		return err
	}
	if e.accounts, err = account.Open(b, account.WithLogger(e.logger)); err != nil {
		return fmt.Errorf("opening account store: %w", err)
	}

	if b, err = e.backend(pushDocument); err != nil {
		return err
	}
	if e.push, err = push.OpenStore(b, push.WithStoreLogger(e.logger)); err != nil {
		return fmt.Errorf("opening push store: %w", err)
	}

	if b, err = e.backend(tokensDocument); err != nil {
		return err
	}
	if e.tokens, err = push.OpenLocalTokenClient(b, time.Now); err != nil {
		return err
	}
	return nil
}

// Close releases the database, if one is open.
func (e *environment) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// backend returns the storage for one named document, sealed when a
// wrapping key is configured.
func (e *environment) backend(name string) (storage.Backend, error) {
	var inner storage.Backend
	switch e.cfg.Backend {
	case config.BackendBolt:
		inner = bboltstorage.New(e.db, name)
	default:
		inner = file.New(filepath.Join(e.cfg.DataDir, name+".json"))
	}
	if e.wrappingKey == nil {
		return inner, nil
	}

	buf, err := e.wrappingKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening wrapping key: %w", err)
	}
	defer buf.Destroy()
	return storage.NewSealed(inner, util.CopyBytes(buf.Bytes()), name)
}

// loadWrappingKey returns the configured wrapping key, or nil when documents
// are stored in the clear.
func loadWrappingKey(cfg *config.Config) (*memguard.Enclave, error) {
	switch {
	case cfg.WrappingKeyFile != "":
		data, err := os.ReadFile(cfg.WrappingKeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading wrapping key: %w", err)
		}
		k, err := util.HexDecodeLen(strings.TrimSpace(string(data)), util.AESKeySize)
		util.WipeBytes(data)
		if err != nil {
			return nil, fmt.Errorf("decoding wrapping key: %w", err)
		}
		return memguard.NewEnclave(k), nil

	case cfg.WrappingPassphraseEnv != "":
		passphrase := os.Getenv(cfg.WrappingPassphraseEnv)
		if passphrase == "" {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.WrappingPassphraseEnv)
		}
		salt, err := loadOrCreateSalt(file.New(filepath.Join(cfg.DataDir, saltFile)))
		if err != nil {
			return nil, err
		}
		k, err := storage.WrappingKeyFromPassphrase(memguard.NewBufferFromBytes([]byte(passphrase)), salt)
		if err != nil {
			return nil, fmt.Errorf("deriving wrapping key: %w", err)
		}
		return memguard.NewEnclave(k), nil
	}
	return nil, nil
}

func loadOrCreateSalt(b storage.Backend) ([]byte, error) {
	data, err := b.Load()
	if err == nil {
		return util.HexDecodeLen(strings.TrimSpace(string(data)), storage.SaltSize)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("reading salt: %w", err)
	}
	salt, err := util.RandomBytes(storage.SaltSize)
	if err != nil {
		return nil, err
	}
	if err := b.Save([]byte(util.HexEncode(salt) + "\n")); err != nil {
		return nil, fmt.Errorf("saving salt: %w", err)
	}
	return salt, nil
}

func (e *environment) fxaClient() (*fxaclient.Client, error) {
	return fxaclient.New(e.cfg.AuthServerURL, fxaclient.WithLogger(e.logger))
}

// machine returns a login machine for name that persists to the account
// store. initial replaces the stored state when non-nil.
func (e *environment) machine(name string, initial login.State) (*login.Machine, error) {
	if initial == nil {
		initial = e.accounts.State(name)
	}
	if initial == nil {
		return nil, fmt.Errorf("profile %q is not signed in; run login first", name)
	}
	client, err := e.fxaClient()
	if err != nil {
		return nil, err
	}
	return login.NewMachine(name, initial, client,
		login.WithCertificateDuration(e.cfg.CertificateTTL()),
		login.WithPersister(e.accounts),
		login.WithLogger(e.logger))
}

func (e *environment) senderIDs() []string {
	return []string{e.cfg.SenderID, e.cfg.DebugSenderID}
}

func (e *environment) pushManager() *push.Manager {
	factory := autopush.Factory(e.cfg.SenderID, e.cfg.DebugSenderID, autopush.WithLogger(e.logger))
	return push.NewManager(e.push, factory, e.tokens, e.senderIDs(),
		push.WithRefreshInterval(e.cfg.RefreshInterval()),
		push.WithLogger(e.logger))
}
