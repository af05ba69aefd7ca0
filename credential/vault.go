// Package credential keeps per-user secrets encrypted at rest in any
// core.DataStore.
//
// Each value is sealed with AES-256-GCM under a key derived from the vault
// passphrase and a per-value random salt (PBKDF2-SHA-256). The record content
// is "v1:" followed by base64(salt | nonce | ciphertext). The user id and the
// credential name are bound as additional data, so a ciphertext copied to
// another user or name fails to open.
package credential

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/hupe1980/teammesh/core"
)

const (
	version  = "v1:"
	saltSize = 16
	keySize  = 32
)

// DefaultIterations is the PBKDF2 work factor.
const DefaultIterations = 210_000

var (
	// ErrNoPassphrase is returned by New when the passphrase is empty.
	ErrNoPassphrase = errors.New("credential: empty passphrase")
	// ErrCorrupt is returned when a stored value cannot be decoded or opened.
	ErrCorrupt = errors.New("credential: corrupt or foreign ciphertext")
)

// Options configure a Vault.
type Options struct {
	Iterations int
	// Rand is the entropy source for salts and nonces.
	Rand io.Reader
}

// Vault implements core.CredentialStore.
type Vault struct {
	store      core.DataStore
	passphrase []byte
	opts       Options
}

var _ core.CredentialStore = (*Vault)(nil)

// New creates a vault over store.
func New(store core.DataStore, passphrase string, optFns ...func(o *Options)) (*Vault, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}

	opts := Options{
		Iterations: DefaultIterations,
		Rand:       rand.Reader,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Iterations <= 0 {
		opts.Iterations = DefaultIterations
	}

	return &Vault{store: store, passphrase: []byte(passphrase), opts: opts}, nil
}

// Put encrypts value and stores it as the user's credential name, replacing
// any previous value.
func (v *Vault) Put(ctx context.Context, userID, name, value string) error {
	if userID == "" || name == "" {
		return fmt.Errorf("credential: user id and name are required")
	}

	sealed, err := v.seal(userID, name, []byte(value))
	if err != nil {
		return err
	}

	_, err = v.store.StoreData(ctx, core.Record{
		Key:     core.CredentialNamespace(userID),
		Content: sealed,
		Meta:    core.Meta{Meta1: name},
	}, false)
	if err != nil {
		return fmt.Errorf("store credential %s: %w", name, err)
	}

	return nil
}

// GetDecryptedCredential implements core.CredentialStore.
func (v *Vault) GetDecryptedCredential(ctx context.Context, userID, name string) (string, bool, error) {
	rec, ok, err := v.store.GetDataSingle(ctx, core.CredentialNamespace(userID), core.Meta{Meta1: name})
	if err != nil {
		return "", false, fmt.Errorf("load credential %s: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}

	plain, err := v.open(userID, name, rec.Content)
	if err != nil {
		return "", false, fmt.Errorf("credential %s: %w", name, err)
	}

	return string(plain), true, nil
}

// Names lists the credential names stored for a user.
func (v *Vault) Names(ctx context.Context, userID string) ([]string, error) {
	recs, err := v.store.GetDataMany(ctx, core.CredentialNamespace(userID), core.Meta{}, 0)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.Meta.Meta1)
	}

	return names, nil
}

// Delete removes a credential. Deleting a missing credential is not an error.
func (v *Vault) Delete(ctx context.Context, userID, name string) error {
	rec, ok, err := v.store.GetDataSingle(ctx, core.CredentialNamespace(userID), core.Meta{Meta1: name})
	if err != nil || !ok {
		return err
	}
	return v.store.DeleteData(ctx, rec.ID)
}

func (v *Vault) seal(userID, name string, plain []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(v.opts.Rand, salt); err != nil {
		return "", fmt.Errorf("credential: salt: %w", err)
	}

	gcm, err := v.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(v.opts.Rand, nonce); err != nil {
		return "", fmt.Errorf("credential: nonce: %w", err)
	}

	buf := make([]byte, 0, saltSize+len(nonce)+len(plain)+gcm.Overhead())
	buf = append(buf, salt...)
	buf = append(buf, nonce...)
	buf = gcm.Seal(buf, nonce, plain, aad(userID, name))

	return version + base64.StdEncoding.EncodeToString(buf), nil
}

func (v *Vault) open(userID, name, sealed string) ([]byte, error) {
	enc, ok := strings.CutPrefix(sealed, version)
	if !ok {
		return nil, ErrCorrupt
	}

	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil || len(raw) < saltSize {
		return nil, ErrCorrupt
	}

	gcm, err := v.aead(raw[:saltSize])
	if err != nil {
		return nil, err
	}

	rest := raw[saltSize:]
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrCorrupt
	}

	plain, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], aad(userID, name))
	if err != nil {
		return nil, ErrCorrupt
	}

	return plain, nil
}

func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(v.passphrase, salt, v.opts.Iterations, keySize, sha256.New)
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential: aes: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credential: gcm: %w", err)
	}

	return gcm, nil
}

func aad(userID, name string) []byte {
	return []byte(userID + "\x00" + name)
}
