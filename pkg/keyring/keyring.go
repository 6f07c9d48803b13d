package keyring

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrSigningKeyUnavailable is returned when no active signing key is
// configured (e.g. the active key was retired without a replacement). Fatal
// for the issuing call; a proof signed with a stale key is worse than none.
var ErrSigningKeyUnavailable = errors.New("keyring: signing key unavailable")

// ErrUnknownKeyVersion is returned when a proof references a version this
// keyring has never seen.
var ErrUnknownKeyVersion = errors.New("keyring: unknown key version")

// FormatVersion renders a key version as it appears inside proof objects.
func FormatVersion(v int) string { return "v" + strconv.Itoa(v) }

// ParseVersion parses "v<N>".
func ParseVersion(s string) (int, error) {
	if !strings.HasPrefix(s, "v") {
		return 0, fmt.Errorf("keyring: malformed key version %q", s)
	}
	v, err := strconv.Atoi(s[1:])
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("keyring: malformed key version %q", s)
	}
	return v, nil
}

// KeyRing holds signing keys by version. Exactly one version may be active
// for signing; every known version remains usable for verification.
type KeyRing struct {
	mu     sync.RWMutex
	keys   map[int]Signer
	active int // 0 means no active key
}

// New creates an empty keyring with no active key.
func New() *KeyRing {
	return &KeyRing{keys: make(map[int]Signer)}
}

// Add registers a key under version. If activate is set it becomes the
// signing key.
func (k *KeyRing) Add(version int, s Signer, activate bool) error {
	if version <= 0 {
		return fmt.Errorf("keyring: version must be positive, got %d", version)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.keys[version]; exists {
		return fmt.Errorf("keyring: version %d already present", version)
	}
	k.keys[version] = s
	if activate {
		k.active = version
	}
	return nil
}

// Active returns the current signing key and its version tag.
func (k *KeyRing) Active() (string, Signer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.active == 0 {
		return "", nil, ErrSigningKeyUnavailable
	}
	s, ok := k.keys[k.active]
	if !ok {
		return "", nil, ErrSigningKeyUnavailable
	}
	return FormatVersion(k.active), s, nil
}

// Retire removes the active status of version. The key stays available for
// verification. If it was the active key, signing becomes unavailable until
// another key is activated or rotated in.
func (k *KeyRing) Retire(version int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.active == version {
		k.active = 0
	}
}

// Verifier returns the key registered for a proof's version tag.
func (k *KeyRing) Verifier(versionTag string) (Signer, error) {
	v, err := ParseVersion(versionTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyVersion, versionTag)
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	s, ok := k.keys[v]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKeyVersion, versionTag)
	}
	return s, nil
}

// ActiveVersion returns the active version number, 0 if none.
func (k *KeyRing) ActiveVersion() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active
}

// Versions lists every registered key version in ascending order.
func (k *KeyRing) Versions() []int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	versions := make([]int, 0, len(k.keys))
	for v := range k.keys {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

// --- file-backed keystore ---

// keystoreFile is the on-disk JSON format: Ed25519 seeds by version.
type keystoreFile struct {
	ActiveVersion int               `json:"active_version"`
	Seeds         map[string]string `json:"seeds"` // version -> base64 32-byte seed
}

// FileKeyRing is a KeyRing persisted to a keystore file, supporting rotation.
type FileKeyRing struct {
	*KeyRing
	mu   sync.Mutex
	path string
	file keystoreFile
}

// OpenFileKeyRing loads the keystore at path, generating a version-1 key if
// the file does not exist.
func OpenFileKeyRing(path string) (*FileKeyRing, error) {
	fk := &FileKeyRing{KeyRing: New(), path: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("keyring: create dir: %w", err)
		}
		signer, err := NewEd25519Signer()
		if err != nil {
			return nil, err
		}
		fk.file = keystoreFile{
			ActiveVersion: 1,
			Seeds:         map[string]string{"1": base64.StdEncoding.EncodeToString(signer.Seed())},
		}
		if err := fk.KeyRing.Add(1, signer, true); err != nil {
			return nil, err
		}
		if err := fk.persist(); err != nil {
			return nil, err
		}
		return fk, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyring: read keystore: %w", err)
	}
	if err := json.Unmarshal(data, &fk.file); err != nil {
		return nil, fmt.Errorf("keyring: parse keystore: %w", err)
	}

	for vStr, encoded := range fk.file.Seeds {
		v, err := strconv.Atoi(vStr)
		if err != nil {
			return nil, fmt.Errorf("keyring: invalid keystore version %q", vStr)
		}
		seed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("keyring: decode seed v%d: %w", v, err)
		}
		signer, err := NewEd25519SignerFromSeed(seed)
		if err != nil {
			return nil, fmt.Errorf("keyring: seed v%d: %w", v, err)
		}
		if err := fk.KeyRing.Add(v, signer, v == fk.file.ActiveVersion); err != nil {
			return nil, err
		}
	}
	if fk.file.ActiveVersion != 0 && fk.KeyRing.ActiveVersion() != fk.file.ActiveVersion {
		return nil, fmt.Errorf("keyring: active version %d not in keystore", fk.file.ActiveVersion)
	}
	return fk, nil
}

// Rotate generates a new Ed25519 key, activates it, and persists the
// keystore. Prior versions remain for verification.
func (fk *FileKeyRing) Rotate() (int, error) {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	newVersion := fk.file.ActiveVersion + 1
	signer, err := NewEd25519Signer()
	if err != nil {
		return 0, err
	}
	if err := fk.KeyRing.Add(newVersion, signer, true); err != nil {
		return 0, err
	}
	fk.file.Seeds[strconv.Itoa(newVersion)] = base64.StdEncoding.EncodeToString(signer.Seed())
	fk.file.ActiveVersion = newVersion
	if err := fk.persist(); err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (fk *FileKeyRing) persist() error {
	data, err := json.MarshalIndent(fk.file, "", "  ")
	if err != nil {
		return fmt.Errorf("keyring: marshal keystore: %w", err)
	}
	if err := os.WriteFile(fk.path, data, 0o600); err != nil {
		return fmt.Errorf("keyring: write keystore: %w", err)
	}
	return nil
}
