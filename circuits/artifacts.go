package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vocdoni/aegis/log"
	"github.com/vocdoni/aegis/types"
)

// CheckHashes determines if the hashes of the artifacts are checked when
// they are loaded or downloaded. It can be disabled by setting the
// AEGIS_CHECK_HASHES environment variable to false or 0.
var CheckHashes = true

// BaseDir is the cache directory of the downloaded artifacts, named by the
// hex encoded sha256 of their content. Defaults to the AEGIS_ARTIFACTS_DIR
// env var or ~/.cache/aegis-artifacts.
var BaseDir string

// ErrArtifactNotFound is returned when an artifact is neither loaded, in the
// local file system nor downloadable.
var ErrArtifactNotFound = fmt.Errorf("artifact not found")

// progressInterval is the period of the download progress logs.
const progressInterval = 10 * time.Second

func init() {
	switch strings.ToLower(os.Getenv("AEGIS_CHECK_HASHES")) {
	case "false", "0":
		CheckHashes = false
	}
	BaseDir = os.Getenv("AEGIS_ARTIFACTS_DIR")
	if BaseDir != "" {
		return
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		log.Warnf("unable to access user home directory, using temporary directory: %v", err)
		BaseDir = filepath.Join(os.TempDir(), "aegis-artifacts")
		return
	}
	BaseDir = filepath.Join(home, ".cache", "aegis-artifacts")
}

// Artifact is a circuit file (compiled circuit, proving key or verification
// key). Its content is read from LocalPath when set, otherwise from the
// cache directory by Hash, downloading it from RemoteURL if needed.
type Artifact struct {
	LocalPath string
	RemoteURL string
	Hash      types.HexBytes
	Content   []byte
}

// Load reads the artifact content if it is not already loaded. Local files
// take precedence, then the cache, then the remote URL. When a hash is set
// and CheckHashes is enabled, the content must match it.
func (k *Artifact) Load(ctx context.Context) error {
	if len(k.Content) != 0 {
		return nil
	}
	content, err := k.readLocal()
	if err != nil || content != nil {
		k.Content = content
		return err
	}
	if len(k.Hash) == 0 {
		return fmt.Errorf("%w: no local file and no hash provided", ErrArtifactNotFound)
	}
	if content, err = readCached(k.Hash); err != nil {
		return err
	}
	if content == nil {
		if err := k.Download(ctx); err != nil {
			return err
		}
		if content, err = readCached(k.Hash); err != nil {
			return err
		}
		if content == nil {
			return fmt.Errorf("%w: downloaded content not found", ErrArtifactNotFound)
		}
	}
	k.Content = content
	return nil
}

// readLocal returns the content of LocalPath, or nil if it is not set or
// the file does not exist.
func (k *Artifact) readLocal() ([]byte, error) {
	if k.LocalPath == "" {
		return nil, nil
	}
	content, err := os.ReadFile(k.LocalPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", k.LocalPath, err)
	}
	if err := checkHash(content, k.Hash); err != nil {
		return nil, fmt.Errorf("%s: %w", k.LocalPath, err)
	}
	return content, nil
}

// Download fetches the artifact from its remote URL into the cache
// directory. Interrupted downloads are resumed.
func (k *Artifact) Download(ctx context.Context) error {
	if k.RemoteURL == "" {
		return fmt.Errorf("%w: remote url not provided", ErrArtifactNotFound)
	}
	if len(k.Hash) == 0 {
		return fmt.Errorf("cannot download %s without its hash", k.RemoteURL)
	}
	if content, err := readCached(k.Hash); err == nil && content != nil {
		return nil
	}
	return download(ctx, k.RemoteURL, k.Hash)
}

// CircuitArtifacts holds the compiled circuit (wasm witness calculator), the
// proving key (zkey) and the verification key (snarkjs json) of a circuit
// variant.
type CircuitArtifacts struct {
	circuitDefinition *Artifact
	provingKey        *Artifact
	verifyingKey      *Artifact
}

// NewCircuitArtifacts creates a new CircuitArtifacts with the artifacts
// provided. Any of them can be nil.
func NewCircuitArtifacts(circuit, provingKey, verifyingKey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{
		circuitDefinition: circuit,
		provingKey:        provingKey,
		verifyingKey:      verifyingKey,
	}
}

// each calls fn with the name of every artifact set, stopping at the first
// error.
func (ca *CircuitArtifacts) each(fn func(name string, a *Artifact) error) error {
	for _, a := range []struct {
		name     string
		artifact *Artifact
	}{
		{"circuit definition", ca.circuitDefinition},
		{"proving key", ca.provingKey},
		{"verifying key", ca.verifyingKey},
	} {
		if a.artifact == nil {
			continue
		}
		if err := fn(a.name, a.artifact); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll loads the circuit artifacts into memory.
func (ca *CircuitArtifacts) LoadAll(ctx context.Context) error {
	return ca.each(func(name string, a *Artifact) error {
		if err := a.Load(ctx); err != nil {
			return fmt.Errorf("error loading %s: %w", name, err)
		}
		return nil
	})
}

// DownloadAll downloads the artifacts that have a remote URL. Artifacts only
// available locally are skipped.
func (ca *CircuitArtifacts) DownloadAll(ctx context.Context) error {
	return ca.each(func(name string, a *Artifact) error {
		if a.RemoteURL == "" {
			return nil
		}
		if err := a.Download(ctx); err != nil {
			return fmt.Errorf("error downloading %s: %w", name, err)
		}
		return nil
	})
}

func artifactContent(a *Artifact) types.HexBytes {
	if a == nil {
		return nil
	}
	return a.Content
}

// CircuitDefinition returns the content of the compiled circuit, nil if not
// loaded.
func (ca *CircuitArtifacts) CircuitDefinition() types.HexBytes {
	return artifactContent(ca.circuitDefinition)
}

// ProvingKey returns the content of the proving key, nil if not loaded.
func (ca *CircuitArtifacts) ProvingKey() types.HexBytes {
	return artifactContent(ca.provingKey)
}

// VerifyingKey returns the content of the verification key, nil if not
// loaded.
func (ca *CircuitArtifacts) VerifyingKey() types.HexBytes {
	return artifactContent(ca.verifyingKey)
}

func cachePath(digest []byte) string {
	return filepath.Join(BaseDir, hex.EncodeToString(digest))
}

func checkHash(content, expected []byte) error {
	if !CheckHashes || len(expected) == 0 {
		return nil
	}
	computed := sha256.Sum256(content)
	return compareHash(computed[:], expected)
}

func compareHash(computed, expected []byte) error {
	if !bytes.Equal(computed, expected) {
		return fmt.Errorf("hash mismatch: expected %x, got %x", expected, computed)
	}
	return nil
}

// readCached returns the cached content of the digest, or nil content and
// nil error if it is not cached yet.
func readCached(digest []byte) ([]byte, error) {
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating the base directory: %w", err)
	}
	path := cachePath(digest)
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	if err := checkHash(content, digest); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return content, nil
}

// partialFile is a download in progress, <hash>.partial in the cache
// directory. It hashes everything written to it, including the bytes of a
// resumed previous attempt.
type partialFile struct {
	path    string
	fd      *os.File
	hasher  hash.Hash
	written atomic.Int64
}

// openPartial opens the partial file of the hash. With resume the existing
// bytes are kept and hashed, otherwise the file is truncated.
func openPartial(expectedHash []byte, resume bool) (*partialFile, error) {
	pf := &partialFile{path: cachePath(expectedHash) + ".partial", hasher: sha256.New()}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if resume {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if existing, err := os.Open(pf.path); err == nil {
			n, _ := io.Copy(pf.hasher, existing)
			existing.Close()
			pf.written.Store(n)
		}
	}
	fd, err := os.OpenFile(pf.path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening artifact file: %w", err)
	}
	pf.fd = fd
	return pf, nil
}

func (pf *partialFile) Write(p []byte) (int, error) {
	n, err := pf.fd.Write(p)
	pf.hasher.Write(p[:n])
	pf.written.Add(int64(n))
	return n, err
}

// commit checks the hash of the written content and moves the file to its
// final name in the cache.
func (pf *partialFile) commit(expectedHash []byte) error {
	if err := pf.fd.Close(); err != nil {
		return fmt.Errorf("error closing artifact file: %w", err)
	}
	if CheckHashes {
		if err := compareHash(pf.hasher.Sum(nil), expectedHash); err != nil {
			os.Remove(pf.path)
			return err
		}
	}
	if err := os.Rename(pf.path, cachePath(expectedHash)); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	return nil
}

// download fetches fileURL into the cache, resuming a previous partial
// download with a Range request.
func download(ctx context.Context, fileURL string, expectedHash []byte) error {
	if _, err := url.Parse(fileURL); err != nil {
		return fmt.Errorf("error parsing the file URL provided: %w", err)
	}
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		return fmt.Errorf("error creating the base directory: %w", err)
	}
	var offset int64
	if info, err := os.Stat(cachePath(expectedHash) + ".partial"); err == nil {
		offset = info.Size()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("error creating the file request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error performing the request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("error downloading file %s: http status: %d", fileURL, res.StatusCode)
	}

	// a full response restarts the file even if a partial one existed
	pf, err := openPartial(expectedHash, res.StatusCode == http.StatusPartialContent)
	if err != nil {
		return err
	}
	total := res.ContentLength + pf.written.Load()
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(pf, res.Body)
		done <- err
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				pf.fd.Close()
				return fmt.Errorf("error copying data to file: %w", err)
			}
			if err := pf.commit(expectedHash); err != nil {
				return err
			}
			log.Infow("artifact downloaded", "url", fileURL, "path", cachePath(expectedHash))
			return nil
		case <-ticker.C:
			written := pf.written.Load()
			var progress float64
			if total > 0 {
				progress = float64(written) / float64(total) * 100
			}
			log.Debugw("download artifacts", "url", fileURL,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(written)/(1024*1024)),
				"progress", fmt.Sprintf("%.2f%%", progress))
		}
	}
}
