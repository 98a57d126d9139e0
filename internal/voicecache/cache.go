package voicecache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ErrUnsafeKey is returned by Put for a question that cannot be used as a
// file name inside the cache directory.
var ErrUnsafeKey = goerr.New("question cannot be used as a cache key")

const (
	ext = ".mp3"
	// maxNameBytes keeps key+ext under the common 255-byte file name limit.
	maxNameBytes = 255 - len(ext)
)

// Cache stores synthesized answer audio on disk, one file per distinct
// question. The key is the question text exactly as received: no trimming
// or case folding. Entries are never evicted.
type Cache struct {
	dir string
}

// Open creates dir if needed and returns a cache rooted there.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "creating voice cache directory", goerr.V("dir", dir))
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) path(key string) (string, bool) {
	if key == "" || key == "." || key == ".." || len(key) > maxNameBytes {
		return "", false
	}
	if strings.ContainsAny(key, "/\x00") || strings.ContainsRune(key, filepath.Separator) {
		return "", false
	}
	return filepath.Join(c.dir, key+ext), true
}

// Get returns the cached audio for key. Unsafe keys always miss.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	p, ok := c.path(key)
	if !ok {
		return nil, false, nil
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, goerr.Wrap(err, "reading cached audio", goerr.V("key", key))
	}
	return data, true, nil
}

// Put stores audio under key, replacing any existing entry. The write goes
// through a temporary file so readers never see a partial entry.
func (c *Cache) Put(key string, audio []byte) error {
	p, ok := c.path(key)
	if !ok {
		return goerr.Wrap(ErrUnsafeKey, "writing cached audio", goerr.V("key", key))
	}

	tmp, err := os.CreateTemp(c.dir, ".tmp-*"+ext)
	if err != nil {
		return goerr.Wrap(err, "creating temp cache file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "writing temp cache file")
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "closing temp cache file")
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return goerr.Wrap(err, "renaming cache file", goerr.V("key", key))
	}
	return nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int
	Bytes   int64
}

// Stats counts cached entries and their total size.
func (c *Cache) Stats() (Stats, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return Stats{}, goerr.Wrap(err, "listing voice cache", goerr.V("dir", c.dir))
	}
	var st Stats
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st.Entries++
		st.Bytes += info.Size()
	}
	return st, nil
}
