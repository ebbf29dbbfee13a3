package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"skybar/internal/types"

	"github.com/klauspost/compress/zstd"
)

// cacheFileName is the on-disk snapshot of the last fetched payload.
const cacheFileName = "forecast.json.zst"

// Cache persists the last forecast payload as zstd-compressed JSON so a
// restarted daemon has data before its first fetch completes.
type Cache struct {
	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCache creates a Cache rooted at dir, creating the directory if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	// Stateless EncodeAll/DecodeAll usage; both are safe for concurrent use.
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Cache{
		path:    filepath.Join(dir, cacheFileName),
		encoder: enc,
		decoder: dec,
	}, nil
}

// Load reads the cached payload. A missing cache file returns (nil, nil);
// a corrupt one returns an error and the caller starts cold.
func (c *Cache) Load() (*types.ForecastPayload, error) {
	compressed, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read forecast cache: %w", err)
	}

	raw, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress forecast cache: %w", err)
	}

	var payload types.ForecastPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode forecast cache: %w", err)
	}
	return &payload, nil
}

// Save writes the payload atomically (temp file plus rename) so a crash
// mid-write never leaves a truncated cache behind.
func (c *Cache) Save(payload *types.ForecastPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode forecast cache: %w", err)
	}
	compressed := c.encoder.EncodeAll(raw, nil)

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("write forecast cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit forecast cache: %w", err)
	}
	return nil
}
