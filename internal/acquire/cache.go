package acquire

import (
	"encoding/json"
	"os"
	"path/filepath"

	"inferd/internal/common/fsutil"
)

// cacheEntry is the persisted per-binary variant hint. The hint only
// reorders candidates; a cached variant is still fully validated.
type cacheEntry struct {
	LastVariant string `json:"last_successful_variant"`
	PlatformKey string `json:"platform_key"`
}

func cachePath(stateDir, name string) string {
	return filepath.Join(stateDir, name+"-variant.json")
}

// loadHint returns the cached variant tag, or "" when there is no usable
// hint. Unreadable or stale entries are ignored, never fatal.
func loadHint(stateDir, name, platformKey string) string {
	b, err := os.ReadFile(cachePath(stateDir, name))
	if err != nil {
		return ""
	}
	var e cacheEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return ""
	}
	if e.PlatformKey != platformKey {
		return ""
	}
	return e.LastVariant
}

func saveHint(stateDir, name, platformKey, tag string) error {
	b, err := json.Marshal(cacheEntry{LastVariant: tag, PlatformKey: platformKey})
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(cachePath(stateDir, name), b, 0o644)
}
