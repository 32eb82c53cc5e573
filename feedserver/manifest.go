package feedserver

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/feverhq/feverd/updater"
)

// platformAssets maps manifest platform keys to the installer file extension
// published for that platform.
var platformAssets = map[string]string{
	"win32":        ".exe",
	"darwin":       ".zip",
	"darwin-arm64": ".zip",
	"linux":        "",
}

// manifestBuilder produces per-channel manifests. Channel versions are
// derived once from the configured base version: beta previews the next
// minor, dev previews the next major. Checksums of release files are computed
// lazily and cached; the release directory is treated as immutable while the
// server runs.
type manifestBuilder struct {
	versions   map[updater.Channel]string
	notes      string
	pubDate    string
	releaseDir string

	mu        sync.Mutex
	checksums map[string]string
}

func newManifestBuilder(version, notes, pubDate, releaseDir string) *manifestBuilder {
	return &manifestBuilder{
		versions:   channelVersions(version),
		notes:      notes,
		pubDate:    pubDate,
		releaseDir: releaseDir,
		checksums:  make(map[string]string),
	}
}

func channelVersions(base string) map[updater.Channel]string {
	versions := map[updater.Channel]string{
		updater.ChannelLatest: base,
		updater.ChannelBeta:   base,
		updater.ChannelDev:    base,
	}
	major, minor, _, err := updater.SemanticParts(base)
	if err != nil {
		return versions
	}
	versions[updater.ChannelBeta] = fmt.Sprintf("%d.%d.0", major, minor+1)
	versions[updater.ChannelDev] = fmt.Sprintf("%d.0.0", major+1)
	return versions
}

func (b *manifestBuilder) version(channel updater.Channel) string {
	return b.versions[channel]
}

// manifestFor assembles the manifest served for a channel. Download URLs are
// rebuilt against the requesting host so the manifest works no matter which
// address the server listens on.
func (b *manifestBuilder) manifestFor(channel updater.Channel, scheme, host string) updater.Manifest {
	version := b.version(channel)
	platforms := make(map[string]updater.ManifestPlatform, len(platformAssets))
	for key, ext := range platformAssets {
		filename := assetFilename(version, key, ext)
		platforms[key] = updater.ManifestPlatform{
			URL:    fmt.Sprintf("%s://%s/download/%s", scheme, host, filename),
			SHA256: b.checksum(filename),
		}
	}
	return updater.Manifest{
		Version:   version,
		Notes:     b.notes,
		PubDate:   b.pubDate,
		Platforms: platforms,
	}
}

func assetFilename(version, platformKey, ext string) string {
	return fmt.Sprintf("fever-%s-%s%s", version, platformKey, ext)
}

// checksum returns the sha-256 of the named release file, or the empty string
// when the file is not present (the manifest then simply omits the checksum).
func (b *manifestBuilder) checksum(filename string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sum, ok := b.checksums[filename]; ok {
		return sum
	}

	f, err := os.Open(filepath.Join(b.releaseDir, filename))
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	sum := fmt.Sprintf("%x", h.Sum(nil))
	b.checksums[filename] = sum
	return sum
}
