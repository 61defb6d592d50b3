package pipeline

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jfmartin/substack-archiver/internal/archive"
)

// assetDirName is the per-target subdirectory holding downloaded images.
const assetDirName = "images"

// assetClient fetches raw asset bytes.
type assetClient interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// AssetDownloader saves post images under <target>/images with
// deterministic names so re-runs skip already-downloaded files.
type AssetDownloader struct {
	client assetClient
	logger *zap.Logger
}

// NewAssetDownloader returns an AssetDownloader.
func NewAssetDownloader(client assetClient, logger *zap.Logger) *AssetDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetDownloader{client: client, logger: logger}
}

// Download fetches imgURL into the target's asset directory and
// returns the relative path to reference from the markdown file.
func (d *AssetDownloader) Download(
	ctx context.Context,
	target archive.Target,
	slug string,
	published time.Time,
	imgURL string,
) (string, error) {
	name := assetFileName(slug, published, imgURL)
	rel := path.Join(assetDirName, name)
	full := filepath.Join(target.OutputDir, assetDirName, name)

	if _, err := os.Stat(full); err == nil {
		return rel, nil
	}

	data, err := d.client.Get(ctx, imgURL)
	if err != nil {
		return "", fmt.Errorf("download asset: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create asset dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("write asset %s: %w", full, err)
	}
	d.logger.Debug("asset downloaded",
		zap.String("target", target.Writer),
		zap.String("asset", rel),
	)
	return rel, nil
}

// assetFileName builds a date-prefixed, hash-suffixed name so distinct
// images never collide and identical re-downloads are detected.
func assetFileName(slug string, published time.Time, imgURL string) string {
	ext := ".jpg"
	if u, err := url.Parse(imgURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); e != "" && len(e) <= 6 {
			ext = e
		}
	}
	sum := sha1.Sum([]byte(imgURL))
	hash := hex.EncodeToString(sum[:])[:8]

	parts := make([]string, 0, 3)
	if !published.IsZero() {
		parts = append(parts, published.Format("20060102"))
	}
	if s := archive.SafeFileName(slug); s != "post" {
		if len(s) > 50 {
			s = s[:50]
		}
		parts = append(parts, s)
	}
	parts = append(parts, hash)
	return strings.Join(parts, "-") + ext
}
