package infra

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"currency_go/internal/domain"

	"github.com/disintegration/imaging"
)

// FlagDownloader fetches currency flag images and caches them on disk
type FlagDownloader struct {
	apiURL   string
	basePath string
	sizePx   int
	client   *http.Client
	metrics  *Metrics
	logger   *slog.Logger
}

// NewFlagDownloader creates a FlagDownloader storing images under basePath
func NewFlagDownloader(apiURL, basePath string, sizePx int, timeout time.Duration, metrics *Metrics) (*FlagDownloader, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create flags directory: %w", err)
	}
	if sizePx <= 0 {
		sizePx = 48
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &FlagDownloader{
		apiURL:   apiURL,
		basePath: basePath,
		sizePx:   sizePx,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		metrics: metrics,
		logger:  slog.Default().With("module", "flag_downloader"),
	}, nil
}

// FetchFlag returns the local path of the flag for code, downloading it if missing.
// Images are resized to a square of sizePx for consistent display.
func (d *FlagDownloader) FetchFlag(ctx context.Context, code string) (string, error) {
	safeCode := sanitizeCode(code)
	if safeCode == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, code)
	}

	filePath := d.FlagPath(safeCode)
	if _, err := os.Stat(filePath); err == nil {
		d.record("cached")
		return filePath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.apiURL, nil)
	if err != nil {
		d.record("error")
		return "", domain.NewNetworkError("fetch_flag", err)
	}
	req.Header.Set("Currency", safeCode)
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		d.record("error")
		return "", domain.NewNetworkError("fetch_flag", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.record("error")
		return "", domain.NewNetworkError("fetch_flag", fmt.Errorf("bad status: %s", resp.Status))
	}

	srcImg, err := imaging.Decode(resp.Body)
	if err != nil {
		d.record("error")
		return "", domain.NewNetworkError("decode_flag", err)
	}

	resized := imaging.Resize(srcImg, d.sizePx, d.sizePx, imaging.Lanczos)

	if err := d.writeFlag(resized, filePath); err != nil {
		d.record("error")
		return "", err
	}

	d.record("ok")
	d.logger.Debug("Flag downloaded", slog.String("currency", safeCode), slog.String("path", filePath))
	return filePath, nil
}

// writeFlag encodes img into a unique temp file and renames it over path.
// Concurrent downloads of the same code each own their temp file; the last rename wins.
func (d *FlagDownloader) writeFlag(img image.Image, path string) error {
	tmp, err := os.CreateTemp(d.basePath, filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp flag: %w", err)
	}
	tmpPath := tmp.Name()

	if err := imaging.Encode(tmp, img, imaging.PNG); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode flag: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save flag: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to store flag: %w", err)
	}
	return nil
}

// FlagPath returns the local path for a currency's flag
func (d *FlagDownloader) FlagPath(code string) string {
	return filepath.Join(d.basePath, strings.ToLower(sanitizeCode(code))+".png")
}

func (d *FlagDownloader) record(result string) {
	if d.metrics != nil {
		d.metrics.FlagDownloads.WithLabelValues(result).Inc()
	}
}

// ResolveDataDir returns the application data directory.
// override wins when set; otherwise the OS user config dir is used.
func ResolveDataDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "CurrencyGo"), nil
}

func sanitizeCode(code string) string {
	res := make([]rune, 0, len(code))
	for _, r := range code {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			res = append(res, r)
		}
	}
	return strings.ToUpper(string(res))
}
