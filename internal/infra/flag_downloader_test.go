package infra

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"currency_go/internal/domain"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func encodeTestPNG(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(120, 80, color.NRGBA{R: 0, G: 82, B: 147, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestFlagDownloader_FetchFlag(t *testing.T) {
	body := encodeTestPNG(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.Header.Get("Currency"); got != "SEK" {
			t.Errorf("Expected Currency header SEK, got %q", got)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer server.Close()

	metrics := NewMetrics()
	d, err := NewFlagDownloader(server.URL, t.TempDir(), 48, time.Second, metrics)
	if err != nil {
		t.Fatalf("NewFlagDownloader failed: %v", err)
	}

	path, err := d.FetchFlag(context.Background(), "sek")
	if err != nil {
		t.Fatalf("FetchFlag failed: %v", err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("open saved flag: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 48, 48) {
		t.Errorf("Expected 48x48 flag, got %v", img.Bounds())
	}

	// Second lookup is served from disk
	again, err := d.FetchFlag(context.Background(), "SEK")
	if err != nil {
		t.Fatalf("cached FetchFlag failed: %v", err)
	}
	if again != path {
		t.Errorf("Expected cached path %s, got %s", path, again)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 backend call, got %d", calls.Load())
	}
	if got := testutil.ToFloat64(metrics.FlagDownloads.WithLabelValues("cached")); got != 1 {
		t.Errorf("Expected 1 cached lookup, got %v", got)
	}
}

func TestFlagDownloader_InvalidCode(t *testing.T) {
	d, err := NewFlagDownloader("http://127.0.0.1:0", t.TempDir(), 24, time.Second, nil)
	if err != nil {
		t.Fatalf("NewFlagDownloader failed: %v", err)
	}

	if _, err := d.FetchFlag(context.Background(), "../.."); !errors.Is(err, domain.ErrInvalidCurrency) {
		t.Errorf("Expected ErrInvalidCurrency, got %v", err)
	}
}

func TestFlagDownloader_ConcurrentSameCode(t *testing.T) {
	body := encodeTestPNG(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hold every response so the downloads overlap
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer server.Close()

	dir := t.TempDir()
	d, err := NewFlagDownloader(server.URL, dir, 48, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("NewFlagDownloader failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.FetchFlag(context.Background(), "SEK"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent FetchFlag failed: %v", err)
	}

	img, err := imaging.Open(d.FlagPath("SEK"))
	if err != nil {
		t.Fatalf("open saved flag: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 48, 48) {
		t.Errorf("Expected 48x48 flag, got %v", img.Bounds())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read flags dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "sek.png" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only sek.png, got %v", names)
	}
}

func TestFlagDownloader_BadPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an image"))
	}))
	defer server.Close()

	dir := t.TempDir()
	d, err := NewFlagDownloader(server.URL, dir, 24, time.Second, nil)
	if err != nil {
		t.Fatalf("NewFlagDownloader failed: %v", err)
	}

	_, err = d.FetchFlag(context.Background(), "USD")
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) || netErr.Op != "decode_flag" {
		t.Fatalf("Expected decode_flag NetworkError, got %v", err)
	}
	if _, statErr := os.Stat(d.FlagPath("USD")); statErr == nil {
		t.Error("No file should be written for an undecodable payload")
	}
}

func TestSanitizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"usd", "USD"},
		{"S/E K", "SEK"},
		{"../etc", "ETC"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeCode(tt.in); got != tt.want {
			t.Errorf("sanitizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
