package scaffold

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	hosterrors "github.com/wippyai/wasm-host/errors"
)

// DefaultBaseURL serves interface definitions by release tag.
const DefaultBaseURL = "https://raw.githubusercontent.com/deislabs/spiderlightning"

// maxInterfaceSize bounds a downloaded definition.
const maxInterfaceSize = 4 << 20

// Fetcher downloads interface definitions.
type Fetcher struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewFetcher returns a fetcher for baseURL. An empty baseURL uses
// DefaultBaseURL; a nil logger discards output.
func NewFetcher(baseURL string, log *zap.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// URL returns where ref is downloaded from.
func (f *Fetcher) URL(ref InterfaceAtRelease) string {
	return fmt.Sprintf("%s/%s/wit/%s.wit", f.baseURL, ref.Release, ref.Name)
}

// Fetch downloads ref into dir/<name>_<release>/<name>.wit and returns the
// written path.
func (f *Fetcher) Fetch(ctx context.Context, ref InterfaceAtRelease, dir string) (string, error) {
	url := f.URL(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", hosterrors.Wrap(hosterrors.PhaseConfig, hosterrors.KindInvalidInput, err, "build request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindSetup).
			Resource(url).
			Cause(err).
			Detail("download %s", ref).
			Build()
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", hosterrors.NotFound(hosterrors.PhaseConfig, "interface", ref.String())
	case resp.StatusCode != http.StatusOK:
		return "", hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidData).
			Resource(url).
			Value(resp.StatusCode).
			Detail("download %s: %s", ref, resp.Status).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInterfaceSize+1))
	if err != nil {
		return "", hosterrors.Wrap(hosterrors.PhaseConfig, hosterrors.KindInvalidData, err, "read interface body")
	}
	if len(data) > maxInterfaceSize {
		return "", hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidData).
			Resource(url).
			Detail("interface larger than %d bytes", maxInterfaceSize).
			Build()
	}

	out := filepath.Join(dir, ref.Dir())
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(out, ref.Name+".wit")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}

	f.log.Info("interface downloaded", zap.String("interface", ref.String()), zap.String("path", path))
	return path, nil
}
