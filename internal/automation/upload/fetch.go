// internal/automation/upload/fetch.go
package upload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
)

// maxImageBytes bounds how much image we pull into memory. Chat hosts reject
// uploads far smaller than this anyway.
const maxImageBytes = 64 << 20

// DownloadError means the image could not be retrieved by any route. The
// message is surfaced verbatim to the operator.
type DownloadError struct {
	URL   string
	cause error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("Could not download this image (%s). Please save it and upload it manually.", e.URL)
}

func (e *DownloadError) Unwrap() error { return e.cause }

// Scripter is the slice of the page the in-page fetch fallback uses.
type Scripter interface {
	Evaluate(ctx context.Context, script string, out any) error
}

// Fetcher retrieves image bytes for upload. The direct route goes over this
// process's own HTTP client and is not subject to the page's cross-origin
// rules; the fallback runs a credential-less fetch() inside the page, which
// succeeds where the CDN gates on request origin rather than cookies. No
// page session material is ever attached to the image request.
type Fetcher struct {
	client  *http.Client
	page    Scripter
	timeout time.Duration
	logger  *zap.Logger
}

func NewFetcher(client *http.Client, page Scripter, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client:  client,
		page:    page,
		timeout: timeout,
		logger:  logger.Named("fetch"),
	}
}

// Fetch returns the image behind imageURL as an in-memory payload, trying
// the direct route first and the in-page route second.
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) (schemas.FilePayload, error) {
	payload, directErr := f.fetchDirect(ctx, imageURL)
	if directErr == nil {
		return payload, nil
	}
	f.logger.Warn("Direct image download failed; retrying inside the page.",
		zap.String("url", imageURL), zap.Error(directErr))

	payload, pageErr := f.fetchInPage(ctx, imageURL)
	if pageErr == nil {
		return payload, nil
	}
	f.logger.Error("In-page image download failed too.",
		zap.String("url", imageURL), zap.Error(pageErr))

	return schemas.FilePayload{}, &DownloadError{URL: imageURL, cause: pageErr}
}

func (f *Fetcher) fetchDirect(ctx context.Context, imageURL string) (schemas.FilePayload, error) {
	opCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(opCtx, http.MethodGet, imageURL, nil)
	if err != nil {
		return schemas.FilePayload{}, fmt.Errorf("invalid image URL: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return schemas.FilePayload{}, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return schemas.FilePayload{}, fmt.Errorf("image request returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return schemas.FilePayload{}, fmt.Errorf("reading image body failed: %w", err)
	}
	if len(data) > maxImageBytes {
		return schemas.FilePayload{}, fmt.Errorf("image exceeds %d byte limit", maxImageBytes)
	}
	if len(data) == 0 {
		return schemas.FilePayload{}, fmt.Errorf("image body was empty")
	}

	return buildPayload(imageURL, data), nil
}

func (f *Fetcher) fetchInPage(ctx context.Context, imageURL string) (schemas.FilePayload, error) {
	if f.page == nil {
		return schemas.FilePayload{}, fmt.Errorf("no page available for in-page fetch")
	}

	encoded, _ := json.Marshal(imageURL)
	script := fmt.Sprintf(`
		(async function(url) {
			const resp = await fetch(url, {credentials: 'omit'});
			if (!resp.ok) throw new Error('fetch returned ' + resp.status);
			const blob = await resp.blob();
			return await new Promise((resolve, reject) => {
				const reader = new FileReader();
				reader.onloadend = () => resolve(reader.result);
				reader.onerror = () => reject(reader.error);
				reader.readAsDataURL(blob);
			});
		})(%s);`, encoded)

	opCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var dataURI string
	if err := f.page.Evaluate(opCtx, script, &dataURI); err != nil {
		return schemas.FilePayload{}, fmt.Errorf("in-page fetch failed: %w", err)
	}

	_, data, err := DecodeDataURI(dataURI)
	if err != nil {
		return schemas.FilePayload{}, err
	}
	return buildPayload(imageURL, data), nil
}

// DecodeDataURI splits a base64 data URI into its declared media type and
// decoded bytes.
func DecodeDataURI(uri string) (mime string, data []byte, err error) {
	const prefix = "data:"
	if !strings.HasPrefix(uri, prefix) {
		return "", nil, fmt.Errorf("not a data URI")
	}
	meta, b64, ok := strings.Cut(uri[len(prefix):], ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return "", nil, fmt.Errorf("data URI is not base64 encoded")
	}
	mime = strings.TrimSuffix(meta, ";base64")

	data, err = base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", nil, fmt.Errorf("data URI payload did not decode: %w", err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("data URI payload was empty")
	}
	return mime, data, nil
}

// buildPayload sniffs the real media type from the bytes rather than
// trusting response headers, and derives a filename carrying a matching
// extension so hosts that filter by name accept it.
func buildPayload(imageURL string, data []byte) schemas.FilePayload {
	mt := mimetype.Detect(data)

	name := "image"
	if u, err := url.Parse(imageURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	if path.Ext(name) == "" {
		name += mt.Extension()
	}

	return schemas.FilePayload{Name: name, MIME: mt.String(), Data: data}
}
