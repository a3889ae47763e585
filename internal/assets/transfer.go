// Package assets moves observation images between local storage and the
// remote object store. Transfers are stateless; every failure is returned as
// an error and callers decide whether it blocks the owning record.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrUnreadable is returned by Upload when the local reference cannot be
// read. No network request is made in that case.
var ErrUnreadable = errors.New("local image is not readable")

// DefaultFolder is the object-store folder and upload preset used when the
// configuration leaves them empty.
const DefaultFolder = "mhike_observations"

const defaultExt = ".jpg"

// Options configures a Transfer.
type Options struct {
	// UploadURL is the object store's unsigned multipart upload endpoint.
	UploadURL    string
	UploadPreset string
	Folder       string
	// ImagesDir is where downloaded images are written.
	ImagesDir string
}

// Transfer uploads and downloads observation images.
type Transfer struct {
	fs         afero.Fs
	httpClient *http.Client
	opts       Options
	now        func() time.Time
	log        *slog.Logger
}

// NewTransfer returns a Transfer reading and writing files through fs.
func NewTransfer(fs afero.Fs, httpClient *http.Client, opts Options, logger *slog.Logger) *Transfer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.UploadPreset == "" {
		opts.UploadPreset = DefaultFolder
	}
	if opts.Folder == "" {
		opts.Folder = DefaultFolder
	}
	return &Transfer{
		fs:         fs,
		httpClient: httpClient,
		opts:       opts,
		now:        time.Now,
		log:        logger,
	}
}

// Upload sends the file at localRef to the object store and returns the
// secure URL it was stored under.
func (t *Transfer) Upload(ctx context.Context, localRef string) (string, error) {
	if !t.readable(localRef) {
		return "", fmt.Errorf("uploading %q: %w", localRef, ErrUnreadable)
	}
	f, err := t.fs.Open(localRef)
	if err != nil {
		return "", fmt.Errorf("uploading %q: %w: %v", localRef, ErrUnreadable, err)
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(localRef))
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("reading %q: %w", localRef, err)
	}
	if err := mw.WriteField("upload_preset", t.opts.UploadPreset); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if err := mw.WriteField("folder", t.opts.Folder); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.UploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading %q: %w", localRef, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("uploading %q: object store status %d", localRef, resp.StatusCode)
	}
	var out struct {
		SecureURL string `json:"secure_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if strings.TrimSpace(out.SecureURL) == "" {
		return "", errors.New("upload response has no secure_url")
	}

	t.log.Debug("image uploaded", "path", localRef, "url", out.SecureURL)
	return out.SecureURL, nil
}

// Download fetches remoteURL into a new file under the images directory and
// returns its path. A partially written file is removed on failure.
func (t *Transfer) Download(ctx context.Context, remoteURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", fmt.Errorf("building download request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", remoteURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("downloading %s: status %d", remoteURL, resp.StatusCode)
	}

	if err := t.fs.MkdirAll(t.opts.ImagesDir, 0o700); err != nil {
		return "", fmt.Errorf("creating images directory: %w", err)
	}
	dst := filepath.Join(t.opts.ImagesDir, t.fileName(remoteURL))
	if err := afero.WriteReader(t.fs, dst, resp.Body); err != nil {
		_ = t.fs.Remove(dst)
		return "", fmt.Errorf("writing %s: %w", dst, err)
	}

	t.log.Debug("image downloaded", "url", remoteURL, "path", dst)
	return dst, nil
}

// Remove deletes a file previously returned by Download. A file that is
// already gone is not an error.
func (t *Transfer) Remove(localPath string) error {
	if err := t.fs.Remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", localPath, err)
	}
	return nil
}

// readable reports whether ref names an existing regular file.
func (t *Transfer) readable(ref string) bool {
	if strings.TrimSpace(ref) == "" {
		return false
	}
	fi, err := t.fs.Stat(ref)
	return err == nil && fi.Mode().IsRegular()
}

// fileName builds observation_<unix-millis>_<uuid><ext>.
func (t *Transfer) fileName(remoteURL string) string {
	return fmt.Sprintf("observation_%d_%s%s", t.now().UnixMilli(), uuid.NewString(), imageExt(remoteURL))
}

// imageExt returns the lower-cased extension of the URL path, or .jpg when
// there is none or it does not look like a file extension.
func imageExt(remoteURL string) string {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return defaultExt
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 5 {
		return defaultExt
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultExt
		}
	}
	return ext
}
