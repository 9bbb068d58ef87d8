package storagesvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
)

var (
	ErrFileTooLarge    = errors.New("file is too large")
	ErrUnsupportedType = errors.New("file type is not allowed")
	ErrEmptyFile       = errors.New("file is empty")
)

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// Upload is a stored file.
type Upload struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Uploader struct {
	store     Store
	maxSize   int64
	allowed   map[string]bool
	reencode  bool
	maxWidth  int
	maxHeight int
	quality   float32
	now       func() time.Time
}

// NewUploader only accepts the configured types it knows an extension for.
func NewUploader(store Store, conf *core.Config) *Uploader {
	allowed := make(map[string]bool, len(conf.Storage.AllowedMimeType))
	for _, mt := range conf.Storage.AllowedMimeType {
		mt = strings.ToLower(strings.TrimSpace(mt))
		if _, ok := extensions[mt]; ok {
			allowed[mt] = true
		}
	}
	return &Uploader{
		store:     store,
		maxSize:   conf.Storage.MaxUploadSize,
		allowed:   allowed,
		reencode:  conf.Storage.ReencodeImages,
		maxWidth:  conf.Storage.MaxImageWidth,
		maxHeight: conf.Storage.MaxImageHeight,
		quality:   conf.Storage.WebPQuality,
		now:       time.Now,
	}
}

// Upload checks the file's sniffed type and size, optionally re-encodes raster images to WebP and stores it
// as <tenant>/<yyyy>/<mm>/<uuid>.<ext>.
func (u *Uploader) Upload(ctx context.Context, tenantID string, fh *multipart.FileHeader) (Upload, error) {
	if fh == nil || fh.Size == 0 {
		return Upload{}, ErrEmptyFile
	}
	if fh.Size > u.maxSize {
		return Upload{}, errors.Wrapf(ErrFileTooLarge, "max %d bytes", u.maxSize)
	}

	src, err := fh.Open()
	if err != nil {
		return Upload{}, errors.Wrap(err, "opening upload")
	}
	defer src.Close()

	// the header size is client supplied, so read one byte past the cap
	data, err := io.ReadAll(io.LimitReader(src, u.maxSize+1))
	if err != nil {
		return Upload{}, errors.Wrap(err, "reading upload")
	}
	if int64(len(data)) > u.maxSize {
		return Upload{}, errors.Wrapf(ErrFileTooLarge, "max %d bytes", u.maxSize)
	}
	return u.put(ctx, tenantID, data)
}

func (u *Uploader) put(ctx context.Context, tenantID string, data []byte) (Upload, error) {
	if len(data) == 0 {
		return Upload{}, ErrEmptyFile
	}
	ct := sniff(data)
	if !u.allowed[ct] {
		return Upload{}, errors.Wrap(ErrUnsupportedType, ct)
	}

	if u.reencode && isRaster(ct) {
		out, err := u.toWebP(data, ct)
		if err != nil {
			return Upload{}, err
		}
		data, ct = out, "image/webp"
	}

	now := u.now().UTC()
	key := fmt.Sprintf("%s/%04d/%02d/%s%s", tenantID, now.Year(), now.Month(), uuid.NewString(), extensions[ct])
	if err := u.store.Put(ctx, key, bytes.NewReader(data), ct); err != nil {
		return Upload{}, err
	}
	return Upload{Key: key, URL: u.store.PublicURL(key), ContentType: ct, Size: int64(len(data))}, nil
}

func sniff(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
