package storagesvc

import (
	"bytes"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// isRaster reports whether ct can be re-encoded. GIFs are kept as they may be animated.
func isRaster(ct string) bool {
	return ct == "image/jpeg" || ct == "image/png" || ct == "image/webp"
}

func (u *Uploader) toWebP(data []byte, ct string) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	if ct == "image/webp" {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, errors.Wrap(ErrUnsupportedType, "decoding image: "+err.Error())
	}

	b := img.Bounds()
	if u.maxWidth > 0 && u.maxHeight > 0 && (b.Dx() > u.maxWidth || b.Dy() > u.maxHeight) {
		img = imaging.Fit(img, u.maxWidth, u.maxHeight, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, &webp.Options{Quality: u.quality}); err != nil {
		return nil, errors.Wrap(err, "encoding webp")
	}
	return buf.Bytes(), nil
}
