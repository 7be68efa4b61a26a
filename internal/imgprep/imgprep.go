// Package imgprep turns raw image input into bandwidth-bounded JPEG
// payloads. Two budgets exist: a small one for uploads and a larger
// one for on-screen previews, so a preview can later be re-prepared
// for upload without visible loss.
package imgprep

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/disintegration/imaging"

	"github.com/photolingo/photolingo/internal/common"
)

const (
	DefaultUploadMaxDim  = 1024
	DefaultPreviewMaxDim = 1600
	DefaultJPEGQuality   = 86
)

// EncodedImage is an opaque compressed payload plus its pixel
// dimensions. Never mutated after creation.
type EncodedImage struct {
	Data   []byte
	Width  int
	Height int
}

// Preparer resizes and re-encodes images against fixed budgets.
type Preparer struct {
	uploadMaxDim  int
	previewMaxDim int
	quality       int
}

// NewPreparer validates the budgets. The preview bound must be at
// least the upload bound: the preview becomes the upload source, so a
// later downscale to the upload bound has to stay lossless in
// practice.
func NewPreparer(cfg common.ImageConfig) (*Preparer, error) {
	if cfg.UploadMaxDim < 1 || cfg.PreviewMaxDim < 1 {
		return nil, fmt.Errorf("dimension bounds must be positive")
	}
	if cfg.PreviewMaxDim < cfg.UploadMaxDim {
		return nil, fmt.Errorf("preview bound %d below upload bound %d", cfg.PreviewMaxDim, cfg.UploadMaxDim)
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return nil, fmt.Errorf("jpeg quality %d out of range", cfg.JPEGQuality)
	}
	return &Preparer{
		uploadMaxDim:  cfg.UploadMaxDim,
		previewMaxDim: cfg.PreviewMaxDim,
		quality:       cfg.JPEGQuality,
	}, nil
}

// PrepareUpload decodes src and produces a JPEG whose longer edge does
// not exceed the upload budget.
func (p *Preparer) PrepareUpload(src io.Reader) (*EncodedImage, error) {
	return p.prepare(src, p.uploadMaxDim)
}

// PreparePreview is PrepareUpload against the larger preview budget.
func (p *Preparer) PreparePreview(src io.Reader) (*EncodedImage, error) {
	return p.prepare(src, p.previewMaxDim)
}

func (p *Preparer) prepare(src io.Reader, maxDim int) (*EncodedImage, error) {
	img, err := imaging.Decode(src)
	if err != nil {
		return nil, common.NewDecodeError("could not decode image input", err)
	}
	return p.encode(img, maxDim)
}

func (p *Preparer) encode(img image.Image, maxDim int) (*EncodedImage, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 1 || h < 1 {
		return nil, common.NewDecodeError("image has no pixels", nil)
	}

	tw, th := FitDimensions(w, h, maxDim)
	if tw != w || th != h {
		img = imaging.Resize(img, tw, th, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, common.NewDecodeError("could not re-encode image", err)
	}
	return &EncodedImage{Data: buf.Bytes(), Width: tw, Height: th}, nil
}

// FitDimensions scales (w, h) isotropically so the longer edge is at
// most maxDim. Dimensions within the budget pass through untouched;
// scaled dimensions round to the nearest pixel with a floor of 1.
func FitDimensions(w, h, maxDim int) (int, int) {
	longEdge := w
	if h > longEdge {
		longEdge = h
	}
	if longEdge <= maxDim {
		return w, h
	}
	scale := float64(maxDim) / float64(longEdge)
	tw := int(math.Round(float64(w) * scale))
	th := int(math.Round(float64(h) * scale))
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}
