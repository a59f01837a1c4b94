// Package image implements the processing pipeline for uploaded images:
// magic-byte detection, allow-list validation, decode, resize-to-bound,
// EXIF strip via re-encode, and transcode to the configured output format.
//
// The pipeline is a pure function of (bytes, config): identical inputs
// produce identical outputs, which keeps deduplication deterministic.
package image

import (
	"bytes"
	"fmt"
	stdimage "image"
	"strings"

	"github.com/chai2010/webp"
	"github.com/gabriel-vasile/mimetype"
	"github.com/kovidgoyal/imaging"

	// Register decoders beyond what imaging pulls in itself. Inputs may
	// arrive in any allow-listed format regardless of the output format.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
)

// Processed is the pipeline output.
type Processed struct {
	// OriginalData is the bytes stored as "original": the input untouched,
	// or a metadata-free re-encode when strip_exif is on.
	OriginalData []byte
	// OptimizedData is the transcode in the configured output format.
	OptimizedData []byte
	// OriginalMime is the detected input MIME.
	OriginalMime string
	// Width and Height are the final (possibly resized) dimensions.
	Width  int
	Height int
	// WasResized reports whether the resize-to-bound step ran.
	WasResized bool
}

// Processor runs the pipeline with a fixed processing policy.
type Processor struct {
	outputFormat  string
	outputQuality int
	maxDimension  int
	stripExif     bool
}

// NewProcessor builds a processor from the processing config.
func NewProcessor(cfg config.ProcessingConfig) *Processor {
	return &Processor{
		outputFormat:  strings.ToLower(cfg.OutputFormat),
		outputQuality: cfg.OutputQuality,
		maxDimension:  cfg.MaxImageDimension,
		stripExif:     cfg.StripExif,
	}
}

// DetectMime identifies the payload by magic bytes and requires an
// image/* result. The client's Content-Type is never consulted.
func DetectMime(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperr.E(apperr.KindUnsupportedMediaType, "empty file")
	}
	mime := mimetype.Detect(data).String()
	// mimetype may append parameters such as charset.
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if !strings.HasPrefix(mime, "image/") {
		return "", apperr.Ef(apperr.KindUnsupportedMediaType, "not an image type: %s", mime)
	}
	return mime, nil
}

// Process runs the full pipeline against raw upload bytes.
func (p *Processor) Process(data []byte, upload config.UploadConfig) (*Processed, error) {
	detected, err := DetectMime(data)
	if err != nil {
		return nil, err
	}
	if !upload.IsAllowedImageType(detected) {
		return nil, apperr.Ef(apperr.KindUnsupportedMediaType, "image type %q is not in allowed_image_types", detected)
	}

	img, _, err := stdimage.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindImageProcessing, "decoding image", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	logger.Debug("decoded image", "mime", detected, "width", width, "height", height)

	wasResized := false
	if width > p.maxDimension || height > p.maxDimension {
		newW, newH := fitWithin(width, height, p.maxDimension)
		img = imaging.Resize(img, newW, newH, imaging.Lanczos)
		width, height = newW, newH
		wasResized = true
		logger.Debug("resized image", "width", width, "height", height)
	}

	originalData := data
	if p.stripExif {
		// Re-encoding through a decoded pixel buffer drops every
		// metadata segment the source format carried.
		originalData, err = encodeAs(img, detected, p.outputQuality)
		if err != nil {
			return nil, err
		}
	}

	optimizedData, err := encodeAs(img, p.outputMime(), p.outputQuality)
	if err != nil {
		return nil, err
	}

	return &Processed{
		OriginalData:  originalData,
		OptimizedData: optimizedData,
		OriginalMime:  detected,
		Width:         width,
		Height:        height,
		WasResized:    wasResized,
	}, nil
}

func (p *Processor) outputMime() string {
	switch p.outputFormat {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return "image/webp"
	}
}

// fitWithin scales (w,h) isotropically so the longer side equals max.
// The shorter side truncates toward zero.
func fitWithin(w, h, max int) (int, int) {
	if w > h {
		ratio := float64(max) / float64(w)
		return max, int(float64(h) * ratio)
	}
	ratio := float64(max) / float64(h)
	return int(float64(w) * ratio), max
}

// encodeAs writes img in the format identified by mime.
func encodeAs(img stdimage.Image, mime string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch mime {
	case "image/webp":
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)})
	case "image/jpeg":
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "image/png":
		err = imaging.Encode(&buf, img, imaging.PNG)
	case "image/gif":
		err = imaging.Encode(&buf, img, imaging.GIF)
	case "image/bmp":
		err = imaging.Encode(&buf, img, imaging.BMP)
	case "image/tiff":
		err = imaging.Encode(&buf, img, imaging.TIFF)
	default:
		return nil, apperr.Ef(apperr.KindImageProcessing, "no encoder for %s", mime)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindImageProcessing, fmt.Sprintf("encoding %s", mime), err)
	}
	return buf.Bytes(), nil
}
