package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/sync/errgroup"
)

const baseDPI = 72

// ImageExtractor rasterizes receipt regions from the source PDF. The fitz
// document is opened once and kept for the whole run; calls into it are
// serialized because libmupdf is not thread-safe.
type ImageExtractor struct {
	doc *fitz.Document
	mu  sync.Mutex
}

// NewImageExtractor opens the source PDF for rasterization.
func NewImageExtractor(path string) (*ImageExtractor, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF for rasterization: %w", err)
	}
	return &ImageExtractor{doc: doc}, nil
}

// Close releases the underlying document.
func (e *ImageExtractor) Close() error {
	return e.doc.Close()
}

// ExtractReceiptImage renders one receipt region at the quality tier's scale,
// fits it into the size tier's pixel box and encodes it. Any failure yields a
// visibly-marked placeholder of the same target dimensions instead of an
// error, so one broken receipt never aborts the batch.
func (e *ImageExtractor) ExtractReceiptImage(region ReceiptRegion, quality QualityTier, size SizeTier) ReceiptImage {
	img, err := e.renderRegion(region, quality)
	if err != nil {
		log.WithField("page", region.Page).WithError(err).Error("Receipt rasterization failed, substituting placeholder")
		return placeholderImage(region, size, err.Error())
	}

	targetW, targetH := size.TargetBox()
	fitted := imaging.Fit(img, targetW, targetH, imaging.Lanczos)

	data, format, err := encodeReceiptImage(fitted, quality)
	if err != nil {
		log.WithField("page", region.Page).WithError(err).Error("Receipt image encoding failed, substituting placeholder")
		return placeholderImage(region, size, err.Error())
	}

	bounds := fitted.Bounds()
	return ReceiptImage{
		Data:   data,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Region: region,
	}
}

// ExtractAll extracts every region's image. Rendering is serialized by the
// extractor's mutex but resizing and encoding run concurrently per receipt;
// results keep the input order.
func (e *ImageExtractor) ExtractAll(ctx context.Context, regions []ReceiptRegion, quality QualityTier, size SizeTier) []ReceiptImage {
	images := make([]ReceiptImage, len(regions))

	var g errgroup.Group
	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				images[i] = placeholderImage(region, size, err.Error())
				return nil
			}
			images[i] = e.ExtractReceiptImage(region, quality, size)
			return nil
		})
	}
	// Workers never return errors; placeholders carry the failures.
	_ = g.Wait()

	return images
}

// renderRegion rasterizes the page at the tier's scale and crops the clamped
// region rectangle out of it.
func (e *ImageExtractor) renderRegion(region ReceiptRegion, quality QualityTier) (image.Image, error) {
	pageIndex := region.Page - 1

	e.mu.Lock()
	pageBounds, err := e.doc.Bound(pageIndex)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("page %d out of range: %w", region.Page, err)
	}

	scale := quality.Scale()
	rendered, err := e.doc.ImageDPI(pageIndex, float64(baseDPI*scale))
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", region.Page, err)
	}

	pageW := float64(pageBounds.Dx())
	pageH := float64(pageBounds.Dy())
	clamped := clampRegion(region, pageW, pageH)

	crop := image.Rect(
		int(clamped.X)*scale,
		int(clamped.Y)*scale,
		int(clamped.X+clamped.Width)*scale,
		int(clamped.Y+clamped.Height)*scale,
	)
	crop = crop.Intersect(rendered.Bounds())
	if crop.Empty() {
		return nil, fmt.Errorf("region on page %d lies outside the page", region.Page)
	}

	return imaging.Crop(rendered, crop), nil
}

// clampRegion restricts a region's rectangle to the actual page bounds.
// Nominal template dimensions can exceed the real page, especially for the
// last receipt near the bottom edge.
func clampRegion(region ReceiptRegion, pageWidth, pageHeight float64) ReceiptRegion {
	out := region

	if out.X < 0 {
		out.X = 0
	}
	if out.X > pageWidth {
		out.X = pageWidth
	}
	if out.Y < 0 {
		out.Y = 0
	}
	if out.Y > pageHeight {
		out.Y = pageHeight
	}
	if out.X+out.Width > pageWidth {
		out.Width = pageWidth - out.X
	}
	if out.Y+out.Height > pageHeight {
		out.Height = pageHeight - out.Y
	}
	if out.Width < 0 {
		out.Width = 0
	}
	if out.Height < 0 {
		out.Height = 0
	}

	return out
}

// encodeReceiptImage stores the image per the quality tier: lossless PNG for
// high, JPEG with a tier-dependent quality factor otherwise. JPEG has no
// alpha, so transparent sources are flattened onto white first.
func encodeReceiptImage(img image.Image, quality QualityTier) ([]byte, string, error) {
	var buf bytes.Buffer

	if quality.Lossless() {
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, "", fmt.Errorf("encoding PNG: %w", err)
		}
		return buf.Bytes(), "png", nil
	}

	flattened := flattenAlpha(img)
	if err := imaging.Encode(&buf, flattened, imaging.JPEG, imaging.JPEGQuality(quality.JPEGQuality())); err != nil {
		return nil, "", fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), "jpeg", nil
}

// flattenAlpha composites the image over a white background when it carries
// an alpha channel.
func flattenAlpha(img image.Image) image.Image {
	if img.ColorModel() == color.NRGBAModel || img.ColorModel() == color.RGBAModel || img.ColorModel() == color.NRGBA64Model {
		bounds := img.Bounds()
		background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
		return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
	}
	return img
}

// placeholderImage builds the substitute raster for a failed extraction:
// target tier dimensions, gray background, the failure reason embedded so
// the output PDF stays diagnosable.
func placeholderImage(region ReceiptRegion, size SizeTier, reason string) ReceiptImage {
	width, height := size.TargetBox()

	dc := gg.NewContext(width, height)
	dc.SetColor(color.Gray{Y: 0xd3})
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	dc.SetRGB(0.8, 0, 0)
	dc.DrawStringAnchored("Imagen del recibo no disponible", float64(width)/2, float64(height)/2-20, 0.5, 0.5)

	dc.SetRGB(0, 0, 0)
	message := reason
	if len(message) > 120 {
		message = message[:120]
	}
	dc.DrawStringWrapped(message, float64(width)/2, float64(height)/2+10, 0.5, 0, float64(width)-40, 1.4, gg.AlignCenter)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		log.WithError(err).Error("Failed to encode placeholder image")
	}

	return ReceiptImage{
		Data:        buf.Bytes(),
		Format:      "png",
		Width:       width,
		Height:      height,
		Region:      region,
		Placeholder: true,
		FailReason:  reason,
	}
}
