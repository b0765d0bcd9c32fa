package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// userAgent is sent when fetching images and camera snapshots
const userAgent = "Skin-Analyzer/1.0 (+https://github.com/menta2k/skin-analyzer)"

// Processor handles image loading, encoding and debug rendering
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewProcessorWithClient creates a processor that downloads with the given client
func NewProcessorWithClient(c *http.Client) *Processor {
	return &Processor{httpClient: c}
}

// FetchURL downloads raw image bytes from a URL
func (p *Processor) FetchURL(ctx context.Context, imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	return io.ReadAll(resp.Body)
}

// LoadImageFromURL downloads and decodes an image from a URL
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	data, err := p.FetchURL(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// imaging.Open applies EXIF orientation for phone photos
	if img, err := imaging.Open(path, imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// ReadSmart returns the raw bytes behind a file path or URL
func (p *Processor) ReadSmart(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.FetchURL(ctx, source)
	}
	return os.ReadFile(source)
}

// DecodeBytes decodes JPEG, PNG or WebP data
func DecodeBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// DecodeConfig returns the format name and dimensions without decoding pixels
func DecodeConfig(data []byte) (string, int, int, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, err
	}
	return format, cfg.Width, cfg.Height, nil
}

// EncodeJPEG re-encodes an image as JPEG, shrinking its long side to maxDim when maxDim > 0
func EncodeJPEG(img image.Image, maxDim int, quality int) ([]byte, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeBase64 returns base64 of the encoded bytes, as vision model APIs expect
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(f, img)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// Overlay colors keyed by quality level
var (
	colorGood    = color.NRGBA{0, 200, 83, 255}
	colorWarning = color.NRGBA{255, 193, 7, 255}
	colorBad     = color.NRGBA{244, 67, 54, 255}
)

// LevelColor returns the guide color used for a quality level
func LevelColor(l types.Level) color.NRGBA {
	switch l {
	case types.Good:
		return colorGood
	case types.Warning:
		return colorWarning
	default:
		return colorBad
	}
}

// VerdictColor colors the guide by the worse of the two axes
func VerdictColor(v types.QualityVerdict) color.NRGBA {
	worst := v.Lighting
	if v.Position > worst {
		worst = v.Position
	}
	return LevelColor(worst)
}

// GuideOverlay draws the face guide ellipse (radii as fractions of width/height) on a copy of img
func (p *Processor) GuideOverlay(img image.Image, rx, ry float64, c color.NRGBA) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	stroke := int(max(2, 0.006*float64(min(w, h))))
	inside := func(x, y int, shrink float64) bool {
		ax := rx*float64(w) - shrink
		ay := ry*float64(h) - shrink
		if ax <= 0 || ay <= 0 {
			return false
		}
		dx := (float64(x) - float64(w)/2) / ax
		dy := (float64(y) - float64(h)/2) / ay
		return dx*dx+dy*dy <= 1
	}

	// Ring between the guide and a copy shrunk by the stroke width
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if inside(x, y, 0) && !inside(x, y, float64(stroke)) {
				setPixel(nrgba, x, y, c)
			}
		}
	}

	// Center cross
	cx, cy := w/2, h/2
	drawHLine(nrgba, cy, cx-6, cx+6, c)
	drawVLine(nrgba, cx, cy-6, cy+6, c)

	return nrgba
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	for x := x0; x < x1; x++ {
		setPixel(img, x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	for y := y0; y < y1; y++ {
		setPixel(img, x, y, c)
	}
}
