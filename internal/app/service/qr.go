package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// QRGenerator writes PNG and SVG QR images for short URLs into the static
// directory and returns the public asset URLs stored on the link record.
type QRGenerator struct {
	staticDir string
	baseURL   string
}

// NewQRGenerator creates a generator. baseURL is the public origin used both
// inside the encoded short URL and in the returned asset links.
func NewQRGenerator(staticDir, baseURL string) *QRGenerator {
	return &QRGenerator{
		staticDir: staticDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Generate renders {slug}.png and {slug}.svg and returns their public URLs.
func (g *QRGenerator) Generate(slug string) (pngURL, svgURL string, err error) {
	if err := os.MkdirAll(g.staticDir, 0o755); err != nil {
		return "", "", fmt.Errorf("qr: create static dir: %w", err)
	}

	shortURL := fmt.Sprintf("%s/%s", g.baseURL, slug)

	pngPath := filepath.Join(g.staticDir, slug+".png")
	if err := qrcode.WriteFile(shortURL, qrcode.Medium, qrImageSize, pngPath); err != nil {
		return "", "", fmt.Errorf("qr: write png: %w", err)
	}

	svgPath := filepath.Join(g.staticDir, slug+".svg")
	if err := writeQRSVG(shortURL, svgPath); err != nil {
		return "", "", fmt.Errorf("qr: write svg: %w", err)
	}

	return fmt.Sprintf("%s/static/%s.png", g.baseURL, slug),
		fmt.Sprintf("%s/static/%s.svg", g.baseURL, slug),
		nil
}

// Remove deletes the slug's QR assets. Missing files are not an error.
func (g *QRGenerator) Remove(slug string) {
	for _, ext := range []string{".png", ".svg"} {
		_ = os.Remove(filepath.Join(g.staticDir, slug+ext))
	}
}

// writeQRSVG emits the QR matrix as one SVG rect per dark module. No SVG
// library in use elsewhere, and the output is trivial enough not to need one.
func writeQRSVG(content, path string) error {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return err
	}

	bitmap := code.Bitmap()
	size := len(bitmap)

	var b strings.Builder
	fmt.Fprintf(&b,
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" shape-rendering="crispEdges">`,
		size, size)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`, size, size)
	for y, row := range bitmap {
		for x, dark := range row {
			if dark {
				fmt.Fprintf(&b, `<rect x="%d" y="%d" width="1" height="1"/>`, x, y)
			}
		}
	}
	b.WriteString(`</svg>`)

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
