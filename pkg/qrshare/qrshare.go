// Package qrshare renders a share QR code for a map page with a small
// choropleth swatch in the middle, using github.com/skip2/go-qrcode at ECC=H
// so the covered modules stay recoverable.
package qrshare

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"

	qrcode "github.com/skip2/go-qrcode"
)

// MaxURLLen caps the encoded payload; longer links are truncated by callers.
const MaxURLLen = 4096

// Options controls the rendered image. Zero values fall back to defaults.
type Options struct {
	TargetPx int // output size in pixels

	Fg color.RGBA // module color
	Bg color.RGBA // background, including the quiet zone

	// Swatch is painted as a grid of cells in the center box, row by row.
	Swatch []color.RGBA
	// SwatchCols is the number of grid columns; rows follow from len(Swatch).
	SwatchCols int
	// BoxFrac is the center box size relative to the image edge, 0.20..0.30.
	BoxFrac float64
}

// DefaultSwatch is a 2x3 yellow-to-red ramp.
var DefaultSwatch = []color.RGBA{
	{0xff, 0xff, 0xb2, 0xff}, {0xfe, 0xd9, 0x76, 0xff}, {0xfe, 0xb2, 0x4c, 0xff},
	{0xfd, 0x8d, 0x3c, 0xff}, {0xf0, 0x3b, 0x20, 0xff}, {0xbd, 0x00, 0x26, 0xff},
}

func (o *Options) defaults() {
	if o.TargetPx <= 0 {
		o.TargetPx = 1024
	}
	if (o.Fg == color.RGBA{}) {
		o.Fg = color.RGBA{0, 0, 0, 255}
	}
	if (o.Bg == color.RGBA{}) {
		o.Bg = color.RGBA{255, 255, 255, 255}
	}
	if len(o.Swatch) == 0 {
		o.Swatch = DefaultSwatch
		o.SwatchCols = 3
	}
	if o.SwatchCols <= 0 || o.SwatchCols > len(o.Swatch) {
		o.SwatchCols = len(o.Swatch)
	}
	if o.BoxFrac <= 0 {
		o.BoxFrac = 0.24
	}
	// ECC=H recovers ~30% of codewords; keep the box well inside that.
	if o.BoxFrac < 0.20 {
		o.BoxFrac = 0.20
	}
	if o.BoxFrac > 0.30 {
		o.BoxFrac = 0.30
	}
}

// EncodePNG writes the QR for url as PNG.
func EncodePNG(w io.Writer, url string, opt Options) error {
	if url == "" {
		return errors.New("qrshare: empty url")
	}
	if len(url) > MaxURLLen {
		url = url[:MaxURLLen]
	}
	img, err := Render(url, opt)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

// Render returns the composed image without encoding it.
func Render(url string, opt Options) (*image.RGBA, error) {
	opt.defaults()

	qr, err := qrcode.New(url, qrcode.Highest)
	if err != nil {
		return nil, err
	}
	qr.ForegroundColor = opt.Fg
	qr.BackgroundColor = opt.Bg

	src := qr.Image(opt.TargetPx)
	b := src.Bounds()
	W, H := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, W, H))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{opt.Bg}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)

	box := int(opt.BoxFrac * float64(min(W, H)))
	if box%2 == 1 {
		box--
	}
	x0, y0 := W/2-box/2, H/2-box/2
	fillRect(dst, image.Rect(x0, y0, x0+box, y0+box), opt.Bg)
	drawSwatch(dst, image.Rect(x0, y0, x0+box, y0+box), opt.Swatch, opt.SwatchCols)
	return dst, nil
}

// drawSwatch tiles cells into box with a one-gap border in the background color.
func drawSwatch(dst *image.RGBA, box image.Rectangle, cells []color.RGBA, cols int) {
	rows := (len(cells) + cols - 1) / cols
	gap := box.Dx() / 24
	if gap < 1 {
		gap = 1
	}
	inner := box.Inset(gap)
	cw := (inner.Dx() - gap*(cols-1)) / cols
	ch := (inner.Dy() - gap*(rows-1)) / rows
	if cw <= 0 || ch <= 0 {
		return
	}
	for i, c := range cells {
		r, k := i/cols, i%cols
		x := inner.Min.X + k*(cw+gap)
		y := inner.Min.Y + r*(ch+gap)
		fillRect(dst, image.Rect(x, y, x+cw, y+ch), c)
	}
}

func fillRect(img *image.RGBA, r image.Rectangle, col color.RGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), &image.Uniform{col}, image.Point{}, draw.Src)
}
