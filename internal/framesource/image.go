package framesource

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// PixelFormat enumerates the pixel layouts carried through the pipeline.
// Only the two formats the original recordings use are supported.
type PixelFormat int

const (
	Mono8 PixelFormat = iota
	RGB8
)

func (p PixelFormat) String() string {
	switch p {
	case Mono8:
		return "MONO8"
	case RGB8:
		return "RGB8"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(p))
}

// Image is a decoded frame buffer. Pix is tightly packed row-major with
// no stride padding: Width*Height bytes for Mono8, 3x that for RGB8.
type Image struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// BlankMono8 returns an all-zero mono image, used as the render template
// for archive-only cameras that have no real image source.
func BlankMono8(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Format: Mono8,
		Pix:    make([]byte, width*height),
	}
}

func (im *Image) validate() error {
	want := im.Width * im.Height
	if im.Format == RGB8 {
		want *= 3
	}
	if len(im.Pix) != want {
		return fmt.Errorf("image buffer is %d bytes, want %d for %dx%d %s",
			len(im.Pix), want, im.Width, im.Height, im.Format)
	}
	return nil
}

// ToGray copies the image into a stdlib grayscale image. RGB8 input is
// converted with the usual luma weights.
func (im *Image) ToGray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, im.Width, im.Height))
	if im.Format == Mono8 {
		copy(g.Pix, im.Pix)
		return g
	}
	for i := 0; i < im.Width*im.Height; i++ {
		r := uint32(im.Pix[3*i])
		gg := uint32(im.Pix[3*i+1])
		b := uint32(im.Pix[3*i+2])
		g.Pix[i] = uint8((299*r + 587*gg + 114*b) / 1000)
	}
	return g
}

// ToRGBA copies the image into a stdlib RGBA image.
func (im *Image) ToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	n := im.Width * im.Height
	for i := 0; i < n; i++ {
		var r, g, b byte
		if im.Format == Mono8 {
			r, g, b = im.Pix[i], im.Pix[i], im.Pix[i]
		} else {
			r, g, b = im.Pix[3*i], im.Pix[3*i+1], im.Pix[3*i+2]
		}
		out.Pix[4*i] = r
		out.Pix[4*i+1] = g
		out.Pix[4*i+2] = b
		out.Pix[4*i+3] = 0xff
	}
	return out
}

// EncodePNG encodes the image as PNG. Mono8 encodes as 8-bit grayscale,
// RGB8 as truecolor.
func (im *Image) EncodePNG() ([]byte, error) {
	if err := im.validate(); err != nil {
		return nil, err
	}
	var src image.Image
	if im.Format == Mono8 {
		src = im.ToGray()
	} else {
		src = im.ToRGBA()
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}
