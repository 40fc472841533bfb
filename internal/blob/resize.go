package blob

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"
)

// pfpSize is the edge length every profile picture is scaled to.
const pfpSize = 300

// normalizePicture decodes an uploaded image (PNG, JPEG, or GIF) and
// rescales it to the canonical square PNG form.
func normalizePicture(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, pfpSize, pfpSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// placeholderColors paint the stock pictures assigned to new accounts.
var placeholderColors = []color.RGBA{
	{R: 0x5a, G: 0x67, B: 0xd8, A: 0xff}, // indigo
	{R: 0x38, G: 0xa1, B: 0x69, A: 0xff}, // green
	{R: 0xd8, G: 0x5a, B: 0x5a, A: 0xff}, // red
	{R: 0xd8, G: 0xa0, B: 0x3a, A: 0xff}, // amber
	{R: 0x7a, G: 0x5a, B: 0xd8, A: 0xff}, // violet
}

// seedPlaceholders writes placeholder1.png through placeholder5.png into
// the pfps directory. Existing files are left alone so operators can ship
// their own artwork.
func (s *Store) seedPlaceholders() error {
	for i, c := range placeholderColors {
		name := fmt.Sprintf("placeholder%d.png", i+1)
		path := filepath.Join(s.pfpDir(), name)
		if _, err := os.Stat(path); err == nil {
			continue
		}

		img := image.NewRGBA(image.Rect(0, 0, pfpSize, pfpSize))
		draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if err := s.writeAtomic(s.pfpDir(), path, buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
