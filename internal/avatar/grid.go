// Package avatar composites player head thumbnails into a single PNG
// grid for embed attachments.
package avatar

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// Grid lays count images out in rows of perRow cells of size×size
// pixels separated by pad pixels of transparent gutter and returns the
// encoded PNG. Images larger than a cell are clipped; smaller ones are
// drawn top-left.
func Grid(images [][]byte, perRow, size, pad int) ([]byte, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no images to composite")
	}
	if perRow <= 0 || size <= 0 || pad < 0 {
		return nil, fmt.Errorf("invalid grid geometry: perRow=%d size=%d pad=%d", perRow, size, pad)
	}

	cols := min(len(images), perRow)
	rows := (len(images) + perRow - 1) / perRow

	width := cols*size + (cols-1)*pad
	height := rows*size + (rows-1)*pad
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))

	for i, raw := range images {
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decoding image %d: %w", i, err)
		}

		x := (i % perRow) * (size + pad)
		y := (i / perRow) * (size + pad)
		cell := image.Rect(x, y, x+size, y+size)
		draw.Draw(canvas, cell, img, img.Bounds().Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encoding grid: %w", err)
	}
	return buf.Bytes(), nil
}
