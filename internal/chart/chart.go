// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package chart renders survey results as PNG images: a ranked bar chart of
// option counts and a treemap of opinion clusters.
package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tomtom215/galdcup/internal/config"
	"github.com/tomtom215/galdcup/internal/models"
)

// ErrNothingToDraw is returned when the input has no data worth a chart.
var ErrNothingToDraw = errors.New("chart: nothing to draw")

const (
	padding    = 16
	lineHeight = 13
	glyphWidth = 7
	titleGap   = 28
)

var (
	background = color.RGBA{0x2b, 0x2d, 0x31, 0xff}
	foreground = color.RGBA{0xf2, 0xf3, 0xf5, 0xff}
	muted      = color.RGBA{0x94, 0x9b, 0xa4, 0xff}
	track      = color.RGBA{0x3a, 0x3d, 0x44, 0xff}

	palette = []color.RGBA{
		{0x58, 0x65, 0xf2, 0xff},
		{0x57, 0xf2, 0x87, 0xff},
		{0xfe, 0xe7, 0x5c, 0xff},
		{0xeb, 0x45, 0x9e, 0xff},
		{0xed, 0x42, 0x45, 0xff},
		{0x3b, 0xa5, 0x5d, 0xff},
		{0xfa, 0xa6, 0x1a, 0xff},
		{0x00, 0xa8, 0xfc, 0xff},
	}
)

// Renderer draws fixed-size charts.
type Renderer struct {
	width  int
	height int
}

// New creates a renderer from chart configuration.
func New(cfg config.ChartConfig) *Renderer {
	w, h := cfg.Width, cfg.Height
	if w <= 0 {
		w = 800
	}
	if h <= 0 {
		h = 400
	}
	return &Renderer{width: w, height: h}
}

// RenderCounts draws one horizontal bar per option in the given order.
func (r *Renderer) RenderCounts(ctx context.Context, title string, counts []models.OptionCount) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, ErrNothingToDraw
	}

	img := r.canvas()
	drawText(img, padding, padding+lineHeight, truncate(title, (r.width-2*padding)/glyphWidth), foreground)

	maxCount := 0
	for _, c := range counts {
		if c.Count > maxCount {
			maxCount = c.Count
		}
	}

	top := padding + titleGap
	rowHeight := (r.height - top - padding) / len(counts)
	if rowHeight > 48 {
		rowHeight = 48
	}
	if rowHeight < lineHeight+4 {
		rowHeight = lineHeight + 4
	}

	labelWidth := (r.width - 2*padding) / 3
	valueWidth := 16 * glyphWidth
	barLeft := padding + labelWidth
	barMax := r.width - padding - valueWidth - barLeft

	for i, c := range counts {
		y := top + i*rowHeight
		if y+rowHeight > r.height-padding+rowHeight/2 {
			break
		}
		barTop := y + 3
		barBottom := y + rowHeight - 3
		textY := y + (rowHeight+lineHeight)/2 - 2

		drawText(img, padding, textY, truncate(c.Name, labelWidth/glyphWidth-1), foreground)
		fill(img, image.Rect(barLeft, barTop, barLeft+barMax, barBottom), track)
		if maxCount > 0 && c.Count > 0 {
			w := barMax * c.Count / maxCount
			fill(img, image.Rect(barLeft, barTop, barLeft+w, barBottom), palette[i%len(palette)])
		}
		drawText(img, barLeft+barMax+glyphWidth, textY, fmt.Sprintf("%.1f%% (%d)", c.Percent, c.Count), muted)
	}

	return encode(img)
}

// RenderClusters draws a slice-and-dice treemap where each cluster's area is
// proportional to its count.
func (r *Renderer) RenderClusters(ctx context.Context, title string, clusters []models.Cluster) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total := 0
	for _, c := range clusters {
		if c.Count > 0 {
			total += c.Count
		}
	}
	if total == 0 {
		return nil, ErrNothingToDraw
	}

	img := r.canvas()
	drawText(img, padding, padding+lineHeight, truncate(title, (r.width-2*padding)/glyphWidth), foreground)

	area := image.Rect(padding, padding+titleGap, r.width-padding, r.height-padding)
	for i, rect := range treemap(area, clusters, total) {
		c := clusters[i]
		if rect.Empty() {
			continue
		}
		fill(img, rect.Inset(1), palette[i%len(palette)])
		maxChars := (rect.Dx() - 8) / glyphWidth
		if maxChars < 3 || rect.Dy() < lineHeight+6 {
			continue
		}
		drawText(img, rect.Min.X+4, rect.Min.Y+lineHeight+2, truncate(c.Name, maxChars), background)
		if rect.Dy() >= 2*lineHeight+8 {
			drawText(img, rect.Min.X+4, rect.Min.Y+2*lineHeight+4, truncate(fmt.Sprintf("%d", c.Count), maxChars), background)
		}
	}

	return encode(img)
}

// treemap splits area along its longer side, one strip per cluster.
// Clusters with a non-positive count get an empty rectangle.
func treemap(area image.Rectangle, clusters []models.Cluster, total int) []image.Rectangle {
	rects := make([]image.Rectangle, len(clusters))
	horizontal := area.Dx() >= area.Dy()
	span := area.Dy()
	if horizontal {
		span = area.Dx()
	}

	offset, seen := 0, 0
	for i, c := range clusters {
		if c.Count <= 0 {
			continue
		}
		seen += c.Count
		end := span * seen / total
		if horizontal {
			rects[i] = image.Rect(area.Min.X+offset, area.Min.Y, area.Min.X+end, area.Max.Y)
		} else {
			rects[i] = image.Rect(area.Min.X, area.Min.Y+offset, area.Max.X, area.Min.Y+end)
		}
		offset = end
	}
	return rects
}

func (r *Renderer) canvas() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	return img
}

func fill(img *image.RGBA, rect image.Rectangle, c color.Color) {
	draw.Draw(img, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

func drawText(img *image.RGBA, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func truncate(s string, maxChars int) string {
	s = strings.TrimSpace(s)
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return string(runes[:maxChars-3]) + "..."
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
