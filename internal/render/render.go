// Package render draws debug images of a world: the tile grid with its
// solid cells and boundary walls, bodies, and the contacts of one step.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"tilecollide/internal/geom"
	"tilecollide/internal/spatial"
	"tilecollide/internal/world"
)

// ErrNoGrid is returned when a scene has no grid to draw.
var ErrNoGrid = errors.New("render: scene has no grid")

// Palette
var (
	colorBackground = color.RGBA{12, 12, 28, 255}
	colorWall       = color.RGBA{70, 40, 40, 255}
	colorSolid      = color.RGBA{96, 104, 128, 255}
	colorGridLine   = color.RGBA{30, 30, 45, 255}
	colorBody       = color.RGBA{83, 200, 255, 90}
	colorBodyEdge   = color.RGBA{83, 200, 255, 255}
	colorTileHit    = color.RGBA{255, 62, 62, 255}
	colorBodyHit    = color.RGBA{255, 210, 0, 255}
	colorText       = color.RGBA{230, 230, 240, 255}
)

// Options controls image size and decoration.
type Options struct {
	Scale    float64 // Pixels per world unit; 0 fits the image into MaxSize
	MaxSize  int     // Longest image side in pixels
	Labels   bool    // Draw body IDs and a tick header
	FontSize float64
}

// DefaultOptions fits the world into 1024 pixels with labels.
var DefaultOptions = Options{MaxSize: 1024, Labels: true, FontSize: 12}

// Scene is everything one frame needs. Report may be nil.
type Scene struct {
	Grid   *spatial.TileGrid
	Tiles  []spatial.Tile
	Policy spatial.CollisionPolicy
	Report *world.StepReport
}

// Renderer owns the parsed label font. A font.Face is not safe for
// concurrent use, so renders are serialized.
type Renderer struct {
	opts Options
	mu   sync.Mutex
	face font.Face
}

// New parses the embedded Go Regular font and returns a renderer.
func New(opts Options) (*Renderer, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultOptions.MaxSize
	}
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultOptions.FontSize
	}

	parsed, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("render: parse font: %w", err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    opts.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("render: font face: %w", err)
	}

	return &Renderer{opts: opts, face: face}, nil
}

// view maps world coordinates onto pixels. The image covers the grid plus
// a one-cell ring of boundary wall on every side.
type view struct {
	origin geom.Vector2 // World point drawn at pixel (0,0)
	scale  float64
}

func (v view) point(p geom.Vector2) (float64, float64) {
	return (p.X - v.origin.X) * v.scale, (p.Y - v.origin.Y) * v.scale
}

func (v view) rect(dc *gg.Context, b geom.AABB2D) {
	x, y := v.point(geom.Vec2(b.XMin, b.YMin))
	dc.DrawRectangle(x, y, (b.XMax-b.XMin)*v.scale, (b.YMax-b.YMin)*v.scale)
}

func (r *Renderer) layout(p spatial.GridParams) (view, int, int) {
	worldW := float64(p.Width+2) * p.CellSize.X
	worldH := float64(p.Height+2) * p.CellSize.Y

	limit := float64(r.opts.MaxSize) / math.Max(worldW, worldH)
	scale := r.opts.Scale
	if scale <= 0 || scale > limit {
		scale = limit
	}

	// The epsilon absorbs rounding in MaxSize/worldW*worldW.
	w := int(math.Max(1, math.Ceil(worldW*scale-1e-9)))
	h := int(math.Max(1, math.Ceil(worldH*scale-1e-9)))
	return view{origin: p.Origin.Sub(p.CellSize), scale: scale}, w, h
}

// Render draws the scene.
func (r *Renderer) Render(s Scene) (image.Image, error) {
	if s.Grid == nil {
		return nil, ErrNoGrid
	}
	policy := s.Policy
	if policy == nil {
		policy = spatial.DefaultPolicy
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p := s.Grid.Params()
	v, w, h := r.layout(p)
	dc := gg.NewContext(w, h)

	// Everything outside the grid is wall; the grid is painted over it.
	dc.SetColor(colorWall)
	dc.Clear()
	dc.SetColor(colorBackground)
	v.rect(dc, geom.AABB2D{
		XMin: p.Origin.X, XMax: p.Origin.X + float64(p.Width)*p.CellSize.X,
		YMin: p.Origin.Y, YMax: p.Origin.Y + float64(p.Height)*p.CellSize.Y,
	})
	dc.Fill()

	r.drawTiles(dc, v, s.Grid, s.Tiles, policy)
	if s.Report != nil {
		r.drawBodies(dc, v, s.Report.Bodies)
		r.drawContacts(dc, v, s.Report)
		if r.opts.Labels {
			r.drawLabels(dc, v, s.Report)
		}
	}

	return dc.Image(), nil
}

// WritePNG renders the scene and encodes it as PNG.
func (r *Renderer) WritePNG(w io.Writer, s Scene) error {
	img, err := r.Render(s)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("render: encode png: %w", err)
	}
	return nil
}

func (r *Renderer) drawTiles(dc *gg.Context, v view, grid *spatial.TileGrid, tiles []spatial.Tile, policy spatial.CollisionPolicy) {
	p := grid.Params()

	dc.SetColor(colorSolid)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			tile, ok := grid.TileAt(x, y, tiles)
			// Missing entries in a short lookup count as walls
			if !ok || policy(tile) {
				v.rect(dc, grid.CellAABB(x, y))
				dc.Fill()
			}
		}
	}

	if v.scale*math.Min(p.CellSize.X, p.CellSize.Y) < 4 {
		return
	}
	dc.SetColor(colorGridLine)
	dc.SetLineWidth(1)
	for x := 0; x <= p.Width; x++ {
		x0, y0 := v.point(geom.Vec2(p.Origin.X+float64(x)*p.CellSize.X, p.Origin.Y))
		_, y1 := v.point(geom.Vec2(0, p.Origin.Y+float64(p.Height)*p.CellSize.Y))
		dc.DrawLine(x0, y0, x0, y1)
		dc.Stroke()
	}
	for y := 0; y <= p.Height; y++ {
		x0, y0 := v.point(geom.Vec2(p.Origin.X, p.Origin.Y+float64(y)*p.CellSize.Y))
		x1, _ := v.point(geom.Vec2(p.Origin.X+float64(p.Width)*p.CellSize.X, 0))
		dc.DrawLine(x0, y0, x1, y0)
		dc.Stroke()
	}
}

func (r *Renderer) drawBodies(dc *gg.Context, v view, bodies []world.Body) {
	dc.SetLineWidth(2)
	for _, b := range bodies {
		x, y := v.point(b.Position)
		rad := b.Radius * v.scale

		dc.SetColor(colorBody)
		dc.DrawCircle(x, y, rad)
		dc.Fill()

		dc.SetColor(colorBodyEdge)
		dc.DrawCircle(x, y, rad)
		dc.Stroke()
	}
}

// minNormalPx keeps zero-depth contact normals visible.
const minNormalPx = 6

func (r *Renderer) drawContacts(dc *gg.Context, v view, report *world.StepReport) {
	dc.SetLineWidth(2)

	dc.SetColor(colorTileHit)
	for _, tc := range report.TileContacts {
		x, y := v.point(tc.Contact.Point)
		length := math.Max(tc.Contact.Depth*v.scale, minNormalPx)
		dc.DrawLine(x, y, x+tc.Contact.Normal.X*length, y+tc.Contact.Normal.Y*length)
		dc.Stroke()
		dc.DrawCircle(x, y, 2)
		dc.Fill()
	}

	dc.SetColor(colorBodyHit)
	for _, bc := range report.BodyContacts {
		ax, ay := v.point(bc.Contact.PointA)
		bx, by := v.point(bc.Contact.PointB)
		dc.DrawLine(ax, ay, bx, by)
		dc.Stroke()
		dc.DrawCircle(ax, ay, 2)
		dc.DrawCircle(bx, by, 2)
		dc.Fill()
	}
}

func (r *Renderer) drawLabels(dc *gg.Context, v view, report *world.StepReport) {
	dc.SetFontFace(r.face)
	dc.SetColor(colorText)

	for _, b := range report.Bodies {
		x, y := v.point(b.Position)
		dc.DrawStringAnchored(shortID(b.ID), x, y-b.Radius*v.scale-4, 0.5, 0)
	}

	header := fmt.Sprintf("tick %d  bodies %d  contacts %d", report.Tick, len(report.Bodies), report.ContactCount())
	dc.DrawStringAnchored(header, 4, 4, 0, 1)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
