// Package derivative writes the full-size photo and its downscaled ladder
// into the worker's working directory.
package derivative

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dmitrijs2005/geoupload/internal/filex"
)

// Ladder lists the widths produced below the full size, smallest first.
var Ladder = []int{50, 320, 640, 1024, 1600, 2048, 2560, 3072}

const (
	FullSize       = "full"
	DefaultQuality = 85
)

// Variant is one file written by Generate. Rel is slash separated and
// relative to the working directory.
type Variant struct {
	Name      string
	Width     int
	Height    int
	LocalPath string
	Rel       string
}

type Generator struct {
	workDir string
	quality int
}

func NewGenerator(workDir string) *Generator {
	return &Generator{workDir: workDir, quality: DefaultQuality}
}

// Generate writes full as <uid><ext> and one resized copy of img per ladder
// width that does not exceed the source width.
func (g *Generator) Generate(ctx context.Context, img image.Image, full []byte, uid, ext string) ([]Variant, error) {
	ext = strings.ToLower(ext)
	b := img.Bounds()

	fullRel := uid + ext
	fullPath, err := filex.SafeJoin(g.workDir, fullRel)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(fullPath, full, 0o640); err != nil {
		return nil, fmt.Errorf("write full size: %w", err)
	}

	variants := []Variant{{Name: FullSize, Width: b.Dx(), Height: b.Dy(), LocalPath: fullPath, Rel: fullRel}}

	format, resizedExt := encodingFor(ext)
	for _, w := range Ladder {
		if w > b.Dx() {
			break
		}
		if err := ctx.Err(); err != nil {
			return variants, err
		}

		v, err := g.resize(img, w, uid, resizedExt, format)
		if err != nil {
			return variants, err
		}
		variants = append(variants, v)
	}
	return variants, nil
}

func (g *Generator) resize(img image.Image, width int, uid, ext string, format imaging.Format) (Variant, error) {
	name := strconv.Itoa(width)
	rel := path.Join("opt", name, uid+ext)

	p, err := filex.SafeJoin(g.workDir, "opt", name, uid+ext)
	if err != nil {
		return Variant{}, err
	}
	if _, err := filex.EnsureDir(filepath.Dir(p)); err != nil {
		return Variant{}, err
	}

	dst := imaging.Resize(img, width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, format, imaging.JPEGQuality(g.quality)); err != nil {
		return Variant{}, fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.WriteFile(p, buf.Bytes(), 0o640); err != nil {
		return Variant{}, fmt.Errorf("write %s: %w", name, err)
	}

	db := dst.Bounds()
	return Variant{Name: name, Width: db.Dx(), Height: db.Dy(), LocalPath: p, Rel: rel}, nil
}

// encodingFor picks the output format for ext, falling back to JPEG for
// formats the encoder cannot write.
func encodingFor(ext string) (imaging.Format, string) {
	f, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return imaging.JPEG, ".jpg"
	}
	return f, ext
}

// Remove deletes every file in variants, ignoring ones already gone.
func Remove(variants []Variant) {
	for _, v := range variants {
		_ = os.Remove(v.LocalPath)
	}
}
