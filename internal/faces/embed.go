// Package faces computes the recognition embedding used by both enrollment
// and per-scene matching. The extractor is a stand-in with the right shape
// (512-dim unit vector from an aligned 112x112 crop); swapping in a trained
// recognizer changes only EmbedFace.
package faces

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/yungbote/scenedex-backend/internal/vectors"
)

const (
	// EmbeddingDim is pinned by the face_profile.centroid_vec column.
	EmbeddingDim = 512

	cropSize = 112
)

type BBox struct {
	X float64
	Y float64
	W float64
	H float64
}

// EmbedFace crops the bounding box out of the frame, resizes to 112x112,
// scales RGB into [0,1], flattens and average-pools down to EmbeddingDim,
// then unit-normalizes. Deterministic over identical input.
func EmbedFace(frame image.Image, box BBox) ([]float32, error) {
	crop, err := cropBox(frame, box)
	if err != nil {
		return nil, err
	}

	resized := image.NewRGBA(image.Rect(0, 0, cropSize, cropSize))
	xdraw.BiLinear.Scale(resized, resized.Bounds(), crop, crop.Bounds(), xdraw.Src, nil)

	flat := make([]float32, 0, cropSize*cropSize*3)
	for y := 0; y < cropSize; y++ {
		for x := 0; x < cropSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			flat = append(flat,
				float32(r>>8)/255.0,
				float32(g>>8)/255.0,
				float32(b>>8)/255.0,
			)
		}
	}

	pooled := averagePool(flat, EmbeddingDim)
	out := vectors.Normalize(pooled)
	if out == nil {
		return nil, fmt.Errorf("face crop produced a zero embedding")
	}
	return out, nil
}

func cropBox(frame image.Image, box BBox) (image.Image, error) {
	bounds := frame.Bounds()
	x0 := bounds.Min.X + int(box.X)
	y0 := bounds.Min.Y + int(box.Y)
	x1 := x0 + int(box.W)
	y1 := y0 + int(box.H)

	if x0 < bounds.Min.X {
		x0 = bounds.Min.X
	}
	if y0 < bounds.Min.Y {
		y0 = bounds.Min.Y
	}
	if x1 > bounds.Max.X {
		x1 = bounds.Max.X
	}
	if y1 > bounds.Max.Y {
		y1 = bounds.Max.Y
	}
	if x1-x0 <= 0 || y1-y0 <= 0 {
		return nil, fmt.Errorf("bounding box %+v outside frame %v", box, bounds)
	}

	rect := image.Rect(x0, y0, x1, y1)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Draw(out, out.Bounds(), frame, rect.Min, xdraw.Src)
	return out, nil
}

func averagePool(flat []float32, targetDim int) []float32 {
	poolSize := len(flat) / targetDim
	if poolSize < 1 {
		poolSize = 1
	}
	out := make([]float32, targetDim)
	for i := 0; i < targetDim; i++ {
		start := i * poolSize
		end := start + poolSize
		if start >= len(flat) {
			break
		}
		if end > len(flat) {
			end = len(flat)
		}
		var sum float64
		for _, v := range flat[start:end] {
			sum += float64(v)
		}
		out[i] = float32(sum / float64(end-start))
	}
	return out
}
