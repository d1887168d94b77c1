// Package slides implements the slide-extraction pipeline: probe, threshold
// calibration, segmented parallel scene detection, frame extraction,
// brightness refinement, OCR, and the slides.json manifest.
package slides

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

// hashSide is the edge length of the downscaled grayscale frame; the
// average hash is hashSide² bits.
const hashSide = 32

const hashBits = hashSide * hashSide

// frameHash is a 1024-bit average hash: each bit is 1 when the pixel
// luminance is at or above the frame mean.
type frameHash [hashBits / 8]byte

// averageHash fingerprints an image: downscale to 32×32 grayscale, then
// threshold every pixel against the mean.
func averageHash(img image.Image) frameHash {
	gray := image.NewGray(image.Rect(0, 0, hashSide, hashSide))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sum int
	for _, p := range gray.Pix {
		sum += int(p)
	}
	mean := uint8(sum / len(gray.Pix))

	var h frameHash
	for i, p := range gray.Pix {
		if p >= mean {
			h[i/8] |= 1 << uint(i%8)
		}
	}
	return h
}

// hammingRatio is the fraction of differing bits between two hashes, in
// [0,1].
func hammingRatio(a, b frameHash) float64 {
	diff := 0
	for i := range a {
		x := a[i] ^ b[i]
		for x != 0 {
			diff++
			x &= x - 1
		}
	}
	return float64(diff) / float64(hashBits)
}

// hashImageFile loads and fingerprints an image file.
func hashImageFile(path string) (frameHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return frameHash{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return frameHash{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return averageHash(img), nil
}
