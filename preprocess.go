package cyclegan_go

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/nfnt/resize"
	"gorgonia.org/tensor"
)

// NormalizeValue Maps byte range [0, 255] into [-1, 1]
func NormalizeValue(v float64) float64 {
	return v/127.5 - 1.0
}

// DenormalizeValue Maps [-1, 1] back into bytes. Values out of range are clamped.
func DenormalizeValue(v float64) uint8 {
	x := math.Round(v*127.5 + 127.5)
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return uint8(x)
}

// PreprocessFunc Turns raw RGB image into normalized (3, H, W) tensor
type PreprocessFunc func(img image.Image, rng *rand.Rand) (*tensor.Dense, error)

// TestPreprocessor Only resizing and normalization
func TestPreprocessor(height, width int) PreprocessFunc {
	return func(img image.Image, rng *rand.Rand) (*tensor.Dense, error) {
		return ImageToTensor(img, height, width)
	}
}

// TrainPreprocessor Random left-right flip, then resizing and normalization
func TrainPreprocessor(height, width int) PreprocessFunc {
	return func(img image.Image, rng *rand.Rand) (*tensor.Dense, error) {
		if rng != nil && rng.Intn(2) == 1 {
			img = FlipLeftRight(img)
		}
		return ImageToTensor(img, height, width)
	}
}

// ImageToTensor Resizes image (bilinear) and converts it into (3, height, width) tensor with values in [-1, 1]
func ImageToTensor(img image.Image, height, width int) (*tensor.Dense, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("Target size must be positive, but got %dx%d", height, width)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("Image is empty")
	}
	if bounds.Dx() != width || bounds.Dy() != height {
		img = resize.Resize(uint(width), uint(height), img, resize.Bilinear)
		bounds = img.Bounds()
	}
	plane := height * width
	data := make([]float64, ImageChannels*plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA64Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA64)
			idx := y*width + x
			data[idx] = NormalizeValue(float64(c.R) / 257.0)
			data[plane+idx] = NormalizeValue(float64(c.G) / 257.0)
			data[2*plane+idx] = NormalizeValue(float64(c.B) / 257.0)
		}
	}
	return tensor.New(tensor.WithShape(ImageChannels, height, width), tensor.WithBacking(data)), nil
}

// TensorToImage Denormalizes (3, H, W) or (1, 3, H, W) tensor back into RGB image
func TensorToImage(t *tensor.Dense) (*image.RGBA, error) {
	shp := t.Shape()
	if len(shp) == 4 && shp[0] == 1 {
		shp = shp[1:]
	}
	if len(shp) != 3 || shp[0] != ImageChannels {
		return nil, fmt.Errorf("Image tensor must have shape (3, H, W), but got %v", t.Shape())
	}
	data, ok := t.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Image tensor must have float64 backing, but got %v", t.Dtype())
	}
	height, width := shp[1], shp[2]
	plane := height * width
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			img.SetRGBA(x, y, color.RGBA{
				R: DenormalizeValue(data[idx]),
				G: DenormalizeValue(data[plane+idx]),
				B: DenormalizeValue(data[2*plane+idx]),
				A: 255,
			})
		}
	}
	return img, nil
}

// FlipLeftRight Mirrors image horizontally
func FlipLeftRight(img image.Image) image.Image {
	bounds := img.Bounds()
	flipped := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			flipped.Set(bounds.Dx()-1-x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
		}
	}
	return flipped
}

// hasColorChannels Reports whether decoded image carries at least three colour channels.
// Grayscale and paletted images do not.
func hasColorChannels(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.Alpha, *image.Alpha16, *image.Paletted:
		return false
	case *image.RGBA, *image.RGBA64, *image.NRGBA, *image.NRGBA64, *image.YCbCr, *image.NYCbCrA, *image.CMYK:
		return true
	}
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return false
	}
	if _, ok := img.ColorModel().(color.Palette); ok {
		return false
	}
	return true
}

// stripAlpha Copies colour channels of image into opaque RGBA image anchored at (0, 0)
func stripAlpha(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgb := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			rgb.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	return rgb
}
