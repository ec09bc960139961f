// Package preprocess turns uploaded image bytes into the normalized
// grayscale tensor the face classifier consumes.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/TrueFaces/CNN-FineTuning/internal/model"
)

// Size is the edge length of the square frame the model was trained on.
const Size = 100

// MaxPixels caps width*height of an image before it is fully decoded.
const MaxPixels = 40_000_000

var (
	// ErrEmptyImage is returned for zero-length uploads.
	ErrEmptyImage = errors.New("image is empty")
	// ErrImageTooLarge is returned when the declared dimensions exceed MaxPixels.
	ErrImageTooLarge = errors.New("image dimensions too large")
)

// InputShape is the tensor shape produced by Tensor: batch, height, width, channels.
var InputShape = []int{1, Size, Size, 1}

// Decode parses data in any registered image format and returns the format name.
// The header is read first so oversized images are rejected before any pixel
// buffer is allocated.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("decode image: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Grayscale converts img to 8-bit luma using the ITU-R 601 weights
// (0.299 R + 0.587 G + 0.114 B). Alpha is ignored.
func Grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := gray.Pix[(y-bounds.Min.Y)*gray.Stride:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			row[x-bounds.Min.X] = luma(img.At(x, y))
		}
	}
	return gray
}

// Resize scales src to width x height with bilinear interpolation over the
// 2x2 neighbourhood of each half-pixel centre, without widening the kernel
// when shrinking. This matches OpenCV's INTER_LINEAR, which the model was
// trained against.
func Resize(src *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		draw.Copy(dst, image.Point{}, src, src.Bounds(), draw.Src, nil)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Normalize scales pixel intensities to [0,1] and adds the batch and channel
// dimensions, giving a [1, height, width, 1] tensor.
func Normalize(gray *image.Gray) model.Tensor {
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	tensor := model.NewTensor(1, height, width, 1)
	for y := 0; y < height; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < width; x++ {
			tensor.Data[y*width+x] = float32(row[x]) / 255.0
		}
	}
	return tensor
}

// Tensor runs the full pipeline: decode, grayscale, resize to Size x Size, normalize.
func Tensor(data []byte) (model.Tensor, error) {
	img, _, err := Decode(data)
	if err != nil {
		return model.Tensor{}, err
	}
	return Normalize(Resize(Grayscale(img), Size, Size)), nil
}

func luma(c color.Color) uint8 {
	// Straight (non-premultiplied) colour so transparent pixels keep their RGB.
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	y := (19595*uint32(n.R) + 38470*uint32(n.G) + 7471*uint32(n.B) + 1<<15) >> 16
	return uint8(y)
}
