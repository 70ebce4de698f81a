package rembg

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

// LocalRemBG 纯 Go 的背景去除：
//
//	从边缘估计背景色
//	在缩小后的图上从边缘做 flood fill 得到背景掩码
//	高斯模糊软化边缘后放大回原尺寸作为 alpha
//
// 适合纯色或渐变较小的背景（商品图、证件照等）。
type LocalRemBG struct {
	tolerance float64
	maxSide   int
	maxPixels int
	trim      bool
}

// NewLocalRemBG maxPixels 为 0 时不限制输入图片的像素数
func NewLocalRemBG(tolerance float64, maxSide, maxPixels int, trim bool) *LocalRemBG {
	if tolerance <= 0 || tolerance >= 1 {
		tolerance = 0.12
	}
	if maxSide <= 0 {
		maxSide = 512
	}
	return &LocalRemBG{
		tolerance: tolerance,
		maxSide:   maxSide,
		maxPixels: maxPixels,
		trim:      trim,
	}
}

func (l *LocalRemBG) Remove(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := decodeImage(data, l.maxPixels)
	if err != nil {
		return nil, err
	}
	src := toNRGBA(img)

	log := zerolog.Ctx(ctx)
	log.Debug().
		Str("format", format).
		Int("width", src.Bounds().Dx()).
		Int("height", src.Bounds().Dy()).
		Msg("local rembg decoded image")

	out := src
	if !hasUsefulAlpha(src) {
		small := resizeWithinMax(src, l.maxSide)
		mask, err := l.estimateMask(small)
		if err != nil {
			return nil, err
		}
		out = applyMask(src, scaleMask(mask, src.Bounds()))
	}

	if l.trim {
		bbox, err := alphaBBox(out, 0.05)
		if err != nil {
			return nil, err
		}
		out = crop(out, bbox)
	}

	return encodePNG(out)
}

// estimateMask 返回与 img 同尺寸的前景掩码，背景为 0
func (l *LocalRemBG) estimateMask(img *image.NRGBA) (*image.Alpha, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	bg := borderColor(img)
	threshold := l.tolerance * math.Sqrt(3) * 255

	isBackground := func(i int) bool {
		p := img.Pix[i*4 : i*4+3 : i*4+3]
		dr := float64(p[0]) - float64(bg.R)
		dg := float64(p[1]) - float64(bg.G)
		db := float64(p[2]) - float64(bg.B)
		return math.Sqrt(dr*dr+dg*dg+db*db) <= threshold
	}

	visited := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		i := y*w + x
		if visited[i] || !isBackground(i) {
			return
		}
		visited[i] = true
		queue = append(queue, i)
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	foreground := 0
	for i, bgPixel := range visited {
		if !bgPixel {
			mask.Pix[i] = 255
			foreground++
		}
	}
	if foreground == 0 {
		return nil, ErrNoForeground
	}

	return blurMask(mask), nil
}

// borderColor 取边缘像素各通道的中位数作为背景色
func borderColor(img *image.NRGBA) color.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var hist [3][256]int
	total := 0
	add := func(x, y int) {
		i := img.PixOffset(x, y)
		hist[0][img.Pix[i]]++
		hist[1][img.Pix[i+1]]++
		hist[2][img.Pix[i+2]]++
		total++
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		if h > 1 {
			add(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		if w > 1 {
			add(w-1, y)
		}
	}

	median := func(c int) uint8 {
		seen := 0
		for v := 0; v < 256; v++ {
			seen += hist[c][v]
			if seen*2 >= total {
				return uint8(v)
			}
		}
		return 255
	}
	return color.NRGBA{R: median(0), G: median(1), B: median(2), A: 255}
}

// blurMask 3x3 高斯模糊，只用于软化边缘
func blurMask(mask *image.Alpha) *image.Alpha {
	w, h := mask.Bounds().Dx(), mask.Bounds().Dy()
	k := [3][3]int{
		{1, 2, 1},
		{2, 4, 2},
		{1, 2, 1},
	}

	out := image.NewAlpha(mask.Bounds())
	copy(out.Pix, mask.Pix)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			sum := 0
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sum += int(mask.Pix[(y+ky)*mask.Stride+x+kx]) * k[ky+1][kx+1]
				}
			}
			out.Pix[y*out.Stride+x] = uint8(sum >> 4)
		}
	}
	return out
}

func scaleMask(mask *image.Alpha, bounds image.Rectangle) *image.Alpha {
	if mask.Bounds().Size() == bounds.Size() {
		return mask
	}
	dst := image.NewAlpha(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), mask, mask.Bounds(), draw.Src, nil)
	return dst
}

func applyMask(src *image.NRGBA, mask *image.Alpha) *image.NRGBA {
	out := image.NewNRGBA(src.Bounds())
	copy(out.Pix, src.Pix)
	for i := range mask.Pix {
		a := uint16(out.Pix[i*4+3]) * uint16(mask.Pix[i]) / 255
		out.Pix[i*4+3] = uint8(a)
	}
	return out
}
