package rimage

import (
	"image"
	"image/color"
)

// ImageToUInt8Buffer packs img into interleaved RGB bytes, row-major (HWC).
func ImageToUInt8Buffer(img image.Image) []byte {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	out := make([]byte, 0, width*height*3)
	switch im := img.(type) {
	case *image.NRGBA:
		for y := 0; y < height; y++ {
			row := im.Pix[im.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			for x := 0; x < width; x++ {
				out = append(out, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
	case *image.RGBA:
		// premultiplied alpha; frames are opaque so the channels are used as-is.
		for y := 0; y < height; y++ {
			row := im.Pix[im.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			for x := 0; x < width; x++ {
				out = append(out, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
	default:
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				out = append(out, c.R, c.G, c.B)
			}
		}
	}
	return out
}

// ImageToFloatBuffer packs img into interleaved RGB values scaled to [0, 1], row-major (HWC).
func ImageToFloatBuffer(img image.Image) []float32 {
	bytes := ImageToUInt8Buffer(img)
	out := make([]float32, len(bytes))
	for i, b := range bytes {
		out[i] = float32(b) / 255
	}
	return out
}
