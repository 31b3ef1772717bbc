// this file contains a few small image processing utilities
package camera

import (
	"image"

	"github.com/iumi/pinem/nd"
	"github.com/iumi/pinem/util"
)

// ToGray scales an array of at most two dimensions to 8 bits between its
// min and max.  A one dimensional array becomes an image one pixel tall.
func ToGray(a nd.Array) *image.Gray {
	width, height := 1, 1
	switch a.Ndim() {
	case 0:
	case 1:
		width = a.Shape[0]
	default:
		height, width = a.Shape[a.Ndim()-2], a.Shape[a.Ndim()-1]
	}
	buf := make([]byte, width*height)
	if len(a.Data) >= len(buf) && len(buf) > 0 {
		lo, hi := a.Min(), a.Max()
		span := hi - lo
		for idx := range buf {
			if span > 0 {
				buf[idx] = byte(util.Clamp((a.Data[idx]-lo)/span*255, 0, 255)) // scale to 8 bits
			}
		}
	}
	return &image.Gray{Pix: buf, Stride: width, Rect: image.Rect(0, 0, width, height)}
}
