// Package debug holds frame-snapshot helpers used by integration tests to
// compare emulator output against golden images.
package debug

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/jeebie-cgb/jeebie/jeebie/video"
)

// SaveFrameGrayPNG saves a framebuffer as a grayscale PNG, used by
// integration tests to produce comparable golden-image output.
func SaveFrameGrayPNG(frame *video.FrameBuffer, filepath string) error {
	img := image.NewGray(image.Rect(0, 0, video.FramebufferWidth, video.FramebufferHeight))

	frameData := frame.ToSlice()
	for y := 0; y < video.FramebufferHeight; y++ {
		for x := 0; x < video.FramebufferWidth; x++ {
			pixel := frameData[y*video.FramebufferWidth+x]

			var gray uint8
			switch video.GBColor(pixel) {
			case video.BlackColor:
				gray = 0
			case video.DarkGreyColor:
				gray = 85
			case video.LightGreyColor:
				gray = 170
			case video.WhiteColor:
				gray = 255
			}

			img.SetGray(x, y, color.Gray{Y: gray})
		}
	}

	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}
