package render

import "github.com/jeebie-cgb/jeebie/jeebie/video"

// shadeChars maps a 2-bit Game Boy shade to a terminal glyph, darkest first.
var shadeChars = []rune{'█', '▓', '▒', '░'}

// pixelToShade converts a raw framebuffer pixel to a shade level (0-3), where
// 0 is black and 3 is white.
func pixelToShade(pixel uint32) int {
	switch video.GBColor(pixel) {
	case video.BlackColor:
		return 0
	case video.DarkGreyColor:
		return 1
	case video.LightGreyColor:
		return 2
	case video.WhiteColor:
		return 3
	default:
		return 0
	}
}

// getHalfBlockChar returns the block glyph used to render a pair of stacked
// pixels as a single terminal cell.
func getHalfBlockChar(topShade, bottomShade int) rune {
	switch {
	case topShade == bottomShade:
		return '█'
	case topShade == 3 && bottomShade != 3:
		return '▄'
	default:
		return '▀'
	}
}

// RenderFrameToHalfBlocks converts a frame buffer to a half-block text
// representation, one string per pair of pixel rows.
func RenderFrameToHalfBlocks(frame []uint32, width, height int) []string {
	if len(frame) < width*height {
		return []string{}
	}

	textHeight := height / 2
	if height%2 != 0 {
		textHeight++
	}

	lines := make([]string, textHeight)

	for textRow := 0; textRow < textHeight; textRow++ {
		line := make([]rune, width)

		for x := 0; x < width; x++ {
			topRow := textRow * 2
			bottomRow := topRow + 1

			topPixel := uint32(video.WhiteColor)
			if topRow < height {
				topPixel = frame[topRow*width+x]
			}

			bottomPixel := uint32(video.WhiteColor)
			if bottomRow < height {
				bottomPixel = frame[bottomRow*width+x]
			}

			line[x] = getHalfBlockChar(pixelToShade(topPixel), pixelToShade(bottomPixel))
		}

		lines[textRow] = string(line)
	}

	return lines
}
