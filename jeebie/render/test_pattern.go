package render

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jeebie-cgb/jeebie/jeebie/video"
)

const (
	testPatternCount = 4
	targetFPS        = 60
	animationFrames  = 30

	checkerboardTileSize = 8
	stripeWidth          = 4
	diagonalTileSize     = 8

	displayOffsetX = 5
	displayOffsetY = 2
	verticalScale  = 2

	stripeAnimationSpeed   = 2
	diagonalAnimationSpeed = 4
)

// RunTestPattern displays an animated test pattern, useful for checking the
// rendering pipeline without loading a ROM.
func RunTestPattern() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}

	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	screen.Clear()

	slog.Info("Starting test pattern display")

	fb := video.NewFrameBuffer()
	updatePattern(fb, 0)

	running := true
	patternType := 0
	frameCount := 0

	go func() {
		for running {
			ev := screen.PollEvent()
			switch ev := ev.(type) {
			case *tcell.EventKey:
				switch ev.Key() {
				case tcell.KeyEscape, tcell.KeyCtrlC:
					running = false
					return
				case tcell.KeyRune:
					if ev.Rune() == ' ' {
						patternType = (patternType + 1) % testPatternCount
						updatePattern(fb, patternType)
					}
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		}
	}()

	ticker := time.NewTicker(time.Second / targetFPS)
	defer ticker.Stop()

	patternNames := []string{"Checkerboard", "Gradient", "Stripes", "Diagonal"}

	for running {
		<-ticker.C
		frameCount++

		if frameCount%animationFrames == 0 {
			animatePattern(fb, patternType, frameCount/animationFrames)
		}

		drawTestFramebuffer(screen, fb)

		termWidth, termHeight := screen.Size()
		info := "Test Pattern Mode - Press SPACE to change pattern, ESC to exit"
		for i, ch := range info {
			if i < termWidth {
				screen.SetContent(i, termHeight-1, ch, nil, tcell.StyleDefault.Foreground(tcell.ColorYellow))
			}
		}

		status := formatPatternStatus(patternNames[patternType], frameCount)
		for i, ch := range status {
			if i < termWidth {
				screen.SetContent(i, 0, ch, nil, tcell.StyleDefault.Foreground(tcell.ColorGreen))
			}
		}

		screen.Show()
	}

	return nil
}

func formatPatternStatus(name string, frame int) string {
	return fmt.Sprintf("Pattern: %s | Frame: %d", name, frame)
}

func drawTestFramebuffer(screen tcell.Screen, fb *video.FrameBuffer) {
	frame := fb.ToSlice()

	for y := 0; y < video.FramebufferHeight; y += verticalScale {
		for x := 0; x < video.FramebufferWidth; x++ {
			shade := pixelToShade(frame[y*video.FramebufferWidth+x])
			char := shadeChars[shade]
			style := tcell.StyleDefault.Foreground(tcell.ColorWhite)

			screenX := x + displayOffsetX
			screenY := y/verticalScale + displayOffsetY

			screen.SetContent(screenX, screenY, char, nil, style)
		}
	}
}

func updatePattern(fb *video.FrameBuffer, patternType int) {
	switch patternType {
	case 0:
		for y := 0; y < video.FramebufferHeight; y++ {
			for x := 0; x < video.FramebufferWidth; x++ {
				color := video.BlackColor
				if ((x/checkerboardTileSize)+(y/checkerboardTileSize))%2 == 0 {
					color = video.WhiteColor
				}
				fb.SetPixel(uint(x), uint(y), color)
			}
		}
	case 1:
		for y := 0; y < video.FramebufferHeight; y++ {
			for x := 0; x < video.FramebufferWidth; x++ {
				gray := uint32(x * 255 / video.FramebufferWidth)
				color := (gray << 24) | (gray << 16) | (gray << 8) | 0xFF
				fb.SetPixel(uint(x), uint(y), video.GBColor(color))
			}
		}
	case 2:
		for y := 0; y < video.FramebufferHeight; y++ {
			for x := 0; x < video.FramebufferWidth; x++ {
				color := video.DarkGreyColor
				if (x/stripeWidth)%2 == 0 {
					color = video.WhiteColor
				}
				fb.SetPixel(uint(x), uint(y), color)
			}
		}
	case 3:
		for y := 0; y < video.FramebufferHeight; y++ {
			for x := 0; x < video.FramebufferWidth; x++ {
				color := video.DarkGreyColor
				if ((x+y)/diagonalTileSize)%2 == 0 {
					color = video.LightGreyColor
				}
				fb.SetPixel(uint(x), uint(y), color)
			}
		}
	}
}

func animatePattern(fb *video.FrameBuffer, patternType int, frame int) {
	switch patternType {
	case 2:
		for y := 0; y < video.FramebufferHeight; y++ {
			for x := 0; x < video.FramebufferWidth; x++ {
				color := video.DarkGreyColor
				if ((x+frame*stripeAnimationSpeed)/stripeWidth)%2 == 0 {
					color = video.WhiteColor
				}
				fb.SetPixel(uint(x), uint(y), color)
			}
		}
	case 3:
		for y := 0; y < video.FramebufferHeight; y++ {
			for x := 0; x < video.FramebufferWidth; x++ {
				color := video.DarkGreyColor
				if ((x+y+frame*diagonalAnimationSpeed)/diagonalTileSize)%2 == 0 {
					color = video.LightGreyColor
				}
				fb.SetPixel(uint(x), uint(y), color)
			}
		}
	}
}
