// Package ebitenfrontend implements frontend.Host on top of Ebitengine.
// It is the one reference frontend this module ships; a host program is
// free to implement frontend.Host any other way (see
// internal/frontend.NopHost for the minimal headless case).
package ebitenfrontend

import (
	"sync"

	"github.com/golang/glog"
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/nescore/nescore/internal/frontend"
)

// Palette converts a 9-bit NES colour index (6-bit colour, 3-bit
// emphasis) into an RGB colour. The ppu package owns the canonical
// table; the frontend only needs read access to it to paint pixels.
type Palette func(index uint16) (r, g, b uint8)

// Game implements ebiten.Game and frontend.Host at once: the emulator
// core calls Host methods on it, ebiten calls Game methods on it.
type Game struct {
	mu      sync.Mutex
	palette Palette

	img    *ebiten.Image
	pixels []byte // RGBA scratch buffer reused across frames
	frame  frontend.Frame

	scale int

	buttons [2]uint8 // bit i set => button i held, per frontend.Button order

	audio        *audioStream
	wantReset    bool
	wantStop     bool
	pendingReset bool
	pendingStop  bool
}

// New creates a Game. scale multiplies the 256x240 NES picture for the
// window; pass 1 for a 1:1 window.
func New(palette Palette, scale int) *Game {
	if scale < 1 {
		scale = 1
	}
	g := &Game{
		palette: palette,
		img:     ebiten.NewImage(frontend.FrameWidth, frontend.FrameHeight),
		pixels:  make([]byte, frontend.FrameWidth*frontend.FrameHeight*4),
		scale:   scale,
		audio:   newAudioStream(),
	}
	ebiten.SetWindowSize(frontend.FrameWidth*scale, frontend.FrameHeight*scale)
	ebiten.SetWindowTitle("nescore")
	return g
}

// --- frontend.Host ---

func (g *Game) Warn(format string, args ...any) {
	glog.Warningf(format, args...)
}

func (g *Game) UpdateScreen(frame *frontend.Frame) {
	g.mu.Lock()
	g.frame = *frame
	g.mu.Unlock()
}

func (g *Game) PlayFrame(samples []float32) {
	g.audio.push(samples)
}

func (g *Game) CheckPadButton(controller int, button frontend.Button) bool {
	if controller < 1 || controller > 2 {
		return false
	}
	return g.buttons[controller-1]&(1<<uint(button)) != 0
}

func (g *Game) CheckSignals() (reset bool, stop bool) {
	g.mu.Lock()
	reset, g.pendingReset = g.pendingReset, false
	stop, g.pendingStop = g.pendingStop, false
	g.mu.Unlock()
	return reset, stop
}

// --- ebiten.Game ---

var keymap = map[ebiten.Key]frontend.Button{
	ebiten.KeyZ:         frontend.ButtonA,
	ebiten.KeyX:         frontend.ButtonB,
	ebiten.KeyShiftRight: frontend.ButtonSelect,
	ebiten.KeyEnter:     frontend.ButtonStart,
	ebiten.KeyUp:        frontend.ButtonUp,
	ebiten.KeyDown:      frontend.ButtonDown,
	ebiten.KeyLeft:      frontend.ButtonLeft,
	ebiten.KeyRight:     frontend.ButtonRight,
}

func (g *Game) Update() error {
	var held uint8
	for key, button := range keymap {
		if ebiten.IsKeyPressed(key) {
			held |= 1 << uint(button)
		}
	}
	g.mu.Lock()
	g.buttons[0] = held
	if ebiten.IsKeyPressed(ebiten.KeyR) {
		g.pendingReset = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		g.pendingStop = true
	}
	g.mu.Unlock()
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.mu.Lock()
	frame := g.frame
	g.mu.Unlock()

	for i, idx := range frame {
		r, b2, b3 := g.palette(idx)
		o := i * 4
		g.pixels[o] = r
		g.pixels[o+1] = b2
		g.pixels[o+2] = b3
		g.pixels[o+3] = 0xFF
	}
	g.img.WritePixels(g.pixels)
	screen.DrawImage(g.img, nil)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return frontend.FrameWidth * g.scale, frontend.FrameHeight * g.scale
}

// Run starts the Ebitengine event loop. It blocks until the window closes.
func (g *Game) Run() error {
	return ebiten.RunGame(g)
}
