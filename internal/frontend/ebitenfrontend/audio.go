package ebitenfrontend

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"
)

const sampleRate = 44100

// audioStream adapts the core's per-frame float32 sample slices (the
// ~17000-sample buffers described in spec.md §6) into an ebiten audio
// Player, which wants a streaming io.Reader of signed 16-bit PCM.
type audioStream struct {
	mu      sync.Mutex
	ctx     *audio.Context
	player  *audio.Player
	backlog bytes.Buffer
}

func newAudioStream() *audioStream {
	s := &audioStream{ctx: audio.NewContext(sampleRate)}
	p, err := s.ctx.NewPlayer(s)
	if err == nil {
		s.player = p
		s.player.Play()
	}
	return s
}

func (s *audioStream) push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range samples {
		v := int16(f * 32767)
		binary.Write(&s.backlog, binary.LittleEndian, v)
		binary.Write(&s.backlog, binary.LittleEndian, v) // duplicate to stereo
	}
}

// Read implements io.Reader for the ebiten audio.Player.
func (s *audioStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backlog.Len() == 0 {
		// Starve with silence rather than block; avoids stalling the
		// emulation loop on the host audio callback.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	return s.backlog.Read(p)
}

var _ io.Reader = (*audioStream)(nil)
