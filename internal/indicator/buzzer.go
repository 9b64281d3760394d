package indicator

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/wav"
)

// BuzzerPulse is how long the buzzer sounds, and then rests, per beep.
const BuzzerPulse = 500 * time.Millisecond

const buzzerTone = 2700.0 // Hz

var buzzerFormat = beep.Format{SampleRate: 22050, NumChannels: 1, Precision: 2}

// Buzzer renders beep patterns as audio. With a directory set, every pattern
// sounded is recorded there as a WAV file.
type Buzzer struct {
	dir    string
	format beep.Format
	log    *slog.Logger

	mu  sync.Mutex
	seq int
}

// NewBuzzer returns a Buzzer writing recordings to dir. An empty dir
// disables recording.
func NewBuzzer(dir string, log *slog.Logger) *Buzzer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Buzzer{dir: dir, format: buzzerFormat, log: log}
}

// Pattern renders n pulses of tone, each followed by an equal silence.
func (b *Buzzer) Pattern(n int) (*beep.Buffer, error) {
	buf := beep.NewBuffer(b.format)
	pulse := b.format.SampleRate.N(BuzzerPulse)
	for i := 0; i < n; i++ {
		tone, err := generators.SineTone(b.format.SampleRate, buzzerTone)
		if err != nil {
			return nil, err
		}
		buf.Append(beep.Seq(beep.Take(pulse, tone), beep.Silence(pulse)))
	}
	return buf, nil
}

// patternDuration is how long a pattern of n beeps lasts.
func patternDuration(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * 2 * BuzzerPulse
}

// Sound records a pattern of n beeps and returns the file written, or ""
// when recording is disabled or n is zero.
func (b *Buzzer) Sound(n int) (string, error) {
	if n <= 0 || b.dir == "" {
		return "", nil
	}
	buf, err := b.Pattern(n)
	if err != nil {
		return "", fmt.Errorf("render %d beeps: %w", n, err)
	}

	b.mu.Lock()
	b.seq++
	name := filepath.Join(b.dir, fmt.Sprintf("beep-%04d-x%d.wav", b.seq, n))
	b.mu.Unlock()

	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := wav.Encode(f, buf.Streamer(0, buf.Len()), b.format); err != nil {
		return "", fmt.Errorf("encode %s: %w", name, err)
	}
	b.log.Debug("buzzer recorded", slog.String("file", name), slog.Int("beeps", n))
	return name, nil
}
