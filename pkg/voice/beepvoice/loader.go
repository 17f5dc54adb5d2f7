package beepvoice

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"

	"github.com/MrWong99/earshot/pkg/voice"
)

// toneLength is the rendered length of synthetic sources. An integer number
// of seconds keeps integer-Hz tones seamless when looped.
const toneLength = time.Second

// decoder opens an encoded stream. Each beep format package has its own
// signature; they are adapted here.
type decoder func(f fs.File) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decoder{
	".wav": func(f fs.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".mp3": func(f fs.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".ogg": func(f fs.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}

// Loader resolves descriptor sources to fully decoded buffers at a fixed
// sample rate and caches them by source string.
//
// Supported sources:
//
//	tone:<hz>     sine wave
//	square:<hz>   square wave
//	<path>.wav    PCM WAV file
//	<path>.mp3    MP3 file
//	<path>.ogg    Ogg Vorbis file
//
// File paths are resolved inside the loader's filesystem.
type Loader struct {
	sr   beep.SampleRate
	fsys fs.FS

	mu    sync.Mutex
	cache map[string]*beep.Buffer
}

// NewLoader creates a Loader that renders at sr and reads files from fsys.
// A nil fsys means the current working directory.
func NewLoader(sr beep.SampleRate, fsys fs.FS) *Loader {
	if fsys == nil {
		fsys = os.DirFS(".")
	}
	return &Loader{
		sr:    sr,
		fsys:  fsys,
		cache: make(map[string]*beep.Buffer),
	}
}

// Cached reports the number of decoded sources held in memory.
func (l *Loader) Cached() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

// Load returns the decoded buffer for source. Concurrent loads of the same
// uncached source may decode twice; the last one wins the cache slot.
func (l *Loader) Load(ctx context.Context, source string) (*beep.Buffer, error) {
	l.mu.Lock()
	buf, ok := l.cache[source]
	l.mu.Unlock()
	if ok {
		return buf, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	buf, err := l.decode(source)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[source] = buf
	l.mu.Unlock()

	slog.Debug("beepvoice: decoded source",
		"source", source,
		"duration", l.sr.D(buf.Len()),
		"size", humanize.IBytes(uint64(buf.Len())*2*2),
		"took", time.Since(start),
	)
	return buf, nil
}

func (l *Loader) decode(source string) (*beep.Buffer, error) {
	if kind, arg, ok := strings.Cut(source, ":"); ok && !strings.ContainsAny(kind, "/.") {
		return l.synth(kind, arg)
	}

	dec, ok := decoders[strings.ToLower(path.Ext(source))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", voice.ErrUnsupportedSource, source)
	}
	f, err := l.fsys.Open(path.Clean(source))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", source, err)
	}
	// Corrupt assets are content errors, like unknown formats.
	s, format, err := dec(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: decode %q: %w", voice.ErrUnsupportedSource, source, err)
	}
	defer s.Close()

	var stream beep.Streamer = s
	if format.SampleRate != l.sr {
		stream = beep.Resample(resampleQuality, format.SampleRate, l.sr, s)
	}
	buf := beep.NewBuffer(l.format())
	buf.Append(stream)
	if err := s.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: decode %q: %w", voice.ErrUnsupportedSource, source, err)
	}
	return buf, nil
}

func (l *Loader) synth(kind, arg string) (*beep.Buffer, error) {
	hz, err := strconv.ParseFloat(arg, 64)
	if err != nil || hz <= 0 {
		return nil, fmt.Errorf("%w: bad frequency %q", voice.ErrUnsupportedSource, arg)
	}

	var tone beep.Streamer
	switch kind {
	case "tone", "sine":
		tone, err = generators.SineTone(l.sr, hz)
	case "square":
		tone, err = generators.SquareTone(l.sr, hz)
	default:
		return nil, fmt.Errorf("%w: unknown generator %q", voice.ErrUnsupportedSource, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", voice.ErrUnsupportedSource, err)
	}

	buf := beep.NewBuffer(l.format())
	buf.Append(beep.Take(l.sr.N(toneLength), tone))
	return buf, nil
}

func (l *Loader) format() beep.Format {
	return beep.Format{SampleRate: l.sr, NumChannels: 2, Precision: 2}
}
