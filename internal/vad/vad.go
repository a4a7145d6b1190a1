// Package vad segments a PCM stream into utterances using short-time
// energy: frames above the threshold open a speech segment, and the segment
// is finalized once the hangover window of below-threshold frames elapses.
package vad

import (
	"encoding/binary"
	"math"
	"time"
)

// Config tunes the detector. Zero values pick the defaults.
type Config struct {
	SampleRate   int           // samples per second, default 16000
	Threshold    float64       // RMS threshold in [0,1], default 0.015
	MinSpeech    time.Duration // segments shorter than this are discarded, default 200ms
	Hangover     time.Duration // trailing silence that finalizes a segment, default 500ms
	MaxUtterance time.Duration // hard cap per segment, default 30s
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.Threshold == 0 {
		c.Threshold = 0.015
	}
	if c.MinSpeech == 0 {
		c.MinSpeech = 200 * time.Millisecond
	}
	if c.Hangover == 0 {
		c.Hangover = 500 * time.Millisecond
	}
	if c.MaxUtterance == 0 {
		c.MaxUtterance = 30 * time.Second
	}
	return c
}

// Detector accumulates 16-bit little-endian mono PCM frames and emits
// finalized utterances. Not safe for concurrent use; each pipeline session
// owns one detector.
type Detector struct {
	cfg Config

	buf       []byte
	inSpeech  bool
	silenceMS float64
	speechMS  float64
}

func New(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// rms computes root-mean-square energy of the frame, normalized to [0,1].
func rms(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[2*i:]))
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}

func (d *Detector) frameMS(frame []byte) float64 {
	samples := float64(len(frame) / 2)
	return samples / float64(d.cfg.SampleRate) * 1000
}

// Push feeds one frame and returns a finalized utterance, or nil if speech
// is still in progress or nothing was detected.
func (d *Detector) Push(frame []byte) []byte {
	if len(frame) < 2 {
		return nil
	}
	ms := d.frameMS(frame)
	voiced := rms(frame) >= d.cfg.Threshold

	if !d.inSpeech {
		if !voiced {
			return nil
		}
		d.inSpeech = true
		d.buf = d.buf[:0]
		d.silenceMS = 0
		d.speechMS = 0
	}

	d.buf = append(d.buf, frame...)
	d.speechMS += ms
	if voiced {
		d.silenceMS = 0
	} else {
		d.silenceMS += ms
	}

	if d.silenceMS >= float64(d.cfg.Hangover.Milliseconds()) ||
		d.speechMS >= float64(d.cfg.MaxUtterance.Milliseconds()) {
		return d.finalize()
	}
	return nil
}

// Flush finalizes any in-progress segment, for end-of-stream handling.
func (d *Detector) Flush() []byte {
	if !d.inSpeech {
		return nil
	}
	return d.finalize()
}

func (d *Detector) finalize() []byte {
	d.inSpeech = false
	if d.speechMS-d.silenceMS < float64(d.cfg.MinSpeech.Milliseconds()) {
		d.buf = d.buf[:0]
		return nil
	}
	out := make([]byte, len(d.buf))
	copy(out, d.buf)
	d.buf = d.buf[:0]
	return out
}
