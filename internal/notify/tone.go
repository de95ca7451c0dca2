package notify

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// Tone describes a sine beep whose gain decays exponentially.
type Tone struct {
	Frequency  float64
	Duration   time.Duration
	StartGain  float64
	EndGain    float64
	SampleRate int
}

// DefaultTone is the notification beep: 800Hz, 0.5s, gain 0.3 decaying to 0.01.
func DefaultTone() Tone {
	return Tone{
		Frequency:  800,
		Duration:   500 * time.Millisecond,
		StartGain:  0.3,
		EndGain:    0.01,
		SampleRate: 8000,
	}
}

// Samples renders the tone as mono samples in [-1, 1].
func (t Tone) Samples() []float64 {
	n := int(t.Duration.Seconds() * float64(t.SampleRate))
	if n <= 0 || t.StartGain <= 0 || t.EndGain <= 0 {
		return nil
	}

	out := make([]float64, n)
	ratio := t.EndGain / t.StartGain
	for i := range out {
		progress := float64(i) / float64(n)
		gain := t.StartGain * math.Pow(ratio, progress)
		out[i] = gain * math.Sin(2*math.Pi*t.Frequency*float64(i)/float64(t.SampleRate))
	}
	return out
}

// WAV encodes the tone as a 16-bit mono PCM WAV file.
func (t Tone) WAV() []byte {
	samples := t.Samples()
	dataLen := uint32(len(samples) * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataLen))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(t.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(t.SampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, int16(s*math.MaxInt16))
	}
	return buf.Bytes()
}

// Player outputs an encoded tone.
type Player interface {
	Play(wav []byte) error
}

// PlayerFunc adapts a function to Player.
type PlayerFunc func(wav []byte) error

func (f PlayerFunc) Play(wav []byte) error { return f(wav) }
