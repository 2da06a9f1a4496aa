package models

import "time"

// Waveform is normalized audio: 16-bit PCM, mono, fixed sample rate.
// It is owned by one pipeline invocation and never persisted.
type Waveform struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

func (w Waveform) Len() int { return len(w.Samples) }

func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// Window returns the samples of c without copying.
func (w Waveform) Window(c Chunk) []int16 {
	return w.Samples[c.Offset : c.Offset+c.Length]
}

// Chunk is a contiguous sub-range of a Waveform.
type Chunk struct {
	Index  int
	Offset int
	Length int
}

func (c Chunk) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Length) * time.Second / time.Duration(sampleRate)
}

// DecodeOptions are fixed when the recognizer is initialized and only
// change through an explicit, serialized reconfiguration.
type DecodeOptions struct {
	Strategy string `json:"strategy" yaml:"strategy"`
	Language string `json:"language" yaml:"language"`
}

const (
	StrategyGreedy = "greedy"
	StrategyBeam   = "beam"
)

func ValidStrategy(s string) bool {
	return s == StrategyGreedy || s == StrategyBeam
}
