package infra

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavWriteFrames = 4096

// writeChunkWAV encodes samples as 16-bit mono PCM into a temp file,
// rewound and ready to be read. The caller closes and removes it.
func writeChunkWAV(samples []float32, sampleRate int) (*os.File, error) {
	f, err := os.CreateTemp("", "scribe-chunk-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create chunk wav: %w", err)
	}
	fail := func(err error) (*os.File, error) {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, 0, wavWriteFrames),
	}
	for off := 0; off < len(samples); off += wavWriteFrames {
		end := min(off+wavWriteFrames, len(samples))
		buf.Data = buf.Data[:0]
		for _, s := range samples[off:end] {
			buf.Data = append(buf.Data, floatToPCM16(s))
		}
		if err := enc.Write(buf); err != nil {
			return fail(fmt.Errorf("encode chunk wav: %w", err))
		}
	}
	if err := enc.Close(); err != nil {
		return fail(fmt.Errorf("close chunk wav: %w", err))
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail(fmt.Errorf("rewind chunk wav: %w", err))
	}
	return f, nil
}

func floatToPCM16(s float32) int {
	v := int(s * 32768)
	return max(-32768, min(32767, v))
}
