package stations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

func nopLogger() *logger.ZapLogger {
	return logger.NewZapLogger(zap.NewNop().Sugar())
}

// encodeWAV builds WAV bytes with the go-audio encoder.
func encodeWAV(t *testing.T, samples []int, sampleRate, bitDepth, chans int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, chans, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: chans, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	return raw
}
