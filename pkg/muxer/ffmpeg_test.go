package muxer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name   string
		ffmpeg FFmpeg
		n      int
		want   []string
	}{
		{
			name: "defaults",
			n:    2,
			want: []string{
				"-nostats", "-y", "-loglevel", "error",
				"-i", "pipe:3", "-i", "pipe:4",
				"-c:v", "copy", "-c:a", "copy",
				"-map", "0", "-map", "1",
				"-f", "matroska", "pipe:1",
			},
		},
		{
			name:   "custom format",
			ffmpeg: FFmpeg{Format: "mpegts", AudioCodec: "aac", LogLevel: "warning"},
			n:      1,
			want: []string{
				"-nostats", "-y", "-loglevel", "warning",
				"-i", "pipe:3",
				"-c:v", "copy", "-c:a", "aac",
				"-map", "0",
				"-f", "mpegts", "pipe:1",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ffmpeg.Args(tt.n); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %v, want %v", got, tt.want)
			}
		})
	}
}

// fakeFFmpeg writes a shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}

	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMuxer(t *testing.T) {
	binary := fakeFFmpeg(t, "cat <&3\ncat <&4")

	out := &syncBuffer{}
	m, err := FFmpeg{Binary: binary}.Open(context.Background(), 2, out)
	require.NoError(t, err)

	inputs := m.Inputs()
	require.Len(t, inputs, 2)

	var wg sync.WaitGroup
	for i, data := range []string{"video", "audio"} {
		wg.Add(1)
		go func(i int, data string) {
			defer wg.Done()
			_, err := inputs[i].Write([]byte(data))
			assert.NoError(t, err)
			assert.NoError(t, inputs[i].Close())
		}(i, data)
	}
	wg.Wait()

	require.NoError(t, m.Wait())
	assert.Equal(t, "videoaudio", out.String())
	assert.NoError(t, m.Close())
}

func TestMuxerExitCode(t *testing.T) {
	binary := fakeFFmpeg(t, "echo broken >&2\nexit 2")

	var lines []string
	var mu sync.Mutex
	onLog := func(message string) {
		mu.Lock()
		lines = append(lines, message)
		mu.Unlock()
	}

	m, err := FFmpeg{Binary: binary, OnLog: onLog}.Open(context.Background(), 1, &syncBuffer{})
	require.NoError(t, err)

	err = m.Wait()
	var muxErr *media.MuxProcessError
	require.True(t, errors.As(err, &muxErr), "got %v", err)
	assert.Equal(t, 2, muxErr.ExitCode)
	assert.True(t, media.IsFatal(err))

	mu.Lock()
	assert.Equal(t, []string{"broken"}, lines)
	mu.Unlock()

	// writes after exit fail instead of blocking
	_, err = m.Inputs()[0].Write([]byte("late"))
	assert.Error(t, err)
}

func TestMuxerCancel(t *testing.T) {
	binary := fakeFFmpeg(t, "exec sleep 60")

	ctx, cancel := context.WithCancel(context.Background())
	m, err := FFmpeg{Binary: binary}.Open(ctx, 1, &syncBuffer{})
	require.NoError(t, err)

	cancel()

	select {
	case <-m.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("ffmpeg was not stopped")
	}

	var muxErr *media.MuxProcessError
	assert.True(t, errors.As(m.Wait(), &muxErr))
}

func TestMuxerMissingBinary(t *testing.T) {
	_, err := FFmpeg{Binary: "/nonexistent/ffmpeg"}.Open(context.Background(), 1, &syncBuffer{})
	var muxErr *media.MuxProcessError
	assert.True(t, errors.As(err, &muxErr))
}
