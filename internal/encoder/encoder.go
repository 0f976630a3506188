/*
Copyright (C) 2026 Driftcast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package encoder wraps an external encoder process (ffmpeg by default)
// that transcodes a local source file into a constant-bitrate MP3 stream
// on its standard output, paced in real time by the encoder's own -re flag.
package encoder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/rs/zerolog"
)

// Config names the encoder binary and the output arguments placed between
// the input file and the stdout sink; when ExtraArgs is empty the default
// 192 kbps stereo 44.1 kHz arguments are used instead.
type Config struct {
	Bin       string
	ExtraArgs []string
	ChunkSize int
}

// Session represents one running encoder process for a single track.
type Session struct {
	cmd       *exec.Cmd
	stdout    *bufio.Reader
	closer    io.Closer
	stderrBuf *bytes.Buffer
	logger    zerolog.Logger
}

// Start launches the encoder against localPath, returning a Session whose
// ReadChunk yields fixed-size MP3 frames from the process's stdout.
func Start(ctx context.Context, cfg Config, localPath string, logger zerolog.Logger) (*Session, error) {
	args := buildArgs(localPath, cfg.ExtraArgs)
	cmd := exec.CommandContext(ctx, cfg.Bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	return &Session{
		cmd:       cmd,
		stdout:    bufio.NewReaderSize(stdout, cfg.ChunkSize),
		closer:    stdout,
		stderrBuf: &stderr,
		logger:    logger,
	}, nil
}

func buildArgs(localPath string, extra []string) []string {
	base := []string{
		"-re",
		"-i", localPath,
		"-f", "mp3",
		"-vn",
	}
	if len(extra) > 0 {
		base = append(base, extra...)
	} else {
		base = append(base, "-b:a", "192k", "-ac", "2", "-ar", "44100")
	}
	return append(base, "pipe:1")
}

// ReadChunk fills buf completely from the encoder's stdout, returning
// io.EOF only once the process has produced no further bytes. A short
// final read before EOF returns the partial chunk and a nil error; the
// caller is expected to call ReadChunk once more to observe EOF.
func (s *Session) ReadChunk(buf []byte) (int, error) {
	n, err := io.ReadFull(s.stdout, buf)
	if err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}

// Wait blocks until the encoder process exits, returning its stderr output
// alongside any non-zero exit error.
func (s *Session) Wait() error {
	err := s.cmd.Wait()
	if err != nil {
		return fmt.Errorf("encoder exited: %w: %s", err, s.stderrBuf.String())
	}
	return nil
}

// Kill terminates the encoder process if still running.
func (s *Session) Kill() {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
}
