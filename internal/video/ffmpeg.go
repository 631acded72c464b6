package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"

	"github.com/bdougie/filmstrip/internal/fileutils"
)

// StreamInfo is what ffprobe reports about the first video stream.
type StreamInfo struct {
	Width      int
	Height     int
	FrameCount int
}

type probeOutput struct {
	Streams []struct {
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
	} `json:"streams"`
}

// Probe asks ffprobe for the dimensions and frame count of the first video stream.
func Probe(ctx context.Context, videoPath string) (*StreamInfo, error) {
	if !fileutils.FileExists(videoPath) {
		return nil, fmt.Errorf("video file does not exist at path: '%s'", videoPath)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=width,height,nb_frames,nb_read_packets",
		"-of", "json",
		videoPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, stderr.String())
	}

	return parseProbe(output)
}

func parseProbe(output []byte) (*StreamInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, errors.New("no video stream found")
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}

	info := &StreamInfo{Width: s.Width, Height: s.Height}
	// Packet counts come from an actual demux pass; nb_frames is container metadata.
	for _, v := range []string{s.NbReadPackets, s.NbFrames} {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			info.FrameCount = n
			break
		}
	}
	return info, nil
}

// ffmpegSource pipes raw RGBA frames out of an ffmpeg child process.
type ffmpegSource struct {
	info   *StreamInfo
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	frame  []byte
	done   bool
}

// OpenFFmpeg is the default Opener. It requires ffmpeg and ffprobe on PATH.
func OpenFFmpeg(ctx context.Context, videoPath string) (Source, error) {
	info, err := Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	s := &ffmpegSource{
		info:  info,
		frame: make([]byte, info.Width*info.Height*4),
	}
	s.cmd = exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-i", videoPath,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	)
	s.cmd.Stderr = &s.stderr

	s.stdout, err = s.cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := s.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return s, nil
}

func (s *ffmpegSource) FrameCount() int {
	return s.info.FrameCount
}

func (s *ffmpegSource) Next() (image.Image, error) {
	if s.done {
		return nil, io.EOF
	}

	_, err := io.ReadFull(s.stdout, s.frame)
	if errors.Is(err, io.EOF) {
		s.done = true
		if werr := s.wait(); werr != nil {
			return nil, werr
		}
		return nil, io.EOF
	}
	if err != nil {
		s.done = true
		_ = s.wait()
		return nil, fmt.Errorf("read frame: %w\nOutput: %s", err, s.stderr.String())
	}

	img := image.NewRGBA(image.Rect(0, 0, s.info.Width, s.info.Height))
	copy(img.Pix, s.frame)
	return img, nil
}

func (s *ffmpegSource) wait() error {
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, s.stderr.String())
	}
	return nil
}

// Close stops ffmpeg if frames are still pending.
func (s *ffmpegSource) Close() error {
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	s.cmd = nil
	_ = s.stdout.Close()
	if cmd.ProcessState == nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
	return nil
}
