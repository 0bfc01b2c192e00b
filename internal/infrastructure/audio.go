package infrastructure

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
)

// ConvertToWAV writes the uploaded audio to a temp file and converts it
// to 16 kHz mono WAV with ffmpeg, which is what the transcription model
// accepts regardless of the browser/phone source format (webm, ogg,
// mp4...). The caller owns the returned path and should remove it.
func ConvertToWAV(audio []byte) (string, error) {
	in, err := os.CreateTemp("", "anaterra-audio-in-*.bin")
	if err != nil {
		return "", fmt.Errorf("create temp input: %w", err)
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(audio); err != nil {
		in.Close()
		return "", fmt.Errorf("write temp input: %w", err)
	}
	in.Close()

	out, err := os.CreateTemp("", "anaterra-audio-out-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp output: %w", err)
	}
	out.Close()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-i", in.Name(),
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		out.Name(),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("ffmpeg conversion: %w: %s", err, stderr.String())
	}

	return out.Name(), nil
}
