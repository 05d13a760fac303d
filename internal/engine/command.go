package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/audio"
	"github.com/book-expert/voiceclone/internal/core"
)

const (
	outputFileName = "generated.wav"

	scanBufferSize = 64 * 1024
	maxLineSize    = 1024 * 1024
)

// CommandEngine runs a local generation program once per request. The
// program receives the text, the reference paths and the rung parameters as
// flags and writes a WAV file to the path given by --output_path.
type CommandEngine struct {
	command string
	args    []string
	log     *logger.Logger
}

// NewCommandEngine creates an engine that invokes command with the fixed
// leading args, such as a script path for an interpreter.
func NewCommandEngine(command string, args []string, log *logger.Logger) *CommandEngine {
	return &CommandEngine{command: command, args: args, log: log}
}

// Generate runs the program and decodes the WAV file it writes.
func (e *CommandEngine) Generate(ctx context.Context, req core.GenerationRequest) (*core.Waveform, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	workDir, err := os.MkdirTemp("", "voiceclone-engine-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create engine work dir: %w", err)
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			e.log.Warn("Failed to remove engine work dir '%s': %v", workDir, removeErr)
		}
	}()

	outputPath := filepath.Join(workDir, outputFileName)

	runErr := e.run(ctx, BuildArgs(req, outputPath))
	if runErr != nil {
		return nil, runErr
	}

	clip, err := audio.ReadWAV(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine output: %w", err)
	}

	if clip.Frames() == 0 {
		return nil, ErrEmptyAudio
	}

	return clipToWaveform(clip), nil
}

// HealthCheck reports whether the program can be resolved.
func (e *CommandEngine) HealthCheck(_ context.Context) error {
	path, err := exec.LookPath(e.command)
	if err != nil {
		return fmt.Errorf("engine command %q not found: %w", e.command, err)
	}

	e.log.Info("Engine command resolved to %s", path)

	return nil
}

// BuildArgs maps a generation request to program flags. Unset parameters are
// left out so the program applies its own defaults.
func BuildArgs(req core.GenerationRequest, outputPath string) []string {
	args := []string{"--text", req.Text}

	for _, reference := range req.References {
		args = append(args, "--voice_sample", reference.Path)
	}

	params := req.Params

	if params.Preset != "" {
		args = append(args, "--preset", params.Preset)
	}

	if params.K > 0 {
		args = append(args, "--k", strconv.Itoa(params.K))
	}

	if params.AutoregressiveSamples > 0 {
		args = append(args, "--num_autoregressive_samples", strconv.Itoa(params.AutoregressiveSamples))
	}

	if params.DiffusionIterations > 0 {
		args = append(args, "--diffusion_iterations", strconv.Itoa(params.DiffusionIterations))
	}

	if params.CondFree != nil {
		args = append(args, "--cond_free", strconv.FormatBool(*params.CondFree))
	}

	if params.Seed != nil {
		args = append(args, "--seed", strconv.Itoa(*params.Seed))
	}

	if params.Emotion != "" {
		args = append(args, "--emotion", params.Emotion)
	}

	return append(args, "--output_path", outputPath)
}

// run executes the program, logging stdout lines as info and stderr lines as
// warnings while it runs.
func (e *CommandEngine) run(ctx context.Context, requestArgs []string) error {
	args := append(append([]string{}, e.args...), requestArgs...)

	// #nosec G204 -- the command comes from operator configuration
	cmd := exec.CommandContext(ctx, e.command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("unable to open stdout of %s: %w", e.command, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("unable to open stderr of %s: %w", e.command, err)
	}

	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("unable to execute %s: %w", e.command, err)
	}

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		e.logLines(stdout, e.log.Info)
	}()

	go func() {
		defer wg.Done()
		e.logLines(stderr, e.log.Warn)
	}()

	wg.Wait()

	err = cmd.Wait()
	if err != nil {
		return fmt.Errorf("engine command %s failed: %w", e.command, err)
	}

	return nil
}

// logLines logs every line r produces and then drains whatever is left, so
// the child never blocks on a full pipe.
func (e *CommandEngine) logLines(r io.Reader, logf func(format string, args ...any)) {
	name := filepath.Base(e.command)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, scanBufferSize), maxLineSize)
	scanner.Split(scanOutputLines)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		logf("%s: %s", name, line)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		e.log.Warn("Stopped logging output of %s: %v", name, scanErr)
	}

	_, _ = io.Copy(io.Discard, r)
}

// scanOutputLines splits on '\n' and on '\r', which progress bars use to
// redraw a line in place.
func scanOutputLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	index := bytes.IndexAny(data, "\r\n")
	if index >= 0 {
		return index + 1, data[:index], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}
