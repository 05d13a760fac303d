// Package worker provides a NATS worker that serves speech synthesis requests.
package worker

import (
	"context"
	"crypto/md5" // #nosec G501 -- cache key, not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/core"
	"github.com/book-expert/voiceclone/internal/fileutil"
	"github.com/book-expert/voiceclone/internal/synth"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	defaultTimeout = 10 * time.Minute
	wavExtension   = ".wav"
)

var (
	// ErrTextEmpty indicates that neither inline text nor a text key produced any text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrVoiceEmpty indicates that the voice is empty.
	ErrVoiceEmpty = errors.New("voice cannot be empty")
	// ErrUnsupportedVoice indicates that no sample directory exists for the voice.
	ErrUnsupportedVoice = errors.New("unsupported voice")
)

// Synthesizer is the part of synth.Synthesizer the worker depends on.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (*synth.Result, error)
}

// Options configures request handling.
type Options struct {
	VoicesDir      string
	DefaultQuality synth.Quality
	Timeout        time.Duration
}

// NatsWorker listens for synthesis requests on a NATS subject and replies
// with the object store key of the generated audio.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	synthesizer    Synthesizer
	options        Options
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	synthesizer Synthesizer,
	options Options,
	log *logger.Logger,
) (*NatsWorker, error) {
	if options.Timeout <= 0 {
		options.Timeout = defaultTimeout
	}

	if options.DefaultQuality == "" {
		options.DefaultQuality = synth.QualityHighQuality
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		synthesizer:    synthesizer,
		options:        options,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for synthesis requests on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

// CacheKey names the stored audio for one request. Seed and emotion change the
// generated audio, so they are hashed together with the text when set.
func CacheKey(text, voice string, quality synth.Quality, seed *int, emotion string) string {
	payload := text
	if seed != nil || emotion != "" {
		seedValue := ""
		if seed != nil {
			seedValue = strconv.Itoa(*seed)
		}

		payload = strings.Join([]string{text, emotion, seedValue}, "\x00")
	}

	sum := md5.Sum([]byte(payload)) // #nosec G401 -- cache key, not a security boundary

	return fmt.Sprintf("%s_%s_%s%s", hex.EncodeToString(sum[:]), fileutil.SanitizeKey(voice), quality, wavExtension)
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.options.Timeout)
	defer cancel()

	event, err := w.parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse synthesis request: %v", err)
		w.respond(msg, &SynthesisCompletedEvent{Error: err.Error()})

		return
	}

	reply, processErr := w.processSynthesisJob(ctx, event)
	if processErr != nil {
		w.log.Error("Failed to process synthesis job for workflow %s: %v", event.Header.WorkflowID, processErr)

		reply = &SynthesisCompletedEvent{Header: event.Header, Error: processErr.Error()}
	}

	w.respond(msg, reply)
}

// processSynthesisJob resolves the request, serves it from the cache when
// possible and otherwise synthesizes and uploads the audio.
func (w *NatsWorker) processSynthesisJob(ctx context.Context, event *SynthesisRequestedEvent) (*SynthesisCompletedEvent, error) {
	text, err := w.resolveText(ctx, event)
	if err != nil {
		return nil, err
	}

	voiceDir, err := w.resolveVoice(event.Voice)
	if err != nil {
		return nil, err
	}

	quality := w.options.DefaultQuality
	if event.Quality != "" {
		quality, err = synth.ParseQuality(event.Quality)
		if err != nil {
			return nil, err
		}
	}

	audioKey := CacheKey(text, event.Voice, quality, event.Seed, event.Emotion)

	cached, err := w.store.Exists(ctx, audioKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check cache for key '%s': %w", audioKey, err)
	}

	if cached {
		w.log.Info("Serving cached audio %s for workflow %s", audioKey, event.Header.WorkflowID)

		return &SynthesisCompletedEvent{Header: event.Header, AudioKey: audioKey, Cached: true}, nil
	}

	scratchDir, err := os.MkdirTemp("", "voiceclone-job-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	defer func() {
		removeErr := os.RemoveAll(scratchDir)
		if removeErr != nil {
			w.log.Warn("Failed to remove scratch dir '%s': %v", scratchDir, removeErr)
		}
	}()

	result, err := w.synthesizer.Synthesize(ctx, synth.Request{
		Text:       text,
		VoiceDir:   voiceDir,
		OutputName: filepath.Join(scratchDir, uuid.NewString()+wavExtension),
		Quality:    quality,
		Seed:       event.Seed,
		Emotion:    event.Emotion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	audioData, err := os.ReadFile(result.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}

	err = w.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return &SynthesisCompletedEvent{
		Header:   event.Header,
		AudioKey: audioKey,
		Rung:     result.Rung.Name,
		Attempts: result.Attempts,
	}, nil
}

func (w *NatsWorker) resolveText(ctx context.Context, event *SynthesisRequestedEvent) (string, error) {
	text := event.Text

	if text == "" && event.TextKey != "" {
		textData, err := w.store.Download(ctx, event.TextKey)
		if err != nil {
			return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
		}

		text = string(textData)
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrTextEmpty
	}

	return text, nil
}

// resolveVoice maps a voice name to its sample directory under VoicesDir.
func (w *NatsWorker) resolveVoice(voice string) (string, error) {
	if voice == "" {
		return "", ErrVoiceEmpty
	}

	nameErr := fileutil.ValidateName(voice)
	if nameErr != nil {
		return "", fmt.Errorf("%w: %w", ErrUnsupportedVoice, nameErr)
	}

	available, err := fileutil.ListSubdirs(w.options.VoicesDir)
	if err != nil {
		return "", fmt.Errorf("failed to list voices: %w", err)
	}

	if !slices.Contains(available, voice) {
		return "", fmt.Errorf("%w: '%s' (available: %s)", ErrUnsupportedVoice, voice, strings.Join(available, ", "))
	}

	return filepath.Join(w.options.VoicesDir, voice), nil
}

// respond marshals and sends the reply when the request carries a reply subject.
func (w *NatsWorker) respond(msg *nats.Msg, reply *SynthesisCompletedEvent) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply event: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", reply.Header.WorkflowID, err)
	}
}

func (w *NatsWorker) parseEvent(msg *nats.Msg) (*SynthesisRequestedEvent, error) {
	var event SynthesisRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
