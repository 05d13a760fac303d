package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voiceclone/internal/audio"
	"github.com/book-expert/voiceclone/internal/core"
	"github.com/valyala/fastjson"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	acceptResponses   = contentTypeJSON + ", " + contentTypeWAV
)

// Error messages.
const (
	errUnexpectedContentType   = "unexpected content type: %q"
	errFmtServiceErrorWithCode = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "TTS service returned non-OK status: %s, body: %s"
)

// HTTPEngine talks to a text-to-speech model served over HTTP.
type HTTPEngine struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
}

// VoiceSample is one reference recording in a generation request.
type VoiceSample struct {
	Name       string `json:"name"`
	SampleRate int    `json:"sample_rate"`
	PCM        string `json:"pcm_s16le"`
}

// SpeechRequest defines the JSON payload of a generation request. Zero values
// are omitted so the service falls back to its own defaults.
type SpeechRequest struct {
	Text                  string        `json:"text"`
	VoiceSamples          []VoiceSample `json:"voice_samples"`
	Preset                string        `json:"preset,omitempty"`
	K                     int           `json:"k,omitempty"`
	AutoregressiveSamples int           `json:"num_autoregressive_samples,omitempty"`
	DiffusionIterations   int           `json:"diffusion_iterations,omitempty"`
	CondFree              *bool         `json:"cond_free,omitempty"`
	Seed                  *int          `json:"seed,omitempty"`
	Emotion               string        `json:"emotion,omitempty"`
}

// ErrorResponse represents a structured error response from the service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPEngine creates an engine for the service at baseURL
// (e.g., "http://localhost:8000"). The timeout applies to every request.
func NewHTTPEngine(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPEngine {
	return &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// NewSpeechRequest converts a generation request to its wire form.
func NewSpeechRequest(req core.GenerationRequest) SpeechRequest {
	samples := make([]VoiceSample, 0, len(req.References))

	for _, reference := range req.References {
		samples = append(samples, VoiceSample{
			Name:       reference.Name,
			SampleRate: reference.SampleRate,
			PCM:        base64.StdEncoding.EncodeToString(audio.PCM16(reference.Samples)),
		})
	}

	return SpeechRequest{
		Text:                  req.Text,
		VoiceSamples:          samples,
		Preset:                req.Params.Preset,
		K:                     req.Params.K,
		AutoregressiveSamples: req.Params.AutoregressiveSamples,
		DiffusionIterations:   req.Params.DiffusionIterations,
		CondFree:              req.Params.CondFree,
		Seed:                  req.Params.Seed,
		Emotion:               req.Params.Emotion,
	}
}

// Generate sends one generation request and decodes the returned waveform.
func (e *HTTPEngine) Generate(ctx context.Context, req core.GenerationRequest) (*core.Waveform, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	requestBody, err := json.Marshal(NewSpeechRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, acceptResponses)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if len(body) == 0 {
		return nil, ErrEmptyAudio
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))

	switch mediaType {
	case contentTypeJSON:
		return ParseWaveform(body)
	case contentTypeWAV, "audio/x-wav", "audio/wave":
		clip, decodeErr := audio.DecodeWAV(bytes.NewReader(body))
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode wav response: %w", decodeErr)
		}

		return clipToWaveform(clip), nil
	default:
		return nil, fmt.Errorf(errUnexpectedContentType, mediaType)
	}
}

// HealthCheck verifies that the service is running and operational.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	e.log.Info("TTS service at %s is healthy", e.baseURL)

	return nil
}

// ParseWaveform decodes a {shape, sample_rate, samples} JSON document.
func ParseWaveform(body []byte) (*core.Waveform, error) {
	var parser fastjson.Parser

	value, err := parser.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWave, err)
	}

	shapeValues, err := arrayField(value, "shape")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWave, err)
	}

	shape := make([]int, len(shapeValues))

	for i, dim := range shapeValues {
		shape[i], err = dim.Int()
		if err != nil {
			return nil, fmt.Errorf("%w: shape[%d]: %w", ErrMalformedWave, i, err)
		}
	}

	sampleValues, err := arrayField(value, "samples")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWave, err)
	}

	if len(sampleValues) == 0 {
		return nil, ErrEmptyAudio
	}

	samples := make([]float32, len(sampleValues))

	for i, sample := range sampleValues {
		f, floatErr := sample.Float64()
		if floatErr != nil {
			return nil, fmt.Errorf("%w: samples[%d]: %w", ErrMalformedWave, i, floatErr)
		}

		samples[i] = float32(f)
	}

	return &core.Waveform{
		Shape:      shape,
		Samples:    samples,
		SampleRate: value.GetInt("sample_rate"),
	}, nil
}

func arrayField(value *fastjson.Value, key string) ([]*fastjson.Value, error) {
	field := value.Get(key)
	if field == nil {
		return nil, fmt.Errorf("missing field %q", key)
	}

	return field.Array()
}

// parseErrorResponse decodes a structured JSON error from the service and
// falls back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
