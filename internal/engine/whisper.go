package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voicedform/whisper-gateway/internal/audio"
	"github.com/voicedform/whisper-gateway/internal/resilience"
)

// whisperConfidence is reported on results because the whisper inference
// server does not return a confidence score of its own.
const whisperConfidence = 0.95

// WhisperClient is a Transcriber backed by a remote Whisper inference server
// (whisper.cpp server or a Modal deployment) exposing POST /inference. Each
// call uploads the sample buffer as a WAV file and reads back the recognized
// text. Transient network failures are retried with backoff.
type WhisperClient struct {
	serverURL  string
	sampleRate int
	httpClient *http.Client
	retryCfg   *resilience.RetryConfig
}

// NewWhisperClient creates a client for the inference server at serverURL.
func NewWhisperClient(serverURL string, sampleRate int, retryCfg *resilience.RetryConfig) *WhisperClient {
	return &WhisperClient{
		serverURL:  strings.TrimRight(serverURL, "/"),
		sampleRate: sampleRate,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retryCfg:   retryCfg,
	}
}

// Name implements Transcriber.
func (w *WhisperClient) Name() string { return "whisper" }

// Transcribe implements Transcriber. It encodes samples as 16-bit PCM WAV
// and posts them to the /inference endpoint with language and model hints.
func (w *WhisperClient) Transcribe(ctx context.Context, samples []float32, hints Hints) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrNoAudio
	}

	wav := audio.EncodeWAV(audio.Float32ToPCM16(samples), w.sampleRate, 1)

	var result Result
	err := resilience.Retry(ctx, func() error {
		res, err := w.infer(ctx, wav, hints)
		if err != nil {
			return err
		}
		result = res
		return nil
	}, w.retryCfg, resilience.IsRetryableNetworkError)

	if err != nil {
		return Result{}, &BackendError{Backend: w.Name(), Err: err}
	}
	return result, nil
}

func (w *WhisperClient) infer(ctx context.Context, wav []byte, hints Hints) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return Result{}, fmt.Errorf("write wav data: %w", err)
	}

	if hints.Language != "" {
		if err := mw.WriteField("language", hints.Language); err != nil {
			return Result{}, fmt.Errorf("write language field: %w", err)
		}
	}
	if hints.ModelSize != "" {
		if err := mw.WriteField("model", hints.ModelSize); err != nil {
			return Result{}, fmt.Errorf("write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.serverURL+"/inference", &body)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("inference server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response body: %w", err)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, fmt.Errorf("parse JSON response: %w", err)
	}

	return Result{
		Text:       strings.TrimSpace(parsed.Text),
		Confidence: whisperConfidence,
	}, nil
}
