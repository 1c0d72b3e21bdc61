package engine

import (
	"bytes"
	"context"
	"fmt"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/voicedform/whisper-gateway/internal/audio"
)

// DeepgramClient is a Transcriber backed by Deepgram's pre-recorded REST
// API. The drained sample buffer is uploaded as a WAV file per call, which
// matches the batch shape of the inference boundary: no streaming decoder
// state is kept between calls.
type DeepgramClient struct {
	client     *listenv1rest.Client
	model      string
	sampleRate int
}

// NewDeepgramClient creates a Deepgram-backed Transcriber.
func NewDeepgramClient(apiKey, model string, sampleRate int) *DeepgramClient {
	rest := listenClient.NewREST(apiKey, &interfaces.ClientOptions{})
	return &DeepgramClient{
		client:     listenv1rest.New(rest),
		model:      model,
		sampleRate: sampleRate,
	}
}

// Name implements Transcriber.
func (d *DeepgramClient) Name() string { return "deepgram" }

// Transcribe implements Transcriber.
func (d *DeepgramClient) Transcribe(ctx context.Context, samples []float32, hints Hints) (Result, error) {
	if len(samples) == 0 {
		return Result{}, ErrNoAudio
	}

	wav := audio.EncodeWAV(audio.Float32ToPCM16(samples), d.sampleRate, 1)

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       d.model,
		Language:    hints.Language,
		SmartFormat: true,
	}

	res, err := d.client.FromStream(ctx, bytes.NewReader(wav), options)
	if err != nil {
		return Result{}, &BackendError{Backend: d.Name(), Err: err}
	}

	if res == nil || len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return Result{}, &BackendError{Backend: d.Name(), Err: fmt.Errorf("response contained no transcription alternatives")}
	}

	alt := res.Results.Channels[0].Alternatives[0]
	return Result{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
	}, nil
}
