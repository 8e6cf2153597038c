package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/speaklab-backend/internal/logger"
)

// GCPTranscriber routes speech-to-text through Google Cloud Speech instead
// of the default provider endpoint. Selected with SPEECH_PROVIDER=gcp.
type GCPTranscriber struct {
	log          *logger.Logger
	client       *speech.Client
	languageCode string
}

func NewGCPTranscriber(log *logger.Logger) (*GCPTranscriber, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "GCPTranscriber")

	ctx := context.Background()

	var c *speech.Client
	var err error
	if credsJSON := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")); credsJSON != "" {
		c, err = speech.NewClient(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	} else if credsFile := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); credsFile != "" {
		c, err = speech.NewClient(ctx, option.WithCredentialsFile(credsFile))
	} else {
		c, err = speech.NewClient(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	languageCode := strings.TrimSpace(os.Getenv("GCP_SPEECH_LANGUAGE"))
	if languageCode == "" {
		languageCode = "en-US"
	}

	return &GCPTranscriber{log: slog, client: c, languageCode: languageCode}, nil
}

func (t *GCPTranscriber) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}

func (t *GCPTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	// practice answers are short clips; keep a strict timeout
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if len(audio) == 0 {
		return "", nil
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               t.languageCode,
			EnableAutomaticPunctuation: true,
			Encoding:                   inferSpeechEncoding(mimeType),
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	op, err := t.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return "", fmt.Errorf("speech longrunningrecognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		if code := status.Code(err); code == codes.ResourceExhausted {
			t.log.Warn("GCP speech quota exhausted", "error", err)
		}
		return "", fmt.Errorf("speech longrunningrecognize wait: %w", err)
	}

	return flattenTranscript(resp), nil
}

func inferSpeechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "webm"):
		return speechpb.RecognitionConfig_WEBM_OPUS
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		// leave unspecified; the API can often auto-detect
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func flattenTranscript(resp *speechpb.LongRunningRecognizeResponse) string {
	if resp == nil || len(resp.Results) == 0 {
		return ""
	}
	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := strings.TrimSpace(r.Alternatives[0].Transcript)
		if alt == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(alt)
	}
	return full.String()
}
