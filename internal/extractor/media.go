package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/summarize/internal/mediacache"
	"github.com/jmylchreest/summarize/internal/models"
)

const defaultTranscriptionModel = "whisper-1"

// transcriber turns a local media file into text via the hosted
// transcription endpoint.
type transcriber struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

func newTranscriber(apiKey, baseURL string, httpc *http.Client) *transcriber {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &transcriber{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

// Transcribe uploads the file and returns the transcript text.
func (t *transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening media file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := mw.WriteField("model", defaultTranscriptionModel); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<14))
		return "", fmt.Errorf("transcription failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding transcription: %w", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("transcription was empty")
	}
	return out.Text, nil
}

// fetchMedia returns a local path for the media URL, consulting the media
// cache first and populating it after a fresh download. The returned cleanup
// removes the temp file only when the payload did not enter the cache.
func (e *Extractor) fetchMedia(ctx context.Context, mediaURL string) (path string, cleanup func(), err error) {
	cleanup = func() {}

	if e.media != nil {
		if entry, payload, err := e.media.Get(mediaURL); err == nil && entry != nil {
			return payload, cleanup, nil
		}
	}

	tmp, err := os.CreateTemp("", "summarize-media-*")
	if err != nil {
		return "", cleanup, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	os.Remove(tmpPath)

	_, contentType, _, err := e.httpc.Download(ctx, mediaURL, tmpPath)
	if err != nil {
		return "", cleanup, models.Errorf(models.ErrKindExtraction, "downloading media: %v", err)
	}

	if e.media != nil {
		entry, putErr := e.media.Put(mediaURL, tmpPath, mediacache.PutMeta{
			MediaType: contentType,
			Filename:  filepath.Base(mediaURL),
		})
		if putErr == nil && entry != nil {
			_, payload, getErr := e.media.Get(mediaURL)
			if getErr == nil && payload != "" {
				return payload, cleanup, nil
			}
		}
	}

	// Not cached: caller owns the temp file.
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}
