package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// ErrTransient marks a failure the default adapter believes is worth
// retrying (network errors, 5xx, 429). ErrPermanent marks one that is not
// (4xx other than 429).
type ErrTransient struct{ Err error }

func (e *ErrTransient) Error() string { return e.Err.Error() }
func (e *ErrTransient) Unwrap() error { return e.Err }

type ErrPermanent struct{ Err error }

func (e *ErrPermanent) Error() string { return e.Err.Error() }
func (e *ErrPermanent) Unwrap() error { return e.Err }

type wireSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type wireResponse struct {
	Segments []wireSegment `json:"segments"`
	Language string        `json:"language"`
}

// HTTPClient is the default Client: a multipart upload to a transcription
// service, rate-limited across all chunks/runs and retried with
// exponential backoff and jitter when the service reports a transient
// failure.
type HTTPClient struct {
	httpClient *http.Client
	endpoint   string
	limiter    *rate.Limiter
	maxRetries uint64
	log        *slog.Logger
}

// NewHTTPClient builds a transcription client against endpoint, allowing
// ratePerMin requests per minute across the whole process.
func NewHTTPClient(httpClient *http.Client, endpoint string, ratePerMin int, maxRetries uint64, log *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		limiter:    rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), 1),
		maxRetries: maxRetries,
		log:        log,
	}
}

func (c *HTTPClient) Transcribe(ctx context.Context, localAudioPath string, chunkDurationSeconds float64, chunkIndex int) (Response, error) {
	var out Response

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.attempt(ctx, localAudioPath, chunkDurationSeconds, chunkIndex)
		if err != nil {
			if _, permanent := err.(*ErrPermanent); permanent {
				return backoff.Permanent(err)
			}
			return err
		}
		out = resp
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.Warn("transcription attempt failed, retrying",
			"chunkIndex", chunkIndex, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return Response{}, fmt.Errorf("transcribe chunk %d: %w", chunkIndex, err)
	}
	return out, nil
}

func (c *HTTPClient) attempt(ctx context.Context, localAudioPath string, chunkDurationSeconds float64, chunkIndex int) (Response, error) {
	f, err := os.Open(localAudioPath)
	if err != nil {
		return Response{}, &ErrPermanent{Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chunkDurationSeconds", strconv.FormatFloat(chunkDurationSeconds, 'f', -1, 64)); err != nil {
		return Response{}, &ErrPermanent{Err: err}
	}
	if err := writer.WriteField("chunkIndex", strconv.Itoa(chunkIndex)); err != nil {
		return Response{}, &ErrPermanent{Err: err}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(localAudioPath))
	if err != nil {
		return Response{}, &ErrPermanent{Err: err}
	}
	if _, err := io.Copy(part, f); err != nil {
		return Response{}, &ErrTransient{Err: err}
	}
	if err := writer.Close(); err != nil {
		return Response{}, &ErrPermanent{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return Response{}, &ErrPermanent{Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, &ErrTransient{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Response{}, &ErrTransient{Err: fmt.Errorf("transcription service status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return Response{}, &ErrPermanent{Err: fmt.Errorf("transcription service status %d", resp.StatusCode)}
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Response{}, &ErrTransient{Err: err}
	}

	segments := make([]Segment, 0, len(wire.Segments))
	for _, s := range wire.Segments {
		segments = append(segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return Response{Segments: segments, Language: wire.Language}, nil
}
