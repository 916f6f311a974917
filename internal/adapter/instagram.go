package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/postpilot/postpilot-backend/internal/model"
)

// Instagram publishes through a resumable-upload flow: open an upload
// session, stream the media in acknowledged chunks, finalize the session
// into a container, then publish the container. Each step fails with its
// own error kind. A chunk that fails is retried from the platform's
// reported offset, never from byte zero, and an ambiguous finalize timeout
// is resolved by probing session status before declaring failure.
type Instagram struct {
	BaseURL      string
	Timeout      time.Duration // per HTTP call
	ChunkSize    int64
	ChunkRetries int

	limiter *rate.Limiter
	log     *zap.Logger
}

func NewInstagram(baseURL string, log *zap.Logger) *Instagram {
	return &Instagram{
		BaseURL:      baseURL,
		Timeout:      30 * time.Second,
		ChunkSize:    4 << 20,
		ChunkRetries: 3,
		limiter:      rate.NewLimiter(rate.Limit(5), 10),
		log:          log,
	}
}

func (ig *Instagram) Platform() string { return "instagram" }

func (ig *Instagram) Publish(ctx context.Context, ch *model.Channel, item *model.ContentItem) (string, error) {
	client, err := httpClient(ch.ProxyURL, ig.Timeout)
	if err != nil {
		return "", newError(KindSessionOpenFailed, "build client: %v", err)
	}

	var containerID string
	if item.MediaURL == "" {
		containerID, err = ig.createCaptionContainer(ctx, client, ch, item)
	} else {
		containerID, err = ig.uploadMedia(ctx, client, ch, item)
	}
	if err != nil {
		return "", err
	}

	return ig.publishContainer(ctx, client, ch, containerID, item.Caption)
}

// uploadMedia runs the session/chunk/finalize sequence and returns the
// container id the platform assigned.
func (ig *Instagram) uploadMedia(ctx context.Context, client *http.Client, ch *model.Channel, item *model.ContentItem) (string, error) {
	sessionID, err := ig.openSession(ctx, client, ch, item)
	if err != nil {
		return "", stepError(KindSessionOpenFailed, err)
	}

	if err := ig.uploadChunks(ctx, client, ch, sessionID, item); err != nil {
		return "", err
	}

	return ig.finalize(ctx, client, ch, sessionID)
}

type sessionStatus struct {
	Offset      int64  `json:"offset"`
	State       string `json:"state"` // in_progress, finished
	ContainerID string `json:"container_id,omitempty"`
}

func (ig *Instagram) openSession(ctx context.Context, client *http.Client, ch *model.Channel, item *model.ContentItem) (string, error) {
	payload := map[string]any{
		"file_size":  item.MediaSize,
		"media_type": item.MediaType,
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	url := fmt.Sprintf("%s/v1/%s/uploads", ig.BaseURL, ch.DestinationID)
	if err := ig.doJSON(ctx, client, ch.AccessToken, http.MethodPost, url, payload, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("platform returned empty session id")
	}
	return out.SessionID, nil
}

func (ig *Instagram) uploadChunks(ctx context.Context, client *http.Client, ch *model.Channel, sessionID string, item *model.ContentItem) error {
	body, err := ig.fetchMedia(ctx, client, item.MediaURL)
	if err != nil {
		return stepError(KindChunkUploadFailed, err)
	}
	defer body.Close()

	buf := make([]byte, ig.ChunkSize)
	var offset int64
	for {
		n, rerr := io.ReadFull(body, buf)
		if n > 0 {
			if err := ig.sendChunk(ctx, client, ch, sessionID, buf[:n], offset); err != nil {
				return err
			}
			offset += int64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return nil
		}
		if rerr != nil {
			return stepError(KindChunkUploadFailed, fmt.Errorf("read media: %w", rerr))
		}
	}
}

// sendChunk uploads one chunk, retrying a bounded number of times. Before
// each retry it asks the session where the platform actually is: a chunk
// that landed despite the error response is not resent, and a partially
// received chunk resumes from the server offset.
func (ig *Instagram) sendChunk(ctx context.Context, client *http.Client, ch *model.Channel, sessionID string, chunk []byte, start int64) error {
	send := chunk
	sendStart := start
	end := start + int64(len(chunk))

	var lastErr error
	for attempt := 0; attempt <= ig.ChunkRetries; attempt++ {
		if attempt > 0 {
			st, perr := ig.sessionStatus(ctx, client, ch, sessionID)
			if perr == nil {
				if st.Offset >= end {
					return nil
				}
				if st.Offset > sendStart {
					send = chunk[st.Offset-start:]
					sendStart = st.Offset
				}
			}
			ig.log.Debug("retrying chunk",
				zap.String("session", sessionID),
				zap.Int64("offset", sendStart),
				zap.Int("attempt", attempt))
		}

		lastErr = ig.putChunk(ctx, client, ch, sessionID, send, sendStart)
		if lastErr == nil {
			return nil
		}
	}
	return stepError(KindChunkUploadFailed, fmt.Errorf("chunk at offset %d: %w", start, lastErr))
}

func (ig *Instagram) putChunk(ctx context.Context, client *http.Client, ch *model.Channel, sessionID string, chunk []byte, offset int64) error {
	if err := ig.limiter.Wait(ctx); err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v1/uploads/%s", ig.BaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(chunk))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+ch.AccessToken)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Upload-Offset", fmt.Sprintf("%d", offset))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return newError(KindCredentialInvalid, "chunk upload rejected: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chunk upload status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func (ig *Instagram) finalize(ctx context.Context, client *http.Client, ch *model.Channel, sessionID string) (string, error) {
	var out struct {
		ContainerID string `json:"container_id"`
	}
	url := fmt.Sprintf("%s/v1/uploads/%s/finalize", ig.BaseURL, sessionID)
	err := ig.doJSON(ctx, client, ch.AccessToken, http.MethodPost, url, map[string]any{}, &out)
	if err == nil {
		return out.ContainerID, nil
	}

	wrapped := stepError(KindFinalizeFailed, err)

	// A finalize timeout is ambiguous: the platform may have finalized
	// before the response was lost. Probe the session instead of creating
	// a duplicate container.
	if isTimeout(wrapped) {
		if st, perr := ig.sessionStatus(ctx, client, ch, sessionID); perr == nil &&
			st.State == "finished" && st.ContainerID != "" {
			ig.log.Info("finalize timed out but session already finished",
				zap.String("session", sessionID))
			return st.ContainerID, nil
		}
	}
	return "", wrapped
}

func (ig *Instagram) sessionStatus(ctx context.Context, client *http.Client, ch *model.Channel, sessionID string) (*sessionStatus, error) {
	var st sessionStatus
	url := fmt.Sprintf("%s/v1/uploads/%s", ig.BaseURL, sessionID)
	if err := ig.doJSON(ctx, client, ch.AccessToken, http.MethodGet, url, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (ig *Instagram) createCaptionContainer(ctx context.Context, client *http.Client, ch *model.Channel, item *model.ContentItem) (string, error) {
	var out struct {
		ContainerID string `json:"container_id"`
	}
	url := fmt.Sprintf("%s/v1/%s/media", ig.BaseURL, ch.DestinationID)
	if err := ig.doJSON(ctx, client, ch.AccessToken, http.MethodPost, url, map[string]any{"caption": item.Caption}, &out); err != nil {
		return "", stepError(KindSessionOpenFailed, err)
	}
	return out.ContainerID, nil
}

func (ig *Instagram) publishContainer(ctx context.Context, client *http.Client, ch *model.Channel, containerID, caption string) (string, error) {
	payload := map[string]any{
		"container_id": containerID,
		"caption":      caption,
	}
	var out struct {
		ID string `json:"id"`
	}
	url := fmt.Sprintf("%s/v1/%s/publish", ig.BaseURL, ch.DestinationID)
	if err := ig.doJSON(ctx, client, ch.AccessToken, http.MethodPost, url, payload, &out); err != nil {
		return "", stepError(KindPublishFailed, err)
	}
	if out.ID == "" {
		return "", newError(KindPublishFailed, "platform returned empty post id")
	}
	return out.ID, nil
}

func (ig *Instagram) fetchMedia(ctx context.Context, client *http.Client, mediaURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (ig *Instagram) doJSON(ctx context.Context, client *http.Client, token, method, url string, payload, out any) error {
	if err := ig.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return newError(KindCredentialInvalid, "%s: status %d", url, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// stepError keeps already-typed publish errors (credential, timeout) and
// stamps everything else with the failing step's kind.
func stepError(step Kind, err error) error {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe
	}
	return classify(step, err)
}
