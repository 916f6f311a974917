package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/postpilot/postpilot-backend/internal/model"
)

// Mastodon is the simple end of the adapter spectrum: one optional
// single-shot media upload, then one status post. Structurally identical
// to the resumable adapters from the runner's point of view.
type Mastodon struct {
	Timeout time.Duration

	limiter *rate.Limiter
	log     *zap.Logger
}

func NewMastodon(log *zap.Logger) *Mastodon {
	return &Mastodon{
		Timeout: 30 * time.Second,
		limiter: rate.NewLimiter(rate.Limit(2), 5),
		log:     log,
	}
}

func (m *Mastodon) Platform() string { return "mastodon" }

// Publish posts one status to the channel's instance. DestinationID is the
// instance base URL for this platform.
func (m *Mastodon) Publish(ctx context.Context, ch *model.Channel, item *model.ContentItem) (string, error) {
	client, err := httpClient(ch.ProxyURL, m.Timeout)
	if err != nil {
		return "", newError(KindPublishFailed, "build client: %v", err)
	}

	var mediaIDs []string
	if item.MediaURL != "" {
		id, err := m.uploadMedia(ctx, client, ch, item)
		if err != nil {
			return "", err
		}
		mediaIDs = append(mediaIDs, id)
	}

	payload := map[string]any{"status": item.Caption}
	if len(mediaIDs) > 0 {
		payload["media_ids"] = mediaIDs
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := m.doJSON(ctx, client, ch, ch.DestinationID+"/api/v1/statuses", payload, &out); err != nil {
		return "", stepError(KindPublishFailed, err)
	}
	if out.ID == "" {
		return "", newError(KindPublishFailed, "instance returned empty status id")
	}
	return out.ID, nil
}

func (m *Mastodon) uploadMedia(ctx context.Context, client *http.Client, ch *model.Channel, item *model.ContentItem) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", stepError(KindChunkUploadFailed, err)
	}

	src, err := http.NewRequestWithContext(ctx, http.MethodGet, item.MediaURL, nil)
	if err != nil {
		return "", stepError(KindChunkUploadFailed, err)
	}
	resp, err := client.Do(src)
	if err != nil {
		return "", stepError(KindChunkUploadFailed, fmt.Errorf("fetch media: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", newError(KindChunkUploadFailed, "fetch media: status %d", resp.StatusCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.DestinationID+"/api/v2/media", resp.Body)
	if err != nil {
		return "", stepError(KindChunkUploadFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+ch.AccessToken)
	req.Header.Set("Content-Type", item.MediaType)

	up, err := client.Do(req)
	if err != nil {
		return "", stepError(KindChunkUploadFailed, err)
	}
	defer up.Body.Close()
	if up.StatusCode == http.StatusUnauthorized || up.StatusCode == http.StatusForbidden {
		return "", newError(KindCredentialInvalid, "media upload rejected: status %d", up.StatusCode)
	}
	if up.StatusCode >= 400 {
		return "", newError(KindChunkUploadFailed, "media upload status %d", up.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(up.Body).Decode(&out); err != nil {
		return "", stepError(KindChunkUploadFailed, err)
	}
	return out.ID, nil
}

func (m *Mastodon) doJSON(ctx context.Context, client *http.Client, ch *model.Channel, url string, payload, out any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+ch.AccessToken)
	req.Header.Set("Content-Type", "application/json")

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
	return json.NewDecoder(resp.Body).Decode(out)
}
