package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/logger"
	"github.com/linkstash/linkstash/internal/utils"
)

// ownerHeader mirrors the identity header the server's middleware expects.
const ownerHeader = "X-Stash-Owner"

// Remote is the surface of the server a device talks to. Split out so the
// capture and reconciliation logic is testable against a fake.
type Remote interface {
	// CreateLink saves a link. When the server already holds the canonical
	// URL, the existing row is returned with created=false.
	CreateLink(ctx context.Context, link *domain.Link) (saved *domain.Link, created bool, err error)
	UpdateLink(ctx context.Context, id string, patch domain.LinkPatch) (*domain.Link, error)
	DeleteLink(ctx context.Context, id string) error
	ListLinks(ctx context.Context) ([]*domain.Link, error)
	EnrichLink(ctx context.Context, id string) (*domain.Link, error)
}

// API is the HTTP implementation of Remote.
type API struct {
	baseURL string
	owner   string
	http    *http.Client
	log     logger.Logger
}

func NewAPI(baseURL, owner string, timeout time.Duration, log logger.Logger) *API {
	return &API{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		owner:   owner,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type createPayload struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	SpaceID *string `json:"spaceId,omitempty"`
}

type conflictPayload struct {
	Error string       `json:"error"`
	Link  *domain.Link `json:"link"`
}

func (a *API) CreateLink(ctx context.Context, link *domain.Link) (*domain.Link, bool, error) {
	body := createPayload{
		URL:     link.RawURL,
		SpaceID: link.SpaceID,
	}

	resp, err := a.do(ctx, http.MethodPost, "/api/links", body)
	if err != nil {
		return nil, false, err
	}
	defer utils.Close(resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		var saved domain.Link
		if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
			return nil, false, fmt.Errorf("failed to decode created link: %w", err)
		}
		return &saved, true, nil

	case http.StatusConflict:
		// Already saved. The server sends the winning row; adopt it.
		var conflict conflictPayload
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err != nil {
			return nil, false, fmt.Errorf("failed to decode conflict response: %w", err)
		}
		return conflict.Link, false, nil

	default:
		return nil, false, a.statusError(resp)
	}
}

func (a *API) UpdateLink(ctx context.Context, id string, patch domain.LinkPatch) (*domain.Link, error) {
	resp, err := a.do(ctx, http.MethodPatch, "/api/links/"+id, patch)
	if err != nil {
		return nil, err
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, a.statusError(resp)
	}

	var updated domain.Link
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return nil, fmt.Errorf("failed to decode updated link: %w", err)
	}
	return &updated, nil
}

func (a *API) DeleteLink(ctx context.Context, id string) error {
	resp, err := a.do(ctx, http.MethodDelete, "/api/links/"+id, nil)
	if err != nil {
		return err
	}
	defer utils.Close(resp.Body)

	// Deleting an already-deleted link is a success from the device's view.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return a.statusError(resp)
	}
	return nil
}

func (a *API) ListLinks(ctx context.Context) ([]*domain.Link, error) {
	resp, err := a.do(ctx, http.MethodGet, "/api/links", nil)
	if err != nil {
		return nil, err
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, a.statusError(resp)
	}

	var links []*domain.Link
	if err := json.NewDecoder(resp.Body).Decode(&links); err != nil {
		return nil, fmt.Errorf("failed to decode link list: %w", err)
	}
	return links, nil
}

func (a *API) EnrichLink(ctx context.Context, id string) (*domain.Link, error) {
	resp, err := a.do(ctx, http.MethodPost, "/api/links/"+id+"/enrich", nil)
	if err != nil {
		return nil, err
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, a.statusError(resp)
	}

	var enriched domain.Link
	if err := json.NewDecoder(resp.Body).Decode(&enriched); err != nil {
		return nil, fmt.Errorf("failed to decode enriched link: %w", err)
	}
	return &enriched, nil
}

// Subscribe opens the change stream websocket and decodes events until ctx
// is canceled or the connection drops, at which point the channel closes and
// the caller should re-pull and resubscribe.
func (a *API) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	wsURL := strings.Replace(a.baseURL, "http", "ws", 1) + "/api/stream"

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{ownerHeader: []string{a.owner}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	events := make(chan domain.ChangeEvent, 32)
	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for {
			var ev domain.ChangeEvent
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				if ctx.Err() == nil {
					a.log.Warn("change stream closed", logger.Error(err))
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (a *API) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(ownerHeader, a.owner)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return a.http.Do(req)
}

// statusError renders a non-success response as an error whose text carries
// both the status code and the server's message, so the classifier can map
// it onto the taxonomy.
func (a *API) statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
