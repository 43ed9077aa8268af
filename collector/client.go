// Package collector uploads a walk's telemetry to a babyapi collector service
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/calvinmclean/babyapi"
	"github.com/google/uuid"

	"github.com/calvinmclean/echoguide"
	"github.com/calvinmclean/echoguide/config"
	"github.com/calvinmclean/echoguide/internal/monitoring"
	"github.com/calvinmclean/echoguide/telemetry"
)

const requestTimeout = 5 * time.Second

// Session is a single recorded walk
type Session struct {
	Name      string      `json:"name"`
	Device    string      `json:"device"`
	Date      time.Time   `json:"date"`
	Config    config.File `json:"config"`
	StartTime time.Time   `json:"start_time"`
}

type session struct {
	// include NilResource so we don't implement Render/Bind which are not needed
	*babyapi.NilResource
	ID string `json:"id"`
	Session
}

func (s session) GetID() string {
	return s.ID
}

// Client is a telemetry.Sink that posts to the current session. Requests block, so wrap it with
// telemetry.Buffered for live use.
type Client struct {
	client    *babyapi.Client[*session]
	sessionID string
	// device identifies this host across sessions
	device string
}

var _ telemetry.Sink = (*Client)(nil)

func NewClient(addr string) *Client {
	client := babyapi.NewClient[*session](addr, "/sessions")
	return &Client{client: client, device: uuid.NewString()}
}

// CreateSession starts a new session recording the active config
func (c *Client) CreateSession(ctx context.Context, name string, cfg config.DeviceConfig) (string, error) {
	resp, err := c.client.Post(ctx, &session{
		Session: Session{
			Name:      name,
			Device:    c.device,
			Date:      time.Now(),
			Config:    config.ToFile(cfg),
			StartTime: time.Now(),
		},
	})
	if err != nil {
		return "", err
	}

	c.sessionID = resp.Data.GetID()

	return resp.Data.GetID(), nil
}

func (c *Client) AddSnapshot(ctx context.Context, s echoguide.Snapshot) error {
	url, _ := c.client.URL(c.sessionID)
	url += "/snapshots"

	return c.makeRequest(ctx, url, telemetry.NewSnapshotMessage(s))
}

func (c *Client) AddFault(ctx context.Context, f echoguide.Fault) error {
	url, _ := c.client.URL(c.sessionID)
	url += "/faults"

	return c.makeRequest(ctx, url, telemetry.NewFaultMessage(f))
}

func (c *Client) Done(ctx context.Context) error {
	url, _ := c.client.URL(c.sessionID)
	url += "/done"

	return c.makeRequest(ctx, url, map[string]any{"time": time.Now()})
}

// PublishSnapshot implements telemetry.Sink.
func (c *Client) PublishSnapshot(s echoguide.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := c.AddSnapshot(ctx, s); err != nil {
		monitoring.Logf("error uploading snapshot: %v", err)
	}
}

// PublishFault implements telemetry.Sink.
func (c *Client) PublishFault(f echoguide.Fault) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := c.AddFault(ctx, f); err != nil {
		monitoring.Logf("error uploading fault: %v", err)
	}
}

func (c *Client) makeRequest(ctx context.Context, url string, body any) error {
	if c.sessionID == "" {
		return fmt.Errorf("no session: call CreateSession first")
	}

	var bodyReader io.Reader = http.NoBody
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding body: %w", err)
		}

		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bodyReader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Add("Content-Type", "application/json")

	resp, err := c.client.MakeGenericRequest(req, nil)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	if resp.Response.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status code: %d, response: %v", resp.Response.StatusCode, resp.Body)
	}

	return nil
}
