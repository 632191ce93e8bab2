// Package renderer implements render.Backend against the cloud
// rendering service's HTTP API.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/render"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// startResponse is the service's acknowledgment of a render request.
type startResponse struct {
	RenderID string `json:"render_id"`
}

// progressResponse mirrors the service's progress payload.
type progressResponse struct {
	Done                  bool    `json:"done"`
	OverallProgress       float64 `json:"overall_progress"`
	FatalErrorEncountered bool    `json:"fatal_error_encountered"`
	OutputFile            string  `json:"output_file,omitempty"`
	ErrorMessage          string  `json:"error_message,omitempty"`
}

func (c *Client) StartRender(ctx context.Context, params json.RawMessage) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(params))
	if err != nil {
		return "", &render.SubmissionError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", &render.SubmissionError{Message: "renderer unreachable: " + err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &render.SubmissionError{Message: fmt.Sprintf("renderer http %d: %s", res.StatusCode, errorMessage(res))}
	}

	var out startResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", &render.SubmissionError{Message: "invalid renderer response: " + err.Error()}
	}
	if out.RenderID == "" {
		return "", &render.SubmissionError{Message: "renderer returned no render id"}
	}
	return out.RenderID, nil
}

func (c *Client) PollProgress(ctx context.Context, handle string) (render.Progress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/progress/"+handle, nil)
	if err != nil {
		return render.Progress{}, &render.TransportError{Op: "renderer.progress", Err: err}
	}

	res, err := c.client.Do(req)
	if err != nil {
		return render.Progress{}, &render.TransportError{Op: "renderer.progress", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return render.Progress{}, &render.TransportError{
			Op:  "renderer.progress",
			Err: fmt.Errorf("renderer http %d: %s", res.StatusCode, errorMessage(res)),
		}
	}

	var out progressResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return render.Progress{}, &render.TransportError{Op: "renderer.progress", Err: err}
	}

	return render.Progress{
		Done:             out.Done,
		FractionComplete: out.OverallProgress,
		FatalError:       out.FatalErrorEncountered,
		ResultLocation:   out.OutputFile,
		ErrorMessage:     out.ErrorMessage,
	}, nil
}

// errorMessage extracts the service's error text, falling back to the
// status line.
func errorMessage(res *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))

	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}

	text := strings.TrimSpace(string(body))
	if text != "" {
		return text
	}
	return "no error detail"
}
