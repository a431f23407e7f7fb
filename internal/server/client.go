package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// RequestTimeout bounds FetchStatus and RequestQuit.
var RequestTimeout = 2 * time.Second

// ErrStopWatching can be returned by a Watch callback to end the watch
// without an error.
var ErrStopWatching = errors.New("stop watching")

// FetchStatus queries a running stay-awake process at addr.
func FetchStatus(ctx context.Context, addr string) (*StatusResponse, error) {
	var status StatusResponse
	if err := call(ctx, http.MethodGet, addr, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RequestQuit asks a running stay-awake process at addr to stop its run.
func RequestQuit(ctx context.Context, addr string) (*QuitResponse, error) {
	var resp QuitResponse
	if err := call(ctx, http.MethodPost, addr, "/api/quit", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func call(ctx context.Context, method, addr, path string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s%s", addr, path)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return hostErrors.Wrap(hostErrors.CodeInternal, "failed to build request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return notRunning(addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var payload ErrorPayload
		if json.NewDecoder(resp.Body).Decode(&payload) == nil && payload.Code != "" {
			return hostErrors.New(payload.Code, payload.Message)
		}
		return hostErrors.New(hostErrors.CodeUnknown, fmt.Sprintf("unexpected status: %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Watch streams countdown events from a running process until the server
// closes the connection, ctx is done or fn returns an error. fn returning
// ErrStopWatching ends the watch cleanly.
func Watch(ctx context.Context, addr string, fn func(Envelope) error) error {
	url := fmt.Sprintf("ws://%s/ws", addr)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return notRunning(addr, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if err := fn(env); err != nil {
			if errors.Is(err, ErrStopWatching) {
				return nil
			}
			return err
		}
	}
}

func notRunning(addr string, err error) error {
	return hostErrors.Wrap(hostErrors.CodeServerNotRunning,
		fmt.Sprintf("stay-awake is not running at %s (or not reachable)", addr), err)
}
