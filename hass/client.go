// Package hass talks to the Home Assistant REST API for todo entities.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/todomagic/task"
)

// Client implements task.Host and task.StateReader against a Home Assistant
// instance using a long-lived access token.
type Client struct {
	BaseURL    string
	Token      string
	httpClient *http.Client
}

// New returns a Client for baseURL. A zero timeout uses 30 seconds.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type stateResponse struct {
	EntityID string `json:"entity_id"`
	State    string `json:"state"`
}

// State returns the entity's state string. Todo entities report the number
// of items still to do.
func (c *Client) State(ctx context.Context, entity string) (string, error) {
	var st stateResponse
	if err := c.do(ctx, http.MethodGet, "/api/states/"+entity, nil, &st); err != nil {
		return "", fmt.Errorf("get state %s: %w", entity, err)
	}
	return st.State, nil
}

type itemsResponse struct {
	ServiceResponse map[string]struct {
		Items []task.Item `json:"items"`
	} `json:"service_response"`
}

// allStatuses asks get_items for completed items too; without a status
// filter Home Assistant returns only the open ones.
var allStatuses = []task.Status{task.StatusNeedsAction, task.StatusCompleted}

// GetItems calls todo.get_items with a service response.
func (c *Client) GetItems(ctx context.Context, entity string) ([]task.Item, error) {
	body := map[string]any{"entity_id": entity, "status": allStatuses}
	var resp itemsResponse
	if err := c.do(ctx, http.MethodPost, "/api/services/todo/get_items?return_response", body, &resp); err != nil {
		return nil, fmt.Errorf("get items %s: %w", entity, err)
	}
	return resp.ServiceResponse[entity].Items, nil
}

// AddItem calls todo.add_item.
func (c *Client) AddItem(ctx context.Context, entity string, req task.AddRequest) error {
	body := map[string]any{"entity_id": entity, "item": req.Summary}
	setDue(body, req.Due)
	if err := c.call(ctx, "add_item", body); err != nil {
		return fmt.Errorf("add item to %s: %w", entity, err)
	}
	return nil
}

// UpdateItem calls todo.update_item.
func (c *Client) UpdateItem(ctx context.Context, entity string, req task.UpdateRequest) error {
	body := map[string]any{"entity_id": entity, "item": req.Match}
	if req.Rename != nil {
		body["rename"] = *req.Rename
	}
	if req.Status != nil {
		body["status"] = string(*req.Status)
	}
	setDue(body, req.Due)
	if err := c.call(ctx, "update_item", body); err != nil {
		return fmt.Errorf("update item in %s: %w", entity, err)
	}
	return nil
}

// RemoveItem calls todo.remove_item.
func (c *Client) RemoveItem(ctx context.Context, entity, match string) error {
	body := map[string]any{"entity_id": entity, "item": match}
	if err := c.call(ctx, "remove_item", body); err != nil {
		return fmt.Errorf("remove item from %s: %w", entity, err)
	}
	return nil
}

// RemoveCompleted calls todo.remove_completed_items.
func (c *Client) RemoveCompleted(ctx context.Context, entity string) error {
	if err := c.call(ctx, "remove_completed_items", map[string]any{"entity_id": entity}); err != nil {
		return fmt.Errorf("remove completed from %s: %w", entity, err)
	}
	return nil
}

// MoveItem is only offered over the websocket API, so the REST client
// reports it as unsupported.
func (c *Client) MoveItem(_ context.Context, entity, uid, _ string) error {
	return fmt.Errorf("move %s in %s: %w", uid, entity, task.ErrUnsupported)
}

// setDue writes exactly one of due_date or due_datetime; the host rejects
// calls that carry both.
func setDue(body map[string]any, due *task.Due) {
	if due == nil {
		return
	}
	if due.HasTime {
		body["due_datetime"] = due.At.Format("2006-01-02 15:04:05")
		return
	}
	body["due_date"] = due.At.Format(task.DateLayout)
}

func (c *Client) call(ctx context.Context, service string, body any) error {
	return c.do(ctx, http.MethodPost, "/api/services/todo/"+service, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		text := strings.TrimSpace(string(msg))
		if strings.Contains(strings.ToLower(text), "not support") {
			return fmt.Errorf("%s %s: %d %s: %w", method, path, resp.StatusCode, text, task.ErrUnsupported)
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, text)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
