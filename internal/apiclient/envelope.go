package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"storefront/internal/model"
)

// Envelope is the backend's usual response shape.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Call sends req and decodes the whole body into out (which may be nil).
func (c *Client) Call(ctx context.Context, req *Request, out any) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := resp.Decode(out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// CallData sends req, requires success=true in the envelope, and decodes
// the data member into out (which may be nil).
func (c *Client) CallData(ctx context.Context, req *Request, out any) (*Envelope, error) {
	var env Envelope
	if _, err := c.Call(ctx, req, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return &env, model.NewStatusError(http.StatusUnprocessableEntity, withDefault(env.Message, "request was not successful"))
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, fmt.Errorf("decoding data: %w", err)
		}
	}
	return &env, nil
}

// Get is shorthand for a GET through CallData.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	_, err := c.CallData(ctx, &Request{Method: http.MethodGet, Path: path}, out)
	return err
}

// Post is shorthand for a POST through CallData.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	_, err := c.CallData(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
	return err
}

// Put is shorthand for a PUT through CallData.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	_, err := c.CallData(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
	return err
}

// Delete is shorthand for a DELETE through CallData.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	_, err := c.CallData(ctx, &Request{Method: http.MethodDelete, Path: path}, out)
	return err
}
