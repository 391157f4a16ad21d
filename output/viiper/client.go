package viiper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// APIError is a problem+json error returned by the server.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e APIError) Error() string {
	if e.Status == 0 && e.Title == "" {
		return "unknown error"
	}
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
}

type busListResponse struct {
	Buses []uint32 `json:"buses"`
}

type busResponse struct {
	BusID uint32 `json:"busId"`
}

// Device describes a virtual device attached to a bus.
type Device struct {
	BusID uint32 `json:"busId"`
	DevID string `json:"devId"`
	Vid   string `json:"vid"`
	Pid   string `json:"pid"`
	Type  string `json:"type"`
}

type deviceCreateRequest struct {
	Type *string `json:"type"`
}

// Client is a VIIPER management API client.
type Client struct{ transport *Transport }

// NewClient creates a client using t.
func NewClient(t *Transport) *Client { return &Client{transport: t} }

// BusList returns the ids of all virtual buses.
func (c *Client) BusList(ctx context.Context) ([]uint32, error) {
	raw, err := c.transport.Do(ctx, "bus/list", nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := parse[busListResponse](raw)
	if err != nil {
		return nil, err
	}
	return resp.Buses, nil
}

// BusCreate creates bus busID.
func (c *Client) BusCreate(ctx context.Context, busID uint32) (uint32, error) {
	raw, err := c.transport.Do(ctx, "bus/create", strconv.FormatUint(uint64(busID), 10), nil)
	if err != nil {
		return 0, err
	}
	resp, err := parse[busResponse](raw)
	if err != nil {
		return 0, err
	}
	return resp.BusID, nil
}

// BusRemove removes bus busID with all its devices.
func (c *Client) BusRemove(ctx context.Context, busID uint32) error {
	raw, err := c.transport.Do(ctx, "bus/remove", strconv.FormatUint(uint64(busID), 10), nil)
	if err != nil {
		return err
	}
	_, err = parse[busResponse](raw)
	return err
}

// DeviceAdd attaches a device of devType to bus busID.
func (c *Client) DeviceAdd(ctx context.Context, busID uint32, devType string) (*Device, error) {
	params := map[string]string{"id": strconv.FormatUint(uint64(busID), 10)}
	raw, err := c.transport.Do(ctx, "bus/{id}/add", deviceCreateRequest{Type: &devType}, params)
	if err != nil {
		return nil, err
	}
	return parse[Device](raw)
}

// DeviceRemove detaches device devID from bus busID.
func (c *Client) DeviceRemove(ctx context.Context, busID uint32, devID string) error {
	params := map[string]string{"id": strconv.FormatUint(uint64(busID), 10)}
	raw, err := c.transport.Do(ctx, "bus/{id}/remove", devID, params)
	if err != nil {
		return err
	}
	_, err = parse[Device](raw)
	return err
}

func parse[T any](data string) (*T, error) {
	if data == "" {
		return nil, errors.New("empty response")
	}
	var problem APIError
	if err := json.Unmarshal([]byte(data), &problem); err == nil && (problem.Status != 0 || problem.Title != "") {
		return nil, &problem
	}
	var out T
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &out, nil
}
