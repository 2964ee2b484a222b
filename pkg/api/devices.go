package api

import "context"

// ListDevices returns all connected devices.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var out []Device
	if err := c.get(ctx, "/devices", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateDevice checks that a device target is reachable before a run.
func (c *Client) ValidateDevice(ctx context.Context, req DeviceValidationRequest) (*DeviceValidationResponse, error) {
	var out DeviceValidationResponse
	if err := c.post(ctx, "/devices/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
