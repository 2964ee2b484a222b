package api

import (
	"context"
	"fmt"
	"net/url"
)

// ListProjects returns all active projects.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := c.get(ctx, "/projects", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProject fetches a single project by id.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	var out Project
	if err := c.get(ctx, "/projects/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateProject registers a new project.
func (c *Client) CreateProject(ctx context.Context, req ProjectCreate) (*Project, error) {
	var out Project
	if err := c.post(ctx, "/projects", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProject applies a partial update to a project.
func (c *Client) UpdateProject(ctx context.Context, id string, req ProjectUpdate) (*Project, error) {
	var out Project
	if err := c.put(ctx, "/projects/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.delete(ctx, "/projects/"+url.PathEscape(id))
}

// IndexProject triggers (re)indexing of the project's script library so the
// AI engine can retrieve its methods during generation.
func (c *Client) IndexProject(ctx context.Context, id string) error {
	return c.post(ctx, fmt.Sprintf("/projects/%s/index", url.PathEscape(id)), nil, nil)
}
