package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/models"
	"github.com/rs/zerolog/log"
)

// listPageSize is the panel's maximum per_page.
const listPageSize = 100

// PanelError is any non-2xx response from the panel.
type PanelError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *PanelError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("panel %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("panel %s %s returned status %d", e.Method, e.Path, e.Status)
}

// PanelClient calls the Pterodactyl application API
type PanelClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewPanelClient creates a new panel client. Every call is bounded by timeout.
func NewPanelClient(baseURL, apiKey string, timeout time.Duration) *PanelClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PanelClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateUser creates a panel account
func (c *PanelClient) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.PanelUser, error) {
	log.Debug().Str("username", req.Username).Msg("panel: creating user")

	var result models.Item[models.PanelUser]
	if err := c.do(ctx, http.MethodPost, "/api/application/users", req, &result); err != nil {
		return nil, err
	}

	log.Info().Int("user_id", result.Attributes.ID).Str("username", result.Attributes.Username).Msg("panel: user created")
	return &result.Attributes, nil
}

// DeleteUser removes a panel account
func (c *PanelClient) DeleteUser(ctx context.Context, userID int) error {
	log.Info().Int("user_id", userID).Msg("panel: deleting user")
	return c.do(ctx, http.MethodDelete, "/api/application/users/"+strconv.Itoa(userID), nil, nil)
}

// ListNodes lists every node known to the panel
func (c *PanelClient) ListNodes(ctx context.Context) ([]models.Node, error) {
	return listAll[models.Node](ctx, c, "/api/application/nodes")
}

// ListAllocations lists the network allocations of a node
func (c *PanelClient) ListAllocations(ctx context.Context, nodeID int) ([]models.Allocation, error) {
	return listAll[models.Allocation](ctx, c, "/api/application/nodes/"+strconv.Itoa(nodeID)+"/allocations")
}

// listAll walks every page of a list endpoint.
func listAll[T any](ctx context.Context, c *PanelClient, path string) ([]T, error) {
	var out []T
	for page := 1; ; page++ {
		var result models.List[T]
		url := path + "?per_page=" + strconv.Itoa(listPageSize) + "&page=" + strconv.Itoa(page)
		if err := c.do(ctx, http.MethodGet, url, nil, &result); err != nil {
			return nil, err
		}
		out = append(out, result.Items()...)

		p := result.Meta.Pagination
		if len(result.Data) == 0 || p.CurrentPage >= p.TotalPages {
			return out, nil
		}
	}
}

// CreateServer creates a server on the given allocation
func (c *PanelClient) CreateServer(ctx context.Context, req *models.CreateServerRequest) (*models.PanelServer, error) {
	log.Debug().Str("name", req.Name).Int("user", req.User).Int("allocation", req.Allocation.Default).Msg("panel: creating server")

	var result models.Item[models.PanelServer]
	if err := c.do(ctx, http.MethodPost, "/api/application/servers", req, &result); err != nil {
		return nil, err
	}

	log.Info().Int("server_id", result.Attributes.ID).Str("name", result.Attributes.Name).Msg("panel: server created")
	return &result.Attributes, nil
}

func (c *PanelClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := &PanelError{Method: method, Path: path, Status: resp.StatusCode}
		var errBody models.PanelErrorResponse
		if json.Unmarshal(respBody, &errBody) == nil && len(errBody.Errors) > 0 {
			perr.Detail = errBody.Errors[0].Detail
		}
		return perr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w (body: %s)", err, string(respBody))
	}

	return nil
}
