package api

import (
	"context"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/panelfs/panelfs/internal/connection"
	"github.com/panelfs/panelfs/internal/constants"
	"github.com/panelfs/panelfs/internal/models"
)

// GetAccount validates a credential against the panel.
// GET <panel>/api/client/account
func (c *Client) GetAccount(ctx context.Context, panelURL, authHeader string) (*models.Account, error) {
	resp, err := c.doRequest(ctx, request{
		op:     "account",
		method: nethttp.MethodGet,
		url:    strings.TrimRight(panelURL, "/") + constants.ClientAPIPath + "/account",
		auth:   authHeader,
	})
	if err != nil {
		return nil, err
	}

	var account models.AccountResponse
	if err := decodeJSON(resp, &account, "account"); err != nil {
		return nil, err
	}
	return &account.Attributes, nil
}

// ListServersPage fetches one page of the servers visible to the key.
// GET <panel>/api/client?page=<n>
func (c *Client) ListServersPage(ctx context.Context, panelURL, authHeader string, page int) ([]models.Server, models.Pagination, error) {
	resp, err := c.doRequest(ctx, request{
		op:     "servers",
		method: nethttp.MethodGet,
		url:    fmt.Sprintf("%s%s?page=%d", strings.TrimRight(panelURL, "/"), constants.ClientAPIPath, page),
		auth:   authHeader,
	})
	if err != nil {
		return nil, models.Pagination{}, err
	}

	var list models.ServerListResponse
	if err := decodeJSON(resp, &list, "server list"); err != nil {
		return nil, models.Pagination{}, err
	}
	servers := make([]models.Server, 0, len(list.Data))
	for _, d := range list.Data {
		servers = append(servers, d.Attributes)
	}
	return servers, list.Meta.Pagination, nil
}

// ListServers follows pagination and returns every server, up to
// ServerListMaxPages pages.
func (c *Client) ListServers(ctx context.Context, panelURL, authHeader string) ([]models.Server, error) {
	var all []models.Server
	for page := 1; page <= constants.ServerListMaxPages; page++ {
		servers, p, err := c.ListServersPage(ctx, panelURL, authHeader, page)
		if err != nil {
			return nil, err
		}
		all = append(all, servers...)
		if p.TotalPages <= page || len(servers) == 0 {
			break
		}
	}
	return all, nil
}

// GetResources fetches live power state and usage.
// GET <server>/resources
func (c *Client) GetResources(ctx context.Context, s connection.Snapshot) (*models.ServerResources, error) {
	resp, err := c.doRequest(ctx, request{
		op:     "resources",
		method: nethttp.MethodGet,
		url:    s.ServerRootURL() + "/resources",
		auth:   s.AuthHeader,
	})
	if err != nil {
		return nil, err
	}

	var res models.ResourcesResponse
	if err := decodeJSON(resp, &res, "resources"); err != nil {
		return nil, err
	}
	return &res.Attributes, nil
}

// SendPowerSignal posts a power signal. Only 204 counts as success; any
// other 2xx is reported as an unexpected status.
// POST <server>/power {signal}
func (c *Client) SendPowerSignal(ctx context.Context, s connection.Snapshot, signal models.PowerSignal) error {
	body, err := jsonBody(models.PowerRequest{Signal: signal})
	if err != nil {
		return err
	}
	resp, err := c.doRequest(ctx, request{
		op:          "power",
		method:      nethttp.MethodPost,
		url:         s.ServerRootURL() + "/power",
		auth:        s.AuthHeader,
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return err
	}
	defer discard(resp)

	if resp.StatusCode != nethttp.StatusNoContent {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
