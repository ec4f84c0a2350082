package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPClient talks to the scheduling application's internal API and
// implements both collaborator contracts. Authentication is a static
// service token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

type HTTPClientConfig struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
}

func NewHTTPClient(logger *slog.Logger, cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		token:   cfg.ServiceToken,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "collab_client")),
	}
}

var (
	_ AccessService   = (*HTTPClient)(nil)
	_ ScheduleService = (*HTTPClient)(nil)
)

// --- AccessService ---

func (c *HTTPClient) GetUserAccessibleGroupIDs(ctx context.Context, userID string) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/internal/users/%s/groups", url.PathEscape(userID)), nil)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, v := range gjson.GetBytes(body, "groupIds").Array() {
		ids = append(ids, v.String())
	}
	return ids, nil
}

func (c *HTTPClient) CanUserAccessGroup(ctx context.Context, userID, groupID string) (bool, error) {
	path := fmt.Sprintf("/internal/users/%s/groups/%s/access", url.PathEscape(userID), url.PathEscape(groupID))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	return gjson.GetBytes(body, "allowed").Bool(), nil
}

func (c *HTTPClient) CanUserAccessScheduleSlot(ctx context.Context, userID, slotID string) (bool, error) {
	path := fmt.Sprintf("/internal/users/%s/schedule-slots/%s/access", url.PathEscape(userID), url.PathEscape(slotID))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	return gjson.GetBytes(body, "allowed").Bool(), nil
}

// --- ScheduleService ---

func (c *HTTPClient) AssignVehicleToSlot(ctx context.Context, slotID, vehicleID, userID string) error {
	path := fmt.Sprintf("/internal/schedule-slots/%s/vehicles", url.PathEscape(slotID))
	_, err := c.do(ctx, http.MethodPost, path, map[string]string{
		"vehicleId": vehicleID,
		"userId":    userID,
	})
	return err
}

func (c *HTTPClient) RemoveVehicleFromSlot(ctx context.Context, slotID, vehicleID, userID string) error {
	path := fmt.Sprintf("/internal/schedule-slots/%s/vehicles/%s?userId=%s",
		url.PathEscape(slotID), url.PathEscape(vehicleID), url.QueryEscape(userID))
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *HTTPClient) UpdateVehicleDriver(ctx context.Context, slotID, vehicleID, driverID, userID string) error {
	path := fmt.Sprintf("/internal/schedule-slots/%s/vehicles/%s/driver",
		url.PathEscape(slotID), url.PathEscape(vehicleID))
	_, err := c.do(ctx, http.MethodPatch, path, map[string]string{
		"driverId": driverID,
		"userId":   userID,
	})
	return err
}

func (c *HTTPClient) GetScheduleSlotDetails(ctx context.Context, slotID string) (*ScheduleSlot, error) {
	body, err := c.do(ctx, http.MethodGet, "/internal/schedule-slots/"+url.PathEscape(slotID), nil)
	if err != nil {
		// A missing slot is a nil result, not an error.
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}

	var slot ScheduleSlot
	if err := json.Unmarshal(body, &slot); err != nil {
		return nil, fmt.Errorf("failed to decode schedule slot %s: %w", slotID, err)
	}
	for _, cj := range gjson.GetBytes(body, "conflicts").Array() {
		conflict := Conflict{
			ScheduleSlotID: slot.ID,
			Type:           cj.Get("type").String(),
			Message:        cj.Get("message").String(),
		}
		for _, u := range cj.Get("affectedUserIds").Array() {
			conflict.AffectedUserIDs = append(conflict.AffectedUserIDs, u.String())
		}
		slot.Conflicts = append(slot.Conflicts, conflict)
	}
	return &slot, nil
}

// --- plumbing ---

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collaborator request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read collaborator response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}
	return nil, c.asTypedError(resp.StatusCode, respBody)
}

// asTypedError maps a collaborator failure response onto the typed error
// hierarchy so the notification layer can switch on tags.
func (c *HTTPClient) asTypedError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = fmt.Sprintf("collaborator returned status %d", status)
	}
	code := gjson.GetBytes(body, "code").String()

	switch {
	case status == http.StatusNotFound:
		return &NotFoundError{Msg: msg}
	case status == http.StatusConflict && code == "capacity_exceeded":
		return &CapacityError{Msg: msg}
	case status == http.StatusConflict:
		return &DuplicateError{Msg: msg}
	case code == "capacity_exceeded":
		return &CapacityError{Msg: msg}
	default:
		return fmt.Errorf("collaborator error (status %d): %s", status, msg)
	}
}
