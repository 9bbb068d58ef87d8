package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/vilmosmisota/sportapp/core/attendance"
)

var reasons = map[string]attendance.Reason{
	attendance.ReasonNotFound.String():         attendance.ReasonNotFound,
	attendance.ReasonNotEligible.String():      attendance.ReasonNotEligible,
	attendance.ReasonAlreadyCheckedIn.String(): attendance.ReasonAlreadyCheckedIn,
}

// apiError is a non-2xx answer of the API.
type apiError struct {
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *apiError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry in %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// apiClient talks to the attendance API on behalf of a logged in staff user.
type apiClient struct {
	baseURL string
	token   string
	client  *rest.Client
}

func newAPIClient(baseURL string, httpClient *http.Client) *apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/") + "/api",
		client:  &rest.Client{HTTPClient: httpClient},
	}
}

func (c *apiClient) do(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	res, err := c.client.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: c.baseURL + path,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return errors.Wrap(err, "calling "+path)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return decodeError(res)
	}
	return errors.Wrap(json.Unmarshal([]byte(res.Body), out), "decoding response")
}

// decodeError turns an error answer into a *attendance.Rejection when it carries a reason.
func decodeError(res *rest.Response) error {
	var payload struct {
		Error  interface{} `json:"error"`
		Reason string      `json:"reason"`
	}
	_ = json.Unmarshal([]byte(res.Body), &payload)

	if r, ok := reasons[payload.Reason]; ok {
		return &attendance.Rejection{Reason: r}
	}

	apiErr := &apiError{Code: res.StatusCode, Message: http.StatusText(res.StatusCode)}
	switch msg := payload.Error.(type) {
	case string:
		apiErr.Message = msg
	case map[string]interface{}: // validation errors
		for fld, e := range msg {
			apiErr.Message = fmt.Sprintf("%s: %v", fld, e)
			break
		}
	}
	if values := res.Headers["Retry-After"]; len(values) > 0 {
		if secs, err := strconv.Atoi(values[0]); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}

func (c *apiClient) Login(ctx context.Context, tenant, email, pwd string) error {
	var res struct {
		Token string `json:"token"`
	}
	in := map[string]string{"tenant": tenant, "email": email, "password": pwd}
	if err := c.do(ctx, "/auth/login", in, &res); err != nil {
		return err
	}
	c.token = res.Token
	return nil
}

func (c *apiClient) Lookup(ctx context.Context, sessionID, pin string) (attendance.Match, error) {
	var match attendance.Match
	err := c.do(ctx, "/kiosk/sessions/"+sessionID+"/lookup", map[string]string{"pin": pin}, &match)
	return match, err
}

func (c *apiClient) CheckIn(ctx context.Context, sessionID, pin string) (attendance.Result, error) {
	var res attendance.Result
	err := c.do(ctx, "/kiosk/sessions/"+sessionID+"/checkin", map[string]string{"pin": pin}, &res)
	return res, err
}
