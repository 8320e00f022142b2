// Package registry looks up student records in a Moodle-compatible
// academic registry through its web-services REST API.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/opencertify/diploma-engine/internal/domain"
)

const (
	defaultLookupTimeout = 30 * time.Second
	restEndpoint         = "webservice/rest/server.php"

	fnSearchUsers  = "core_user_get_users"
	fnUsersByField = "core_user_get_users_by_field"
	fnUserCourses  = "core_enrol_get_users_courses"
	fnSiteInfo     = "core_webservice_get_site_info"
)

// Client calls the registry. One lookup call per batch item; retries are
// the caller's business.
type Client struct {
	client  *resty.Client
	baseURL string
	token   string
}

func NewClient(baseURL, token string) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultLookupTimeout)
	client.SetRetryCount(0)

	return NewClientWithRESTClient(baseURL, token, client)
}

func NewClientWithRESTClient(baseURL, token string, client *resty.Client) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("registry base URL is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid registry base URL: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultLookupTimeout)
	}
	client.SetRetryCount(0)

	if !strings.HasSuffix(trimmed, "/") {
		trimmed += "/"
	}

	return &Client{
		client:  client,
		baseURL: trimmed + restEndpoint,
		token:   token,
	}, nil
}

type wsUser struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	Deleted   bool   `json:"deleted"`
	Suspended bool   `json:"suspended"`
}

type wsUsersResponse struct {
	Users []wsUser `json:"users"`
}

type wsCourse struct {
	ID      int  `json:"id"`
	Visible bool `json:"visible"`
}

// FindStudent resolves a candidate name to a registry record. A miss is
// domain.ErrNotFound; transport and registry faults are RegistryError.
func (c *Client) FindStudent(ctx context.Context, name string) (*domain.StudentRecord, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: student name is required", domain.ErrValidation)
	}

	var result wsUsersResponse
	params := map[string]string{
		"criteria[0][key]":   "firstname,lastname",
		"criteria[0][value]": trimmed,
	}
	if err := c.call(ctx, fnSearchUsers, params, &result); err != nil {
		return nil, err
	}

	user, ok := firstActiveUser(result.Users)
	if !ok {
		return nil, fmt.Errorf("%w: student %q", domain.ErrNotFound, trimmed)
	}

	record := &domain.StudentRecord{
		ID:       strconv.Itoa(user.ID),
		FullName: strings.TrimSpace(user.FirstName + " " + user.LastName),
		Email:    user.Email,
	}

	var courses []wsCourse
	if err := c.call(ctx, fnUserCourses, map[string]string{"userid": record.ID}, &courses); err != nil {
		return nil, err
	}
	for _, course := range courses {
		if course.Visible {
			record.CourseID = strconv.Itoa(course.ID)
			break
		}
	}

	return record, nil
}

// VerifyStudent fetches a record by registry id, for diploma verification.
func (c *Client) VerifyStudent(ctx context.Context, studentID string) (*domain.StudentRecord, error) {
	trimmed := strings.TrimSpace(studentID)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: student id is required", domain.ErrValidation)
	}

	var users []wsUser
	params := map[string]string{
		"field":     "id",
		"values[0]": trimmed,
	}
	if err := c.call(ctx, fnUsersByField, params, &users); err != nil {
		return nil, err
	}

	user, ok := firstActiveUser(users)
	if !ok {
		return nil, fmt.Errorf("%w: student id %s", domain.ErrNotFound, trimmed)
	}

	return &domain.StudentRecord{
		ID:       strconv.Itoa(user.ID),
		FullName: strings.TrimSpace(user.FirstName + " " + user.LastName),
		Email:    user.Email,
	}, nil
}

// CheckConnection probes the registry, used by readiness checks.
func (c *Client) CheckConnection(ctx context.Context) error {
	var info struct {
		SiteName string `json:"sitename"`
	}
	return c.call(ctx, fnSiteInfo, nil, &info)
}

func (c *Client) call(ctx context.Context, function string, params map[string]string, out any) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("registry client is not initialized")
	}

	form := map[string]string{
		"wstoken":            c.token,
		"wsfunction":         function,
		"moodlewsrestformat": "json",
	}
	for k, v := range params {
		form[k] = v
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		Post(c.baseURL)
	if err != nil {
		return &RegistryError{
			Message:   fmt.Sprintf("registry request for %s failed", function),
			Transient: ctx.Err() != context.Canceled,
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return &RegistryError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("registry returned status %d for %s", statusCode, function),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	body := response.Body()

	// Moodle reports its own failures as 200 + an "exception" body, so
	// probe for that before decoding the expected shape.
	var probe struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Exception != "" {
		msg := probe.Message
		if msg == "" {
			msg = probe.Exception
		}
		return &RegistryError{
			Message:   fmt.Sprintf("registry rejected %s: %s", function, msg),
			Transient: false,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &RegistryError{
			Message:   fmt.Sprintf("invalid registry response for %s", function),
			Transient: false,
			Cause:     err,
		}
	}

	return nil
}

func firstActiveUser(users []wsUser) (wsUser, bool) {
	for _, user := range users {
		if user.Deleted || user.Suspended {
			continue
		}
		return user, true
	}
	return wsUser{}, false
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
