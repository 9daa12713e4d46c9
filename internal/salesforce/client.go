// Package salesforce keeps the CRM in step with the entity store: a typed
// REST client with an explicit session, the field alias tables, the outbound
// push of local changes and the inbound merge of CRM records.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bbys_backend/platform/apperr"
	"bbys_backend/platform/config"
	"bbys_backend/platform/logger"
	"bbys_backend/platform/metrics"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const defaultAPIVersion = "v52.0"

// Error codes the CRM returns when a peer write won the race. They are
// logged and treated as success.
const (
	CodeUnableToLockRow   = "UNABLE_TO_LOCK_ROW"
	CodeInsufficientCross = "INSUFFICIENT_ACCESS_ON_CROSS_REFERENCE_ENTITY"
	codeInvalidSession    = "INVALID_SESSION_ID"
)

// APIError is a non-2xx answer of the CRM.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("salesforce %s: status %d: %s: %s", e.Op, e.Status, e.Code, e.Message)
}

// Suppressed reports whether the error is dropped after logging.
func (e *APIError) Suppressed() bool {
	return e.Code == CodeUnableToLockRow || e.Code == CodeInsufficientCross
}

// Transient reports whether a retry may succeed.
func (e *APIError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Code == codeInvalidSession
}

// IsSuppressed reports whether err carries a suppressed CRM error code.
func IsSuppressed(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Suppressed()
}

// IsNotFound reports whether the CRM answered 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type session struct {
	token       string
	instanceURL string
}

// Client talks to the CRM REST API. It logs in lazily, shares one session
// between goroutines and logs in again once when the session expires.
type Client struct {
	cfg        config.SalesforceConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
	version    string

	logins singleflight.Group
	mu     sync.RWMutex
	sess   *session
}

func NewClient(cfg config.SalesforceConfig, log *logger.Logger) *Client {
	version := cfg.GetSalesforceAPIVersion()
	if version == "" {
		version = defaultAPIVersion
	}
	limit := rate.Inf
	if rps := cfg.GetSalesforceRatePerSecond(); rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
		log:        log,
		version:    version,
	}
}

// Query runs a SOQL query and returns every record, following pagination.
func (c *Client) Query(ctx context.Context, soql string) ([]gjson.Result, error) {
	path := c.dataPath("/query") + "?q=" + url.QueryEscape(soql)
	var records []gjson.Result
	for path != "" {
		body, err := c.do(ctx, "query", http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		res := gjson.ParseBytes(body)
		records = append(records, res.Get("records").Array()...)
		path = ""
		if !res.Get("done").Bool() {
			path = res.Get("nextRecordsUrl").String()
		}
	}
	return records, nil
}

// Get reads one record by id.
func (c *Client) Get(ctx context.Context, object, id string) (gjson.Result, error) {
	body, err := c.do(ctx, "get_"+object, http.MethodGet, c.dataPath("/sobjects/"+object+"/"+id), nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(body), nil
}

// Create inserts a record and returns its id.
func (c *Client) Create(ctx context.Context, object string, fields map[string]any) (string, error) {
	body, err := c.do(ctx, "create_"+object, http.MethodPost, c.dataPath("/sobjects/"+object+"/"), fields)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", fmt.Errorf("salesforce create_%s: response carries no id", object)
	}
	return id, nil
}

// Update patches a record.
func (c *Client) Update(ctx context.Context, object, id string, fields map[string]any) error {
	_, err := c.do(ctx, "update_"+object, http.MethodPatch, c.dataPath("/sobjects/"+object+"/"+id), fields)
	return err
}

func (c *Client) dataPath(suffix string) string {
	return "/services/data/" + c.version + suffix
}

// do sends one request with the current session. An expired session is
// replaced and the request sent once more.
func (c *Client) do(ctx context.Context, op, method, path string, payload map[string]any) ([]byte, error) {
	start := time.Now()
	body, err := c.send(ctx, op, method, path, payload)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeInvalidSession {
		c.log.Info("salesforce session expired, logging in again", "operation", op)
		c.invalidate()
		body, err = c.send(ctx, op, method, path, payload)
	}
	metrics.SalesforceLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.SalesforceRequests.WithLabelValues(op, result(err)).Inc()
	return body, err
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsSuppressed(err):
		return "suppressed"
	default:
		return "error"
	}
}

func (c *Client) send(ctx context.Context, op, method, path string, payload map[string]any) ([]byte, error) {
	sess, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, sess.instanceURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+sess.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Unavailable("salesforce "+op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("salesforce %s: read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(op, resp.StatusCode, data)
	}
	return data, nil
}

// decodeError reads the CRM error envelope, a list of {errorCode, message}.
func decodeError(op string, status int, data []byte) *APIError {
	res := gjson.ParseBytes(data)
	first := res
	if res.IsArray() {
		first = res.Get("0")
	}
	apiErr := &APIError{
		Op:      op,
		Status:  status,
		Code:    first.Get("errorCode").String(),
		Message: first.Get("message").String(),
	}
	if apiErr.Code == "" && status == http.StatusUnauthorized {
		apiErr.Code = codeInvalidSession
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func (c *Client) session(ctx context.Context) (session, error) {
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess != nil {
		return *sess, nil
	}
	v, err, _ := c.logins.Do("login", func() (any, error) {
		return c.login(ctx)
	})
	if err != nil {
		return session{}, err
	}
	return v.(session), nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
}

// login runs the OAuth password grant.
func (c *Client) login(ctx context.Context) (session, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {c.cfg.GetSalesforceClientID()},
		"client_secret": {c.cfg.GetSalesforceClientSecret()},
		"username":      {c.cfg.GetSalesforceUsername()},
		"password":      {c.cfg.GetSalesforcePassword()},
	}
	endpoint := strings.TrimRight(c.cfg.GetSalesforceLoginURL(), "/") + "/services/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return session{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session{}, fmt.Errorf("salesforce login: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return session{}, fmt.Errorf("salesforce login: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.SalesforceRequests.WithLabelValues("login", "error").Inc()
		return session{}, &APIError{
			Op:      "login",
			Status:  resp.StatusCode,
			Code:    gjson.GetBytes(data, "error").String(),
			Message: gjson.GetBytes(data, "error_description").String(),
		}
	}
	sess := session{
		token:       gjson.GetBytes(data, "access_token").String(),
		instanceURL: strings.TrimRight(gjson.GetBytes(data, "instance_url").String(), "/"),
	}
	if sess.token == "" || sess.instanceURL == "" {
		return session{}, errors.New("salesforce login: response carries no token or instance url")
	}
	metrics.SalesforceRequests.WithLabelValues("login", "ok").Inc()

	c.mu.Lock()
	c.sess = &sess
	c.mu.Unlock()
	return sess, nil
}

// quote renders s as a SOQL string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
