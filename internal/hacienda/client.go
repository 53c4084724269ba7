package hacienda

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialDelay   = 2 * time.Second
	defaultBackoffFactor  = 2

	// fechaLayout is the ISO-8601 local timestamp format the endpoint expects.
	fechaLayout = "2006-01-02T15:04:05-07:00"
)

// Client performs bounded, classified, backoff-retried exchanges with the
// document receiving endpoint. Submit and CheckStatus block their caller for
// up to maxAttempts rounds of waiting; do not call them on latency-sensitive
// paths.
type Client struct {
	http    *resty.Client
	baseURL string

	maxAttempts   int
	initialDelay  time.Duration
	backoffFactor int

	logger *zap.Logger
	sleep  func(time.Duration)
	now    func() time.Time
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL     string
	Username    string
	Password    string
	Timeout     time.Duration
	MaxAttempts int
	// InitialDelay seeds the backoff ladder for retryable failures.
	InitialDelay time.Duration
}

func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	client := resty.New()
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(0)

	return NewClientWithResty(opts, client, logger)
}

func NewClientWithResty(opts Options, client *resty.Client, logger *zap.Logger) (*Client, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("api credentials are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client.SetBasicAuth(opts.Username, opts.Password)
	client.SetRetryCount(0)
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRequestTimeout)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	initialDelay := opts.InitialDelay
	if initialDelay <= 0 {
		initialDelay = defaultInitialDelay
	}

	return &Client{
		http:          client,
		baseURL:       trimmedURL,
		maxAttempts:   maxAttempts,
		initialDelay:  initialDelay,
		backoffFactor: defaultBackoffFactor,
		logger:        logger,
		sleep:         time.Sleep,
		now:           time.Now,
	}, nil
}

type identification struct {
	TipoIdentificacion   string `json:"tipoIdentificacion"`
	NumeroIdentificacion string `json:"numeroIdentificacion"`
}

type submitPayload struct {
	Clave          string          `json:"clave"`
	Fecha          string          `json:"fecha"`
	Emisor         identification  `json:"emisor"`
	Receptor       *identification `json:"receptor,omitempty"`
	ComprobanteXML string          `json:"comprobanteXml"`
}

// SubmitRequest carries the inputs of one document submission.
type SubmitRequest struct {
	Clave      string
	SignedXML  string
	IssuerID   string
	ReceiverID string
	IssuedAt   time.Time
}

// Submit posts a signed document to the receiving endpoint.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Response, error) {
	if len(req.Clave) != 50 {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("clave must be 50 digits, got %d", len(req.Clave))}
	}
	if strings.TrimSpace(req.SignedXML) == "" {
		return nil, &Error{Kind: KindValidation, Message: "signed document body is required"}
	}

	issuedAt := req.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = c.now()
	}

	payload := submitPayload{
		Clave: req.Clave,
		Fecha: issuedAt.Format(fechaLayout),
		Emisor: identification{
			TipoIdentificacion:   IDType(req.IssuerID),
			NumeroIdentificacion: CleanID(req.IssuerID),
		},
		ComprobanteXML: base64.StdEncoding.EncodeToString([]byte(req.SignedXML)),
	}

	// TE documents may have no receptor; the endpoint rejects an empty one.
	if receiver := CleanID(req.ReceiverID); receiver != "" {
		payload.Receptor = &identification{
			TipoIdentificacion:   IDType(receiver),
			NumeroIdentificacion: receiver,
		}
	}

	return c.doWithRetry(ctx, http.MethodPost, "/recepcion", payload, "submit "+req.Clave)
}

// CheckStatus queries the endpoint for the verdict on a submitted document.
func (c *Client) CheckStatus(ctx context.Context, clave string) (*Response, error) {
	if len(clave) != 50 {
		return nil, &Error{Kind: KindValidation, Message: fmt.Sprintf("clave must be 50 digits, got %d", len(clave))}
	}

	return c.doWithRetry(ctx, http.MethodGet, "/recepcion/"+clave, nil, "check status "+clave)
}

// doWithRetry runs the classified attempt loop. 4xx client errors abort
// immediately; 429, 5xx, and transport failures are retried with exponential
// backoff. A 429 doubles the running delay directly instead of applying the
// backoff factor.
func (c *Client) doWithRetry(ctx context.Context, method, path string, payload any, operation string) (*Response, error) {
	delay := c.initialDelay
	var lastErr *Error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Kind: KindNetwork, Message: "request cancelled", Cause: err}
		}

		resp, err := c.execute(ctx, method, path, payload)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, &Error{Kind: KindNetwork, Message: "request cancelled", Cause: err}
			}
			lastErr = &Error{Kind: KindNetwork, Message: "request failed", Cause: err}
			c.logger.Warn("hacienda request failed",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		} else {
			statusCode := resp.StatusCode()
			body := resp.Body()

			switch {
			case statusCode == http.StatusOK || statusCode == http.StatusCreated:
				return c.parseSuccess(body, statusCode, operation)

			case statusCode == http.StatusAccepted:
				// Document received, will process asynchronously. The body may
				// be empty; treat that as recibido.
				if strings.TrimSpace(string(body)) == "" {
					c.logger.Info("hacienda accepted submission for async processing",
						zap.String("operation", operation))
					return &Response{RawStatus: statusRecibido, Status: canonicalStatus(statusRecibido)}, nil
				}
				return c.parseSuccess(body, statusCode, operation)

			case statusCode == http.StatusBadRequest,
				statusCode == http.StatusUnauthorized,
				statusCode == http.StatusForbidden,
				statusCode == http.StatusNotFound:
				apiErr := &Error{
					Kind:       kindForStatus(statusCode),
					StatusCode: statusCode,
					Message:    ExtractErrorMessage(body, statusCode),
				}
				c.logger.Error("hacienda request rejected",
					zap.String("operation", operation),
					zap.Int("status", statusCode),
					zap.String("error", apiErr.Message),
				)
				return nil, apiErr

			case statusCode == http.StatusTooManyRequests:
				lastErr = &Error{
					Kind:       KindRateLimit,
					StatusCode: statusCode,
					Message:    "rate limit exceeded",
				}
				// Honor the server-provided reset window when present.
				if reset := resp.Header().Get("X-Ratelimit-Reset"); reset != "" {
					if seconds, convErr := strconv.Atoi(reset); convErr == nil && seconds >= 1 {
						delay = time.Duration(seconds) * time.Second
					} else {
						delay *= 2
					}
				} else {
					delay *= 2
				}
				c.logger.Warn("hacienda rate limited",
					zap.String("operation", operation),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
				)
				if attempt < c.maxAttempts {
					c.sleep(delay)
				}
				continue

			case statusCode >= http.StatusInternalServerError:
				lastErr = &Error{
					Kind:       KindServer,
					StatusCode: statusCode,
					Message:    ExtractErrorMessage(body, statusCode),
				}
				c.logger.Warn("hacienda server error",
					zap.String("operation", operation),
					zap.Int("attempt", attempt),
					zap.Int("status", statusCode),
				)

			default:
				lastErr = &Error{
					Kind:       KindUnknown,
					StatusCode: statusCode,
					Message:    ExtractErrorMessage(body, statusCode),
				}
				c.logger.Warn("hacienda unexpected status",
					zap.String("operation", operation),
					zap.Int("attempt", attempt),
					zap.Int("status", statusCode),
				)
			}
		}

		if attempt < c.maxAttempts {
			c.sleep(delay)
			delay *= time.Duration(c.backoffFactor)
		}
	}

	if lastErr == nil {
		lastErr = &Error{Kind: KindUnknown, Message: "no attempt was made"}
	}
	return nil, &Error{
		Kind:       lastErr.Kind,
		StatusCode: lastErr.StatusCode,
		Message:    fmt.Sprintf("failed after %d attempts", c.maxAttempts),
		Cause:      lastErr,
	}
}

func (c *Client) execute(ctx context.Context, method, path string, payload any) (*resty.Response, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")

	if payload != nil {
		req.SetBody(payload)
	}

	switch method {
	case http.MethodPost:
		return req.Post(c.baseURL + path)
	case http.MethodGet:
		return req.Get(c.baseURL + path)
	default:
		return nil, fmt.Errorf("unsupported http method %q", method)
	}
}

func (c *Client) parseSuccess(body []byte, statusCode int, operation string) (*Response, error) {
	resp, err := ParseResponse(body)
	if err != nil {
		return nil, &Error{
			Kind:       KindUnknown,
			StatusCode: statusCode,
			Message:    ExtractErrorMessage(body, statusCode),
			Cause:      err,
		}
	}
	c.logger.Info("hacienda request completed",
		zap.String("operation", operation),
		zap.Int("status", statusCode),
		zap.String("indEstado", resp.RawStatus),
	)
	return resp, nil
}
