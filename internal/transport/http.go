package transport

import (
	"context"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"throttlepipe/internal/engine"
)

// HTTPSender delivers payloads to a real downstream HTTP endpoint using
// fasthttp, the transport client the teacher already pulls in
// transitively through gofiber/fiber. Response classification follows
// spec.md's outcome taxonomy: 2xx is success, 429/503 with a
// Retry-After header is server-busy, other 4xx is a client reject, and
// everything else (including transport-level errors) is retriable.
type HTTPSender struct {
	client      *fasthttp.Client
	url         string
	method      string
	contentType string
	timeout     time.Duration
}

// NewHTTPSender builds a Sender bound to url, honoring a per-attempt
// timeout the caller derives from its own deadline budget.
func NewHTTPSender(url string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		client: &fasthttp.Client{
			MaxConnsPerHost:     512,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 90 * time.Second,
		},
		url:         url,
		method:      fasthttp.MethodPost,
		contentType: "application/octet-stream",
		timeout:     timeout,
	}
}

func (h *HTTPSender) Send(ctx context.Context, payload []byte) engine.Outcome {
	return classifyLatency(func() engine.Outcome {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(h.url)
		req.Header.SetMethod(h.method)
		req.Header.SetContentType(h.contentType)
		req.SetBody(payload)

		deadline := time.Now().Add(h.timeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}

		if err := h.client.DoDeadline(req, resp, deadline); err != nil {
			return engine.Outcome{Kind: engine.OutcomeTransportErr, Err: err}
		}

		code := resp.StatusCode()
		switch {
		case code >= 200 && code < 300:
			return engine.Outcome{Kind: engine.OutcomeSuccess}
		case code == fasthttp.StatusTooManyRequests || code == fasthttp.StatusServiceUnavailable:
			return engine.Outcome{
				Kind:       engine.OutcomeServerBusy,
				RetryAfter: parseRetryAfter(string(resp.Header.Peek("Retry-After"))),
			}
		case code >= 400 && code < 500:
			return engine.Outcome{Kind: engine.OutcomeClientReject, Err: statusErr(code)}
		default:
			return engine.Outcome{Kind: engine.OutcomeTransportErr, Err: statusErr(code)}
		}
	})
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := time.Parse(time.RFC1123, header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

type httpStatusError int

func statusErr(code int) error { return httpStatusError(code) }

func (e httpStatusError) Error() string {
	return "downstream returned status " + strconv.Itoa(int(e))
}
