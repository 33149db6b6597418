package checks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/go-pkgz/repeater"

	"github.com/spamd/spamd/lib/spamcheck"
)

//go:generate moq --out mocks/http_client.go --pkg mocks --skip-ensure . HTTPClient:HTTPClientMock

// ExternalName is the name of the external service check
const ExternalName = "external_service"

// environment variables consulted by the external service check on each call
const (
	EnvExternalURL         = "EXTERNAL_SERVICE_URL"
	EnvExternalAPIKey      = "EXTERNAL_SERVICE_API_KEY"
	EnvExternalTimeout     = "EXTERNAL_SERVICE_TIMEOUT"
	EnvExternalFailOnError = "EXTERNAL_SERVICE_FAIL_ON_ERROR"
)

// defaults of the external service check
const (
	DefaultExternalURL     = "https://example.com/api"
	DefaultExternalTimeout = 2 * time.Second
)

const (
	maxExternalBody   = 1024 * 1024
	maxResponseDetail = 200
)

// HTTPClient is the subset of http.Client used by the external service check
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ExternalConfig defines the external service check. Zero values mean built-in defaults.
type ExternalConfig struct {
	URL         string
	APIKey      string
	Timeout     time.Duration
	FailOnError bool
	BasePayload map[string]any      // sent with every request, overlaid by "payload" param and the text
	CacheTTL    time.Duration       // cache successful responses for this long, no caching if 0
	Retries     int                 // extra attempts on network errors
	RetryDelay  time.Duration       // delay between attempts
	Getenv      func(string) string // environment lookup, os.Getenv if nil
}

// External sends the text to a remote scoring service. Each call resolves its settings in order:
// call params, environment variables, config, built-in defaults.
type External struct {
	client HTTPClient
	cfg    ExternalConfig
	cache  cache.Cache[string, externalVerdict]
}

type externalVerdict struct {
	passed bool
	score  float64
	body   string
}

// externalSettings is the resolved per-call configuration
type externalSettings struct {
	url         string
	apiKey      string
	timeout     time.Duration
	failOnError bool
}

// NewExternal makes the external service check with the given http client.
func NewExternal(client HTTPClient, cfg ExternalConfig) *External {
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	if cfg.URL == "" {
		cfg.URL = DefaultExternalURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExternalTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	res := &External{client: client, cfg: cfg}
	if cfg.CacheTTL > 0 {
		res.cache = cache.NewCache[string, externalVerdict]().WithMaxKeys(10000).WithTTL(cfg.CacheTTL)
	}
	return res
}

// Check is a non-blocking check function. Params: "url", "api_key", "timeout" (seconds), "fail_on_error",
// "payload" (map merged over the base payload). Any failure makes a result with passed = !fail_on_error.
func (e *External) Check(ctx context.Context, text string, params spamcheck.Params) spamcheck.Result {
	st := e.settings(params)

	payload := spamcheck.Params(e.cfg.BasePayload).Merge(params.Map("payload"))
	payload["text"] = text
	body, err := json.Marshal(payload)
	if err != nil {
		return e.failure(st, map[string]any{"url": st.url, "error": fmt.Sprintf("can't marshal payload: %v", err)})
	}

	cacheKey := st.url + "\x00" + string(body)
	if e.cache != nil {
		if v, ok := e.cache.Get(cacheKey); ok {
			return e.verdict(st, payload, v, true)
		}
	}

	var resp *http.Response
	var respBody []byte
	attempt := func() error {
		rctx, cancel := context.WithTimeout(ctx, st.timeout)
		defer cancel()
		req, reqErr := http.NewRequestWithContext(rctx, http.MethodPost, st.url, bytes.NewReader(body))
		if reqErr != nil {
			return fmt.Errorf("can't make request: %w", reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "spamd/1.0")
		if st.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+st.apiKey)
		}
		r, doErr := e.client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer r.Body.Close()
		b, readErr := io.ReadAll(io.LimitReader(r.Body, maxExternalBody))
		if readErr != nil {
			return fmt.Errorf("can't read response: %w", readErr)
		}
		resp, respBody = r, b
		return nil
	}

	if err = repeater.NewDefault(e.cfg.Retries+1, e.cfg.RetryDelay).Do(ctx, attempt); err != nil {
		log.Printf("[WARN] external service %s failed: %v", st.url, err)
		details := map[string]any{"url": st.url, "request": payload, "timeout": st.timeout.Seconds(),
			"error": err.Error(), "type": errorType(err)}
		return e.failure(st, details)
	}

	details := map[string]any{"url": st.url, "status_code": resp.StatusCode, "request": payload,
		"response": truncate(string(respBody), maxResponseDetail)}
	if resp.StatusCode != http.StatusOK {
		log.Printf("[WARN] external service %s responded with %d", st.url, resp.StatusCode)
		details["error"] = fmt.Sprintf("HTTP %d", resp.StatusCode)
		return e.failure(st, details)
	}

	var data struct {
		Passed *bool    `json:"passed"`
		Score  *float64 `json:"score"`
	}
	if err = json.Unmarshal(respBody, &data); err != nil {
		details["error"] = fmt.Sprintf("invalid JSON in response: %v", err)
		return e.failure(st, details)
	}

	v := externalVerdict{passed: true, score: 0, body: string(respBody)}
	if data.Passed != nil {
		v.passed = *data.Passed
	}
	if data.Score != nil {
		v.score = clampScore(*data.Score)
	}
	if e.cache != nil {
		e.cache.Set(cacheKey, v, e.cfg.CacheTTL)
	}
	return e.verdict(st, payload, v, false)
}

func (e *External) verdict(st externalSettings, payload spamcheck.Params, v externalVerdict, cached bool) spamcheck.Result {
	details := map[string]any{"url": st.url, "status_code": http.StatusOK, "request": payload,
		"response": truncate(v.body, maxResponseDetail)}
	if cached {
		details["cached"] = true
	}
	return spamcheck.Result{Name: ExternalName, Passed: v.passed, Score: v.score, Details: details}
}

func (e *External) failure(st externalSettings, details map[string]any) spamcheck.Result {
	return spamcheck.Result{Name: ExternalName, Passed: !st.failOnError, Score: 0, Details: details}
}

// settings resolves per-call configuration, invalid values fall through to the next source
func (e *External) settings(params spamcheck.Params) externalSettings {
	res := externalSettings{
		url:         params.String("url", ""),
		apiKey:      params.String("api_key", ""),
		timeout:     e.cfg.Timeout,
		failOnError: e.cfg.FailOnError,
	}
	if res.url == "" {
		res.url = e.cfg.Getenv(EnvExternalURL)
	}
	if res.url == "" {
		res.url = e.cfg.URL
	}
	if res.apiKey == "" {
		res.apiKey = e.cfg.Getenv(EnvExternalAPIKey)
	}
	if res.apiKey == "" {
		res.apiKey = e.cfg.APIKey
	}

	if env := e.cfg.Getenv(EnvExternalTimeout); env != "" {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil && secs > 0 {
			res.timeout = seconds(secs)
		} else {
			log.Printf("[WARN] invalid %s=%q, fallback to config", EnvExternalTimeout, env)
		}
	}
	if params.Has("timeout") {
		if secs, ok := params.FloatOK("timeout"); ok && secs > 0 {
			res.timeout = seconds(secs)
		} else {
			log.Printf("[WARN] invalid timeout %v in params, fallback to env/config", params["timeout"])
		}
	}

	if env := e.cfg.Getenv(EnvExternalFailOnError); env != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			res.failOnError = b
		}
	}
	res.failOnError = params.Bool("fail_on_error", res.failOnError)
	return res
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

// errorType classifies a network failure for the result details
func errorType(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "connection_error"
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
