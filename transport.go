package strata

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ohler55/ojg/oj"
)

// PerformFunc is the collaborator-supplied transport: one remote call,
// returning the parsed response body. The library stays agnostic to its
// wiring - URL templates, headers, credentials and retry-after handling all
// belong to the collaborator.
type PerformFunc func(
	ctx context.Context,
	method string,
	target string,
	params map[string]string,
) (any, error)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func DefaultHttpSettings() *HttpSettings {
	return &HttpSettings{
		RequestTimeout: defaultHttpTimeout,
		ConnectTimeout: defaultHttpConnectTimeout,
		TlsTimeout:     defaultHttpTlsTimeout,
	}
}

type HttpSettings struct {
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	TlsTimeout     time.Duration
}

// HttpTransport is a ready-made JSON-over-HTTP collaborator. The baseline
// query parameters are attached to every request; the library never inspects
// them, so credentials stay scoped to one transport instance instead of
// process-wide state.
type HttpTransport struct {
	baseUrl   string
	baseQuery map[string]string

	httpClient *http.Client
}

func NewHttpTransportWithDefaults(baseUrl string, baseQuery map[string]string) *HttpTransport {
	return NewHttpTransport(baseUrl, baseQuery, DefaultHttpSettings())
}

func NewHttpTransport(
	baseUrl string,
	baseQuery map[string]string,
	settings *HttpSettings,
) *HttpTransport {
	// see https://medium.com/@nate510/don-t-use-go-s-default-http-client-4804cb19f779
	dialer := &net.Dialer{
		Timeout: settings.ConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: settings.TlsTimeout,
	}
	return &HttpTransport{
		baseUrl:   strings.TrimRight(baseUrl, "/"),
		baseQuery: baseQuery,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   settings.RequestTimeout,
		},
	}
}

// Perform implements PerformFunc.
func (self *HttpTransport) Perform(
	ctx context.Context,
	method string,
	target string,
	params map[string]string,
) (any, error) {
	url := self.baseUrl + "/" + strings.TrimLeft(target, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &RemoteCallError{Method: method, Target: target, Err: err}
	}

	query := req.URL.Query()
	for name, value := range self.baseQuery {
		query.Set(name, value)
	}
	for name, value := range params {
		query.Set(name, value)
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")

	r, err := self.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteCallError{Method: method, Target: target, Err: err}
	}
	defer r.Body.Close()

	if r.StatusCode < 200 || 300 <= r.StatusCode {
		return nil, &RemoteCallError{Method: method, Target: target, StatusCode: r.StatusCode}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, &RemoteCallError{Method: method, Target: target, Err: err}
	}
	if len(body) == 0 {
		return nil, nil
	}

	parsed, err := oj.Parse(body)
	if err != nil {
		return nil, &RemoteCallError{Method: method, Target: target, Err: err}
	}
	return parsed, nil
}
