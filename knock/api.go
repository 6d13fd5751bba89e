package knock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang/glog"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

const StatusCodeOk = "ok"
const StatusCodeError = "error"

func defaultClient() *http.Client {
	// see https://medium.com/@nate510/don-t-use-go-s-default-http-client-4804cb19f779
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type ApiRequest struct {
	Method string
	Path   string
	Params url.Values
	Body   any
}

// ApiResponse is the normalized envelope every request resolves to. Transport
// and server failures are carried in the envelope; the api never panics and
// only `Err` distinguishes a network-level failure from a server-declared one.
type ApiResponse struct {
	// "ok" or "error"
	StatusCode string
	Body       json.RawMessage
	Err        error
	// http status, 0 when the request never completed
	Status int
}

type ApiSettings struct {
	// attempts beyond the first for retryable failures
	MaxRetries      int
	BackoffSettings *BackoffSettings
}

func DefaultApiSettings() *ApiSettings {
	return &ApiSettings{
		MaxRetries:      3,
		BackoffSettings: DefaultBackoffSettings(),
	}
}

// Api issues authenticated requests against the platform api. Retry of
// transient failures lives here; the feed layer never retries.
type Api struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string
	apiKey string

	settings *ApiSettings

	httpClient *http.Client

	userTokenMutex sync.Mutex
	userToken      string
}

func NewApiWithDefaults(ctx context.Context, apiUrl string, apiKey string) *Api {
	return NewApi(ctx, apiUrl, apiKey, DefaultApiSettings())
}

func NewApi(ctx context.Context, apiUrl string, apiKey string, settings *ApiSettings) *Api {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &Api{
		ctx:        cancelCtx,
		cancel:     cancel,
		apiUrl:     apiUrl,
		apiKey:     apiKey,
		settings:   settings,
		httpClient: defaultClient(),
	}
}

// attached to requests on behalf of the authenticated user
func (self *Api) SetUserToken(userToken string) {
	self.userTokenMutex.Lock()
	defer self.userTokenMutex.Unlock()
	self.userToken = userToken
}

func (self *Api) currentUserToken() string {
	self.userTokenMutex.Lock()
	defer self.userTokenMutex.Unlock()
	return self.userToken
}

func (self *Api) Close() {
	self.cancel()
}

// retry on network-level errors, 5xx and 429. other 4xx are not transient and
// surface immediately.
func retryableStatus(status int) bool {
	return 500 <= status || status == http.StatusTooManyRequests
}

func (self *Api) Request(request *ApiRequest) *ApiResponse {
	var requestBodyBytes []byte
	if request.Body != nil {
		var err error
		requestBodyBytes, err = json.Marshal(request.Body)
		if err != nil {
			return &ApiResponse{
				StatusCode: StatusCodeError,
				Err:        err,
			}
		}
	}

	requestUrl := fmt.Sprintf("%s%s", self.apiUrl, request.Path)
	if 0 < len(request.Params) {
		requestUrl = fmt.Sprintf("%s?%s", requestUrl, request.Params.Encode())
	}

	var response *ApiResponse
	for tries := 0; ; {
		response = self.requestOnce(request.Method, requestUrl, requestBodyBytes)
		if response.StatusCode == StatusCodeOk {
			return response
		}
		if response.Status != 0 && !retryableStatus(response.Status) {
			return response
		}

		tries += 1
		if self.settings.MaxRetries < tries {
			return response
		}
		delay := JitteredBackoffDelay(tries, self.settings.BackoffSettings)
		glog.V(2).Infof("[api]retry %s %s after %s\n", request.Method, request.Path, delay)
		select {
		case <-self.ctx.Done():
			return response
		case <-time.After(delay):
		}
	}
}

func (self *Api) requestOnce(method string, requestUrl string, requestBodyBytes []byte) *ApiResponse {
	var bodyReader io.Reader
	if requestBodyBytes != nil {
		bodyReader = bytes.NewReader(requestBodyBytes)
	}
	req, err := http.NewRequestWithContext(self.ctx, method, requestUrl, bodyReader)
	if err != nil {
		return &ApiResponse{
			StatusCode: StatusCodeError,
			Err:        err,
		}
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", self.apiKey))
	if userToken := self.currentUserToken(); userToken != "" {
		req.Header.Add("X-Knock-User-Token", userToken)
	}

	r, err := self.httpClient.Do(req)
	if err != nil {
		return &ApiResponse{
			StatusCode: StatusCodeError,
			Err:        err,
		}
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return &ApiResponse{
			StatusCode: StatusCodeError,
			Err:        err,
			Status:     r.StatusCode,
		}
	}

	if http.StatusOK <= r.StatusCode && r.StatusCode < 300 {
		return &ApiResponse{
			StatusCode: StatusCodeOk,
			Body:       responseBodyBytes,
			Status:     r.StatusCode,
		}
	}

	return &ApiResponse{
		StatusCode: StatusCodeError,
		Body:       responseBodyBytes,
		Err:        fmt.Errorf("api error: status %d", r.StatusCode),
		Status:     r.StatusCode,
	}
}
