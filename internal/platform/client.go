package platform

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
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	authorizationHeaderNameConstant        = "Authorization"
	bearerTokenPrefixConstant              = "Bearer "
	contentTypeHeaderNameConstant          = "Content-Type"
	acceptHeaderNameConstant               = "Accept"
	jsonContentTypeConstant                = "application/json"
	acceptHeaderValueConstant              = "application/json, text/plain, */*"
	defaultRequestTimeoutConstant          = 30 * time.Second
	circuitBreakerOpenTimeoutConstant      = 30 * time.Second
	circuitBreakerFailureThresholdConstant = 5
	circuitBreakerNameTemplateConstant     = "platform-%s"
	baseURLFieldNameConstant               = "base_url"
	requiredValueMessageConstant           = "value required"
	invalidURLMessageTemplateConstant      = "invalid URL %q"
	httpClientMissingMessageConstant       = "http client not configured"
	tokenSourceMissingMessageConstant      = "token source not configured"
	requestCompletedMessageConstant        = "Platform request completed"
	requestFailedMessageConstant           = "Platform request failed"
	circuitStateChangedMessageConstant     = "Platform circuit breaker state changed"
	logFieldEnvironmentConstant            = "environment"
	logFieldOperationConstant              = "operation"
	logFieldMethodConstant                 = "method"
	logFieldURLConstant                    = "url"
	logFieldStatusCodeConstant             = "status_code"
	logFieldDurationConstant               = "duration"
	logFieldBreakerConstant                = "breaker"
	logFieldFromStateConstant              = "from"
	logFieldToStateConstant                = "to"
)

var (
	// ErrHTTPClientNotConfigured indicates the client was constructed without an HTTP client.
	ErrHTTPClientNotConfigured = errors.New(httpClientMissingMessageConstant)
	// ErrTokenSourceNotConfigured indicates the client was constructed without a token source.
	ErrTokenSourceNotConfigured = errors.New(tokenSourceMissingMessageConstant)
)

// ClientDependencies captures collaborators required by Client.
type ClientDependencies struct {
	Environment    Environment
	HTTPClient     HTTPClient
	TokenSource    TokenSource
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Client performs typed requests against one environment.
type Client struct {
	environment    Environment
	httpClient     HTTPClient
	tokenSource    TokenSource
	requestTimeout time.Duration
	logger         *zap.Logger
	breaker        *gobreaker.CircuitBreaker[response]
}

type response struct {
	statusCode int
	body       []byte
}

// NewClient constructs a Client for the environment.
func NewClient(dependencies ClientDependencies) (*Client, error) {
	if dependencies.HTTPClient == nil {
		return nil, ErrHTTPClientNotConfigured
	}
	if dependencies.TokenSource == nil {
		return nil, ErrTokenSourceNotConfigured
	}

	baseURL := strings.TrimSpace(dependencies.Environment.BaseURL)
	if len(baseURL) == 0 {
		return nil, InvalidInputError{FieldName: baseURLFieldNameConstant, Message: requiredValueMessageConstant}
	}
	parsedBaseURL, parseError := url.Parse(baseURL)
	if parseError != nil || len(parsedBaseURL.Scheme) == 0 || len(parsedBaseURL.Host) == 0 {
		return nil, InvalidInputError{FieldName: baseURLFieldNameConstant, Message: fmt.Sprintf(invalidURLMessageTemplateConstant, baseURL)}
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	requestTimeout := dependencies.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeoutConstant
	}

	environment := dependencies.Environment
	environment.BaseURL = baseURL

	client := &Client{
		environment:    environment,
		httpClient:     dependencies.HTTPClient,
		tokenSource:    dependencies.TokenSource,
		requestTimeout: requestTimeout,
		logger:         logger,
	}
	client.breaker = gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:    fmt.Sprintf(circuitBreakerNameTemplateConstant, environment.Name),
		Timeout: circuitBreakerOpenTimeoutConstant,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= circuitBreakerFailureThresholdConstant
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				circuitStateChangedMessageConstant,
				zap.String(logFieldBreakerConstant, name),
				zap.String(logFieldFromStateConstant, from.String()),
				zap.String(logFieldToStateConstant, to.String()),
			)
		},
	})

	return client, nil
}

// Environment returns the environment the client talks to.
func (client *Client) Environment() Environment {
	return client.environment
}

// VerifyAccess confirms credentials for the environment can be exchanged for a bearer token.
func (client *Client) VerifyAccess(accessContext context.Context) error {
	_, tokenError := client.tokenSource.Token(accessContext, client.environment)
	return tokenError
}

// DownloadAsset fetches a binary resource by absolute URL without platform credentials.
func (client *Client) DownloadAsset(downloadContext context.Context, assetURL string) ([]byte, error) {
	result, requestError := client.execute(downloadContext, downloadAssetOperationNameConstant, http.MethodGet, assetURL, nil, "")
	if requestError != nil {
		return nil, requestError
	}
	return result.body, nil
}

// doJSON sends an authenticated JSON request to an API path and decodes the response into target.
func (client *Client) doJSON(requestContext context.Context, operation OperationName, method string, path string, query url.Values, payload any, target any) error {
	token, tokenError := client.tokenSource.Token(requestContext, client.environment)
	if tokenError != nil {
		return tokenError
	}

	var body []byte
	if payload != nil {
		encodedPayload, encodeError := json.Marshal(payload)
		if encodeError != nil {
			return PayloadEncodingError{Operation: operation, Cause: encodeError}
		}
		body = encodedPayload
	}

	endpoint := client.environment.Endpoint(path)
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	result, requestError := client.execute(requestContext, operation, method, endpoint, body, token)
	if requestError != nil {
		return requestError
	}

	if target == nil || len(bytes.TrimSpace(result.body)) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(result.body))
	decoder.UseNumber()
	if decodeError := decoder.Decode(target); decodeError != nil {
		return ResponseDecodingError{Operation: operation, Cause: decodeError}
	}
	return nil
}

func (client *Client) execute(requestContext context.Context, operation OperationName, method string, endpoint string, body []byte, token string) (response, error) {
	result, executeError := client.breaker.Execute(func() (response, error) {
		return client.roundTrip(requestContext, operation, method, endpoint, body, token)
	})
	if errors.Is(executeError, gobreaker.ErrOpenState) || errors.Is(executeError, gobreaker.ErrTooManyRequests) {
		return response{}, TransientNetworkError{Operation: operation, Cause: executeError}
	}
	return result, executeError
}

func (client *Client) roundTrip(requestContext context.Context, operation OperationName, method string, endpoint string, body []byte, token string) (response, error) {
	callContext, cancel := context.WithTimeout(requestContext, client.requestTimeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	request, requestError := http.NewRequestWithContext(callContext, method, endpoint, bodyReader)
	if requestError != nil {
		return response{}, OperationError{Operation: operation, Cause: requestError}
	}
	request.Header.Set(acceptHeaderNameConstant, acceptHeaderValueConstant)
	if body != nil {
		request.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
	}
	if len(token) > 0 {
		request.Header.Set(authorizationHeaderNameConstant, bearerTokenPrefixConstant+token)
	}

	startedAt := time.Now()
	httpResponse, doError := client.httpClient.Do(request)
	if doError != nil {
		client.logger.Debug(
			requestFailedMessageConstant,
			zap.String(logFieldEnvironmentConstant, client.environment.Name),
			zap.String(logFieldOperationConstant, string(operation)),
			zap.String(logFieldMethodConstant, method),
			zap.String(logFieldURLConstant, endpoint),
			zap.Error(doError),
		)
		if errors.Is(doError, context.Canceled) && errors.Is(requestContext.Err(), context.Canceled) {
			return response{}, OperationError{Operation: operation, Cause: doError}
		}
		return response{}, TransientNetworkError{Operation: operation, Cause: doError}
	}
	defer httpResponse.Body.Close()

	responseBody, readError := io.ReadAll(httpResponse.Body)
	if readError != nil {
		return response{}, TransientNetworkError{Operation: operation, StatusCode: httpResponse.StatusCode, Cause: readError}
	}

	client.logger.Debug(
		requestCompletedMessageConstant,
		zap.String(logFieldEnvironmentConstant, client.environment.Name),
		zap.String(logFieldOperationConstant, string(operation)),
		zap.String(logFieldMethodConstant, method),
		zap.String(logFieldURLConstant, endpoint),
		zap.Int(logFieldStatusCodeConstant, httpResponse.StatusCode),
		zap.Duration(logFieldDurationConstant, time.Since(startedAt)),
	)

	if statusError := client.classifyStatus(operation, endpoint, httpResponse.StatusCode, responseBody); statusError != nil {
		return response{}, statusError
	}
	return response{statusCode: httpResponse.StatusCode, body: responseBody}, nil
}

func (client *Client) classifyStatus(operation OperationName, endpoint string, statusCode int, responseBody []byte) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return AuthError{Environment: client.environment.Name, Operation: operation, StatusCode: statusCode}
	case statusCode == http.StatusNotFound:
		return NotFoundError{Operation: operation, Resource: endpoint, StatusCode: statusCode}
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return TransientNetworkError{Operation: operation, StatusCode: statusCode}
	default:
		return ValidationError{Operation: operation, StatusCode: statusCode, Message: truncateValidationMessage(strings.TrimSpace(string(responseBody)))}
	}
}
