package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/trustx-migrate/internal/platform"
)

const (
	issueTokenPathConstant            = "api/arthr/apiKeys/issue"
	issueTokenOperationNameConstant   = platform.OperationName("IssueToken")
	apiKeyHeaderNameConstant          = "X-API-Key"
	acceptHeaderNameConstant          = "Accept"
	jsonContentTypeConstant           = "application/json"
	tokenFieldNameConstant            = "token"
	defaultIssueTimeoutConstant       = 30 * time.Second
	keyResolverMissingMessageConstant = "API key resolver not configured"
	httpClientMissingMessageConstant  = "http client not configured"
	tokenIssuedMessageConstant        = "Issued bearer token"
	tokenIssueFailedMessageConstant   = "Bearer token issuance failed"
	logFieldEnvironmentConstant       = "environment"
	logFieldBaseURLConstant           = "base_url"
	logFieldStatusCodeConstant        = "status_code"
)

var (
	// ErrKeyResolverNotConfigured indicates the issuer was constructed without a key resolver.
	ErrKeyResolverNotConfigured = errors.New(keyResolverMissingMessageConstant)
	// ErrHTTPClientNotConfigured indicates the issuer was constructed without an HTTP client.
	ErrHTTPClientNotConfigured = errors.New(httpClientMissingMessageConstant)
)

// APIKeyResolver resolves an API key declaration to the key value.
type APIKeyResolver interface {
	Resolve(declaration string) (string, error)
}

// IssuerDependencies captures collaborators required by Issuer.
type IssuerDependencies struct {
	HTTPClient     platform.HTTPClient
	KeyResolver    APIKeyResolver
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type cachedIssuance struct {
	token string
	err   error
}

type environmentKey struct {
	name    string
	baseURL string
}

// Issuer exchanges API keys for bearer tokens and remembers the outcome per environment.
// Authentication failures are cached; transient failures are not.
type Issuer struct {
	httpClient     platform.HTTPClient
	keyResolver    APIKeyResolver
	requestTimeout time.Duration
	logger         *zap.Logger
	mutex          sync.Mutex
	issued         map[environmentKey]cachedIssuance
}

type issuedToken struct {
	Token string `json:"token"`
}

// NewIssuer constructs an Issuer.
func NewIssuer(dependencies IssuerDependencies) (*Issuer, error) {
	if dependencies.HTTPClient == nil {
		return nil, ErrHTTPClientNotConfigured
	}
	if dependencies.KeyResolver == nil {
		return nil, ErrKeyResolverNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	requestTimeout := dependencies.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultIssueTimeoutConstant
	}

	return &Issuer{
		httpClient:     dependencies.HTTPClient,
		keyResolver:    dependencies.KeyResolver,
		requestTimeout: requestTimeout,
		logger:         logger,
		issued:         make(map[environmentKey]cachedIssuance),
	}, nil
}

// Token returns a bearer token for the environment, issuing one on first use.
func (issuer *Issuer) Token(tokenContext context.Context, environment platform.Environment) (string, error) {
	key := environmentKey{name: environment.Name, baseURL: strings.TrimRight(strings.TrimSpace(environment.BaseURL), "/")}

	issuer.mutex.Lock()
	defer issuer.mutex.Unlock()

	if cached, exists := issuer.issued[key]; exists {
		return cached.token, cached.err
	}

	token, issueError := issuer.issue(tokenContext, environment)
	if issueError != nil {
		issuer.logger.Warn(
			tokenIssueFailedMessageConstant,
			zap.String(logFieldEnvironmentConstant, environment.Name),
			zap.String(logFieldBaseURLConstant, key.baseURL),
			zap.Error(issueError),
		)
		if platform.IsAuthError(issueError) {
			issuer.issued[key] = cachedIssuance{err: issueError}
		}
		return "", issueError
	}

	issuer.logger.Debug(
		tokenIssuedMessageConstant,
		zap.String(logFieldEnvironmentConstant, environment.Name),
		zap.String(logFieldBaseURLConstant, key.baseURL),
	)
	issuer.issued[key] = cachedIssuance{token: token}
	return token, nil
}

func (issuer *Issuer) issue(issueContext context.Context, environment platform.Environment) (string, error) {
	apiKey, resolveError := issuer.keyResolver.Resolve(environment.APIKeySource)
	if resolveError != nil {
		return "", platform.AuthError{Environment: environment.Name, Operation: issueTokenOperationNameConstant, Cause: resolveError}
	}

	callContext, cancel := context.WithTimeout(issueContext, issuer.requestTimeout)
	defer cancel()

	request, requestError := http.NewRequestWithContext(callContext, http.MethodPost, environment.Endpoint(issueTokenPathConstant), http.NoBody)
	if requestError != nil {
		return "", platform.OperationError{Operation: issueTokenOperationNameConstant, Cause: requestError}
	}
	request.Header.Set(apiKeyHeaderNameConstant, apiKey)
	request.Header.Set(acceptHeaderNameConstant, jsonContentTypeConstant)

	httpResponse, doError := issuer.httpClient.Do(request)
	if doError != nil {
		if errors.Is(doError, context.Canceled) && errors.Is(issueContext.Err(), context.Canceled) {
			return "", platform.OperationError{Operation: issueTokenOperationNameConstant, Cause: doError}
		}
		return "", platform.TransientNetworkError{Operation: issueTokenOperationNameConstant, Cause: doError}
	}
	defer httpResponse.Body.Close()

	responseBody, readError := io.ReadAll(httpResponse.Body)
	if readError != nil {
		return "", platform.TransientNetworkError{Operation: issueTokenOperationNameConstant, StatusCode: httpResponse.StatusCode, Cause: readError}
	}

	switch {
	case httpResponse.StatusCode >= 500 || httpResponse.StatusCode == http.StatusTooManyRequests || httpResponse.StatusCode == http.StatusRequestTimeout:
		return "", platform.TransientNetworkError{Operation: issueTokenOperationNameConstant, StatusCode: httpResponse.StatusCode}
	case httpResponse.StatusCode >= 400:
		return "", platform.AuthError{Environment: environment.Name, Operation: issueTokenOperationNameConstant, StatusCode: httpResponse.StatusCode}
	}

	var issued issuedToken
	if decodeError := json.Unmarshal(responseBody, &issued); decodeError != nil {
		return "", platform.ResponseDecodingError{Operation: issueTokenOperationNameConstant, Cause: decodeError}
	}
	token := strings.TrimSpace(issued.Token)
	if len(token) == 0 {
		return "", platform.AuthError{
			Environment: environment.Name,
			Operation:   issueTokenOperationNameConstant,
			StatusCode:  httpResponse.StatusCode,
			Cause:       platform.MissingContentError{Operation: issueTokenOperationNameConstant, Field: tokenFieldNameConstant},
		}
	}
	return token, nil
}
