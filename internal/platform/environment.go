package platform

import (
	"context"
	"net/http"
	"strings"
)

// Environment roles used in logs and errors.
const (
	EnvironmentNameSource      = "source"
	EnvironmentNameDestination = "destination"
)

// Environment identifies a deployment target by base URL and credentials reference.
type Environment struct {
	Name         string
	BaseURL      string
	APIKeySource string
}

// Endpoint joins the environment base URL with an API path.
func (environment Environment) Endpoint(path string) string {
	return strings.TrimRight(environment.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// TokenSource supplies bearer tokens for an environment.
type TokenSource interface {
	Token(tokenContext context.Context, environment Environment) (string, error)
}

// HTTPClient executes HTTP requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}
