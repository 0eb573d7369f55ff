package platform_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	testTokenValueConstant = "test-bearer-token"
)

type staticTokenSource struct {
	token string
	err   error
}

func (source staticTokenSource) Token(context.Context, platform.Environment) (string, error) {
	return source.token, source.err
}

func newTestClient(testInstance *testing.T, handler http.Handler) *platform.Client {
	testInstance.Helper()
	server := httptest.NewServer(handler)
	testInstance.Cleanup(server.Close)

	client, clientError := platform.NewClient(platform.ClientDependencies{
		Environment:    platform.Environment{Name: platform.EnvironmentNameSource, BaseURL: server.URL},
		HTTPClient:     server.Client(),
		TokenSource:    staticTokenSource{token: testTokenValueConstant},
		RequestTimeout: 2 * time.Second,
	})
	require.NoError(testInstance, clientError)
	return client
}

func writeJSON(responseWriter http.ResponseWriter, statusCode int, payload any) {
	responseWriter.Header().Set("Content-Type", "application/json")
	responseWriter.WriteHeader(statusCode)
	_ = json.NewEncoder(responseWriter).Encode(payload)
}

// requestRecorder captures request payloads observed by fake platform handlers.
type requestRecorder struct {
	mutex    sync.Mutex
	payloads map[string]map[string]any
}

func newRequestRecorder() *requestRecorder {
	return &requestRecorder{payloads: map[string]map[string]any{}}
}

func (recorder *requestRecorder) record(key string, request *http.Request) map[string]any {
	body, _ := io.ReadAll(request.Body)
	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.payloads[key] = payload
	return payload
}

func (recorder *requestRecorder) seen(key string) bool {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	_, exists := recorder.payloads[key]
	return exists
}

func (recorder *requestRecorder) payload(key string) map[string]any {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.payloads[key]
}

func TestNewClientValidatesDependencies(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name          string
		dependencies  platform.ClientDependencies
		expectedError error
	}{
		{
			name:          "missing_http_client",
			dependencies:  platform.ClientDependencies{TokenSource: staticTokenSource{}, Environment: platform.Environment{BaseURL: "https://example.test"}},
			expectedError: platform.ErrHTTPClientNotConfigured,
		},
		{
			name:          "missing_token_source",
			dependencies:  platform.ClientDependencies{HTTPClient: http.DefaultClient, Environment: platform.Environment{BaseURL: "https://example.test"}},
			expectedError: platform.ErrTokenSourceNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testInstance.Parallel()
			client, clientError := platform.NewClient(testCase.dependencies)
			require.Nil(testInstance, client)
			require.ErrorIs(testInstance, clientError, testCase.expectedError)
		})
	}

	_, invalidURLError := platform.NewClient(platform.ClientDependencies{
		HTTPClient:  http.DefaultClient,
		TokenSource: staticTokenSource{},
		Environment: platform.Environment{BaseURL: "not a url"},
	})
	var inputError platform.InvalidInputError
	require.True(testInstance, errors.As(invalidURLError, &inputError))
}

func TestClientClassifiesResponseStatuses(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name             string
		statusCode       int
		expectedCategory shared.FailureCategory
		expectRetryable  bool
	}{
		{name: "unauthorized", statusCode: http.StatusUnauthorized, expectedCategory: shared.FailureCategoryAuth},
		{name: "forbidden", statusCode: http.StatusForbidden, expectedCategory: shared.FailureCategoryAuth},
		{name: "not_found", statusCode: http.StatusNotFound, expectedCategory: shared.FailureCategoryNotFound},
		{name: "unprocessable", statusCode: http.StatusUnprocessableEntity, expectedCategory: shared.FailureCategoryValidation},
		{name: "bad_request", statusCode: http.StatusBadRequest, expectedCategory: shared.FailureCategoryValidation},
		{name: "throttled", statusCode: http.StatusTooManyRequests, expectedCategory: shared.FailureCategoryTransient, expectRetryable: true},
		{name: "unavailable", statusCode: http.StatusServiceUnavailable, expectedCategory: shared.FailureCategoryTransient, expectRetryable: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testInstance.Parallel()

			router := httprouter.New()
			router.GET("/api/process-manager/processDefinitions/:id", func(responseWriter http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
				writeJSON(responseWriter, testCase.statusCode, map[string]any{"message": "rejected"})
			})
			client := newTestClient(testInstance, router)

			_, fetchError := client.FetchProcessDefinition(context.Background(), "pd-1")
			require.Error(testInstance, fetchError)
			require.Equal(testInstance, testCase.expectedCategory, platform.Classify(fetchError))
			require.Equal(testInstance, testCase.expectRetryable, platform.IsRetryable(fetchError))
		})
	}
}

func TestClientTruncatesValidationMessagesOnRuneBoundary(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name            string
		body            string
		expectedMessage string
	}{
		{name: "short_message", body: "name taken", expectedMessage: "name taken"},
		{name: "ascii_message", body: strings.Repeat("a", 600), expectedMessage: strings.Repeat("a", 512) + "..."},
		{name: "multibyte_message", body: "a" + strings.Repeat("é", 300), expectedMessage: "a" + strings.Repeat("é", 255) + "..."},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testInstance.Parallel()

			router := httprouter.New()
			router.GET("/api/process-manager/processDefinitions/:id", func(responseWriter http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
				responseWriter.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(responseWriter, testCase.body)
			})
			client := newTestClient(testInstance, router)

			_, fetchError := client.FetchProcessDefinition(context.Background(), "pd-1")
			var validationError platform.ValidationError
			require.True(testInstance, errors.As(fetchError, &validationError))
			require.True(testInstance, utf8.ValidString(validationError.Message))
			require.Equal(testInstance, testCase.expectedMessage, validationError.Message)
		})
	}
}

func TestListVersionsWarnsWhenFirstVersionIsMissing(testInstance *testing.T) {
	testInstance.Parallel()

	router := httprouter.New()
	router.GET("/api/process-manager/cloudFunctions/:name/versions", func(responseWriter http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(responseWriter, http.StatusOK, map[string]any{
			"content": []map[string]any{{"id": "record-3", "name": "cf-1", "version": 3, "status": "DEPLOYED_ACTIVE"}},
			"last":    true,
		})
	})
	server := httptest.NewServer(router)
	testInstance.Cleanup(server.Close)

	core, observedLogs := observer.New(zapcore.InfoLevel)
	client, clientError := platform.NewClient(platform.ClientDependencies{
		Environment: platform.Environment{Name: platform.EnvironmentNameSource, BaseURL: server.URL},
		HTTPClient:  server.Client(),
		TokenSource: staticTokenSource{token: testTokenValueConstant},
		Logger:      zap.New(core),
	})
	require.NoError(testInstance, clientError)

	versions, listError := client.ListVersions(context.Background(), shared.AssetKindCloudFunction, "cf-1")
	require.NoError(testInstance, listError)
	require.Len(testInstance, versions, 1)

	missingFirstVersion := observedLogs.FilterMessage("Version 1 not found after checking all pages").All()
	require.Len(testInstance, missingFirstVersion, 1)
	require.Equal(testInstance, zapcore.WarnLevel, missingFirstVersion[0].Level)
}

func TestClientTokenFailureIsSurfaced(testInstance *testing.T) {
	testInstance.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	testInstance.Cleanup(server.Close)

	rejection := platform.AuthError{Environment: platform.EnvironmentNameDestination, StatusCode: http.StatusUnauthorized}
	client, clientError := platform.NewClient(platform.ClientDependencies{
		Environment: platform.Environment{Name: platform.EnvironmentNameDestination, BaseURL: server.URL},
		HTTPClient:  server.Client(),
		TokenSource: staticTokenSource{err: rejection},
	})
	require.NoError(testInstance, clientError)

	require.True(testInstance, platform.IsAuthError(client.VerifyAccess(context.Background())))
	_, fetchError := client.FetchProcessDefinition(context.Background(), "pd-1")
	require.True(testInstance, platform.IsAuthError(fetchError))
	require.Zero(testInstance, hits.Load())
}

func TestClientOpensCircuitAfterRepeatedTransientFailures(testInstance *testing.T) {
	testInstance.Parallel()

	var hits atomic.Int32
	router := httprouter.New()
	router.GET("/api/process-manager/processDefinitions/:id", func(responseWriter http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		hits.Add(1)
		writeJSON(responseWriter, http.StatusBadGateway, map[string]any{})
	})
	client := newTestClient(testInstance, router)

	for attempt := 0; attempt < 5; attempt++ {
		_, fetchError := client.FetchProcessDefinition(context.Background(), "pd-1")
		require.True(testInstance, platform.IsRetryable(fetchError))
	}
	require.Equal(testInstance, int32(5), hits.Load())

	_, openCircuitError := client.FetchProcessDefinition(context.Background(), "pd-1")
	require.True(testInstance, platform.IsRetryable(openCircuitError))
	require.Equal(testInstance, int32(5), hits.Load())
}

func TestClientValidationFailuresDoNotOpenCircuit(testInstance *testing.T) {
	testInstance.Parallel()

	var hits atomic.Int32
	router := httprouter.New()
	router.GET("/api/process-manager/processDefinitions/:id", func(responseWriter http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		hits.Add(1)
		writeJSON(responseWriter, http.StatusNotFound, map[string]any{})
	})
	client := newTestClient(testInstance, router)

	for attempt := 0; attempt < 8; attempt++ {
		_, fetchError := client.FetchProcessDefinition(context.Background(), "pd-1")
		require.Equal(testInstance, shared.FailureCategoryNotFound, platform.Classify(fetchError))
	}
	require.Equal(testInstance, int32(8), hits.Load())
}

func TestFetchProcessDefinitionDecodesDocument(testInstance *testing.T) {
	testInstance.Parallel()

	workflowDocument := "<bpmn:definitions/>"
	router := httprouter.New()
	router.GET("/api/process-manager/processDefinitions/:id", func(responseWriter http.ResponseWriter, request *http.Request, parameters httprouter.Params) {
		if request.Header.Get("Authorization") != "Bearer "+testTokenValueConstant {
			writeJSON(responseWriter, http.StatusUnauthorized, map[string]any{})
			return
		}
		writeJSON(responseWriter, http.StatusOK, map[string]any{
			"id":      parameters.ByName("id"),
			"name":    "Onboarding",
			"themeId": "theme-9",
			"resources": map[string]any{
				"bpmn": map[string]any{"data": base64.StdEncoding.EncodeToString([]byte(workflowDocument))},
			},
		})
	})
	client := newTestClient(testInstance, router)

	definition, fetchError := client.FetchProcessDefinition(context.Background(), "pd-1")
	require.NoError(testInstance, fetchError)
	require.Equal(testInstance, platform.ProcessDefinition{ID: "pd-1", Name: "Onboarding", ThemeID: "theme-9", Document: []byte(workflowDocument)}, definition)
}

func TestFetchProcessDefinitionRejectsMissingDocument(testInstance *testing.T) {
	testInstance.Parallel()

	router := httprouter.New()
	router.GET("/api/process-manager/processDefinitions/:id", func(responseWriter http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(responseWriter, http.StatusOK, map[string]any{"id": "pd-1"})
	})
	client := newTestClient(testInstance, router)

	_, fetchError := client.FetchProcessDefinition(context.Background(), "pd-1")
	require.Equal(testInstance, shared.FailureCategoryContent, platform.Classify(fetchError))
}

func TestCreateProcessDefinitionActivatesWithMetadata(testInstance *testing.T) {
	testInstance.Parallel()

	recorder := newRequestRecorder()
	router := httprouter.New()
	router.POST("/api/process-manager/processDefinitions", func(responseWriter http.ResponseWriter, request *http.Request, _ httprouter.Params) {
		payload := recorder.record("create", request)
		writeJSON(responseWriter, http.StatusCreated, map[string]any{"id": "pd-new", "name": payload["name"], "version": 1})
	})
	router.POST("/api/process-manager/processDefinitions/:id/status/DEPLOYED_ACTIVE", func(responseWriter http.ResponseWriter, request *http.Request, parameters httprouter.Params) {
		recorder.record("activate:"+parameters.ByName("id"), request)
		writeJSON(responseWriter, http.StatusOK, map[string]any{"id": "pd-new", "name": "Copy", "version": 2})
	})
	client := newTestClient(testInstance, router)

	record, createError := client.CreateProcessDefinition(context.Background(), platform.ProcessDefinitionDraft{
		Name:                  "Copy",
		ServerType:            "P1",
		ProcessDefinitionType: "VERIFICATION",
		Document:              []byte("<definitions/>"),
		ThemeID:               "theme-new",
	})
	require.NoError(testInstance, createError)
	require.Equal(testInstance, "pd-new", record.ID)
	require.Equal(testInstance, "1", record.Version)
	require.False(testInstance, recorder.seen("activate:pd-new"))

	createdPayload := recorder.payload("create")
	require.Equal(testInstance, "theme-new", createdPayload["themeId"])
	require.Equal(testInstance, "P1", createdPayload["serverType"])
	require.Equal(testInstance, "VERIFICATION", createdPayload["processDefinitionType"])
	require.Equal(testInstance, map[string]any{"searchable": true}, createdPayload["attributes"])
	require.Equal(testInstance, map[string]any{
		"bpmn": map[string]any{"data": base64.StdEncoding.EncodeToString([]byte("<definitions/>")), "type": "BPMN"},
	}, createdPayload["resources"])

	activated, activationError := client.ActivateProcessDefinition(context.Background(), record)
	require.NoError(testInstance, activationError)
	require.Equal(testInstance, "2", activated.Version)
	require.Equal(testInstance, "pd-new", recorder.payload("activate:pd-new")["id"])
}

func TestCreateProcessDefinitionOmitsEmptyTheme(testInstance *testing.T) {
	testInstance.Parallel()

	recorder := newRequestRecorder()
	router := httprouter.New()
	router.POST("/api/process-manager/processDefinitions", func(responseWriter http.ResponseWriter, request *http.Request, _ httprouter.Params) {
		recorder.record("create", request)
		writeJSON(responseWriter, http.StatusCreated, map[string]any{"id": "pd-new"})
	})
	router.POST("/api/process-manager/processDefinitions/:id/status/DEPLOYED_ACTIVE", func(responseWriter http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(responseWriter, http.StatusOK, map[string]any{"id": "pd-new"})
	})
	client := newTestClient(testInstance, router)

	_, createError := client.CreateProcessDefinition(context.Background(), platform.ProcessDefinitionDraft{Name: "Copy", Document: []byte("<definitions/>")})
	require.NoError(testInstance, createError)
	_, hasTheme := recorder.payload("create")["themeId"]
	require.False(testInstance, hasTheme)
}
