package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	listVersionsOperationNameConstant      = OperationName("ListVersions")
	selectVersionOperationNameConstant     = OperationName("SelectVersion")
	fetchDetailOperationNameConstant       = OperationName("FetchVersionDetail")
	activateOperationNameConstant          = OperationName("Activate")
	versionsPathTemplateConstant           = "%s/%s/versions"
	pageQueryParameterConstant             = "page"
	sizeQueryParameterConstant             = "size"
	sortQueryParameterConstant             = "sort"
	versionPageSizeConstant                = 20
	versionSortOrderConstant               = "version,desc"
	firstVersionNumberConstant             = 1
	maximumVersionPagesConstant            = 500
	versionResourceTemplateConstant        = "%s %q version %s"
	activeVersionResourceTemplateConstant  = "%s %q active version"
	versionsResourceTemplateConstant       = "%s %q versions"
	unsupportedKindMessageTemplateConstant = "asset kind %q has no platform endpoint"
	kindFieldNameConstant                  = "kind"
	firstVersionMissingMessageConstant     = "Version 1 not found after checking all pages"
	logFieldAssetKindConstant              = "asset_kind"
	logFieldAssetNameConstant              = "asset_name"
	logFieldVersionCountConstant           = "version_count"
)

// VersionSummary is one entry of an asset's version history.
type VersionSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int    `json:"version"`
	Status  string `json:"status"`
}

type versionPage struct {
	Content []VersionSummary `json:"content"`
	Last    *bool            `json:"last"`
}

func kindPath(kind shared.AssetKind) (string, error) {
	path, exists := assetKindPaths[kind]
	if !exists {
		return "", InvalidInputError{FieldName: kindFieldNameConstant, Message: fmt.Sprintf(unsupportedKindMessageTemplateConstant, kind)}
	}
	return path, nil
}

// ListVersions pages through the version history of a named asset, newest first.
// Paging stops once version 1 is seen or the platform reports the last page.
func (client *Client) ListVersions(listContext context.Context, kind shared.AssetKind, name string) ([]VersionSummary, error) {
	basePath, pathError := kindPath(kind)
	if pathError != nil {
		return nil, pathError
	}

	versionsPath := fmt.Sprintf(versionsPathTemplateConstant, basePath, url.PathEscape(name))
	var versions []VersionSummary
	foundFirstVersion := false

	for pageNumber := 0; pageNumber < maximumVersionPagesConstant; pageNumber++ {
		query := url.Values{}
		query.Set(pageQueryParameterConstant, strconv.Itoa(pageNumber))
		query.Set(sizeQueryParameterConstant, strconv.Itoa(versionPageSizeConstant))
		query.Set(sortQueryParameterConstant, versionSortOrderConstant)

		var page versionPage
		if requestError := client.doJSON(listContext, listVersionsOperationNameConstant, http.MethodGet, versionsPath, query, nil, &page); requestError != nil {
			return nil, requestError
		}
		if len(page.Content) == 0 {
			break
		}
		versions = append(versions, page.Content...)

		for _, summary := range page.Content {
			if summary.Version == firstVersionNumberConstant {
				foundFirstVersion = true
			}
		}
		if foundFirstVersion {
			break
		}
		if page.Last == nil || *page.Last {
			break
		}
	}

	if !foundFirstVersion {
		client.logger.Warn(
			firstVersionMissingMessageConstant,
			zap.String(logFieldAssetKindConstant, string(kind)),
			zap.String(logFieldAssetNameConstant, name),
			zap.Int(logFieldVersionCountConstant, len(versions)),
		)
	}
	if len(versions) == 0 {
		return nil, NotFoundError{Operation: listVersionsOperationNameConstant, Resource: fmt.Sprintf(versionsResourceTemplateConstant, kind, name)}
	}
	return versions, nil
}

// SelectVersion picks the requested version, or the first active version when none is requested.
func SelectVersion(kind shared.AssetKind, name string, versions []VersionSummary, requestedVersion string) (VersionSummary, error) {
	if len(requestedVersion) > 0 {
		requestedNumber, parseError := strconv.Atoi(requestedVersion)
		if parseError != nil {
			return VersionSummary{}, InvalidInputError{FieldName: versionFieldConstant, Message: parseError.Error()}
		}
		for _, summary := range versions {
			if summary.Version == requestedNumber {
				return summary, nil
			}
		}
		return VersionSummary{}, NotFoundError{Operation: selectVersionOperationNameConstant, Resource: fmt.Sprintf(versionResourceTemplateConstant, kind, name, requestedVersion)}
	}

	for _, summary := range versions {
		if summary.Status == statusActiveValueConstant {
			return summary, nil
		}
	}
	return VersionSummary{}, NotFoundError{Operation: selectVersionOperationNameConstant, Resource: fmt.Sprintf(activeVersionResourceTemplateConstant, kind, name)}
}

// fetchVersionDetail resolves the referenced version and returns its detail document.
func (client *Client) fetchVersionDetail(fetchContext context.Context, reference shared.AssetReference) (VersionSummary, map[string]any, error) {
	basePath, pathError := kindPath(reference.Kind)
	if pathError != nil {
		return VersionSummary{}, nil, pathError
	}

	versions, listError := client.ListVersions(fetchContext, reference.Kind, reference.SourceID)
	if listError != nil {
		return VersionSummary{}, nil, listError
	}
	selected, selectError := SelectVersion(reference.Kind, reference.SourceID, versions, reference.SourceVersion)
	if selectError != nil {
		return VersionSummary{}, nil, selectError
	}

	detailPath := fmt.Sprintf(kindResourcePathTemplateConstant, basePath, url.PathEscape(selected.ID))
	var detail map[string]any
	if requestError := client.doJSON(fetchContext, fetchDetailOperationNameConstant, http.MethodGet, detailPath, nil, nil, &detail); requestError != nil {
		return VersionSummary{}, nil, requestError
	}
	if detail == nil {
		return VersionSummary{}, nil, MissingContentError{Operation: fetchDetailOperationNameConstant, Field: resourceFieldConstant}
	}
	return selected, detail, nil
}

// createRecord posts the creation payload and returns the new record without activating it.
func (client *Client) createRecord(createContext context.Context, operation OperationName, kind shared.AssetKind, payload any) (CreatedRecord, error) {
	basePath, pathError := kindPath(kind)
	if pathError != nil {
		return CreatedRecord{}, pathError
	}

	var created map[string]any
	if requestError := client.doJSON(createContext, operation, http.MethodPost, basePath, nil, payload, &created); requestError != nil {
		return CreatedRecord{}, requestError
	}
	return recordFromMetadata(operation, created)
}

// ActivateAsset deploys a record created by one of the Create calls. Custom pages are activated
// with their creation metadata; every other kind with an empty payload.
// Activation never creates a record, so it is safe to repeat after a transient failure.
func (client *Client) ActivateAsset(activateContext context.Context, kind shared.AssetKind, created CreatedRecord) (CreatedRecord, error) {
	basePath, pathError := kindPath(kind)
	if pathError != nil {
		return created, pathError
	}
	if len(strings.TrimSpace(created.ID)) == 0 {
		return created, InvalidInputError{FieldName: identifierFieldConstant, Message: requiredValueMessageConstant}
	}

	var activationPayload any = map[string]any{}
	if kind == shared.AssetKindCustomPage && created.Metadata != nil {
		activationPayload = created.Metadata
	}
	activated, activationError := client.activate(activateContext, basePath, created.ID, activationPayload)
	if activationError != nil {
		return created, activationError
	}
	return mergeRecords(created, activated), nil
}

func (client *Client) activate(activateContext context.Context, basePath string, identifier string, payload any) (map[string]any, error) {
	activationPath := fmt.Sprintf(activationPathTemplateConstant, basePath, url.PathEscape(identifier))
	var activated map[string]any
	if requestError := client.doJSON(activateContext, activateOperationNameConstant, http.MethodPost, activationPath, nil, payload, &activated); requestError != nil {
		return nil, requestError
	}
	return activated, nil
}
