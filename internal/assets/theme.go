package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/mohae/deepcopy"

	"github.com/temirov/trustx-migrate/internal/platform"
	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	themeLabelConstant                     = "theme"
	themeIdentifierFieldConstant           = "id"
	themeNameFieldConstant                 = "name"
	themeVersionFieldConstant              = "version"
	themePaletteFieldConstant              = "palette"
	themeAssetSkippedTemplateConstant      = "theme asset %s skipped: %v"
	themeTransformErrorMessageConstant     = "theme document could not be copied"
	themeDocumentFieldNameConstant         = "theme"
	themeAssetUploadFailedTemplateConstant = "theme asset %s not uploaded: %v"
	themeSnapshotFolderTemplateConstant    = "%s_%s_v%s"
	themeSnapshotDocumentNameConstant      = "theme.json"
	themeSnapshotAssetsFolderConstant      = "assets"
	themeSnapshotIndentConstant            = "  "
)

// themeSourceOnlyFields are assigned by the source environment and must not be replayed.
var themeSourceOnlyFields = []string{
	"id",
	"createdAt",
	"updatedAt",
	"createdBy",
	"updatedBy",
	"version",
	"status",
	"assets",
}

// ThemeSource reads theme documents and their asset files.
type ThemeSource interface {
	AssetDownloader
	Environment() platform.Environment
	FetchTheme(fetchContext context.Context, themeID string) (map[string]any, error)
}

// ThemeDestination creates, populates and activates themes.
type ThemeDestination interface {
	CreateThemeSkeleton(createContext context.Context, skeleton platform.ThemeSkeleton) (platform.CreatedRecord, error)
	UploadThemeAsset(uploadContext context.Context, themeID string, attachment shared.Attachment) error
	UpdateTheme(updateContext context.Context, themeID string, document map[string]any) error
	AssetActivator
}

// ThemeMigrator copies a theme with its fonts and images.
type ThemeMigrator struct {
	source      ThemeSource
	destination ThemeDestination
}

// NewThemeMigrator constructs a ThemeMigrator.
func NewThemeMigrator(source ThemeSource, destination ThemeDestination) *ThemeMigrator {
	return &ThemeMigrator{source: source, destination: destination}
}

// Kind reports the theme asset kind.
func (migrator *ThemeMigrator) Kind() shared.AssetKind {
	return shared.AssetKindTheme
}

// Describe renders the reference for logs.
func (migrator *ThemeMigrator) Describe(reference shared.AssetReference) string {
	return describeReference(themeLabelConstant, reference)
}

// Fetch loads the theme document and downloads every global asset it lists.
func (migrator *ThemeMigrator) Fetch(fetchContext context.Context, reference shared.AssetReference) (shared.AssetContent, error) {
	document, fetchError := migrator.source.FetchTheme(fetchContext, reference.SourceID)
	if fetchError != nil {
		return shared.AssetContent{}, fetchError
	}

	content := shared.AssetContent{
		Reference:      reference,
		Name:           documentText(document, themeNameFieldConstant),
		Version:        documentText(document, themeVersionFieldConstant),
		SourceRecordID: reference.SourceID,
		Document:       document,
	}

	for _, location := range platform.ThemeAssetLocations(document) {
		assetURL, fileName, resolveError := migrator.resolveAssetLocation(location)
		if resolveError != nil {
			content.Warnings = append(content.Warnings, fmt.Sprintf(themeAssetSkippedTemplateConstant, location, resolveError))
			continue
		}
		data, downloadError := migrator.source.DownloadAsset(fetchContext, assetURL)
		if downloadError != nil {
			var notFoundError platform.NotFoundError
			if errors.As(downloadError, &notFoundError) {
				content.Warnings = append(content.Warnings, fmt.Sprintf(themeAssetSkippedTemplateConstant, location, downloadError))
				continue
			}
			return shared.AssetContent{}, downloadError
		}
		content.Attachments = append(content.Attachments, shared.Attachment{
			FileName:    fileName,
			ContentType: platform.ThemeAssetContentType(fileName),
			Data:        data,
		})
	}
	return content, nil
}

// Transform strips identifiers assigned by the source environment from a copy of the theme document.
func (migrator *ThemeMigrator) Transform(content shared.AssetContent) (shared.AssetContent, error) {
	return TransformThemeContent(content)
}

// TransformThemeContent is the pure theme transform applied before creation.
func TransformThemeContent(content shared.AssetContent) (shared.AssetContent, error) {
	copied, isDocument := deepcopy.Copy(content.Document).(map[string]any)
	if !isDocument && content.Document != nil {
		return shared.AssetContent{}, platform.InvalidInputError{FieldName: themeDocumentFieldNameConstant, Message: themeTransformErrorMessageConstant}
	}
	if copied == nil {
		copied = map[string]any{}
	}
	for _, field := range themeSourceOnlyFields {
		delete(copied, field)
	}

	transformed := content
	transformed.Document = copied
	transformed.Attachments = append([]shared.Attachment(nil), content.Attachments...)
	return transformed, nil
}

// Snapshot keeps the fetched theme document and its downloaded assets in one folder per theme version.
func (migrator *ThemeMigrator) Snapshot(content shared.AssetContent) []shared.SourceArtifact {
	folder := fmt.Sprintf(themeSnapshotFolderTemplateConstant, destinationName(content), content.SourceRecordID, content.Version)
	var artifacts []shared.SourceArtifact
	if encodedDocument, encodeError := json.MarshalIndent(content.Document, "", themeSnapshotIndentConstant); encodeError == nil {
		artifacts = append(artifacts, shared.SourceArtifact{FileName: path.Join(folder, themeSnapshotDocumentNameConstant), Data: encodedDocument})
	}
	for _, attachment := range content.Attachments {
		artifacts = append(artifacts, shared.SourceArtifact{
			FileName: path.Join(folder, themeSnapshotAssetsFolderConstant, attachment.FileName),
			Data:     attachment.Data,
		})
	}
	return artifacts
}

// Create builds the theme skeleton, uploads its assets, replays the full document and activates it.
// Each step is retried on its own against the skeleton record. An asset that cannot be uploaded
// is reported as a warning and the theme is still activated.
func (migrator *ThemeMigrator) Create(createContext context.Context, content shared.AssetContent, retrier *StepRetrier) (CreatedAsset, error) {
	skeleton := platform.ThemeSkeleton{
		Name:        destinationName(content),
		Description: sourceDescription(content),
		Palette:     content.Document[themePaletteFieldConstant],
	}
	var created platform.CreatedRecord
	createError := retrier.Do(createContext, func(attemptContext context.Context) error {
		record, attemptError := migrator.destination.CreateThemeSkeleton(attemptContext, skeleton)
		if attemptError != nil {
			return attemptError
		}
		created = record
		return nil
	})
	if createError != nil {
		return CreatedAsset{}, createError
	}

	var warnings []string
	for _, attachment := range content.Attachments {
		uploadError := retrier.Do(createContext, func(attemptContext context.Context) error {
			return migrator.destination.UploadThemeAsset(attemptContext, created.ID, attachment)
		})
		if uploadError != nil {
			warnings = append(warnings, fmt.Sprintf(themeAssetUploadFailedTemplateConstant, attachment.FileName, uploadError))
		}
	}

	document := make(map[string]any, len(content.Document)+1)
	for key, value := range content.Document {
		document[key] = value
	}
	document[themeIdentifierFieldConstant] = created.ID
	updateError := retrier.Do(createContext, func(attemptContext context.Context) error {
		return migrator.destination.UpdateTheme(attemptContext, created.ID, document)
	})
	if updateError != nil {
		partial := createdAssetFromRecord(created)
		partial.Warnings = warnings
		return partial, updateError
	}

	activated, activationError := activateRecord(createContext, retrier, shared.AssetKindTheme, migrator.destination, created)
	activated.Warnings = warnings
	return activated, activationError
}

func (migrator *ThemeMigrator) resolveAssetLocation(location string) (string, string, error) {
	parsedLocation, parseError := url.Parse(strings.TrimSpace(location))
	if parseError != nil {
		return "", "", parseError
	}
	assetURL := parsedLocation.String()
	if !parsedLocation.IsAbs() {
		assetURL = migrator.source.Environment().Endpoint(parsedLocation.String())
	}
	return assetURL, path.Base(parsedLocation.Path), nil
}

func documentText(document map[string]any, field string) string {
	value, exists := document[field]
	if !exists || value == nil {
		return ""
	}
	if text, isText := value.(string); isText {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
