package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	assetKindCloudFunctionValueConstant        = "cloud_function"
	assetKindDataFormValueConstant             = "data_form"
	assetKindCustomPageValueConstant           = "custom_page"
	assetKindThemeValueConstant                = "theme"
	cloudFunctionsDirectoryNameConstant        = "cloud_functions"
	dataFormsDirectoryNameConstant             = "custom_forms"
	customPagesDirectoryNameConstant           = "custom_pages"
	themeDirectoryNameConstant                 = "theme"
	assetKindEmptyErrorMessageConstant         = "asset kind must be provided"
	assetKindUnsupportedErrorTemplateConstant  = "asset kind %q is not supported"
	assetReferenceFormatConstant               = "%s:%s"
	assetReferenceVersionFormatConstant        = "%s:%s@%s"
	duplicateMappingErrorTemplateConstant      = "mapping already recorded for %s"
	mappingKindInvalidErrorMessageConstant     = "mapping reference has no valid asset kind"
	mappingIdentifierEmptyErrorMessageConstant = "mapping reference has no source identifier"
)

// AssetKind enumerates the closed set of asset kinds a workflow definition can reference.
type AssetKind string

// Supported asset kinds.
const (
	AssetKindCloudFunction AssetKind = AssetKind(assetKindCloudFunctionValueConstant)
	AssetKindDataForm      AssetKind = AssetKind(assetKindDataFormValueConstant)
	AssetKindCustomPage    AssetKind = AssetKind(assetKindCustomPageValueConstant)
	AssetKindTheme         AssetKind = AssetKind(assetKindThemeValueConstant)
)

// AllAssetKinds lists every asset kind in migration order.
func AllAssetKinds() []AssetKind {
	return []AssetKind{AssetKindCloudFunction, AssetKindDataForm, AssetKindCustomPage, AssetKindTheme}
}

// ParseAssetKind normalizes textual asset kind values.
func ParseAssetKind(kindValue string) (AssetKind, error) {
	trimmedValue := strings.ToLower(strings.TrimSpace(kindValue))
	if len(trimmedValue) == 0 {
		return "", errors.New(assetKindEmptyErrorMessageConstant)
	}
	candidate := AssetKind(trimmedValue)
	if !candidate.Valid() {
		return "", fmt.Errorf(assetKindUnsupportedErrorTemplateConstant, kindValue)
	}
	return candidate, nil
}

// Valid reports whether the kind belongs to the closed enumeration.
func (kind AssetKind) Valid() bool {
	switch kind {
	case AssetKindCloudFunction, AssetKindDataForm, AssetKindCustomPage, AssetKindTheme:
		return true
	default:
		return false
	}
}

// DirectoryName resolves the output directory used for artifacts of the kind.
func (kind AssetKind) DirectoryName() string {
	switch kind {
	case AssetKindCloudFunction:
		return cloudFunctionsDirectoryNameConstant
	case AssetKindDataForm:
		return dataFormsDirectoryNameConstant
	case AssetKindCustomPage:
		return customPagesDirectoryNameConstant
	case AssetKindTheme:
		return themeDirectoryNameConstant
	default:
		return string(kind)
	}
}

// AssetKey identifies an asset reference. Two references with the same key are the same asset.
type AssetKey struct {
	Kind     AssetKind
	SourceID string
}

// String renders the key as kind:identifier.
func (key AssetKey) String() string {
	return fmt.Sprintf(assetReferenceFormatConstant, key.Kind, key.SourceID)
}

// AssetReference points at an asset embedded in a workflow definition.
type AssetReference struct {
	Kind          AssetKind `json:"kind" yaml:"kind"`
	SourceID      string    `json:"source_id" yaml:"source_id"`
	SourceVersion string    `json:"source_version,omitempty" yaml:"source_version,omitempty"`
	PageKey       string    `json:"page_key,omitempty" yaml:"page_key,omitempty"`
}

// Key returns the identity of the reference.
func (reference AssetReference) Key() AssetKey {
	return AssetKey{Kind: reference.Kind, SourceID: reference.SourceID}
}

// HasVersion reports whether the workflow pinned a specific version.
func (reference AssetReference) HasVersion() bool {
	return len(reference.SourceVersion) > 0
}

// String renders the reference for logs.
func (reference AssetReference) String() string {
	if reference.HasVersion() {
		return fmt.Sprintf(assetReferenceVersionFormatConstant, reference.Kind, reference.SourceID, reference.SourceVersion)
	}
	return fmt.Sprintf(assetReferenceFormatConstant, reference.Kind, reference.SourceID)
}

// Attachment is a binary file travelling with an asset, such as a theme font or image.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// SourceArtifact is a copy of fetched source content kept on disk for manual recovery.
// FileName may contain slash-separated folders.
type SourceArtifact struct {
	FileName string
	Data     []byte
}

// AssetContent is the kind-specific payload fetched from the source environment.
//
// Payload carries scripts, form definitions, and page archives. Document carries
// structured JSON payloads such as theme token sets.
type AssetContent struct {
	Reference      AssetReference
	Name           string
	Version        string
	SourceRecordID string
	Payload        []byte
	Document       map[string]any
	Attachments    []Attachment
	Warnings       []string
}

// MappingStatus describes the outcome of a single asset migration.
type MappingStatus string

// Mapping statuses.
const (
	MappingStatusSuccess MappingStatus = "success"
	MappingStatusFailed  MappingStatus = "failed"
)

// FailureCategory classifies why an asset migration failed.
type FailureCategory string

// Failure categories.
const (
	FailureCategoryNone       FailureCategory = ""
	FailureCategoryAuth       FailureCategory = "auth"
	FailureCategoryNotFound   FailureCategory = "not_found"
	FailureCategoryValidation FailureCategory = "validation"
	FailureCategoryTransient  FailureCategory = "transient"
	FailureCategoryContent    FailureCategory = "content"
	FailureCategoryUnknown    FailureCategory = "unknown"
)

// MigrationMapping records the old reference to new identifier outcome of one asset.
type MigrationMapping struct {
	Reference           AssetReference   `json:"reference" yaml:"reference"`
	NewID               string           `json:"new_id,omitempty" yaml:"new_id,omitempty"`
	NewVersion          string           `json:"new_version,omitempty" yaml:"new_version,omitempty"`
	DestinationRecordID string           `json:"destination_record_id,omitempty" yaml:"destination_record_id,omitempty"`
	Status              MappingStatus    `json:"status" yaml:"status"`
	Error               string           `json:"error,omitempty" yaml:"error,omitempty"`
	FailureCategory     FailureCategory  `json:"failure_category,omitempty" yaml:"failure_category,omitempty"`
	Attempts            int              `json:"attempts" yaml:"attempts"`
	Warnings            []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	SourceArtifacts     []SourceArtifact `json:"-" yaml:"-"`
}

// Succeeded reports whether the asset was recreated in the destination.
func (mapping MigrationMapping) Succeeded() bool {
	return mapping.Status == MappingStatusSuccess
}

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
