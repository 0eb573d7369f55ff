package platform

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	identifierFieldConstant          = "id"
	nameFieldConstant                = "name"
	versionFieldConstant             = "version"
	statusFieldConstant              = "status"
	descriptionFieldConstant         = "description"
	resourceFieldConstant            = "resource"
	creationOptionFieldConstant      = "creationOption"
	statusEditableValueConstant      = "EDITABLE"
	statusActiveValueConstant        = "DEPLOYED_ACTIVE"
	saveAndDeployOptionConstant      = "Save & Deploy"
	activationPathTemplateConstant   = "%s/%s/status/" + statusActiveValueConstant
	kindResourcePathTemplateConstant = "%s/%s"
)

var assetKindPaths = map[shared.AssetKind]string{
	shared.AssetKindCloudFunction: "api/process-manager/cloudFunctions",
	shared.AssetKindDataForm:      "api/process-manager/customDataForms",
	shared.AssetKindCustomPage:    "api/theme-server/customPages",
	shared.AssetKindTheme:         "api/theme-server/themes",
}

// CreatedRecord describes an asset or process definition created in the destination.
type CreatedRecord struct {
	ID       string
	Name     string
	Version  string
	Metadata map[string]any
}

func recordFromMetadata(operation OperationName, metadata map[string]any) (CreatedRecord, error) {
	identifier := stringValue(metadata[identifierFieldConstant])
	if len(identifier) == 0 {
		return CreatedRecord{}, MissingContentError{Operation: operation, Field: identifierFieldConstant}
	}
	return CreatedRecord{
		ID:       identifier,
		Name:     stringValue(metadata[nameFieldConstant]),
		Version:  stringValue(metadata[versionFieldConstant]),
		Metadata: metadata,
	}, nil
}

// mergeRecords prefers values reported by the activation response.
func mergeRecords(created CreatedRecord, activated map[string]any) CreatedRecord {
	merged := created
	if len(activated) == 0 {
		return merged
	}
	if name := stringValue(activated[nameFieldConstant]); len(name) > 0 {
		merged.Name = name
	}
	if version := stringValue(activated[versionFieldConstant]); len(version) > 0 {
		merged.Version = version
	}
	merged.Metadata = activated
	return merged
}

func stringValue(value any) string {
	switch typedValue := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typedValue)
	case json.Number:
		return typedValue.String()
	case float64:
		return strconv.FormatFloat(typedValue, 'f', -1, 64)
	case int:
		return strconv.Itoa(typedValue)
	case bool:
		return strconv.FormatBool(typedValue)
	default:
		return ""
	}
}

func mapValue(value any) (map[string]any, bool) {
	typedValue, isMap := value.(map[string]any)
	return typedValue, isMap
}
