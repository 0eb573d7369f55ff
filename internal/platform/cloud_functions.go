package platform

import (
	"context"
	"strconv"
	"strings"

	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	fetchCloudFunctionOperationNameConstant  = OperationName("FetchCloudFunction")
	createCloudFunctionOperationNameConstant = OperationName("CreateCloudFunction")
	scriptFieldConstant                      = "script"
	typeFieldConstant                        = "type"
	defaultCloudFunctionTypeConstant         = "PYTHON39V1"
)

// CloudFunctionDraft is the destination payload for a cloud function.
type CloudFunctionDraft struct {
	Name        string
	Description string
	Type        string
	Script      string
}

// FetchCloudFunction resolves the referenced cloud function version and returns its script.
func (client *Client) FetchCloudFunction(fetchContext context.Context, reference shared.AssetReference) (shared.AssetContent, error) {
	summary, detail, fetchError := client.fetchVersionDetail(fetchContext, reference)
	if fetchError != nil {
		return shared.AssetContent{}, fetchError
	}

	script, scriptFound := textResource(detail[resourceFieldConstant], scriptFieldConstant)
	if !scriptFound {
		return shared.AssetContent{}, MissingContentError{Operation: fetchCloudFunctionOperationNameConstant, Field: resourceFieldConstant}
	}

	return shared.AssetContent{
		Reference:      reference,
		Name:           nameOrReference(summary.Name, reference),
		Version:        strconv.Itoa(summary.Version),
		SourceRecordID: summary.ID,
		Payload:        []byte(script),
		Document:       detail,
	}, nil
}

// CreateCloudFunction creates the cloud function in an editable state. ActivateAsset deploys it.
func (client *Client) CreateCloudFunction(createContext context.Context, draft CloudFunctionDraft) (CreatedRecord, error) {
	functionType := strings.TrimSpace(draft.Type)
	if len(functionType) == 0 {
		functionType = defaultCloudFunctionTypeConstant
	}
	payload := map[string]any{
		nameFieldConstant:        draft.Name,
		descriptionFieldConstant: draft.Description,
		statusFieldConstant:      statusEditableValueConstant,
		typeFieldConstant:        functionType,
		resourceFieldConstant:    draft.Script,
	}
	return client.createRecord(createContext, createCloudFunctionOperationNameConstant, shared.AssetKindCloudFunction, payload)
}

// textResource accepts either a plain string resource or an object carrying the text under field.
func textResource(resource any, field string) (string, bool) {
	switch typedResource := resource.(type) {
	case string:
		trimmed := strings.TrimSpace(typedResource)
		return trimmed, len(trimmed) > 0
	case map[string]any:
		text, isText := typedResource[field].(string)
		if !isText {
			return "", false
		}
		trimmed := strings.TrimSpace(text)
		return trimmed, len(trimmed) > 0
	default:
		return "", false
	}
}

func nameOrReference(name string, reference shared.AssetReference) string {
	if len(strings.TrimSpace(name)) > 0 {
		return strings.TrimSpace(name)
	}
	return reference.SourceID
}
