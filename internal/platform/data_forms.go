package platform

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	fetchDataFormOperationNameConstant  = OperationName("FetchDataForm")
	createDataFormOperationNameConstant = OperationName("CreateDataForm")
	formDefinitionFieldConstant         = "formDefinition"
)

// DataFormDraft is the destination payload for a custom data form.
type DataFormDraft struct {
	Name        string
	Description string
	Definition  string
}

// FetchDataForm resolves the referenced data form version and returns its definition.
// Object resources without a formDefinition field are carried as their JSON encoding.
func (client *Client) FetchDataForm(fetchContext context.Context, reference shared.AssetReference) (shared.AssetContent, error) {
	summary, detail, fetchError := client.fetchVersionDetail(fetchContext, reference)
	if fetchError != nil {
		return shared.AssetContent{}, fetchError
	}

	resource := detail[resourceFieldConstant]
	definition, definitionFound := textResource(resource, formDefinitionFieldConstant)
	if !definitionFound {
		resourceObject, isObject := mapValue(resource)
		if !isObject || len(resourceObject) == 0 {
			return shared.AssetContent{}, MissingContentError{Operation: fetchDataFormOperationNameConstant, Field: resourceFieldConstant}
		}
		encodedDefinition, encodeError := json.Marshal(resourceObject)
		if encodeError != nil {
			return shared.AssetContent{}, ResponseDecodingError{Operation: fetchDataFormOperationNameConstant, Cause: encodeError}
		}
		definition = string(encodedDefinition)
	}

	return shared.AssetContent{
		Reference:      reference,
		Name:           nameOrReference(summary.Name, reference),
		Version:        strconv.Itoa(summary.Version),
		SourceRecordID: summary.ID,
		Payload:        []byte(definition),
		Document:       detail,
	}, nil
}

// CreateDataForm saves and deploys the data form. ActivateAsset makes it the active version.
func (client *Client) CreateDataForm(createContext context.Context, draft DataFormDraft) (CreatedRecord, error) {
	payload := map[string]any{
		nameFieldConstant:           draft.Name,
		descriptionFieldConstant:    draft.Description,
		statusFieldConstant:         statusEditableValueConstant,
		resourceFieldConstant:       draft.Definition,
		creationOptionFieldConstant: saveAndDeployOptionConstant,
	}
	return client.createRecord(createContext, createDataFormOperationNameConstant, shared.AssetKindDataForm, payload)
}
