package platform

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	fetchProcessDefinitionOperationNameConstant  = OperationName("FetchProcessDefinition")
	createProcessDefinitionOperationNameConstant = OperationName("CreateProcessDefinition")
	processDefinitionsPathConstant               = "api/process-manager/processDefinitions"
	resourcesFieldConstant                       = "resources"
	bpmnFieldConstant                            = "bpmn"
	dataFieldConstant                            = "data"
	themeIdentifierFieldConstant                 = "themeId"
	serverTypeFieldConstant                      = "serverType"
	processDefinitionTypeFieldConstant           = "processDefinitionType"
	attributesFieldConstant                      = "attributes"
	searchableFieldConstant                      = "searchable"
	bpmnResourceTypeConstant                     = "BPMN"
	processDefinitionIdentifierFieldNameConstant = "process_definition_id"
	documentFieldNameConstant                    = "document"
	resourcesBPMNDataPathConstant                = "resources.bpmn.data"
)

// ProcessDefinition is a source process definition with its decoded workflow document.
type ProcessDefinition struct {
	ID       string
	Name     string
	ThemeID  string
	Document []byte
}

// ProcessDefinitionDraft is the destination payload for a process definition.
type ProcessDefinitionDraft struct {
	Name                  string
	Description           string
	ServerType            string
	ProcessDefinitionType string
	Document              []byte
	ThemeID               string
}

// FetchProcessDefinition retrieves a process definition and decodes its BPMN resource.
func (client *Client) FetchProcessDefinition(fetchContext context.Context, processDefinitionID string) (ProcessDefinition, error) {
	trimmedIdentifier := strings.TrimSpace(processDefinitionID)
	if len(trimmedIdentifier) == 0 {
		return ProcessDefinition{}, InvalidInputError{FieldName: processDefinitionIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}

	definitionPath := fmt.Sprintf(kindResourcePathTemplateConstant, processDefinitionsPathConstant, url.PathEscape(trimmedIdentifier))
	var definition map[string]any
	if requestError := client.doJSON(fetchContext, fetchProcessDefinitionOperationNameConstant, http.MethodGet, definitionPath, nil, nil, &definition); requestError != nil {
		return ProcessDefinition{}, requestError
	}

	resources, _ := mapValue(definition[resourcesFieldConstant])
	bpmnResource, _ := mapValue(resources[bpmnFieldConstant])
	encodedDocument := stringValue(bpmnResource[dataFieldConstant])
	if len(encodedDocument) == 0 {
		return ProcessDefinition{}, MissingContentError{Operation: fetchProcessDefinitionOperationNameConstant, Field: resourcesBPMNDataPathConstant}
	}
	document, decodeError := base64.StdEncoding.DecodeString(encodedDocument)
	if decodeError != nil {
		return ProcessDefinition{}, ResponseDecodingError{Operation: fetchProcessDefinitionOperationNameConstant, Cause: decodeError}
	}

	identifier := stringValue(definition[identifierFieldConstant])
	if len(identifier) == 0 {
		identifier = trimmedIdentifier
	}

	return ProcessDefinition{
		ID:       identifier,
		Name:     stringValue(definition[nameFieldConstant]),
		ThemeID:  stringValue(definition[themeIdentifierFieldConstant]),
		Document: document,
	}, nil
}

// CreateProcessDefinition creates the process definition. ActivateProcessDefinition deploys it.
func (client *Client) CreateProcessDefinition(createContext context.Context, draft ProcessDefinitionDraft) (CreatedRecord, error) {
	if len(draft.Document) == 0 {
		return CreatedRecord{}, InvalidInputError{FieldName: documentFieldNameConstant, Message: requiredValueMessageConstant}
	}

	payload := map[string]any{
		nameFieldConstant:        draft.Name,
		descriptionFieldConstant: draft.Description,
		serverTypeFieldConstant:  draft.ServerType,
		resourcesFieldConstant: map[string]any{
			bpmnFieldConstant: map[string]any{
				dataFieldConstant: base64.StdEncoding.EncodeToString(draft.Document),
				typeFieldConstant: bpmnResourceTypeConstant,
			},
		},
		processDefinitionTypeFieldConstant: draft.ProcessDefinitionType,
		attributesFieldConstant: map[string]any{
			searchableFieldConstant: true,
		},
	}
	if len(strings.TrimSpace(draft.ThemeID)) > 0 {
		payload[themeIdentifierFieldConstant] = strings.TrimSpace(draft.ThemeID)
	}

	var created map[string]any
	if requestError := client.doJSON(createContext, createProcessDefinitionOperationNameConstant, http.MethodPost, processDefinitionsPathConstant, nil, payload, &created); requestError != nil {
		return CreatedRecord{}, requestError
	}
	return recordFromMetadata(createProcessDefinitionOperationNameConstant, created)
}

// ActivateProcessDefinition deploys a created process definition, replaying its creation metadata.
func (client *Client) ActivateProcessDefinition(activateContext context.Context, created CreatedRecord) (CreatedRecord, error) {
	if len(strings.TrimSpace(created.ID)) == 0 {
		return created, InvalidInputError{FieldName: processDefinitionIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}
	activationPayload := created.Metadata
	if activationPayload == nil {
		activationPayload = map[string]any{}
	}
	activated, activationError := client.activate(activateContext, processDefinitionsPathConstant, created.ID, activationPayload)
	if activationError != nil {
		return created, activationError
	}
	return mergeRecords(created, activated), nil
}
