package platform

import (
	"context"
	"encoding/base64"
	"strconv"

	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	fetchCustomPageOperationNameConstant  = OperationName("FetchCustomPage")
	createCustomPageOperationNameConstant = OperationName("CreateCustomPage")
	previewURLFieldConstant               = "previewUrl"
	archiveFieldConstant                  = "archive"
)

// CustomPage is a resolved custom page version.
type CustomPage struct {
	Content    shared.AssetContent
	PreviewURL string
}

// CustomPageDraft is the destination payload for a custom page.
type CustomPageDraft struct {
	Name        string
	Description string
	Archive     []byte
}

// FetchCustomPage resolves the referenced custom page version and its preview location.
func (client *Client) FetchCustomPage(fetchContext context.Context, reference shared.AssetReference) (CustomPage, error) {
	summary, detail, fetchError := client.fetchVersionDetail(fetchContext, reference)
	if fetchError != nil {
		return CustomPage{}, fetchError
	}

	previewURL := stringValue(detail[previewURLFieldConstant])
	if len(previewURL) == 0 {
		return CustomPage{}, MissingContentError{Operation: fetchCustomPageOperationNameConstant, Field: previewURLFieldConstant}
	}

	return CustomPage{
		Content: shared.AssetContent{
			Reference:      reference,
			Name:           nameOrReference(summary.Name, reference),
			Version:        strconv.Itoa(summary.Version),
			SourceRecordID: summary.ID,
			Document:       detail,
		},
		PreviewURL: previewURL,
	}, nil
}

// CreateCustomPage uploads the zipped page bundle. ActivateAsset deploys it.
func (client *Client) CreateCustomPage(createContext context.Context, draft CustomPageDraft) (CreatedRecord, error) {
	if len(draft.Archive) == 0 {
		return CreatedRecord{}, InvalidInputError{FieldName: archiveFieldConstant, Message: requiredValueMessageConstant}
	}
	payload := map[string]any{
		nameFieldConstant:           draft.Name,
		descriptionFieldConstant:    draft.Description,
		archiveFieldConstant:        base64.StdEncoding.EncodeToString(draft.Archive),
		creationOptionFieldConstant: saveAndDeployOptionConstant,
	}
	return client.createRecord(createContext, createCustomPageOperationNameConstant, shared.AssetKindCustomPage, payload)
}
