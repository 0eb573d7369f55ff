package platform

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	fetchThemeOperationNameConstant       = OperationName("FetchTheme")
	createThemeOperationNameConstant      = OperationName("CreateTheme")
	uploadThemeAssetOperationNameConstant = OperationName("UploadThemeAsset")
	updateThemeOperationNameConstant      = OperationName("UpdateTheme")
	downloadAssetOperationNameConstant    = OperationName("DownloadAsset")
	themeAllPathTemplateConstant          = "%s/%s/all"
	themeAssetsPathTemplateConstant       = "%s/%s/assets/"
	paletteFieldConstant                  = "palette"
	assetsFieldConstant                   = "assets"
	globalAssetsFieldConstant             = "global"
	assetPathFieldConstant                = "path"
	contentTypeFieldConstant              = "contentType"
	fileExtensionFieldConstant            = "fileExtension"
	assetResourceFieldConstant            = "assetResource"
	themeIdentifierFieldNameConstant      = "theme_id"
	fontContentTypeConstant               = "font/ttf"
	fontFileMarkerConstant                = "font"
	imageContentTypePrefixConstant        = "image/"
)

// ThemeSkeleton is the minimal payload that creates an editable theme.
type ThemeSkeleton struct {
	Name        string
	Description string
	Palette     any
}

// FetchTheme returns the full theme document, including asset locations.
func (client *Client) FetchTheme(fetchContext context.Context, themeID string) (map[string]any, error) {
	trimmedThemeID := strings.TrimSpace(themeID)
	if len(trimmedThemeID) == 0 {
		return nil, InvalidInputError{FieldName: themeIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}
	themePath := fmt.Sprintf(themeAllPathTemplateConstant, assetKindPaths[shared.AssetKindTheme], url.PathEscape(trimmedThemeID))

	var theme map[string]any
	if requestError := client.doJSON(fetchContext, fetchThemeOperationNameConstant, http.MethodGet, themePath, nil, nil, &theme); requestError != nil {
		return nil, requestError
	}
	if len(theme) == 0 {
		return nil, MissingContentError{Operation: fetchThemeOperationNameConstant, Field: nameFieldConstant}
	}
	return theme, nil
}

// CreateThemeSkeleton creates an editable theme carrying only name, description and palette.
func (client *Client) CreateThemeSkeleton(createContext context.Context, skeleton ThemeSkeleton) (CreatedRecord, error) {
	payload := map[string]any{
		paletteFieldConstant:     skeleton.Palette,
		statusFieldConstant:      statusEditableValueConstant,
		descriptionFieldConstant: skeleton.Description,
		nameFieldConstant:        skeleton.Name,
	}
	var created map[string]any
	if requestError := client.doJSON(createContext, createThemeOperationNameConstant, http.MethodPost, assetKindPaths[shared.AssetKindTheme], nil, payload, &created); requestError != nil {
		return CreatedRecord{}, requestError
	}
	return recordFromMetadata(createThemeOperationNameConstant, created)
}

// UploadThemeAsset attaches a font or image file to the theme.
func (client *Client) UploadThemeAsset(uploadContext context.Context, themeID string, attachment shared.Attachment) error {
	extension := strings.TrimPrefix(path.Ext(attachment.FileName), ".")
	contentType := attachment.ContentType
	if len(contentType) == 0 {
		contentType = ThemeAssetContentType(attachment.FileName)
	}
	payload := map[string]any{
		nameFieldConstant:          strings.TrimSuffix(attachment.FileName, path.Ext(attachment.FileName)),
		contentTypeFieldConstant:   contentType,
		fileExtensionFieldConstant: extension,
		assetResourceFieldConstant: base64.StdEncoding.EncodeToString(attachment.Data),
	}
	assetsPath := fmt.Sprintf(themeAssetsPathTemplateConstant, assetKindPaths[shared.AssetKindTheme], url.PathEscape(themeID))
	return client.doJSON(uploadContext, uploadThemeAssetOperationNameConstant, http.MethodPost, assetsPath, nil, payload, nil)
}

// UpdateTheme replaces the theme with the full document.
func (client *Client) UpdateTheme(updateContext context.Context, themeID string, document map[string]any) error {
	themePath := fmt.Sprintf(kindResourcePathTemplateConstant, assetKindPaths[shared.AssetKindTheme], url.PathEscape(themeID))
	return client.doJSON(updateContext, updateThemeOperationNameConstant, http.MethodPost, themePath, nil, document, nil)
}

// ThemeAssetLocations lists the global asset URLs of a theme document.
func ThemeAssetLocations(theme map[string]any) []string {
	assets, hasAssets := mapValue(theme[assetsFieldConstant])
	if !hasAssets {
		return nil
	}
	globalAssets, isList := assets[globalAssetsFieldConstant].([]any)
	if !isList {
		return nil
	}
	var locations []string
	for _, entry := range globalAssets {
		asset, isObject := mapValue(entry)
		if !isObject {
			continue
		}
		location := stringValue(asset[assetPathFieldConstant])
		if len(location) == 0 {
			continue
		}
		locations = append(locations, location)
	}
	return locations
}

// ThemeAssetContentType derives the upload content type from a file name.
func ThemeAssetContentType(fileName string) string {
	if strings.Contains(strings.ToLower(fileName), fontFileMarkerConstant) {
		return fontContentTypeConstant
	}
	return imageContentTypePrefixConstant + strings.TrimPrefix(path.Ext(fileName), ".")
}
