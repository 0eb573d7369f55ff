package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"go.uber.org/zap"

	"github.com/temirov/trustx-migrate/internal/report"
	"github.com/temirov/trustx-migrate/internal/shared"
	pathutils "github.com/temirov/trustx-migrate/internal/utils/path"
)

const (
	bpmnExtensionConstant                  = ".bpmn"
	jsonExtensionConstant                  = ".json"
	dataDirectoryNameConstant              = "data"
	resultsDirectoryNameConstant           = "results"
	processDefinitionFileNameConstant      = "process_definition.json"
	aggregationFileNameConstant            = "aggregation.json"
	jsonIndentConstant                     = "  "
	unnamedArtifactConstant                = "unnamed"
	artifactPathSeparatorConstant          = "/"
	outputDirectoryRequiredMessageConstant = "output directory must be provided"
	outputPrepareErrorTemplateConstant     = "unable to prepare output directory %s: %w"
	artifactEncodeErrorTemplateConstant    = "unable to encode %s: %w"
	artifactWriteErrorTemplateConstant     = "unable to write %s: %w"
	outputPreparedMessageConstant          = "Output directory prepared"
	outputCleanedMessageConstant           = "Output directory cleaned"
	artifactsPersistedMessageConstant      = "Migration artifacts persisted"
	logFieldOutputConstant                 = "output"
	logFieldArtifactCountConstant          = "artifacts"
	fileSystemMissingMessageConstant       = "file system not configured"
	unsafeFileNameCharactersConstant       = "/\\:*?\"<>|"
	unsafeFileNameReplacementConstant      = '_'
	parentDirectoryFileNameConstant        = ".."
	currentDirectoryFileNameConstant       = "."
	processDefinitionArtifactNameConstant  = "process definition result"
	reportArtifactNameConstant             = "migration report"
)

// ErrFileSystemNotConfigured indicates the writer was constructed without a file system.
var ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)

// Artifacts are the documents and results produced by one run.
type Artifacts struct {
	SourceProcessDefinitionID string
	SourceDocument            []byte
	DestinationName           string
	RewrittenDocument         []byte
	Report                    report.MigrationReport
}

// Writer stores artifacts through an afs file system.
type Writer struct {
	fileSystem   afs.Service
	homeExpander *pathutils.HomeExpander
	logger       *zap.Logger
}

// NewWriter constructs a Writer.
func NewWriter(fileSystem afs.Service, logger *zap.Logger) (*Writer, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{fileSystem: fileSystem, homeExpander: pathutils.NewHomeExpander(), logger: logger}, nil
}

// Prepare resolves the output location, optionally removing earlier results, and creates it.
// It returns the normalized output URL.
func (writer *Writer) Prepare(prepareContext context.Context, outputDirectory string, clean bool) (string, error) {
	trimmedDirectory := strings.TrimSpace(outputDirectory)
	if len(trimmedDirectory) == 0 {
		return "", errors.New(outputDirectoryRequiredMessageConstant)
	}
	outputURL := url.Normalize(writer.homeExpander.Expand(trimmedDirectory), file.Scheme)

	exists, existsError := writer.fileSystem.Exists(prepareContext, outputURL)
	if existsError != nil {
		return "", fmt.Errorf(outputPrepareErrorTemplateConstant, outputURL, existsError)
	}
	if exists && clean {
		if deleteError := writer.fileSystem.Delete(prepareContext, outputURL); deleteError != nil {
			return "", fmt.Errorf(outputPrepareErrorTemplateConstant, outputURL, deleteError)
		}
		writer.logger.Info(outputCleanedMessageConstant, zap.String(logFieldOutputConstant, outputURL))
		exists = false
	}
	if !exists {
		if createError := writer.fileSystem.Create(prepareContext, outputURL, file.DefaultDirOsMode, true); createError != nil {
			return "", fmt.Errorf(outputPrepareErrorTemplateConstant, outputURL, createError)
		}
	}

	writer.logger.Debug(outputPreparedMessageConstant, zap.String(logFieldOutputConstant, outputURL))
	return outputURL, nil
}

// Persist writes every artifact under outputURL and returns the written locations.
// Source payloads fetched for each mapping go under data/<kind directory>/ next to the rewritten document.
// Missing documents are skipped so that aborted runs still record their report.
func (writer *Writer) Persist(persistContext context.Context, outputURL string, artifacts Artifacts) ([]string, error) {
	var written []string
	write := func(location string, contents []byte) error {
		if uploadError := writer.fileSystem.Upload(persistContext, location, file.DefaultFileOsMode, bytes.NewReader(contents)); uploadError != nil {
			return fmt.Errorf(artifactWriteErrorTemplateConstant, location, uploadError)
		}
		written = append(written, location)
		return nil
	}

	if len(artifacts.SourceDocument) > 0 {
		location := url.Join(outputURL, SafeFileName(artifacts.SourceProcessDefinitionID)+bpmnExtensionConstant)
		if writeError := write(location, artifacts.SourceDocument); writeError != nil {
			return written, writeError
		}
	}
	if len(artifacts.RewrittenDocument) > 0 {
		location := url.Join(outputURL, dataDirectoryNameConstant, SafeFileName(artifacts.DestinationName)+bpmnExtensionConstant)
		if writeError := write(location, artifacts.RewrittenDocument); writeError != nil {
			return written, writeError
		}
	}

	for _, mapping := range artifacts.Report.Mappings {
		for _, sourceArtifact := range mapping.SourceArtifacts {
			if writeError := write(SourceArtifactLocation(outputURL, mapping.Reference.Kind, sourceArtifact.FileName), sourceArtifact.Data); writeError != nil {
				return written, writeError
			}
		}

		location := MappingLocation(outputURL, mapping)
		encoded, encodeError := encodeJSON(mapping.Reference.String(), mapping)
		if encodeError != nil {
			return written, encodeError
		}
		if writeError := write(location, encoded); writeError != nil {
			return written, writeError
		}
	}

	processDefinition, encodeError := encodeJSON(processDefinitionArtifactNameConstant, artifacts.Report.ProcessDefinition)
	if encodeError != nil {
		return written, encodeError
	}
	if writeError := write(url.Join(outputURL, resultsDirectoryNameConstant, processDefinitionFileNameConstant), processDefinition); writeError != nil {
		return written, writeError
	}

	aggregation, encodeError := encodeJSON(reportArtifactNameConstant, artifacts.Report)
	if encodeError != nil {
		return written, encodeError
	}
	if writeError := write(url.Join(outputURL, resultsDirectoryNameConstant, aggregationFileNameConstant), aggregation); writeError != nil {
		return written, writeError
	}

	writer.logger.Info(
		artifactsPersistedMessageConstant,
		zap.String(logFieldOutputConstant, outputURL),
		zap.Int(logFieldArtifactCountConstant, len(written)),
	)
	return written, nil
}

// MappingLocation is the result file of one asset mapping.
func MappingLocation(outputURL string, mapping shared.MigrationMapping) string {
	return url.Join(
		outputURL,
		resultsDirectoryNameConstant,
		mapping.Reference.Kind.DirectoryName(),
		SafeFileName(mapping.Reference.SourceID)+jsonExtensionConstant,
	)
}

// SourceArtifactLocation is where a fetched source payload is kept, under data/<kind directory>/.
// Each slash separated segment of fileName is made safe on its own.
func SourceArtifactLocation(outputURL string, kind shared.AssetKind, fileName string) string {
	segments := []string{outputURL, dataDirectoryNameConstant, kind.DirectoryName()}
	for _, segment := range strings.Split(fileName, artifactPathSeparatorConstant) {
		segments = append(segments, SafeFileName(segment))
	}
	return url.Join(segments[0], segments[1:]...)
}

// SafeFileName replaces characters that cannot appear in a single path segment.
func SafeFileName(name string) string {
	trimmedName := strings.TrimSpace(name)
	if len(trimmedName) == 0 || trimmedName == currentDirectoryFileNameConstant || trimmedName == parentDirectoryFileNameConstant {
		return unnamedArtifactConstant
	}
	return strings.Map(func(character rune) rune {
		if strings.ContainsRune(unsafeFileNameCharactersConstant, character) {
			return unsafeFileNameReplacementConstant
		}
		return character
	}, trimmedName)
}

func encodeJSON(artifactName string, value any) ([]byte, error) {
	encoded, encodeError := json.MarshalIndent(value, "", jsonIndentConstant)
	if encodeError != nil {
		return nil, fmt.Errorf(artifactEncodeErrorTemplateConstant, artifactName, encodeError)
	}
	return encoded, nil
}
