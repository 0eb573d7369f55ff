package bpmn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

const (
	camundaNamespaceURIConstant            = "http://camunda.org/schema/1.0/bpmn"
	camundaNamespacePrefixConstant         = "camunda"
	definitionsElementNameConstant         = "definitions"
	inputOutputElementNameConstant         = "inputOutput"
	inputParameterElementNameConstant      = "inputParameter"
	parameterNameAttributeConstant         = "name"
	malformedDocumentMessageConstant       = "malformed workflow document"
	malformedDocumentTemplateConstant      = "malformed workflow document: %v"
	emptyDocumentMessageConstant           = "document is empty"
	missingRootElementMessageConstant      = "document has no root element"
	unexpectedRootElementTemplateConstant  = "unexpected root element %q, expected %q"
	serializeDocumentErrorTemplateConstant = "unable to serialize workflow document: %w"
)

var (
	errEmptyDocument       = errors.New(emptyDocumentMessageConstant)
	errMissingRootElement  = errors.New(missingRootElementMessageConstant)
	errNilDocumentProvided = errors.New("workflow document not provided")
)

// MalformedDocumentError reports input that is not a well-formed workflow definition.
type MalformedDocumentError struct {
	Cause error
}

// Error describes the parsing failure.
func (documentError MalformedDocumentError) Error() string {
	if documentError.Cause == nil {
		return malformedDocumentMessageConstant
	}
	return fmt.Sprintf(malformedDocumentTemplateConstant, documentError.Cause)
}

// Unwrap exposes the underlying parser error.
func (documentError MalformedDocumentError) Unwrap() error {
	return documentError.Cause
}

// Document is the in-memory representation of a workflow definition.
type Document struct {
	tree *etree.Document
}

// Parse reads BPMN XML into a Document.
func Parse(raw []byte) (*Document, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, MalformedDocumentError{Cause: errEmptyDocument}
	}

	tree := etree.NewDocument()
	tree.ReadSettings.PreserveCData = true
	if readError := tree.ReadFromBytes(raw); readError != nil {
		return nil, MalformedDocumentError{Cause: readError}
	}

	root := tree.Root()
	if root == nil {
		return nil, MalformedDocumentError{Cause: errMissingRootElement}
	}
	if root.Tag != definitionsElementNameConstant {
		return nil, MalformedDocumentError{Cause: fmt.Errorf(unexpectedRootElementTemplateConstant, root.FullTag(), definitionsElementNameConstant)}
	}

	return &Document{tree: tree}, nil
}

// Serialize renders the document back to XML bytes.
func (document *Document) Serialize() ([]byte, error) {
	if document == nil || document.tree == nil {
		return nil, errNilDocumentProvided
	}
	serialized, writeError := document.tree.WriteToBytes()
	if writeError != nil {
		return nil, fmt.Errorf(serializeDocumentErrorTemplateConstant, writeError)
	}
	return serialized, nil
}

// Copy returns a deep copy that shares no nodes with the receiver.
func (document *Document) Copy() *Document {
	if document == nil || document.tree == nil {
		return nil
	}
	return &Document{tree: document.tree.Copy()}
}

// parameterBlock is one camunda:inputOutput element with its named input parameters.
type parameterBlock struct {
	parameters map[string]*etree.Element
}

func (block parameterBlock) value(parameterName string) (string, bool) {
	parameterElement, exists := block.parameters[parameterName]
	if !exists {
		return "", false
	}
	return strings.TrimSpace(parameterElement.Text()), true
}

func (block parameterBlock) set(parameterName string, value string) bool {
	parameterElement, exists := block.parameters[parameterName]
	if !exists {
		return false
	}
	parameterElement.SetText(value)
	return true
}

// inputOutputBlocks returns the camunda input/output blocks in document order.
func (document *Document) inputOutputBlocks() []parameterBlock {
	if document == nil || document.tree == nil || document.tree.Root() == nil {
		return nil
	}

	var blocks []parameterBlock
	var visit func(element *etree.Element)
	visit = func(element *etree.Element) {
		if element.Tag == inputOutputElementNameConstant && isCamundaElement(element) {
			blocks = append(blocks, newParameterBlock(element))
		}
		for _, child := range element.ChildElements() {
			visit(child)
		}
	}
	visit(document.tree.Root())

	return blocks
}

func newParameterBlock(inputOutputElement *etree.Element) parameterBlock {
	block := parameterBlock{parameters: map[string]*etree.Element{}}
	for _, child := range inputOutputElement.ChildElements() {
		if child.Tag != inputParameterElementNameConstant || !isCamundaElement(child) {
			continue
		}
		parameterName := strings.TrimSpace(child.SelectAttrValue(parameterNameAttributeConstant, ""))
		if len(parameterName) == 0 {
			continue
		}
		if _, exists := block.parameters[parameterName]; exists {
			continue
		}
		block.parameters[parameterName] = child
	}
	return block
}

func isCamundaElement(element *etree.Element) bool {
	if element.NamespaceURI() == camundaNamespaceURIConstant {
		return true
	}
	return element.Space == camundaNamespacePrefixConstant
}
