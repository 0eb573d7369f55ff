package shared

import (
	"errors"
	"fmt"
	"sync"
)

// MappingTable collects migration mappings keyed by asset identity.
//
// Record is safe for concurrent use; each key may be recorded once.
type MappingTable struct {
	mutex    sync.RWMutex
	mappings map[AssetKey]MigrationMapping
	order    []AssetKey
}

// NewMappingTable constructs an empty mapping table.
func NewMappingTable() *MappingTable {
	return &MappingTable{mappings: make(map[AssetKey]MigrationMapping)}
}

// Record stores the mapping for its reference key.
func (table *MappingTable) Record(mapping MigrationMapping) error {
	if !mapping.Reference.Kind.Valid() {
		return errors.New(mappingKindInvalidErrorMessageConstant)
	}
	if len(mapping.Reference.SourceID) == 0 {
		return errors.New(mappingIdentifierEmptyErrorMessageConstant)
	}

	key := mapping.Reference.Key()

	table.mutex.Lock()
	defer table.mutex.Unlock()

	if _, exists := table.mappings[key]; exists {
		return fmt.Errorf(duplicateMappingErrorTemplateConstant, key)
	}
	table.mappings[key] = mapping
	table.order = append(table.order, key)
	return nil
}

// Lookup returns the mapping recorded for the key.
func (table *MappingTable) Lookup(key AssetKey) (MigrationMapping, bool) {
	table.mutex.RLock()
	defer table.mutex.RUnlock()

	mapping, exists := table.mappings[key]
	return mapping, exists
}

// Len reports the number of recorded mappings.
func (table *MappingTable) Len() int {
	table.mutex.RLock()
	defer table.mutex.RUnlock()
	return len(table.mappings)
}

// Ordered returns the mappings following the provided reference order.
// Recorded mappings whose references are absent from the order are appended in recording order.
func (table *MappingTable) Ordered(references []AssetReference) []MigrationMapping {
	table.mutex.RLock()
	defer table.mutex.RUnlock()

	orderedMappings := make([]MigrationMapping, 0, len(table.mappings))
	emitted := make(map[AssetKey]struct{}, len(table.mappings))
	for _, reference := range references {
		key := reference.Key()
		if _, alreadyEmitted := emitted[key]; alreadyEmitted {
			continue
		}
		mapping, exists := table.mappings[key]
		if !exists {
			continue
		}
		orderedMappings = append(orderedMappings, mapping)
		emitted[key] = struct{}{}
	}
	for _, key := range table.order {
		if _, alreadyEmitted := emitted[key]; alreadyEmitted {
			continue
		}
		orderedMappings = append(orderedMappings, table.mappings[key])
		emitted[key] = struct{}{}
	}
	return orderedMappings
}
