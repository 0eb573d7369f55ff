// Package persistence writes migration artifacts under an output location.
//
// The layout is:
//
//	<out>/<source process definition id>.bpmn
//	<out>/data/<destination name>.bpmn
//	<out>/results/<asset kind directory>/<asset name>.json
//	<out>/results/process_definition.json
//	<out>/results/aggregation.json
package persistence
