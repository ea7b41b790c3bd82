// Package engine is the local workflow engine that callee workflows run on.
//
// A workflow lives in a directory that contains a workflow.yaml definition:
//
//	name: greet
//	description: Greets someone
//	inputs:
//	  name:
//	    type: string
//	    required: true
//	outputs:
//	  message:
//	    type: string
//	    value: "{{ .steps.hello.text }}"
//	steps:
//	  - id: hello
//	    tool: echo
//	    args:
//	      text: "Hello {{ .inputs.name }}"
//
// Loader turns such a directory into a Workflow instance and registers it in
// a process-wide Registry. A Workflow is not safe for concurrent driving;
// callers serialize access through the callee package.
//
// Step arguments and output values are templates rendered by
// internal/template against a context with two keys: "inputs" holds the
// applied input values and "steps" holds the result map of every step that
// already ran, keyed by step id.
package engine
