package models

import "strings"

// Output handle names a node exposes to the editor.
const (
	HandleNext         = "next"
	HandleButtons      = "buttons"
	HandleQuickReplies = "quickReplies"
	HandleItems        = "items"
	HandleNoMatch      = "noMatch"

	buttonHandlePrefix = "button:"
)

// Edge connects an output handle of one node to another node.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
}

// ButtonHandle returns the handle name for an inline button.
func ButtonHandle(buttonID string) string {
	return buttonHandlePrefix + buttonID
}

// ParseButtonHandle returns the button id of a "button:{id}" handle.
func ParseButtonHandle(handle string) (string, bool) {
	id, ok := strings.CutPrefix(handle, buttonHandlePrefix)
	if !ok || id == "" {
		return "", false
	}

	return id, true
}

// Handle returns the handle of an edge, treating an empty handle as "next".
func (e *Edge) Handle() string {
	if e.SourceHandle == "" {
		return HandleNext
	}

	return e.SourceHandle
}
