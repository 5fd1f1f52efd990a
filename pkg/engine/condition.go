package engine

import (
	"strings"

	"github.com/dukex/chatflow/pkg/models"
)

// compare applies operator to a runtime value and a comparand, ignoring case
// and surrounding whitespace.
func compare(operator models.ConditionOperator, value, comparand string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	comparand = strings.ToLower(strings.TrimSpace(comparand))

	switch operator {
	case models.OperatorNotEquals:
		return value != comparand
	case models.OperatorContains:
		return strings.Contains(value, comparand)
	case models.OperatorStartsWith:
		return strings.HasPrefix(value, comparand)
	case models.OperatorEndsWith:
		return strings.HasSuffix(value, comparand)
	default:
		return value == comparand
	}
}

// comparand is what a condition button is matched against: its own value,
// then the node's conditionValue, then its title.
func comparand(data *models.ConditionData, button models.Button) string {
	if button.Value != "" {
		return button.Value
	}

	if data.ConditionValue != "" {
		return data.ConditionValue
	}

	return button.Title
}

// evaluateCondition returns the handle to follow: the first matching button,
// or noMatch.
func evaluateCondition(data *models.ConditionData, variables map[string]string) (string, bool) {
	value := variables[data.ConditionField]

	for _, button := range data.Buttons {
		if compare(data.ConditionOperator, value, comparand(data, button)) {
			return models.ButtonHandle(button.ID), true
		}
	}

	return models.HandleNoMatch, false
}
