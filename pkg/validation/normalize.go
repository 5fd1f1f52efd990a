package validation

import (
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dukex/chatflow/pkg/models"
)

// Normalize trims every string field of a payload and truncates it to the
// max length declared in its validation rules, the way the editor input
// fields clamp what a user types. It also fills enumerations that have a
// default and drops blank product ids. Normalize is idempotent.
func Normalize(data models.NodeData) {
	if data == nil {
		return
	}

	normalizeStruct(reflect.ValueOf(data).Elem())

	switch d := data.(type) {
	case *models.StartData:
		if d.MatchType == "" {
			d.MatchType = models.MatchTypeExact
		}
	case *models.ConditionData:
		if d.ConditionOperator == "" {
			d.ConditionOperator = models.OperatorEquals
		}
	case *models.ProductData:
		d.Products = compact(d.Products)
		if d.ProductSellingMethod == "" {
			d.ProductSellingMethod = models.SellingDirectStore
		}
	}
}

func normalizeStruct(value reflect.Value) {
	valueType := value.Type()

	for i := range value.NumField() {
		field := value.Field(i)
		tag := valueType.Field(i).Tag
		rules := tag.Get("validate")
		limit := maxLength(rules)

		switch field.Kind() {
		case reflect.String:
			if hasRule(rules, "template") {
				field.SetString(truncateTemplate(field.String(), limit))
			} else {
				field.SetString(Truncate(field.String(), limit))
			}
		case reflect.Slice:
			if field.Len() == 0 && strings.Contains(tag.Get("json"), ",omitempty") {
				field.SetZero()

				continue
			}

			for j := range field.Len() {
				element := field.Index(j)

				switch element.Kind() {
				case reflect.Struct:
					normalizeStruct(element)
				case reflect.String:
					element.SetString(strings.TrimSpace(element.String()))
				}
			}
		}
	}
}

// Truncate trims s and cuts it to at most limit runes. A limit of zero or
// less only trims.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	return strings.TrimRightFunc(string([]rune(s)[:limit]), unicode.IsSpace)
}

// truncateTemplate truncates like Truncate and drops a placeholder the cut
// left unclosed.
func truncateTemplate(s string, limit int) string {
	cut := Truncate(s, limit)
	if cut == strings.TrimSpace(s) {
		return cut
	}

	open := strings.LastIndex(cut, "{{")
	if open >= 0 && !strings.Contains(cut[open:], "}}") {
		cut = strings.TrimRightFunc(cut[:open], unicode.IsSpace)
	}

	return cut
}

func hasRule(tag, name string) bool {
	for rule := range strings.SplitSeq(tag, ",") {
		if rule == "dive" {
			return false
		}

		if rule == name {
			return true
		}
	}

	return false
}

// maxLength reads the first max=N rule of a validate tag. Rules after a dive
// apply to elements, not to the field itself.
func maxLength(tag string) int {
	for rule := range strings.SplitSeq(tag, ",") {
		if rule == "dive" {
			return 0
		}

		if value, ok := strings.CutPrefix(rule, "max="); ok {
			limit, err := strconv.Atoi(value)
			if err == nil {
				return limit
			}
		}
	}

	return 0
}

func compact(values []string) []string {
	var kept []string

	for _, value := range values {
		if value != "" {
			kept = append(kept, value)
		}
	}

	return kept
}
