// Package validation decides whether node payloads are well formed and
// normalizes editor drafts before they enter a flow document.
package validation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/template"
	"github.com/go-playground/validator/v10"
)

const (
	requiredForAction = "required_for_action"
	maxDelay          = "max_delay"
)

var (
	variableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	phoneNumber  = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{2,}$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return field.Name
		}

		return name
	})

	mustRegister(v, "template", func(fl validator.FieldLevel) bool {
		return template.Validate(fl.Field().String()) == nil
	})
	mustRegister(v, "varname", func(fl validator.FieldLevel) bool {
		return variableName.MatchString(fl.Field().String())
	})
	mustRegister(v, "phone", func(fl validator.FieldLevel) bool {
		return phoneNumber.MatchString(fl.Field().String())
	})

	v.RegisterStructValidation(buttonActionRules, models.ButtonData{})
	v.RegisterStructValidation(quickReplyActionRules, models.QuickReplyData{})
	v.RegisterStructValidation(sequenceRules, models.SequenceData{})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register %s validation: %v", tag, err))
	}
}

func buttonActionRules(sl validator.StructLevel) {
	button := sl.Current().Interface().(models.ButtonData)

	switch button.ActionType {
	case models.ActionURL:
		if button.URL == "" {
			sl.ReportError(button.URL, "url", "URL", requiredForAction, string(models.ActionURL))
		}
	case models.ActionStartFlow:
		if button.FlowID == "" {
			sl.ReportError(button.FlowID, "flowId", "FlowID", requiredForAction, string(models.ActionStartFlow))
		}
	case models.ActionCall:
		if button.PhoneNumber == "" {
			sl.ReportError(button.PhoneNumber, "phoneNumber", "PhoneNumber", requiredForAction, string(models.ActionCall))
		}
	}
}

func quickReplyActionRules(sl validator.StructLevel) {
	reply := sl.Current().Interface().(models.QuickReplyData)

	if reply.ActionType == models.ActionStartFlow && reply.FlowID == "" {
		sl.ReportError(reply.FlowID, "flowId", "FlowID", requiredForAction, string(models.ActionStartFlow))
	}
}

func sequenceRules(sl validator.StructLevel) {
	sequence := sl.Current().Interface().(models.SequenceData)

	if sequence.Delay > 0 && sequence.ExceedsMaxDelay() {
		sl.ReportError(sequence.Delay, "delay", "Delay", maxDelay, "365 days")
	}
}

// Validate normalizes a draft of the given type and checks it. On success the
// normalized payload is returned and the draft is left untouched. On failure
// the error is an Errors value listing every failing field.
func Validate(nodeType models.NodeType, draft models.NodeData) (models.NodeData, error) {
	if draft == nil {
		return nil, Errors{{Field: "data", Reason: "is required"}}
	}

	if draft.NodeType() != nodeType {
		return nil, Errors{{
			Field:  "nodeType",
			Reason: fmt.Sprintf("is %s but data belongs to %s", nodeType, draft.NodeType()),
		}}
	}

	normalized, err := clone(draft)
	if err != nil {
		return nil, err
	}

	Normalize(normalized)

	if err := Check(normalized); err != nil {
		return nil, err
	}

	return normalized, nil
}

// Check validates a payload exactly as given, without trimming or truncating.
// It is the save-time gate: an overlong value fails here even when the editor
// should already have truncated it.
func Check(data models.NodeData) error {
	if data == nil {
		return Errors{{Field: "data", Reason: "is required"}}
	}

	if err := validate.Struct(data); err != nil {
		return fromValidator(err)
	}

	return nil
}

// ValidateNode validates the node payload in place. On success the node
// carries the normalized payload and a freshly derived label.
func ValidateNode(node *models.Node) error {
	var errs Errors

	if strings.TrimSpace(node.ID) == "" {
		errs = append(errs, FieldError{Field: "id", Reason: "is required"})
	}

	normalized, err := Validate(node.Type, node.Data)
	if err != nil {
		fieldErrs, ok := AsErrors(err)
		if !ok {
			return err
		}

		errs = append(errs, fieldErrs...)
	}

	if len(errs) > 0 {
		return errs
	}

	node.Data = normalized
	node.Label = Label(normalized)

	return nil
}

func clone(data models.NodeData) (models.NodeData, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to copy %s data: %w", data.NodeType(), err)
	}

	return models.DecodeNodeData(data.NodeType(), raw)
}

// Label derives the display label of a payload. It is never read back as data.
func Label(data models.NodeData) string {
	switch d := data.(type) {
	case *models.StartData:
		return d.FlowName
	case *models.TextData:
		return excerpt(d.Content, 30)
	case *models.ImageData:
		return "Image"
	case *models.ButtonData:
		return d.ButtonName
	case *models.QuickReplyData:
		return d.ReplyText
	case *models.ConditionData:
		return "If " + d.ConditionField
	case *models.AudioData:
		return "Audio"
	case *models.VideoData:
		return "Video"
	case *models.FileData:
		if d.FileName != "" {
			return d.FileName
		}

		return "File"
	case *models.CardData:
		return d.Title
	case *models.SequenceData:
		return fmt.Sprintf("Wait %d %s", d.Delay, d.DelayUnit)
	case *models.InputData:
		return d.FieldName
	case *models.AIData:
		return "AI: " + excerpt(d.Prompt, 26)
	case *models.CarouselData:
		return "Carousel"
	case *models.CarouselItemData:
		return d.Title
	case *models.ProductData:
		return fmt.Sprintf("%d products", len(d.Products))
	default:
		return ""
	}
}

func excerpt(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	return string([]rune(s)[:limit-1]) + "…"
}
