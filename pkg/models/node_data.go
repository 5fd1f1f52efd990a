package models

import "time"

// NodeType identifies the payload variant a node carries.
type NodeType string

const (
	NodeTypeStart        NodeType = "start"
	NodeTypeText         NodeType = "text"
	NodeTypeImage        NodeType = "image"
	NodeTypeButton       NodeType = "button"
	NodeTypeQuickReply   NodeType = "quickReply"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeAudio        NodeType = "audio"
	NodeTypeVideo        NodeType = "video"
	NodeTypeFile         NodeType = "file"
	NodeTypeCard         NodeType = "card"
	NodeTypeSequence     NodeType = "sequence"
	NodeTypeInput        NodeType = "input"
	NodeTypeAI           NodeType = "ai"
	NodeTypeCarousel     NodeType = "carousel"
	NodeTypeCarouselItem NodeType = "carouselItem"
	NodeTypeProduct      NodeType = "product"
)

// NodeTypes lists every known node type in editor palette order.
var NodeTypes = []NodeType{
	NodeTypeStart,
	NodeTypeText,
	NodeTypeImage,
	NodeTypeButton,
	NodeTypeQuickReply,
	NodeTypeCondition,
	NodeTypeAudio,
	NodeTypeVideo,
	NodeTypeFile,
	NodeTypeCard,
	NodeTypeSequence,
	NodeTypeInput,
	NodeTypeAI,
	NodeTypeCarousel,
	NodeTypeCarouselItem,
	NodeTypeProduct,
}

// MatchType controls how a trigger keyword is compared with an inbound message.
type MatchType string

const (
	MatchTypeExact   MatchType = "exact"
	MatchTypePartial MatchType = "partial"
)

// ActionType is what a button or quick reply does when tapped.
type ActionType string

const (
	ActionNextMessage ActionType = "next_message"
	ActionURL         ActionType = "url"
	ActionStartFlow   ActionType = "start_flow"
	ActionCall        ActionType = "call"
)

// ConditionOperator compares a runtime value with a condition comparand.
type ConditionOperator string

const (
	OperatorEquals     ConditionOperator = "equals"
	OperatorNotEquals  ConditionOperator = "not_equals"
	OperatorContains   ConditionOperator = "contains"
	OperatorStartsWith ConditionOperator = "starts_with"
	OperatorEndsWith   ConditionOperator = "ends_with"
)

type DelayUnit string

const (
	DelayMinutes DelayUnit = "minutes"
	DelayHours   DelayUnit = "hours"
	DelayDays    DelayUnit = "days"
)

type SellingMethod string

const (
	SellingDirectStore   SellingMethod = "direct_store"
	SellingDetailsStore  SellingMethod = "details_store"
	SellingExternalStore SellingMethod = "external_store"
)

// NodeData is the typed payload of a node. Each node type has exactly one
// implementation.
type NodeData interface {
	NodeType() NodeType
}

// NewNodeData returns an empty payload for the given type.
func NewNodeData(nodeType NodeType) (NodeData, error) {
	switch nodeType {
	case NodeTypeStart:
		return &StartData{}, nil
	case NodeTypeText:
		return &TextData{}, nil
	case NodeTypeImage:
		return &ImageData{}, nil
	case NodeTypeButton:
		return &ButtonData{}, nil
	case NodeTypeQuickReply:
		return &QuickReplyData{}, nil
	case NodeTypeCondition:
		return &ConditionData{}, nil
	case NodeTypeAudio:
		return &AudioData{}, nil
	case NodeTypeVideo:
		return &VideoData{}, nil
	case NodeTypeFile:
		return &FileData{}, nil
	case NodeTypeCard:
		return &CardData{}, nil
	case NodeTypeSequence:
		return &SequenceData{}, nil
	case NodeTypeInput:
		return &InputData{}, nil
	case NodeTypeAI:
		return &AIData{}, nil
	case NodeTypeCarousel:
		return &CarouselData{}, nil
	case NodeTypeCarouselItem:
		return &CarouselItemData{}, nil
	case NodeTypeProduct:
		return &ProductData{}, nil
	default:
		return nil, &UnknownNodeTypeError{NodeType: nodeType}
	}
}

// Button is an inline choice attached to text and condition nodes.
type Button struct {
	ID    string `json:"id"              validate:"required"`
	Title string `json:"title"           validate:"required,max=20"`
	Value string `json:"value,omitempty" validate:"max=100"`
}

type StartData struct {
	FlowName       string    `json:"flowName"                 validate:"required,max=100"`
	TriggerKeyword string    `json:"triggerKeyword,omitempty" validate:"max=200"`
	MatchType      MatchType `json:"matchType,omitempty"      validate:"omitempty,oneof=exact partial"`
}

func (*StartData) NodeType() NodeType { return NodeTypeStart }

type TextData struct {
	Content string   `json:"content"           validate:"required,max=2000,template"`
	Buttons []Button `json:"buttons,omitempty" validate:"max=13,unique=ID,dive"`
}

func (*TextData) NodeType() NodeType { return NodeTypeText }

type ImageData struct {
	ImageURL string `json:"imageUrl" validate:"required,url"`
}

func (*ImageData) NodeType() NodeType { return NodeTypeImage }

type ButtonData struct {
	ButtonName  string     `json:"buttonName"            validate:"required,max=20"`
	ActionType  ActionType `json:"actionType"            validate:"required,oneof=next_message url start_flow call"`
	URL         string     `json:"url,omitempty"         validate:"omitempty,url"`
	FlowID      string     `json:"flowId,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty" validate:"omitempty,max=20,phone"`
}

func (*ButtonData) NodeType() NodeType { return NodeTypeButton }

type QuickReplyData struct {
	ReplyText  string     `json:"replyText"        validate:"required,max=20"`
	ActionType ActionType `json:"actionType"       validate:"required,oneof=next_message start_flow"`
	FlowID     string     `json:"flowId,omitempty"`
}

func (*QuickReplyData) NodeType() NodeType { return NodeTypeQuickReply }

type ConditionData struct {
	ConditionField    string            `json:"conditionField"              validate:"required,max=100"`
	ConditionOperator ConditionOperator `json:"conditionOperator,omitempty" validate:"omitempty,oneof=equals not_equals contains starts_with ends_with"`
	ConditionValue    string            `json:"conditionValue,omitempty"    validate:"max=200"`
	MessageText       string            `json:"messageText,omitempty"       validate:"max=640,template"`
	Buttons           []Button          `json:"buttons"                     validate:"min=1,max=3,unique=ID,dive"`
}

func (*ConditionData) NodeType() NodeType { return NodeTypeCondition }

type AudioData struct {
	AudioURL string `json:"audioUrl" validate:"required,url"`
}

func (*AudioData) NodeType() NodeType { return NodeTypeAudio }

type VideoData struct {
	VideoURL string `json:"videoUrl" validate:"required,url"`
}

func (*VideoData) NodeType() NodeType { return NodeTypeVideo }

type FileData struct {
	FileURL  string `json:"fileUrl"            validate:"required,url"`
	FileName string `json:"fileName,omitempty" validate:"max=255"`
}

func (*FileData) NodeType() NodeType { return NodeTypeFile }

type CardData struct {
	Title    string `json:"title"              validate:"required,max=80"`
	Subtitle string `json:"subtitle,omitempty" validate:"max=80"`
	ImageURL string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

func (*CardData) NodeType() NodeType { return NodeTypeCard }

type SequenceData struct {
	Delay     int       `json:"delay"     validate:"gt=0"`
	DelayUnit DelayUnit `json:"delayUnit" validate:"required,oneof=minutes hours days"`
}

func (*SequenceData) NodeType() NodeType { return NodeTypeSequence }

// MaxDelay is the longest wait a sequence node may ask for.
const MaxDelay = 365 * 24 * time.Hour

// Duration is the length of one unit. Unknown units count as minutes.
func (u DelayUnit) Duration() time.Duration {
	switch u {
	case DelayHours:
		return time.Hour
	case DelayDays:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// ExceedsMaxDelay reports whether the wait is longer than MaxDelay.
func (d *SequenceData) ExceedsMaxDelay() bool {
	return int64(d.Delay) > int64(MaxDelay/d.DelayUnit.Duration())
}

// Duration is the wait of the node, capped at MaxDelay.
func (d *SequenceData) Duration() time.Duration {
	if d.ExceedsMaxDelay() {
		return MaxDelay
	}

	return time.Duration(d.Delay) * d.DelayUnit.Duration()
}

type InputData struct {
	FieldName string `json:"fieldName"        validate:"required,max=100"`
	SaveAs    string `json:"saveAs,omitempty" validate:"omitempty,max=64,varname"`
	Prompt    string `json:"prompt,omitempty" validate:"max=640,template"`
}

func (*InputData) NodeType() NodeType { return NodeTypeInput }

type AIData struct {
	Prompt string `json:"prompt" validate:"required,max=1000,template"`
}

func (*AIData) NodeType() NodeType { return NodeTypeAI }

type CarouselData struct {
	CarouselText string `json:"carouselText,omitempty" validate:"max=2000,template"`
}

func (*CarouselData) NodeType() NodeType { return NodeTypeCarousel }

type CarouselItemData struct {
	Title       string `json:"title"                 validate:"required,max=80"`
	Subtitle    string `json:"subtitle,omitempty"    validate:"max=80"`
	ImageURL    string `json:"imageUrl,omitempty"    validate:"omitempty,url"`
	URL         string `json:"url,omitempty"         validate:"omitempty,url"`
	FlowID      string `json:"flowId,omitempty"`
	ButtonTitle string `json:"buttonTitle,omitempty" validate:"max=20"`
}

func (*CarouselItemData) NodeType() NodeType { return NodeTypeCarouselItem }

type ProductData struct {
	Products             []string      `json:"products"                       validate:"min=1,dive,required"`
	ProductSellingMethod SellingMethod `json:"productSellingMethod,omitempty" validate:"omitempty,oneof=direct_store details_store external_store"`
}

func (*ProductData) NodeType() NodeType { return NodeTypeProduct }
