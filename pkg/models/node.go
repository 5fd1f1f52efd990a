package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNodeDataMismatch = errors.New("node data does not match node type")

// UnknownNodeTypeError is returned when a document references a node type
// that has no payload variant.
type UnknownNodeTypeError struct {
	NodeType NodeType
}

func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("unknown node type %q", e.NodeType)
}

// Position is the editor canvas coordinate of a node. It has no runtime meaning.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one step of a flow. Data always holds the variant matching Type.
type Node struct {
	ID       string
	Type     NodeType
	Label    string
	Position Position
	Data     NodeData
}

// NewNode builds a node whose type is taken from its payload.
func NewNode(id string, data NodeData) *Node {
	return &Node{ID: id, Type: data.NodeType(), Data: data}
}

type nodeEnvelope struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"nodeType"`
	Label    string          `json:"label,omitempty"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.Data == nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, ErrNodeDataMismatch)
	}

	nodeType := n.Type
	if nodeType == "" {
		nodeType = n.Data.NodeType()
	}

	if nodeType != n.Data.NodeType() {
		return nil, fmt.Errorf("node %s has type %s but carries %s data: %w",
			n.ID, nodeType, n.Data.NodeType(), ErrNodeDataMismatch)
	}

	data, err := json.Marshal(n.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data of node %s: %w", n.ID, err)
	}

	return json.Marshal(nodeEnvelope{
		ID:       n.ID,
		Type:     nodeType,
		Label:    n.Label,
		Position: n.Position,
		Data:     data,
	})
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var envelope nodeEnvelope
	if err := json.Unmarshal(b, &envelope); err != nil {
		return err
	}

	data, err := DecodeNodeData(envelope.Type, envelope.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", envelope.ID, err)
	}

	n.ID = envelope.ID
	n.Type = envelope.Type
	n.Label = envelope.Label
	n.Position = envelope.Position
	n.Data = data

	return nil
}

// DecodeNodeData decodes a raw payload into the variant for nodeType. Fields
// that the variant does not declare are rejected.
func DecodeNodeData(nodeType NodeType, raw []byte) (NodeData, error) {
	data, err := NewNodeData(nodeType)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return data, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("invalid %s data: %w", nodeType, err)
	}

	return data, nil
}
