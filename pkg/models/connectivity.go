package models

import "fmt"

// ConnectivityIssueKind classifies a structural problem of a flow graph.
type ConnectivityIssueKind string

const (
	IssueMissingSource  ConnectivityIssueKind = "missing_source"
	IssueMissingTarget  ConnectivityIssueKind = "missing_target"
	IssueDuplicateNode  ConnectivityIssueKind = "duplicate_node"
	IssueDuplicateEdge  ConnectivityIssueKind = "duplicate_edge"
	IssueMissingStart   ConnectivityIssueKind = "missing_start"
	IssueMultipleStarts ConnectivityIssueKind = "multiple_starts"
)

// ConnectivityIssue describes one structural problem found by CheckConnectivity.
type ConnectivityIssue struct {
	Kind   ConnectivityIssueKind `json:"kind"`
	NodeID string                `json:"node_id,omitempty"`
	EdgeID string                `json:"edge_id,omitempty"`
}

func (i ConnectivityIssue) Error() string {
	switch i.Kind {
	case IssueMissingSource:
		return fmt.Sprintf("edge %s leaves unknown node %s", i.EdgeID, i.NodeID)
	case IssueMissingTarget:
		return fmt.Sprintf("edge %s points to unknown node %s", i.EdgeID, i.NodeID)
	case IssueDuplicateNode:
		return fmt.Sprintf("node id %s is used more than once", i.NodeID)
	case IssueDuplicateEdge:
		return fmt.Sprintf("edge id %s is used more than once", i.EdgeID)
	case IssueMissingStart:
		return "flow has no start node"
	case IssueMultipleStarts:
		return fmt.Sprintf("flow has more than one start node (%s)", i.NodeID)
	default:
		return string(i.Kind)
	}
}

// CheckConnectivity reports dangling edges, duplicated identifiers and start
// node problems. An empty result means the graph is structurally sound.
func (f *Flow) CheckConnectivity() []ConnectivityIssue {
	var issues []ConnectivityIssue

	nodes := make(map[string]bool, len(f.Nodes))
	starts := 0

	for _, node := range f.Nodes {
		if nodes[node.ID] {
			issues = append(issues, ConnectivityIssue{Kind: IssueDuplicateNode, NodeID: node.ID})
		}

		nodes[node.ID] = true

		if node.Type == NodeTypeStart {
			starts++
			if starts > 1 {
				issues = append(issues, ConnectivityIssue{Kind: IssueMultipleStarts, NodeID: node.ID})
			}
		}
	}

	if starts == 0 {
		issues = append(issues, ConnectivityIssue{Kind: IssueMissingStart})
	}

	edges := make(map[string]bool, len(f.Edges))

	for _, edge := range f.Edges {
		if edges[edge.ID] {
			issues = append(issues, ConnectivityIssue{Kind: IssueDuplicateEdge, EdgeID: edge.ID})
		}

		edges[edge.ID] = true

		if !nodes[edge.Source] {
			issues = append(issues, ConnectivityIssue{Kind: IssueMissingSource, EdgeID: edge.ID, NodeID: edge.Source})
		}

		if !nodes[edge.Target] {
			issues = append(issues, ConnectivityIssue{Kind: IssueMissingTarget, EdgeID: edge.ID, NodeID: edge.Target})
		}
	}

	return issues
}
