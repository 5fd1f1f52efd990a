package validation

import (
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/registry"
)

// ValidateFlow hard-checks a whole document before it is activated or
// imported: every node payload as stored, every edge handle, and the
// connectivity report. All problems are returned together.
func ValidateFlow(flow *models.Flow, nodeTypes *registry.Registry) error {
	var errs Errors

	if err := validate.Struct(flow); err != nil {
		errs = append(errs, fromValidator(err)...)
	}

	for _, node := range flow.Nodes {
		if err := Check(node.Data); err != nil {
			fieldErrs, ok := AsErrors(err)
			if !ok {
				return err
			}

			errs = append(errs, fieldErrs.Prefix(fmt.Sprintf("nodes[%s]", node.ID))...)
		}
	}

	for _, edge := range flow.Edges {
		source, ok := flow.NodeByID(edge.Source)
		if !ok {
			continue
		}

		if !nodeTypes.AllowsHandle(source, edge.SourceHandle) {
			errs = append(errs, FieldError{
				Field:  fmt.Sprintf("edges[%s].sourceHandle", edge.ID),
				Reason: fmt.Sprintf("%q is not an output of %s node %s", edge.Handle(), source.Type, source.ID),
			})
		}
	}

	for _, issue := range flow.CheckConnectivity() {
		field := "nodes"
		if issue.EdgeID != "" {
			field = fmt.Sprintf("edges[%s]", issue.EdgeID)
		}

		errs = append(errs, FieldError{Field: field, Reason: issue.Error()})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}
