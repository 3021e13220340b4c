package convert

import (
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// methodOrder fixes the order operations of one path are visited in.
var methodOrder = []string{
	"get", "post", "put", "delete", "options", "head", "patch", "trace",
}

// Operation is a read-only view of one method+path pair of a document.
type Operation struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Description string
	Tags        []string
	Deprecated  bool

	// Parameters holds path-item level parameters merged with the
	// operation's own, the latter winning on name+location.
	Parameters  openapi3.Parameters
	RequestBody *openapi3.RequestBody
	Responses   *openapi3.Responses
}

// Operations returns every operation of the loaded document, ordered by
// path and then by HTTP method.
func (p *Parser) Operations() []Operation {
	paths := p.GetPaths()
	if paths == nil {
		return nil
	}

	pathMap := paths.Map()
	keys := make([]string, 0, len(pathMap))
	for path := range pathMap {
		keys = append(keys, path)
	}
	sort.Strings(keys)

	var ops []Operation
	for _, path := range keys {
		pathItem := pathMap[path]
		if pathItem == nil {
			continue
		}
		operations := getOperations(pathItem)
		for _, method := range methodOrder {
			op, ok := operations[method]
			if !ok {
				continue
			}
			o := Operation{
				Method:      strings.ToUpper(method),
				Path:        path,
				OperationID: op.OperationID,
				Summary:     op.Summary,
				Description: op.Description,
				Tags:        op.Tags,
				Deprecated:  op.Deprecated,
				Parameters:  mergeParameters(pathItem.Parameters, op.Parameters),
				Responses:   op.Responses,
			}
			if op.RequestBody != nil {
				o.RequestBody = op.RequestBody.Value
			}
			ops = append(ops, o)
		}
	}
	return ops
}

// getOperations returns a map of HTTP method to operation
func getOperations(pathItem *openapi3.PathItem) map[string]*openapi3.Operation {
	operations := make(map[string]*openapi3.Operation)

	if pathItem.Get != nil {
		operations["get"] = pathItem.Get
	}
	if pathItem.Post != nil {
		operations["post"] = pathItem.Post
	}
	if pathItem.Put != nil {
		operations["put"] = pathItem.Put
	}
	if pathItem.Delete != nil {
		operations["delete"] = pathItem.Delete
	}
	if pathItem.Options != nil {
		operations["options"] = pathItem.Options
	}
	if pathItem.Head != nil {
		operations["head"] = pathItem.Head
	}
	if pathItem.Patch != nil {
		operations["patch"] = pathItem.Patch
	}
	if pathItem.Trace != nil {
		operations["trace"] = pathItem.Trace
	}

	return operations
}

func mergeParameters(pathParams, opParams openapi3.Parameters) openapi3.Parameters {
	if len(pathParams) == 0 {
		return opParams
	}

	overridden := make(map[string]bool, len(opParams))
	for _, ref := range opParams {
		if ref != nil && ref.Value != nil {
			overridden[ref.Value.In+"|"+ref.Value.Name] = true
		}
	}

	merged := make(openapi3.Parameters, 0, len(pathParams)+len(opParams))
	for _, ref := range pathParams {
		if ref == nil || ref.Value == nil || overridden[ref.Value.In+"|"+ref.Value.Name] {
			continue
		}
		merged = append(merged, ref)
	}
	return append(merged, opParams...)
}
