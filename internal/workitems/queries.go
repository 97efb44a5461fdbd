package workitems

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/workitems-go/internal/tfs"
)

// QueryNode is a folder or saved query in a project's query hierarchy.
type QueryNode struct {
	ID       string      `json:"id" yaml:"id"`
	Name     string      `json:"name" yaml:"name"`
	Path     string      `json:"path" yaml:"path"`
	IsFolder bool        `json:"isFolder" yaml:"is_folder"`
	WIQL     string      `json:"wiql,omitempty" yaml:"wiql,omitempty"`
	Children []QueryNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// newQueryNode converts a fully expanded REST query item.
func newQueryNode(item *tfs.QueryItem) QueryNode {
	node := QueryNode{
		ID:       item.ID,
		Name:     item.Name,
		Path:     item.Path,
		IsFolder: item.IsFolder,
		WIQL:     item.WIQL,
	}

	if len(item.Children) > 0 {
		node.Children = make([]QueryNode, 0, len(item.Children))
		for i := range item.Children {
			node.Children = append(node.Children, newQueryNode(&item.Children[i]))
		}
	}

	return node
}

// FlattenQueries returns every saved query below root in depth-first order.
// Folders are descended into and never appear in the result. A folder with
// no queries yields an empty, non-nil slice.
func FlattenQueries(root QueryNode) []QueryNode {
	out := []QueryNode{}
	collectQueries(root.Children, &out)

	return out
}

func collectQueries(nodes []QueryNode, out *[]QueryNode) {
	for i := range nodes {
		if nodes[i].IsFolder {
			collectQueries(nodes[i].Children, out)
			continue
		}

		*out = append(*out, nodes[i])
	}
}

// sameName reports whether two server names refer to the same object.
// Names are compared after NFC normalization, ignoring case.
func sameName(a, b string) bool {
	return strings.EqualFold(norm.NFC.String(a), norm.NFC.String(b))
}

// findChild returns the first item in items whose name matches name.
func findChild(items []tfs.QueryItem, name string) (*tfs.QueryItem, bool) {
	for i := range items {
		if sameName(items[i].Name, name) {
			return &items[i], true
		}
	}

	return nil, false
}
