package repo

import (
	"encoding/json"
	"path"
	"sort"
	"strings"

	"github.com/hypertable/hyperspace/pkg/hserrors"
	"github.com/hypertable/hyperspace/pkg/hyperspace/domain"
	"github.com/hypertable/hyperspace/pkg/store"
)

// GetNode returns the node at p, or a FileNotFound *hserrors.Error.
func GetNode(txn store.Txn, p string) (*domain.Node, error) {
	val, err := txn.Get(keyNode(p))
	if err == store.ErrNotFound {
		return nil, hserrors.NewFileNotFoundError(p)
	}
	if err != nil {
		return nil, err
	}
	var n domain.Node
	if err := json.Unmarshal(val, &n); err != nil {
		return nil, hserrors.NewStoreError("decode node: " + err.Error())
	}
	return &n, nil
}

// NodeExists reports whether a node exists at p without decoding it fully.
func NodeExists(txn store.Txn, p string) (bool, error) {
	_, err := txn.Get(keyNode(p))
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PutNode persists n.
func PutNode(txn store.Txn, n *domain.Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return hserrors.NewStoreError("encode node: " + err.Error())
	}
	return txn.Set(keyNode(n.Path), data)
}

// CreateNode creates a brand-new node record and links it into its parent's
// child index. Callers are responsible for verifying the parent exists and
// the node does not already exist.
func CreateNode(txn store.Txn, n *domain.Node) error {
	if err := PutNode(txn, n); err != nil {
		return err
	}
	if n.IsRoot() {
		return nil
	}
	parent, name := SplitPath(n.Path)
	return txn.Set(keyChild(parent, name), []byte(n.Path))
}

// DeleteNode removes a node record and its entry in the parent's child
// index.
func DeleteNode(txn store.Txn, n *domain.Node) error {
	if err := txn.Delete(keyNode(n.Path)); err != nil {
		return err
	}
	if n.IsRoot() {
		return nil
	}
	parent, name := SplitPath(n.Path)
	return txn.Delete(keyChild(parent, name))
}

// ListChildren returns the sorted child paths of parentPath.
func ListChildren(txn store.Txn, parentPath string) ([]string, error) {
	var children []string
	err := txn.Iterate(keyChildPrefix(parentPath), func(it store.Item) bool {
		children = append(children, string(it.Value))
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(children)
	return children, nil
}

// SplitPath splits an absolute path into its parent and final component.
// SplitPath("/a/b") == ("/a", "b"); SplitPath("/a") == ("/", "a").
func SplitPath(p string) (parent, name string) {
	parent = path.Dir(p)
	name = path.Base(p)
	return parent, name
}

// ValidatePath reports whether p is a well-formed absolute node path.
func ValidatePath(p string) error {
	if p == "" || p[0] != '/' {
		return hserrors.NewBadPathnameError(p)
	}
	if p != "/" && strings.HasSuffix(p, "/") {
		return hserrors.NewBadPathnameError(p)
	}
	if strings.Contains(p, "//") {
		return hserrors.NewBadPathnameError(p)
	}
	return nil
}
