package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/dmitrijs2005/libsync/internal/common"
)

// Branch is one of the two parallel subtrees of a library. Membership is
// decided by key prefix only, never by object metadata.
type Branch string

const (
	BranchPrivate   Branch = "private"
	BranchPublished Branch = "published"
)

// MarkerName is the zero-byte housekeeping object that keeps an otherwise
// empty directory visible. Markers never show up in listings or archives.
const MarkerName = ".keep"

// ParseBranch validates a branch name coming from a request.
func ParseBranch(s string) (Branch, error) {
	switch Branch(s) {
	case BranchPrivate, BranchPublished:
		return Branch(s), nil
	case "":
		return BranchPrivate, nil
	}
	return "", fmt.Errorf("%w: unknown branch %q", common.ErrInvalidPath, s)
}

// Layout is the single place object keys are built:
//
//	{root}/{ownerID}/{libraryID}/{branch}/{relativePath}
type Layout struct {
	Root string
}

// NewLayout returns a layout rooted at root. Surrounding slashes are dropped.
func NewLayout(root string) Layout {
	return Layout{Root: strings.Trim(root, "/")}
}

// LibraryPrefix returns the prefix holding both branches of a library.
func (l Layout) LibraryPrefix(ownerID, libraryID string) string {
	return l.join(ownerID, libraryID) + "/"
}

// BranchPrefix returns the prefix of one branch, with a trailing slash.
func (l Layout) BranchPrefix(ownerID, libraryID string, b Branch) string {
	return l.join(ownerID, libraryID, string(b)) + "/"
}

// ObjectKey returns the key of a file inside a branch.
func (l Layout) ObjectKey(ownerID, libraryID string, b Branch, relativePath string) (string, error) {
	rel, err := CleanRelativePath(relativePath)
	if err != nil {
		return "", err
	}
	return l.BranchPrefix(ownerID, libraryID, b) + rel, nil
}

// DirPrefix returns the listing prefix of a directory inside a branch. An
// empty dir means the branch root.
func (l Layout) DirPrefix(ownerID, libraryID string, b Branch, dir string) (string, error) {
	if strings.Trim(dir, "/") == "" {
		return l.BranchPrefix(ownerID, libraryID, b), nil
	}
	rel, err := CleanRelativePath(dir)
	if err != nil {
		return "", err
	}
	return l.BranchPrefix(ownerID, libraryID, b) + rel + "/", nil
}

// MarkerKey returns the housekeeping marker key for a prefix.
func (l Layout) MarkerKey(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + MarkerName
}

func (l Layout) join(parts ...string) string {
	if l.Root == "" {
		return strings.Join(parts, "/")
	}
	return l.Root + "/" + strings.Join(parts, "/")
}

// CleanRelativePath normalizes a client supplied path and rejects anything
// that could escape the branch prefix or collide with a marker.
func CleanRelativePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	trimmed := strings.TrimLeft(p, "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty path", common.ErrInvalidPath)
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes the library", common.ErrInvalidPath, p)
		}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || path.Base(cleaned) == MarkerName {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidPath, p)
	}
	return cleaned, nil
}

// IsMarker reports whether key is a housekeeping marker.
func IsMarker(key string) bool {
	return path.Base(key) == MarkerName
}
