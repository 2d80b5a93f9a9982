package dir

import (
	"strings"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/inode"
)

// skipelem copies the next path element out of path and returns it with the
// remainder, leading slashes stripped from both. ok is false when no
// element remains. Elements longer than DIRSIZ are truncated.
//
//	skipelem("a/bb/c") = "a", "bb/c"
//	skipelem("///a//bb") = "a", "bb"
//	skipelem("a") = "a", ""
//	skipelem("") = skipelem("////") = not ok
func skipelem(path string) (elem string, rest string, ok bool) {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	if i == len(path) {
		return "", "", false
	}
	start := i
	for i < len(path) && path[i] != '/' {
		i++
	}
	elem = truncName(path[start:i])
	for i < len(path) && path[i] == '/' {
		i++
	}
	return elem, path[i:], true
}

// Resolver walks paths on one file system.
type Resolver struct {
	it *inode.Itable
}

func MkResolver(it *inode.Itable) *Resolver {
	return &Resolver{it: it}
}

// namex looks up path, returning a referenced, unlocked inode. In parent
// mode it stops one level early, returning the parent directory and the
// final element. Must be called inside an operation, since it may drop the
// last reference to an inode.
func (r *Resolver) namex(cwd *inode.Inode, path string, parent bool) (*inode.Inode, string) {
	var ip *inode.Inode
	if strings.HasPrefix(path, "/") || cwd == nil {
		ip = r.it.Get(common.ROOTINUM)
	} else {
		ip = cwd.Dup()
	}

	var name string
	for {
		elem, rest, ok := skipelem(path)
		if !ok {
			break
		}
		name, path = elem, rest
		ip.Lock()
		if ip.Type != common.TDIR {
			ip.UnlockPut()
			return nil, ""
		}
		if parent && path == "" {
			// Stop one level early.
			ip.Unlock()
			return ip, name
		}
		next, _ := Lookup(ip, name)
		if next == nil {
			ip.UnlockPut()
			return nil, ""
		}
		ip.UnlockPut()
		ip = next
	}
	if parent {
		ip.Put()
		return nil, ""
	}
	return ip, name
}

// Namei resolves path relative to cwd (or the root, for absolute paths and
// a nil cwd).
func (r *Resolver) Namei(cwd *inode.Inode, path string) *inode.Inode {
	ip, _ := r.namex(cwd, path, false)
	return ip
}

// NameiParent resolves all but the last element of path, returning the
// parent directory and the last element. It fails for paths with no
// elements, such as "/".
func (r *Resolver) NameiParent(cwd *inode.Inode, path string) (*inode.Inode, string) {
	return r.namex(cwd, path, true)
}
