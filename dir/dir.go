// Package dir implements directories on top of inodes. A directory is an
// inode of type TDIR whose content is a sequence of fixed-size entries,
// each an inode number followed by a name of at most DIRSIZ bytes. An entry
// with inode number 0 is free.
package dir

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/inode"
	"github.com/mit-pdos/go-xv6fs/util"
)

type Dirent struct {
	Inum common.Inum
	Name string
}

func truncName(name string) string {
	if uint64(len(name)) > common.DIRSIZ {
		return name[:common.DIRSIZ]
	}
	return name
}

func encodeDirent(de Dirent) []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt(uint64(de.Inum))
	b := enc.Finish()
	copy(b[8:], truncName(de.Name))
	return b
}

func decodeDirent(b []byte) Dirent {
	dec := marshal.NewDec(b)
	inum := common.Inum(dec.GetInt())
	name := b[8:common.DIRENTSZ]
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return Dirent{Inum: inum, Name: string(name[:n])}
}

// namecmp compares names the way they are stored: only the first DIRSIZ
// bytes count.
func namecmp(s, t string) bool {
	return truncName(s) == truncName(t)
}

func readDirent(dp *inode.Inode, off uint64) Dirent {
	b := dp.Read(off, common.DIRENTSZ)
	if uint64(len(b)) != common.DIRENTSZ {
		common.Fatalf("dirlookup", "short read at %d of %v", off, dp)
	}
	return decodeDirent(b)
}

// Lookup looks for name in directory dp, which the caller has locked. It
// returns a referenced, unlocked inode and the entry's byte offset, or nil.
func Lookup(dp *inode.Inode, name string) (*inode.Inode, uint64) {
	if dp.Type != common.TDIR {
		common.Fatalf("dirlookup", "%v not DIR", dp)
	}
	for off := uint64(0); off < dp.Size; off += common.DIRENTSZ {
		de := readDirent(dp, off)
		if de.Inum == common.NULLINUM {
			continue
		}
		if namecmp(name, de.Name) {
			// entry matches path element
			return dp.Table().Get(de.Inum), off
		}
	}
	return nil, 0
}

// Link writes a new entry (name, inum) into directory dp, reusing the first
// free slot. It fails with ErrExists if name is already present. Caller has
// dp locked and is inside an operation.
func Link(dp *inode.Inode, name string, inum common.Inum) error {
	// Check that name is not present.
	if ip, _ := Lookup(dp, name); ip != nil {
		ip.Put()
		return common.ErrExists
	}

	// Look for an empty dirent.
	var off uint64
	for off = 0; off < dp.Size; off += common.DIRENTSZ {
		if readDirent(dp, off).Inum == common.NULLINUM {
			break
		}
	}
	util.DPrintf(5, "dirlink: %q -> %d at %d\n", name, inum, off)
	_, err := dp.Write(off, encodeDirent(Dirent{Inum: inum, Name: name}))
	return err
}

// Unlink clears the entry at off. The directory keeps its size.
func Unlink(dp *inode.Inode, off uint64) {
	if off%common.DIRENTSZ != 0 || off >= dp.Size {
		common.Fatalf("unlink", "bad dirent offset %d in %v", off, dp)
	}
	if _, err := dp.Write(off, make([]byte, common.DIRENTSZ)); err != nil {
		common.Fatalf("unlink", "writei: %v", err)
	}
}

// IsEmpty reports whether dp holds nothing but "." and "..".
func IsEmpty(dp *inode.Inode) bool {
	for off := 2 * common.DIRENTSZ; off < dp.Size; off += common.DIRENTSZ {
		if readDirent(dp, off).Inum != common.NULLINUM {
			return false
		}
	}
	return true
}

// ReadDir returns dp's entries in on-disk order, skipping free slots.
func ReadDir(dp *inode.Inode) []Dirent {
	if dp.Type != common.TDIR {
		common.Fatalf("readdir", "%v not DIR", dp)
	}
	var ents []Dirent
	for off := uint64(0); off < dp.Size; off += common.DIRENTSZ {
		de := readDirent(dp, off)
		if de.Inum != common.NULLINUM {
			ents = append(ents, de)
		}
	}
	return ents
}
