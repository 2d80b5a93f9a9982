// Package inode manages on-disk inodes and the in-memory table of inodes
// that are in use.
//
// An inode describes a single unnamed file: its type, link count, size, and
// the blocks holding its content. On disk the inodes are packed into a
// contiguous region of 128-byte records starting at sb.InodeStart.
//
// The in-memory table gives callers a single place to synchronize on an
// inode. An entry is referenced while Get/Dup handles are live (ref > 0);
// its cached copy of the on-disk fields is valid once Lock has read it, and
// may only be used while holding the inode's lock:
//
//	ip := it.Get(inum)
//	ip.Lock()
//	... examine and modify ip.Size etc ...
//	ip.Unlock()
//	ip.Put()
//
// Get and Lock are separate so that path lookup can hold a long-term
// reference to a directory without locking it, which avoids deadlock.
package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/sleeplock"
	"github.com/mit-pdos/go-xv6fs/util"
)

type Inode struct {
	it   *Itable
	Dev  uint64
	Inum common.Inum

	ref   uint64 // protected by it.mu
	lock  *sleeplock.Lock
	valid bool // has the inode been read from disk?

	Type  common.Itype
	Major uint32
	Minor uint32
	Nlink uint32
	Size  uint64
	Addrs [common.NADDRS]common.Bnum
}

type Stat struct {
	Dev   uint64
	Inum  common.Inum
	Type  common.Itype
	Nlink uint32
	Size  uint64
}

func (ip *Inode) String() string {
	return fmt.Sprintf("inode %d:%d t %v nlink %d sz %d", ip.Dev, ip.Inum,
		ip.Type, ip.Nlink, ip.Size)
}

func (ip *Inode) encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt32(uint32(ip.Type))
	enc.PutInt32(ip.Major)
	enc.PutInt32(ip.Minor)
	enc.PutInt32(ip.Nlink)
	enc.PutInt(ip.Size)
	enc.PutInts(ip.Addrs[:])
	return enc.Finish()
}

func (ip *Inode) decode(rec []byte) {
	dec := marshal.NewDec(rec)
	ip.Type = common.Itype(dec.GetInt32())
	ip.Major = dec.GetInt32()
	ip.Minor = dec.GetInt32()
	ip.Nlink = dec.GetInt32()
	ip.Size = dec.GetInt()
	copy(ip.Addrs[:], dec.GetInts(common.NADDRS))
}

func decodeType(rec []byte) common.Itype {
	dec := marshal.NewDec(rec[:4])
	return common.Itype(dec.GetInt32())
}

// record returns the slice of an inode block holding inum's record.
func (it *Itable) record(data []byte, inum common.Inum) []byte {
	a := it.sb.Inum2Addr(inum)
	return data[a.ByteOff() : a.ByteOff()+common.INODESZ]
}

// Update copies the in-memory fields to disk through the log. It must be
// called after every change to a field that lives on disk, inside an
// operation and with ip locked.
func (ip *Inode) Update() {
	it := ip.it
	b := it.bc.Read(ip.Dev, it.sb.IBlock(ip.Inum))
	copy(it.record(b.Data, ip.Inum), ip.encode())
	it.log.Write(b)
	it.bc.Release(b)
}

// Lock locks ip, reading it from disk if necessary.
func (ip *Inode) Lock() {
	it := ip.it
	it.mu.Lock()
	ref := ip.ref
	it.mu.Unlock()
	if ref < 1 {
		common.Fatalf("ilock", "%d not referenced", ip.Inum)
	}

	ip.lock.Acquire()
	if !ip.valid {
		b := it.bc.Read(ip.Dev, it.sb.IBlock(ip.Inum))
		ip.decode(it.record(b.Data, ip.Inum))
		it.bc.Release(b)
		ip.valid = true
		if ip.Type == common.TFREE {
			ip.lock.Release()
			common.Fatalf("ilock", "%d has no type", ip.Inum)
		}
	}
}

func (ip *Inode) Unlock() {
	if !ip.lock.Holding() {
		common.Fatalf("iunlock", "%d not locked", ip.Inum)
	}
	ip.lock.Release()
}

// Table is the inode table ip belongs to.
func (ip *Inode) Table() *Itable {
	return ip.it
}

// Holding reports whether ip is locked by any goroutine.
func (ip *Inode) Holding() bool {
	return ip.lock.Holding()
}

// Dup takes another reference to ip.
func (ip *Inode) Dup() *Inode {
	ip.it.mu.Lock()
	ip.ref += 1
	ip.it.mu.Unlock()
	return ip
}

// Put drops a reference to ip. If that was the last reference and the inode
// has no links, the inode and its content are freed on disk, so Put must be
// called inside an operation.
func (ip *Inode) Put() {
	it := ip.it
	it.mu.Lock()
	if ip.ref == 1 && ip.valid && ip.Nlink == 0 {
		// inode has no links and no other references: truncate and free.
		// ref is 1, so no other goroutine can have ip locked and this
		// Acquire won't block.
		ip.lock.Acquire()
		it.mu.Unlock()

		util.DPrintf(5, "iput: free %v\n", ip)
		ip.Truncate()
		ip.Type = common.TFREE
		ip.Update()
		ip.valid = false

		ip.lock.Release()
		it.mu.Lock()
	}
	ip.ref -= 1
	if ip.ref == 0 {
		delete(it.index, ip.Inum)
	}
	it.mu.Unlock()
}

func (ip *Inode) UnlockPut() {
	ip.Unlock()
	ip.Put()
}

// Stat reports ip's metadata. ip must be locked.
func (ip *Inode) Stat() Stat {
	return Stat{
		Dev:   ip.Dev,
		Inum:  ip.Inum,
		Type:  ip.Type,
		Nlink: ip.Nlink,
		Size:  ip.Size,
	}
}
