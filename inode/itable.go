package inode

import (
	"sync"

	"github.com/mit-pdos/go-xv6fs/alloc"
	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/sleeplock"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/util"
	"github.com/mit-pdos/go-xv6fs/wal"
)

// Itable is the table of in-memory inodes for one device.
type Itable struct {
	mu     *sync.Mutex // protects ref of every entry, and index
	inodes []*Inode
	index  map[common.Inum]*Inode // entries with ref > 0

	bc    *bcache.Bcache
	log   *wal.Log
	alloc *alloc.Alloc
	dev   uint64
	sb    *super.FsSuper
}

func MkItable(ninode uint64, bc *bcache.Bcache, log *wal.Log, a *alloc.Alloc,
	dev uint64, sb *super.FsSuper) *Itable {
	it := &Itable{
		mu:     new(sync.Mutex),
		inodes: make([]*Inode, ninode),
		index:  make(map[common.Inum]*Inode),
		bc:     bc,
		log:    log,
		alloc:  a,
		dev:    dev,
		sb:     sb,
	}
	for i := range it.inodes {
		it.inodes[i] = &Inode{it: it, lock: sleeplock.MkLock("inode")}
	}
	return it
}

// Alloc allocates an on-disk inode of type typ and returns an unlocked but
// referenced handle to it. Must be called inside an operation.
func (it *Itable) Alloc(typ common.Itype) (*Inode, error) {
	for inum := common.Inum(1); uint64(inum) < it.sb.NInodes; inum++ {
		b := it.bc.Read(it.dev, it.sb.IBlock(inum))
		rec := it.record(b.Data, inum)
		if decodeType(rec) == common.TFREE { // a free inode
			dip := &Inode{Type: typ}
			copy(rec, dip.encode())
			it.log.Write(b) // mark it allocated on the disk
			it.bc.Release(b)
			util.DPrintf(5, "ialloc: %d type %v\n", inum, typ)
			return it.Get(inum), nil
		}
		it.bc.Release(b)
	}
	util.DPrintf(0, "ialloc: no inodes\n")
	return nil, common.ErrNoInodes
}

// Get finds the inode with number inum and returns a referenced in-memory
// copy. It does not lock the inode and does not read it from disk.
func (it *Itable) Get(inum common.Inum) *Inode {
	it.mu.Lock()
	if ip, ok := it.index[inum]; ok {
		ip.ref += 1
		it.mu.Unlock()
		return ip
	}

	for _, ip := range it.inodes {
		if ip.ref == 0 {
			ip.Dev = it.dev
			ip.Inum = inum
			ip.ref = 1
			ip.valid = false
			it.index[inum] = ip
			it.mu.Unlock()
			return ip
		}
	}
	it.mu.Unlock()
	common.Fatalf("iget", "no inodes")
	return nil
}

// NRef reports how many table entries are referenced.
func (it *Itable) NRef() uint64 {
	it.mu.Lock()
	defer it.mu.Unlock()
	return uint64(len(it.index))
}
