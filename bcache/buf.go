package bcache

import (
	"fmt"

	"github.com/tchajed/goose/machine"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/sleeplock"
)

// A Buf is the cached copy of one disk block.
//
// Dev, Blkno and Data may only be used while holding the buffer (between
// Get/Read and Release). The remaining fields belong to the Bcache.
type Buf struct {
	Dev   uint64
	Blkno common.Bnum
	Data  disk.Block

	valid  bool // has Data been read from disk?
	lock   *sleeplock.Lock
	refcnt uint64 // protected by Bcache.mu
	cached bool   // present in Bcache.index
	prev   *Buf   // LRU list
	next   *Buf
}

func mkBuf() *Buf {
	return &Buf{
		Data: make(disk.Block, disk.BlockSize),
		lock: sleeplock.MkLock("buffer"),
	}
}

func (b *Buf) String() string {
	return fmt.Sprintf("buf %d:%d v %v", b.Dev, b.Blkno, b.valid)
}

// Holding reports whether b is locked by any goroutine.
func (b *Buf) Holding() bool {
	return b.lock.Holding()
}

// BnumGet decodes the block number stored at byte offset off.
func (b *Buf) BnumGet(off uint64) common.Bnum {
	return common.Bnum(machine.UInt64Get(b.Data[off : off+8]))
}

func (b *Buf) BnumPut(off uint64, v common.Bnum) {
	machine.UInt64Put(b.Data[off:off+8], uint64(v))
}

func (b *Buf) Zero() {
	for i := range b.Data {
		b.Data[i] = 0
	}
}
