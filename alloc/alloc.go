// Package alloc hands out and frees data blocks using the on-disk free
// bitmap. Bit b of the bitmap is 1 iff block b is in use; the metadata
// blocks are marked in use when the file system is made.
//
// AllocBlock and FreeBlock must run inside a log operation: they change the
// bitmap (and zero new blocks) through the log.
package alloc

import (
	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/util"
	"github.com/mit-pdos/go-xv6fs/wal"
)

type Alloc struct {
	bc  *bcache.Bcache
	log *wal.Log
	dev uint64
	sb  *super.FsSuper
}

func MkAlloc(bc *bcache.Bcache, log *wal.Log, dev uint64, sb *super.FsSuper) *Alloc {
	return &Alloc{bc: bc, log: log, dev: dev, sb: sb}
}

// zero clears block bn through the log.
func (a *Alloc) zero(bn common.Bnum) {
	b := a.bc.Read(a.dev, bn)
	b.Zero()
	a.log.Write(b)
	a.bc.Release(b)
}

// AllocBlock returns a zeroed, newly allocated block. Blocks are scanned from
// the start of the disk and the first free one wins.
func (a *Alloc) AllocBlock() (common.Bnum, error) {
	for b := uint64(0); b < a.sb.Size; b += common.NBITBLOCK {
		bp := a.bc.Read(a.dev, a.sb.BBlock(b))
		for bi := uint64(0); bi < common.NBITBLOCK && b+bi < a.sb.Size; bi++ {
			ad := a.sb.Block2BitAddr(b + bi)
			if bp.Data[ad.ByteOff()]&ad.Mask() == 0 { // Is block free?
				bp.Data[ad.ByteOff()] |= ad.Mask() // Mark block in use.
				a.log.Write(bp)
				a.bc.Release(bp)
				a.zero(b + bi)
				util.DPrintf(5, "balloc: %d\n", b+bi)
				return b + bi, nil
			}
		}
		a.bc.Release(bp)
	}
	util.DPrintf(0, "balloc: out of blocks\n")
	return common.NULLBNUM, common.ErrNoSpace
}

// FreeBlock marks bn free. Freeing a block that is not in use is fatal.
func (a *Alloc) FreeBlock(bn common.Bnum) {
	if bn < a.sb.NMeta() || bn >= a.sb.Size {
		common.Fatalf("bfree", "block %d outside data region", bn)
	}
	bp := a.bc.Read(a.dev, a.sb.BBlock(bn))
	ad := a.sb.Block2BitAddr(bn)
	if bp.Data[ad.ByteOff()]&ad.Mask() == 0 {
		a.bc.Release(bp)
		common.Fatalf("bfree", "freeing free block %d", bn)
	}
	bp.Data[ad.ByteOff()] &^= ad.Mask()
	a.log.Write(bp)
	a.bc.Release(bp)
	util.DPrintf(5, "bfree: %d\n", bn)
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumFree counts the free blocks recorded in the bitmap.
func (a *Alloc) NumFree() uint64 {
	var used uint64
	for i := uint64(0); i < a.sb.NBitmap(); i++ {
		bp := a.bc.Read(a.dev, a.sb.BmapStart+i)
		for j, v := range bp.Data {
			if i*common.NBITBLOCK+uint64(j)*8 >= a.sb.Size {
				break
			}
			used += popCnt(v)
		}
		a.bc.Release(bp)
	}
	return a.sb.Size - used
}
