// Package super describes the on-disk layout:
//
//	[ boot block | super block | log | inode blocks | free bit map | data blocks ]
//
// The superblock lives in block 1 and is immutable once the file system is
// made.
package super

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-xv6fs/addr"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/util"
)

const SUPERBLOCK common.Bnum = 1

// the volume id follows the fixed-width fields
const uuidOff = 4 + 7*8

type FsSuper struct {
	Magic      uint32
	Size       uint64 // size of file system image (blocks)
	NBlocks    uint64 // number of data blocks
	NInodes    uint64 // number of inodes
	NLog       uint64 // number of log blocks, header included
	LogStart   common.Bnum
	InodeStart common.Bnum
	BmapStart  common.Bnum
	UUID       uuid.UUID // volume id, fresh for every mkfs
}

// MkFsSuper computes the layout of a file system of sz blocks.
func MkFsSuper(sz uint64, ninodes uint64, nlog uint64) *FsSuper {
	nbitmap := sz/common.NBITBLOCK + 1
	ninodeblocks := ninodes/common.INODEBLK + 1
	nmeta := 2 + nlog + ninodeblocks + nbitmap
	if nmeta >= sz {
		panic(fmt.Errorf("MkFsSuper: %d metadata blocks do not fit in %d", nmeta, sz))
	}
	return &FsSuper{
		Magic:      common.FSMAGIC,
		Size:       sz,
		NBlocks:    sz - nmeta,
		NInodes:    ninodes,
		NLog:       nlog,
		LogStart:   2,
		InodeStart: 2 + nlog,
		BmapStart:  2 + nlog + ninodeblocks,
		UUID:       uuid.New(),
	}
}

func (sb *FsSuper) String() string {
	return fmt.Sprintf("uuid %v size %d nblocks %d ninodes %d nlog %d logstart %d inodestart %d bmapstart %d",
		sb.UUID, sb.Size, sb.NBlocks, sb.NInodes, sb.NLog, sb.LogStart, sb.InodeStart, sb.BmapStart)
}

func (sb *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt32(sb.Magic)
	enc.PutInt(sb.Size)
	enc.PutInt(sb.NBlocks)
	enc.PutInt(sb.NInodes)
	enc.PutInt(sb.NLog)
	enc.PutInt(sb.LogStart)
	enc.PutInt(sb.InodeStart)
	enc.PutInt(sb.BmapStart)
	blk := enc.Finish()
	copy(blk[uuidOff:uuidOff+16], sb.UUID[:])
	return blk
}

func Decode(blk disk.Block) *FsSuper {
	dec := marshal.NewDec(blk)
	sb := &FsSuper{}
	sb.Magic = dec.GetInt32()
	sb.Size = dec.GetInt()
	sb.NBlocks = dec.GetInt()
	sb.NInodes = dec.GetInt()
	sb.NLog = dec.GetInt()
	sb.LogStart = dec.GetInt()
	sb.InodeStart = dec.GetInt()
	sb.BmapStart = dec.GetInt()
	copy(sb.UUID[:], blk[uuidOff:uuidOff+16])
	return sb
}

// NMeta is the number of blocks before the data region.
func (sb *FsSuper) NMeta() uint64 {
	return sb.Size - sb.NBlocks
}

func (sb *FsSuper) NBitmap() uint64 {
	return sb.NMeta() - uint64(sb.BmapStart)
}

// IBlock is the block containing inode inum.
func (sb *FsSuper) IBlock(inum common.Inum) common.Bnum {
	return sb.InodeStart + common.Bnum(uint64(inum)/common.INODEBLK)
}

func (sb *FsSuper) Inum2Addr(inum common.Inum) addr.Addr {
	return addr.MkRecordAddr(sb.InodeStart, uint64(inum), common.INODESZ)
}

// BBlock is the bitmap block holding the bit for block b.
func (sb *FsSuper) BBlock(b common.Bnum) common.Bnum {
	return sb.BmapStart + b/common.NBITBLOCK
}

func (sb *FsSuper) Block2BitAddr(b common.Bnum) addr.Addr {
	return addr.MkBitAddr(sb.BmapStart, uint64(b))
}

// Format writes a fresh superblock, an empty log header, an empty inode
// table, and a bitmap with the metadata blocks marked in use, directly to d.
// It bypasses the log: nothing else may be using the disk.
func Format(d disk.Disk, sb *FsSuper) {
	if d.Size() < sb.Size {
		panic(fmt.Errorf("Format: disk has %d blocks, need %d", d.Size(), sb.Size))
	}
	util.DPrintf(1, "Format: %v\n", sb)
	zero := make(disk.Block, disk.BlockSize)
	for b := uint64(0); b < sb.NMeta(); b++ {
		d.Write(b, zero)
	}
	d.Write(SUPERBLOCK, sb.Encode())

	bitmap := make([]byte, sb.NBitmap()*disk.BlockSize)
	for b := uint64(0); b < sb.NMeta(); b++ {
		a := sb.Block2BitAddr(b)
		off := (a.Blkno-sb.BmapStart)*disk.BlockSize + a.ByteOff()
		bitmap[off] |= a.Mask()
	}
	for i := uint64(0); i < sb.NBitmap(); i++ {
		d.Write(sb.BmapStart+i, bitmap[i*disk.BlockSize:(i+1)*disk.BlockSize])
	}
	d.Barrier()
}

// ReadSuper reads and checks the superblock of d.
func ReadSuper(d disk.Disk) (*FsSuper, error) {
	sb := Decode(d.Read(SUPERBLOCK))
	if sb.Magic != common.FSMAGIC {
		return nil, fmt.Errorf("bad magic %#x: %w", sb.Magic, common.ErrInvalid)
	}
	if sb.Size > d.Size() {
		return nil, fmt.Errorf("superblock size %d exceeds disk size %d: %w",
			sb.Size, d.Size(), common.ErrInvalid)
	}
	if sb.NLog < 2 || sb.LogStart != SUPERBLOCK+1 ||
		sb.InodeStart != sb.LogStart+sb.NLog ||
		sb.BmapStart <= sb.InodeStart ||
		sb.NBlocks >= sb.Size || sb.BmapStart >= sb.NMeta() {
		return nil, fmt.Errorf("corrupt layout (%v): %w", sb, common.ErrInvalid)
	}
	return sb, nil
}
