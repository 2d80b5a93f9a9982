package common

import (
	"github.com/mit-pdos/go-xv6fs/disk"
)

const (
	FSMAGIC uint32 = 0x10203040

	NBITBLOCK uint64 = disk.BlockSize * 8 // bitmap bits per block
	INODESZ   uint64 = 128                // on-disk size
	INODEBLK  uint64 = disk.BlockSize / INODESZ

	NDIRECT   uint64 = 12
	NINDIRECT uint64 = disk.BlockSize / 8
	NADDRS    uint64 = NDIRECT + 1
	MAXFILE   uint64 = NDIRECT + NINDIRECT // in blocks

	DIRSIZ   uint64 = 24
	DIRENTSZ uint64 = 8 + DIRSIZ

	HDRMETA  = uint64(8) // space for the block count
	HDRADDRS = (disk.BlockSize - HDRMETA) / 8
)

type Inum uint64
type Bnum = uint64

const (
	NULLINUM Inum = 0
	ROOTINUM Inum = 1
	NULLBNUM Bnum = 0
)

// Itype is the type tag of an on-disk inode.
type Itype uint32

const (
	TFREE   Itype = 0
	TDIR    Itype = 1
	TFILE   Itype = 2
	TDEVICE Itype = 3
)

func (t Itype) String() string {
	switch t {
	case TFREE:
		return "free"
	case TDIR:
		return "dir"
	case TFILE:
		return "file"
	case TDEVICE:
		return "device"
	}
	return "unknown"
}
