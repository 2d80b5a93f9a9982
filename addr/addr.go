package addr

import (
	"fmt"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/disk"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a bit offset). The size of the
// object is determined by the context in which Addr is used: one bit for the
// free bitmap, INODESZ bytes for an inode record.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bits
}

func (a Addr) Flatid() uint64 {
	return uint64(a.Blkno)*(disk.BlockSize*8) + a.Off
}

// ByteOff is the offset of the object's first byte within its block.
func (a Addr) ByteOff() uint64 {
	return a.Off / 8
}

// Mask selects the object's bit within the byte at ByteOff, for one-bit
// objects.
func (a Addr) Mask() byte {
	return byte(1) << (a.Off % 8)
}

func (a Addr) String() string {
	return fmt.Sprintf("%d:%d", a.Blkno, a.Off)
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkBitAddr is the address of bit n of a bitmap starting at block start.
func MkBitAddr(start common.Bnum, n uint64) Addr {
	bit := n % common.NBITBLOCK
	i := n / common.NBITBLOCK
	addr := MkAddr(start+common.Bnum(i), bit)
	return addr
}

// MkRecordAddr is the address of record n in a table of sz-byte records
// starting at block start.
func MkRecordAddr(start common.Bnum, n uint64, sz uint64) Addr {
	perblk := disk.BlockSize / sz
	return MkAddr(start+common.Bnum(n/perblk), (n%perblk)*sz*8)
}
