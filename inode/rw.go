package inode

import (
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/util"
)

// The content of an inode is stored in data blocks. The first NDIRECT block
// numbers are listed in ip.Addrs; the next NINDIRECT are listed in the block
// ip.Addrs[NDIRECT].

// bmap returns the disk block holding the bn'th block of ip, allocating it
// (and the indirect block) if there is none yet.
func (ip *Inode) bmap(bn uint64) (common.Bnum, error) {
	it := ip.it
	if bn < common.NDIRECT {
		a := ip.Addrs[bn]
		if a == common.NULLBNUM {
			var err error
			a, err = it.alloc.AllocBlock()
			if err != nil {
				return common.NULLBNUM, err
			}
			ip.Addrs[bn] = a
		}
		return a, nil
	}
	bn -= common.NDIRECT

	if bn < common.NINDIRECT {
		// Load indirect block, allocating if necessary.
		ind := ip.Addrs[common.NDIRECT]
		if ind == common.NULLBNUM {
			var err error
			ind, err = it.alloc.AllocBlock()
			if err != nil {
				return common.NULLBNUM, err
			}
			ip.Addrs[common.NDIRECT] = ind
		}
		b := it.bc.Read(ip.Dev, ind)
		a := b.BnumGet(bn * 8)
		if a == common.NULLBNUM {
			var err error
			a, err = it.alloc.AllocBlock()
			if err != nil {
				it.bc.Release(b)
				return common.NULLBNUM, err
			}
			b.BnumPut(bn*8, a)
			it.log.Write(b)
		}
		it.bc.Release(b)
		return a, nil
	}

	common.Fatalf("bmap", "block %d out of range", bn+common.NDIRECT)
	return common.NULLBNUM, nil
}

// lookup is bmap without allocation; holes map to NULLBNUM.
func (ip *Inode) lookup(bn uint64) common.Bnum {
	if bn < common.NDIRECT {
		return ip.Addrs[bn]
	}
	bn -= common.NDIRECT
	ind := ip.Addrs[common.NDIRECT]
	if bn >= common.NINDIRECT || ind == common.NULLBNUM {
		return common.NULLBNUM
	}
	b := ip.it.bc.Read(ip.Dev, ind)
	a := b.BnumGet(bn * 8)
	ip.it.bc.Release(b)
	return a
}

// Truncate discards ip's content. Caller holds ip's lock and is inside an
// operation.
func (ip *Inode) Truncate() {
	it := ip.it
	for i := uint64(0); i < common.NDIRECT; i++ {
		if ip.Addrs[i] != common.NULLBNUM {
			it.alloc.FreeBlock(ip.Addrs[i])
			ip.Addrs[i] = common.NULLBNUM
		}
	}

	if ind := ip.Addrs[common.NDIRECT]; ind != common.NULLBNUM {
		b := it.bc.Read(ip.Dev, ind)
		for j := uint64(0); j < common.NINDIRECT; j++ {
			if a := b.BnumGet(j * 8); a != common.NULLBNUM {
				it.alloc.FreeBlock(a)
			}
		}
		it.bc.Release(b)
		it.alloc.FreeBlock(ind)
		ip.Addrs[common.NDIRECT] = common.NULLBNUM
	}

	ip.Size = 0
	ip.Update()
}

// Read returns up to n bytes of ip's content starting at off. The result is
// short at end of file and empty when off is at or past it. Caller holds
// ip's lock.
func (ip *Inode) Read(off uint64, n uint64) []byte {
	if off >= ip.Size || util.SumOverflows(off, n) {
		return nil
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}
	data := make([]byte, 0, n)
	for uint64(len(data)) < n {
		boff := off % disk.BlockSize
		m := util.Min(n-uint64(len(data)), disk.BlockSize-boff)
		a := ip.lookup(off / disk.BlockSize)
		if a == common.NULLBNUM {
			data = append(data, make([]byte, m)...)
		} else {
			b := ip.it.bc.Read(ip.Dev, a)
			data = append(data, b.Data[boff:boff+m]...)
			ip.it.bc.Release(b)
		}
		off += m
	}
	return data
}

// Write writes data into ip at off, growing the file if it extends past
// the end. Writes may not start beyond the end of the file. If the disk
// fills up, Write returns how much it wrote along with ErrNoSpace. Caller
// holds ip's lock and is inside an operation; the operation must have
// room in the log for every block touched.
func (ip *Inode) Write(off uint64, data []byte) (uint64, error) {
	n := uint64(len(data))
	if off > ip.Size || util.SumOverflows(off, n) {
		return 0, common.ErrInvalidOffset
	}
	if off+n > common.MAXFILE*disk.BlockSize {
		return 0, common.ErrFileTooLarge
	}

	var tot uint64
	var err error
	for tot < n {
		var a common.Bnum
		a, err = ip.bmap(off / disk.BlockSize)
		if err != nil {
			break
		}
		boff := off % disk.BlockSize
		m := util.Min(n-tot, disk.BlockSize-boff)
		b := ip.it.bc.Read(ip.Dev, a)
		copy(b.Data[boff:boff+m], data[tot:tot+m])
		ip.it.log.Write(b)
		ip.it.bc.Release(b)
		tot += m
		off += m
	}

	if off > ip.Size {
		ip.Size = off
	}
	// write the inode back even if the size didn't change, because bmap
	// may have added a block to ip.Addrs.
	ip.Update()
	return tot, err
}
