// Package fs assembles the buffer cache, log, allocator, inode table and
// path resolver into a mounted file system, and implements the file
// operations on top of them. Every operation runs in its own log operation.
package fs

import (
	"fmt"

	"github.com/mit-pdos/go-xv6fs/alloc"
	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/config"
	"github.com/mit-pdos/go-xv6fs/dir"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/inode"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/util"
	"github.com/mit-pdos/go-xv6fs/wal"
)

const ROOTDEV uint64 = 1

type Fs struct {
	cfg   *config.Config
	d     disk.Disk
	sb    *super.FsSuper
	bc    *bcache.Bcache
	log   *wal.Log
	alloc *alloc.Alloc
	it    *inode.Itable
	r     *dir.Resolver
}

// Mkfs formats d according to cfg and returns the mounted, empty file
// system. Anything already on d is lost.
func Mkfs(d disk.Disk, cfg *config.Config) (*Fs, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Size() < cfg.FsSize {
		return nil, fmt.Errorf("disk has %d blocks, fs_size is %d: %w",
			d.Size(), cfg.FsSize, common.ErrInvalid)
	}
	sb := super.MkFsSuper(cfg.FsSize, cfg.NInodes, cfg.NLog)
	super.Format(d, sb)
	fs, err := Mount(d, cfg)
	if err != nil {
		return nil, err
	}

	fs.log.BeginOp()
	root, err := fs.it.Alloc(common.TDIR)
	if err != nil {
		fs.log.EndOp()
		return nil, err
	}
	if root.Inum != common.ROOTINUM {
		common.Fatalf("mkfs", "root is inode %d", root.Inum)
	}
	root.Lock()
	root.Nlink = 1
	root.Update()
	if err := dir.Link(root, ".", root.Inum); err != nil {
		common.Fatalf("mkfs", "root .: %v", err)
	}
	if err := dir.Link(root, "..", root.Inum); err != nil {
		common.Fatalf("mkfs", "root ..: %v", err)
	}
	root.UnlockPut()
	fs.log.EndOp()
	util.DPrintf(1, "mkfs: %v\n", sb)
	return fs, nil
}

// Mount opens the file system on d, replaying any committed transaction
// left in the log. The layout comes from the superblock; cfg supplies the
// in-memory sizes.
func Mount(d disk.Disk, cfg *config.Config) (*Fs, error) {
	sb, err := super.ReadSuper(d)
	if err != nil {
		return nil, err
	}
	capacity := util.Min(sb.NLog-1, common.HDRADDRS)
	if cfg.MaxWriteBlocks() == 0 {
		return nil, fmt.Errorf("max_op_blocks %d too small to write: %w",
			cfg.MaxOpBlocks, common.ErrInvalid)
	}
	if cfg.MaxOpBlocks > capacity {
		return nil, fmt.Errorf("max_op_blocks %d exceeds log capacity %d: %w",
			cfg.MaxOpBlocks, capacity, common.ErrInvalid)
	}
	if cfg.NBuf < capacity+4 {
		return nil, fmt.Errorf("nbuf %d too small for log capacity %d: %w",
			cfg.NBuf, capacity, common.ErrInvalid)
	}
	util.DPrintf(1, "mount: %v\n", sb)

	bc := bcache.MkBcache(cfg.NBuf)
	bc.MountDevice(ROOTDEV, d)
	log := wal.MkLog(bc, ROOTDEV, sb, cfg.MaxOpBlocks)
	a := alloc.MkAlloc(bc, log, ROOTDEV, sb)
	it := inode.MkItable(cfg.NInode, bc, log, a, ROOTDEV, sb)
	return &Fs{
		cfg:   cfg,
		d:     d,
		sb:    sb,
		bc:    bc,
		log:   log,
		alloc: a,
		it:    it,
		r:     dir.MkResolver(it),
	}, nil
}

// Close flushes and closes the disk. No operation may be in progress.
func (fs *Fs) Close() {
	if n := fs.log.Outstanding(); n != 0 {
		common.Fatalf("close", "%d operations outstanding", n)
	}
	fs.d.Barrier()
	fs.d.Close()
}

func (fs *Fs) Super() *super.FsSuper {
	return fs.sb
}

func (fs *Fs) Log() *wal.Log {
	return fs.log
}

// NumFree counts free data blocks.
func (fs *Fs) NumFree() uint64 {
	return fs.alloc.NumFree()
}

// Root returns a reference to the root directory, for use as a cwd.
func (fs *Fs) Root() *inode.Inode {
	return fs.it.Get(common.ROOTINUM)
}

// Release drops a locked inode returned by Create.
func (fs *Fs) Release(ip *inode.Inode) {
	fs.log.BeginOp()
	ip.UnlockPut()
	fs.log.EndOp()
}

// Put drops an unlocked reference, such as a cwd.
func (fs *Fs) Put(ip *inode.Inode) {
	fs.log.BeginOp()
	ip.Put()
	fs.log.EndOp()
}
