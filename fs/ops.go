package fs

import (
	"fmt"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/dir"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/inode"
	"github.com/mit-pdos/go-xv6fs/util"
)

func pathErr(path string, err error) error {
	return fmt.Errorf("%s: %w", path, err)
}

// create makes a new inode named path and returns it locked. For a regular
// file that already exists (or a device), the existing inode is returned.
// Runs inside an operation.
func (fs *Fs) create(cwd *inode.Inode, path string, typ common.Itype,
	major uint32, minor uint32) (*inode.Inode, error) {
	dp, name := fs.r.NameiParent(cwd, path)
	if dp == nil {
		return nil, common.ErrNotFound
	}
	dp.Lock()

	if ip, _ := dir.Lookup(dp, name); ip != nil {
		dp.UnlockPut()
		ip.Lock()
		if typ == common.TFILE && (ip.Type == common.TFILE || ip.Type == common.TDEVICE) {
			return ip, nil
		}
		ip.UnlockPut()
		return nil, common.ErrExists
	}

	ip, err := fs.it.Alloc(typ)
	if err != nil {
		dp.UnlockPut()
		return nil, err
	}
	ip.Lock()
	ip.Major = major
	ip.Minor = minor
	ip.Nlink = 1
	ip.Update()

	if typ == common.TDIR { // Create . and .. entries.
		// No ip.Nlink++ for ".": avoid cyclic ref count.
		if err = dir.Link(ip, ".", ip.Inum); err == nil {
			err = dir.Link(ip, "..", dp.Inum)
		}
	}
	if err == nil {
		err = dir.Link(dp, name, ip.Inum)
	}
	if err != nil {
		// something went wrong. de-allocate ip.
		ip.Nlink = 0
		ip.Update()
		ip.UnlockPut()
		dp.UnlockPut()
		return nil, err
	}

	if typ == common.TDIR {
		// now that success is guaranteed:
		dp.Nlink += 1 // for ".."
		dp.Update()
	}
	dp.UnlockPut()
	return ip, nil
}

// Create creates (or opens, for an existing regular file) path and returns
// it locked; hand it back with Release.
func (fs *Fs) Create(cwd *inode.Inode, path string, typ common.Itype,
	major uint32, minor uint32) (*inode.Inode, error) {
	fs.log.BeginOp()
	defer fs.log.EndOp()
	ip, err := fs.create(cwd, path, typ, major, minor)
	if err != nil {
		return nil, pathErr(path, err)
	}
	return ip, nil
}

func (fs *Fs) mk(cwd *inode.Inode, path string, typ common.Itype,
	major uint32, minor uint32) error {
	fs.log.BeginOp()
	defer fs.log.EndOp()
	ip, err := fs.create(cwd, path, typ, major, minor)
	if err != nil {
		return pathErr(path, err)
	}
	ip.UnlockPut()
	return nil
}

func (fs *Fs) Mkdir(cwd *inode.Inode, path string) error {
	return fs.mk(cwd, path, common.TDIR, 0, 0)
}

func (fs *Fs) Mknod(cwd *inode.Inode, path string, major uint32, minor uint32) error {
	return fs.mk(cwd, path, common.TDEVICE, major, minor)
}

// Link creates newpath as a new name for the existing file oldpath.
func (fs *Fs) Link(cwd *inode.Inode, oldpath string, newpath string) error {
	fs.log.BeginOp()
	defer fs.log.EndOp()

	ip := fs.r.Namei(cwd, oldpath)
	if ip == nil {
		return pathErr(oldpath, common.ErrNotFound)
	}
	ip.Lock()
	if ip.Type == common.TDIR {
		ip.UnlockPut()
		return pathErr(oldpath, common.ErrIsDir)
	}
	ip.Nlink += 1
	ip.Update()
	ip.Unlock()

	var err error
	dp, name := fs.r.NameiParent(cwd, newpath)
	if dp == nil {
		err = common.ErrNotFound
	} else {
		dp.Lock()
		if dp.Dev != ip.Dev {
			err = common.ErrInvalid
		} else {
			err = dir.Link(dp, name, ip.Inum)
		}
		dp.UnlockPut()
	}
	if err != nil {
		ip.Lock()
		ip.Nlink -= 1
		ip.Update()
		ip.UnlockPut()
		return pathErr(newpath, err)
	}
	ip.Put()
	return nil
}

// Unlink removes the directory entry path. The inode is freed once it has
// no links and no references.
func (fs *Fs) Unlink(cwd *inode.Inode, path string) error {
	fs.log.BeginOp()
	defer fs.log.EndOp()

	dp, name := fs.r.NameiParent(cwd, path)
	if dp == nil {
		return pathErr(path, common.ErrNotFound)
	}
	dp.Lock()

	// Cannot unlink "." or "..".
	if name == "." || name == ".." {
		dp.UnlockPut()
		return pathErr(path, common.ErrInvalid)
	}

	ip, off := dir.Lookup(dp, name)
	if ip == nil {
		dp.UnlockPut()
		return pathErr(path, common.ErrNotFound)
	}
	ip.Lock()

	if ip.Nlink < 1 {
		common.Fatalf("unlink", "nlink < 1 for %v", ip)
	}
	if ip.Type == common.TDIR && !dir.IsEmpty(ip) {
		ip.UnlockPut()
		dp.UnlockPut()
		return pathErr(path, common.ErrNotEmpty)
	}

	dir.Unlink(dp, off)
	if ip.Type == common.TDIR {
		dp.Nlink -= 1 // for ".."
		dp.Update()
	}
	dp.UnlockPut()

	ip.Nlink -= 1
	ip.Update()
	ip.UnlockPut()
	return nil
}

// lookup resolves path and returns it locked, with ref held.
func (fs *Fs) lookup(cwd *inode.Inode, path string) (*inode.Inode, error) {
	fs.log.BeginOp()
	ip := fs.r.Namei(cwd, path)
	fs.log.EndOp()
	if ip == nil {
		return nil, pathErr(path, common.ErrNotFound)
	}
	ip.Lock()
	return ip, nil
}

// Truncate discards the content of the regular file path.
func (fs *Fs) Truncate(cwd *inode.Inode, path string) error {
	fs.log.BeginOp()
	defer fs.log.EndOp()
	ip := fs.r.Namei(cwd, path)
	if ip == nil {
		return pathErr(path, common.ErrNotFound)
	}
	ip.Lock()
	defer ip.UnlockPut()
	if ip.Type == common.TDIR {
		return pathErr(path, common.ErrIsDir)
	}
	ip.Truncate()
	return nil
}

// WriteFile writes data into path at off. Large writes are split into
// several transactions, each small enough to fit in the log, so a crash may
// leave a prefix of data written.
func (fs *Fs) WriteFile(cwd *inode.Inode, path string, off uint64, data []byte) (uint64, error) {
	ip, err := fs.lookup(cwd, path)
	if err != nil {
		return 0, err
	}
	typ := ip.Type
	ip.Unlock()
	if typ == common.TDIR {
		fs.Put(ip)
		return 0, pathErr(path, common.ErrIsDir)
	}
	if typ == common.TDEVICE {
		// device content lives in the driver, not in data blocks
		fs.Put(ip)
		return 0, pathErr(path, common.ErrInvalid)
	}

	// write a few blocks at a time to avoid exceeding the maximum log
	// transaction size, including i-node, indirect block, allocation
	// blocks, and 2 blocks of slop for non-aligned writes.
	max := fs.cfg.MaxWriteBlocks() * disk.BlockSize
	if max == 0 {
		fs.Put(ip)
		return 0, fmt.Errorf("max_op_blocks %d too small to write: %w",
			fs.cfg.MaxOpBlocks, common.ErrInvalid)
	}
	n := uint64(len(data))
	var tot uint64
	for tot < n {
		m := util.Min(n-tot, max)
		fs.log.BeginOp()
		ip.Lock()
		w, err := ip.Write(off+tot, data[tot:tot+m])
		ip.Unlock()
		fs.log.EndOp()
		tot += w
		if err != nil {
			fs.Put(ip)
			return tot, pathErr(path, err)
		}
	}
	fs.Put(ip)
	return tot, nil
}

// ReadFile returns the whole content of path.
func (fs *Fs) ReadFile(cwd *inode.Inode, path string) ([]byte, error) {
	return fs.ReadAt(cwd, path, 0, common.MAXFILE*disk.BlockSize)
}

// ReadAt reads up to n bytes of path starting at off.
func (fs *Fs) ReadAt(cwd *inode.Inode, path string, off uint64, n uint64) ([]byte, error) {
	ip, err := fs.lookup(cwd, path)
	if err != nil {
		return nil, err
	}
	if ip.Type == common.TDIR {
		ip.Unlock()
		fs.Put(ip)
		return nil, pathErr(path, common.ErrIsDir)
	}
	data := ip.Read(off, n)
	ip.Unlock()
	fs.Put(ip)
	return data, nil
}

func (fs *Fs) ReadDir(cwd *inode.Inode, path string) ([]dir.Dirent, error) {
	ip, err := fs.lookup(cwd, path)
	if err != nil {
		return nil, err
	}
	if ip.Type != common.TDIR {
		ip.Unlock()
		fs.Put(ip)
		return nil, pathErr(path, common.ErrNotDir)
	}
	ents := dir.ReadDir(ip)
	ip.Unlock()
	fs.Put(ip)
	return ents, nil
}

func (fs *Fs) Stat(cwd *inode.Inode, path string) (inode.Stat, error) {
	ip, err := fs.lookup(cwd, path)
	if err != nil {
		return inode.Stat{}, err
	}
	st := ip.Stat()
	ip.Unlock()
	fs.Put(ip)
	return st, nil
}

// Chdir resolves path as a new working directory, dropping cwd.
func (fs *Fs) Chdir(cwd *inode.Inode, path string) (*inode.Inode, error) {
	fs.log.BeginOp()
	defer fs.log.EndOp()
	ip := fs.r.Namei(cwd, path)
	if ip == nil {
		return nil, pathErr(path, common.ErrNotFound)
	}
	ip.Lock()
	if ip.Type != common.TDIR {
		ip.UnlockPut()
		return nil, pathErr(path, common.ErrNotDir)
	}
	ip.Unlock()
	if cwd != nil {
		cwd.Put()
	}
	return ip, nil
}
