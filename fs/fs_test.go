package fs

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/config"
	"github.com/mit-pdos/go-xv6fs/dir"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/super"
)

func mkData(n int, seed int64) []byte {
	data := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

type FsSuite struct {
	suite.Suite
	cfg *config.Config
	d   disk.Disk
	fs  *Fs
}

func (suite *FsSuite) SetupTest() {
	suite.cfg = config.Default()
	suite.d = disk.NewMemDisk(suite.cfg.FsSize)
	fs, err := Mkfs(suite.d, suite.cfg)
	suite.Require().Nil(err)
	suite.fs = fs
}

func TestFs(t *testing.T) {
	suite.Run(t, new(FsSuite))
}

func (suite *FsSuite) remount() {
	fs, err := Mount(suite.d, suite.cfg)
	suite.Require().Nil(err)
	suite.fs = fs
}

func (suite *FsSuite) put(path string, data []byte) {
	ip, err := suite.fs.Create(nil, path, common.TFILE, 0, 0)
	suite.Require().Nil(err)
	suite.fs.Release(ip)
	suite.Require().Nil(suite.fs.Truncate(nil, path))
	n, err := suite.fs.WriteFile(nil, path, 0, data)
	suite.Require().Nil(err)
	suite.Require().Equal(uint64(len(data)), n)
}

func (suite *FsSuite) TestEmptyRoot() {
	ents, err := suite.fs.ReadDir(nil, "/")
	suite.Nil(err)
	suite.Equal([]dir.Dirent{
		{Inum: common.ROOTINUM, Name: "."},
		{Inum: common.ROOTINUM, Name: ".."},
	}, ents)
	st, err := suite.fs.Stat(nil, "/")
	suite.Nil(err)
	suite.Equal(common.TDIR, st.Type)
	suite.Equal(uint32(1), st.Nlink)
	suite.Equal(2*common.DIRENTSZ, st.Size)
	// the root's directory block
	suite.Equal(suite.fs.Super().NBlocks-1, suite.fs.NumFree())
}

func (suite *FsSuite) TestWriteReadFile() {
	data := mkData(50*1024+17, 1)
	suite.put("/f", data)
	got, err := suite.fs.ReadFile(nil, "/f")
	suite.Nil(err)
	suite.Equal(data, got)

	part, err := suite.fs.ReadAt(nil, "/f", 1000, 100)
	suite.Nil(err)
	suite.Equal(data[1000:1100], part)

	st, _ := suite.fs.Stat(nil, "/f")
	suite.Equal(uint64(len(data)), st.Size)
	suite.Equal(common.TFILE, st.Type)
	suite.Equal(uint32(1), st.Nlink)
}

func (suite *FsSuite) TestWriteErrors() {
	_, err := suite.fs.WriteFile(nil, "/nope", 0, []byte("x"))
	suite.True(errors.Is(err, common.ErrNotFound))
	_, err = suite.fs.WriteFile(nil, "/", 0, []byte("x"))
	suite.True(errors.Is(err, common.ErrIsDir))
	suite.put("/f", []byte("abc"))
	_, err = suite.fs.WriteFile(nil, "/f", 10, []byte("x"))
	suite.True(errors.Is(err, common.ErrInvalidOffset))
	_, err = suite.fs.ReadFile(nil, "/")
	suite.True(errors.Is(err, common.ErrIsDir))
}

func (suite *FsSuite) TestMkdir() {
	suite.Nil(suite.fs.Mkdir(nil, "/a"))
	suite.Nil(suite.fs.Mkdir(nil, "/a/b"))
	err := suite.fs.Mkdir(nil, "/a")
	suite.True(errors.Is(err, common.ErrExists))
	err = suite.fs.Mkdir(nil, "/x/y")
	suite.True(errors.Is(err, common.ErrNotFound))

	root, _ := suite.fs.Stat(nil, "/")
	suite.Equal(uint32(2), root.Nlink)
	a, _ := suite.fs.Stat(nil, "/a")
	suite.Equal(uint32(2), a.Nlink)
	b, _ := suite.fs.Stat(nil, "/a/b")
	suite.Equal(uint32(1), b.Nlink)

	ents, err := suite.fs.ReadDir(nil, "/a/b")
	suite.Nil(err)
	suite.Equal([]dir.Dirent{{Inum: b.Inum, Name: "."}, {Inum: a.Inum, Name: ".."}}, ents)

	_, err = suite.fs.ReadDir(nil, "/a/b/.")
	suite.Nil(err)
	suite.put("/a/f", []byte("x"))
	_, err = suite.fs.ReadDir(nil, "/a/f")
	suite.True(errors.Is(err, common.ErrNotDir))
}

func (suite *FsSuite) TestCreateExisting() {
	ip, err := suite.fs.Create(nil, "/f", common.TFILE, 0, 0)
	suite.Require().Nil(err)
	inum := ip.Inum
	suite.fs.Release(ip)
	ip, err = suite.fs.Create(nil, "/f", common.TFILE, 0, 0)
	suite.Require().Nil(err)
	suite.Equal(inum, ip.Inum)
	suite.True(ip.Holding())
	suite.fs.Release(ip)

	suite.Nil(suite.fs.Mkdir(nil, "/d"))
	_, err = suite.fs.Create(nil, "/d", common.TFILE, 0, 0)
	suite.True(errors.Is(err, common.ErrExists))
}

func (suite *FsSuite) TestMknod() {
	suite.Nil(suite.fs.Mknod(nil, "/console", 1, 2))
	ip, err := suite.fs.Create(nil, "/console", common.TFILE, 0, 0)
	suite.Require().Nil(err)
	suite.Equal(common.TDEVICE, ip.Type)
	suite.Equal(uint32(1), ip.Major)
	suite.Equal(uint32(2), ip.Minor)
	suite.fs.Release(ip)
}

func (suite *FsSuite) TestWriteDevice() {
	suite.Nil(suite.fs.Mknod(nil, "/console", 1, 2))
	n, err := suite.fs.WriteFile(nil, "/console", 0, []byte("hello"))
	suite.True(errors.Is(err, common.ErrInvalid))
	suite.Equal(uint64(0), n)
	st, err := suite.fs.Stat(nil, "/console")
	suite.Require().Nil(err)
	suite.Equal(uint64(0), st.Size)
	suite.Equal(suite.fs.Super().NBlocks-1, suite.fs.NumFree())
}

// the config is shared with the caller, so a later change to it must not
// leave WriteFile spinning on empty chunks
func (suite *FsSuite) TestWriteOpTooSmall() {
	suite.put("/f", []byte("hello"))
	suite.cfg.MaxOpBlocks = 5
	done := make(chan error, 1)
	go func() {
		_, err := suite.fs.WriteFile(nil, "/f", 0, mkData(int(disk.BlockSize), 3))
		done <- err
	}()
	select {
	case err := <-done:
		suite.True(errors.Is(err, common.ErrInvalid))
	case <-time.After(5 * time.Second):
		suite.FailNow("write did not return")
	}
	suite.cfg.MaxOpBlocks = 10
	got, err := suite.fs.ReadFile(nil, "/f")
	suite.Nil(err)
	suite.Equal([]byte("hello"), got)
}

func (suite *FsSuite) TestLink() {
	suite.put("/f", []byte("hello"))
	suite.Nil(suite.fs.Link(nil, "/f", "/g"))
	f, _ := suite.fs.Stat(nil, "/f")
	g, _ := suite.fs.Stat(nil, "/g")
	suite.Equal(f.Inum, g.Inum)
	suite.Equal(uint32(2), g.Nlink)
	data, _ := suite.fs.ReadFile(nil, "/g")
	suite.Equal([]byte("hello"), data)

	suite.True(errors.Is(suite.fs.Link(nil, "/", "/r"), common.ErrIsDir))
	suite.True(errors.Is(suite.fs.Link(nil, "/f", "/f"), common.ErrExists))
	suite.True(errors.Is(suite.fs.Link(nil, "/f", "/no/f"), common.ErrNotFound))
	suite.True(errors.Is(suite.fs.Link(nil, "/missing", "/h"), common.ErrNotFound))
	// failed links leave the count alone
	f, _ = suite.fs.Stat(nil, "/f")
	suite.Equal(uint32(2), f.Nlink)
}

func (suite *FsSuite) TestUnlinkFrees() {
	free := suite.fs.NumFree()
	suite.put("/f", mkData(20*1024, 2))
	suite.Nil(suite.fs.Link(nil, "/f", "/g"))
	suite.Nil(suite.fs.Unlink(nil, "/f"))
	_, err := suite.fs.Stat(nil, "/f")
	suite.True(errors.Is(err, common.ErrNotFound))
	suite.Less(suite.fs.NumFree(), free)
	suite.Nil(suite.fs.Unlink(nil, "/g"))
	suite.Equal(free, suite.fs.NumFree())
	suite.True(errors.Is(suite.fs.Unlink(nil, "/g"), common.ErrNotFound))
}

func (suite *FsSuite) TestUnlinkDir() {
	suite.Nil(suite.fs.Mkdir(nil, "/d"))
	suite.put("/d/f", []byte("x"))
	suite.True(errors.Is(suite.fs.Unlink(nil, "/d"), common.ErrNotEmpty))
	suite.True(errors.Is(suite.fs.Unlink(nil, "/d/."), common.ErrInvalid))
	suite.True(errors.Is(suite.fs.Unlink(nil, "/d/.."), common.ErrInvalid))
	suite.Nil(suite.fs.Unlink(nil, "/d/f"))
	suite.Nil(suite.fs.Unlink(nil, "/d"))
	root, _ := suite.fs.Stat(nil, "/")
	suite.Equal(uint32(1), root.Nlink)
	ents, _ := suite.fs.ReadDir(nil, "/")
	suite.Len(ents, 2)
}

func (suite *FsSuite) TestUnlinkOpenFile() {
	suite.put("/f", []byte("still here"))
	ip, err := suite.fs.Create(nil, "/f", common.TFILE, 0, 0)
	suite.Require().Nil(err)
	ip.Unlock()
	suite.Nil(suite.fs.Unlink(nil, "/f"))
	// the open reference keeps the content alive
	ip.Lock()
	suite.Equal([]byte("still here"), ip.Read(0, 100))
	suite.Equal(uint32(0), ip.Nlink)
	suite.fs.Release(ip)
	ip, err = suite.fs.Create(nil, "/new", common.TFILE, 0, 0)
	suite.Require().Nil(err)
	suite.Equal(common.Inum(2), ip.Inum, "freed inode reused")
	suite.fs.Release(ip)
}

func (suite *FsSuite) TestChdir() {
	suite.Nil(suite.fs.Mkdir(nil, "/a"))
	suite.Nil(suite.fs.Mkdir(nil, "/a/b"))
	cwd, err := suite.fs.Chdir(suite.fs.Root(), "/a")
	suite.Require().Nil(err)
	suite.put("/a/b/f", []byte("rel"))
	data, err := suite.fs.ReadFile(cwd, "b/f")
	suite.Nil(err)
	suite.Equal([]byte("rel"), data)
	cwd, err = suite.fs.Chdir(cwd, "b")
	suite.Require().Nil(err)
	data, _ = suite.fs.ReadFile(cwd, "../b/./f")
	suite.Equal([]byte("rel"), data)
	_, err = suite.fs.Chdir(cwd, "f")
	suite.True(errors.Is(err, common.ErrNotDir))
	suite.fs.Put(cwd)
}

func (suite *FsSuite) TestPersistsAcrossMount() {
	data := mkData(30*1024, 3)
	suite.Nil(suite.fs.Mkdir(nil, "/d"))
	suite.put("/d/f", data)
	suite.fs.Close()

	suite.remount()
	got, err := suite.fs.ReadFile(nil, "/d/f")
	suite.Nil(err)
	suite.Equal(data, got)
	root, _ := suite.fs.Stat(nil, "/")
	suite.Equal(uint32(2), root.Nlink)
}

func (suite *FsSuite) TestConcurrentFiles() {
	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/f%d", i)
			ip, err := suite.fs.Create(nil, path, common.TFILE, 0, 0)
			if !assert.Nil(suite.T(), err) {
				return
			}
			suite.fs.Release(ip)
			_, err = suite.fs.WriteFile(nil, path, 0, mkData(10*1024, int64(i)))
			assert.Nil(suite.T(), err)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		data, err := suite.fs.ReadFile(nil, fmt.Sprintf("/f%d", i))
		suite.Nil(err)
		suite.Equal(mkData(10*1024, int64(i)), data)
	}
	ents, _ := suite.fs.ReadDir(nil, "/")
	suite.Len(ents, n+2)
	suite.Equal(uint64(0), suite.fs.Log().Outstanding())
}

func TestMountBadMagic(t *testing.T) {
	d := disk.NewMemDisk(100)
	_, err := Mount(d, config.Default())
	assert.True(t, errors.Is(err, common.ErrInvalid))
}

func TestMountOpTooSmall(t *testing.T) {
	cfg := config.Default()
	d := disk.NewMemDisk(cfg.FsSize)
	_, err := Mkfs(d, cfg)
	require.Nil(t, err)

	small := *cfg
	small.MaxOpBlocks = 5
	_, err = Mount(d, &small)
	assert.True(t, errors.Is(err, common.ErrInvalid))

	small.MaxOpBlocks = 6
	_, err = Mount(d, &small)
	assert.Nil(t, err)
}

func TestMountNoLog(t *testing.T) {
	cfg := config.Default()
	d := disk.NewMemDisk(cfg.FsSize)
	fs, err := Mkfs(d, cfg)
	require.Nil(t, err)
	sb := *fs.Super()
	sb.NLog = 0
	d.Write(super.SUPERBLOCK, sb.Encode())
	_, err = Mount(d, cfg)
	assert.True(t, errors.Is(err, common.ErrInvalid))
}

func TestMkfsDiskTooSmall(t *testing.T) {
	d := disk.NewMemDisk(100)
	_, err := Mkfs(d, config.Default())
	assert.True(t, errors.Is(err, common.ErrInvalid))
}

func TestDiskFull(t *testing.T) {
	cfg := config.Default()
	cfg.FsSize = 170
	cfg.NInodes = 16
	fs, err := Mkfs(disk.NewMemDisk(cfg.FsSize), cfg)
	require.Nil(t, err)
	ip, err := fs.Create(nil, "/big", common.TFILE, 0, 0)
	require.Nil(t, err)
	fs.Release(ip)

	max := common.MAXFILE * disk.BlockSize
	n, err := fs.WriteFile(nil, "/big", 0, make([]byte, max))
	assert.True(t, errors.Is(err, common.ErrNoSpace))
	assert.Less(t, n, max)
	assert.Equal(t, uint64(0), fs.NumFree())
	st, _ := fs.Stat(nil, "/big")
	assert.Equal(t, n, st.Size)

	assert.Nil(t, fs.Unlink(nil, "/big"))
	assert.Equal(t, fs.Super().NBlocks-1, fs.NumFree())
}

// TestMkdirCrash cuts power at every point of a mkdir commit and checks that
// the remounted file system has either no directory or a complete one.
func TestMkdirCrash(t *testing.T) {
	cfg := config.Default()
	// inode block, bitmap, new directory block, root directory block
	const commitWrites = 2*4 + 2
	for k := uint64(0); k <= commitWrites+1; k++ {
		mem := disk.NewMemDisk(cfg.FsSize)
		cd := disk.NewCrashDisk(mem)
		fs, err := Mkfs(cd, cfg)
		require.Nil(t, err)
		free := fs.NumFree()

		cd.CrashAfter(k)
		require.Nil(t, fs.Mkdir(nil, "/d"))

		fs, err = Mount(mem, cfg)
		require.Nil(t, err)
		root, err := fs.Stat(nil, "/")
		require.Nil(t, err)
		st, err := fs.Stat(nil, "/d")
		if k < 5 {
			assert.True(t, errors.Is(err, common.ErrNotFound), "budget %d", k)
			assert.Equal(t, uint32(1), root.Nlink, "budget %d", k)
			assert.Equal(t, free, fs.NumFree(), "budget %d", k)
			continue
		}
		require.Nil(t, err, "budget %d", k)
		assert.Equal(t, common.TDIR, st.Type)
		assert.Equal(t, uint32(2), root.Nlink, "budget %d", k)
		assert.Equal(t, free-1, fs.NumFree(), "budget %d", k)
		ents, err := fs.ReadDir(nil, "/d")
		assert.Nil(t, err)
		assert.Len(t, ents, 2, "budget %d", k)
	}
}
