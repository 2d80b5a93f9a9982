package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/wal"
)

const dev uint64 = 1

func TestPopCnt(t *testing.T) {
	assert.Equal(t, uint64(0), popCnt(0))
	assert.Equal(t, uint64(1), popCnt(1))
	assert.Equal(t, uint64(1), popCnt(2))
	assert.Equal(t, uint64(2), popCnt(3))
	assert.Equal(t, uint64(8), popCnt(255))
}

type AllocSuite struct {
	suite.Suite
	sb  *super.FsSuper
	d   disk.Disk
	bc  *bcache.Bcache
	log *wal.Log
	a   *Alloc
}

func (suite *AllocSuite) SetupTest() {
	suite.sb = super.MkFsSuper(100, 16, 12)
	suite.d = disk.NewMemDisk(suite.sb.Size)
	super.Format(suite.d, suite.sb)
	suite.bc = bcache.MkBcache(30)
	suite.bc.MountDevice(dev, suite.d)
	suite.log = wal.MkLog(suite.bc, dev, suite.sb, 4)
	suite.a = MkAlloc(suite.bc, suite.log, dev, suite.sb)
}

func TestAllocSuite(t *testing.T) {
	suite.Run(t, new(AllocSuite))
}

func (suite *AllocSuite) alloc() (common.Bnum, error) {
	suite.log.BeginOp()
	defer suite.log.EndOp()
	return suite.a.AllocBlock()
}

func (suite *AllocSuite) free(bn common.Bnum) {
	suite.log.BeginOp()
	defer suite.log.EndOp()
	suite.a.FreeBlock(bn)
}

func (suite *AllocSuite) TestFirstFree() {
	nmeta := suite.sb.NMeta()
	suite.Equal(suite.sb.NBlocks, suite.a.NumFree())
	bn, err := suite.alloc()
	suite.Require().Nil(err)
	suite.Equal(nmeta, bn)
	bn, err = suite.alloc()
	suite.Require().Nil(err)
	suite.Equal(nmeta+1, bn)
	suite.Equal(suite.sb.NBlocks-2, suite.a.NumFree())
}

func (suite *AllocSuite) TestZeroed() {
	nmeta := suite.sb.NMeta()
	junk := make(disk.Block, disk.BlockSize)
	for i := range junk {
		junk[i] = 0xaa
	}
	suite.d.Write(nmeta, junk)
	bn, err := suite.alloc()
	suite.Require().Nil(err)
	suite.Equal(nmeta, bn)
	suite.Equal(make(disk.Block, disk.BlockSize), suite.d.Read(bn))
}

func (suite *AllocSuite) TestFreeReuse() {
	a, _ := suite.alloc()
	b, _ := suite.alloc()
	suite.free(a)
	suite.Equal(suite.sb.NBlocks-1, suite.a.NumFree())
	c, err := suite.alloc()
	suite.Nil(err)
	suite.Equal(a, c, "lowest free block reused")
	suite.NotEqual(b, c)
}

func (suite *AllocSuite) TestDoubleFreeFatal() {
	bn, _ := suite.alloc()
	suite.free(bn)
	suite.log.BeginOp()
	err := common.Halt(func() {
		suite.a.FreeBlock(bn)
	})
	suite.NotNil(err)
}

func (suite *AllocSuite) TestFreeMetadataFatal() {
	suite.log.BeginOp()
	err := common.Halt(func() {
		suite.a.FreeBlock(suite.sb.BmapStart)
	})
	suite.NotNil(err)
}

func (suite *AllocSuite) TestExhaustion() {
	var got []common.Bnum
	for {
		// two allocations per op: bitmap block plus two zeroed blocks
		suite.log.BeginOp()
		bn, err := suite.a.AllocBlock()
		if err == nil {
			got = append(got, bn)
			bn, err = suite.a.AllocBlock()
			if err == nil {
				got = append(got, bn)
			}
		}
		suite.log.EndOp()
		if err != nil {
			suite.Equal(common.ErrNoSpace, err)
			break
		}
	}
	suite.Equal(int(suite.sb.NBlocks), len(got))
	suite.Equal(uint64(0), suite.a.NumFree())
	suite.free(got[10])
	bn, err := suite.alloc()
	suite.Nil(err)
	suite.Equal(got[10], bn)
}

func (suite *AllocSuite) TestPersistsAcrossMount() {
	bn, _ := suite.alloc()
	bc := bcache.MkBcache(30)
	bc.MountDevice(dev, suite.d)
	log := wal.MkLog(bc, dev, suite.sb, 4)
	a := MkAlloc(bc, log, dev, suite.sb)
	suite.Equal(suite.sb.NBlocks-1, a.NumFree())
	log.BeginOp()
	bn2, err := a.AllocBlock()
	log.EndOp()
	suite.Nil(err)
	suite.Equal(bn+1, bn2)
}
