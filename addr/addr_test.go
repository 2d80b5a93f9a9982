package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-xv6fs/common"
)

func TestMkBitAddr(t *testing.T) {
	assert := assert.New(t)
	a := MkBitAddr(10, 0)
	assert.Equal(MkAddr(10, 0), a)
	a = MkBitAddr(10, 13)
	assert.Equal(uint64(1), a.ByteOff())
	assert.Equal(byte(1<<5), a.Mask())
	a = MkBitAddr(10, common.NBITBLOCK+3)
	assert.Equal(common.Bnum(11), a.Blkno, "second bitmap block")
	assert.Equal(uint64(3), a.Off)
}

func TestMkRecordAddr(t *testing.T) {
	assert := assert.New(t)
	a := MkRecordAddr(20, 9, common.INODESZ)
	assert.Equal(common.Bnum(21), a.Blkno)
	assert.Equal(common.INODESZ, a.ByteOff())
	assert.Equal(uint64(20*1024*8)+0, MkRecordAddr(20, 0, common.INODESZ).Flatid())
}
