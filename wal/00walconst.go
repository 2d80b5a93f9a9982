// Package wal is a physical redo log that makes groups of block writes
// atomic across crashes.
//
// The on-disk log:
//
//	[ header | block 0 | block 1 | ... ]
//	  ^        ^
//	  start    start+1
//
// The header holds a count n and the home block numbers of the n logged
// blocks; log block i holds the new contents of header entry i. A non-empty
// header on disk is a committed transaction that may not yet be installed.
//
// Operations bracket their writes with BeginOp/EndOp and hand modified
// buffers to Write instead of writing them to disk. A transaction collects
// the writes of every operation that overlaps it and commits when the last
// outstanding operation ends, so a commit never carries part of an
// operation.
package wal

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/disk"
)

const LOGHDR = common.Bnum(0) // relative to the log start

func encodeHdr(blocks []common.Bnum) disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(uint64(len(blocks)))
	enc.PutInts(blocks)
	return enc.Finish()
}

func decodeHdr(blk disk.Block) []common.Bnum {
	dec := marshal.NewDec(blk)
	n := dec.GetInt()
	if n > common.HDRADDRS {
		common.Fatalf("read_head", "corrupt log header: %d blocks", n)
	}
	return dec.GetInts(n)
}
