package wal

import (
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/util"
)

func (l *Log) slot(tail int) common.Bnum {
	return l.start + 1 + common.Bnum(tail)
}

// readHead loads the on-disk header into l.lh.
func (l *Log) readHead() {
	b := l.bc.Read(l.dev, l.start+LOGHDR)
	blocks := decodeHdr(b.Data)
	l.bc.Release(b)
	if uint64(len(blocks)) > l.capacity {
		common.Fatalf("read_head", "header has %d blocks, log holds %d",
			len(blocks), l.capacity)
	}
	l.lh = blocks
}

// writeHead writes the in-memory header to disk. Writing a non-empty
// header is the point at which the current transaction commits.
func (l *Log) writeHead() {
	b := l.bc.Read(l.dev, l.start+LOGHDR)
	copy(b.Data, encodeHdr(l.lh))
	l.bc.Write(b)
	l.bc.Release(b)
	l.bc.Barrier(l.dev)
}

// writeLog copies the modified blocks from the cache to their log slots.
func (l *Log) writeLog() {
	for tail, blkno := range l.lh {
		to := l.bc.Read(l.dev, l.slot(tail))
		from := l.bc.Read(l.dev, blkno)
		util.DPrintf(5, "writeLog: %d to log block %d\n", blkno, tail)
		copy(to.Data, from.Data)
		l.bc.Write(to)
		l.bc.Release(from)
		l.bc.Release(to)
	}
	l.bc.Barrier(l.dev)
}

// installTrans copies committed blocks from the log to their home
// locations. During recovery the home buffers were never pinned.
func (l *Log) installTrans(recovering bool) {
	for tail, blkno := range l.lh {
		lbuf := l.bc.Read(l.dev, l.slot(tail))
		dbuf := l.bc.Read(l.dev, blkno)
		util.DPrintf(5, "installTrans: log block %d to %d\n", tail, blkno)
		copy(dbuf.Data, lbuf.Data)
		l.bc.Write(dbuf)
		if !recovering {
			l.bc.Unpin(dbuf)
		}
		l.bc.Release(lbuf)
		l.bc.Release(dbuf)
	}
	l.bc.Barrier(l.dev)
}

func (l *Log) recover() {
	l.readHead()
	if len(l.lh) > 0 {
		util.DPrintf(1, "recover: installing %d logged blocks\n", len(l.lh))
	}
	l.installTrans(true) // if committed, copy from log to disk
	l.lh = nil
	l.writeHead() // clear the log
}

// commit runs with committing set, so no operation can add to l.lh.
func (l *Log) commit() bool {
	if len(l.lh) == 0 {
		return false
	}
	util.DPrintf(3, "commit: %d blocks\n", len(l.lh))
	l.writeLog()
	l.writeHead() // the real commit
	l.installTrans(false)
	l.lh = nil
	l.writeHead() // erase the transaction from the log
	return true
}
