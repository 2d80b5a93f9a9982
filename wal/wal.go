package wal

import (
	"sync"

	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/util"
)

type Log struct {
	mu   *sync.Mutex
	cond *sync.Cond // signaled when a commit finishes or log space frees up

	bc          *bcache.Bcache
	dev         uint64
	start       common.Bnum
	capacity    uint64 // max blocks in one transaction
	maxOpBlocks uint64

	outstanding uint64        // how many operations are executing
	committing  bool          // in commit(), please wait
	lh          []common.Bnum // home locations of the blocks logged so far
	ncommit     uint64
}

// MkLog recovers the log described by sb on device dev and returns it ready
// for operations. maxOpBlocks bounds how many distinct blocks one operation
// may write.
func MkLog(bc *bcache.Bcache, dev uint64, sb *super.FsSuper, maxOpBlocks uint64) *Log {
	if sb.NLog < 2 {
		common.Fatalf("initlog", "log of %d blocks has no room for data", sb.NLog)
	}
	capacity := util.Min(sb.NLog-1, common.HDRADDRS)
	if maxOpBlocks == 0 || maxOpBlocks > capacity {
		common.Fatalf("initlog", "op size %d does not fit a log of %d blocks",
			maxOpBlocks, capacity)
	}
	mu := new(sync.Mutex)
	l := &Log{
		mu:          mu,
		cond:        sync.NewCond(mu),
		bc:          bc,
		dev:         dev,
		start:       sb.LogStart,
		capacity:    capacity,
		maxOpBlocks: maxOpBlocks,
	}
	util.DPrintf(1, "MkLog: start %d capacity %d\n", l.start, l.capacity)
	l.recover()
	return l
}

// BeginOp is called at the start of each file-system operation. It waits
// while a commit is in progress, or while admitting another operation could
// overflow the log.
func (l *Log) BeginOp() {
	l.mu.Lock()
	for {
		if l.committing {
			l.cond.Wait()
		} else if uint64(len(l.lh))+(l.outstanding+1)*l.maxOpBlocks > l.capacity {
			// this op might exhaust log space; wait for commit.
			l.cond.Wait()
		} else {
			l.outstanding += 1
			break
		}
	}
	l.mu.Unlock()
}

// EndOp is called at the end of each operation. It commits if this was the
// last outstanding operation.
func (l *Log) EndOp() {
	var doCommit = false
	l.mu.Lock()
	if l.outstanding == 0 {
		l.mu.Unlock()
		common.Fatalf("end_op", "no outstanding operation")
	}
	l.outstanding -= 1
	if l.committing {
		l.mu.Unlock()
		common.Fatalf("end_op", "log.committing")
	}
	if l.outstanding == 0 {
		doCommit = true
		l.committing = true
	} else {
		// BeginOp may be waiting for log space, and decrementing outstanding
		// has decreased the amount of reserved space.
		l.cond.Broadcast()
	}
	l.mu.Unlock()

	if doCommit {
		// commit without holding mu: it sleeps on buffer locks and does I/O.
		did := l.commit()
		l.mu.Lock()
		l.committing = false
		if did {
			l.ncommit += 1
		}
		l.cond.Broadcast()
		l.mu.Unlock()
	}
}

// Write records that the caller has modified b and is done with its
// changes; the commit will write it. Write replaces bcache.Write inside an
// operation:
//
//	b := bc.Read(dev, bn)
//	modify b.Data
//	log.Write(b)
//	bc.Release(b)
//
// Repeated writes of one block within a transaction share a single log slot.
func (l *Log) Write(b *bcache.Buf) {
	l.mu.Lock()
	if l.outstanding < 1 {
		l.mu.Unlock()
		common.Fatalf("log_write", "outside of trans")
	}
	if b.Dev != l.dev {
		l.mu.Unlock()
		common.Fatalf("log_write", "%v is not on log device %d", b, l.dev)
	}
	for _, bn := range l.lh {
		if bn == b.Blkno { // log absorption
			util.DPrintf(10, "log_write: absorb %d\n", b.Blkno)
			l.mu.Unlock()
			return
		}
	}
	if uint64(len(l.lh)) >= l.capacity {
		l.mu.Unlock()
		common.Fatalf("log_write", "too big a transaction")
	}
	util.DPrintf(10, "log_write: add %d pos %d\n", b.Blkno, len(l.lh))
	l.bc.Pin(b)
	l.lh = append(l.lh, b.Blkno)
	l.mu.Unlock()
}

// Capacity is the most distinct blocks one transaction may hold.
func (l *Log) Capacity() uint64 {
	return l.capacity
}

// NLogged reports how many distinct blocks the open transaction holds.
func (l *Log) NLogged() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.lh))
}

func (l *Log) Outstanding() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outstanding
}

// Commits reports how many non-empty transactions have committed since
// MkLog.
func (l *Log) Commits() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ncommit
}
