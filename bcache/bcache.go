// Package bcache is the buffer cache: a fixed pool of in-memory copies of
// disk blocks, and the only path through which the rest of the file system
// reaches the disk.
//
// Each block is cached in at most one Buf, and a Buf is held by one caller at
// a time, so the cache is also where concurrent users of a block
// synchronize. Interface:
//   - To get a buffer for a particular disk block, call Read.
//   - After changing buffer data, call Write to write it to disk.
//   - When done with the buffer, call Release.
//   - Do not use the buffer after calling Release.
//
// Two levels of locking: Bcache.mu protects the index, the LRU list and
// reference counts and is never held across I/O or while waiting; each
// Buf's sleeplock protects its contents and may be held across disk I/O.
package bcache

import (
	"sync"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/util"
)

type key struct {
	dev   uint64
	blkno common.Bnum
}

type Bcache struct {
	mu    *sync.Mutex
	devs  map[uint64]disk.Disk
	bufs  []*Buf
	index map[key]*Buf

	// LRU list of all buffers through prev/next. head.next is the most
	// recently released, head.prev the least.
	head *Buf
}

func MkBcache(nbuf uint64) *Bcache {
	bc := &Bcache{
		mu:    new(sync.Mutex),
		devs:  make(map[uint64]disk.Disk),
		bufs:  make([]*Buf, nbuf),
		index: make(map[key]*Buf),
		head:  &Buf{},
	}
	bc.head.prev = bc.head
	bc.head.next = bc.head
	for i := range bc.bufs {
		b := mkBuf()
		bc.bufs[i] = b
		bc.pushFront(b)
	}
	return bc
}

// MountDevice makes d reachable as device number dev.
func (bc *Bcache) MountDevice(dev uint64, d disk.Disk) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if _, ok := bc.devs[dev]; ok {
		common.Fatalf("MountDevice", "device %d already mounted", dev)
	}
	bc.devs[dev] = d
}

func (bc *Bcache) device(dev uint64) disk.Disk {
	bc.mu.Lock()
	d, ok := bc.devs[dev]
	bc.mu.Unlock()
	if !ok {
		common.Fatalf("bcache", "no device %d", dev)
	}
	return d
}

// assumes caller holds mu
func (bc *Bcache) unlink(b *Buf) {
	b.next.prev = b.prev
	b.prev.next = b.next
}

// assumes caller holds mu
func (bc *Bcache) pushFront(b *Buf) {
	b.next = bc.head.next
	b.prev = bc.head
	bc.head.next.prev = b
	bc.head.next = b
}

// Get returns the locked buffer for block blkno of device dev. The buffer's
// contents are not read from disk; see Read.
func (bc *Bcache) Get(dev uint64, blkno common.Bnum) *Buf {
	k := key{dev: dev, blkno: blkno}
	bc.mu.Lock()

	// Is the block already cached?
	if b, ok := bc.index[k]; ok {
		b.refcnt += 1
		bc.mu.Unlock()
		b.lock.Acquire()
		return b
	}

	// Not cached. Recycle the least recently used unused buffer.
	for b := bc.head.prev; b != bc.head; b = b.prev {
		if b.refcnt == 0 {
			if b.cached {
				delete(bc.index, key{dev: b.Dev, blkno: b.Blkno})
			}
			util.DPrintf(15, "bget: recycle %v for %d:%d\n", b, dev, blkno)
			b.Dev = dev
			b.Blkno = blkno
			b.valid = false
			b.refcnt = 1
			b.cached = true
			bc.index[k] = b
			bc.mu.Unlock()
			b.lock.Acquire()
			return b
		}
	}
	bc.mu.Unlock()
	common.Fatalf("bget", "no buffers")
	return nil
}

// Read returns a locked buffer with the contents of the indicated block.
func (bc *Bcache) Read(dev uint64, blkno common.Bnum) *Buf {
	b := bc.Get(dev, blkno)
	if !b.valid {
		bc.device(dev).ReadTo(blkno, b.Data)
		b.valid = true
	}
	return b
}

// Write writes b's contents to disk. The caller must hold b.
func (bc *Bcache) Write(b *Buf) {
	if !b.lock.Holding() {
		common.Fatalf("bwrite", "%v not locked", b)
	}
	bc.device(b.Dev).Write(b.Blkno, b.Data)
}

// Release releases a locked buffer. If nobody else references it, it becomes
// the most recently used buffer.
func (bc *Bcache) Release(b *Buf) {
	if !b.lock.Holding() {
		common.Fatalf("brelse", "%v not locked", b)
	}
	b.lock.Release()

	bc.mu.Lock()
	b.refcnt -= 1
	if b.refcnt == 0 {
		// no one is waiting for it.
		bc.unlink(b)
		bc.pushFront(b)
	}
	bc.mu.Unlock()
}

// Pin keeps b resident (not recyclable) without holding its lock.
func (bc *Bcache) Pin(b *Buf) {
	bc.mu.Lock()
	b.refcnt += 1
	bc.mu.Unlock()
}

func (bc *Bcache) Unpin(b *Buf) {
	bc.mu.Lock()
	if b.refcnt == 0 {
		bc.mu.Unlock()
		common.Fatalf("bunpin", "%v not pinned", b)
	}
	b.refcnt -= 1
	bc.mu.Unlock()
}

// Barrier flushes device dev's outstanding writes.
func (bc *Bcache) Barrier(dev uint64) {
	bc.device(dev).Barrier()
}
