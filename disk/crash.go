package disk

import (
	"sync"

	"github.com/mit-pdos/go-xv6fs/util"
)

// CrashDisk wraps a Disk and simulates a power failure: once the write budget
// runs out, every further write is silently lost. Reads always go to the
// underlying disk, so a "rebooted" file system can be mounted on Inner().
type CrashDisk struct {
	mu      *sync.Mutex
	d       Disk
	budget  int64 // remaining writes; negative means unlimited
	writes  uint64
	crashed bool
}

var _ Disk = (*CrashDisk)(nil)

func NewCrashDisk(d Disk) *CrashDisk {
	return &CrashDisk{
		mu:     new(sync.Mutex),
		d:      d,
		budget: -1,
	}
}

// CrashAfter lets n more writes reach the disk and drops the rest.
func (c *CrashDisk) CrashAfter(n uint64) {
	c.mu.Lock()
	c.budget = int64(n)
	c.crashed = false
	c.mu.Unlock()
}

// Crashed reports whether a write has been dropped.
func (c *CrashDisk) Crashed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crashed
}

// Writes reports how many writes reached the underlying disk.
func (c *CrashDisk) Writes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *CrashDisk) Inner() Disk {
	return c.d
}

func (c *CrashDisk) Read(a uint64) Block {
	return c.d.Read(a)
}

func (c *CrashDisk) ReadTo(a uint64, b Block) {
	c.d.ReadTo(a, b)
}

func (c *CrashDisk) Write(a uint64, v Block) {
	c.mu.Lock()
	if c.budget == 0 {
		c.crashed = true
		c.mu.Unlock()
		util.DPrintf(5, "crash disk: drop write %d\n", a)
		return
	}
	if c.budget > 0 {
		c.budget--
	}
	c.writes++
	c.mu.Unlock()
	c.d.Write(a, v)
}

func (c *CrashDisk) Size() uint64 {
	return c.d.Size()
}

func (c *CrashDisk) Barrier() {
	c.d.Barrier()
}

func (c *CrashDisk) Close() {
	c.d.Close()
}
