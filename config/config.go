// Package config holds the tunable sizes of a file system instance.
//
// Values come from Default, optionally overridden by a YAML file and then by
// XV6FS_* environment variables.
package config

import (
	"fmt"
	"io/ioutil"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-xv6fs/common"
)

type Config struct {
	FsSize      uint64 `yaml:"fs_size" envconfig:"FS_SIZE"`             // blocks in the image
	NInodes     uint64 `yaml:"ninodes" envconfig:"NINODES"`             // on-disk inodes
	NLog        uint64 `yaml:"nlog" envconfig:"NLOG"`                   // log blocks, header included
	MaxOpBlocks uint64 `yaml:"max_op_blocks" envconfig:"MAX_OP_BLOCKS"` // blocks one operation may log
	NBuf        uint64 `yaml:"nbuf" envconfig:"NBUF"`                   // buffer cache entries
	NInode      uint64 `yaml:"ninode" envconfig:"NINODE"`               // in-memory inode table entries
	Debug       uint64 `yaml:"debug" envconfig:"DEBUG"`
}

func Default() *Config {
	return &Config{
		FsSize:      2000,
		NInodes:     200,
		NLog:        30,
		MaxOpBlocks: 10,
		NBuf:        48,
		NInode:      50,
		Debug:       1,
	}
}

// Load reads path (if non-empty) over the defaults, then applies the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := envconfig.Process("xv6fs", cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogCapacity is the number of distinct blocks one commit can carry.
func (c *Config) LogCapacity() uint64 {
	n := c.NLog - 1
	if n > common.HDRADDRS {
		n = common.HDRADDRS
	}
	return n
}

// MaxWriteBlocks is how many data blocks one write transaction may touch,
// leaving room for the inode block, the indirect block, and bitmap blocks.
func (c *Config) MaxWriteBlocks() uint64 {
	return (c.MaxOpBlocks - 1 - 1 - 2) / 2
}

func (c *Config) Validate() error {
	// a write chunk needs the inode, the indirect block, two bitmap blocks,
	// two blocks of slop, and at least one data block per two blocks of op.
	if c.MaxOpBlocks < 6 {
		return fmt.Errorf("max_op_blocks %d leaves no room for file data: %w",
			c.MaxOpBlocks, common.ErrInvalid)
	}
	if c.NLog < c.MaxOpBlocks+1 || c.NLog-1 > common.HDRADDRS {
		return fmt.Errorf("nlog %d must be in [%d, %d]: %w",
			c.NLog, c.MaxOpBlocks+1, common.HDRADDRS+1, common.ErrInvalid)
	}
	if c.NBuf < c.LogCapacity()+4 {
		return fmt.Errorf("nbuf %d too small for a log of %d blocks: %w",
			c.NBuf, c.LogCapacity(), common.ErrInvalid)
	}
	if c.NInode < 2 || c.NInodes < 2 {
		return fmt.Errorf("inode counts: %w", common.ErrInvalid)
	}
	nmeta := 2 + c.NLog + c.NInodes/common.INODEBLK + 1 + c.FsSize/common.NBITBLOCK + 1
	if c.FsSize <= nmeta {
		return fmt.Errorf("fs_size %d leaves no data blocks (%d metadata blocks): %w",
			c.FsSize, nmeta, common.ErrInvalid)
	}
	return nil
}
