package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-xv6fs/config"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/fs"
)

func TestCommands(t *testing.T) {
	tmp, err := ioutil.TempDir("", "xv6fs")
	require.Nil(t, err)
	defer os.RemoveAll(tmp)
	img := filepath.Join(tmp, "fs.img")
	src := filepath.Join(tmp, "hello.txt")
	require.Nil(t, ioutil.WriteFile(src, []byte("hello, xv6\n"), 0644))

	run := func(args ...string) error {
		return newApp().Run(append([]string{"xv6fs", "--image", img, "--debug", "0"}, args...))
	}
	require.Nil(t, run("mkfs"))
	require.Nil(t, run("mkdir", "/docs", "/tmp"))
	require.Nil(t, run("put", src, "/docs/hello"))
	require.Nil(t, run("ln", "/docs/hello", "/hi"))
	require.Nil(t, run("rm", "/tmp"))
	assert.Nil(t, run("ls", "/docs"))
	assert.Nil(t, run("stat"))
	assert.NotNil(t, run("cat", "/missing"))
	assert.NotNil(t, run("rm", "/docs"))

	d, err := disk.OpenFileDisk(img)
	require.Nil(t, err)
	fsys, err := fs.Mount(d, config.Default())
	require.Nil(t, err)
	defer fsys.Close()
	data, err := fsys.ReadFile(nil, "/hi")
	assert.Nil(t, err)
	assert.Equal(t, []byte("hello, xv6\n"), data)
	st, err := fsys.Stat(nil, "/docs/hello")
	assert.Nil(t, err)
	assert.Equal(t, uint32(2), st.Nlink)
	ents, err := fsys.ReadDir(nil, "/")
	assert.Nil(t, err)
	assert.Len(t, ents, 4) // . .. docs hi
}
