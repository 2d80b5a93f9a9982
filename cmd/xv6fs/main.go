package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path"

	"github.com/urfave/cli/v2"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/config"
	"github.com/mit-pdos/go-xv6fs/disk"
	"github.com/mit-pdos/go-xv6fs/fs"
	"github.com/mit-pdos/go-xv6fs/util"
)

func main() {
	app := newApp()
	var runErr error
	err := common.Halt(func() {
		runErr = app.Run(os.Args)
	})
	if err != nil {
		log.Fatalf("panic: %v", err)
	}
	if runErr != nil {
		log.Fatal(runErr)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "xv6fs",
		Usage: "inspect and modify an xv6 file system image",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "path to the disk image",
				Value:   "fs.img",
				EnvVars: []string{"XV6FS_IMAGE"},
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML file overriding the default sizes",
			},
			&cli.Uint64Flag{
				Name:  "debug",
				Usage: "debug logging level; overrides the config",
			},
		},
		Commands: []*cli.Command{{
			Name:      "mkfs",
			Usage:     "create an empty file system, replacing the image",
			ArgsUsage: " ",
			Action: func(ctx *cli.Context) error {
				cfg, err := loadConfig(ctx)
				if err != nil {
					return err
				}
				image := ctx.String("image")
				d, err := disk.NewFileDisk(image, cfg.FsSize)
				if err != nil {
					return fmt.Errorf("creating image %s: %w", image, err)
				}
				fsys, err := fs.Mkfs(d, cfg)
				if err != nil {
					d.Close()
					return fmt.Errorf("mkfs %s: %w", image, err)
				}
				fsys.Close()
				return nil
			},
		}, {
			Name:      "ls",
			Usage:     "list a directory",
			ArgsUsage: "[PATH]",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				p := "/"
				if ctx.NArg() > 0 {
					p = ctx.Args().First()
				}
				return ls(fsys, p)
			}),
		}, {
			Name:      "cat",
			Usage:     "print a file",
			ArgsUsage: "PATH",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				if ctx.NArg() != 1 {
					return cli.ShowCommandHelp(ctx, "cat")
				}
				data, err := fsys.ReadFile(nil, ctx.Args().First())
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(data)
				return err
			}),
		}, {
			Name:      "put",
			Aliases:   []string{"cp"},
			Usage:     "copy a host file into the image",
			ArgsUsage: "SRC DST",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				if ctx.NArg() != 2 {
					return cli.ShowCommandHelp(ctx, "put")
				}
				src, dst := ctx.Args().Get(0), ctx.Args().Get(1)
				data, err := ioutil.ReadFile(src)
				if err != nil {
					return fmt.Errorf("reading %s: %w", src, err)
				}
				return put(fsys, dst, data)
			}),
		}, {
			Name:      "mkdir",
			Usage:     "create directories",
			ArgsUsage: "PATH...",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				for _, p := range ctx.Args().Slice() {
					if err := fsys.Mkdir(nil, p); err != nil {
						return err
					}
				}
				return nil
			}),
		}, {
			Name:      "rm",
			Aliases:   []string{"unlink"},
			Usage:     "remove files or empty directories",
			ArgsUsage: "PATH...",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				for _, p := range ctx.Args().Slice() {
					if err := fsys.Unlink(nil, p); err != nil {
						return err
					}
				}
				return nil
			}),
		}, {
			Name:      "ln",
			Usage:     "make a hard link",
			ArgsUsage: "OLD NEW",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				if ctx.NArg() != 2 {
					return cli.ShowCommandHelp(ctx, "ln")
				}
				return fsys.Link(nil, ctx.Args().Get(0), ctx.Args().Get(1))
			}),
		}, {
			Name:      "stat",
			Usage:     "show an inode, or the file system without a path",
			ArgsUsage: "[PATH]",
			Action: withFs(func(fsys *fs.Fs, ctx *cli.Context) error {
				if ctx.NArg() == 0 {
					sb := fsys.Super()
					fmt.Printf("%v\n", sb)
					fmt.Printf("free blocks %d/%d, log capacity %d\n",
						fsys.NumFree(), sb.NBlocks, fsys.Log().Capacity())
					return nil
				}
				st, err := fsys.Stat(nil, ctx.Args().First())
				if err != nil {
					return err
				}
				fmt.Printf("inum %d type %v nlink %d size %d\n",
					st.Inum, st.Type, st.Nlink, st.Size)
				return nil
			}),
		}},
	}
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("debug") {
		cfg.Debug = ctx.Uint64("debug")
	}
	util.Debug = cfg.Debug
	return cfg, nil
}

func withFs(f func(*fs.Fs, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		image := ctx.String("image")
		d, err := disk.OpenFileDisk(image)
		if err != nil {
			return fmt.Errorf("opening image %s: %w", image, err)
		}
		fsys, err := fs.Mount(d, cfg)
		if err != nil {
			d.Close()
			return fmt.Errorf("mounting %s: %w", image, err)
		}
		defer fsys.Close()
		return f(fsys, ctx)
	}
}

func ls(fsys *fs.Fs, p string) error {
	ents, err := fsys.ReadDir(nil, p)
	if err != nil {
		return err
	}
	for _, de := range ents {
		st, err := fsys.Stat(nil, path.Join(p, de.Name))
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %-6v %4d %8d\n", de.Name, st.Type, st.Inum, st.Size)
	}
	return nil
}

// put replaces the content of dst with data, creating it if needed.
func put(fsys *fs.Fs, dst string, data []byte) error {
	ip, err := fsys.Create(nil, dst, common.TFILE, 0, 0)
	if err != nil {
		return err
	}
	isDev := ip.Type == common.TDEVICE
	fsys.Release(ip)
	if isDev {
		return fmt.Errorf("%s: %w", dst, common.ErrInvalid)
	}
	if err := fsys.Truncate(nil, dst); err != nil {
		return err
	}
	_, err = fsys.WriteFile(nil, dst, 0, data)
	return err
}
