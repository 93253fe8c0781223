// Command nufs mounts a single-image filesystem over FUSE (spec §6.3).
package main

import (
	"log"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/urfave/cli/v2"

	"github.com/nufs-project/nufs/fs"
	"github.com/nufs-project/nufs/fuseadapter"
)

func main() {
	app := cli.App{
		Name:      "nufs",
		Usage:     "Mount a single-image filesystem",
		ArgsUsage: "MOUNTPOINT IMAGE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "log every FUSE call"},
		},
		Action: mount,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func mount(context *cli.Context) error {
	if context.NArg() != 2 {
		return cli.Exit("usage: nufs [options] MOUNTPOINT IMAGE", 1)
	}
	mountpoint := context.Args().Get(0)
	imagePath := context.Args().Get(1)

	core, err := fs.Open(imagePath)
	if err != nil {
		return cli.Exit("opening image: "+err.Error(), 1)
	}
	defer core.Close()

	adapter := fuseadapter.New(core)
	adapter.SetDebug(context.Bool("debug"))

	nodeFs := pathfs.NewPathNodeFs(adapter, nil)
	opts := nodefs.NewOptions()
	opts.Debug = context.Bool("debug")
	server, _, err := nodefs.MountRoot(mountpoint, nodeFs.Root(), opts)
	if err != nil {
		return cli.Exit("mounting: "+err.Error(), 1)
	}

	log.Printf("mounted %s at %s", imagePath, mountpoint)
	server.Serve()
	return nil
}
