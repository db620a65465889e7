// Command gptinfo reads the GUID Partition Table from a disk image or
// block device and prints its header and partition summary. It is a thin
// demonstration of the gpt package: every import here that isn't gpt
// itself (a CLI framework, a logger, an error-wrapping helper) stays out
// of the library packages.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/go-gpt/gogpt"
	"github.com/go-gpt/gogpt/geometry"
	"github.com/go-gpt/gogpt/ioadapter"
)

const (
	blockSizeFlag = "block-size"
	recoverFlag   = "recover"
)

func main() {
	log := logrus.New()

	app := cli.NewApp()
	app.Name = "gptinfo"
	app.Usage = "print the GUID Partition Table of a disk image or device"
	app.ArgsUsage = "<path>"
	app.Flags = []cli.Flag{
		&cli.Uint64Flag{
			Name:  blockSizeFlag,
			Usage: "logical block size in bytes",
			Value: 512,
		},
		&cli.BoolFlag{
			Name:  recoverFlag,
			Usage: "recover from the backup header/array if the primary is corrupt",
		},
	}
	app.Action = func(cliCtx *cli.Context) error {
		path := cliCtx.Args().First()
		if path == "" {
			return errors.New("a disk image or device path is required")
		}

		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "opening disk image")
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return errors.Wrap(err, "statting disk image")
		}

		bs := geometry.BlockSize(cliCtx.Uint64(blockSizeFlag))
		policy := gpt.StrictPolicy
		if cliCtx.Bool(recoverFlag) {
			policy = gpt.RecoverFromBackupPolicy
		}

		read := ioadapter.NewReaderAtSource(f)
		table, err := gpt.FromReaderFn(read, bs, geometry.ByteSize(info.Size()), policy)
		if err != nil {
			return errors.Wrap(err, "reading GPT")
		}

		printTable(log, table)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printTable(log *logrus.Logger, table gpt.Table) {
	log.WithField("disk_guid", table.UUID().String()).Info("gpt table")
	for _, w := range table.Warnings {
		log.WithField("kind", w.Kind).Warn(w.Message)
	}
	for i, p := range table.Partitions() {
		log.WithFields(logrus.Fields{
			"index":     i,
			"name":      p.Name(),
			"type":      p.TypeName(),
			"guid":      p.UniquePartitionGUID.String(),
			"start_lba": p.StartingLBA,
			"end_lba":   p.EndingLBA,
		}).Info("partition")
	}
}
