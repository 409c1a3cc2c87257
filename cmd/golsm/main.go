package main

import (
	"bytes"
	"fmt"

	"github.com/alecthomas/kong"

	lsm "github.com/mosquito/golsm"
)

var cli struct {
	Copy   copyCmd   `cmd:"" help:"Copy a database element by element, optionally recompressing it."`
	Verify verifyCmd `cmd:"" help:"Check that a database iterates cleanly and in order."`
	Info   infoCmd   `cmd:"" help:"Print engine counters for a database."`
}

func parseCompress(name string) lsm.Compress {
	switch name {
	case "snappy":
		return lsm.CompressSnappy
	case "zstd":
		return lsm.CompressZstd
	}
	return lsm.CompressNone
}

type copyCmd struct {
	Input    string `arg:"" help:"Source database file path."`
	Output   string `arg:"" help:"Destination database file path."`
	Compress string `enum:"none,snappy,zstd" default:"none" help:"Compression for the destination (none, snappy, zstd)."`
	Level    int    `default:"0" help:"Compression level, zstd only (1..22)."`
	Batch    int    `default:"10000" help:"Elements copied per transaction."`
}

func (c *copyCmd) Run() error {
	srcOpts := lsm.DefaultOptions(c.Input)
	srcOpts.ReadOnly = true
	src, err := lsm.OpenOptions(srcOpts)
	if err != nil {
		return err
	}
	defer src.Close()

	dstOpts := lsm.DefaultOptions(c.Output)
	dstOpts.Compress = parseCompress(c.Compress)
	dstOpts.CompressLevel = c.Level
	dst, err := lsm.OpenOptions(dstOpts)
	if err != nil {
		return err
	}
	defer dst.Close()

	it, err := src.Items()
	if err != nil {
		return err
	}
	defer it.Close()

	copied := 0
	txn, err := dst.Begin()
	if err != nil {
		return err
	}
	defer txn.Close()
	for it.Next() {
		if err := dst.Set(it.Key(), it.Value()); err != nil {
			return err
		}
		copied++
		if copied%c.Batch == 0 {
			// Commit the batch so far and keep writing in the same scope.
			if err := txn.Commit(); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	if err := dst.Commit(); err != nil {
		return err
	}
	return c.finish(src, dst, copied)
}

func (c *copyCmd) finish(src, dst *lsm.DB, copied int) error {
	want, err := src.Len()
	if err != nil {
		return err
	}
	got, err := dst.Len()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("copy incomplete: %d of %d elements", got, want)
	}
	if _, err := dst.Work(4, 1024, true); err != nil {
		return err
	}
	if _, err := dst.Checkpoint(); err != nil {
		return err
	}
	fmt.Printf("copied %d elements to %s (%s)\n", copied, c.Output, c.Compress)
	return nil
}

type verifyCmd struct {
	Path string `arg:"" help:"Database file path."`
}

func (c *verifyCmd) Run() error {
	opts := lsm.DefaultOptions(c.Path)
	opts.ReadOnly = true
	db, err := lsm.OpenOptions(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	it, err := db.Items()
	if err != nil {
		return err
	}
	defer it.Close()

	var prev []byte
	count := 0
	for it.Next() {
		if prev != nil && bytes.Compare(prev, it.Key()) >= 0 {
			return fmt.Errorf("order violation at element %d: %q after %q", count, it.Key(), prev)
		}
		prev = it.Key()
		count++
	}
	if err := it.Err(); err != nil {
		return err
	}
	fmt.Printf("%s: %d elements, ordered\n", c.Path, count)
	return nil
}

type infoCmd struct {
	Path string `arg:"" help:"Database file path."`
}

func (c *infoCmd) Run() error {
	opts := lsm.DefaultOptions(c.Path)
	opts.ReadOnly = true
	db, err := lsm.OpenOptions(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := db.Info()
	if err != nil {
		return err
	}
	fmt.Printf("pages read:      %d\n", info.NRead)
	fmt.Printf("pages written:   %d\n", info.NWrite)
	fmt.Printf("checkpoint size: %d KB\n", info.CheckpointKB)
	fmt.Printf("tree size:       %d KB (old %d KB)\n", info.TreeKB, info.TreeOldKB)
	return nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("golsm"),
		kong.Description("Copy, recompress and verify LSM databases."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
