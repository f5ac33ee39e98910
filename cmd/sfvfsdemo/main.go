// Command sfvfsdemo is a small inspection binary over the sfvfs core
// engine, grounded on the teacher's fs2-generic demo the same way that
// binary drove bptree end to end. It is not the filesystem-API façade
// spec.md places out of scope (§1); it just exercises BlockStore,
// Inode and Directory together.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/akutuzov/sfvfs/blockstore"
	"github.com/akutuzov/sfvfs/consts"
	"github.com/akutuzov/sfvfs/directory"
	"github.com/akutuzov/sfvfs/inode"
)

func main() {
	root := &cobra.Command{
		Use:   "sfvfsdemo",
		Short: "inspect and exercise an sfvfs container",
	}
	root.AddCommand(createCmd(), statCmd(), compactCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(path string) (*blockstore.BlockStore, error) {
	return blockstore.Open(path, blockstore.Options{Logger: logrus.StandardLogger()})
}

func createCmd() *cobra.Command {
	var entryName string
	var payload string
	cmd := &cobra.Command{
		Use:   "create <path>",
		Short: "create a fresh container with a root directory and one file entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := directory.Create(store, consts.RootDirectoryAddress, directory.Options{}); err != nil {
				return err
			}

			fileBlock, err := store.Allocate()
			if err != nil {
				return err
			}
			file, err := inode.Create(store, fileBlock.Address())
			if err != nil {
				return err
			}

			root, err := directory.New(store, consts.RootDirectoryAddress, directory.Options{})
			if err != nil {
				return err
			}
			if err := root.Add(entryName, file.Address(), 0); err != nil {
				return err
			}

			w, err := file.AppendStream()
			if err != nil {
				return err
			}
			if _, err := w.Write([]byte(payload)); err != nil {
				return err
			}
			return w.Close()
		},
	}
	cmd.Flags().StringVar(&entryName, "name", "hello.txt", "name of the file entry to create")
	cmd.Flags().StringVar(&payload, "content", "hello, sfvfs", "content to write to the file")
	return cmd
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "report block accounting and directory contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			free, err := store.FreeBlocks()
			if err != nil {
				return err
			}
			fmt.Printf("blockSize=%d totalBlocks=%d freeBlocks=%d\n", store.BlockSize(), store.TotalBlocks(), free)

			root, err := directory.New(store, consts.RootDirectoryAddress, directory.Options{})
			if err != nil {
				return err
			}
			size, err := root.Size()
			if err != nil {
				return err
			}
			fmt.Printf("root directory entries: %d\n", size)

			entries, err := root.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("  %s -> block %d (flags=%d)\n", e.Name, e.Address, e.Flags)
			}
			return nil
		},
	}
}

func compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact <path>",
		Short: "run online compaction against a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(args[0])
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Compact()
		},
	}
}
