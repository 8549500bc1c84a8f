package main

import (
	"encoding/pem"
	"fmt"

	"github.com/chrisrueger/equinox/common/location"
	"github.com/chrisrueger/equinox/common/store"
	"github.com/chrisrueger/equinox/common/util"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const pemType = "EQUINOX SECURE PREFERENCES"

func (a *app) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write the store file to FILE as PEM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.location()
			if err != nil {
				return err
			}

			storage := a.platform.Storage()
			fileData, err := storage.Read(cmd.Context(), loc)
			if err != nil {
				return err
			}
			defer util.Zero(fileData)

			var block = pem.Block{
				Type:  pemType,
				Bytes: fileData,
			}
			out := pem.EncodeToMemory(&block)
			defer util.Zero(out)
			return vfs.WriteFile(storage.FileSystem(), args[0], out, 0o600)
		},
	}
}

func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the store with one exported to FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.location()
			if err != nil {
				return err
			}

			storage := a.platform.Storage()
			fileData, err := vfs.ReadFile(storage.FileSystem(), args[0])
			if err != nil {
				return err
			}

			p, _ := pem.Decode(fileData)
			if p == nil {
				return errors.New("invalid PEM data")
			} else if p.Type != pemType {
				return errors.New("invalid PEM type")
			}

			tree, err := store.Decode(p.Bytes)
			if err != nil {
				return err
			}
			tree.Zero()

			// A store the platform already holds would overwrite
			// the import when it is flushed.
			if err = a.platform.CloseStore(cmd.Context(), loc); err != nil {
				return err
			}

			unlock := location.Lock(loc)
			defer unlock()
			return storage.Write(loc, p.Bytes)
		},
	}
}

// rekeyCommand re-encrypts every encrypted value: each is decrypted
// with the old password and encrypted again with a password from the
// current default provider, under the default cipher.
func (a *app) rekeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rekey",
		Short: "Re-encrypt every encrypted value under the current password and cipher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			snap, err := s.Snapshot()
			if err != nil {
				return err
			}
			defer snap.Zero()

			old, err := util.PassPrompt("old password> ")
			if err != nil {
				return errors.Wrap(err, "reading old password")
			}
			defer util.Zero(old)

			var count int
			var walkErr error
			snap.Walk(func(path string, keys []string) {
				for _, key := range keys {
					if walkErr != nil {
						return
					}

					e, _ := snap.Get(path, key)
					if !e.Encrypted {
						continue
					}

					value, err := s.Get(ctx, path, key, old)
					if err != nil {
						walkErr = err
						return
					}

					walkErr = s.Put(ctx, path, key, value, store.PutOptions{Encrypt: true})
					util.Zero(value)
					count++
				}
			})
			if walkErr != nil {
				return walkErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[+] Re-encrypted %d values.\n", count)
			return nil
		},
	}
}
