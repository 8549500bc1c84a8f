package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/chrisrueger/equinox/common/cryptoprov"
	"github.com/chrisrueger/equinox/common/location"
	"github.com/chrisrueger/equinox/common/passwd"
	"github.com/chrisrueger/equinox/common/platform"
	"github.com/chrisrueger/equinox/common/secret"
	"github.com/chrisrueger/equinox/common/store"
	"github.com/chrisrueger/equinox/common/util"
	"github.com/go-logr/stdr"
	"github.com/mandelsoft/vfs/pkg/vfs"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// app carries the global flags and the running platform.
type app struct {
	fs vfs.FileSystem

	storePath        string
	optionsFile      string
	debug            bool
	interactive      bool
	passwordProvider string
	cryptoProvider   string

	platform *platform.Context
}

func newApp(fs vfs.FileSystem) *app {
	return &app{fs: fs}
}

func (a *app) start(cmd *cobra.Command, args []string) error {
	stdr.SetVerbosity(0)
	if a.debug {
		stdr.SetVerbosity(1)
	}
	logger := stdr.New(log.New(cmd.ErrOrStderr(), "", log.LstdFlags))

	m := secret.ScryptStandard
	if a.interactive {
		m = secret.ScryptInteractive
	}

	sel := passwd.NewSelector(logger)
	sel.Register(passwd.NewCache(passwd.NewPrompt()), true)
	sel.Register(passwd.NewEnv(platform.EnvProviderID, passwd.DefaultEnvVar), false)
	sel.Register(passwd.NewKeyring(), false)

	opts := &platform.Options{
		Values:           map[string]interface{}{},
		PasswordProvider: a.passwordProvider,
		CryptoProvider:   a.cryptoProvider,
	}
	if a.debug {
		opts.Values[platform.OptionDebug] = true
	}

	a.platform = platform.New(platform.Config{
		Logger:      logger,
		FileSystem:  a.fs,
		OptionsFile: a.optionsFile,
		Options:     opts,
		Passwords:   sel,
		Crypto:      cryptoprov.NewRegistryWithScryptMode(m),
	})
	return a.platform.Start(cmd.Context())
}

func (a *app) stop(cmd *cobra.Command, args []string) error {
	if a.platform == nil {
		return nil
	}
	return a.platform.Stop(cmd.Context())
}

func (a *app) location() (location.Location, error) {
	if a.storePath == "" {
		return a.platform.DefaultLocation()
	}
	return location.Parse(a.storePath)
}

func (a *app) open(ctx context.Context) (*store.Store, error) {
	loc, err := a.location()
	if err != nil {
		return nil, err
	}
	return a.platform.OpenStore(ctx, loc)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "secprefs",
		Short:             "Manage a secure preferences store",
		Version:           util.VersionString(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.start,
		// Stop flushes every store that was changed.
		PersistentPostRunE: a.stop,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.storePath, "store", "f", "", "store location (default: ~/"+location.DefaultFileName+")")
	flags.StringVar(&a.optionsFile, "options", "", "YAML options file")
	flags.BoolVar(&a.debug, "debug", false, "enable debug output")
	flags.BoolVarP(&a.interactive, "interactive", "i", false, "use scrypt interactive parameters")
	flags.StringVar(&a.passwordProvider, "password-provider", "", "default password provider")
	flags.StringVar(&a.cryptoProvider, "crypto-provider", "", "default crypto provider")

	root.AddCommand(
		a.getCommand(),
		a.putCommand(),
		a.rmCommand(),
		a.rmnodeCommand(),
		a.lsCommand(),
		a.providersCommand(),
		a.rekeyCommand(),
		a.exportCommand(),
		a.importCommand(),
	)
	return root
}

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get PATH KEY",
		Short: "Print a value, decrypting it if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}

			value, err := s.Get(cmd.Context(), args[0], args[1], nil)
			if err != nil {
				return err
			}
			defer util.Zero(value)

			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", value)
			return nil
		},
	}
}

func (a *app) putCommand() *cobra.Command {
	var encrypt bool

	cmd := &cobra.Command{
		Use:   "put PATH KEY [VALUE]",
		Short: "Store a value; without VALUE it is read from the terminal",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}

			var value []byte
			if len(args) == 3 {
				value = []byte(args[2])
			} else {
				value, err = util.PassPrompt("value> ")
				if err != nil {
					return errors.Wrap(err, "reading value")
				}
			}
			defer util.Zero(value)

			return s.Put(cmd.Context(), args[0], args[1], value, store.PutOptions{Encrypt: encrypt})
		},
	}
	cmd.Flags().BoolVarP(&encrypt, "encrypt", "e", false, "encrypt the value")
	return cmd
}

func (a *app) rmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm PATH KEY",
		Short: "Remove a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			return s.Remove(args[0], args[1])
		},
	}
}

func (a *app) rmnodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rmnode PATH",
		Short: "Remove a node and everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			return s.RemoveNode(args[0])
		},
	}
}

func (a *app) lsCommand() *cobra.Command {
	var recursive bool

	cmd := &cobra.Command{
		Use:   "ls [PATH]",
		Short: "List the keys and children of a node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := store.RootPath
			if len(args) == 1 {
				path = args[0]
			}

			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}

			if recursive {
				return listTree(cmd.OutOrStdout(), s, path)
			}
			return listNode(cmd.OutOrStdout(), s, path)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "list the whole subtree")
	return cmd
}

func listNode(w io.Writer, s *store.Store, path string) error {
	children, err := s.Children(path)
	if err != nil {
		return err
	}
	keys, err := s.Keys(path)
	if err != nil {
		return err
	}

	for _, child := range children {
		fmt.Fprintf(w, "%s/\n", child)
	}
	for _, key := range keys {
		encrypted, err := s.IsEncrypted(path, key)
		if err != nil {
			return err
		}
		if encrypted {
			fmt.Fprintf(w, "%s (encrypted)\n", key)
		} else {
			fmt.Fprintln(w, key)
		}
	}
	return nil
}

func listTree(w io.Writer, s *store.Store, path string) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	defer snap.Zero()

	if !snap.NodeExists(path) {
		return &store.NotFoundError{Path: path}
	}

	prefix := path + "/"
	snap.Walk(func(node string, keys []string) {
		if node != path && path != store.RootPath && !strings.HasPrefix(node, prefix) {
			return
		}

		fmt.Fprintln(w, node)
		for _, key := range keys {
			e, _ := snap.Get(node, key)
			if e.Encrypted {
				fmt.Fprintf(w, "\t%s (encrypted, %s)\n", key, e.Provider)
			} else {
				fmt.Fprintf(w, "\t%s\n", key)
			}
		}
	})
	return nil
}

func (a *app) providersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the password and crypto providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			fmt.Fprintln(w, "password providers:")
			for _, info := range a.platform.Passwords().List() {
				fmt.Fprintf(w, "\t%s%s\n", info.ID, defaultMark(info.Default))
			}

			crypto := a.platform.Crypto()
			def, err := crypto.Default()
			if err != nil {
				return err
			}

			fmt.Fprintln(w, "crypto providers:")
			for _, id := range crypto.IDs() {
				fmt.Fprintf(w, "\t%s%s\n", id, defaultMark(id == def.ID()))
			}
			return nil
		},
	}
}

func defaultMark(isDefault bool) string {
	if isDefault {
		return " (default)"
	}
	return ""
}

// exitCode maps store errors to distinct exit statuses.
func exitCode(err error) int {
	var (
		notFound *store.NotFoundError
		wrong    *store.WrongPasswordError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &notFound):
		return 2
	case errors.As(err, &wrong):
		return 3
	default:
		return 1
	}
}
