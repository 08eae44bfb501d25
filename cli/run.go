package main

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sliverarmory/snfix"
	"github.com/sliverarmory/snfix/companion"
)

var (
	niceName   string
	runTimeout time.Duration
	printNames []string
)

// localHost plays the injection framework for a single process.
type localHost struct {
	log *logrus.Entry
}

func (h localHost) SetOption(opt snfix.Option) {
	h.log.Infof("host option %s", opt)
}

func (h localHost) ConnectCompanion() (io.ReadWriteCloser, error) {
	return companion.Dial(socketPath)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive one specialization of this process through the module",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		area, err := loadArea()
		if err != nil {
			return err
		}

		cfg := snfix.DefaultConfig()
		cfg.CompanionTimeout = runTimeout
		cfg.Resolver = selfResolver()

		module := snfix.New(cfg)
		module.OnLoad(localHost{log: logrus.WithField("component", "host")})

		events := []snfix.Event{
			{Kind: snfix.PreAppSpecialize, NiceName: niceName},
			{Kind: snfix.PostAppSpecialize, NiceName: niceName},
		}
		for _, ev := range events {
			if err := module.Handle(ev); err != nil {
				return err
			}
		}
		logrus.Infof("%s: %s, state %s, hook %s", module.Identity(), module.Classification(), module.State(), module.HookOutcome())

		printProps(cmd.OutOrStdout(), area, printNames)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&niceName, "nice-name", snfix.DefaultPrimaryIdentity, "Process name to specialize as")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Companion receive timeout, 0 waits forever")
	runCmd.Flags().StringVar(&buildPropPath, "build-prop", "", "build.prop file to seed the property area")
	runCmd.Flags().StringArrayVar(&propSets, "set", nil, "Extra property as name=value (repeatable)")
	runCmd.Flags().StringArrayVar(&printNames, "print", nil, "Property to print after specialization (repeatable, default all)")
}
