package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sliverarmory/snfix"
	"github.com/sliverarmory/snfix/hook"
	"github.com/sliverarmory/snfix/sysprop"
)

var getpropFilter bool

var getpropCmd = &cobra.Command{
	Use:   "getprop [name...]",
	Short: "Read properties through the read entry point, optionally filtered",
	RunE: func(cmd *cobra.Command, args []string) error {
		area, err := loadArea()
		if err != nil {
			return err
		}

		if getpropFilter {
			filter := snfix.NewFilter(logrus.WithField("tag", snfix.LogTag), snfix.DefaultRules...)
			interceptor := hook.NewInterceptor[sysprop.ReadFunc](selfResolver(), hook.SlotPatcher[sysprop.ReadFunc]{})
			if err := interceptor.Install(sysprop.ReadCallbackSymbol, filter.Hook(interceptor.Original)); err != nil {
				return fmt.Errorf("install property filter: %w", err)
			}
		}

		printProps(cmd.OutOrStdout(), area, args)
		return nil
	},
}

func init() {
	getpropCmd.Flags().StringVar(&buildPropPath, "build-prop", "", "build.prop file to read")
	getpropCmd.Flags().StringArrayVar(&propSets, "set", nil, "Extra property as name=value (repeatable)")
	getpropCmd.Flags().BoolVar(&getpropFilter, "filter", false, "Install the property filter before reading")
}
