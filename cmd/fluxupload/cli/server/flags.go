package server

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// bindFlag routes a flag into the config only when the user set it
func bindFlag(cmd *cobra.Command, flag, key string) error {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return viper.BindPFlag(key, cmd.Flags().Lookup(flag))
}
