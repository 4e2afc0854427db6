package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "debian-customizer",
	Short: "Custom Debian ISO builder with unattended installation",
	Long:  `Builds customized Debian netinst ISOs: injects a preseed file, embeds a post-install provisioning script, retimes the bootloader menus for unattended install, and optionally flashes the result to a removable drive.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("source-iso", "debian-13.0.0-amd64-netinst.iso", "Source Debian ISO path")
	rootCmd.PersistentFlags().String("preseed", "preseed.cfg", "Preseed configuration file")
	rootCmd.PersistentFlags().String("post-install-config", "post_install_config.json", "Post-install JSON descriptor")
	rootCmd.PersistentFlags().String("output-iso", "custom-debian-13.iso", "Output ISO path")
	rootCmd.PersistentFlags().String("workspace-dir", "iso-extract", "Staging workspace directory")
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/builds.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("s3-bucket", "debian-iso-mirror", "ISO mirror bucket name")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "ISO mirror bucket region")
	rootCmd.PersistentFlags().Bool("keep-workspace", false, "Keep the staged workspace after a successful build")

	viper.BindPFlag("source-iso", rootCmd.PersistentFlags().Lookup("source-iso"))
	viper.BindPFlag("preseed", rootCmd.PersistentFlags().Lookup("preseed"))
	viper.BindPFlag("post-install-config", rootCmd.PersistentFlags().Lookup("post-install-config"))
	viper.BindPFlag("output-iso", rootCmd.PersistentFlags().Lookup("output-iso"))
	viper.BindPFlag("workspace-dir", rootCmd.PersistentFlags().Lookup("workspace-dir"))
	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("keep-workspace", rootCmd.PersistentFlags().Lookup("keep-workspace"))
}
