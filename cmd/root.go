package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pyramidtools/pyramid/internal/backend"
	"github.com/pyramidtools/pyramid/internal/pyramid"
	"github.com/pyramidtools/pyramid/pkg/tile"
)

const version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pyramid SOURCE TARGET",
	Short: "Turn a raster image into a z/x/y tile pyramid",
	Long: `pyramid converts a single raster image into a slippy-map tile pyramid.

For every zoom level z in [0, max-zoom] the source is resized to a square
canvas of tile-size * 2^z pixels and split into a 2^z by 2^z grid of tiles,
written as <target>/<z>/<x>/<y>.<ext>. Zoom 0 is always a single tile.
All encoding is lossless. ImageMagick must be installed; it performs the
actual resize, crop and encode work.

Examples:
  # Default pyramid: 7 levels of 256px PNG tiles
  pyramid map.png tiles/map

  # Deeper pyramid with lossless WebP tiles
  pyramid --max-zoom 8 --format webp map.png tiles/map

  # Overwrite a fixed directory instead of timestamping a new one
  pyramid --no-timestamp map.png tiles/map

  # Start the HTTP API
  pyramid serve --port 8080`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no args, show help
		if len(args) == 0 {
			return cmd.Help()
		}
		return runGenerate(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pyramid.yaml)")

	rootCmd.Flags().IntP("max-zoom", "z", 6, "deepest zoom level to generate (0-12)")
	rootCmd.Flags().IntP("tile-size", "t", tile.DefaultTileSize, "tile size in pixels")
	rootCmd.Flags().StringP("format", "f", "png", "tile format (png|webp|avif), always lossless")
	rootCmd.Flags().Bool("no-timestamp", false, "do not append a timestamp suffix to the target directory")

	viper.BindPFlag("max-zoom", rootCmd.Flags().Lookup("max-zoom"))
	viper.BindPFlag("tile-size", rootCmd.Flags().Lookup("tile-size"))
	viper.BindPFlag("format", rootCmd.Flags().Lookup("format"))
	viper.BindPFlag("no-timestamp", rootCmd.Flags().Lookup("no-timestamp"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".pyramid" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pyramid")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected SOURCE and TARGET arguments")
	}

	format, err := tile.ParseFormat(viper.GetString("format"))
	if err != nil {
		return err
	}

	req := pyramid.Request{
		Source:      args[0],
		Target:      args[1],
		MaxZoom:     viper.GetInt("max-zoom"),
		TileSize:    viper.GetInt("tile-size"),
		Format:      format,
		NoTimestamp: viper.GetBool("no-timestamp"),
	}

	// An interrupt must kill any in-flight ImageMagick process rather
	// than leave it orphaned.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := backend.NewMagick()
	b.Heartbeat = func() {
		fmt.Fprint(cmd.ErrOrStderr(), ".")
	}

	progress := func(format string, a ...any) {
		fmt.Fprintf(cmd.ErrOrStderr(), "\r"+format+"\n", a...)
	}

	result, err := pyramid.New(b, progress).Generate(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Target:         %s\n", result.Target)
	fmt.Fprintf(cmd.OutOrStdout(), "Max zoom:       %d\n", result.MaxZoom)
	fmt.Fprintf(cmd.OutOrStdout(), "Tile size:      %d\n", result.TileSize)
	fmt.Fprintf(cmd.OutOrStdout(), "Levels created: %d\n", result.LevelsCreated)
	fmt.Fprintf(cmd.OutOrStdout(), "Format:         %s (lossless)\n", result.Format)

	return nil
}
