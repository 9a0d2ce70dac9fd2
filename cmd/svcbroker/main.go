// Command svcbroker is the supervisor binary: it exposes install,
// uninstall, run, and version subcommands over the secured local IPC
// channel described in infrastructure/servicehost, application/protocol,
// and infrastructure/cryptography/securechannel.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"svcbroker/application/logring"
	"svcbroker/application/supervisor"
	"svcbroker/infrastructure/config"
	"svcbroker/infrastructure/cryptography/securechannel"
	"svcbroker/infrastructure/ipc/client"
	"svcbroker/infrastructure/logging"
	"svcbroker/infrastructure/servicehost"
	"svcbroker/infrastructure/svcinstall"

	"github.com/spf13/cobra"
)

var (
	flagServerID   string
	flagLogDir     string
	flagPSKFile    string
	flagConfigPath string
	flagForeground bool
)

func main() {
	root := &cobra.Command{
		Use:   "svcbroker",
		Short: "Local privileged supervisor for a sandboxed proxy core",
		Long: `svcbroker is a privileged local service that spawns, observes, and
terminates a supervised proxy core process on behalf of an unprivileged
desktop application, talking over a secured local IPC channel.`,
	}

	root.PersistentFlags().StringVar(&flagServerID, "server-id", config.DefaultServerID, "identifier used to derive the local endpoint path")
	root.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "directory for the service's own log file")
	root.PersistentFlags().StringVar(&flagPSKFile, "psk-file", "", "path to a file containing the pre-shared secret")
	root.PersistentFlags().StringVar(&flagConfigPath, "config", "", "override the platform-default config file path")

	root.AddCommand(
		newInstallCmd(),
		newUninstallCmd(),
		newRunCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Register the supervisor with the platform service manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svcinstall.Install(svcinstall.Options{
				ServerID: flagServerID,
				LogDir:   flagLogDir,
				PSKFile:  flagPSKFile,
			})
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the supervisor's platform service registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return svcinstall.Uninstall(svcinstall.Options{
				ServerID: flagServerID,
				LogDir:   flagLogDir,
			})
		},
	}
}

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the supervisor in the foreground or under the service manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService()
		},
	}
	runCmd.Flags().BoolVar(&flagForeground, "foreground", false, "log to the console instead of a rotating file")
	return runCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Query a running supervisor's version over the secured IPC channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersionQuery()
		},
	}
}

// resolvePSK reads the pre-shared secret from --psk-file, or from the
// SVCBROKER_PSK environment variable if no file was given. Per spec §9
// the PSK is never read from a config file or written to disk by this
// binary.
func resolvePSK() ([]byte, error) {
	if flagPSKFile != "" {
		data, err := os.ReadFile(flagPSKFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read psk file: %w", err)
		}
		return []byte(strings.TrimSpace(string(data))), nil
	}
	if env := os.Getenv("SVCBROKER_PSK"); env != "" {
		return []byte(env), nil
	}
	return nil, fmt.Errorf("no pre-shared secret provided: pass --psk-file or set SVCBROKER_PSK")
}

func runService() error {
	resolver := config.NewArgumentResolver(config.NewDefaultResolver(), flagConfigPath)
	cfgManager := config.NewManager(resolver)
	cfg, err := cfgManager.Load()
	if err != nil {
		return err
	}
	if flagServerID != "" && flagServerID != config.DefaultServerID {
		cfg.ServerID = flagServerID
	}
	logDir := flagLogDir
	if logDir == "" {
		logDir = cfg.LogDir
	}

	psk, err := resolvePSK()
	if err != nil {
		return err
	}

	logFile := ""
	if logDir != "" {
		logFile = filepath.Join(logDir, "svcbroker.log")
	}
	logOpts := logging.DefaultOptions(logFile)
	logOpts.Foreground = flagForeground || logFile == ""

	logger, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	reconfigurer := logging.NewReconfigurer(logOpts)

	ring := logring.New(cfg.LogRingCapacity)
	sup := supervisor.New(
		supervisor.NewExecLauncher(),
		supervisor.NewOrphanKiller(),
		ring,
		logger,
		supervisor.WithOrphanImageName(cfg.OrphanImageName),
		supervisor.WithLogFileChanger(reconfigurer.Reconfigure),
	)

	window := cfg.ReplayWindow
	if window <= 0 {
		window = securechannel.DefaultWindow
	}

	host := &servicehost.Host{
		ServerID:   cfg.ServerID,
		PSK:        psk,
		Window:     window,
		Supervisor: sup,
		Logger:     logger,
	}

	logger.Info().Str("server_id", cfg.ServerID).Msg("svcbroker starting")
	return host.Run(context.Background())
}

func runVersionQuery() error {
	psk, err := resolvePSK()
	if err != nil {
		return err
	}

	c, err := client.Dial(flagServerID, psk, securechannel.DefaultWindow)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", flagServerID, err)
	}
	defer func() { _ = c.Close() }()

	version, service, err := c.GetVersion()
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", service, version)
	return nil
}
