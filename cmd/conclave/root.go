package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BaSui01/conclave/config"
)

// globalFlags 所有子命令共享的参数
type globalFlags struct {
	configPath string
	logLevel   string
	plain      bool
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "conclave",
		Short:         "Ask a question and get an answer every persona agrees on",
		Long:          `Conclave answers questions with a panel of domain personas that review and revise each other's answers until they reach unanimous agreement.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to config file (YAML)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.plain, "plain", false, "Print answers without markdown rendering")

	root.AddCommand(
		newChatCmd(flags),
		newAskCmd(flags),
		newPersonasCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig 加载配置并应用命令行覆盖，不做校验
func loadConfig(flags *globalFlags) (*config.Config, error) {
	loader := config.NewLoader()
	if flags.configPath != "" {
		loader = loader.WithConfigPath(flags.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, nil
}

// signalContext 在 SIGINT/SIGTERM 时取消
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// =============================================================================
// 💬 chat 命令
// =============================================================================

func newChatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive question loop (type exit to quit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return runWithApp(ctx, cfg, flags, cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
				return a.driver.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

// =============================================================================
// ❓ ask 命令
// =============================================================================

func newAskCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the final answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question must not be empty")
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return runWithApp(ctx, cfg, flags, cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
				result, err := a.driver.Ask(ctx, question)
				if err != nil {
					return err
				}
				return a.driver.WriteResult(cmd.OutOrStdout(), result)
			})
		},
	}
}

// =============================================================================
// 👥 personas 命令
// =============================================================================

func newPersonasCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the configured personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range cfg.Personas {
				fmt.Fprintf(out, "%s (%s)\n", p.Name, p.Domain)
				for _, item := range p.Tuning {
					fmt.Fprintf(out, "  * %s\n", item)
				}
			}
			return nil
		},
	}
}

// =============================================================================
// 📋 version 命令
// =============================================================================

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Conclave %s\n", Version)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
		},
	}
}
