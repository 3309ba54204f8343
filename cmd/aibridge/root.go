package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "aibridge",
	Short:         "Unified access to LLM providers",
	Long:          "aibridge routes chat, streaming, embeddings, image and model calls to OpenAI-compatible, Ollama, Anthropic and Gemini providers, and runs tool-augmented chats.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "Config file (default: $AIBRIDGE_CONFIG or ~/.aibridge/config.yaml)")
	rootCmd.PersistentFlags().StringP("provider", "p", "", "Provider name (default: default_provider from config)")
	rootCmd.PersistentFlags().StringP("model", "m", "", "Model identifier")
	rootCmd.PersistentFlags().String("logfile", "", "Path to log file. If not set, logs to stderr")
	rootCmd.PersistentFlags().Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error); overrides LOG_LEVEL")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("logfile", rootCmd.PersistentFlags().Lookup("logfile"))
	_ = viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	viper.SetEnvPrefix("AIBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
