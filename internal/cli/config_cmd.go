package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/trieloff/calibre-mcp/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or initialize configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current effective values",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func configPath() string {
	if globalFlags.ConfigPath != "" {
		return globalFlags.ConfigPath
	}
	return config.DefaultPath()
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path := configPath()
	// file layer only, so environment noise is never persisted
	cfg, err := config.LoadFile(path)
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}
	if globalFlags.Library != "" {
		cfg.Library = globalFlags.Library
	}
	if globalFlags.Backend != "" {
		cfg.Backend = globalFlags.Backend
	}
	if err := config.Validate(cfg); err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}
	if err := config.SaveFile(path, cfg); err != nil {
		return err
	}
	if !globalFlags.Quiet {
		fmt.Println("wrote", path)
	}
	return nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}

	st := newStyles(os.Stdout)
	fmt.Println(st.Title.Render("calibre-mcp configuration"))
	fmt.Println(st.kv("config file", configPath()))
	fmt.Println(st.kv("library", cfg.Library))
	fmt.Println(st.kv("backend", cfg.Backend))
	fmt.Println(st.kv("calibredb binary", cfg.CalibreDBBinary))
	fmt.Println(st.kv("calibredb timeout", strconv.Itoa(cfg.CalibreDBTimeoutSeconds)+"s"))
	fmt.Println(st.kv("default limit", strconv.Itoa(cfg.DefaultLimit)))
	fmt.Println(st.kv("max limit", strconv.Itoa(cfg.MaxLimit)))
	fmt.Println(st.kv("context radius", strconv.Itoa(cfg.ContextRadius)))
	fmt.Println(st.kv("fetch paragraphs", strconv.Itoa(cfg.FetchParagraphs)))
	fmt.Println(st.kv("description length", strconv.Itoa(cfg.DescriptionLength)))
	if err := config.Validate(cfg); err != nil {
		fmt.Println(st.errPrefix() + " " + err.Error())
	}
	return nil
}
