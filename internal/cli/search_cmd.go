package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one search against the library and print the results",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var (
	searchLimit   int
	searchFuzzy   bool
	searchJSON    bool
	searchContext bool
)

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results (default: the configured limit)")
	searchCmd.Flags().BoolVar(&searchFuzzy, "fuzzy", false, "retry a zero-result content search with fuzzy term matching")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "emit results as JSON")
	searchCmd.Flags().BoolVar(&searchContext, "context", false, "print the surrounding paragraphs for each content match")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}
	svc, err := buildService(cfg)
	if err != nil {
		exitWith(ExitLibraryInaccessible, "ERROR: "+err.Error())
	}

	limit := searchLimit
	if limit <= 0 {
		limit = cfg.DefaultLimit
	}
	res := svc.Search(cmd.Context(), strings.Join(args, " "), limit, searchFuzzy)

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Matches)
	}

	st := newStyles(os.Stdout)
	if len(res.Matches) == 0 {
		fmt.Println(st.Dim.Render("no results"))
		return nil
	}
	for _, m := range res.Matches {
		head := m.Title
		if m.Authors != "" {
			head = fmt.Sprintf("%s by %s", m.Title, m.Authors)
		}
		fmt.Println(st.Title.Render(head))
		if searchContext && m.LineNumber > 0 {
			if para, err := svc.MatchContext(cmd.Context(), m); err == nil {
				fmt.Println(indent(para, "  "))
			} else {
				fmt.Println("  " + m.Text)
			}
		} else if m.Text != "" {
			fmt.Println("  " + m.Text)
		}
		fmt.Println("  " + st.URL.Render(m.Locator))
	}
	if !globalFlags.Quiet {
		fmt.Println(st.Dim.Render(fmt.Sprintf("%d result(s), %s path", len(res.Matches), res.Kind)))
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
