package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/saadnvd1/agentos/internal/store"
	"github.com/saadnvd1/agentos/internal/style"
	"github.com/saadnvd1/agentos/internal/tui"
)

var psWatch bool

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List sessions",
	Long: `List sessions from the metadata store.

With --watch, opens a live monitor that refreshes every couple of seconds.

Examples:
  agentos ps
  agentos ps --watch`,
	RunE: runPs,
}

func init() {
	psCmd.Flags().BoolVarP(&psWatch, "watch", "w", false, "live monitor")
}

func runPs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()

	if psWatch {
		p := tea.NewProgram(tui.NewModel(st), tea.WithAltScreen())
		_, err := p.Run()
		return err
	}

	sessions, err := st.ListSessions()
	if err != nil {
		return err
	}
	projects, err := st.ListProjects()
	if err != nil {
		return err
	}
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, style.Bold.Render("NAME\tPROJECT\tSTATUS\tAGENT\tBRANCH\tPORT"))
	for _, s := range sessions {
		port := ""
		if s.DevServerPort > 0 {
			port = fmt.Sprintf("%d", s.DevServerPort)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Name, names[s.ProjectID], style.RenderStatus(s.Status),
			s.AgentType, s.BranchName, port)
	}
	return w.Flush()
}
