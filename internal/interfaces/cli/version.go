package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

type versionOutput struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func (v versionOutput) String() string {
	return fmt.Sprintf("agrinlu %s (commit %s, built %s, %s %s)", v.Version, v.Commit, v.BuildDate, v.GoVersion, v.Platform)
}

func (v versionOutput) TableHeaders() []string {
	return []string{"Version", "Commit", "Built", "Go", "Platform"}
}

func (v versionOutput) TableRows() [][]string {
	return [][]string{{v.Version, v.Commit, v.BuildDate, v.GoVersion, v.Platform}}
}

// NewVersionCmd prints build information.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, versionOutput{
				Version:   Version,
				Commit:    GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			})
		},
	}
}

//Personal.AI order the ending
