package validate

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/guianderson/terrama2/internal/analysis/validator"
	"github.com/guianderson/terrama2/internal/catalog"
	"github.com/guianderson/terrama2/internal/conf"
)

// Report is the validation outcome of one analysis.
type Report struct {
	AnalysisID int64    `json:"analysis_id" yaml:"analysis_id"`
	Name       string   `json:"name" yaml:"name"`
	Valid      bool     `json:"valid" yaml:"valid"`
	Messages   []string `json:"messages" yaml:"messages"`
}

// Command creates the validate command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		analysisIDs []int64
		format      string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check analyses in the catalog without executing them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.LoadFile(settings.Analysis.Catalog)
			if err != nil {
				return err
			}
			reports, err := Validate(cat, analysisIDs)
			if err != nil {
				return err
			}
			if err := write(cmd.OutOrStdout(), format, reports); err != nil {
				return err
			}
			for _, r := range reports {
				if !r.Valid {
					return fmt.Errorf("analysis %d is invalid", r.AnalysisID)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int64SliceVarP(&analysisIDs, "analysis", "a", nil, "Analysis id to check, all when omitted")
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format: yaml or json")
	return cmd
}

// Validate checks the listed analyses, or every analysis when ids is empty.
func Validate(cat *catalog.Catalog, ids []int64) ([]Report, error) {
	var analyses []*catalog.Analysis
	if len(ids) == 0 {
		analyses = cat.Analyses()
	} else {
		for _, id := range ids {
			a, err := cat.Analysis(id)
			if err != nil {
				return nil, err
			}
			analyses = append(analyses, a)
		}
	}

	reports := make([]Report, 0, len(analyses))
	for _, a := range analyses {
		res := validator.Validate(cat, a)
		msgs := res.Messages
		if msgs == nil {
			msgs = []string{}
		}
		reports = append(reports, Report{AnalysisID: a.ID, Name: a.Name, Valid: res.Valid, Messages: msgs})
	}
	return reports, nil
}

func write(w io.Writer, format string, reports []Report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
