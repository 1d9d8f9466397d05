package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/salesmap/pkg/sales"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"template", "tpl"},
	Short:   "List the built-in templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		printTemplates(sales.BuiltinCatalog())
		return nil
	},
}

func printTemplates(catalog *sales.Catalog) {
	templates := catalog.List()
	if PrintJSON(templates) {
		return
	}

	defaultID := catalog.Default().ID

	PrintHeader("Templates")
	table := NewTable("ID", "NAME", "QUERY")
	for _, t := range templates {
		id := t.ID
		if id == defaultID {
			id += " (default)"
		}
		table.AddRow(id, t.Name, Truncate(t.SubjectQuery, 50))
	}
	table.Print()

	PrintHint(fmt.Sprintf("Use one with %s", CodeStyle.Render("salesmap scan --template <id>")))
}
