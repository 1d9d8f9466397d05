package cli

import (
	"context"
	"fmt"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/salesmap/pkg/clients"
	"github.com/beam-cloud/salesmap/pkg/oauth"
	"github.com/beam-cloud/salesmap/pkg/repository"
	"github.com/beam-cloud/salesmap/pkg/sales"
	"github.com/beam-cloud/salesmap/pkg/types"
)

type scanOptions struct {
	accessToken  string
	refreshToken string
	template     string
	fetchMode    string
	chunkSize    int
	probe        bool
}

var scanOpts scanOptions

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Aggregate sales per country straight from the mail API",
	Long: `Run the sales pipeline once against a mailbox and print per-country totals.

Uses an access token directly, or exchanges a refresh token with the
configured OAuth client. Nothing is cached between runs.`,
	Example: `  salesmap scan --token "$ACCESS_TOKEN"
  salesmap scan --refresh-token "$REFRESH_TOKEN" --template clips4sale
  salesmap scan --token "$ACCESS_TOKEN" --probe
  salesmap scan --token "$ACCESS_TOKEN" --template '{"subjectQuery":"subject:order","countryPattern":"Country: (\\w+)"}'`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanOpts.accessToken, "token", getEnv("SALESMAP_ACCESS_TOKEN", ""), "OAuth access token with the gmail.readonly scope")
	scanCmd.Flags().StringVar(&scanOpts.refreshToken, "refresh-token", getEnv("SALESMAP_REFRESH_TOKEN", ""), "OAuth refresh token, exchanged when no access token is given")
	scanCmd.Flags().StringVarP(&scanOpts.template, "template", "t", "", "Template id or template JSON (default: built-in default)")
	scanCmd.Flags().StringVar(&scanOpts.fetchMode, "fetch-mode", "", "How message bodies are fetched: batch or parallel")
	scanCmd.Flags().IntVar(&scanOpts.chunkSize, "chunk-size", 0, "Messages per fetch chunk")
	scanCmd.Flags().BoolVar(&scanOpts.probe, "probe", false, "Run the template against a single message and show what it matched")
}

func runScan(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if scanOpts.fetchMode != "" {
		config.Sales.FetchMode = scanOpts.fetchMode
	}
	if scanOpts.chunkSize > 0 {
		config.Sales.ChunkSize = scanOpts.chunkSize
	}

	service := newScanService(config, newProgressReporter())

	var tmpl *types.Template
	if scanOpts.template != "" {
		if tmpl = service.Resolver().FromParam(scanOpts.template); tmpl == nil {
			return fmt.Errorf("%w: %q is neither a catalog id nor a valid template", types.ErrInvalidTemplate, Truncate(scanOpts.template, 60))
		}
	}

	session := &types.Session{
		ID: "cli",
		Credential: types.Credential{
			AccessToken:  scanOpts.accessToken,
			RefreshToken: scanOpts.refreshToken,
			IssuedAt:     time.Now(),
		},
		CreatedAt: time.Now(),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if scanOpts.probe {
		return probe(ctx, service, session, tmpl)
	}
	return scan(ctx, service, session, tmpl)
}

// newScanService wires a one-shot pipeline. Refreshed credentials are not
// written anywhere, so the token manager gets no writer.
func newScanService(config types.AppConfig, reporter sales.StatusReporter) *sales.Service {
	gmail := clients.NewGmailClient(config.Gmail,
		clients.WithPageSize(config.Sales.PageSize),
		clients.WithChunkSize(config.Sales.ChunkSize),
		clients.WithFetchMode(config.Sales.FetchMode),
	)

	return sales.NewService(sales.ServiceOpts{
		Tokens:       oauth.NewTokenManager(oauth.NewGoogleClient(config.OAuth.Google), nil),
		Mail:         gmail,
		Cache:        repository.NewResultMemoryCache(1),
		Reporter:     reporter,
		PreviewBytes: config.Sales.ProbePreviewBytes,
	})
}

func scan(ctx context.Context, service *sales.Service, session *types.Session, tmpl *types.Template) error {
	result, err := service.Run(ctx, sales.RunRequest{Session: session, Template: tmpl, Refresh: true})
	if err != nil {
		return err
	}

	if PrintJSON(result) {
		return nil
	}

	printAggregate(result)
	return nil
}

type countryRow struct {
	name string
	stat types.CountryStat
}

// sortedCountries orders by count descending, then by name
func sortedCountries(aggregate types.CountryAggregate) []countryRow {
	rows := make([]countryRow, 0, len(aggregate))
	for name, stat := range aggregate {
		rows = append(rows, countryRow{name: name, stat: stat})
	}
	slices.SortFunc(rows, func(a, b countryRow) int {
		if a.stat.Count != b.stat.Count {
			return b.stat.Count - a.stat.Count
		}
		return strings.Compare(a.name, b.name)
	})
	return rows
}

func printAggregate(result *types.Result) {
	PrintHeader(fmt.Sprintf("Sales by country (%s)", result.TemplateID))

	rows := sortedCountries(result.Aggregate)
	if len(rows) == 0 {
		PrintInfo("No matching sales found")
	} else {
		table := NewTable("COUNTRY", "SALES", "FIRST SEEN", "LAST SEEN")
		for _, row := range rows {
			table.AddRow(Truncate(row.name, 40), fmt.Sprintf("%d", row.stat.Count), FormatMillis(row.stat.FirstSeen), FormatMillis(row.stat.LastSeen))
		}
		table.Print()
		PrintNewline()
		PrintSuccessf("%d sales across %d countries", result.Aggregate.Total(), len(rows))
	}

	for _, w := range result.Warnings {
		PrintWarning(fmt.Sprintf("%s: %s", w.Stage, w.Detail))
	}
}

func probe(ctx context.Context, service *sales.Service, session *types.Session, tmpl *types.Template) error {
	result, err := service.Probe(ctx, session, tmpl)
	if err != nil {
		return err
	}

	if PrintJSON(result) {
		return nil
	}

	PrintHeader("Template probe")
	PrintKeyValue("Template", result.TemplateID)
	PrintKeyValueStyled("Query", result.Query, CodeStyle)
	PrintKeyValueStyled("Pattern", result.Pattern, CodeStyle)
	PrintKeyValue("Estimate", fmt.Sprintf("%d messages", result.ResultSizeEstimate))

	if result.MessageID == "" {
		PrintNewline()
		PrintWarning("The query matched no messages")
		return nil
	}

	PrintKeyValue("Message", result.MessageID)
	PrintKeyValue("Text", fmt.Sprintf("%d bytes", result.TextLength))
	PrintNewline()

	if result.Matched {
		PrintSuccessf("Matched %q", result.RawCapture)
		PrintKeyValueStyled("Country", result.Country, SuccessStyle)
	} else {
		PrintWarning("The pattern did not match this message")
	}

	PrintHeader("Preview")
	fmt.Fprintln(stdout, IndentedStyle(1).Render(result.TextPreview))
	return nil
}

// progressReporter prints pipeline stages to stderr, one line per update
type progressReporter struct {
	mu   sync.Mutex
	last string
}

func newProgressReporter() *progressReporter {
	return &progressReporter{}
}

func (p *progressReporter) Report(status sales.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := status.Message
	if status.Total > 0 {
		line = fmt.Sprintf("%s (%d/%d)", status.Message, status.Done, status.Total)
	}
	if line == p.last {
		return
	}
	p.last = line

	fmt.Fprintf(stderr, "  %s %s %s\n", InfoStyle.Render(SymbolInfo), DimStyle.Render(status.Stage), line)
}
