// internal/output/console.go
// CLI rendering of scan outcomes, jobs and profiles

package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/internal/normalize"
	"github.com/aspnmy/scanapi/internal/profile"
)

// Output formats accepted by the CLI
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// ErrInvalidFormat is returned for an unknown CLI output format
var ErrInvalidFormat = errors.New("invalid output format")

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	openStyle     = cellStyle.Foreground(lipgloss.Color("#04B575"))
	closedStyle   = cellStyle.Foreground(lipgloss.Color("#FF6B6B"))
	filteredStyle = cellStyle.Foreground(lipgloss.Color("#FFD93D"))
	borderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
)

// Printer renders CLI output in one format
type Printer struct {
	format string
	color  bool
	writer io.Writer
}

// NewPrinter creates a printer for format (table, json or csv)
func NewPrinter(format string, color bool, w io.Writer) (*Printer, error) {
	switch format {
	case FormatTable, FormatJSON, FormatCSV:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, format)
	}
	return &Printer{format: format, color: color, writer: w}, nil
}

// Outcome prints the hosts and ports of a finished scan
func (p *Printer) Outcome(outcome *models.ScanOutcome) error {
	switch p.format {
	case FormatJSON:
		return p.json(outcome)
	case FormatCSV:
		raw := outcome.CSV
		if raw == "" {
			raw = normalize.CSV(outcome.Hosts)
		}
		_, err := io.WriteString(p.writer, raw)
		return err
	}

	if outcome.Error != "" {
		fmt.Fprintf(p.writer, "Scan %s: %s\n", outcome.Status, outcome.Error)
	}

	var rows [][]string
	for _, h := range outcome.Hosts {
		if len(h.Protocols) == 0 {
			rows = append(rows, []string{h.Address, h.Hostname, h.State, "", "", "", ""})
			continue
		}
		for _, proto := range h.Protocols {
			for _, port := range proto.Ports {
				rows = append(rows, []string{
					h.Address,
					h.Hostname,
					h.State,
					FormatPort(port.Port, proto.Name),
					port.State,
					port.Service,
					strings.TrimSpace(port.Product + " " + port.Version),
				})
			}
		}
	}

	if len(rows) == 0 {
		fmt.Fprintln(p.writer, "No hosts found")
		return nil
	}

	t := p.table(rows, 4, "HOST", "HOSTNAME", "STATUS", "PORT", "STATE", "SERVICE", "VERSION")
	fmt.Fprintln(p.writer, t.Render())

	summary := fmt.Sprintf("\n%d host(s)", len(outcome.Hosts))
	if !outcome.Complete {
		summary += ", results incomplete"
	}
	fmt.Fprintln(p.writer, summary)
	return nil
}

// Jobs prints a job listing
func (p *Printer) Jobs(jobs []models.ScanJob) error {
	if p.format == FormatJSON {
		return p.json(jobs)
	}

	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.Request.ID,
			j.Request.Target,
			string(j.Request.Profile),
			string(j.Status),
			j.Request.CreatedAt.Local().Format(time.DateTime),
			jobDuration(&j),
		})
	}
	headers := []string{"ID", "TARGET", "TYPE", "STATUS", "CREATED", "DURATION"}

	if p.format == FormatCSV {
		return p.csv(headers, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(p.writer, "No jobs found")
		return nil
	}

	fmt.Fprintln(p.writer, p.table(rows, -1, headers...).Render())
	return nil
}

// Profiles prints the profile table
func (p *Printer) Profiles(list []profile.Profile) error {
	if p.format == FormatJSON {
		return p.json(list)
	}

	rows := make([][]string, 0, len(list))
	for _, pr := range list {
		rows = append(rows, []string{string(pr.ID), pr.Description, strings.Join(pr.Args, " ")})
	}
	headers := []string{"TYPE", "DESCRIPTION", "ARGUMENTS"}

	if p.format == FormatCSV {
		return p.csv(headers, rows)
	}
	fmt.Fprintln(p.writer, p.table(rows, -1, headers...).Render())
	return nil
}

// table builds a styled table. stateCol selects the column colored by
// port state, -1 for none.
func (p *Printer) table(rows [][]string, stateCol int, headers ...string) *table.Table {
	styleFunc := func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if !p.color || col != stateCol || row < 0 || row >= len(rows) {
			return cellStyle
		}
		switch rows[row][col] {
		case "open":
			return openStyle
		case "closed":
			return closedStyle
		case "filtered", "open|filtered":
			return filteredStyle
		}
		return cellStyle
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(styleFunc)
}

func (p *Printer) json(v interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (p *Printer) csv(headers []string, rows [][]string) error {
	writer := csv.NewWriter(p.writer)
	if err := writer.Write(headers); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func jobDuration(j *models.ScanJob) string {
	if j.StartedAt == nil {
		return "-"
	}
	end := time.Now()
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt).Round(time.Millisecond).String()
}

// FormatPort renders a port as "22/tcp"
func FormatPort(port int, proto string) string {
	return strconv.Itoa(port) + "/" + proto
}
