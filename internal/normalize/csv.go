// internal/normalize/csv.go
// Semicolon-separated audit rendering of normalized hosts

package normalize

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"

	"github.com/aspnmy/scanapi/internal/models"
)

var csvHeader = []string{
	"host", "hostname", "hostname_type", "protocol", "port", "name",
	"state", "product", "extrainfo", "reason", "version", "conf", "cpe",
}

// CSV renders one row per host, protocol and port. Hosts without ports
// produce no rows.
func CSV(hosts []models.HostResult) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	w.UseCRLF = true

	_ = w.Write(csvHeader)
	for _, h := range hosts {
		for _, proto := range h.Protocols {
			for _, p := range proto.Ports {
				_ = w.Write([]string{
					h.Address,
					h.Hostname,
					h.HostnameType,
					proto.Name,
					strconv.Itoa(p.Port),
					p.Service,
					p.State,
					p.Product,
					p.ExtraInfo,
					p.Reason,
					p.Version,
					strconv.Itoa(p.Conf),
					strings.Join(p.CPE, " "),
				})
			}
		}
	}
	w.Flush()
	return buf.String()
}
