// internal/normalize/normalize.go
// nmap XML to the canonical host/port schema

package normalize

import (
	"bytes"
	"encoding/xml"
	"sort"
	"strconv"

	"github.com/Ullaakut/nmap/v3"

	"github.com/aspnmy/scanapi/internal/models"
)

// protocolOrder fixes the position of each protocol in a host's result
var protocolOrder = map[string]int{"ip": 0, "tcp": 1, "udp": 2, "sctp": 3}

// Result is a normalized scan
type Result struct {
	Hosts []models.HostResult
	// Complete is false when nmap reported an error at the end of the run
	Complete bool
	Summary  string
	Elapsed  float32
}

// Normalize parses raw nmap XML. Output that lacks the root element or its
// closing tag is rejected rather than returned as a partial result.
func Normalize(raw []byte) (*Result, error) {
	doc, err := extractXML(raw)
	if err != nil {
		return nil, err
	}

	var run nmap.Run
	if err := xml.Unmarshal(doc, &run); err != nil {
		return nil, models.NewError(models.ErrParse, "invalid XML").WithCause(err)
	}

	res := &Result{
		Hosts:    make([]models.HostResult, 0, len(run.Hosts)),
		Complete: run.Stats.Finished.Exit != "error",
		Summary:  run.Stats.Finished.Summary,
		Elapsed:  run.Stats.Finished.Elapsed,
	}
	for i := range run.Hosts {
		res.Hosts = append(res.Hosts, convertHost(&run.Hosts[i]))
	}
	return res, nil
}

// extractXML trims anything printed before or after the nmaprun document.
// NSE scripts may write warnings to stdout that break XML parsing.
func extractXML(output []byte) ([]byte, error) {
	start := bytes.Index(output, []byte("<?xml"))
	if start == -1 {
		start = bytes.Index(output, []byte("<nmaprun"))
	}
	if start == -1 || !bytes.Contains(output[start:], []byte("<nmaprun")) {
		return nil, models.NewError(models.ErrParse, "no nmaprun element in scanner output")
	}

	end := bytes.LastIndex(output, []byte("</nmaprun>"))
	if end == -1 || end < start {
		return nil, models.NewError(models.ErrParse, "scanner output is truncated")
	}
	return output[start : end+len("</nmaprun>")], nil
}

func convertHost(h *nmap.Host) models.HostResult {
	host := models.HostResult{
		Address:   hostAddress(h),
		State:     h.Status.State,
		Protocols: []models.ProtocolResult{},
	}
	if host.State == "" {
		host.State = "unknown"
	}
	if len(h.Hostnames) > 0 {
		host.Hostname = h.Hostnames[0].Name
		host.HostnameType = h.Hostnames[0].Type
	}

	index := make(map[string]int)
	for j := range h.Ports {
		p := &h.Ports[j]
		i, ok := index[p.Protocol]
		if !ok {
			i = len(host.Protocols)
			index[p.Protocol] = i
			host.Protocols = append(host.Protocols, models.ProtocolResult{Name: p.Protocol})
		}
		host.Protocols[i].Ports = append(host.Protocols[i].Ports, convertPort(p))
	}

	sort.SliceStable(host.Protocols, func(a, b int) bool {
		return rank(host.Protocols[a].Name) < rank(host.Protocols[b].Name)
	})
	for i := range host.Protocols {
		ports := host.Protocols[i].Ports
		sort.SliceStable(ports, func(a, b int) bool { return ports[a].Port < ports[b].Port })
	}

	if len(h.OS.Matches) > 0 {
		host.OS = convertOS(&h.OS)
	}
	host.Scripts = convertScripts(h.HostScripts)

	return host
}

// hostAddress prefers the IP address over a MAC address
func hostAddress(h *nmap.Host) string {
	for _, a := range h.Addresses {
		if a.AddrType == "ipv4" || a.AddrType == "ipv6" {
			return a.Addr
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}

func convertPort(p *nmap.Port) models.PortResult {
	port := models.PortResult{
		Port:      int(p.ID),
		State:     p.State.State,
		Reason:    p.State.Reason,
		Service:   p.Service.Name,
		Version:   p.Service.Version,
		Product:   p.Service.Product,
		ExtraInfo: p.Service.ExtraInfo,
		CPE:       make([]string, 0, len(p.Service.CPEs)),
		Conf:      p.Service.Confidence,
	}
	for _, cpe := range p.Service.CPEs {
		port.CPE = append(port.CPE, string(cpe))
	}
	port.Scripts = convertScripts(p.Scripts)
	return port
}

func convertOS(o *nmap.OS) *models.OSInfo {
	info := &models.OSInfo{
		Matches:  make([]models.OSMatch, 0, len(o.Matches)),
		Accuracy: "N/A",
	}

	best := -1
	for _, m := range o.Matches {
		match := models.OSMatch{Name: m.Name, Accuracy: m.Accuracy}
		if len(m.Classes) > 0 {
			c := m.Classes[0]
			match.Class = &models.OSClass{
				Type:     c.Type,
				Vendor:   c.Vendor,
				Family:   c.Family,
				Gen:      c.OSGeneration,
				Accuracy: c.Accuracy,
			}
		}
		if m.Accuracy > best {
			best = m.Accuracy
		}
		info.Matches = append(info.Matches, match)
	}
	if best >= 0 {
		info.Accuracy = strconv.Itoa(best)
	}
	return info
}

func convertScripts(scripts []nmap.Script) []models.ScriptResult {
	if len(scripts) == 0 {
		return nil
	}
	out := make([]models.ScriptResult, 0, len(scripts))
	for _, s := range scripts {
		out = append(out, models.ScriptResult{ID: s.ID, Output: s.Output})
	}
	return out
}

func rank(proto string) int {
	if r, ok := protocolOrder[proto]; ok {
		return r
	}
	return len(protocolOrder)
}
