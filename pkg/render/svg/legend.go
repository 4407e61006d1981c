package svg

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/matzehuels/relaymap/pkg/relay"
	"github.com/matzehuels/relaymap/pkg/render/aggregate"
)

const (
	panelMargin  = 12.0
	panelPadding = 10.0
	lineHeight   = 18.0
)

var legendEntries = []struct {
	role  relay.Role
	label string
}{
	{relay.Exit, "Exit"},
	{relay.Guard, "Guard"},
	{relay.Middle, "Middle"},
}

// renderLegend draws the role key in the bottom-left corner, followed by the
// totals line when totals are set.
func (r *renderer) renderLegend(buf *bytes.Buffer) {
	rows := len(legendEntries)
	width := 90.0
	var totals string
	if r.totals != nil {
		totals = totalsLine(*r.totals)
		rows++
		width = max(width, 2*panelPadding+float64(len(totals))*6.5)
	}
	height := 2*panelPadding + float64(rows)*lineHeight
	x := panelMargin
	y := r.height - panelMargin - height

	fmt.Fprintf(buf, `  <g class="legend" transform="translate(%.1f %.1f)">`+"\n", x, y)
	fmt.Fprintf(buf, `    <rect class="panel" x="0.0" y="0.0" width="%.1f" height="%.1f" rx="4"/>`+"\n", width, height)
	for i, e := range legendEntries {
		cy := panelPadding + float64(i)*lineHeight + lineHeight/2
		fmt.Fprintf(buf, `    <circle class="relay %s" cx="%.1f" cy="%.1f" r="%.2f"/>`+"\n",
			roleClass(e.role), panelPadding+5, cy, Radius(aggregate.Marker{Role: e.role, Count: 1}))
		fmt.Fprintf(buf, `    <text class="label" x="%.1f" y="%.1f">%s</text>`+"\n", panelPadding+16, cy+4, e.label)
	}
	if r.totals != nil {
		cy := panelPadding + float64(len(legendEntries))*lineHeight + lineHeight/2
		fmt.Fprintf(buf, `    <text class="label" x="%.1f" y="%.1f">%s</text>`+"\n", panelPadding, cy+4, escape(totals))
	}
	buf.WriteString("  </g>\n")
}

func totalsLine(t aggregate.Totals) string {
	parts := []string{
		fmt.Sprintf("%d relays", t.Relays),
		fmt.Sprintf("%d guards", t.Guards),
		fmt.Sprintf("%d exits", t.Exits),
		fmt.Sprintf("%d middles", t.Middles),
	}
	if t.Unresolved > 0 {
		parts = append(parts, fmt.Sprintf("%d not located", t.Unresolved))
	}
	return strings.Join(parts, " / ")
}

// renderCountries draws the top-countries panel in the top-right corner.
func (r *renderer) renderCountries(buf *bytes.Buffer) {
	width := 130.0
	height := 2*panelPadding + float64(len(r.countries)+1)*lineHeight
	x := r.width - panelMargin - width
	y := panelMargin

	fmt.Fprintf(buf, `  <g class="countries" transform="translate(%.1f %.1f)">`+"\n", x, y)
	fmt.Fprintf(buf, `    <rect class="panel" x="0.0" y="0.0" width="%.1f" height="%.1f" rx="4"/>`+"\n", width, height)
	fmt.Fprintf(buf, `    <text class="heading" x="%.1f" y="%.1f">Top countries</text>`+"\n", panelPadding, panelPadding+lineHeight/2+4)
	for i, c := range r.countries {
		ty := panelPadding + float64(i+1)*lineHeight + lineHeight/2 + 4
		fmt.Fprintf(buf, `    <text class="label" x="%.1f" y="%.1f">%s</text>`+"\n",
			panelPadding, ty, escape(strings.ToUpper(c.Country)))
		fmt.Fprintf(buf, `    <text class="label" x="%.1f" y="%.1f" text-anchor="end">%d</text>`+"\n",
			width-panelPadding, ty, c.Count)
	}
	buf.WriteString("  </g>\n")
}
