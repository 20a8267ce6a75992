// Package report renders outbound telemetry messages from the
// configured templates and keeps the CSV delivery log.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Data carries the values substituted into a message template. The
// placeholder names are the legacy single-brace form and must stay
// compatible with user-edited templates.
type Data struct {
	Now      time.Time
	TempF    float64
	Humidity float64
	Online   int
	Total    int

	SNR     float64
	HasSNR  bool
	Hops    int
	HasHops bool

	// Ack is the indicator for the previous message's outcome,
	// rendered by the {ack} placeholder.
	Ack string
}

// Render substitutes the template placeholders. Unknown placeholders
// are left untouched so a typo in a user template is visible on air
// rather than silently eaten.
func Render(template string, d Data) string {
	snr := "--"
	hops := "--"
	if d.HasSNR {
		snr = fmt.Sprintf("%.1f", d.SNR)
	}
	if d.HasHops {
		hops = strconv.Itoa(d.Hops)
	}

	r := strings.NewReplacer(
		"{date}", d.Now.Format("01/02"),
		"{time}", d.Now.Format("15:04"),
		"{time_detail}", d.Now.Format("15:04:05"),
		"{online}", strconv.Itoa(d.Online),
		"{total}", strconv.Itoa(d.Total),
		"{temp}", strconv.Itoa(int(d.TempF)),
		"{humidity}", strconv.Itoa(int(d.Humidity)),
		"{snr}", snr,
		"{hops}", hops,
		"{ack}", d.Ack,
	)
	return r.Replace(template)
}
