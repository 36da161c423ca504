package alert

import (
	"fmt"
	"strings"
	"time"

	"adsbstats.dev/collector/internal/adsb"
	"adsbstats.dev/collector/internal/notify"
)

// Message builds the notification for rule matching ac at t. The trigger
// time is rendered in loc.
func Message(rule Rule, ac adsb.Aircraft, t time.Time, loc *time.Location) notify.Message {
	if loc == nil {
		loc = time.UTC
	}

	callsign := adsb.NormalizeCallsign(ac.Callsign)
	if callsign == "" {
		callsign = "Unknown"
	}
	aircraftType := strings.TrimSpace(ac.Type)
	if aircraftType == "" {
		aircraftType = "Unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Aircraft: %s (%s)\n", callsign, aircraftType)
	fmt.Fprintf(&b, "ICAO: %s\n", adsb.NormalizeHex(ac.ICAOHex))
	if sq := strings.TrimSpace(ac.Squawk); sq != "" {
		fmt.Fprintf(&b, "Squawk: %s\n", sq)
	}

	switch {
	case ac.OnGround:
		b.WriteString("Altitude: ground\n")
	case ac.Altitude != nil:
		fmt.Fprintf(&b, "Altitude: %d ft\n", *ac.Altitude)
	default:
		b.WriteString("Altitude: unknown\n")
	}

	fmt.Fprintf(&b, "\nTriggered: %s", t.In(loc).Format("15:04:05"))

	return notify.Message{
		Title: "Alert: " + rule.Name,
		Body:  b.String(),
	}
}
