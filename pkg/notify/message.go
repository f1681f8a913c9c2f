package notify

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/huurscout/huurscout/pkg/listing"
	"github.com/huurscout/huurscout/pkg/store"
)

// photoCaptionLimit is Telegram's caption length cap. Longer messages
// fall back to a plain text message so nothing is truncated.
const photoCaptionLimit = 1024

const letterTemplate = `Geachte heer/mevrouw,

Met veel interesse heb ik uw advertentie voor de woning aan {ADDRESS} gezien. Graag zou ik de woning bezichtigen. Ik ben per direct beschikbaar en kan alle benodigde documenten aanleveren.

Ik hoor graag van u.

Met vriendelijke groet`

// Message is one rendered notification.
type Message struct {
	HTML     string
	PhotoURL string
	Buttons  []Button
}

// BuildMessage renders the notification for one queue entry: an HTML
// summary of the listing, its lead image and the action buttons.
func BuildMessage(n *store.PendingNotification) Message {
	l := n.Listing
	var b strings.Builder

	title := l.Title
	if title == "" {
		title = l.Address
	}
	fmt.Fprintf(&b, "<b>🏠 %s</b>\n", html.EscapeString(title))
	fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(listing.FullAddress(l.Address, l.PostalCode, l.City)))
	b.WriteString("💰 " + html.EscapeString(priceLine(l)) + "\n")
	if l.LivingArea > 0 {
		fmt.Fprintf(&b, "📐 %d m²\n", l.LivingArea)
	}
	if l.Rooms > 0 {
		fmt.Fprintf(&b, "🚪 %d kamers\n", l.Rooms)
	}
	if l.PropertyType != "" {
		fmt.Fprintf(&b, "🏢 %s\n", html.EscapeString(string(l.PropertyType)))
	}
	if l.Interior != "" {
		fmt.Fprintf(&b, "🛋 %s\n", html.EscapeString(string(l.Interior)))
	}
	if l.EnergyLabel != "" {
		fmt.Fprintf(&b, "⚡ Energielabel %s\n", html.EscapeString(l.EnergyLabel))
	}

	msg := Message{HTML: strings.TrimRight(b.String(), "\n")}
	if len(l.Images) > 0 {
		msg.PhotoURL = l.Images[0]
	}

	address := listing.FullAddress(l.Address, l.PostalCode, l.City)
	msg.Buttons = []Button{
		{Label: "✉️ Brief", CopyText: strings.ReplaceAll(letterTemplate, "{ADDRESS}", address)},
		{Label: "📍 Maps", URL: mapsURL(address)},
		{Label: "🔍 Bekijk advertentie", URL: l.URL},
		{Label: "👍", CallbackData: fmt.Sprintf("react:interested:%d", n.PropertyID)},
		{Label: "👎", CallbackData: fmt.Sprintf("react:not_interested:%d", n.PropertyID)},
	}
	return msg
}

func priceLine(l *listing.Listing) string {
	period := "per maand"
	if l.PricePeriod == listing.PeriodWeek {
		period = "per week"
	}
	line := fmt.Sprintf("€ %d %s", l.PriceNumeric, period)
	if l.ServiceCosts > 0 {
		line += fmt.Sprintf(" (+ € %d servicekosten)", l.ServiceCosts)
	}
	return line
}

func mapsURL(address string) string {
	return "https://www.google.com/maps/search/?api=1&query=" + url.QueryEscape(address)
}

// fitsCaption reports whether the rendered HTML fits Telegram's photo
// caption limit.
func (m Message) fitsCaption() bool {
	return len([]rune(m.HTML)) <= photoCaptionLimit
}
