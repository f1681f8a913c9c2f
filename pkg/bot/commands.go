package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/huurscout/huurscout/pkg/config"
	"github.com/huurscout/huurscout/pkg/listing"
	"github.com/huurscout/huurscout/pkg/notify"
	"github.com/huurscout/huurscout/pkg/store"
)

var validPropertyTypes = map[string]bool{
	string(listing.TypeApartment): true,
	string(listing.TypeHouse):     true,
	string(listing.TypeStudio):    true,
	string(listing.TypeRoom):      true,
}

const helpText = `<b>Commands</b>
/start – register
/stop – pause notifications
/notify on|off – toggle notifications
/preferences – show your filter
/setcities Amsterdam, Utrecht – cities to watch
/setprice MIN MAX – rent bounds in € (0 = no bound)
/setrooms MIN MAX – room bounds
/setarea MIN MAX – living area bounds in m²
/settypes apartment house studio room – property types
/setneighborhood NAME – neighborhood filter (empty clears)
/status – recent scans and queue`

const adminHelpText = `
<b>Admin</b>
/broadcast TEXT – message all active users
/users – list users
/makeadmin ID / /revokeadmin ID
/stats – store statistics`

// Handler answers chat commands against the store.
type Handler struct {
	DB        *store.Database
	Cfg       *config.Config
	Transport notify.Transport
	Log       zerolog.Logger
}

// HandleCommand executes one command line for a user and returns the
// HTML reply.
func (h *Handler) HandleCommand(ctx context.Context, userID int64, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	args := fields[1:]

	switch cmd {
	case "/start":
		return "Welkom! You will receive new rental listings matching your preferences.\nSet them up with /setcities and friends; see /help."
	case "/stop":
		if err := h.DB.Users.SetNotifications(ctx, userID, false); err != nil {
			return h.oops(err)
		}
		return "Notifications paused. Use /notify on to resume."
	case "/notify":
		return h.cmdNotify(ctx, userID, args)
	case "/help":
		reply := helpText
		if h.isAdmin(ctx, userID) {
			reply += adminHelpText
		}
		return reply
	case "/status":
		return h.cmdStatus(ctx)
	case "/preferences":
		return h.cmdPreferences(ctx, userID)
	case "/setcities":
		return h.cmdSetCities(ctx, userID, strings.Join(args, " "))
	case "/setprice":
		return h.cmdSetRange(ctx, userID, args, "price", "€")
	case "/setrooms":
		return h.cmdSetRange(ctx, userID, args, "rooms", "")
	case "/setarea":
		return h.cmdSetRange(ctx, userID, args, "area", "m²")
	case "/settypes":
		return h.cmdSetTypes(ctx, userID, args)
	case "/setneighborhood":
		return h.cmdSetNeighborhood(ctx, userID, strings.Join(args, " "))
	case "/broadcast":
		return h.admin(ctx, userID, func() string { return h.cmdBroadcast(ctx, strings.Join(args, " ")) })
	case "/users":
		return h.admin(ctx, userID, func() string { return h.cmdUsers(ctx) })
	case "/makeadmin":
		return h.admin(ctx, userID, func() string { return h.cmdSetAdmin(ctx, args, true) })
	case "/revokeadmin":
		return h.admin(ctx, userID, func() string { return h.cmdSetAdmin(ctx, args, false) })
	case "/stats":
		return h.admin(ctx, userID, func() string { return h.cmdStats(ctx) })
	default:
		return "Unknown command. See /help."
	}
}

func (h *Handler) isAdmin(ctx context.Context, userID int64) bool {
	if h.Cfg.IsAdmin(userID) {
		return true
	}
	u, err := h.DB.Users.Get(ctx, userID)
	return err == nil && u != nil && u.IsAdmin
}

func (h *Handler) admin(ctx context.Context, userID int64, fn func() string) string {
	if !h.isAdmin(ctx, userID) {
		return "This command is admin-only."
	}
	return fn()
}

func (h *Handler) oops(err error) string {
	h.Log.Error().Err(err).Msg("Command failed")
	return "Something went wrong, try again later."
}

func (h *Handler) cmdNotify(ctx context.Context, userID int64, args []string) string {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return "Usage: /notify on|off"
	}
	if err := h.DB.Users.SetNotifications(ctx, userID, args[0] == "on"); err != nil {
		return h.oops(err)
	}
	if args[0] == "on" {
		return "Notifications enabled."
	}
	return "Notifications paused."
}

func (h *Handler) cmdStatus(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("<b>Recent scans</b>\n")
	scans, err := h.DB.ScanHistory.Recent(ctx, 10)
	if err != nil {
		return h.oops(err)
	}
	if len(scans) == 0 {
		b.WriteString("none yet\n")
	}
	for _, s := range scans {
		fmt.Fprintf(&b, "%s/%s: %d new of %d (%s)\n",
			s.Source, s.Key, s.NewCount, s.Total, s.ScanTime.Format("02 Jan 15:04"))
	}
	counts, err := h.DB.Queue.CountByStatus(ctx)
	if err != nil {
		return h.oops(err)
	}
	b.WriteString("\n<b>Queue</b>\n")
	for _, status := range []store.QueueStatus{store.StatusPending, store.StatusProcessing,
		store.StatusSent, store.StatusFailed, store.StatusRateLimited} {
		if n := counts[status]; n > 0 {
			fmt.Fprintf(&b, "%s: %d\n", status, n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) cmdPreferences(ctx context.Context, userID int64) string {
	p, err := h.DB.Preferences.Get(ctx, userID)
	if err != nil {
		return h.oops(err)
	}
	if p == nil {
		return "No preferences yet. Start with /setcities."
	}
	var b strings.Builder
	b.WriteString("<b>Your preferences</b>\n")
	fmt.Fprintf(&b, "Cities: %s\n", strings.Join(p.Cities, ", "))
	fmt.Fprintf(&b, "Price: %s\n", formatRange(p.MinPrice, p.MaxPrice, "€"))
	fmt.Fprintf(&b, "Rooms: %s\n", formatRange(p.MinRooms, p.MaxRooms, ""))
	fmt.Fprintf(&b, "Area: %s\n", formatRange(p.MinArea, p.MaxArea, "m²"))
	if len(p.PropertyTypes) > 0 {
		fmt.Fprintf(&b, "Types: %s\n", strings.Join(p.PropertyTypes, ", "))
	}
	if p.Neighborhood != "" {
		fmt.Fprintf(&b, "Neighborhood: %s\n", html.EscapeString(p.Neighborhood))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatRange(low, high int, unit string) string {
	if unit != "" {
		unit = " " + unit
	}
	if high <= 0 {
		return fmt.Sprintf("from %d%s", low, unit)
	}
	return fmt.Sprintf("%d – %d%s", low, high, unit)
}

// cmdSetCities accepts a comma- or space-separated city list, fixing
// typos against the configured city set.
func (h *Handler) cmdSetCities(ctx context.Context, userID int64, raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' })
	var cities []string
	var corrections []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if known(part, h.Cfg.Scan.Cities) {
			cities = append(cities, part)
			continue
		}
		if fixed, ok := listing.SuggestCity(part, h.Cfg.Scan.Cities); ok {
			cities = append(cities, fixed)
			corrections = append(corrections, fmt.Sprintf("%s → %s", part, fixed))
			continue
		}
		// Unknown cities are kept: portals cover more towns than the
		// scan default list.
		cities = append(cities, part)
	}
	if len(cities) == 0 {
		return "Usage: /setcities Amsterdam, Utrecht"
	}
	p, err := h.loadPreferences(ctx, userID)
	if err != nil {
		return h.oops(err)
	}
	p.Cities = cities
	if err := h.DB.Preferences.Put(ctx, p); err != nil {
		return h.oops(err)
	}
	reply := "Watching: " + strings.Join(normalizedCities(cities), ", ")
	if len(corrections) > 0 {
		reply += "\nCorrected: " + strings.Join(corrections, ", ")
	}
	return reply
}

func known(city string, cities []string) bool {
	for _, c := range cities {
		if strings.EqualFold(strings.TrimSpace(c), city) {
			return true
		}
	}
	return false
}

func normalizedCities(cities []string) []string {
	out := make([]string, len(cities))
	for i, c := range cities {
		out[i] = listing.NormalizeCity(c)
	}
	return out
}

func (h *Handler) cmdSetRange(ctx context.Context, userID int64, args []string, kind, unit string) string {
	if len(args) != 2 {
		return fmt.Sprintf("Usage: /set%s MIN MAX (0 = no bound)", kind)
	}
	low, err1 := strconv.Atoi(args[0])
	high, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil || low < 0 || high < 0 || (high > 0 && low > high) {
		return fmt.Sprintf("Usage: /set%s MIN MAX (0 = no bound)", kind)
	}
	p, err := h.loadPreferences(ctx, userID)
	if err != nil {
		return h.oops(err)
	}
	switch kind {
	case "price":
		p.MinPrice, p.MaxPrice = low, high
	case "rooms":
		p.MinRooms, p.MaxRooms = low, high
	case "area":
		p.MinArea, p.MaxArea = low, high
	}
	if err := h.DB.Preferences.Put(ctx, p); err != nil {
		return h.oops(err)
	}
	return fmt.Sprintf("%s set to %s", strings.ToUpper(kind[:1])+kind[1:], formatRange(low, high, unit))
}

func (h *Handler) cmdSetTypes(ctx context.Context, userID int64, args []string) string {
	var types []string
	for _, arg := range args {
		arg = strings.ToLower(arg)
		if !validPropertyTypes[arg] {
			return "Valid types: apartment, house, studio, room"
		}
		types = append(types, arg)
	}
	p, err := h.loadPreferences(ctx, userID)
	if err != nil {
		return h.oops(err)
	}
	p.PropertyTypes = types
	if err := h.DB.Preferences.Put(ctx, p); err != nil {
		return h.oops(err)
	}
	if len(types) == 0 {
		return "Property type filter cleared."
	}
	return "Types set to: " + strings.Join(types, ", ")
}

func (h *Handler) cmdSetNeighborhood(ctx context.Context, userID int64, hood string) string {
	p, err := h.loadPreferences(ctx, userID)
	if err != nil {
		return h.oops(err)
	}
	p.Neighborhood = strings.TrimSpace(hood)
	if err := h.DB.Preferences.Put(ctx, p); err != nil {
		return h.oops(err)
	}
	if p.Neighborhood == "" {
		return "Neighborhood filter cleared."
	}
	return "Neighborhood set to: " + html.EscapeString(p.Neighborhood)
}

func (h *Handler) loadPreferences(ctx context.Context, userID int64) (*store.Preferences, error) {
	p, err := h.DB.Preferences.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &store.Preferences{UserID: userID}
	}
	return p, nil
}

func (h *Handler) cmdBroadcast(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return "Usage: /broadcast TEXT"
	}
	ids, err := h.DB.Users.ActiveChatIDs(ctx)
	if err != nil {
		return h.oops(err)
	}
	sent := 0
	for _, id := range ids {
		if err := h.Transport.SendText(ctx, id, html.EscapeString(text), nil); err != nil {
			h.Log.Warn().Err(err).Int64("user_id", id).Msg("Broadcast send failed")
			continue
		}
		sent++
	}
	return fmt.Sprintf("Broadcast sent to %d of %d users.", sent, len(ids))
}

func (h *Handler) cmdUsers(ctx context.Context) string {
	users, err := h.DB.Users.List(ctx)
	if err != nil {
		return h.oops(err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%d users</b>\n", len(users))
	for _, u := range users {
		flags := ""
		if !u.IsActive {
			flags += " inactive"
		}
		if u.IsAdmin {
			flags += " admin"
		}
		if !u.NotificationsEnabled {
			flags += " muted"
		}
		fmt.Fprintf(&b, "%d @%s%s\n", u.UserID, html.EscapeString(u.Username), flags)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) cmdSetAdmin(ctx context.Context, args []string, admin bool) string {
	if len(args) != 1 {
		return "Usage: /makeadmin USER_ID"
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "Usage: /makeadmin USER_ID"
	}
	ok, err := h.DB.Users.SetAdmin(ctx, id, admin)
	if err != nil {
		return h.oops(err)
	}
	if !ok {
		return fmt.Sprintf("User %d is not registered.", id)
	}
	if admin {
		return fmt.Sprintf("User %d is now an admin.", id)
	}
	return fmt.Sprintf("User %d is no longer an admin.", id)
}

func (h *Handler) cmdStats(ctx context.Context) string {
	props, err := h.DB.Properties.Count(ctx)
	if err != nil {
		return h.oops(err)
	}
	users, err := h.DB.Users.List(ctx)
	if err != nil {
		return h.oops(err)
	}
	counts, err := h.DB.Queue.CountByStatus(ctx)
	if err != nil {
		return h.oops(err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return fmt.Sprintf("<b>Stats</b>\nListings: %d\nUsers: %d\nQueue entries: %d (pending %d)",
		props, len(users), total, counts[store.StatusPending])
}
