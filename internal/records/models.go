package records

import (
	"strconv"
	"strings"
	"time"
)

// Distance is a reference distance a personal best is tracked for.
type Distance struct {
	Label  string
	Meters float64
}

var ReferenceDistances = []Distance{
	{Label: "5K", Meters: 5000},
	{Label: "10K", Meters: 10000},
	{Label: "HALF", Meters: 21097.5},
	{Label: "MARATHON", Meters: 42195},
}

// distanceAliases maps alternative labels onto reference labels.
var distanceAliases = map[string]string{
	"SEMI": "HALF",
}

// ParseDistance accepts a label ("10K", case-insensitive) or a distance in
// meters matching one of the reference distances.
func ParseDistance(s string) (Distance, bool) {
	if label, ok := distanceAliases[strings.ToUpper(s)]; ok {
		s = label
	}
	for _, d := range ReferenceDistances {
		if strings.EqualFold(d.Label, s) {
			return d, true
		}
	}
	if m, err := strconv.ParseFloat(s, 64); err == nil {
		for _, d := range ReferenceDistances {
			if d.Meters == m {
				return d, true
			}
		}
	}
	return Distance{}, false
}

func labelFor(meters float64) string {
	for _, d := range ReferenceDistances {
		if d.Meters == meters {
			return d.Label
		}
	}
	return strconv.FormatFloat(meters, 'f', -1, 64) + "m"
}

type Entry struct {
	ChronoSeconds float64   `json:"chrono_s"`
	Date          time.Time `json:"date"`
	ActivityID    string    `json:"activity_id"`
}

// Record is a user's best time over one reference distance. History holds
// superseded bests, oldest first.
type Record struct {
	UserID    string    `json:"user_id"`
	DistanceM float64   `json:"distance_m"`
	Best      Entry     `json:"best"`
	History   []Entry   `json:"history"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Result is emitted for every new personal best.
type Result struct {
	DistanceLabel   string  `json:"distance_label"`
	ChronoSeconds   float64 `json:"chrono_seconds"`
	ChronoFormatted string  `json:"chrono_formatted"`
	Pace            string  `json:"pace"`
	Message         string  `json:"message"`
}

type EntryView struct {
	ChronoSeconds   float64   `json:"chrono_seconds"`
	ChronoFormatted string    `json:"chrono_formatted"`
	Pace            string    `json:"pace"`
	Date            time.Time `json:"date"`
	ActivityID      string    `json:"activity_id"`
}

type RecordView struct {
	DistanceM     float64 `json:"distance_m"`
	DistanceLabel string  `json:"distance_label"`
	EntryView
}

type HistoryView struct {
	DistanceLabel string      `json:"distance_label"`
	Actual        EntryView   `json:"actual"`
	History       []EntryView `json:"history"`
}

func viewEntry(distanceM float64, e Entry) EntryView {
	return EntryView{
		ChronoSeconds:   e.ChronoSeconds,
		ChronoFormatted: FormatChrono(e.ChronoSeconds),
		Pace:            FormatPace(distanceM, e.ChronoSeconds),
		Date:            e.Date,
		ActivityID:      e.ActivityID,
	}
}

func (r Record) View() RecordView {
	return RecordView{
		DistanceM:     r.DistanceM,
		DistanceLabel: labelFor(r.DistanceM),
		EntryView:     viewEntry(r.DistanceM, r.Best),
	}
}

func (r Record) HistoryView() HistoryView {
	out := HistoryView{
		DistanceLabel: labelFor(r.DistanceM),
		Actual:        viewEntry(r.DistanceM, r.Best),
		History:       make([]EntryView, 0, len(r.History)),
	}
	for _, e := range r.History {
		out.History = append(out.History, viewEntry(r.DistanceM, e))
	}
	return out
}
