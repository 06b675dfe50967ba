package usecase

import (
	"fmt"
	"strconv"
	"strings"
)

// Slot is one bookable hour of a consultant's day.
type Slot struct {
	Hour    int
	Display string
	Value   string
}

func NewSlot(hour int) Slot {
	suffix := "AM"
	h12 := hour % 12
	if hour >= 12 {
		suffix = "PM"
	}
	if h12 == 0 {
		h12 = 12
	}
	return Slot{
		Hour:    hour,
		Display: fmt.Sprintf("%d:00 %s", h12, suffix),
		Value:   fmt.Sprintf("%02d:00:00", hour),
	}
}

// ParseHour reads a clock hour such as "10am", "12 PM", "9:00pm" or "17".
// Minutes are accepted and dropped. Anything it cannot read yields -1.
func ParseHour(s string) int {
	s = strings.ToLower(strings.Join(strings.Fields(s), ""))
	s = strings.ReplaceAll(s, ".", "")

	meridiem := ""
	switch {
	case strings.HasSuffix(s, "am"):
		meridiem, s = "am", strings.TrimSuffix(s, "am")
	case strings.HasSuffix(s, "pm"):
		meridiem, s = "pm", strings.TrimSuffix(s, "pm")
	}

	if i := strings.IndexByte(s, ':'); i >= 0 {
		minutes, err := strconv.Atoi(s[i+1:])
		if err != nil || minutes < 0 || minutes > 59 {
			return -1
		}
		s = s[:i]
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}

	switch meridiem {
	case "am":
		if n < 1 || n > 12 {
			return -1
		}
		return n % 12
	case "pm":
		if n < 1 || n > 12 {
			return -1
		}
		return n%12 + 12
	default:
		if n < 0 || n > 23 {
			return -1
		}
		return n
	}
}

// ParseHourRange splits "10am-5pm" or "10am to 5pm" into its two hours.
// Either side may come back as -1.
func ParseHourRange(s string) (int, int) {
	s = strings.ReplaceAll(s, "–", "-")
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		parts = strings.Split(strings.ToLower(s), " to ")
	}
	if len(parts) != 2 {
		return -1, -1
	}
	return ParseHour(parts[0]), ParseHour(parts[1])
}

// GenerateHours lists every whole hour from start up to, not including, end.
// When start > end the shift runs overnight: [start,24) then [0,end).
func GenerateHours(start, end int) []int {
	if start < 0 || end < 0 || start > 23 || end > 23 || start == end {
		return []int{}
	}

	hours := make([]int, 0, 24)
	if start < end {
		for h := start; h < end; h++ {
			hours = append(hours, h)
		}
		return hours
	}

	for h := start; h < 24; h++ {
		hours = append(hours, h)
	}
	for h := 0; h < end; h++ {
		hours = append(hours, h)
	}
	return hours
}

// BuildSlots partitions the generated hours by membership in booked, keeping their order.
func BuildSlots(hours []int, booked map[int]bool) (available, taken []Slot) {
	available = make([]Slot, 0, len(hours))
	taken = make([]Slot, 0)
	for _, h := range hours {
		if booked[h] {
			taken = append(taken, NewSlot(h))
			continue
		}
		available = append(available, NewSlot(h))
	}
	return available, taken
}
