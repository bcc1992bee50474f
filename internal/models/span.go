package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Span is the half-open interval [Start, End) a lesson occupies, in minutes
// after midnight.
type Span struct {
	Start int
	End   int
}

// NewSpan builds the span of a lesson starting at clock ("HH:MM").
func NewSpan(clock string, minutes int) (Span, bool) {
	start, ok := ClockMinutes(clock)
	if !ok {
		return Span{}, false
	}
	return Span{Start: start, End: start + minutes}, true
}

// LessonSpan is NewSpan with the length of lesson.
func LessonSpan(clock string, lesson LessonType) (Span, bool) {
	return NewSpan(clock, lesson.Minutes())
}

func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// ClockMinutes parses "HH:MM" into minutes after midnight.
func ClockMinutes(clock string) (int, bool) {
	h, m, found := strings.Cut(clock, ":")
	if !found || len(h) != 2 || len(m) != 2 {
		return 0, false
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 24 {
		return 0, false
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

// FormatClock is the inverse of ClockMinutes. A lesson ending at midnight is
// written as "24:00" so that clock strings keep sorting correctly.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// BookedSlot is the time a committed booking occupies.
type BookedSlot struct {
	Time    string `json:"time"`
	EndTime string `json:"end_time"`
}

// Span returns ok=false for rows with a malformed start time.
func (b BookedSlot) Span() (Span, bool) {
	start, ok := ClockMinutes(b.Time)
	if !ok {
		return Span{}, false
	}
	end, ok := ClockMinutes(b.EndTime)
	if !ok || end <= start {
		end = start + DefaultLessonMinutes
	}
	return Span{Start: start, End: end}, true
}
