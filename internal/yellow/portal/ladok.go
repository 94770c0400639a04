package portal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/bdobrica/yellow/internal/yellow/bot"
)

const ladokResultsPage = "/uPortal/f/u30l1s517/p/TG02.u30l1n616/max/render.uP"

// Ladok scrapes the student's study results. The result list is fetched once
// per Ladok value and then served from memory.
type Ladok struct {
	fetch *fetcher

	mu     sync.Mutex
	grades []bot.GradeRecord
	loaded bool
}

// Grades returns the grade history in portal order.
func (l *Ladok) Grades(ctx context.Context) ([]bot.GradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.grades, nil
	}

	doc, err := l.fetch.document(ctx, ladokResultsPage)
	if err != nil {
		return nil, fmt.Errorf("ladok: results: %w", err)
	}

	var (
		grades   []bot.GradeRecord
		parseErr error
	)
	doc.Find(".lpw-table tbody.parentBody > tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		td := row.Find("td")
		if td.Length() < 7 {
			return true
		}
		credits, err := parseCredits(td.Eq(4).Text())
		if err != nil {
			parseErr = err
			return false
		}
		grades = append(grades, bot.GradeRecord{
			Code:    strings.TrimSpace(td.Eq(1).Text()),
			Name:    strings.TrimSpace(td.Eq(3).Text()),
			Credits: credits,
			Grade:   strings.TrimSpace(td.Eq(6).Text()),
		})
		return true
	})
	if parseErr != nil {
		return nil, fmt.Errorf("ladok: results: %w", parseErr)
	}

	l.grades, l.loaded = grades, true
	return grades, nil
}

// parseCredits accepts both "7.5" and the Swedish "7,5".
func parseCredits(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("credits %q: %w", s, err)
	}
	return v, nil
}
