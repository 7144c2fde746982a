package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// Session returns the exchange session on day's date.
func (c *Client) Session(ctx context.Context, day time.Time) (domain.TradingSession, bool, error) {
	date := day.In(c.loc).Format(time.DateOnly)
	q := url.Values{}
	q.Set("start", date)
	q.Set("end", date)

	body, err := c.do(ctx, http.MethodGet, c.cfg.TradingURL, "/v2/calendar", q, nil)
	if err != nil {
		return domain.TradingSession{}, false, fmt.Errorf("alpaca: calendar %s: %w", date, err)
	}
	var days []APICalendarDay
	if err := json.Unmarshal(body, &days); err != nil {
		return domain.TradingSession{}, false, fmt.Errorf("alpaca: decode calendar: %w", err)
	}

	for _, d := range days {
		if d.Date != date {
			continue
		}
		return c.toSession(d)
	}
	return domain.TradingSession{}, false, nil
}

func (c *Client) toSession(d APICalendarDay) (domain.TradingSession, bool, error) {
	date, err := time.ParseInLocation(time.DateOnly, d.Date, c.loc)
	if err != nil {
		return domain.TradingSession{}, false, fmt.Errorf("alpaca: calendar date %q: %w", d.Date, err)
	}
	open, err := time.ParseInLocation(time.DateOnly+" 15:04", d.Date+" "+d.Open, c.loc)
	if err != nil {
		return domain.TradingSession{}, false, fmt.Errorf("alpaca: calendar open %q: %w", d.Open, err)
	}
	closeAt, err := time.ParseInLocation(time.DateOnly+" 15:04", d.Date+" "+d.Close, c.loc)
	if err != nil {
		return domain.TradingSession{}, false, fmt.Errorf("alpaca: calendar close %q: %w", d.Close, err)
	}
	return domain.TradingSession{Date: date, Open: open, Close: closeAt}, true, nil
}
