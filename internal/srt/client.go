// Package srt drives the SRT reservation site through a headless Chrome
// session (rod + stealth). One Client owns one browser session; the monitor
// scheduler is its only caller.
package srt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/example/srt-watcher/internal/itinerary"
	"github.com/example/srt-watcher/internal/monitor"
)

const (
	loginURL  = "https://etk.srail.co.kr/cmc/01/selectLoginForm.do"
	searchURL = "https://etk.srail.kr/hpg/hra/01/selectScheduleList.do"

	resultTableSelector = "#result-form table tbody"
)

// Column positions (1-based td index) in the schedule table.
const (
	colSpecial  = 6 // 특실
	colStandard = 7 // 일반실
	colStandby  = 8 // 예약대기
)

// Cell labels marking a bookable seat / open waitlist.
const (
	labelReserve = "예약하기"
	labelStandby = "신청하기"
)

type Config struct {
	MemberNumber string
	Password     string
	Headless     bool
	// NavTimeout bounds page navigation and element lookup. Default: 15s.
	NavTimeout time.Duration
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 15 * time.Second
	}
}

// Client implements monitor.ScrapeClient against the live SRT site.
type Client struct {
	cfg     Config
	log     *slog.Logger
	lnch    *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
}

// Launch starts a Chrome session and opens a stealth page. The caller owns
// the returned client and must Close it.
func Launch(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	if cfg.MemberNumber == "" || cfg.Password == "" {
		return nil, errors.New("srt: member number and password are required")
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled")
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("srt: launch chrome: %w", err)
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("srt: connect chrome: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("srt: open page: %w", err)
	}

	log.Info("browser session started", "headless", cfg.Headless)
	return &Client{cfg: cfg, log: log, lnch: l, browser: b, page: page}, nil
}

func (c *Client) Close() error {
	if c.page != nil {
		_ = c.page.Close()
		c.page = nil
	}
	if c.browser != nil {
		_ = c.browser.Close()
		c.browser = nil
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
		c.lnch = nil
	}
	return nil
}

// Login fills the member-number form and submits it. A missing form is a
// fatal scrape error (site layout changed); rejected credentials are an
// AuthError; slow loads are transient.
func (c *Client) Login(ctx context.Context) error {
	p := c.page.Context(ctx)

	if err := p.Timeout(c.cfg.NavTimeout).Navigate(loginURL); err != nil {
		return monitor.Transient("login page load", err)
	}
	c.waitSettled(p)

	member, err := p.Timeout(c.cfg.NavTimeout).Element("#srchDvNm01")
	if err != nil {
		return monitor.Fatal("login form", fmt.Errorf("member field not found: %w", err))
	}
	password, err := p.Timeout(c.cfg.NavTimeout).Element("#hmpgPwdCphd01")
	if err != nil {
		return monitor.Fatal("login form", fmt.Errorf("password field not found: %w", err))
	}

	if err := fill(member, c.cfg.MemberNumber); err != nil {
		return monitor.Transient("login input", err)
	}
	if err := fill(password, c.cfg.Password); err != nil {
		return monitor.Transient("login input", err)
	}

	submit, err := p.Timeout(c.cfg.NavTimeout).Element(`form fieldset input[type="submit"]`)
	if err != nil {
		return monitor.Fatal("login form", fmt.Errorf("submit button not found: %w", err))
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return monitor.Transient("login submit", err)
	}
	c.waitSettled(p)

	// Still on the login form means the credentials were rejected.
	if has, _, _ := p.Has("#srchDvNm01"); has {
		return &monitor.AuthError{Reason: "login form rejected the credentials"}
	}
	c.log.Info("srt login ok")
	return nil
}

// Search submits the schedule query and reads the availability columns of
// the first MaxTrains result rows.
func (c *Client) Search(ctx context.Context, q itinerary.Query) (monitor.SeatSnapshot, error) {
	p := c.page.Context(ctx)

	if err := p.Timeout(c.cfg.NavTimeout).Navigate(searchURL); err != nil {
		return monitor.SeatSnapshot{}, monitor.Transient("schedule page load", err)
	}
	c.waitSettled(p)

	dep, err := p.Timeout(c.cfg.NavTimeout).Element("#dptRsStnCdNm")
	if err != nil {
		return monitor.SeatSnapshot{}, monitor.Fatal("schedule form", fmt.Errorf("departure field not found: %w", err))
	}
	arr, err := p.Timeout(c.cfg.NavTimeout).Element("#arvRsStnCdNm")
	if err != nil {
		return monitor.SeatSnapshot{}, monitor.Fatal("schedule form", fmt.Errorf("arrival field not found: %w", err))
	}
	if err := fill(dep, q.Origin); err != nil {
		return monitor.SeatSnapshot{}, monitor.Transient("schedule input", err)
	}
	if err := fill(arr, q.Destination); err != nil {
		return monitor.SeatSnapshot{}, monitor.Transient("schedule input", err)
	}

	if err := c.selectOption(p, "#dptDt", q.Date); err != nil {
		return monitor.SeatSnapshot{}, err
	}
	if err := c.selectOption(p, "#dptTm", q.Hour); err != nil {
		return monitor.SeatSnapshot{}, err
	}

	search, err := p.Timeout(c.cfg.NavTimeout).Element(`input[value="조회하기"]`)
	if err != nil {
		return monitor.SeatSnapshot{}, monitor.Fatal("schedule form", fmt.Errorf("search button not found: %w", err))
	}
	if err := search.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return monitor.SeatSnapshot{}, monitor.Transient("schedule submit", err)
	}

	table, err := p.Timeout(c.cfg.NavTimeout).Element(resultTableSelector)
	if err != nil {
		return monitor.SeatSnapshot{}, monitor.Transient("result table", err)
	}

	rows, err := table.Elements("tr")
	if err != nil {
		return monitor.SeatSnapshot{}, monitor.Transient("result rows", err)
	}

	snap := monitor.SeatSnapshot{Taken: time.Now()}
	for i, row := range rows {
		if i >= itinerary.MaxTrains {
			break
		}
		cells, err := row.Elements("td")
		if err != nil || len(cells) < colStandby {
			continue
		}
		snap.Trains = append(snap.Trains, monitor.TrainStatus{
			Index:    i + 1,
			Special:  strings.Contains(cellText(cells[colSpecial-1]), labelReserve),
			Standard: strings.Contains(cellText(cells[colStandard-1]), labelReserve),
			Standby:  strings.Contains(cellText(cells[colStandby-1]), labelStandby),
		})
	}
	return snap, nil
}

// Book clicks the booking link in the given row/column and checks whether
// the reservation page confirms. On a race loss it navigates back so the
// next Search starts from a sane page.
func (c *Client) Book(ctx context.Context, train int, class itinerary.SeatClass) error {
	col, err := columnFor(class)
	if err != nil {
		return err
	}
	sel := fmt.Sprintf("%s > tr:nth-child(%d) > td:nth-child(%d) a", resultTableSelector, train, col)

	p := c.page.Context(ctx)
	has, link, err := p.Has(sel)
	if err != nil {
		return monitor.Transient("booking link", err)
	}
	if !has {
		return &monitor.BookingError{Train: train, Class: class, Reason: "booking link no longer present"}
	}
	if err := link.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return monitor.Transient("booking click", err)
	}
	c.waitSettled(p)

	// The reservation page carries #isFalseGotoMain when the seat was held.
	if has, _, _ := p.Has("#isFalseGotoMain"); has {
		return nil
	}

	// Someone else got there first; go back to the schedule list.
	if err := p.NavigateBack(); err == nil {
		c.waitSettled(p)
	}
	return &monitor.BookingError{Train: train, Class: class, Reason: "seat taken before confirmation"}
}

// selectOption picks a <select> option by value, label or text. A date or
// hour the site does not offer is transient: the sale window may simply not
// have opened yet.
func (c *Client) selectOption(p *rod.Page, selector, value string) error {
	res, err := p.Timeout(c.cfg.NavTimeout).Eval(`(sel, v) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		for (const o of el.options) {
			if (o.value === v || o.label.trim() === v || o.text.trim() === v) {
				el.value = o.value;
				el.dispatchEvent(new Event('change', { bubbles: true }));
				return true;
			}
		}
		return false;
	}`, selector, value)
	if err != nil {
		return monitor.Transient("schedule select", err)
	}
	if !res.Value.Bool() {
		return monitor.Transient("schedule select", fmt.Errorf("option %q not offered by %s", value, selector))
	}
	return nil
}

// waitSettled waits for the load event, tolerating slow pages the way the
// schedule site requires: a timeout here is not an error.
func (c *Client) waitSettled(p *rod.Page) {
	_ = p.Timeout(5 * time.Second).WaitLoad()
}

func fill(el *rod.Element, text string) error {
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(text)
}

func cellText(el *rod.Element) string {
	t, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(t)
}

func columnFor(class itinerary.SeatClass) (int, error) {
	switch class {
	case itinerary.ClassSpecial:
		return colSpecial, nil
	case itinerary.ClassStandard:
		return colStandard, nil
	case itinerary.ClassStandby:
		return colStandby, nil
	}
	return 0, fmt.Errorf("srt: unknown seat class %q", class)
}
