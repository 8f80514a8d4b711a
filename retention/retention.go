/* Copyright (c) 2024 Jason Ish
 * All rights reserved.
 *
 * Redistribution and use in source and binary forms, with or without
 * modification, are permitted provided that the following conditions
 * are met:
 *
 * 1. Redistributions of source code must retain the above copyright
 *    notice, this list of conditions and the following disclaimer.
 * 2. Redistributions in binary form must reproduce the above copyright
 *    notice, this list of conditions and the following disclaimer in the
 *    documentation and/or other materials provided with the distribution.
 *
 * THIS SOFTWARE IS PROVIDED ``AS IS'' AND ANY EXPRESS OR IMPLIED
 * WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
 * DISCLAIMED. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY DIRECT,
 * INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES
 * (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
 * SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
 * HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT,
 * STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING
 * IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
 * POSSIBILITY OF SUCH DAMAGE.
 */

// Package retention deletes events older than a configured number of
// days. Datastores with time based units (daily indices or partitions)
// implement UnitStore and are swept by a Manager; others implement
// Sweeper directly.
package retention

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/jasonish/evecore/log"
	"github.com/jasonish/evecore/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Result struct {
	// Number of units, or events for stores without units, that were
	// deleted, or would be deleted when not forced.
	Count int64 `json:"count"`

	// The units deleted, or to be deleted.
	Units []string `json:"units,omitempty"`

	// False for a dry run.
	Deleted bool `json:"deleted"`
}

// Sweeper deletes data older than days. When force is false nothing is
// deleted and the result reports what would have been.
type Sweeper interface {
	Sweep(ctx context.Context, days int, force bool) (*Result, error)
}

// UnitStore is a datastore whose events are stored in units named by the
// day they hold.
type UnitStore interface {
	// ListUnits returns the names of all units that may hold events.
	ListUnits(ctx context.Context) ([]string, error)

	DeleteUnit(ctx context.Context, name string) error
}

// UnitPattern matches unit names ending with a date and extracts it.
type UnitPattern struct {
	re     *regexp.Regexp
	layout string
}

// NewUnitPattern returns a pattern for units named base followed by a
// date in layout, eg. "logstash-" and "2006.01.02".
func NewUnitPattern(base string, layout string) *UnitPattern {
	datePattern := regexp.MustCompile(`\d`).ReplaceAllString(
		regexp.QuoteMeta(layout), `\d`)
	return &UnitPattern{
		re:     regexp.MustCompile("^" + regexp.QuoteMeta(base) + "(" + datePattern + ")$"),
		layout: layout,
	}
}

// Date returns the date of a unit, false if the name doesn't match.
func (p *UnitPattern) Date(name string) (time.Time, bool) {
	match := p.re.FindStringSubmatch(name)
	if match == nil {
		return time.Time{}, false
	}
	date, err := time.ParseInLocation(p.layout, match[1], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// Horizon returns the time before which events are expired.
func Horizon(now time.Time, days int) time.Time {
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

// AgeInDays returns the number of whole days between date and now.
func AgeInDays(now time.Time, date time.Time) int {
	return int(now.UTC().Sub(date) / (24 * time.Hour))
}

// Manager sweeps a UnitStore, deleting the units more than the retention
// days old.
type Manager struct {
	store   UnitStore
	pattern *UnitPattern
	now     func() time.Time
}

func NewManager(store UnitStore, pattern *UnitPattern) *Manager {
	return &Manager{
		store:   store,
		pattern: pattern,
		now:     time.Now,
	}
}

// SetClock replaces the clock used to age units.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Expired returns the units strictly older than days, oldest first.
func (m *Manager) Expired(ctx context.Context, days int) ([]string, error) {
	units, err := m.store.ListUnits(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list units")
	}
	sort.Strings(units)

	now := m.now()
	expired := []string{}
	for _, unit := range units {
		date, ok := m.pattern.Date(unit)
		if !ok {
			continue
		}
		if AgeInDays(now, date) > days {
			expired = append(expired, unit)
		}
	}
	return expired, nil
}

func (m *Manager) Sweep(ctx context.Context, days int, force bool) (*Result, error) {
	expired, err := m.Expired(ctx, days)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Count: int64(len(expired)),
		Units: expired,
	}
	if !force {
		for _, unit := range expired {
			log.Info("Would delete %s", unit)
		}
		return result, nil
	}

	for _, unit := range expired {
		if err := m.store.DeleteUnit(ctx, unit); err != nil {
			return nil, errors.Wrapf(err, "failed to delete %s", unit)
		}
		log.Info("Deleted %s", unit)
	}
	result.Deleted = true
	return result, nil
}

// Run sweeps every interval until the context is done. Errors are logged
// and the next sweep still happens.
func Run(ctx context.Context, sweeper Sweeper, days int, force bool, interval time.Duration) error {
	logger := log.Logger().With(zap.Int("days", days), zap.Bool("force", force))
	logger.Info("Starting retention sweeper", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := sweeper.Sweep(ctx, days, force)
		if err != nil {
			logger.Error("Retention sweep failed", zap.Error(err))
		} else {
			logger.Info("Retention sweep complete",
				zap.Int64("count", result.Count),
				zap.Bool("deleted", result.Deleted))
			if result.Deleted {
				metrics.RetentionDeleted.Add(float64(result.Count))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
