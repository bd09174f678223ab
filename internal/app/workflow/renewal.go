package workflow

import (
	"slices"
	"strings"
	"time"

	"github.com/brightwire/cert-portal/internal/app/model"
)

const (
	EICRRenewalYears     = 5
	DefaultHorizonMonths = 3
	MaxHorizonMonths     = 60
	minHorizonMonths     = 1
)

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped adds n calendar months, pinning the day to the end of a shorter target month.
// 31 Jan + 1 month is 28/29 Feb, never 2/3 Mar.
func AddMonthsClamped(t time.Time, n int) time.Time {
	t = DateOnly(t)
	total := int(t.Month()) - 1 + n
	year := t.Year() + total/12
	month := total % 12
	if month < 0 {
		month += 12
		year--
	}
	target := time.Month(month + 1)
	day := t.Day()
	if last := daysIn(year, target); day > last {
		day = last
	}
	return time.Date(year, target, day, 0, 0, 0, 0, time.UTC)
}

// DeriveRenewalDate returns the next inspection date for a certificate type, or nil when the type has none.
func DeriveRenewalDate(t model.CertificateType, inspection time.Time) *time.Time {
	if t != model.CertificateTypeEICR {
		return nil
	}
	next := AddMonthsClamped(inspection, EICRRenewalYears*12)
	return &next
}

// ValidateHorizon returns the default when months is zero and rejects anything outside 1..60.
func ValidateHorizon(months int) (int, error) {
	if months == 0 {
		return DefaultHorizonMonths, nil
	}
	if months < minHorizonMonths || months > MaxHorizonMonths {
		return 0, validationf("horizon_months must be between %d and %d", minHorizonMonths, MaxHorizonMonths)
	}
	return months, nil
}

type RenewalBuckets struct {
	AsOf          time.Time           `json:"as_of"`
	HorizonMonths int                 `json:"horizon_months"`
	HorizonEnd    time.Time           `json:"horizon_end"`
	Overdue       []model.Certificate `json:"overdue"`
	Upcoming      []model.Certificate `json:"upcoming"`
}

// Bucketize splits certificates into overdue (next date before asOf) and upcoming
// (asOf through asOf + horizonMonths, inclusive). Certificates without a next date
// and those past the horizon are left out. Both buckets are ordered by next date,
// then certificate number.
func Bucketize(certs []model.Certificate, asOf time.Time, horizonMonths int) RenewalBuckets {
	start := DateOnly(asOf)
	end := AddMonthsClamped(start, horizonMonths)
	buckets := RenewalBuckets{
		AsOf:          start,
		HorizonMonths: horizonMonths,
		HorizonEnd:    end,
		Overdue:       []model.Certificate{},
		Upcoming:      []model.Certificate{},
	}

	for _, c := range certs {
		if c.NextInspectionDate == nil {
			continue
		}
		due := DateOnly(*c.NextInspectionDate)
		switch {
		case due.Before(start):
			buckets.Overdue = append(buckets.Overdue, c)
		case !due.After(end):
			buckets.Upcoming = append(buckets.Upcoming, c)
		}
	}

	slices.SortStableFunc(buckets.Overdue, compareRenewal)
	slices.SortStableFunc(buckets.Upcoming, compareRenewal)
	return buckets
}

func compareRenewal(a, b model.Certificate) int {
	if c := DateOnly(*a.NextInspectionDate).Compare(DateOnly(*b.NextInspectionDate)); c != 0 {
		return c
	}
	return strings.Compare(a.CertificateNo, b.CertificateNo)
}
