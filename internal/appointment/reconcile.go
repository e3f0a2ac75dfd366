package appointment

import (
	"context"
	"fmt"
	"sort"
)

// SlotKey is one (date, time) pair.
type SlotKey struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Drift lists where a doctor's ledger and appointments disagree.
type Drift struct {
	DoctorID string `json:"doctorId"`
	// Missing pairs are held by an open appointment but absent from the ledger.
	Missing []SlotKey `json:"missing,omitempty"`
	// Orphaned pairs are in the ledger with no appointment holding them.
	Orphaned []SlotKey `json:"orphaned,omitempty"`
	// Duplicated pairs are held by more than one non-cancelled appointment.
	Duplicated []SlotKey `json:"duplicated,omitempty"`
}

type ReconcileReport struct {
	DoctorsChecked int      `json:"doctorsChecked"`
	Drifts         []Drift  `json:"drifts"`
	Repaired       int      `json:"repaired"`
	Unrepaired     []string `json:"unrepaired,omitempty"`
}

func (r ReconcileReport) Clean() bool {
	return len(r.Drifts) == 0
}

// Reconcile compares every doctor's ledger with the non-cancelled
// appointments referencing that doctor. With repair set, orphaned pairs are
// released and missing pairs are reserved. Duplicates are only reported, as
// are missing pairs of doctors that are not accepting bookings.
func (s *Service) Reconcile(ctx context.Context, repair bool) (ReconcileReport, error) {
	report := ReconcileReport{Drifts: []Drift{}}

	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return report, fmt.Errorf("list doctors: %w", err)
	}
	appts, err := s.repo.ListAppointments(ctx, AppointmentFilter{})
	if err != nil {
		return report, fmt.Errorf("list appointments: %w", err)
	}

	held := make(map[string]map[SlotKey]int)
	for _, a := range appts {
		if !a.HoldsSlot() {
			continue
		}
		if held[a.DoctorID] == nil {
			held[a.DoctorID] = make(map[SlotKey]int)
		}
		held[a.DoctorID][SlotKey{Date: a.SlotDate, Time: a.SlotTime}]++
	}

	for _, d := range doctors {
		report.DoctorsChecked++
		drift := Drift{DoctorID: d.ID}

		inLedger := make(map[SlotKey]bool)
		for date, times := range d.SlotsBooked {
			for _, t := range times {
				k := SlotKey{Date: date, Time: t}
				inLedger[k] = true
				if held[d.ID][k] == 0 {
					drift.Orphaned = append(drift.Orphaned, k)
				}
			}
		}
		for k, n := range held[d.ID] {
			if !inLedger[k] {
				drift.Missing = append(drift.Missing, k)
			}
			if n > 1 {
				drift.Duplicated = append(drift.Duplicated, k)
			}
		}

		if len(drift.Missing)+len(drift.Orphaned)+len(drift.Duplicated) == 0 {
			continue
		}
		sortKeys(drift.Missing)
		sortKeys(drift.Orphaned)
		sortKeys(drift.Duplicated)
		report.Drifts = append(report.Drifts, drift)

		s.log.Warn().
			Str("doctor_id", d.ID).
			Int("missing", len(drift.Missing)).
			Int("orphaned", len(drift.Orphaned)).
			Int("duplicated", len(drift.Duplicated)).
			Msg("ledger drift")

		if repair {
			s.repairDrift(ctx, drift, &report)
		}
	}

	return report, nil
}

func (s *Service) repairDrift(ctx context.Context, drift Drift, report *ReconcileReport) {
	for _, k := range drift.Orphaned {
		if err := s.ledger.Release(ctx, drift.DoctorID, k.Date, k.Time); err != nil {
			report.Unrepaired = append(report.Unrepaired, fmt.Sprintf("%s %s %s: %v", drift.DoctorID, k.Date, k.Time, err))
			continue
		}
		report.Repaired++
	}
	for _, k := range drift.Missing {
		if err := s.ledger.Reserve(ctx, drift.DoctorID, k.Date, k.Time); err != nil {
			report.Unrepaired = append(report.Unrepaired, fmt.Sprintf("%s %s %s: %v", drift.DoctorID, k.Date, k.Time, err))
			continue
		}
		report.Repaired++
	}
}

func sortKeys(keys []SlotKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].Time < keys[j].Time
	})
}
