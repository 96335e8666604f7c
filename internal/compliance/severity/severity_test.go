package severity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fleetguard/internal/compliance/models"
	id "fleetguard/pkg/domain"
)

type SeveritySuite struct {
	suite.Suite
	reports []models.TripReport
	rules   []models.ComplianceRule
}

func TestSeveritySuite(t *testing.T) {
	suite.Run(t, new(SeveritySuite))
}

func (s *SeveritySuite) SetupTest() {
	s.reports = []models.TripReport{
		{ID: "R1", Date: models.NewDate(2024, time.May, 2), PartnerID: "P1", DriverID: "D1", RuleID: "Speed", Driving: "08:15:00"},
		{ID: "R2", Date: models.NewDate(2024, time.May, 3), PartnerID: "P1", DriverID: "D2"},
	}
	s.rules = []models.ComplianceRule{{ID: "Speed", PartnerID: "P1", Title: "Speed limit"}}
}

func infraction(report id.ReportID, declared string) models.Infraction {
	return models.Infraction{ID: "I1", PartnerID: "P1", ReportID: report, Type: declared, Date: models.NewDate(2024, time.May, 2)}
}

func config(cid id.ConfigID, partner id.PartnerID, class models.Classification, points int) models.SanctionConfig {
	return models.SanctionConfig{ID: cid, PartnerID: partner, RuleID: "Speed", Classification: string(class), Points: points}
}

func (s *SeveritySuite) TestCascade() {
	s.Run("partner config wins", func() {
		configs := []models.SanctionConfig{config("C1", "P1", models.Alarm, 6)}
		got := Resolve(infraction("R1", "Alarm"), s.reports, s.rules, configs)
		s.Equal(models.Alarm, got.Classification)
		s.Equal(6, got.Points)
		s.Equal(SourcePartner, got.Source)
		s.Equal(id.ConfigID("C1"), got.ConfigID)
	})

	s.Run("no config falls back to default", func() {
		got := Resolve(infraction("R1", "Alarm"), s.reports, s.rules, nil)
		s.Equal(Result{Classification: models.Alarm, Points: 3, Source: SourceDefault}, got)
	})

	s.Run("global config when partner has none", func() {
		configs := []models.SanctionConfig{
			config("C1", "P2", models.Alarm, 9),
			config("C2", id.AllPartners, models.Alarm, 5),
		}
		got := Resolve(infraction("R1", "Alarm"), s.reports, s.rules, configs)
		s.Equal(5, got.Points)
		s.Equal(SourceGlobal, got.Source)
	})

	s.Run("partner beats global regardless of order", func() {
		configs := []models.SanctionConfig{
			config("C2", id.AllPartners, models.Alarm, 5),
			config("C1", "P1", models.Alarm, 6),
		}
		s.Equal(6, Resolve(infraction("R1", "Alarm"), s.reports, s.rules, configs).Points)
	})

	s.Run("classification must match", func() {
		configs := []models.SanctionConfig{config("C1", "P1", models.Alarm, 6)}
		got := Resolve(infraction("R1", "Alert"), s.reports, s.rules, configs)
		s.Equal(Result{Classification: models.Alert, Points: 1, Source: SourceDefault}, got)
	})

	s.Run("report without rule uses default", func() {
		configs := []models.SanctionConfig{config("C1", "P1", models.Alarm, 6)}
		s.Equal(3, Resolve(infraction("R2", "Alarm"), s.reports, s.rules, configs).Points)
	})

	s.Run("dangling report uses default", func() {
		configs := []models.SanctionConfig{config("C1", "P1", models.Alarm, 6)}
		got := Resolve(infraction("missing", "Alarm"), s.reports, s.rules, configs)
		s.Equal(Result{Classification: models.Alarm, Points: 3, Source: SourceDefault}, got)
	})

	s.Run("config with unknown classification never matches", func() {
		configs := []models.SanctionConfig{{ID: "C9", PartnerID: "P1", RuleID: "Speed", Classification: "alarm", Points: 9}}
		s.Equal(3, Resolve(infraction("R1", "Alarm"), s.reports, s.rules, configs).Points)
	})
}

func (s *SeveritySuite) TestUnlinkedInfractionsAlwaysDefault() {
	configs := []models.SanctionConfig{
		config("C1", "P1", models.Alarm, 10),
		config("C2", id.AllPartners, models.Alert, 10),
		config("C3", "P1", models.Alert, 10),
	}
	for _, declared := range []string{"Alarm", "Alert", "", "Speeding", "alarm"} {
		for _, report := range []id.ReportID{"", "missing", "R2"} {
			got := Resolve(infraction(report, declared), s.reports, s.rules, configs)
			want := DefaultPoints(models.ClassificationOf(declared))
			s.Equal(want, got.Points, "declared=%q report=%q", declared, report)
			s.Equal(SourceDefault, got.Source)
		}
	}
}

func (s *SeveritySuite) TestPartnerSpecificAlwaysWins() {
	for i := range 20 {
		partnerPoints := i + 1
		globalPoints := 40 - i
		configs := []models.SanctionConfig{
			config(id.ConfigID(fmt.Sprintf("G%d", i)), id.AllPartners, models.Alert, globalPoints),
			config(id.ConfigID(fmt.Sprintf("P%d", i)), "P1", models.Alert, partnerPoints),
		}
		if i%2 == 0 {
			configs[0], configs[1] = configs[1], configs[0]
		}
		s.Equal(partnerPoints, Resolve(infraction("R1", "Alert"), s.reports, s.rules, configs).Points)
	}
}

func (s *SeveritySuite) TestDuplicateTieBreak() {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Run("latest created_at wins", func() {
		older := config("old", "P1", models.Alarm, 4)
		older.CreatedAt = t0
		newer := config("new", "P1", models.Alarm, 7)
		newer.CreatedAt = t0.Add(time.Hour)

		x := NewIndex(s.reports, s.rules, []models.SanctionConfig{newer, older})
		s.Equal(7, x.Resolve(infraction("R1", "Alarm")).Points)

		x = NewIndex(s.reports, s.rules, []models.SanctionConfig{older, newer})
		s.Equal(7, x.Resolve(infraction("R1", "Alarm")).Points)
		s.Equal([]Duplicate{{RuleID: "Speed", Classification: models.Alarm, PartnerID: "P1", Winner: "new", Shadowed: "old"}}, x.Duplicates())
	})

	s.Run("equal timestamps keep stored order", func() {
		a := config("a", "P1", models.Alarm, 4)
		b := config("b", "P1", models.Alarm, 8)
		a.CreatedAt, b.CreatedAt = t0, t0

		s.Equal(4, NewIndex(s.reports, s.rules, []models.SanctionConfig{a, b}).Resolve(infraction("R1", "Alarm")).Points)
		s.Equal(8, NewIndex(s.reports, s.rules, []models.SanctionConfig{b, a}).Resolve(infraction("R1", "Alarm")).Points)
	})

	s.Run("missing timestamps keep stored order", func() {
		a := config("a", "P1", models.Alarm, 4)
		b := config("b", "P1", models.Alarm, 8)
		s.Equal(4, NewIndex(s.reports, s.rules, []models.SanctionConfig{a, b}).Resolve(infraction("R1", "Alarm")).Points)
	})

	s.Run("timestamped beats missing", func() {
		a := config("a", "P1", models.Alarm, 4)
		b := config("b", "P1", models.Alarm, 8)
		b.CreatedAt = t0
		s.Equal(8, NewIndex(s.reports, s.rules, []models.SanctionConfig{a, b}).Resolve(infraction("R1", "Alarm")).Points)
	})
}

func (s *SeveritySuite) TestNegativeConfigPointsCountAsZero() {
	configs := []models.SanctionConfig{config("C1", id.AllPartners, models.Alert, -5)}
	got := Resolve(infraction("R1", "Alert"), s.reports, s.rules, configs)
	s.Equal(0, got.Points)
	s.Equal(SourceGlobal, got.Source)
	s.Equal(id.ConfigID("C1"), got.ConfigID)
}

func (s *SeveritySuite) TestIndexLookups() {
	x := NewIndex(s.reports, s.rules, nil)

	driver, ok := x.DriverOf(infraction("R1", "Alarm"))
	s.True(ok)
	s.Equal(id.DriverID("D1"), driver)

	_, ok = x.DriverOf(infraction("missing", "Alarm"))
	s.False(ok)

	rule, ok := x.Rule("Speed")
	s.True(ok)
	s.Equal("Speed limit", rule.Title)
}
