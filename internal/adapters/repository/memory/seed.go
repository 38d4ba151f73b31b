package memory

import (
	"fmt"
	"io"
	"time"

	"github.com/ogurasousui/site-access/internal/core/directory"
	"gopkg.in/yaml.v3"
)

const seedDateLayout = "2006-01-02"

// Seed はメモリ上の名簿に投入するデータです。
type Seed struct {
	Gates     []SeedGate     `yaml:"gates"`
	Zones     []SeedZone     `yaml:"zones"`
	Vendors   []SeedVendor   `yaml:"vendors"`
	Employees []SeedEmployee `yaml:"employees"`
}

// SeedGate はゲートの投入データです。
type SeedGate struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SeedZone は区画の投入データです。
type SeedZone struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SeedVendor は業者の投入データです。
type SeedVendor struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	AllowedStaffCount int      `yaml:"allowed_staff_count"`
	AllowedInCount    int      `yaml:"allowed_in_count"`
	GateIDs           []string `yaml:"gate_ids"`
	ZoneIDs           []string `yaml:"zone_ids"`
}

// SeedEmployee は従業員の投入データです。
type SeedEmployee struct {
	ID                    string   `yaml:"id"`
	Identifier            string   `yaml:"identifier"`
	VendorID              string   `yaml:"vendor_id"`
	Name                  string   `yaml:"name"`
	Status                string   `yaml:"status"`
	GateIDs               []string `yaml:"gate_ids"`
	ZoneIDs               []string `yaml:"zone_ids"`
	BypassConcurrentLimit bool     `yaml:"bypass_concurrent_limit"`
	AllowedDates          []string `yaml:"allowed_dates"`
}

// LoadSeed は YAML の投入データを読み込み、Store に登録します。
func (s *Store) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("memory: decode seed: %w", err)
	}

	for _, g := range seed.Gates {
		s.PutGate(directory.Gate{ID: g.ID, Name: g.Name})
	}
	for _, z := range seed.Zones {
		s.PutZone(directory.Zone{ID: z.ID, Name: z.Name})
	}
	for _, v := range seed.Vendors {
		s.PutVendor(directory.Vendor{
			ID:                v.ID,
			Name:              v.Name,
			AllowedStaffCount: v.AllowedStaffCount,
			AllowedInCount:    v.AllowedInCount,
			GateIDs:           v.GateIDs,
			ZoneIDs:           v.ZoneIDs,
		})
	}

	for _, e := range seed.Employees {
		status := directory.Status(e.Status)
		if !status.IsValid() {
			return fmt.Errorf("memory: employee %s: invalid status %q", e.ID, e.Status)
		}

		dates := make([]time.Time, 0, len(e.AllowedDates))
		for _, raw := range e.AllowedDates {
			d, err := time.ParseInLocation(seedDateLayout, raw, time.UTC)
			if err != nil {
				return fmt.Errorf("memory: employee %s: allowed date %q: %w", e.ID, raw, err)
			}
			dates = append(dates, d)
		}

		if err := s.PutEmployee(directory.Employee{
			ID:                    e.ID,
			Identifier:            e.Identifier,
			VendorID:              e.VendorID,
			Name:                  e.Name,
			Status:                status,
			GateIDs:               e.GateIDs,
			ZoneIDs:               e.ZoneIDs,
			BypassConcurrentLimit: e.BypassConcurrentLimit,
			AllowedDates:          dates,
		}); err != nil {
			return err
		}
	}

	return nil
}
