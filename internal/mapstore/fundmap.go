package mapstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FundMap routes gifts to CRM funds by trip code. Codes missing from the
// table fall back to the default fund so a new trip never blocks payment
// processing; it just needs a later correction in the CRM.
type FundMap struct {
	Funds         map[string]string `json:"funds"`
	DefaultFundID string            `json:"default_fund_id"`
}

// LoadFundMap reads the fund map file. A missing file yields an empty map,
// which is still usable when a default fund ID is configured.
func LoadFundMap(path string) (*FundMap, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &FundMap{Funds: make(map[string]string)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fund map %s: %w", path, err)
	}
	var fm FundMap
	if err := json.Unmarshal(data, &fm); err != nil {
		return nil, fmt.Errorf("parse fund map %s: %w", path, err)
	}
	if fm.Funds == nil {
		fm.Funds = make(map[string]string)
	}
	return &fm, nil
}

// Resolve returns the fund ID for a trip code. The second return reports
// an exact hit; a fallback to the default fund returns (id, false), and an
// empty ID means the gift cannot be posted at all.
func (fm *FundMap) Resolve(eventCode string) (string, bool) {
	if id, ok := fm.Funds[eventCode]; ok && id != "" {
		return id, true
	}
	if fm.DefaultFundID != "" {
		return fm.DefaultFundID, false
	}
	return "", false
}

// Codes returns the mapped trip codes in sorted order, for display.
func (fm *FundMap) Codes() []string {
	codes := make([]string, 0, len(fm.Funds))
	for code := range fm.Funds {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Save writes the fund map, used by the fund-map bootstrap command.
func (fm *FundMap) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(fm, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".fundmap-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
