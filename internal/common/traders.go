package common

import (
	"fmt"
	"strings"

	"wallet-ledger-go/internal/models"
)

type traderEntry struct {
	Id               string `yaml:"id"`
	Name             string `yaml:"name"`
	MaxCopiers       int    `yaml:"max_copiers"`
	RiskLevel        string `yaml:"risk_level"`
	HistoricalRoiMin string `yaml:"historical_roi_min"`
	HistoricalRoiMax string `yaml:"historical_roi_max"`
	MaxDrawdown      string `yaml:"max_drawdown"`
}

type tradersFile struct {
	Traders []traderEntry `yaml:"traders"`
}

// LoadTraders reads the trader catalogue seeded by cmd/setup. ROI bounds
// are monthly percentages; max_drawdown is a fraction of the allocation.
func LoadTraders(path string) ([]models.Trader, error) {
	var config tradersFile
	if err := readYAML(path, &config); err != nil {
		return nil, err
	}

	traders := make([]models.Trader, 0, len(config.Traders))
	for i, entry := range config.Traders {
		if entry.Id == "" {
			return nil, fmt.Errorf("trader at index %d missing id", i)
		}
		if entry.MaxCopiers <= 0 {
			return nil, fmt.Errorf("trader %s: max_copiers must be positive", entry.Id)
		}

		risk := strings.ToLower(entry.RiskLevel)
		switch risk {
		case models.RiskLow, models.RiskMedium, models.RiskHigh:
		case "":
			risk = models.RiskMedium
		default:
			return nil, fmt.Errorf("trader %s: unknown risk_level %q", entry.Id, entry.RiskLevel)
		}

		roiMin, err := parseSigned(entry.HistoricalRoiMin)
		if err != nil {
			return nil, fmt.Errorf("trader %s: invalid historical_roi_min: %w", entry.Id, err)
		}
		roiMax, err := parseSigned(entry.HistoricalRoiMax)
		if err != nil {
			return nil, fmt.Errorf("trader %s: invalid historical_roi_max: %w", entry.Id, err)
		}
		if roiMax.LessThan(roiMin) {
			return nil, fmt.Errorf("trader %s: historical_roi_max below historical_roi_min", entry.Id)
		}
		drawdown, err := parseDecimal(entry.MaxDrawdown)
		if err != nil {
			return nil, fmt.Errorf("trader %s: invalid max_drawdown: %w", entry.Id, err)
		}

		name := entry.Name
		if name == "" {
			name = entry.Id
		}
		traders = append(traders, models.Trader{
			Id:               entry.Id,
			Name:             name,
			MaxCopiers:       entry.MaxCopiers,
			RiskLevel:        risk,
			HistoricalRoiMin: roiMin,
			HistoricalRoiMax: roiMax,
			MaxDrawdown:      drawdown,
		})
	}
	return traders, nil
}
