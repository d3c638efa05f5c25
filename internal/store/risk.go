package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// GetRiskReport returns a cached report, or (nil, nil) on a clean miss.
func (s *Store) GetRiskReport(chainID int64, contract string) (*types.RiskReport, error) {
	var row RiskReportRow
	err := s.db.Where("chain_id = ? AND contract = ?", chainID, contract).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load risk report for %d/%s: %w", chainID, contract, err)
	}
	var dims []types.RiskDimension
	_ = json.Unmarshal([]byte(row.DimensionsJSON), &dims)
	return &types.RiskReport{
		ChainID:         row.ChainID,
		Contract:        row.Contract,
		OverallScore:    row.OverallScore,
		RiskLevel:       types.RiskLevel(row.RiskLevel),
		Dimensions:      dims,
		Honeypot:        row.Honeypot,
		BuyTax:          row.BuyTax,
		SellTax:         row.SellTax,
		VerifiedSource:  row.VerifiedSource,
		OwnerPrivileges: row.OwnerPrivileges,
		CachedAt:        row.CachedAt,
	}, nil
}

// UpsertRiskReport persists a freshly fetched report, replacing any cached
// row for the same (chain_id, contract) key.
func (s *Store) UpsertRiskReport(r *types.RiskReport) error {
	dimsJSON, _ := json.Marshal(r.Dimensions)
	now := time.Now().UTC()
	row := RiskReportRow{
		ChainID:         r.ChainID,
		Contract:        r.Contract,
		OverallScore:    r.OverallScore,
		RiskLevel:       string(r.RiskLevel),
		DimensionsJSON:  string(dimsJSON),
		Honeypot:        r.Honeypot,
		BuyTax:          r.BuyTax,
		SellTax:         r.SellTax,
		VerifiedSource:  r.VerifiedSource,
		OwnerPrivileges: r.OwnerPrivileges,
		CachedAt:        r.CachedAt,
		UpdatedAt:       now,
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing RiskReportRow
		err := tx.Where("chain_id = ? AND contract = ?", r.ChainID, r.Contract).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			row.CreatedAt = now
			return tx.Create(&row).Error
		}
		if err != nil {
			return fmt.Errorf("failed to load risk report for update: %w", err)
		}
		return tx.Model(&existing).Updates(row).Error
	})
}

// ContractListLookup returns the precedence-ordered action for a contract,
// or ("", nil) if the contract has no list entry (spec.md §3, §4.5).
func (s *Store) ContractListLookup(chainID int64, address string) (types.ContractListAction, string, error) {
	var rows []ContractListRow
	if err := s.db.Where("chain_id = ? AND address = ?", chainID, address).Find(&rows).Error; err != nil {
		return "", "", fmt.Errorf("failed to look up contract list for %d/%s: %w", chainID, address, err)
	}
	// block > allow precedence
	var allow *ContractListRow
	for i := range rows {
		if rows[i].Action == string(types.ActionBlock) {
			return types.ActionBlock, rows[i].Reason, nil
		}
		if rows[i].Action == string(types.ActionAllow) {
			allow = &rows[i]
		}
	}
	if allow != nil {
		return types.ActionAllow, allow.Reason, nil
	}
	return "", "", nil
}

// AddContractListEntry appends an allow/block row.
func (s *Store) AddContractListEntry(e types.ContractListEntry) error {
	row := ContractListRow{
		Address:   e.Address,
		ChainID:   e.ChainID,
		Action:    string(e.Action),
		Reason:    e.Reason,
		AddedAt:   e.AddedAt,
		CreatedAt: time.Now().UTC(),
	}
	return s.db.Create(&row).Error
}
