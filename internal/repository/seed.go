package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/betenlace/affiliates/internal/domain"
)

// Seed is the reference data a fresh database starts from. Rows carry their
// own ids so links between them can be written by hand.
type Seed struct {
	Campaigns    []domain.Campaign               `json:"campaigns"`
	Links        []domain.Link                   `json:"links"`
	Partners     []domain.Partner                `json:"partners"`
	Accumulators []domain.PartnerLinkAccumulated `json:"accumulators"`
	BankAccounts []domain.BankAccount            `json:"bank_accounts"`
	Companies    []domain.OwnCompany             `json:"companies"`
	Levels       []domain.LevelPercentage        `json:"levels"`
}

func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var s Seed
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal seed: %w", err)
	}
	return &s, nil
}

// ApplySeed writes the seed in one transaction.
func (s *Store) ApplySeed(ctx context.Context, seed *Seed) error {
	return s.WithTx(ctx, func(q *Queries) error {
		for i := range seed.Campaigns {
			if err := q.InsertCampaign(ctx, &seed.Campaigns[i]); err != nil {
				return fmt.Errorf("seed campaign %s: %w", seed.Campaigns[i].Title, err)
			}
		}
		for i := range seed.Links {
			if err := q.InsertLink(ctx, &seed.Links[i]); err != nil {
				return fmt.Errorf("seed link %s: %w", seed.Links[i].PromCode, err)
			}
		}
		for i := range seed.Partners {
			if err := q.InsertPartner(ctx, &seed.Partners[i]); err != nil {
				return fmt.Errorf("seed partner %s: %w", seed.Partners[i].Email, err)
			}
		}
		for i := range seed.Accumulators {
			a := &seed.Accumulators[i]
			if a.Trackers == (domain.Trackers{}) {
				a.Trackers = domain.FullTrackers()
			}
			if err := q.InsertAccumulator(ctx, a); err != nil {
				return fmt.Errorf("seed accumulator for link %s: %w", a.LinkID, err)
			}
		}
		for i := range seed.BankAccounts {
			if err := q.InsertBankAccount(ctx, &seed.BankAccounts[i]); err != nil {
				return fmt.Errorf("seed bank account: %w", err)
			}
		}
		for i := range seed.Companies {
			if err := q.InsertOwnCompany(ctx, &seed.Companies[i]); err != nil {
				return fmt.Errorf("seed company: %w", err)
			}
		}
		for _, lp := range seed.Levels {
			if err := q.SetLevelPercentage(ctx, lp); err != nil {
				return fmt.Errorf("seed level %d: %w", lp.Level, err)
			}
		}
		return nil
	})
}
