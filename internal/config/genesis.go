package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/state"
)

// Default genesis accounts and parameters.
const (
	DefaultOwner             = "owner.dao"
	DefaultTreasury          = "treasury.dao"
	DefaultTeam              = "team.dao"
	DefaultTotalSupply       = "10000000000000000000000000000000"
	DefaultPurchaseRate      = "5"
	DefaultStorageMinBalance = "1250000000000000000000"
)

// Allocation is a genesis balance for one account.
type Allocation struct {
	Account string
	Role    state.Role
	Balance amount.Amount
}

// ReceiverEndpoint binds a receiver account to the URL notified on
// transfer-and-call.
type ReceiverEndpoint struct {
	Account string
	URL     string
}

// Genesis holds the initial ledger layout and economic parameters.
type Genesis struct {
	Owner             string
	TotalSupply       amount.Amount
	FundingAccount    string
	PurchaseRate      decimal.Decimal
	StorageMinBalance amount.Amount
	Allocations       []Allocation
	Receivers         []ReceiverEndpoint
}

// TokenPool is what remains of the supply after the allocations.
func (g Genesis) TokenPool() (amount.Amount, error) {
	pool := g.TotalSupply
	for _, a := range g.Allocations {
		var ok bool
		if pool, ok = pool.Sub(a.Balance); !ok {
			return amount.Zero, fmt.Errorf("allocations exceed total supply %s", g.TotalSupply)
		}
	}
	return pool, nil
}

// DefaultGenesis splits the supply 60% token pool, 30% treasury (finance) and
// 10% team (core). The treasury funds proposal execution.
func DefaultGenesis() Genesis {
	total := amount.MustParse(DefaultTotalSupply)
	hundred := amount.New(100)
	treasury, _ := amount.MulDiv(total, amount.New(30), hundred)
	team, _ := amount.MulDiv(total, amount.New(10), hundred)
	return Genesis{
		Owner:             DefaultOwner,
		TotalSupply:       total,
		FundingAccount:    DefaultTreasury,
		PurchaseRate:      decimal.RequireFromString(DefaultPurchaseRate),
		StorageMinBalance: amount.MustParse(DefaultStorageMinBalance),
		Allocations: []Allocation{
			{Account: DefaultTreasury, Role: state.RoleFinance, Balance: treasury},
			{Account: DefaultTeam, Role: state.RoleCore, Balance: team},
		},
	}
}

type genesisFile struct {
	Owner             string `yaml:"owner"`
	TotalSupply       string `yaml:"total_supply"`
	FundingAccount    string `yaml:"funding_account"`
	PurchaseRate      string `yaml:"purchase_rate"`
	StorageMinBalance string `yaml:"storage_min_balance"`
	Allocations       []struct {
		Account string `yaml:"account"`
		Role    string `yaml:"role"`
		Balance string `yaml:"balance"`
	} `yaml:"allocations"`
	Receivers []struct {
		Account string `yaml:"account"`
		URL     string `yaml:"url"`
	} `yaml:"receivers"`
}

// LoadGenesis reads a YAML genesis file. An empty path yields DefaultGenesis.
func LoadGenesis(path string) (Genesis, error) {
	if path == "" {
		return DefaultGenesis(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	return ParseGenesis(raw)
}

// ParseGenesis decodes YAML genesis content. Omitted parameters fall back to
// the defaults; allocations are taken as written.
func ParseGenesis(raw []byte) (Genesis, error) {
	var f genesisFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Genesis{}, fmt.Errorf("decode genesis: %w", err)
	}

	g := DefaultGenesis()
	g.Allocations = nil
	if f.Owner != "" {
		g.Owner = f.Owner
	}
	if f.FundingAccount != "" {
		g.FundingAccount = f.FundingAccount
	}
	var err error
	if f.TotalSupply != "" {
		if g.TotalSupply, err = amount.Parse(f.TotalSupply); err != nil {
			return Genesis{}, fmt.Errorf("total_supply: %w", err)
		}
	}
	if f.StorageMinBalance != "" {
		if g.StorageMinBalance, err = amount.Parse(f.StorageMinBalance); err != nil {
			return Genesis{}, fmt.Errorf("storage_min_balance: %w", err)
		}
	}
	if f.PurchaseRate != "" {
		if g.PurchaseRate, err = decimal.NewFromString(f.PurchaseRate); err != nil {
			return Genesis{}, fmt.Errorf("purchase_rate: %w", err)
		}
	}
	if g.PurchaseRate.IsNegative() {
		return Genesis{}, fmt.Errorf("purchase_rate must not be negative")
	}

	for i, a := range f.Allocations {
		role, ok := state.ParseRole(a.Role)
		if !ok {
			return Genesis{}, fmt.Errorf("allocations[%d]: unknown role %q", i, a.Role)
		}
		balance, err := amount.Parse(a.Balance)
		if err != nil {
			return Genesis{}, fmt.Errorf("allocations[%d]: %w", i, err)
		}
		g.Allocations = append(g.Allocations, Allocation{Account: a.Account, Role: role, Balance: balance})
	}
	for i, r := range f.Receivers {
		if r.Account == "" || r.URL == "" {
			return Genesis{}, fmt.Errorf("receivers[%d]: account and url are required", i)
		}
		g.Receivers = append(g.Receivers, ReceiverEndpoint{Account: r.Account, URL: r.URL})
	}

	if _, err := g.TokenPool(); err != nil {
		return Genesis{}, err
	}
	return g, nil
}
