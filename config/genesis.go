package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pointchain/crypto"
)

// Genesis is the externally managed platform configuration: the validator
// set, the platform accounts and the ledger's economic parameters.
type Genesis struct {
	BaseCurrency      string   `yaml:"baseCurrency"`
	TokenSymbol       string   `yaml:"tokenSymbol"`
	FeeRate           uint8    `yaml:"feeRate"`
	Foundation        string   `yaml:"foundation"`
	FeeAccount        string   `yaml:"feeAccount"`
	BridgeAccount     string   `yaml:"bridgeAccount"`
	BridgeThreshold   int      `yaml:"bridgeThreshold"`
	Validators        []string `yaml:"validators"`
	Certifiers        []string `yaml:"certifiers"`
	FoundationReserve string   `yaml:"foundationReserve"`
}

// LoadGenesis reads and validates the genesis file at path.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis: %w", err)
	}
	genesis := &Genesis{}
	if err := yaml.Unmarshal(raw, genesis); err != nil {
		return nil, fmt.Errorf("config: parse genesis: %w", err)
	}
	if err := genesis.validate(); err != nil {
		return nil, err
	}
	return genesis, nil
}

func (g *Genesis) validate() error {
	if strings.TrimSpace(g.BaseCurrency) == "" {
		return fmt.Errorf("config: genesis missing baseCurrency")
	}
	if strings.TrimSpace(g.TokenSymbol) == "" {
		return fmt.Errorf("config: genesis missing tokenSymbol")
	}
	if g.FeeRate > 100 {
		return fmt.Errorf("config: fee rate %d out of range", g.FeeRate)
	}
	if len(g.Validators) == 0 {
		return fmt.Errorf("config: genesis lists no validators")
	}
	for _, field := range []string{g.Foundation, g.FeeAccount, g.BridgeAccount} {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("config: genesis missing a platform account")
		}
	}
	return nil
}

// ValidatorAddresses decodes the configured validator addresses.
func (g *Genesis) ValidatorAddresses() ([][20]byte, error) {
	return decodeAddresses(g.Validators)
}

// CertifierAddresses decodes the configured certifier addresses.
func (g *Genesis) CertifierAddresses() ([][20]byte, error) {
	return decodeAddresses(g.Certifiers)
}

// Account decodes one of the platform account fields.
func (g *Genesis) Account(encoded string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(encoded)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Raw(), nil
}

func decodeAddresses(encoded []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(encoded))
	for _, entry := range encoded {
		addr, err := crypto.DecodeAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("config: invalid address %q: %w", entry, err)
		}
		out = append(out, addr.Raw())
	}
	return out, nil
}
