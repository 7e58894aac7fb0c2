package indexer

import (
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bondwizard/internal/bond"
	"github.com/alanyoungcy/bondwizard/internal/domain"
)

type apiToken struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}

func (t apiToken) toDomain() domain.TokenMeta {
	d, _ := strconv.ParseUint(t.Decimals, 10, 8)
	return domain.TokenMeta{Address: common.HexToAddress(t.ID), Symbol: t.Symbol, Decimals: uint8(d)}
}

type apiBond struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Symbol           string   `json:"symbol"`
	Owner            string   `json:"owner"`
	Type             string   `json:"type"`
	State            string   `json:"state"`
	Maturity         string   `json:"maturity"`
	CreatedAt        string   `json:"createdAt"`
	CollateralRatio  string   `json:"collateralRatio"`
	ConvertibleRatio string   `json:"convertibleRatio"`
	MaxSupply        string   `json:"maxSupply"`
	PaymentToken     apiToken `json:"paymentToken"`
	CollateralToken  apiToken `json:"collateralToken"`
}

func (b apiBond) toDomain() domain.BondDetail {
	return domain.BondDetail{
		ID:               common.HexToAddress(b.ID),
		Name:             b.Name,
		Symbol:           b.Symbol,
		Owner:            common.HexToAddress(b.Owner),
		Type:             b.Type,
		State:            b.State,
		Maturity:         unixTime(b.Maturity),
		PaymentToken:     b.PaymentToken.toDomain(),
		CollateralToken:  b.CollateralToken.toDomain(),
		CollateralRatio:  bigInt(b.CollateralRatio),
		ConvertibleRatio: bigInt(b.ConvertibleRatio),
		MaxSupply:        bigInt(b.MaxSupply),
		CreatedAt:        unixTime(b.CreatedAt),
	}
}

type apiAuction struct {
	ID               string `json:"id"`
	Size             string `json:"size"`
	End              string `json:"end"`
	Live             bool   `json:"live"`
	MinimumBondPrice string `json:"minimumBondPrice"`
	ClearingPrice    string `json:"clearingPrice"`
	Bond             struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Maturity string `json:"maturity"`
		Issuer   struct {
			Name string `json:"name"`
		} `json:"issuer"`
	} `json:"bond"`
}

var year = decimal.NewFromInt(365 * 24 * 3600)

// toOffering renders an auction row. The interest rate is the simple
// annualised yield of buying at price and receiving par at maturity.
func (a apiAuction) toOffering(appURL string, now time.Time) domain.Offering {
	price, ok := parseDecimal(a.ClearingPrice)
	if !ok || !price.IsPositive() {
		price, ok = parseDecimal(a.MinimumBondPrice)
	}

	rate := bond.Placeholder
	maturity := unixTime(a.Bond.Maturity)
	if ok && price.IsPositive() && maturity.After(now) {
		remaining := decimal.NewFromInt(int64(maturity.Sub(now).Seconds()))
		apr := decimal.NewFromInt(1).Div(price).Sub(decimal.NewFromInt(1)).Mul(year).Div(remaining)
		rate = bond.FormatRatio(apr.Mul(decimal.NewFromInt(100)), true)
	}

	priceText := bond.Placeholder
	if ok {
		priceText = price.Round(4).String()
	}

	status := "Ended"
	if a.Live {
		status = "Live"
	}

	url := ""
	if appURL != "" {
		url = appURL + "/offerings/" + a.ID
	}

	size := a.Size
	if d, ok := parseDecimal(a.Size); ok {
		size = d.StringFixed(0)
	}

	return domain.Offering{
		ID:           a.ID,
		Issuer:       a.Bond.Issuer.Name,
		Name:         a.Bond.Name,
		Size:         size,
		InterestRate: rate,
		Price:        priceText,
		Status:       status,
		URL:          url,
		EndsAt:       unixTime(a.End),
	}
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func bigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil
	}
	return v
}

func unixTime(s string) time.Time {
	ts, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
