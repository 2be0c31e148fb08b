package mt5

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyByCommentPrefix(t *testing.T) {
	cases := []struct {
		name    string
		comment string
		action  int
		want    string
	}{
		{"deposit prefix", "DT-20250101-001", DealActionBalance, TagDeposit},
		{"deposit lowercase", "dt wire transfer", DealActionBalance, TagDeposit},
		{"withdrawal prefix", "WT-REQ-555", DealActionBalance, TagWithdrawal},
		{"rebate prefix", "REB july volume", DealActionCharge, TagRebate},
		{"promo prefix", "PRO welcome bonus", DealActionCredit, TagPromotion},
		{"promo lowercase", "pro summer", DealActionBalance, TagPromotion},
		{"balance fallback", "manual adj", DealActionBalance, TagPromotion},
		{"charge fallback", "fee", DealActionCharge, TagPromotion},
		{"correction fallback", "", DealActionCorrection, TagPromotion},
		{"credit untagged", "monthly credit", DealActionCredit, ""},
		{"credit empty comment", "", DealActionCredit, ""},
		{"leading spaces", "  DT transfer", DealActionBalance, TagDeposit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.comment, tc.action))
		})
	}
}

func TestActionName(t *testing.T) {
	assert.Equal(t, "DEPOSIT", ActionName(DealActionBalance, 100))
	assert.Equal(t, "WITHDRAWAL", ActionName(DealActionBalance, -50))
	assert.Equal(t, "CREDIT", ActionName(DealActionCredit, 25))
	assert.Equal(t, "CREDIT_OUT", ActionName(DealActionCredit, -25))
	assert.Equal(t, "CHARGE", ActionName(DealActionCharge, -1))
	assert.Equal(t, "CORRECTION", ActionName(DealActionCorrection, 0))
	assert.Equal(t, "BUY", ActionName(DealActionBuy, 0))
	assert.Equal(t, "SELL", ActionName(DealActionSell, 0))
	assert.Equal(t, "UNKNOWN", ActionName(99, 0))
}
