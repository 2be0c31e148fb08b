package mt5

import "strings"

// Classify определяет тег балансовой транзакции по префиксу комментария.
// Префиксы сравниваются без учета регистра. Если префикс не совпал,
// балансовые действия (balance/charge/correction) считаются Promotion,
// а кредитные остаются без тега: кредит не является ни депозитом,
// ни промо-акцией, его учитывает отдельная ветка расчета P&L.
func Classify(comment string, action int) string {
	upper := strings.ToUpper(strings.TrimSpace(comment))

	switch {
	case strings.HasPrefix(upper, "DT"):
		return TagDeposit
	case strings.HasPrefix(upper, "WT"):
		return TagWithdrawal
	case strings.HasPrefix(upper, "REB"):
		return TagRebate
	case strings.HasPrefix(upper, "PRO"):
		return TagPromotion
	}

	switch action {
	case DealActionBalance, DealActionCharge, DealActionCorrection:
		return TagPromotion
	}

	return ""
}

// ActionName переводит код действия в человекочитаемое имя.
// Для balance знак суммы различает депозит и вывод.
func ActionName(action int, amount float64) string {
	switch action {
	case DealActionBalance:
		if amount >= 0 {
			return "DEPOSIT"
		}

		return "WITHDRAWAL"
	case DealActionCredit:
		if amount >= 0 {
			return "CREDIT"
		}

		return "CREDIT_OUT"
	case DealActionCharge:
		return "CHARGE"
	case DealActionCorrection:
		return "CORRECTION"
	case DealActionBuy:
		return "BUY"
	case DealActionSell:
		return "SELL"
	}

	return "UNKNOWN"
}
